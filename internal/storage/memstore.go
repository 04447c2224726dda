// Package storage provides an in-memory fixture implementation of
// agentmodel.Storage for wiring the core (supervisor, delivery, heartbeat)
// end to end without a real Teams/Projects/Assignments domain store. That
// domain store is explicitly out of scope for this module; MemStore exists
// so cmd/agentmuxd and internal/mcpheartbeat have something concrete to
// depend on, and so tests can seed team rosters without a database.
package storage

import (
	"fmt"
	"sync"

	"github.com/agentmux/agentmux/internal/agentmodel"
)

// MemStore is a mutex-guarded, process-local agentmodel.Storage. Nothing is
// persisted across restarts; a real deployment would back this interface
// with the Teams/Projects/Assignments store instead.
type MemStore struct {
	mu            sync.RWMutex
	teams         []agentmodel.Team
	orchestrator  agentmodel.OrchestratorStatus
}

// New constructs an empty MemStore. The orchestrator defaults to inactive
// with claude-code as its preferred runtime.
func New() *MemStore {
	return &MemStore{
		orchestrator: agentmodel.OrchestratorStatus{
			AgentStatus:      agentmodel.StatusInactive,
			PreferredRuntime: agentmodel.RuntimeClaudeCode,
		},
	}
}

// SeedTeam adds or replaces a team roster. Intended for test and fixture
// setup, not for runtime use.
func (s *MemStore) SeedTeam(team agentmodel.Team) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, t := range s.teams {
		if t.ID == team.ID {
			s.teams[i] = team
			return
		}
	}
	s.teams = append(s.teams, team)
}

// SeedOrchestrator overwrites the orchestrator's status record. Intended for
// test and fixture setup.
func (s *MemStore) SeedOrchestrator(status agentmodel.OrchestratorStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orchestrator = status
}

func (s *MemStore) GetTeams() ([]agentmodel.Team, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]agentmodel.Team, len(s.teams))
	copy(out, s.teams)
	return out, nil
}

func (s *MemStore) GetOrchestratorStatus() (*agentmodel.OrchestratorStatus, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	status := s.orchestrator
	return &status, nil
}

func (s *MemStore) UpdateAgentStatus(sessionName string, status agentmodel.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for ti, team := range s.teams {
		for mi, member := range team.Members {
			if member.SessionName == sessionName {
				s.teams[ti].Members[mi].AgentStatus = status
				return nil
			}
		}
	}
	return fmt.Errorf("storage: no team member with session name %q", sessionName)
}

func (s *MemStore) UpdateOrchestratorStatus(status agentmodel.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orchestrator.AgentStatus = status
	return nil
}
