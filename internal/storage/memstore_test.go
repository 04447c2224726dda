package storage

import (
	"testing"

	"github.com/agentmux/agentmux/internal/agentmodel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemStore_GetTeams_ReturnsSeededRoster(t *testing.T) {
	s := New()
	s.SeedTeam(agentmodel.Team{ID: "team-1", Members: []agentmodel.TeamMember{
		{SessionName: "dev-1", Role: "developer", PreferredRuntime: agentmodel.RuntimeGeminiCLI},
	}})

	teams, err := s.GetTeams()
	require.NoError(t, err)
	require.Len(t, teams, 1)
	assert.Equal(t, "team-1", teams[0].ID)
	assert.Equal(t, agentmodel.RuntimeGeminiCLI, teams[0].Members[0].PreferredRuntime)
}

func TestMemStore_SeedTeam_ReplacesExistingID(t *testing.T) {
	s := New()
	s.SeedTeam(agentmodel.Team{ID: "team-1", Members: []agentmodel.TeamMember{{SessionName: "dev-1"}}})
	s.SeedTeam(agentmodel.Team{ID: "team-1", Members: []agentmodel.TeamMember{{SessionName: "dev-2"}}})

	teams, err := s.GetTeams()
	require.NoError(t, err)
	require.Len(t, teams, 1)
	assert.Equal(t, "dev-2", teams[0].Members[0].SessionName)
}

func TestMemStore_UpdateAgentStatus_UnknownSessionErrors(t *testing.T) {
	s := New()
	err := s.UpdateAgentStatus("nope", agentmodel.StatusActive)
	assert.Error(t, err)
}

func TestMemStore_UpdateAgentStatus_UpdatesMatchingMember(t *testing.T) {
	s := New()
	s.SeedTeam(agentmodel.Team{ID: "team-1", Members: []agentmodel.TeamMember{
		{SessionName: "dev-1", AgentStatus: agentmodel.StatusInactive},
	}})

	require.NoError(t, s.UpdateAgentStatus("dev-1", agentmodel.StatusActive))

	teams, err := s.GetTeams()
	require.NoError(t, err)
	assert.Equal(t, agentmodel.StatusActive, teams[0].Members[0].AgentStatus)
}

func TestMemStore_OrchestratorStatus_DefaultsThenUpdates(t *testing.T) {
	s := New()
	status, err := s.GetOrchestratorStatus()
	require.NoError(t, err)
	assert.Equal(t, agentmodel.StatusInactive, status.AgentStatus)
	assert.Equal(t, agentmodel.RuntimeClaudeCode, status.PreferredRuntime)

	require.NoError(t, s.UpdateOrchestratorStatus(agentmodel.StatusActive))
	status, err = s.GetOrchestratorStatus()
	require.NoError(t, err)
	assert.Equal(t, agentmodel.StatusActive, status.AgentStatus)
}

func TestMemStore_SeedOrchestrator_OverwritesStatus(t *testing.T) {
	s := New()
	s.SeedOrchestrator(agentmodel.OrchestratorStatus{AgentStatus: agentmodel.StatusStarted, PreferredRuntime: agentmodel.RuntimeCodexCLI})

	status, err := s.GetOrchestratorStatus()
	require.NoError(t, err)
	assert.Equal(t, agentmodel.StatusStarted, status.AgentStatus)
	assert.Equal(t, agentmodel.RuntimeCodexCLI, status.PreferredRuntime)
}
