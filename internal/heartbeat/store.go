// Package heartbeat implements the Heartbeat & Status Store (L5) and its
// Batcher (L6): a single updateAgentHeartbeat entry point, coalesced into
// teamAgentStatus.json via an atomic write-temp-then-rename sequence.
package heartbeat

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"github.com/agentmux/agentmux/internal/agentmodel"
	"github.com/agentmux/agentmux/internal/coreconfig"
	"github.com/agentmux/agentmux/internal/corelog"
	"github.com/agentmux/agentmux/internal/corerr"
	"go.uber.org/zap"
)

// flushSink is the callback interface the Batcher holds instead of a direct
// reference back to Store, keeping the Store-owns-Batcher relationship a
// tree rather than a cycle of shared mutable state.
type flushSink interface {
	processBatchedUpdates(batch map[string]BatchedUpdate)
}

// Store owns the on-disk status file and the Batcher that feeds it.
type Store struct {
	path   string
	locks  *lockRegistry
	log    *corelog.Logger
	batcher *Batcher
}

// NewStore constructs a Store persisting to path (typically
// <AGENTMUX_HOME>/teamAgentStatus.json).
func NewStore(path string, cfg coreconfig.HeartbeatConfig, log *corelog.Logger) *Store {
	if log == nil {
		log = corelog.Default()
	}
	s := &Store{
		path:  path,
		locks: newLockRegistry(),
		log:   log,
	}
	s.batcher = newBatcher(cfg, s)
	return s
}

// UpdateAgentHeartbeat is the single entry point used by every tool call. It
// derives agentId, builds a BatchedUpdate, and hands it to the Batcher;
// persistence happens asynchronously on the next flush trigger.
func (s *Store) UpdateAgentHeartbeat(sessionName, teamMemberID string, status agentmodel.Status) {
	if status == "" {
		status = agentmodel.StatusActive
	}
	agentID := agentmodel.DeriveAgentID(sessionName, teamMemberID)
	s.batcher.addUpdate(BatchedUpdate{
		AgentID:      agentID,
		SessionName:  sessionName,
		TeamMemberID: teamMemberID,
		AgentStatus:  status,
		Timestamp:    time.Now().UTC(),
	})
}

// Flush forces the Batcher to persist whatever is pending right now.
func (s *Store) Flush() { s.batcher.Flush() }

// Close flushes any pending updates and stops the Batcher's flush timer.
// Call this on shutdown; an explicit teardown avoids leaking a running timer
// the way a bare global singleton would.
func (s *Store) Close() {
	s.batcher.Flush()
	s.batcher.Stop()
}

// processBatchedUpdates loads the current file, upserts every update in the
// flushed snapshot, and persists atomically. Persist failures are logged
// here; the Batcher's caller never sees a return value to propagate, per
// the heartbeat-never-throws failure policy.
func (s *Store) processBatchedUpdates(batch map[string]BatchedUpdate) {
	file, err := s.load()
	if err != nil {
		s.log.Warn("heartbeat: status file unreadable or invalid, using defaults", zap.Error(err))
		file = defaultStatusFile()
	}

	now := time.Now().UTC()
	for _, u := range batch {
		rec := s.upsert(file, u)
		rec.AgentStatus = u.AgentStatus
		rec.LastActiveTime = u.Timestamp
		rec.SessionName = u.SessionName
		rec.UpdatedAt = now
	}
	file.Metadata.LastUpdated = now
	file.Metadata.Version = fileVersion

	if err := s.persist(file); err != nil {
		s.log.Error("heartbeat: persist failed", zap.Error(err))
	}
}

func (s *Store) upsert(file *TeamAgentStatusFile, u BatchedUpdate) *AgentRecord {
	if u.AgentID == agentmodel.OrchestratorAgentID {
		if file.Orchestrator == nil {
			file.Orchestrator = &AgentRecord{AgentID: agentmodel.OrchestratorAgentID, CreatedAt: u.Timestamp}
		}
		return file.Orchestrator
	}

	key := u.TeamMemberID
	if key == "" {
		key = u.AgentID
	}
	rec, ok := file.TeamMembers[key]
	if !ok {
		rec = &AgentRecord{AgentID: u.AgentID, TeamMemberID: u.TeamMemberID, CreatedAt: u.Timestamp}
		file.TeamMembers[key] = rec
	}
	return rec
}

func (s *Store) load() (*TeamAgentStatusFile, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return defaultStatusFile(), nil
		}
		return nil, err
	}
	var file TeamAgentStatusFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, err
	}
	if file.TeamMembers == nil {
		file.TeamMembers = make(map[string]*AgentRecord)
	}
	return &file, nil
}

// persist writes file atomically: serialize, write to a uniquely-named temp
// file, fsync, rename over the target. Any failure unlinks the temp file
// best-effort and returns corerr.ErrPersist.
func (s *Store) persist(file *TeamAgentStatusFile) error {
	return s.locks.withPathLock(s.path, func() error {
		data, err := json.MarshalIndent(file, "", "  ")
		if err != nil {
			return fmt.Errorf("%w: marshal status file: %v", corerr.ErrPersist, err)
		}

		if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
			return fmt.Errorf("%w: ensure status dir: %v", corerr.ErrPersist, err)
		}

		tmpPath := fmt.Sprintf("%s.tmp.%d.%d", s.path, time.Now().UnixNano(), rand.Int())
		f, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
		if err != nil {
			return fmt.Errorf("%w: open temp file: %v", corerr.ErrPersist, err)
		}

		if _, err := f.Write(data); err != nil {
			f.Close()
			os.Remove(tmpPath)
			return fmt.Errorf("%w: write temp file: %v", corerr.ErrPersist, err)
		}
		if err := f.Sync(); err != nil {
			f.Close()
			os.Remove(tmpPath)
			return fmt.Errorf("%w: fsync temp file: %v", corerr.ErrPersist, err)
		}
		if err := f.Close(); err != nil {
			os.Remove(tmpPath)
			return fmt.Errorf("%w: close temp file: %v", corerr.ErrPersist, err)
		}
		if err := os.Rename(tmpPath, s.path); err != nil {
			os.Remove(tmpPath)
			return fmt.Errorf("%w: rename temp file: %v", corerr.ErrPersist, err)
		}
		return nil
	})
}

// GetAgentHeartbeat reads through to the file with no write lock; the
// rename in persist is atomic, so a concurrent flush yields either the old
// or the new snapshot, never a torn one.
func (s *Store) GetAgentHeartbeat(agentID string) (*agentmodel.Heartbeat, error) {
	file, err := s.load()
	if err != nil {
		return nil, fmt.Errorf("heartbeat: load status file: %w", err)
	}
	rec := s.lookup(file, agentID)
	if rec == nil {
		return nil, fmt.Errorf("%w: %s", corerr.ErrSessionNotFound, agentID)
	}
	return toHeartbeat(rec), nil
}

// GetAllAgentHeartbeats returns every known agent's current record.
func (s *Store) GetAllAgentHeartbeats() ([]*agentmodel.Heartbeat, error) {
	file, err := s.load()
	if err != nil {
		return nil, fmt.Errorf("heartbeat: load status file: %w", err)
	}
	var out []*agentmodel.Heartbeat
	if file.Orchestrator != nil {
		out = append(out, toHeartbeat(file.Orchestrator))
	}
	for _, rec := range file.TeamMembers {
		out = append(out, toHeartbeat(rec))
	}
	return out, nil
}

func (s *Store) lookup(file *TeamAgentStatusFile, agentID string) *AgentRecord {
	if file.Orchestrator != nil && file.Orchestrator.AgentID == agentID {
		return file.Orchestrator
	}
	for _, rec := range file.TeamMembers {
		if rec.AgentID == agentID {
			return rec
		}
	}
	return nil
}

// DetectStaleAgents returns every agent whose status is active and whose
// lastActiveTime is older than threshold. It does not mutate the file; the
// caller decides whether to transition to potentialInactive.
func (s *Store) DetectStaleAgents(threshold time.Duration) ([]string, error) {
	file, err := s.load()
	if err != nil {
		return nil, fmt.Errorf("heartbeat: load status file: %w", err)
	}
	cutoff := time.Now().Add(-threshold)

	var stale []string
	if file.Orchestrator != nil && file.Orchestrator.AgentStatus == agentmodel.StatusActive && file.Orchestrator.LastActiveTime.Before(cutoff) {
		stale = append(stale, file.Orchestrator.AgentID)
	}
	for _, rec := range file.TeamMembers {
		if rec.AgentStatus == agentmodel.StatusActive && rec.LastActiveTime.Before(cutoff) {
			stale = append(stale, rec.AgentID)
		}
	}
	return stale, nil
}

func toHeartbeat(rec *AgentRecord) *agentmodel.Heartbeat {
	return &agentmodel.Heartbeat{
		AgentID:        rec.AgentID,
		SessionName:    rec.SessionName,
		TeamMemberID:   rec.TeamMemberID,
		AgentStatus:    rec.AgentStatus,
		LastActiveTime: rec.LastActiveTime,
		CreatedAt:      rec.CreatedAt,
		UpdatedAt:      rec.UpdatedAt,
	}
}
