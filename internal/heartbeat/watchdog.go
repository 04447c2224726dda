package heartbeat

import (
	"context"
	"time"

	"github.com/agentmux/agentmux/internal/agentmodel"
	"github.com/agentmux/agentmux/internal/corelog"
	"go.uber.org/zap"
)

// StatusUpdater is the subset of the Storage collaborator the watchdog needs
// to act on a stale finding. Kept separate from agentmodel.Storage so tests
// can provide a narrower fake.
type StatusUpdater interface {
	UpdateAgentStatus(sessionName string, status agentmodel.Status) error
	UpdateOrchestratorStatus(status agentmodel.Status) error
}

// Watchdog periodically calls Store.DetectStaleAgents and transitions every
// finding from active to potentialInactive via the Storage collaborator.
// DetectStaleAgents itself never mutates the file; this is the caller that
// decides to act on its findings.
type Watchdog struct {
	store    *Store
	storage  StatusUpdater
	log      *corelog.Logger
	interval time.Duration
	threshold time.Duration

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewWatchdog constructs a Watchdog. storage may be nil, in which case stale
// findings are only logged, never acted on.
func NewWatchdog(store *Store, storage StatusUpdater, interval, threshold time.Duration, log *corelog.Logger) *Watchdog {
	if log == nil {
		log = corelog.Default()
	}
	if interval <= 0 {
		interval = time.Minute
	}
	return &Watchdog{
		store:     store,
		storage:   storage,
		log:       log,
		interval:  interval,
		threshold: threshold,
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
}

// Start runs the periodic check loop until ctx is cancelled or Stop is
// called.
func (w *Watchdog) Start(ctx context.Context) {
	defer close(w.doneCh)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case <-ticker.C:
			w.CheckOnce()
		}
	}
}

// Stop signals the loop to exit and waits for it to do so.
func (w *Watchdog) Stop() {
	close(w.stopCh)
	<-w.doneCh
}

// CheckOnce runs a single detect-and-transition cycle; exposed for manual
// triggering and tests.
func (w *Watchdog) CheckOnce() {
	stale, err := w.store.DetectStaleAgents(w.threshold)
	if err != nil {
		w.log.Warn("watchdog: stale detection failed", zap.Error(err))
		return
	}
	for _, agentID := range stale {
		w.log.Info("watchdog: agent stale, marking potentialInactive", zap.String("agent_id", agentID))
		if w.storage == nil {
			continue
		}
		var updateErr error
		if agentID == agentmodel.OrchestratorAgentID {
			updateErr = w.storage.UpdateOrchestratorStatus(agentmodel.StatusPotentialInactive)
		} else {
			sessionName := agentID
			if hb, hbErr := w.store.GetAgentHeartbeat(agentID); hbErr == nil && hb.SessionName != "" {
				sessionName = hb.SessionName
			}
			updateErr = w.storage.UpdateAgentStatus(sessionName, agentmodel.StatusPotentialInactive)
		}
		if updateErr != nil {
			w.log.Warn("watchdog: status transition failed, continuing", zap.String("agent_id", agentID), zap.Error(updateErr))
		}
	}
}
