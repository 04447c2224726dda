package heartbeat

import (
	"sync"
	"time"

	"github.com/agentmux/agentmux/internal/coreconfig"
)

// Batcher coalesces heartbeat updates per agentId and flushes them to its
// sink (the Store) on a size or time trigger. Multiple updates for the same
// agentId queued between flushes collapse to the latest.
type Batcher struct {
	sink        flushSink
	sizeTrigger int
	interval    time.Duration

	mu      sync.Mutex
	pending map[string]BatchedUpdate
	timer   *time.Timer
}

func newBatcher(cfg coreconfig.HeartbeatConfig, sink flushSink) *Batcher {
	size := cfg.BatchSizeTrigger
	if size <= 0 {
		size = 50
	}
	interval := cfg.BatchInterval()
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &Batcher{
		sink:        sink,
		sizeTrigger: size,
		interval:    interval,
		pending:     make(map[string]BatchedUpdate),
	}
}

// addUpdate enqueues u, starting the one-shot flush timer on the first
// queued update and flushing immediately once the size trigger is reached.
func (b *Batcher) addUpdate(u BatchedUpdate) {
	b.mu.Lock()
	b.pending[u.AgentID] = u
	if b.timer == nil {
		b.timer = time.AfterFunc(b.interval, b.flush)
	}
	shouldFlushNow := len(b.pending) >= b.sizeTrigger
	b.mu.Unlock()

	if shouldFlushNow {
		b.flush()
	}
}

// flush atomically swaps the pending map for an empty one and hands the
// snapshot to the sink. A no-op if nothing is pending, so a size-triggered
// flush racing the timer's flush is harmless.
func (b *Batcher) flush() {
	b.mu.Lock()
	if len(b.pending) == 0 {
		b.mu.Unlock()
		return
	}
	snapshot := b.pending
	b.pending = make(map[string]BatchedUpdate)
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	b.mu.Unlock()

	b.sink.processBatchedUpdates(snapshot)
}

// Flush forces an immediate flush of whatever is pending.
func (b *Batcher) Flush() { b.flush() }

// PendingCount reports how many distinct agents currently have a queued
// update.
func (b *Batcher) PendingCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

// Stop cancels any pending flush timer without flushing.
func (b *Batcher) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
}
