package heartbeat

import (
	"sync"
	"testing"
	"time"

	"github.com/agentmux/agentmux/internal/agentmodel"
	"github.com/agentmux/agentmux/internal/coreconfig"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSink struct {
	mu      sync.Mutex
	batches []map[string]BatchedUpdate
}

func (f *fakeSink) processBatchedUpdates(batch map[string]BatchedUpdate) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batches = append(f.batches, batch)
}

func (f *fakeSink) batchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.batches)
}

func (f *fakeSink) lastBatch() map[string]BatchedUpdate {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.batches) == 0 {
		return nil
	}
	return f.batches[len(f.batches)-1]
}

func smallBatchConfig() coreconfig.HeartbeatConfig {
	return coreconfig.HeartbeatConfig{BatchSizeTrigger: 50, BatchIntervalMs: 20_000}
}

func TestBatcher_CoalescesSameAgentToLatest(t *testing.T) {
	sink := &fakeSink{}
	b := newBatcher(smallBatchConfig(), sink)

	b.addUpdate(BatchedUpdate{AgentID: "a1", AgentStatus: agentmodel.StatusStarted, Timestamp: time.Now()})
	b.addUpdate(BatchedUpdate{AgentID: "a1", AgentStatus: agentmodel.StatusActive, Timestamp: time.Now().Add(time.Second)})
	assert.Equal(t, 1, b.PendingCount())

	b.Flush()
	require.Equal(t, 1, sink.batchCount())
	batch := sink.lastBatch()
	require.Len(t, batch, 1)
	assert.Equal(t, agentmodel.StatusActive, batch["a1"].AgentStatus)
}

func TestBatcher_SizeTriggerFlushesAutomatically(t *testing.T) {
	sink := &fakeSink{}
	cfg := coreconfig.HeartbeatConfig{BatchSizeTrigger: 3, BatchIntervalMs: 20_000}
	b := newBatcher(cfg, sink)

	b.addUpdate(BatchedUpdate{AgentID: "a1"})
	b.addUpdate(BatchedUpdate{AgentID: "a2"})
	assert.Equal(t, 0, sink.batchCount())
	b.addUpdate(BatchedUpdate{AgentID: "a3"})

	require.Equal(t, 1, sink.batchCount())
	assert.Len(t, sink.lastBatch(), 3)
	assert.Equal(t, 0, b.PendingCount())
}

func TestBatcher_TimeTriggerFlushesAfterInterval(t *testing.T) {
	sink := &fakeSink{}
	cfg := coreconfig.HeartbeatConfig{BatchSizeTrigger: 50, BatchIntervalMs: 20}
	b := newBatcher(cfg, sink)

	b.addUpdate(BatchedUpdate{AgentID: "a1"})

	require.Eventually(t, func() bool {
		return sink.batchCount() == 1
	}, time.Second, 5*time.Millisecond)
}

func TestBatcher_StopCancelsTimerWithoutFlushing(t *testing.T) {
	sink := &fakeSink{}
	cfg := coreconfig.HeartbeatConfig{BatchSizeTrigger: 50, BatchIntervalMs: 20}
	b := newBatcher(cfg, sink)

	b.addUpdate(BatchedUpdate{AgentID: "a1"})
	b.Stop()

	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, 0, sink.batchCount(), "stopped timer must not flush")

	b.Flush()
	assert.Equal(t, 1, sink.batchCount())
}

func TestBatcher_FlushNoOpWhenEmpty(t *testing.T) {
	sink := &fakeSink{}
	b := newBatcher(smallBatchConfig(), sink)
	b.Flush()
	assert.Equal(t, 0, sink.batchCount())
}
