package statestore

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestCountersConcurrentAdd verifies no increments are lost across shards
// TestCountersConcurrentAdd 验证跨分片并发递增不丢计数
func TestCountersConcurrentAdd(t *testing.T) {
	const shards = 4
	const perWorker = 10000
	c := NewStripedCounters(shards)

	var wg sync.WaitGroup
	for w := 0; w < shards; w++ {
		wg.Add(1)
		go func(shard int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				c.Add(SlotDrop, shard, 1)
			}
		}(w)
	}
	wg.Wait()

	snap, err := c.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, uint64(shards*perWorker), snap.Drop())
	assert.Equal(t, uint64(0), snap.Pass())
}

// TestCountersMonotonic verifies snapshots taken during concurrent writes
// never decrease
// TestCountersMonotonic 验证并发写入期间的快照永不回退
func TestCountersMonotonic(t *testing.T) {
	c := NewStripedCounters(2)

	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-done:
				return
			default:
				c.Add(SlotPass, 0, 1)
				c.Add(SlotPass, 1, 1)
			}
		}
	}()

	var last uint64
	for i := 0; i < 5000; i++ {
		snap, err := c.Snapshot()
		require.NoError(t, err)
		assert.GreaterOrEqual(t, snap.Pass(), last)
		last = snap.Pass()
	}
	close(done)
	wg.Wait()
}

// TestCountersShardFolding verifies out-of-range shards still account
// TestCountersShardFolding 验证越界分片仍被计入
func TestCountersShardFolding(t *testing.T) {
	c := NewStripedCounters(2)

	c.Add(SlotError, -1, 3)
	c.Add(SlotError, 99, 4)
	c.Add(CounterSlot(42), 0, 7) // invalid slot is ignored / 非法槽位被忽略

	snap, err := c.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, uint64(7), snap.Error())
}

// TestCounterSlotString verifies slot names used in logs and metrics labels
// TestCounterSlotString 验证日志与指标标签使用的槽位名称
func TestCounterSlotString(t *testing.T) {
	assert.Equal(t, "pass", SlotPass.String())
	assert.Equal(t, "drop", SlotDrop.String())
	assert.Equal(t, "redirect", SlotRedirect.String())
	assert.Equal(t, "error", SlotError.String())
	assert.Equal(t, "unknown", CounterSlot(9).String())
}
