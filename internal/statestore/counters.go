package statestore

import "sync/atomic"

// paddedCounter keeps each slot on its own cache line so that concurrent
// shards never false-share.
// paddedCounter 让每个槽位独占缓存行，避免并发分片之间的伪共享。
type paddedCounter struct {
	v atomic.Uint64
	_ [56]byte
}

// StripedCounters is the in-memory analogue of a BPF PERCPU_ARRAY: one
// stripe of four slots per shard, written lock-free by the hot path and
// summed on read. The visible value of a slot is the sum of all stripes at
// the time of the read and never decreases.
// StripedCounters 是 BPF PERCPU_ARRAY 的内存版本：每个分片一条含四个槽位的
// 条带，热路径无锁写入，读取时求和。槽位的可见值是读取时所有条带之和，
// 且永不减少。
type StripedCounters struct {
	shards  int
	stripes []paddedCounter // shards × NumCounterSlots
}

// NewStripedCounters creates a counter set with one stripe per shard.
// Shard count is typically the receive queue count.
func NewStripedCounters(shards int) *StripedCounters {
	if shards < 1 {
		shards = 1
	}
	return &StripedCounters{
		shards:  shards,
		stripes: make([]paddedCounter, shards*NumCounterSlots),
	}
}

// Add increments one slot on the given shard. Out-of-range shards fold onto
// a valid stripe rather than fail: accounting must never be lost.
// Add 在给定分片上递增一个槽位。越界分片折叠到有效条带而不是失败：
// 计数绝不能丢失。
func (c *StripedCounters) Add(slot CounterSlot, shard int, delta uint64) {
	if slot >= NumCounterSlots {
		return
	}
	if shard < 0 || shard >= c.shards {
		shard = 0
	}
	c.stripes[shard*NumCounterSlots+int(slot)].v.Add(delta)
}

// Snapshot sums every stripe per slot.
func (c *StripedCounters) Snapshot() (CounterSnapshot, error) {
	var snap CounterSnapshot
	for shard := 0; shard < c.shards; shard++ {
		base := shard * NumCounterSlots
		for slot := 0; slot < NumCounterSlots; slot++ {
			snap[slot] += c.stripes[base+slot].v.Load()
		}
	}
	return snap, nil
}
