package statestore

import (
	"bytes"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	xerrors "github.com/vppebpf/cerberus/pkg/errors"
)

// MemStore is the in-memory backend. Rule reads go through an atomic pointer
// to an immutable map, so the read side never takes a lock and never sees a
// half-applied write; mutations copy the map and publish it in one swap.
// Writes are rare (control path only), so the copy cost is acceptable.
// MemStore 是内存后端。规则读取通过指向不可变 map 的原子指针进行，读侧
// 永不加锁，也永远不会看到写到一半的状态；修改会复制 map 并一次性发布。
// 写入很少（仅控制路径），复制成本可以接受。
type MemStore struct {
	rules    memRules
	counters *StripedCounters
	targets  memTargets
}

// NewMemStore creates an in-memory store with the given counter shard count
// and redirect queue count.
func NewMemStore(shards, queues int) *MemStore {
	if queues < 1 {
		queues = 1
	}
	s := &MemStore{
		counters: NewStripedCounters(shards),
		targets:  memTargets{slots: make([]atomic.Uint32, queues)},
	}
	empty := make(map[RuleKey]RuleValue)
	s.rules.m.Store(&empty)
	return s
}

func (s *MemStore) Rules() RuleTable            { return &s.rules }
func (s *MemStore) Counters() CounterTable      { return s.counters }
func (s *MemStore) RedirectTargets() TargetTable { return &s.targets }
func (s *MemStore) Close() error                { return nil }

type memRules struct {
	mu sync.Mutex // serializes writers only / 仅序列化写入方
	m  atomic.Pointer[map[RuleKey]RuleValue]
}

func (r *memRules) Lookup(key RuleKey) (RuleValue, bool, error) {
	m := *r.m.Load()
	v, ok := m[key]
	return v, ok, nil
}

func (r *memRules) Upsert(key RuleKey, val RuleValue) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	old := *r.m.Load()
	next := make(map[RuleKey]RuleValue, len(old)+1)
	for k, v := range old {
		next[k] = v
	}
	next[key] = val
	r.m.Store(&next)
	return nil
}

func (r *memRules) Delete(key RuleKey) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	old := *r.m.Load()
	if _, ok := old[key]; !ok {
		return nil
	}
	next := make(map[RuleKey]RuleValue, len(old))
	for k, v := range old {
		if k != key {
			next[k] = v
		}
	}
	r.m.Store(&next)
	return nil
}

// Iterate lists the published map. The snapshot is the map version current
// at call time; later writes publish new versions and are not observed.
// Iterate 列出已发布的 map。快照为调用时的 map 版本；之后的写入发布新版本，
// 不会被观察到。
func (r *memRules) Iterate() ([]RuleEntry, error) {
	m := *r.m.Load()
	entries := make([]RuleEntry, 0, len(m))
	for k, v := range m {
		entries = append(entries, RuleEntry{Key: k, Value: v})
	}
	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i].Key.Marshal(), entries[j].Key.Marshal()
		return bytes.Compare(a[:], b[:]) < 0
	})
	return entries, nil
}

type memTargets struct {
	slots []atomic.Uint32
}

func (t *memTargets) Enable(queue uint32) error {
	if int(queue) >= len(t.slots) {
		return fmt.Errorf("%w: queue %d out of range", xerrors.ErrTableUnavailable, queue)
	}
	t.slots[queue].Store(1)
	return nil
}

func (t *memTargets) Disable(queue uint32) error {
	if int(queue) >= len(t.slots) {
		return fmt.Errorf("%w: queue %d out of range", xerrors.ErrTableUnavailable, queue)
	}
	t.slots[queue].Store(0)
	return nil
}

func (t *memTargets) Enabled(queue uint32) bool {
	if int(queue) >= len(t.slots) {
		return false
	}
	return t.slots[queue].Load() != 0
}
