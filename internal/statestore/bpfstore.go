//go:build linux
// +build linux

package statestore

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/cilium/ebpf"

	xerrors "github.com/vppebpf/cerberus/pkg/errors"
)

// BPFStore is the kernel-shared backend: the same tables the XDP classifier
// reads, pinned under a bpffs directory so a separate control process can
// attach by path alone.
// BPFStore 是内核共享后端：XDP 分类器读取的同一组表，固定在 bpffs 目录下，
// 独立的控制进程仅凭路径即可附加。
type BPFStore struct {
	pinPath  string
	rules    *ebpf.Map
	counters *ebpf.Map
	targets  *ebpf.Map
}

// CreateBPFStore creates and pins fresh tables. Used when the daemon owns the
// table lifecycle (the XDP program is loaded against these pinned maps).
// CreateBPFStore 创建并固定全新的表。当守护进程拥有表生命周期时使用。
func CreateBPFStore(pinPath string, maxRules, queues uint32) (*BPFStore, error) {
	if err := os.MkdirAll(pinPath, 0755); err != nil {
		return nil, fmt.Errorf("create pin path: %w", err)
	}

	rules, err := ebpf.NewMap(&ebpf.MapSpec{
		Name:       TableRules,
		Type:       ebpf.Hash,
		KeySize:    RuleKeySize,
		ValueSize:  RuleValueSize,
		MaxEntries: maxRules,
	})
	if err != nil {
		return nil, xerrors.NewTableError(TableRules, err)
	}

	counters, err := ebpf.NewMap(&ebpf.MapSpec{
		Name:       TableCounters,
		Type:       ebpf.PerCPUArray,
		KeySize:    4,
		ValueSize:  8,
		MaxEntries: NumCounterSlots,
	})
	if err != nil {
		rules.Close()
		return nil, xerrors.NewTableError(TableCounters, err)
	}

	targets, err := ebpf.NewMap(&ebpf.MapSpec{
		Name:       TableRedirectTargets,
		Type:       ebpf.Array,
		KeySize:    4,
		ValueSize:  4,
		MaxEntries: queues,
	})
	if err != nil {
		rules.Close()
		counters.Close()
		return nil, xerrors.NewTableError(TableRedirectTargets, err)
	}

	s := &BPFStore{pinPath: pinPath, rules: rules, counters: counters, targets: targets}
	if err := s.pinAll(); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

// AttachBPFStore attaches to already-pinned tables. Missing tables are fatal:
// the store refuses to initialize rather than limp along half-mapped.
// AttachBPFStore 附加到已固定的表。缺表是致命错误：存储拒绝初始化，
// 而不是在半映射状态下运行。
func AttachBPFStore(pinPath string) (*BPFStore, error) {
	s := &BPFStore{pinPath: pinPath}
	var err error
	if s.rules, err = ebpf.LoadPinnedMap(filepath.Join(pinPath, TableRules), nil); err != nil {
		return nil, xerrors.NewTableError(TableRules, err)
	}
	if s.counters, err = ebpf.LoadPinnedMap(filepath.Join(pinPath, TableCounters), nil); err != nil {
		s.rules.Close()
		return nil, xerrors.NewTableError(TableCounters, err)
	}
	if s.targets, err = ebpf.LoadPinnedMap(filepath.Join(pinPath, TableRedirectTargets), nil); err != nil {
		s.rules.Close()
		s.counters.Close()
		return nil, xerrors.NewTableError(TableRedirectTargets, err)
	}
	return s, nil
}

func (s *BPFStore) pinAll() error {
	if err := s.rules.Pin(filepath.Join(s.pinPath, TableRules)); err != nil {
		return xerrors.NewMapError(TableRules, "pin", err)
	}
	if err := s.counters.Pin(filepath.Join(s.pinPath, TableCounters)); err != nil {
		return xerrors.NewMapError(TableCounters, "pin", err)
	}
	if err := s.targets.Pin(filepath.Join(s.pinPath, TableRedirectTargets)); err != nil {
		return xerrors.NewMapError(TableRedirectTargets, "pin", err)
	}
	return nil
}

// Unpin removes the pinned tables from the filesystem.
// Unpin 从文件系统中移除固定的表。
func (s *BPFStore) Unpin() error {
	_ = s.rules.Unpin()
	_ = s.counters.Unpin()
	_ = s.targets.Unpin()
	return os.RemoveAll(s.pinPath)
}

func (s *BPFStore) Rules() RuleTable             { return &bpfRules{m: s.rules} }
func (s *BPFStore) Counters() CounterTable       { return &bpfCounters{m: s.counters} }
func (s *BPFStore) RedirectTargets() TargetTable { return &bpfTargets{m: s.targets} }

func (s *BPFStore) Close() error {
	var first error
	for _, m := range []*ebpf.Map{s.rules, s.counters, s.targets} {
		if m == nil {
			continue
		}
		if err := m.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

type bpfRules struct {
	m *ebpf.Map
}

func (r *bpfRules) Lookup(key RuleKey) (RuleValue, bool, error) {
	kb := key.Marshal()
	var vb [RuleValueSize]byte
	err := r.m.Lookup(&kb, &vb)
	if errors.Is(err, ebpf.ErrKeyNotExist) {
		return RuleValue{}, false, nil
	}
	if err != nil {
		return RuleValue{}, false, xerrors.NewMapError(TableRules, "lookup", err)
	}
	return UnmarshalRuleValue(vb), true, nil
}

func (r *bpfRules) Upsert(key RuleKey, val RuleValue) error {
	kb := key.Marshal()
	vb := val.Marshal()
	if err := r.m.Update(&kb, &vb, ebpf.UpdateAny); err != nil {
		return xerrors.NewMapError(TableRules, "update", err)
	}
	return nil
}

func (r *bpfRules) Delete(key RuleKey) error {
	kb := key.Marshal()
	err := r.m.Delete(&kb)
	if errors.Is(err, ebpf.ErrKeyNotExist) {
		return nil
	}
	if err != nil {
		return xerrors.NewMapError(TableRules, "delete", err)
	}
	return nil
}

func (r *bpfRules) Iterate() ([]RuleEntry, error) {
	var (
		kb      [RuleKeySize]byte
		vb      [RuleValueSize]byte
		entries []RuleEntry
	)
	it := r.m.Iterate()
	for it.Next(&kb, &vb) {
		entries = append(entries, RuleEntry{Key: UnmarshalRuleKey(kb), Value: UnmarshalRuleValue(vb)})
	}
	if err := it.Err(); err != nil {
		return nil, xerrors.NewMapError(TableRules, "iterate", err)
	}
	return entries, nil
}

type bpfCounters struct {
	m *ebpf.Map
}

// Add is a no-op on this backend. The XDP program owns all counter writes:
// a userspace update would rewrite the whole per-CPU vector and clobber
// increments landing on other CPUs between the read and the write, breaking
// monotonicity. The control path is read-only here; the userspace dataplane
// accounts through the memory backend.
// 此后端的 Add 为空操作。计数器写入完全归 XDP 程序所有：用户态更新会重写
// 整个每 CPU 向量，覆盖读写之间落在其他 CPU 上的递增，破坏单调性。控制
// 路径在此只读；用户态数据平面通过内存后端计数。
func (c *bpfCounters) Add(slot CounterSlot, shard int, delta uint64) {}

// Snapshot sums the per-CPU slots, matching the kernel's write discipline.
func (c *bpfCounters) Snapshot() (CounterSnapshot, error) {
	var snap CounterSnapshot
	for slot := uint32(0); slot < NumCounterSlots; slot++ {
		var values []uint64
		if err := c.m.Lookup(&slot, &values); err != nil {
			return snap, xerrors.NewMapError(TableCounters, "lookup", err)
		}
		for _, v := range values {
			snap[slot] += v
		}
	}
	return snap, nil
}

type bpfTargets struct {
	m *ebpf.Map
}

func (t *bpfTargets) Enable(queue uint32) error {
	val := uint32(1)
	if err := t.m.Update(&queue, &val, ebpf.UpdateAny); err != nil {
		return xerrors.NewMapError(TableRedirectTargets, "update", err)
	}
	return nil
}

func (t *bpfTargets) Disable(queue uint32) error {
	val := uint32(0)
	if err := t.m.Update(&queue, &val, ebpf.UpdateAny); err != nil {
		return xerrors.NewMapError(TableRedirectTargets, "update", err)
	}
	return nil
}

func (t *bpfTargets) Enabled(queue uint32) bool {
	var val uint32
	if err := t.m.Lookup(&queue, &val); err != nil {
		return false
	}
	return val != 0
}
