package core

import (
	"context"
	"time"

	"github.com/vppebpf/cerberus/internal/metrics"
	"github.com/vppebpf/cerberus/internal/statestore"
	"github.com/vppebpf/cerberus/internal/utils/logger"
)

// Synchronizer is the only path by which the control process affects
// classifier behavior or observes aggregate statistics. It never runs inside
// the packet hot path.
// Synchronizer 是控制进程影响分类器行为或观察聚合统计的唯一通道。
// 它绝不运行在数据包热路径中。
type Synchronizer struct {
	store statestore.Store
}

// NewSynchronizer binds the synchronizer to a shared store backend.
func NewSynchronizer(store statestore.Store) *Synchronizer {
	return &Synchronizer{store: store}
}

// Apply reconciles a full rule snapshot into the store: a replace-by-diff,
// not an append log. New and changed entries are upserted, entries absent
// from the snapshot are deleted. Malformed entries are counted as rejected
// and skipped; they never abort the remainder of the batch. Applying the
// same valid snapshot twice yields zero changes on the second call.
// Apply 将完整规则快照调和进存储：按差异替换，而非追加日志。新增和变更的
// 条目被写入，快照中不存在的条目被删除。畸形条目计入 rejected 并跳过，
// 绝不中止批次的其余部分。对同一有效快照连续应用两次，第二次零变更。
func (s *Synchronizer) Apply(ctx context.Context, snapshot []Rule) (applied, rejected int, err error) {
	log := logger.Get(ctx)

	desired := make(map[statestore.RuleKey]statestore.RuleValue, len(snapshot))
	for i, r := range snapshot {
		key, val, cerr := r.Compile()
		if cerr != nil {
			rejected++
			log.Warnf("⚠️  Rule %d rejected: %v", i, cerr)
			continue
		}
		desired[key] = val
	}

	rules := s.store.Rules()
	current, err := rules.Iterate()
	if err != nil {
		return applied, rejected, err
	}

	// Delete entries present in the store but absent from the snapshot.
	// 删除存在于存储中但快照中不存在的条目。
	currentByKey := make(map[statestore.RuleKey]statestore.RuleValue, len(current))
	for _, e := range current {
		currentByKey[e.Key] = e.Value
		if _, ok := desired[e.Key]; ok {
			continue
		}
		if derr := rules.Delete(e.Key); derr != nil {
			log.Errorf("⚠️  Failed to delete rule %s: %v", Describe(e), derr)
			continue
		}
		applied++
	}

	// Upsert new and changed entries / 写入新增和变更的条目
	for key, val := range desired {
		if cur, ok := currentByKey[key]; ok && cur == val {
			continue
		}
		if uerr := rules.Upsert(key, val); uerr != nil {
			log.Errorf("⚠️  Failed to upsert rule: %v", uerr)
			continue
		}
		applied++
	}

	metrics.RuleSyncApplied.Add(float64(applied))
	metrics.RuleSyncRejected.Add(float64(rejected))
	metrics.RulesCount.Set(float64(len(desired)))

	log.Infof("✅ Rule sync complete: %d applied, %d rejected, %d total", applied, rejected, len(desired))
	return applied, rejected, nil
}

// CollectCounters reads the cumulative counter set without resetting it.
// Callers compute deltas across polling intervals themselves.
// CollectCounters 读取累计计数器集合，不做清零。调用方自行跨轮询周期求差。
func (s *Synchronizer) CollectCounters() (statestore.CounterSnapshot, error) {
	return s.store.Counters().Snapshot()
}

// RunCollector periodically publishes counter snapshots to the prometheus
// gauges until the context is canceled. Runs on the control schedule, never
// in the hot path.
// RunCollector 周期性地将计数器快照发布到 prometheus 指标，直到 context
// 取消。按控制面节奏运行，绝不在热路径中。
func (s *Synchronizer) RunCollector(ctx context.Context, interval time.Duration) {
	log := logger.Get(ctx)
	if interval <= 0 {
		interval = 10 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			snap, err := s.CollectCounters()
			if err != nil {
				log.Errorf("⚠️  Counter collection failed: %v", err)
				continue
			}
			for slot := statestore.CounterSlot(0); slot < statestore.NumCounterSlots; slot++ {
				metrics.PacketsTotal.WithLabelValues(slot.String()).Set(float64(snap[slot]))
			}
		}
	}
}
