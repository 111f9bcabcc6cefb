// Package statestore implements the shared key/value tables visible to both
// the packet classifier and the rule synchronizer. Two backends exist: an
// in-memory store used by the userspace dataplane and tests, and a BPF map
// store pinned under bpffs for the real kernel path.
// statestore 包实现分类器和规则同步器共同可见的共享键值表。提供两种后端：
// 用户态数据平面和测试使用的内存存储，以及为真实内核路径固定在 bpffs 下的
// BPF Map 存储。
package statestore

// RuleTable provides lookup and mutation of the rule table. Lookup is
// read-only and never blocks; a lookup racing an upsert observes either the
// old or the new value, never a partial one.
// RuleTable 提供规则表的查询和修改。Lookup 只读且永不阻塞；与 Upsert 并发
// 的查询只会观察到旧值或新值，绝不会是部分值。
type RuleTable interface {
	Lookup(key RuleKey) (RuleValue, bool, error)
	Upsert(key RuleKey, val RuleValue) error
	Delete(key RuleKey) error

	// Iterate returns a snapshot-consistent listing of the table contents.
	// Iterate 返回表内容的快照一致性列表。
	Iterate() ([]RuleEntry, error)
}

// CounterTable accumulates per-CPU outcome counters. Add must be safe for
// concurrent use from many classifier invocations without a shared lock;
// Snapshot sums all per-CPU partials and is monotonically non-decreasing.
// CounterTable 累加每 CPU 的结果计数器。Add 必须在无共享锁的情况下支持
// 多个分类器调用并发使用；Snapshot 对所有每 CPU 部分和求和，单调不减。
type CounterTable interface {
	Add(slot CounterSlot, shard int, delta uint64)
	Snapshot() (CounterSnapshot, error)
}

// TargetTable records which receive queues have an attached zero-copy
// consumer, mirroring the kernel's socket redirection map.
// TargetTable 记录哪些接收队列挂载了零拷贝消费者，对应内核的 socket 重定向表。
type TargetTable interface {
	Enable(queue uint32) error
	Disable(queue uint32) error
	Enabled(queue uint32) bool
}

// Store bundles the named tables of the minimal core.
// Store 汇集最小核心的各命名表。
type Store interface {
	Rules() RuleTable
	Counters() CounterTable
	RedirectTargets() TargetTable
	Close() error
}
