package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Classifier outcome counters, mirrored from the shared counters table
	// 分类器结果计数，从共享计数器表镜像而来
	PacketsTotal = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "cerberus_packets_total",
			Help: "Cumulative packets per classifier outcome",
		},
		[]string{"reason"},
	)

	// Rules metrics
	RulesCount = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "cerberus_rules_count",
			Help: "Number of rules currently installed",
		},
	)
	RuleSyncApplied = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cerberus_rule_sync_applied_total",
			Help: "Total rule changes applied by the synchronizer",
		},
	)
	RuleSyncRejected = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cerberus_rule_sync_rejected_total",
			Help: "Total rule entries rejected during synchronization",
		},
	)

	// Zero-copy path metrics / 零拷贝路径指标
	PoolFreeFrames = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "cerberus_pool_free_frames",
			Help: "Fillable frames remaining in the shared pool",
		},
	)
	RingPending = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "cerberus_ring_pending_descriptors",
			Help: "Descriptors enqueued but not yet polled, per queue",
		},
		[]string{"queue"},
	)
)
