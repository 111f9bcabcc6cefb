// Package daemon assembles the userspace dataplane: shared state store,
// frame pool, classifier, synchronizer, and the consumers that drain the
// zero-copy path.
// daemon 包组装用户态数据平面：共享状态存储、帧池、分类器、同步器，
// 以及消费零拷贝路径的各个消费者。
package daemon

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/vppebpf/cerberus/internal/classifier"
	"github.com/vppebpf/cerberus/internal/config"
	"github.com/vppebpf/cerberus/internal/core"
	"github.com/vppebpf/cerberus/internal/metrics"
	"github.com/vppebpf/cerberus/internal/statestore"
	"github.com/vppebpf/cerberus/internal/utils/logger"
	"github.com/vppebpf/cerberus/internal/xsk"
)

// Pipeline wires a classifier to an in-memory store and the zero-copy
// receive path. One pipeline serves one daemon process; the xdp mode drives
// pinned kernel tables instead and does not build a pipeline.
// Pipeline 将分类器与内存存储及零拷贝接收路径连接起来。一个守护进程对应
// 一条流水线；xdp 模式直接驱动固定的内核表，不构建流水线。
type Pipeline struct {
	Store      statestore.Store
	Queues     *xsk.Manager
	Classifier *classifier.Classifier
	Sync       *core.Synchronizer
}

// NewPipeline builds the userspace dataplane from configuration. All
// redirect targets start enabled: every queue gets an in-process consumer.
func NewPipeline(cfg *config.GlobalConfig) *Pipeline {
	queues := xsk.NewManager(xsk.Config{
		Queues:         cfg.Dataplane.Queues,
		FramesPerQueue: cfg.Dataplane.FramesPerQueue,
		FrameSize:      cfg.Dataplane.FrameSize,
		RingSize:       cfg.Dataplane.RingSize,
		BatchSize:      cfg.Dataplane.BatchSize,
	})

	store := statestore.NewMemStore(queues.QueueCount(), queues.QueueCount())
	for i := 0; i < queues.QueueCount(); i++ {
		_ = store.RedirectTargets().Enable(uint32(i))
	}

	cls := classifier.New(store, queues, classifier.Options{
		Mitigation:     cfg.Base.Mitigation,
		RedirectAllTCP: cfg.Base.RedirectAllTCP,
		PassOnError:    cfg.Base.PassOnError,
	})

	return &Pipeline{
		Store:      store,
		Queues:     queues,
		Classifier: cls,
		Sync:       core.NewSynchronizer(store),
	}
}

// HandleFrame runs one captured frame through the classifier. The frame
// buffer may be reused by the caller after return; redirected payloads have
// already been copied into the pool.
func (p *Pipeline) HandleFrame(frame []byte, queue int) classifier.Verdict {
	return p.Classifier.Classify(frame, queue)
}

// ApplyRuleFile loads a rule snapshot from disk and reconciles it into the
// store. A missing file is not an error; the daemon starts with an empty
// table.
// ApplyRuleFile 从磁盘加载规则快照并调和进存储。文件不存在不算错误；
// 守护进程以空表启动。
func (p *Pipeline) ApplyRuleFile(ctx context.Context, path string) error {
	if path == "" {
		return nil
	}
	rs, err := core.LoadRuleSet(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logger.Get(ctx).Warnf("⚠️  Rule file %s not found, starting with empty table", path)
			return nil
		}
		return fmt.Errorf("load rule file: %w", err)
	}
	_, _, err = p.Sync.Apply(ctx, rs.Rules)
	return err
}

// PublishGauges pushes pool and ring occupancy to the prometheus gauges.
func (p *Pipeline) PublishGauges() {
	metrics.PoolFreeFrames.Set(float64(p.Queues.Pool().FreeFrames()))
	for i := 0; i < p.Queues.QueueCount(); i++ {
		metrics.RingPending.WithLabelValues(fmt.Sprintf("%d", i)).
			Set(float64(p.Queues.Queue(i).Pending()))
	}
}
