//go:build linux
// +build linux

package daemon

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/vppebpf/cerberus/internal/config"
	"github.com/vppebpf/cerberus/internal/core"
	"github.com/vppebpf/cerberus/internal/ingress"
	"github.com/vppebpf/cerberus/internal/inspect"
	"github.com/vppebpf/cerberus/internal/metrics"
	"github.com/vppebpf/cerberus/internal/statestore"
	"github.com/vppebpf/cerberus/internal/utils/logger"
	"github.com/vppebpf/cerberus/internal/xdp"
	xerrors "github.com/vppebpf/cerberus/pkg/errors"
)

// Run starts the daemon in the configured mode and blocks until the context
// is canceled.
// Run 以配置的模式启动守护进程，并阻塞直到 context 取消。
func Run(ctx context.Context, cfg *config.GlobalConfig) error {
	switch cfg.Base.Mode {
	case "", "user":
		return runUser(ctx, cfg)
	case "xdp":
		return runXDP(ctx, cfg)
	default:
		return fmt.Errorf("%w: unknown mode %q", xerrors.ErrConfigInvalid, cfg.Base.Mode)
	}
}

// runUser drives the userspace dataplane: AF_PACKET capture feeds the
// classifier, inspectors drain the redirect queues.
// runUser 驱动用户态数据平面：AF_PACKET 捕获供给分类器，检查器消费
// 重定向队列。
func runUser(ctx context.Context, cfg *config.GlobalConfig) error {
	log := logger.Get(ctx)

	if len(cfg.Base.Interfaces) == 0 {
		return fmt.Errorf("%w: no interfaces configured", xerrors.ErrConfigInvalid)
	}

	p := NewPipeline(cfg)
	if err := p.ApplyRuleFile(ctx, cfg.Base.RuleFile); err != nil {
		return err
	}

	var wg sync.WaitGroup

	// One inspector per queue; every redirected frame has a consumer.
	// 每个队列一个检查器；每个重定向帧都有消费者。
	if cfg.Inspect.Enabled {
		for i := 0; i < p.Queues.QueueCount(); i++ {
			ins, err := inspect.New(p.Queues.Queue(i), cfg.Inspect.Expression, cfg.Dataplane.PollTimeoutDuration())
			if err != nil {
				return fmt.Errorf("compile inspect expression: %w", err)
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				ins.Run(ctx)
			}()
		}
	}

	// Interfaces fan out across queues round-robin.
	// 接口按轮转方式分摊到各队列。
	sources := make([]*ingress.Source, 0, len(cfg.Base.Interfaces))
	for i, ifname := range cfg.Base.Interfaces {
		src, err := ingress.Open(ifname, i%p.Queues.QueueCount())
		if err != nil {
			for _, s := range sources {
				s.Close()
			}
			return err
		}
		sources = append(sources, src)
	}
	for _, src := range sources {
		src := src
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := src.Run(ctx, func(frame []byte, queue int) {
				p.HandleFrame(frame, queue)
			}); err != nil {
				log.Errorf("⚠️  Capture loop exited: %v", err)
			}
		}()
	}

	startControlLoops(ctx, cfg, p, &wg)

	log.Infof("🚀 Cerberus userspace dataplane running on %v", cfg.Base.Interfaces)
	<-ctx.Done()
	for _, src := range sources {
		src.Close()
	}
	wg.Wait()
	return nil
}

// runXDP loads the kernel classifier and drives its pinned tables. The
// userspace side only synchronizes rules and collects counters here; the
// packet path lives entirely in the kernel.
// runXDP 加载内核分类器并驱动其固定表。此模式下用户态只负责规则同步与
// 计数收集；数据包路径完全在内核中。
func runXDP(ctx context.Context, cfg *config.GlobalConfig) error {
	log := logger.Get(ctx)

	mgr, err := xdp.NewManager(cfg.Base.BPFObjectPath, cfg.Base.BPFPinPath)
	if err != nil {
		return err
	}
	defer mgr.Close()

	if err := mgr.Attach(ctx, cfg.Base.Interfaces); err != nil {
		return err
	}

	store, err := statestore.AttachBPFStore(mgr.PinPath())
	if err != nil {
		return err
	}
	defer store.Close()

	syncer := core.NewSynchronizer(store)
	if cfg.Base.RuleFile != "" {
		rs, lerr := core.LoadRuleSet(cfg.Base.RuleFile)
		if lerr != nil {
			log.Warnf("⚠️  Rule file unavailable: %v", lerr)
		} else if _, _, aerr := syncer.Apply(ctx, rs.Rules); aerr != nil {
			return aerr
		}
	}

	var wg sync.WaitGroup
	if cfg.Metrics.Enabled {
		wg.Add(1)
		go func() {
			defer wg.Done()
			syncer.RunCollector(ctx, cfg.Metrics.CollectIntervalDuration())
		}()
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := metrics.Serve(ctx, cfg.Metrics.Listen); err != nil {
				log.Errorf("⚠️  Metrics exporter failed: %v", err)
			}
		}()
	}

	log.Infof("🚀 Cerberus kernel classifier running on %v", cfg.Base.Interfaces)
	<-ctx.Done()
	wg.Wait()
	return nil
}

// startControlLoops launches the metrics exporter and the counter/gauge
// collector for the userspace mode.
func startControlLoops(ctx context.Context, cfg *config.GlobalConfig, p *Pipeline, wg *sync.WaitGroup) {
	log := logger.Get(ctx)

	if !cfg.Metrics.Enabled {
		return
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		p.Sync.RunCollector(ctx, cfg.Metrics.CollectIntervalDuration())
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(cfg.Metrics.CollectIntervalDuration())
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				p.PublishGauges()
			}
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := metrics.Serve(ctx, cfg.Metrics.Listen); err != nil {
			log.Errorf("⚠️  Metrics exporter failed: %v", err)
		}
	}()
}
