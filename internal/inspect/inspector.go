// Package inspect is the in-repo consumer of the zero-copy receive path: it
// drains redirected packets through poll/release, decodes them, and applies
// an optional match expression. A production deployment would put its deep
// inspection engine behind this same interface.
// inspect 包是零拷贝接收路径的仓内消费者：通过 poll/release 取出重定向的
// 数据包并解码，再应用可选的匹配表达式。生产部署会把深度检查引擎放在同一
// 接口之后。
package inspect

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"

	"github.com/vppebpf/cerberus/internal/utils/logger"
	"github.com/vppebpf/cerberus/internal/xsk"
)

// Env is the expression environment evaluated per redirected packet.
// Env 是针对每个重定向数据包求值的表达式环境。
type Env struct {
	SrcIP   string
	DstIP   string
	SrcPort int
	DstPort int
	Proto   string
	Len     int
}

// Inspector consumes one rx queue. Every polled frame is released exactly
// once, match or not; holding frames would starve the pool.
// Inspector 消费一个接收队列。每个取出的帧无论是否命中都恰好释放一次；
// 滞留帧会耗尽帧池。
type Inspector struct {
	queue   *xsk.RxQueue
	program *vm.Program
	timeout time.Duration

	processed atomic.Uint64
	matched   atomic.Uint64
}

// New compiles the optional match expression and binds the inspector to a
// queue. An empty expression matches nothing and the inspector only recycles
// frames.
func New(queue *xsk.RxQueue, expression string, timeout time.Duration) (*Inspector, error) {
	ins := &Inspector{queue: queue, timeout: timeout}
	if expression != "" {
		program, err := expr.Compile(expression, expr.Env(Env{}), expr.AsBool())
		if err != nil {
			return nil, err
		}
		ins.program = program
	}
	return ins, nil
}

// Run drains the queue until the context is canceled.
func (ins *Inspector) Run(ctx context.Context) {
	log := logger.Get(ctx)
	log.Infof("🔎 Inspector started on queue %d", ins.queue.ID())
	for ctx.Err() == nil {
		frames := ins.queue.Poll(ins.timeout)
		for _, f := range frames {
			ins.inspect(ctx, f.Data)
			if err := ins.queue.Release(f); err != nil {
				log.Errorf("⚠️  Frame release failed: %v", err)
			}
		}
	}
	log.Infof("🔎 Inspector stopped on queue %d (processed=%d matched=%d)",
		ins.queue.ID(), ins.processed.Load(), ins.matched.Load())
}

// Inspect decodes one packet and evaluates the match expression. Exported
// for reuse by callers that manage their own poll loop.
func (ins *Inspector) Inspect(ctx context.Context, data []byte) bool {
	return ins.inspect(ctx, data)
}

func (ins *Inspector) inspect(ctx context.Context, data []byte) bool {
	ins.processed.Add(1)
	if ins.program == nil {
		return false
	}

	// Default decode copies out of the shared frame, so evaluation stays
	// valid after the frame is released.
	// 默认解码会从共享帧中复制数据，因此帧释放后求值仍然有效。
	pkt := gopacket.NewPacket(data, layers.LayerTypeEthernet, gopacket.Default)
	env := buildEnv(pkt, len(data))

	out, err := expr.Run(ins.program, env)
	if err != nil {
		return false
	}
	match, ok := out.(bool)
	if !ok || !match {
		return false
	}

	ins.matched.Add(1)
	logger.Get(ctx).Infof("🚨 Match: %s:%d -> %s:%d proto=%s len=%d",
		env.SrcIP, env.SrcPort, env.DstIP, env.DstPort, env.Proto, env.Len)
	return true
}

// Stats reports processed and matched packet counts.
func (ins *Inspector) Stats() (processed, matched uint64) {
	return ins.processed.Load(), ins.matched.Load()
}

func buildEnv(pkt gopacket.Packet, length int) Env {
	env := Env{Len: length}

	if ipLayer := pkt.Layer(layers.LayerTypeIPv4); ipLayer != nil {
		ip, _ := ipLayer.(*layers.IPv4)
		env.SrcIP = ip.SrcIP.String()
		env.DstIP = ip.DstIP.String()
		env.Proto = ip.Protocol.String()
	}
	if tcpLayer := pkt.Layer(layers.LayerTypeTCP); tcpLayer != nil {
		tcp, _ := tcpLayer.(*layers.TCP)
		env.SrcPort = int(tcp.SrcPort)
		env.DstPort = int(tcp.DstPort)
	} else if udpLayer := pkt.Layer(layers.LayerTypeUDP); udpLayer != nil {
		udp, _ := udpLayer.(*layers.UDP)
		env.SrcPort = int(udp.SrcPort)
		env.DstPort = int(udp.DstPort)
	}
	return env
}
