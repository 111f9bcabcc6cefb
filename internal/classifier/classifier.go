// Package classifier implements the per-packet decision function. It is the
// Go model of the XDP program in bpf/cerberus.bpf.c: a total function over a
// fixed-size input with no heap allocation, no recursion and no unbounded
// loop, because its kernel twin runs under verifier acceptance in the
// receive softirq where a hang stalls the whole interface.
// classifier 包实现逐包判定函数。它是 bpf/cerberus.bpf.c 中 XDP 程序的 Go
// 模型：对固定大小输入的全函数，无堆分配、无递归、无无界循环，因为其内核
// 版本在接收软中断中运行并受 verifier 约束，一旦挂起将阻塞整个网卡。
package classifier

import (
	"sync/atomic"

	"github.com/vppebpf/cerberus/internal/statestore"
	"github.com/vppebpf/cerberus/internal/xsk"
)

// Verdict is the terminal action for one packet.
type Verdict uint8

const (
	VerdictPass Verdict = iota
	VerdictDrop
	VerdictRedirect
)

func (v Verdict) String() string {
	switch v {
	case VerdictPass:
		return "pass"
	case VerdictDrop:
		return "drop"
	case VerdictRedirect:
		return "redirect"
	}
	return "unknown"
}

// Fixed header geometry. Offsets are into the raw frame, lengths in bytes.
// 固定报文头几何。偏移基于原始帧，长度以字节计。
const (
	ethHeaderLen   = 14
	etherTypeOff   = 12
	ipv4MinHdrLen  = 20
	ipv4IHLOff     = ethHeaderLen
	ipv4ProtoOff   = ethHeaderLen + 9
	ipv4SrcOff     = ethHeaderLen + 12
	ipv4DstOff     = ethHeaderLen + 16
	minIPv4Frame   = ethHeaderLen + ipv4MinHdrLen
)

const (
	protoICMP = 1
	protoTCP  = 6
)

// Options are the policy knobs of the classifier, all configuration-driven.
type Options struct {
	// Mitigation enables the DDoS posture: ICMP is denied unconditionally,
	// checked before any rule table lookup.
	// Mitigation 启用 DDoS 防护姿态：ICMP 无条件拒绝，且在任何规则表查询之前判定。
	Mitigation bool

	// RedirectAllTCP redirects TCP with no matching rule (the minimal
	// default of the reference program).
	RedirectAllTCP bool

	// PassOnError selects the degraded action for unparseable packets.
	// Default policy is drop.
	PassOnError bool
}

// Classifier makes the accept/drop/redirect decision for every received
// packet. Each terminal branch increments exactly one counter slot before
// returning, so counters and decisions can never disagree.
// Classifier 为每个收到的数据包做出通过/丢弃/重定向判定。每个终止分支在
// 返回前恰好递增一个计数器槽位，因此计数与判定永不失配。
type Classifier struct {
	rules    statestore.RuleTable
	counters statestore.CounterTable
	targets  statestore.TargetTable
	queues   *xsk.Manager

	mitigation  atomic.Bool
	redirectTCP bool
	passOnError bool
}

// New wires the classifier to the shared store and the redirect queues.
func New(store statestore.Store, queues *xsk.Manager, opts Options) *Classifier {
	c := &Classifier{
		rules:       store.Rules(),
		counters:    store.Counters(),
		targets:     store.RedirectTargets(),
		queues:      queues,
		redirectTCP: opts.RedirectAllTCP,
		passOnError: opts.PassOnError,
	}
	c.mitigation.Store(opts.Mitigation)
	return c
}

// SetMitigation toggles the mitigation posture at runtime.
func (c *Classifier) SetMitigation(on bool) {
	c.mitigation.Store(on)
}

// MitigationActive reports the current posture.
func (c *Classifier) MitigationActive() bool {
	return c.mitigation.Load()
}

// Classify decides the fate of one raw frame received on the given queue.
// Malformed input is never fatal: it is counted as an error and degraded to
// the configured safe default. The function never panics and never blocks.
// Classify 判定给定队列上收到的一个原始帧的去向。畸形输入绝不致命：
// 计入错误后降级为配置的安全默认动作。该函数永不 panic、永不阻塞。
func (c *Classifier) Classify(frame []byte, queue int) Verdict {
	// Link-layer bounds / 链路层边界
	if len(frame) < ethHeaderLen {
		return c.abort(queue)
	}

	// Non-IPv4 passes through unconditionally; policy scope is IPv4.
	// 非 IPv4 无条件放行；策略范围为 IPv4。
	if frame[etherTypeOff] != 0x08 || frame[etherTypeOff+1] != 0x00 {
		return c.pass(queue)
	}

	// Network-layer bounds / 网络层边界
	if len(frame) < minIPv4Frame {
		return c.abort(queue)
	}
	ihl := int(frame[ipv4IHLOff]&0x0f) * 4
	if ihl < ipv4MinHdrLen || len(frame) < ethHeaderLen+ihl {
		return c.abort(queue)
	}

	proto := frame[ipv4ProtoOff]

	// Highest-frequency attack shape first: mitigation denies ICMP without
	// touching the rule table.
	// 最高频的攻击形态优先：防护姿态下拒绝 ICMP，无需查表。
	if proto == protoICMP && c.mitigation.Load() {
		return c.drop(queue)
	}

	srcIP := be32(frame[ipv4SrcOff:])
	dstIP := be32(frame[ipv4DstOff:])

	// Destination port drives the minimal match keys; frames without a
	// parseable transport header match on port 0.
	// 目的端口驱动最小匹配键；无法解析传输层头的帧按端口 0 匹配。
	var dstPort uint16
	if l4 := ethHeaderLen + ihl; len(frame) >= l4+4 {
		dstPort = be16(frame[l4+2:])
	}

	// Bounded exact-match sequence, most specific first. At most six
	// lookups, no loops over table contents.
	// 有界精确匹配序列，先最具体。最多六次查询，绝不遍历表内容。
	if val, ok := c.lookupRule(srcIP, dstIP, proto, dstPort); ok {
		switch val.Action {
		case statestore.ActionDeny:
			return c.drop(queue)
		case statestore.ActionRedirect:
			return c.redirect(frame, queue)
		default:
			return c.pass(queue)
		}
	}

	// Minimal default: TCP goes to the zero-copy path for inspection.
	// 最小默认策略：TCP 进入零拷贝路径接受检查。
	if proto == protoTCP && c.redirectTCP {
		return c.redirect(frame, queue)
	}

	return c.pass(queue)
}

// lookupRule tries the candidate keys the rule compiler guarantees are the
// only installable shapes: each address shape (src+dst, dst-only, wildcard)
// with the packet's port and with the any-port key. Address specificity
// outranks port presence. When the packet has no parseable port the two
// lookups per shape coincide and are done once.
// lookupRule 探测规则编译器保证的全部可安装键形：每种地址形态（源+目的、
// 仅目的、通配）各探测报文端口键和任意端口键。地址具体性优先于端口存在性。
// 报文无可解析端口时每种形态的两次探测重合，只做一次。
func (c *Classifier) lookupRule(srcIP, dstIP uint32, proto uint8, dstPort uint16) (statestore.RuleValue, bool) {
	var keys [6]statestore.RuleKey
	n := 0
	for _, shape := range [3]statestore.RuleKey{
		{SrcIP: srcIP, SrcPrefix: 32, DstIP: dstIP, DstPrefix: 32, Proto: proto},
		{DstIP: dstIP, DstPrefix: 32, Proto: proto},
		{Proto: proto},
	} {
		withPort := shape
		withPort.PortLo = dstPort
		withPort.PortHi = dstPort
		keys[n] = withPort
		n++
		if dstPort != 0 {
			keys[n] = shape
			n++
		}
	}
	for i := 0; i < n; i++ {
		if val, ok, err := c.rules.Lookup(keys[i]); err == nil && ok {
			return val, true
		}
	}
	return statestore.RuleValue{}, false
}

// redirect hands the frame to the zero-copy path. With no fillable frame, no
// attached consumer or a full ring it degrades to drop and counts an error:
// throughput over completeness under overload, never a blocked softirq.
// redirect 将帧交给零拷贝路径。无可填充帧、无挂载消费者或环已满时降级为
// 丢弃并计入错误：过载下吞吐优先于完整性，绝不阻塞软中断。
func (c *Classifier) redirect(frame []byte, queue int) Verdict {
	q := c.queues.Queue(queue)
	if q == nil || !c.targets.Enabled(uint32(queue)) {
		c.counters.Add(statestore.SlotError, queue, 1)
		return VerdictDrop
	}
	if err := q.Enqueue(frame); err != nil {
		c.counters.Add(statestore.SlotError, queue, 1)
		return VerdictDrop
	}
	c.counters.Add(statestore.SlotRedirect, queue, 1)
	return VerdictRedirect
}

func (c *Classifier) pass(queue int) Verdict {
	c.counters.Add(statestore.SlotPass, queue, 1)
	return VerdictPass
}

func (c *Classifier) drop(queue int) Verdict {
	c.counters.Add(statestore.SlotDrop, queue, 1)
	return VerdictDrop
}

// abort counts a parse error and applies the degraded default action.
func (c *Classifier) abort(queue int) Verdict {
	c.counters.Add(statestore.SlotError, queue, 1)
	if c.passOnError {
		return VerdictPass
	}
	return VerdictDrop
}

func be16(b []byte) uint16 {
	return uint16(b[0])<<8 | uint16(b[1])
}

func be32(b []byte) uint32 {
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}
