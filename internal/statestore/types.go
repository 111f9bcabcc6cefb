package statestore

import "encoding/binary"

// Table names pinned under the bpffs mount. The kernel classifier and the
// rule synchronizer may run in separate processes; both attach to the same
// underlying tables by these names, with no handshake protocol.
// 固定在 bpffs 挂载点下的表名。内核分类器和规则同步器可能运行在不同进程中，
// 双方通过这些表名附加到同一底层表，无需握手协议。
const (
	TableRules           = "rules"
	TableCounters        = "counters"
	TableRedirectTargets = "redirect_targets"
)

// DefaultPinPath is the conventional bpffs directory for the shared tables.
const DefaultPinPath = "/sys/fs/bpf/cerberus"

// Fixed binary sizes of the rule table layout, shared with bpf/cerberus.bpf.c.
// 规则表布局的固定二进制大小，与 bpf/cerberus.bpf.c 共享。
const (
	RuleKeySize   = 16
	RuleValueSize = 8
)

// CounterSlot indexes one outcome reason in the counters table.
// CounterSlot 索引计数器表中的一个结果原因。
type CounterSlot uint32

const (
	SlotPass     CounterSlot = 0
	SlotDrop     CounterSlot = 1
	SlotRedirect CounterSlot = 2
	SlotError    CounterSlot = 3

	NumCounterSlots = 4
)

func (s CounterSlot) String() string {
	switch s {
	case SlotPass:
		return "pass"
	case SlotDrop:
		return "drop"
	case SlotRedirect:
		return "redirect"
	case SlotError:
		return "error"
	}
	return "unknown"
}

// Rule actions / 规则动作
const (
	ActionAllow    uint8 = 1
	ActionDeny     uint8 = 2
	ActionRedirect uint8 = 3
)

// RuleKey is the exact-match key of one rule table entry. Address prefixes
// are carried in the key so that longest-prefix matching can be layered on
// later without changing the layout; the minimal core matches keys exactly.
// RuleKey 是规则表条目的精确匹配键。地址前缀长度包含在键中，以便后续叠加
// 最长前缀匹配而不改变布局；最小核心按键精确匹配。
type RuleKey struct {
	SrcIP     uint32
	DstIP     uint32
	SrcPrefix uint8
	DstPrefix uint8
	Proto     uint8
	PortLo    uint16
	PortHi    uint16
}

// Marshal encodes the key in the fixed little-endian layout shared with the
// kernel program.
func (k RuleKey) Marshal() [RuleKeySize]byte {
	var b [RuleKeySize]byte
	binary.LittleEndian.PutUint32(b[0:4], k.SrcIP)
	binary.LittleEndian.PutUint32(b[4:8], k.DstIP)
	b[8] = k.SrcPrefix
	b[9] = k.DstPrefix
	b[10] = k.Proto
	// b[11] is padding / b[11] 为填充字节
	binary.LittleEndian.PutUint16(b[12:14], k.PortLo)
	binary.LittleEndian.PutUint16(b[14:16], k.PortHi)
	return b
}

// UnmarshalRuleKey decodes a key from its fixed binary layout.
func UnmarshalRuleKey(b [RuleKeySize]byte) RuleKey {
	return RuleKey{
		SrcIP:     binary.LittleEndian.Uint32(b[0:4]),
		DstIP:     binary.LittleEndian.Uint32(b[4:8]),
		SrcPrefix: b[8],
		DstPrefix: b[9],
		Proto:     b[10],
		PortLo:    binary.LittleEndian.Uint16(b[12:14]),
		PortHi:    binary.LittleEndian.Uint16(b[14:16]),
	}
}

// RuleValue fits in a single 8-byte word so that concurrent readers can never
// observe a torn value.
// RuleValue 装入单个 8 字节字，确保并发读取永远不会观察到撕裂值。
type RuleValue struct {
	Action   uint8
	Priority uint8
}

func (v RuleValue) Marshal() [RuleValueSize]byte {
	var b [RuleValueSize]byte
	b[0] = v.Action
	b[1] = v.Priority
	return b
}

func UnmarshalRuleValue(b [RuleValueSize]byte) RuleValue {
	return RuleValue{Action: b[0], Priority: b[1]}
}

// RuleEntry pairs a key with its value for iteration.
type RuleEntry struct {
	Key   RuleKey
	Value RuleValue
}

// CounterSnapshot is a point-in-time read of all counter slots, summed
// across CPUs. Values are cumulative; callers compute deltas themselves.
// CounterSnapshot 是所有计数器槽位跨 CPU 求和后的时间点读取。
// 数值是累计的；调用方自行计算差值。
type CounterSnapshot [NumCounterSlots]uint64

func (s CounterSnapshot) Pass() uint64     { return s[SlotPass] }
func (s CounterSnapshot) Drop() uint64     { return s[SlotDrop] }
func (s CounterSnapshot) Redirect() uint64 { return s[SlotRedirect] }
func (s CounterSnapshot) Error() uint64    { return s[SlotError] }
