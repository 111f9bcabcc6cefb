package classifier

import (
	"net"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vppebpf/cerberus/internal/statestore"
	"github.com/vppebpf/cerberus/internal/xsk"
)

func newTestClassifier(t *testing.T, opts Options) (*Classifier, *statestore.MemStore, *xsk.Manager) {
	t.Helper()
	queues := xsk.NewManager(xsk.Config{Queues: 1, FramesPerQueue: 8, FrameSize: 2048, RingSize: 8, BatchSize: 8})
	store := statestore.NewMemStore(1, 1)
	require.NoError(t, store.RedirectTargets().Enable(0))
	return New(store, queues, opts), store, queues
}

func ipU32(t *testing.T, s string) uint32 {
	t.Helper()
	ip := net.ParseIP(s).To4()
	require.NotNil(t, ip)
	return uint32(ip[0])<<24 | uint32(ip[1])<<16 | uint32(ip[2])<<8 | uint32(ip[3])
}

// buildFrame serializes an Ethernet+IPv4 frame with the given transport layer.
// buildFrame 序列化带指定传输层的 Ethernet+IPv4 帧。
func buildFrame(t *testing.T, src, dst string, transport gopacket.SerializableLayer) []byte {
	t.Helper()
	eth := &layers.Ethernet{
		SrcMAC:       net.HardwareAddr{0x02, 0, 0, 0, 0, 1},
		DstMAC:       net.HardwareAddr{0x02, 0, 0, 0, 0, 2},
		EthernetType: layers.EthernetTypeIPv4,
	}
	ip := &layers.IPv4{
		Version: 4,
		IHL:     5,
		TTL:     64,
		SrcIP:   net.ParseIP(src).To4(),
		DstIP:   net.ParseIP(dst).To4(),
	}

	switch l := transport.(type) {
	case *layers.TCP:
		ip.Protocol = layers.IPProtocolTCP
		require.NoError(t, l.SetNetworkLayerForChecksum(ip))
	case *layers.UDP:
		ip.Protocol = layers.IPProtocolUDP
		require.NoError(t, l.SetNetworkLayerForChecksum(ip))
	case *layers.ICMPv4:
		ip.Protocol = layers.IPProtocolICMPv4
	}

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	require.NoError(t, gopacket.SerializeLayers(buf, opts, eth, ip, transport, gopacket.Payload([]byte("payload"))))
	return buf.Bytes()
}

func tcpFrame(t *testing.T, src, dst string, srcPort, dstPort uint16) []byte {
	return buildFrame(t, src, dst, &layers.TCP{SrcPort: layers.TCPPort(srcPort), DstPort: layers.TCPPort(dstPort)})
}

func snapshot(t *testing.T, store *statestore.MemStore) statestore.CounterSnapshot {
	t.Helper()
	snap, err := store.Counters().Snapshot()
	require.NoError(t, err)
	return snap
}

// TestClassifyShortFrame verifies truncated input degrades to the configured
// default and counts an error
// TestClassifyShortFrame 验证截断输入降级为配置的默认动作并计入错误
func TestClassifyShortFrame(t *testing.T) {
	c, store, _ := newTestClassifier(t, Options{})
	assert.Equal(t, VerdictDrop, c.Classify([]byte{1, 2, 3}, 0))
	assert.Equal(t, uint64(1), snapshot(t, store).Error())

	// pass_on_error selects the permissive degraded action.
	// pass_on_error 选择宽松的降级动作。
	cp, storeP, _ := newTestClassifier(t, Options{PassOnError: true})
	assert.Equal(t, VerdictPass, cp.Classify([]byte{1, 2, 3}, 0))
	assert.Equal(t, uint64(1), snapshot(t, storeP).Error())
	assert.Equal(t, uint64(0), snapshot(t, storeP).Drop())
}

// TestClassifyTruncatedIPv4 verifies an IPv4 ethertype with a short body is
// an error, not a crash
// TestClassifyTruncatedIPv4 验证 IPv4 以太类型但报文体过短时计为错误而非崩溃
func TestClassifyTruncatedIPv4(t *testing.T) {
	c, store, _ := newTestClassifier(t, Options{})

	frame := make([]byte, 20) // ethernet header + 6 bytes of IP
	frame[12] = 0x08
	frame[13] = 0x00
	assert.Equal(t, VerdictDrop, c.Classify(frame, 0))
	assert.Equal(t, uint64(1), snapshot(t, store).Error())
}

// TestClassifyNonIPv4 verifies policy scope: everything non-IPv4 passes
// TestClassifyNonIPv4 验证策略范围：非 IPv4 一律放行
func TestClassifyNonIPv4(t *testing.T) {
	c, store, _ := newTestClassifier(t, Options{Mitigation: true})

	arp := make([]byte, 60)
	arp[12] = 0x08
	arp[13] = 0x06
	assert.Equal(t, VerdictPass, c.Classify(arp, 0))
	assert.Equal(t, uint64(1), snapshot(t, store).Pass())
}

// TestClassifyICMPMitigation verifies ICMP is denied before any rule lookup
// while mitigation is active
// TestClassifyICMPMitigation 验证防护姿态下 ICMP 在任何规则查询之前被拒绝
func TestClassifyICMPMitigation(t *testing.T) {
	c, store, _ := newTestClassifier(t, Options{Mitigation: true})
	icmp := buildFrame(t, "10.0.0.1", "10.0.0.2", &layers.ICMPv4{
		TypeCode: layers.CreateICMPv4TypeCode(layers.ICMPv4TypeEchoRequest, 0),
	})

	// An allow rule for ICMP must not override the posture.
	// ICMP 的放行规则不得覆盖防护姿态。
	require.NoError(t, store.Rules().Upsert(
		statestore.RuleKey{Proto: 1},
		statestore.RuleValue{Action: statestore.ActionAllow},
	))

	assert.Equal(t, VerdictDrop, c.Classify(icmp, 0))
	assert.Equal(t, uint64(1), snapshot(t, store).Drop())

	// Toggling the posture off restores rule evaluation.
	// 关闭防护姿态后恢复规则判定。
	c.SetMitigation(false)
	assert.False(t, c.MitigationActive())
	assert.Equal(t, VerdictPass, c.Classify(icmp, 0))
	assert.Equal(t, uint64(1), snapshot(t, store).Pass())
}

// TestClassifyDenyRule verifies a deny rule drops matching traffic
// TestClassifyDenyRule 验证拒绝规则丢弃匹配流量
func TestClassifyDenyRule(t *testing.T) {
	c, store, _ := newTestClassifier(t, Options{RedirectAllTCP: true})

	require.NoError(t, store.Rules().Upsert(
		statestore.RuleKey{Proto: 6, PortLo: 22, PortHi: 22},
		statestore.RuleValue{Action: statestore.ActionDeny},
	))

	assert.Equal(t, VerdictDrop, c.Classify(tcpFrame(t, "10.0.0.1", "10.0.0.2", 40000, 22), 0))
	assert.Equal(t, uint64(1), snapshot(t, store).Drop())

	// Non-matching destination port falls through to the TCP default.
	// 目的端口不匹配时回落到 TCP 默认策略。
	assert.Equal(t, VerdictRedirect, c.Classify(tcpFrame(t, "10.0.0.1", "10.0.0.2", 40000, 80), 0))
}

// TestClassifyAllowOverridesDefault verifies an allow rule suppresses the
// default TCP redirect
// TestClassifyAllowOverridesDefault 验证放行规则抑制 TCP 默认重定向
func TestClassifyAllowOverridesDefault(t *testing.T) {
	c, store, _ := newTestClassifier(t, Options{RedirectAllTCP: true})

	require.NoError(t, store.Rules().Upsert(
		statestore.RuleKey{Proto: 6, PortLo: 443, PortHi: 443},
		statestore.RuleValue{Action: statestore.ActionAllow},
	))

	assert.Equal(t, VerdictPass, c.Classify(tcpFrame(t, "10.0.0.1", "10.0.0.2", 40000, 443), 0))
	assert.Equal(t, uint64(1), snapshot(t, store).Pass())
	assert.Equal(t, uint64(0), snapshot(t, store).Redirect())
}

// TestClassifyCandidatePrecedence verifies the most specific key wins
// TestClassifyCandidatePrecedence 验证最具体的键优先
func TestClassifyCandidatePrecedence(t *testing.T) {
	c, store, _ := newTestClassifier(t, Options{})

	src := ipU32(t, "10.0.0.1")
	dst := ipU32(t, "192.168.1.1")

	// Broad allow, specific deny for one flow.
	// 宽泛放行，对单一流精确拒绝。
	require.NoError(t, store.Rules().Upsert(
		statestore.RuleKey{Proto: 6},
		statestore.RuleValue{Action: statestore.ActionAllow},
	))
	require.NoError(t, store.Rules().Upsert(
		statestore.RuleKey{SrcIP: src, SrcPrefix: 32, DstIP: dst, DstPrefix: 32, Proto: 6, PortLo: 80, PortHi: 80},
		statestore.RuleValue{Action: statestore.ActionDeny},
	))

	assert.Equal(t, VerdictDrop, c.Classify(tcpFrame(t, "10.0.0.1", "192.168.1.1", 40000, 80), 0))
	assert.Equal(t, VerdictPass, c.Classify(tcpFrame(t, "10.0.0.9", "192.168.1.1", 40000, 80), 0))
}

// TestClassifyAnyPortAddressRule verifies an address-specific rule with port
// 0 matches every destination port, and a port-specific rule on the same
// address still wins over it
// TestClassifyAnyPortAddressRule 验证端口为 0 的地址级规则匹配所有目的端口，
// 且同一地址的端口级规则仍然优先
func TestClassifyAnyPortAddressRule(t *testing.T) {
	c, store, _ := newTestClassifier(t, Options{RedirectAllTCP: true})

	dst := ipU32(t, "192.168.1.1")
	require.NoError(t, store.Rules().Upsert(
		statestore.RuleKey{DstIP: dst, DstPrefix: 32, Proto: 6},
		statestore.RuleValue{Action: statestore.ActionDeny},
	))

	assert.Equal(t, VerdictDrop, c.Classify(tcpFrame(t, "10.0.0.1", "192.168.1.1", 40000, 8080), 0))
	assert.Equal(t, VerdictDrop, c.Classify(tcpFrame(t, "10.0.0.1", "192.168.1.1", 40000, 443), 0))
	assert.Equal(t, uint64(2), snapshot(t, store).Drop())

	// Port-specific allow on the same destination takes precedence.
	// 同一目的地址上的端口级放行优先。
	require.NoError(t, store.Rules().Upsert(
		statestore.RuleKey{DstIP: dst, DstPrefix: 32, Proto: 6, PortLo: 443, PortHi: 443},
		statestore.RuleValue{Action: statestore.ActionAllow},
	))
	assert.Equal(t, VerdictPass, c.Classify(tcpFrame(t, "10.0.0.1", "192.168.1.1", 40000, 443), 0))
	assert.Equal(t, VerdictDrop, c.Classify(tcpFrame(t, "10.0.0.1", "192.168.1.1", 40000, 8080), 0))

	// Other destinations are untouched by the address rule.
	// 其他目的地址不受该地址级规则影响。
	assert.Equal(t, VerdictRedirect, c.Classify(tcpFrame(t, "10.0.0.1", "10.0.0.2", 40000, 8080), 0))
}

// TestClassifyRedirectDelivery verifies a redirected frame reaches the
// zero-copy consumer intact
// TestClassifyRedirectDelivery 验证重定向帧完整到达零拷贝消费者
func TestClassifyRedirectDelivery(t *testing.T) {
	c, store, queues := newTestClassifier(t, Options{RedirectAllTCP: true})

	frame := tcpFrame(t, "10.0.0.1", "10.0.0.2", 40000, 8080)
	assert.Equal(t, VerdictRedirect, c.Classify(frame, 0))
	assert.Equal(t, uint64(1), snapshot(t, store).Redirect())

	polled := queues.Queue(0).Poll(100 * time.Millisecond)
	require.Len(t, polled, 1)
	assert.Equal(t, frame, polled[0].Data)
	require.NoError(t, queues.Queue(0).Release(polled[0]))
}

// TestClassifyRedirectDegradesToDrop verifies overload and missing consumers
// degrade to drop with error accounting
// TestClassifyRedirectDegradesToDrop 验证过载与无消费者时降级为丢弃并计入错误
func TestClassifyRedirectDegradesToDrop(t *testing.T) {
	// Disabled redirect target / 重定向目标未使能
	c, store, _ := newTestClassifier(t, Options{RedirectAllTCP: true})
	require.NoError(t, store.RedirectTargets().Disable(0))
	frame := tcpFrame(t, "10.0.0.1", "10.0.0.2", 40000, 8080)
	assert.Equal(t, VerdictDrop, c.Classify(frame, 0))
	assert.Equal(t, uint64(1), snapshot(t, store).Error())

	// Out-of-range queue / 越界队列
	assert.Equal(t, VerdictDrop, c.Classify(frame, 7))
	assert.Equal(t, uint64(2), snapshot(t, store).Error())

	// Pool exhaustion: fill every frame, then redirect once more.
	// 帧池耗尽：占满所有帧后再触发一次重定向。
	c2, store2, queues2 := newTestClassifier(t, Options{RedirectAllTCP: true})
	for i := 0; i < queues2.Pool().Capacity(); i++ {
		require.NoError(t, queues2.Queue(0).Enqueue([]byte{byte(i)}))
	}
	assert.Equal(t, VerdictDrop, c2.Classify(frame, 0))
	assert.Equal(t, uint64(1), snapshot(t, store2).Error())
}

// TestClassifyUDPDefaultPass verifies unmatched non-TCP traffic passes
// TestClassifyUDPDefaultPass 验证无匹配规则的非 TCP 流量放行
func TestClassifyUDPDefaultPass(t *testing.T) {
	c, store, _ := newTestClassifier(t, Options{RedirectAllTCP: true})
	udp := buildFrame(t, "10.0.0.1", "10.0.0.2", &layers.UDP{SrcPort: 5353, DstPort: 53})
	assert.Equal(t, VerdictPass, c.Classify(udp, 0))
	assert.Equal(t, uint64(1), snapshot(t, store).Pass())
}
