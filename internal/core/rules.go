// Package core implements the control-facing side of the firewall: the
// user-level rule model and the synchronizer that reconciles rule snapshots
// into the shared state store and reads counters back out.
// core 包实现防火墙面向控制面的部分：用户级规则模型，以及将规则快照调和进
// 共享状态存储并读回计数器的同步器。
package core

import (
	"encoding/binary"
	"fmt"
	"net"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/vppebpf/cerberus/internal/statestore"
	xerrors "github.com/vppebpf/cerberus/pkg/errors"
)

// Rule is one entry of a rule-set snapshot as written by operators or pushed
// by the control process. Empty src/dst match any address; port 0 matches
// any port. PortEnd, when set, must equal Port: the key layout carries a
// range for forward compatibility but only exact ports are matchable.
// Rule 是规则集快照中的一条，由运维人员编写或控制进程下发。src/dst 为空
// 表示匹配任意地址；端口 0 匹配任意端口。PortEnd 若设置必须等于 Port：
// 键布局为前向兼容保留了区间，但当前仅精确端口可匹配。
type Rule struct {
	Src      string `yaml:"src,omitempty"`
	Dst      string `yaml:"dst,omitempty"`
	Proto    string `yaml:"proto"`
	Port     uint16 `yaml:"port,omitempty"`
	PortEnd  uint16 `yaml:"port_end,omitempty"`
	Action   string `yaml:"action"`
	Priority uint8  `yaml:"priority,omitempty"`
}

// RuleSet is the on-disk snapshot format.
type RuleSet struct {
	Rules []Rule `yaml:"rules"`
}

// LoadRuleSet reads a rule snapshot from a yaml file.
func LoadRuleSet(path string) (*RuleSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rule set: %w", err)
	}
	var rs RuleSet
	if err := yaml.Unmarshal(data, &rs); err != nil {
		return nil, fmt.Errorf("parse rule set: %w", err)
	}
	return &rs, nil
}

// SaveRuleSet writes a rule snapshot back to a yaml file.
func SaveRuleSet(path string, rs *RuleSet) error {
	data, err := yaml.Marshal(rs)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Compile validates the rule and encodes it into the fixed store layout.
// Policy scope is IPv4; IPv6 addresses are rejected, not silently ignored.
// The classifier consults a bounded exact-match key sequence, so only key
// shapes that sequence can reach are accepted: addresses are host (/32) or
// any, a source address requires a destination address, and ports are exact.
// Anything else is rejected up front instead of being installed as an entry
// no packet would ever match.
// Compile 校验规则并编码为存储的固定布局。策略范围为 IPv4；IPv6 地址会被
// 拒绝而不是静默忽略。分类器只查询有界的精确匹配键序列，因此仅接受该序列
// 可达的键形：地址为主机 (/32) 或任意、源地址必须搭配目的地址、端口为精确
// 值。其余形态当场拒绝，绝不安装成任何报文都命中不了的条目。
func (r Rule) Compile() (statestore.RuleKey, statestore.RuleValue, error) {
	var key statestore.RuleKey

	srcIP, srcPrefix, err := parsePrefix(r.Src)
	if err != nil {
		return key, statestore.RuleValue{}, err
	}
	dstIP, dstPrefix, err := parsePrefix(r.Dst)
	if err != nil {
		return key, statestore.RuleValue{}, err
	}
	if srcPrefix != 0 && srcPrefix != 32 {
		return key, statestore.RuleValue{}, fmt.Errorf("%w: src %s: only /32 or any is matchable", xerrors.ErrRuleRejected, r.Src)
	}
	if dstPrefix != 0 && dstPrefix != 32 {
		return key, statestore.RuleValue{}, fmt.Errorf("%w: dst %s: only /32 or any is matchable", xerrors.ErrRuleRejected, r.Dst)
	}
	if srcPrefix != 0 && dstPrefix == 0 {
		return key, statestore.RuleValue{}, fmt.Errorf("%w: src %s: source-specific rules need a destination address", xerrors.ErrRuleRejected, r.Src)
	}

	proto, err := parseProto(r.Proto)
	if err != nil {
		return key, statestore.RuleValue{}, err
	}

	portLo, portHi := r.Port, r.PortEnd
	if portHi == 0 {
		portHi = portLo
	}
	if portHi < portLo {
		return key, statestore.RuleValue{}, xerrors.NewPortError(int(portHi))
	}
	if portHi != portLo {
		return key, statestore.RuleValue{}, fmt.Errorf("%w: port range %d-%d: only exact ports are matchable", xerrors.ErrRuleRejected, portLo, portHi)
	}

	action, err := parseAction(r.Action)
	if err != nil {
		return key, statestore.RuleValue{}, err
	}

	key = statestore.RuleKey{
		SrcIP:     srcIP,
		DstIP:     dstIP,
		SrcPrefix: srcPrefix,
		DstPrefix: dstPrefix,
		Proto:     proto,
		PortLo:    portLo,
		PortHi:    portHi,
	}
	return key, statestore.RuleValue{Action: action, Priority: r.Priority}, nil
}

// parsePrefix accepts "", "any", an IPv4 address, or an IPv4 CIDR. The
// address is masked to the prefix so equivalent rules compile to one key.
func parsePrefix(s string) (uint32, uint8, error) {
	if s == "" || s == "any" {
		return 0, 0, nil
	}
	ip, ipNet, err := net.ParseCIDR(s)
	if err != nil {
		ip = net.ParseIP(s)
		if ip == nil {
			return 0, 0, xerrors.NewCIDRError(s)
		}
		ip4 := ip.To4()
		if ip4 == nil {
			return 0, 0, xerrors.NewCIDRError(s)
		}
		return binary.BigEndian.Uint32(ip4), 32, nil
	}
	if ip.To4() == nil {
		return 0, 0, xerrors.NewCIDRError(s)
	}
	ones, _ := ipNet.Mask.Size()
	return binary.BigEndian.Uint32(ipNet.IP.To4()), uint8(ones), nil
}

func parseProto(s string) (uint8, error) {
	switch strings.ToLower(s) {
	case "icmp":
		return 1, nil
	case "tcp":
		return 6, nil
	case "udp":
		return 17, nil
	}
	return 0, xerrors.NewProtocolError(s)
}

func parseAction(s string) (uint8, error) {
	switch strings.ToLower(s) {
	case "allow":
		return statestore.ActionAllow, nil
	case "deny":
		return statestore.ActionDeny, nil
	case "redirect":
		return statestore.ActionRedirect, nil
	}
	return 0, xerrors.NewActionError(s)
}

// Describe renders one store entry back into operator-readable form.
func Describe(e statestore.RuleEntry) string {
	var b strings.Builder
	b.WriteString(prefixString(e.Key.SrcIP, e.Key.SrcPrefix))
	b.WriteString(" -> ")
	b.WriteString(prefixString(e.Key.DstIP, e.Key.DstPrefix))
	fmt.Fprintf(&b, " proto=%s", protoString(e.Key.Proto))
	if e.Key.PortLo != 0 || e.Key.PortHi != 0 {
		if e.Key.PortLo == e.Key.PortHi {
			fmt.Fprintf(&b, " port=%d", e.Key.PortLo)
		} else {
			fmt.Fprintf(&b, " port=%d-%d", e.Key.PortLo, e.Key.PortHi)
		}
	}
	fmt.Fprintf(&b, " action=%s prio=%d", actionString(e.Value.Action), e.Value.Priority)
	return b.String()
}

func prefixString(ip uint32, prefix uint8) string {
	if prefix == 0 {
		return "any"
	}
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], ip)
	return fmt.Sprintf("%s/%d", net.IP(b[:]).String(), prefix)
}

func protoString(p uint8) string {
	switch p {
	case 1:
		return "icmp"
	case 6:
		return "tcp"
	case 17:
		return "udp"
	}
	return fmt.Sprintf("%d", p)
}

func actionString(a uint8) string {
	switch a {
	case statestore.ActionAllow:
		return "allow"
	case statestore.ActionDeny:
		return "deny"
	case statestore.ActionRedirect:
		return "redirect"
	}
	return fmt.Sprintf("%d", a)
}
