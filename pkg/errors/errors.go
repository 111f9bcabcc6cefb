package errors

import (
	"errors"
	"fmt"
)

var (
	// Packet path / 数据包路径
	ErrPacketTooShort = errors.New("packet too short")
	ErrPoolExhausted  = errors.New("frame pool exhausted")
	ErrRingFull       = errors.New("descriptor ring full")
	ErrBadFrameState  = errors.New("invalid frame state transition")

	// Rule sync / 规则同步
	ErrRuleRejected    = errors.New("rule rejected")
	ErrInvalidCIDR     = errors.New("invalid CIDR notation")
	ErrInvalidPort     = errors.New("invalid port number")
	ErrInvalidAction   = errors.New("invalid action")
	ErrInvalidProtocol = errors.New("invalid protocol")

	// Shared state store / 共享状态存储
	ErrTableUnavailable   = errors.New("shared table unavailable")
	ErrMapOperationFailed = errors.New("BPF map operation failed")

	// XDP lifecycle / XDP 生命周期
	ErrXDPLoadFailed   = errors.New("XDP program load failed")
	ErrXDPAttachFailed = errors.New("XDP program attach failed")

	ErrConfigInvalid = errors.New("invalid configuration")
)

func NewCIDRError(cidr string) error {
	return fmt.Errorf("%w: %s", ErrInvalidCIDR, cidr)
}

func NewPortError(port int) error {
	return fmt.Errorf("%w: %d", ErrInvalidPort, port)
}

func NewActionError(action string) error {
	return fmt.Errorf("%w: %s", ErrInvalidAction, action)
}

func NewProtocolError(proto string) error {
	return fmt.Errorf("%w: %s", ErrInvalidProtocol, proto)
}

func NewTableError(table string, reason error) error {
	return fmt.Errorf("%w: table=%s: %v", ErrTableUnavailable, table, reason)
}

func NewMapError(mapName string, op string, err error) error {
	return fmt.Errorf("%w: map=%s op=%s: %v", ErrMapOperationFailed, mapName, op, err)
}

func NewConfigError(field string, value interface{}) error {
	return fmt.Errorf("%w: field=%s value=%v", ErrConfigInvalid, field, value)
}
