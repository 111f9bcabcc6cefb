package xsk

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	xerrors "github.com/vppebpf/cerberus/pkg/errors"
)

// TestPoolLifecycle walks one frame through the full ownership cycle
// TestPoolLifecycle 驱动单个帧走完完整的所有权周期
func TestPoolLifecycle(t *testing.T) {
	p := NewPool(4, 256)
	require.Equal(t, 4, p.Capacity())
	require.Equal(t, 4, p.FreeFrames())

	addr, err := p.Acquire()
	require.NoError(t, err)
	assert.Equal(t, 3, p.FreeFrames())
	assert.Equal(t, FrameFillable, p.State(addr))

	payload := []byte{0xde, 0xad, 0xbe, 0xef}
	desc, err := p.Fill(addr, payload, 2)
	require.NoError(t, err)
	assert.Equal(t, FrameFilled, p.State(addr))
	assert.Equal(t, uint32(len(payload)), desc.Len)
	assert.Equal(t, uint32(2), desc.Queue)

	require.NoError(t, p.take(addr))
	assert.Equal(t, FrameOwned, p.State(addr))
	assert.Equal(t, payload, p.Bytes(desc))

	require.NoError(t, p.Release(addr))
	assert.Equal(t, FrameFillable, p.State(addr))
	assert.Equal(t, 4, p.FreeFrames())
}

// TestPoolDoubleRelease verifies the second Release of a frame is rejected
// TestPoolDoubleRelease 验证对同一帧的第二次 Release 会被拒绝
func TestPoolDoubleRelease(t *testing.T) {
	p := NewPool(2, 128)

	addr, err := p.Acquire()
	require.NoError(t, err)
	_, err = p.Fill(addr, []byte{1, 2, 3}, 0)
	require.NoError(t, err)
	require.NoError(t, p.take(addr))

	require.NoError(t, p.Release(addr))
	err = p.Release(addr)
	assert.ErrorIs(t, err, xerrors.ErrBadFrameState)
	// The failed release must not corrupt the free list.
	// 失败的释放不得破坏空闲链表。
	assert.Equal(t, 2, p.FreeFrames())
}

// TestPoolExhaustion verifies Acquire surfaces backpressure without blocking
// TestPoolExhaustion 验证 Acquire 以错误而非阻塞的方式暴露背压
func TestPoolExhaustion(t *testing.T) {
	p := NewPool(2, 128)

	a1, err := p.Acquire()
	require.NoError(t, err)
	_, err = p.Acquire()
	require.NoError(t, err)

	_, err = p.Acquire()
	assert.ErrorIs(t, err, xerrors.ErrPoolExhausted)

	// A released frame becomes acquirable again.
	// 释放后的帧可再次被获取。
	_, err = p.Fill(a1, []byte{1}, 0)
	require.NoError(t, err)
	require.NoError(t, p.take(a1))
	require.NoError(t, p.Release(a1))

	_, err = p.Acquire()
	assert.NoError(t, err)
}

// TestPoolInvalidTransitions verifies every off-cycle transition is rejected
// TestPoolInvalidTransitions 验证所有偏离周期的状态转换都被拒绝
func TestPoolInvalidTransitions(t *testing.T) {
	p := NewPool(2, 128)

	addr, err := p.Acquire()
	require.NoError(t, err)

	// take before Fill: frame is still Fillable.
	assert.ErrorIs(t, p.take(addr), xerrors.ErrBadFrameState)

	// Release before take: frame is Filled, not Owned.
	_, err = p.Fill(addr, []byte{1}, 0)
	require.NoError(t, err)
	assert.ErrorIs(t, p.Release(addr), xerrors.ErrBadFrameState)

	// Double Fill of the same frame.
	_, err = p.Fill(addr, []byte{2}, 0)
	assert.ErrorIs(t, err, xerrors.ErrBadFrameState)

	// Misaligned address.
	assert.ErrorIs(t, p.Release(addr+1), xerrors.ErrBadFrameState)
}

// TestPoolFillTooLarge verifies oversized payloads are rejected before any
// state change
// TestPoolFillTooLarge 验证超大载荷在任何状态变化之前被拒绝
func TestPoolFillTooLarge(t *testing.T) {
	p := NewPool(1, 64)

	addr, err := p.Acquire()
	require.NoError(t, err)

	_, err = p.Fill(addr, make([]byte, 65), 0)
	require.Error(t, err)
	assert.Equal(t, FrameFillable, p.State(addr))
}
