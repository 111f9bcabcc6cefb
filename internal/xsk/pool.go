// Package xsk implements the userspace half of the zero-copy receive path:
// a umem-style frame pool shared with the classifier, fixed-capacity
// descriptor rings, and per-queue poll/release consumers. The layout mirrors
// an AF_XDP socket (umem + fill/rx rings) so the userspace dataplane and the
// real kernel path share one model.
// xsk 包实现零拷贝接收路径的用户态部分：与分类器共享的 umem 风格帧池、
// 固定容量的描述符环，以及按队列的 poll/release 消费者。布局对应 AF_XDP
// socket（umem + fill/rx 环），使用户态数据平面与真实内核路径共享同一模型。
package xsk

import (
	"fmt"
	"sync"
	"sync/atomic"

	xerrors "github.com/vppebpf/cerberus/pkg/errors"
)

// FrameState is the explicit ownership state of one frame. A frame is either
// kernel-owned (Fillable, Filled) or userspace-owned (Owned), never both.
// Transitions happen only through Acquire/Fill, dequeue and Release; any
// other transition is rejected with ErrBadFrameState.
// FrameState 是单个帧的显式所有权状态。帧要么归内核侧所有（Fillable、
// Filled），要么归用户态所有（Owned），绝不会同时归属双方。状态只能通过
// Acquire/Fill、出队和 Release 转换；其他任何转换都会被 ErrBadFrameState 拒绝。
type FrameState uint32

const (
	// FrameFillable: available for the classifier to fill.
	FrameFillable FrameState = iota
	// FrameFilled: carries a packet, enqueued on a ring, not yet consumed.
	FrameFilled
	// FrameOwned: handed to userspace by Poll, awaiting Release.
	FrameOwned
)

func (s FrameState) String() string {
	switch s {
	case FrameFillable:
		return "fillable"
	case FrameFilled:
		return "filled"
	case FrameOwned:
		return "owned"
	}
	return "invalid"
}

// Desc describes one frame on a ring: offset into the pool buffer, packet
// length, and the receive queue it belongs to.
type Desc struct {
	Addr  uint64
	Len   uint32
	Queue uint32
}

// Pool is the shared frame area. Frame addresses are fixed at construction
// (addr = index × frame size) and handed out through a free list, exactly as
// the AF_XDP umem frame allocator does.
// Pool 是共享帧区域。帧地址在构造时固定（addr = 下标 × 帧大小），通过
// 空闲链表分配，与 AF_XDP umem 帧分配器一致。
type Pool struct {
	frameSize int
	buf       []byte
	states    []atomic.Uint32

	mu   sync.Mutex
	free []uint64
}

// NewPool allocates numFrames frames of frameSize bytes each, all Fillable.
func NewPool(numFrames, frameSize int) *Pool {
	p := &Pool{
		frameSize: frameSize,
		buf:       make([]byte, numFrames*frameSize),
		states:    make([]atomic.Uint32, numFrames),
		free:      make([]uint64, numFrames),
	}
	for i := 0; i < numFrames; i++ {
		p.free[i] = uint64(i * frameSize)
	}
	return p
}

// Acquire reserves one Fillable frame off the free list. Exhaustion is the
// backpressure signal the classifier degrades on; it must never block here.
// Acquire 从空闲链表取出一个 Fillable 帧。耗尽即为分类器降级所依据的
// 背压信号；此处绝不能阻塞。
func (p *Pool) Acquire() (uint64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.free) == 0 {
		return 0, xerrors.ErrPoolExhausted
	}
	addr := p.free[len(p.free)-1]
	p.free = p.free[:len(p.free)-1]
	return addr, nil
}

// Fill copies the packet into the frame and publishes it as Filled.
func (p *Pool) Fill(addr uint64, payload []byte, queue uint32) (Desc, error) {
	idx, err := p.index(addr)
	if err != nil {
		return Desc{}, err
	}
	if len(payload) > p.frameSize {
		return Desc{}, fmt.Errorf("payload %d exceeds frame size %d", len(payload), p.frameSize)
	}
	if !p.states[idx].CompareAndSwap(uint32(FrameFillable), uint32(FrameFilled)) {
		return Desc{}, fmt.Errorf("%w: fill from %s", xerrors.ErrBadFrameState, FrameState(p.states[idx].Load()))
	}
	copy(p.buf[addr:addr+uint64(p.frameSize)], payload)
	return Desc{Addr: addr, Len: uint32(len(payload)), Queue: queue}, nil
}

// cancelFill rolls a Filled frame back to Fillable when the ring rejected
// its descriptor. The frame was never visible to a consumer.
func (p *Pool) cancelFill(addr uint64) {
	idx, err := p.index(addr)
	if err != nil {
		return
	}
	if p.states[idx].CompareAndSwap(uint32(FrameFilled), uint32(FrameFillable)) {
		p.putFree(addr)
	}
}

// returnUnfilled puts an acquired-but-never-filled frame back on the free list.
func (p *Pool) returnUnfilled(addr uint64) {
	if _, err := p.index(addr); err != nil {
		return
	}
	p.putFree(addr)
}

// take transfers a Filled frame to userspace ownership. Called by the rx
// queue for every descriptor it dequeues.
func (p *Pool) take(addr uint64) error {
	idx, err := p.index(addr)
	if err != nil {
		return err
	}
	if !p.states[idx].CompareAndSwap(uint32(FrameFilled), uint32(FrameOwned)) {
		return fmt.Errorf("%w: take from %s", xerrors.ErrBadFrameState, FrameState(p.states[idx].Load()))
	}
	return nil
}

// Release returns an Owned frame to the kernel side. Exactly one Release per
// polled frame; a second Release of the same frame is rejected, which is the
// double-ownership bug class this state machine exists to prevent.
// Release 将 Owned 帧交还内核侧。每个被 Poll 取走的帧只能 Release 一次；
// 对同一帧的第二次 Release 会被拒绝——这正是该状态机要杜绝的双重所有权缺陷。
func (p *Pool) Release(addr uint64) error {
	idx, err := p.index(addr)
	if err != nil {
		return err
	}
	if !p.states[idx].CompareAndSwap(uint32(FrameOwned), uint32(FrameFillable)) {
		return fmt.Errorf("%w: release from %s", xerrors.ErrBadFrameState, FrameState(p.states[idx].Load()))
	}
	p.putFree(addr)
	return nil
}

// Bytes returns the packet view of a descriptor, pointing into the shared
// buffer (no copy).
func (p *Pool) Bytes(d Desc) []byte {
	end := d.Addr + uint64(d.Len)
	if end > uint64(len(p.buf)) {
		return nil
	}
	return p.buf[d.Addr:end]
}

// State reports the current state of the frame at addr.
func (p *Pool) State(addr uint64) FrameState {
	idx, err := p.index(addr)
	if err != nil {
		return FrameState(^uint32(0))
	}
	return FrameState(p.states[idx].Load())
}

// FreeFrames reports how many frames are currently Fillable and unreserved.
func (p *Pool) FreeFrames() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.free)
}

// Capacity reports the total frame count.
func (p *Pool) Capacity() int {
	return len(p.states)
}

func (p *Pool) putFree(addr uint64) {
	p.mu.Lock()
	p.free = append(p.free, addr)
	p.mu.Unlock()
}

func (p *Pool) index(addr uint64) (int, error) {
	if addr%uint64(p.frameSize) != 0 || addr >= uint64(len(p.buf)) {
		return 0, fmt.Errorf("%w: bad frame addr %#x", xerrors.ErrBadFrameState, addr)
	}
	return int(addr / uint64(p.frameSize)), nil
}
