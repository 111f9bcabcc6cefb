package xsk

import (
	"sync"
	"time"

	xerrors "github.com/vppebpf/cerberus/pkg/errors"
)

// Ring is a fixed-capacity FIFO of frame descriptors with a producer cursor
// and a consumer cursor. The producer never overwrites unconsumed entries:
// prod − cons ≤ capacity holds at all times, and a full ring surfaces as
// ErrRingFull so the caller can drop with accounting instead of blocking.
// Ring 是带生产者游标和消费者游标的固定容量描述符 FIFO。生产者绝不覆盖
// 未消费的条目：prod − cons ≤ capacity 恒成立，环满时返回 ErrRingFull，
// 调用方据此记账丢弃而不是阻塞。
type Ring struct {
	mu    sync.Mutex
	descs []Desc
	prod  uint64
	cons  uint64

	// notify wakes a blocked Poll; capacity 1 so a producer never blocks on it.
	// notify 唤醒阻塞中的 Poll；容量为 1，生产者永不会在其上阻塞。
	notify chan struct{}
}

// NewRing creates a ring holding up to capacity descriptors.
func NewRing(capacity int) *Ring {
	if capacity < 1 {
		capacity = 1
	}
	return &Ring{
		descs:  make([]Desc, capacity),
		notify: make(chan struct{}, 1),
	}
}

// Enqueue appends one descriptor in FIFO order.
func (r *Ring) Enqueue(d Desc) error {
	r.mu.Lock()
	if r.prod-r.cons == uint64(len(r.descs)) {
		r.mu.Unlock()
		return xerrors.ErrRingFull
	}
	r.descs[r.prod%uint64(len(r.descs))] = d
	r.prod++
	r.mu.Unlock()

	select {
	case r.notify <- struct{}{}:
	default:
	}
	return nil
}

// DequeueBatch moves up to len(dst) descriptors out of the ring, preserving
// enqueue order, and returns how many were moved. Never blocks.
func (r *Ring) DequeueBatch(dst []Desc) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := int(r.prod - r.cons)
	if n > len(dst) {
		n = len(dst)
	}
	for i := 0; i < n; i++ {
		dst[i] = r.descs[r.cons%uint64(len(r.descs))]
		r.cons++
	}
	return n
}

// Len reports the number of unconsumed descriptors.
func (r *Ring) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return int(r.prod - r.cons)
}

// Capacity reports the fixed ring size.
func (r *Ring) Capacity() int {
	return len(r.descs)
}

// wait blocks until a producer signals or the timeout elapses. A true return
// means a signal arrived; the caller re-drains and may find the ring already
// emptied by an earlier drain, which is fine.
func (r *Ring) wait(timeout time.Duration) bool {
	if timeout <= 0 {
		return false
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-r.notify:
		return true
	case <-timer.C:
		return false
	}
}
