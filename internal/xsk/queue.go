package xsk

import (
	"time"
)

// Frame is one received packet handed to the consumer. Data points into the
// shared pool buffer; it is valid until Release and must not be retained
// afterwards.
// Frame 是交给消费者的一个数据包。Data 指向共享帧池缓冲区，在 Release 之前
// 有效，之后不得继续持有。
type Frame struct {
	Desc Desc
	Data []byte
}

// RxQueue is one receive queue: the classifier produces onto its ring, the
// consumer drains it with Poll and hands frames back with Release.
// RxQueue 是一个接收队列：分类器向其环生产，消费者用 Poll 取出并通过
// Release 归还帧。
type RxQueue struct {
	id    uint32
	pool  *Pool
	ring  *Ring
	batch int
}

// ID returns the queue index.
func (q *RxQueue) ID() uint32 {
	return q.id
}

// Enqueue copies a redirected packet into a pool frame and publishes its
// descriptor. Returns ErrPoolExhausted or ErrRingFull under overload; the
// caller degrades to drop, it never blocks.
// Enqueue 将重定向的数据包复制进帧并发布其描述符。过载时返回
// ErrPoolExhausted 或 ErrRingFull；调用方降级为丢弃，绝不阻塞。
func (q *RxQueue) Enqueue(payload []byte) error {
	addr, err := q.pool.Acquire()
	if err != nil {
		return err
	}
	desc, err := q.pool.Fill(addr, payload, q.id)
	if err != nil {
		q.pool.returnUnfilled(addr)
		return err
	}
	if err := q.ring.Enqueue(desc); err != nil {
		q.pool.cancelFill(addr)
		return err
	}
	return nil
}

// Poll drains up to the batch size of ready frames, blocking up to timeout
// if none are ready. A timeout yields an empty result, never an error.
// Poll 最多取出一个批次的就绪帧，若无就绪帧则最多阻塞 timeout。
// 超时返回空结果，绝不返回错误。
func (q *RxQueue) Poll(timeout time.Duration) []Frame {
	deadline := time.Now().Add(timeout)
	descs := make([]Desc, q.batch)
	for {
		n := q.ring.DequeueBatch(descs)
		if n > 0 {
			frames := make([]Frame, 0, n)
			for _, d := range descs[:n] {
				if err := q.pool.take(d.Addr); err != nil {
					// Unreachable through the public API; skip rather than
					// hand out a frame with disputed ownership.
					// 通过公共 API 不可达；跳过而不是交出所有权有争议的帧。
					continue
				}
				frames = append(frames, Frame{Desc: d, Data: q.pool.Bytes(d)})
			}
			return frames
		}
		remaining := time.Until(deadline)
		if remaining <= 0 || !q.ring.wait(remaining) {
			return nil
		}
	}
}

// Release returns one polled frame to the pool. Must be called exactly once
// per frame obtained from Poll; forgetting it starves the pool.
func (q *RxQueue) Release(f Frame) error {
	return q.pool.Release(f.Desc.Addr)
}

// Pending reports the number of enqueued, not yet polled descriptors.
func (q *RxQueue) Pending() int {
	return q.ring.Len()
}

// Config sizes the frame pool and rings. All values come from configuration;
// nothing here is resizable at runtime.
// Config 决定帧池和环的大小。所有值来自配置；运行期不可调整。
type Config struct {
	Queues         int
	FramesPerQueue int
	FrameSize      int
	RingSize       int
	BatchSize      int
}

// Defaults matching the reference AF_XDP loader sizing.
// 与参考 AF_XDP 加载器一致的默认值。
const (
	DefaultFramesPerQueue = 4096
	DefaultFrameSize      = 2048
	DefaultRingSize       = 2048
	DefaultBatchSize      = 64
)

func (c Config) withDefaults() Config {
	if c.Queues < 1 {
		c.Queues = 1
	}
	if c.FramesPerQueue < 1 {
		c.FramesPerQueue = DefaultFramesPerQueue
	}
	if c.FrameSize < 64 {
		c.FrameSize = DefaultFrameSize
	}
	if c.RingSize < 1 {
		c.RingSize = DefaultRingSize
	}
	if c.BatchSize < 1 {
		c.BatchSize = DefaultBatchSize
	}
	return c
}

// Manager owns the shared pool and one rx queue per configured hardware
// queue, fanning redirected packets out by queue index.
// Manager 持有共享帧池，并为每个配置的硬件队列建立一个接收队列，
// 按队列索引分发重定向的数据包。
type Manager struct {
	pool   *Pool
	queues []*RxQueue
}

// NewManager builds the pool (queue count × frames per queue) and its rings.
func NewManager(cfg Config) *Manager {
	cfg = cfg.withDefaults()
	pool := NewPool(cfg.Queues*cfg.FramesPerQueue, cfg.FrameSize)
	queues := make([]*RxQueue, cfg.Queues)
	for i := range queues {
		queues[i] = &RxQueue{
			id:    uint32(i),
			pool:  pool,
			ring:  NewRing(cfg.RingSize),
			batch: cfg.BatchSize,
		}
	}
	return &Manager{pool: pool, queues: queues}
}

// Queue returns the rx queue with the given index, or nil if out of range.
func (m *Manager) Queue(i int) *RxQueue {
	if i < 0 || i >= len(m.queues) {
		return nil
	}
	return m.queues[i]
}

// QueueCount returns the number of receive queues.
func (m *Manager) QueueCount() int {
	return len(m.queues)
}

// Pool returns the shared frame pool.
func (m *Manager) Pool() *Pool {
	return m.pool
}
