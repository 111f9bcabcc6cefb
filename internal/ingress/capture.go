//go:build linux
// +build linux

// Package ingress feeds the userspace dataplane from an AF_PACKET socket.
// It stands in for the NIC receive path when the kernel XDP program is not
// loaded: every captured frame goes through the classifier exactly as a
// hardware-received packet would.
// ingress 包通过 AF_PACKET socket 为用户态数据平面供包。在未加载内核 XDP
// 程序时，它替代网卡接收路径：每个捕获的帧都像硬件收包一样经过分类器。
package ingress

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/mdlayher/packet"

	"github.com/vppebpf/cerberus/internal/utils/logger"
)

// ETH_P_ALL; packet.Listen byte-swaps for the kernel.
const ethPAll = 0x0003

// Handler consumes one raw frame received on a queue. The buffer is reused
// between reads; handlers must not retain it.
// Handler 消费队列上收到的一个原始帧。缓冲区在多次读取间复用；
// 处理函数不得持有它。
type Handler func(frame []byte, queue int)

// Source captures all traffic on one interface and maps it to one receive
// queue of the dataplane.
type Source struct {
	ifname string
	queue  int
	conn   *packet.Conn
}

// Open binds a raw socket to the named interface.
func Open(ifname string, queue int) (*Source, error) {
	ifi, err := net.InterfaceByName(ifname)
	if err != nil {
		return nil, fmt.Errorf("interface %s: %w", ifname, err)
	}
	conn, err := packet.Listen(ifi, packet.Raw, ethPAll, nil)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", ifname, err)
	}
	return &Source{ifname: ifname, queue: queue, conn: conn}, nil
}

// Run reads frames until the context is canceled. Read deadlines keep the
// loop responsive to cancellation.
// Run 持续读取帧直到 context 取消。读超时保证循环能响应取消。
func (s *Source) Run(ctx context.Context, handle Handler) error {
	log := logger.Get(ctx)
	log.Infof("📡 Capturing on %s (queue %d)", s.ifname, s.queue)

	buf := make([]byte, 65536)
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		if err := s.conn.SetReadDeadline(time.Now().Add(time.Second)); err != nil {
			return err
		}
		n, _, err := s.conn.ReadFrom(buf)
		if err != nil {
			var nerr net.Error
			if errors.As(err, &nerr) && nerr.Timeout() {
				continue
			}
			if ctx.Err() != nil {
				return nil
			}
			log.Warnf("⚠️  Read on %s failed: %v", s.ifname, err)
			continue
		}
		handle(buf[:n], s.queue)
	}
}

// Close releases the raw socket.
func (s *Source) Close() error {
	return s.conn.Close()
}
