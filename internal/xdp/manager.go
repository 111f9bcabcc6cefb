//go:build linux
// +build linux

// Package xdp loads the compiled kernel classifier and attaches it to network
// interfaces. The program's maps are pinned under bpffs so that the CLI and
// the synchronizer reach the same tables without talking to the daemon.
// xdp 包加载编译好的内核分类器并将其挂载到网络接口。程序的 Map 固定在
// bpffs 下，CLI 与同步器无需和守护进程通信即可访问同一批表。
package xdp

import (
	"context"
	"fmt"
	"os"

	"github.com/cilium/ebpf"
	"github.com/cilium/ebpf/link"
	"github.com/cilium/ebpf/rlimit"
	"github.com/vishvananda/netlink"

	"github.com/vppebpf/cerberus/internal/statestore"
	"github.com/vppebpf/cerberus/internal/utils/logger"
	xerrors "github.com/vppebpf/cerberus/pkg/errors"
)

// ProgramName is the section-exported name of the XDP entry point in the
// compiled object.
const ProgramName = "cerberus_fw"

// Manager owns the loaded collection and the per-interface attachments.
type Manager struct {
	pinPath string
	coll    *ebpf.Collection
	prog    *ebpf.Program
	links   map[string]link.Link
}

// NewManager loads the compiled XDP object and pins its shared tables under
// pinPath. Maps that are already pinned are reused, so reloading the daemon
// preserves counters and rules.
// NewManager 加载编译好的 XDP 对象并把共享表固定到 pinPath 下。已固定的
// Map 会被复用，因此重载守护进程不会丢失计数器与规则。
func NewManager(objPath, pinPath string) (*Manager, error) {
	if err := rlimit.RemoveMemlock(); err != nil {
		return nil, fmt.Errorf("remove memlock limit: %w", err)
	}
	if pinPath == "" {
		pinPath = statestore.DefaultPinPath
	}
	if err := os.MkdirAll(pinPath, 0755); err != nil {
		return nil, fmt.Errorf("create pin directory: %w", err)
	}

	spec, err := ebpf.LoadCollectionSpec(objPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", xerrors.ErrXDPLoadFailed, err)
	}

	// Pin the shared tables by name so the control path can attach to them.
	// 按名称固定共享表，控制路径凭此接入。
	for _, name := range []string{
		statestore.TableRules,
		statestore.TableCounters,
		statestore.TableRedirectTargets,
	} {
		ms, ok := spec.Maps[name]
		if !ok {
			return nil, fmt.Errorf("%w: object missing map %s", xerrors.ErrXDPLoadFailed, name)
		}
		ms.Pinning = ebpf.PinByName
	}

	coll, err := ebpf.NewCollectionWithOptions(spec, ebpf.CollectionOptions{
		Maps: ebpf.MapOptions{PinPath: pinPath},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", xerrors.ErrXDPLoadFailed, err)
	}

	prog, ok := coll.Programs[ProgramName]
	if !ok {
		coll.Close()
		return nil, fmt.Errorf("%w: object missing program %s", xerrors.ErrXDPLoadFailed, ProgramName)
	}

	return &Manager{
		pinPath: pinPath,
		coll:    coll,
		prog:    prog,
		links:   make(map[string]link.Link),
	}, nil
}

// Attach installs the classifier on each named interface. A failed interface
// is logged and skipped; Attach fails only when no interface could be
// attached.
// Attach 将分类器安装到每个命名接口。失败的接口记录日志后跳过；只有所有
// 接口都失败时 Attach 才返回错误。
func (m *Manager) Attach(ctx context.Context, interfaces []string) error {
	log := logger.Get(ctx)

	attached := 0
	for _, name := range interfaces {
		lnk, err := netlink.LinkByName(name)
		if err != nil {
			log.Warnf("⚠️  Skipping %s: %v", name, err)
			continue
		}
		xdpLink, err := link.AttachXDP(link.XDPOptions{
			Program:   m.prog,
			Interface: lnk.Attrs().Index,
			Flags:     link.XDPGenericMode,
		})
		if err != nil {
			log.Warnf("⚠️  Attach on %s failed: %v", name, err)
			continue
		}
		m.links[name] = xdpLink
		attached++
		log.Infof("✅ XDP classifier attached to %s", name)
	}

	if attached == 0 && len(interfaces) > 0 {
		return fmt.Errorf("%w: no interface accepted the program", xerrors.ErrXDPAttachFailed)
	}
	return nil
}

// Detach removes the classifier from one interface.
func (m *Manager) Detach(name string) error {
	lnk, ok := m.links[name]
	if !ok {
		return fmt.Errorf("%w: %s not attached", xerrors.ErrXDPAttachFailed, name)
	}
	delete(m.links, name)
	return lnk.Close()
}

// Map exposes one of the collection's maps by name.
func (m *Manager) Map(name string) (*ebpf.Map, error) {
	mp, ok := m.coll.Maps[name]
	if !ok {
		return nil, xerrors.NewTableError(name, fmt.Errorf("not in collection"))
	}
	return mp, nil
}

// PinPath reports where the shared tables are pinned.
func (m *Manager) PinPath() string { return m.pinPath }

// Close detaches all interfaces and releases the collection. Pinned maps
// stay in bpffs; state survives daemon restarts until Unpin.
func (m *Manager) Close() error {
	var firstErr error
	for name, lnk := range m.links {
		if err := lnk.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("detach %s: %w", name, err)
		}
	}
	m.links = make(map[string]link.Link)
	m.coll.Close()
	return firstErr
}
