// Package config loads and persists the cerberus configuration file.
// Pool and queue sizing live here on purpose: nothing in the packet path is
// resizable at runtime, so all capacity decisions are made at load time.
// config 包加载并持久化 cerberus 配置文件。帧池与队列大小有意放在这里：
// 数据包路径中没有任何东西可在运行期调整，所有容量决策都在加载时完成。
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/vppebpf/cerberus/internal/statestore"
	"github.com/vppebpf/cerberus/internal/utils/logger"
)

const (
	DefaultConfigPath = "/etc/cerberus/config.yaml"
	DefaultPinPath    = statestore.DefaultPinPath
)

// DefaultConfigTemplate initializes new config files with documentation
// preserved.
const DefaultConfigTemplate = `# Cerberus Configuration File / Cerberus 配置文件

base:
  # Operation mode: "user" runs the userspace dataplane, "xdp" loads the
  # compiled kernel program and drives the pinned maps.
  # 运行模式："user" 为用户态数据平面，"xdp" 加载编译好的内核程序并驱动固定 Map。
  mode: "user"

  # Interfaces to process. Empty means the daemon must be told explicitly.
  # 要处理的网络接口。留空则必须显式指定。
  interfaces: []

  # Path of the compiled XDP object (xdp mode only).
  # 编译好的 XDP 对象路径（仅 xdp 模式）。
  bpf_object_path: "bpf/cerberus.bpf.o"

  # Directory under bpffs where the shared tables are pinned.
  # 共享表在 bpffs 下固定的目录。
  bpf_pin_path: "/sys/fs/bpf/cerberus"

  # DDoS mitigation posture: deny all ICMP before any rule lookup.
  # DDoS 防护姿态：在任何规则查询之前拒绝所有 ICMP。
  mitigation: true

  # Redirect TCP with no matching rule to the zero-copy path.
  # 将无匹配规则的 TCP 重定向到零拷贝路径。
  redirect_all_tcp: true

  # Degraded action for unparseable packets: false = drop (default policy).
  # 无法解析的数据包的降级动作：false = 丢弃（默认策略）。
  pass_on_error: false

  # Rule table capacity / 规则表容量
  max_rules: 65536

  # Rule snapshot applied at startup and on reload.
  # 启动和重载时应用的规则快照。
  rule_file: "/etc/cerberus/rules.yaml"

# Zero-copy receive path sizing (fixed at startup).
# 零拷贝接收路径大小（启动时固定）。
dataplane:
  queues: 1
  frames_per_queue: 4096
  frame_size: 2048
  ring_size: 2048
  batch_size: 64
  poll_timeout: "100ms"

# Redirected-traffic inspector (demo consumer of the poll/release interface).
# 重定向流量检查器（poll/release 接口的演示消费者）。
inspect:
  enabled: true
  # Optional boolean expression over {SrcIP, DstIP, SrcPort, DstPort, Proto, Len}.
  # 可选的布尔表达式，变量为 {SrcIP, DstIP, SrcPort, DstPort, Proto, Len}。
  expression: ""

metrics:
  enabled: false
  listen: ":9321"
  collect_interval: "10s"

logging:
  enabled: false
  level: "info"
  path: "/var/log/cerberus/cerberus.log"
  max_size: 100
  max_backups: 3
  max_age: 28
  compress: true
`

// BaseConfig holds daemon-level settings.
type BaseConfig struct {
	Mode           string   `yaml:"mode"`
	Interfaces     []string `yaml:"interfaces"`
	BPFObjectPath  string   `yaml:"bpf_object_path"`
	BPFPinPath     string   `yaml:"bpf_pin_path"`
	Mitigation     bool     `yaml:"mitigation"`
	RedirectAllTCP bool     `yaml:"redirect_all_tcp"`
	PassOnError    bool     `yaml:"pass_on_error"`
	MaxRules       uint32   `yaml:"max_rules"`
	RuleFile       string   `yaml:"rule_file"`
}

// DataplaneConfig sizes the frame pool and rings (queue count ×
// frames-per-queue); not resizable at runtime.
type DataplaneConfig struct {
	Queues         int    `yaml:"queues"`
	FramesPerQueue int    `yaml:"frames_per_queue"`
	FrameSize      int    `yaml:"frame_size"`
	RingSize       int    `yaml:"ring_size"`
	BatchSize      int    `yaml:"batch_size"`
	PollTimeout    string `yaml:"poll_timeout"`
}

// PollTimeoutDuration parses the poll timeout with a safe default.
func (d DataplaneConfig) PollTimeoutDuration() time.Duration {
	t, err := time.ParseDuration(d.PollTimeout)
	if err != nil || t <= 0 {
		return 100 * time.Millisecond
	}
	return t
}

// InspectConfig configures the demo consumer of redirected traffic.
type InspectConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Expression string `yaml:"expression"`
}

// MetricsConfig configures the prometheus exporter.
type MetricsConfig struct {
	Enabled         bool   `yaml:"enabled"`
	Listen          string `yaml:"listen"`
	CollectInterval string `yaml:"collect_interval"`
}

// CollectIntervalDuration parses the collect interval with a safe default.
func (m MetricsConfig) CollectIntervalDuration() time.Duration {
	t, err := time.ParseDuration(m.CollectInterval)
	if err != nil || t <= 0 {
		return 10 * time.Second
	}
	return t
}

// GlobalConfig is the root of the configuration file.
type GlobalConfig struct {
	Base      BaseConfig           `yaml:"base"`
	Dataplane DataplaneConfig      `yaml:"dataplane"`
	Inspect   InspectConfig        `yaml:"inspect"`
	Metrics   MetricsConfig        `yaml:"metrics"`
	Logging   logger.LoggingConfig `yaml:"logging"`
}

// Default returns the built-in configuration.
func Default() *GlobalConfig {
	var cfg GlobalConfig
	// The template is the single source of defaults; parsing it cannot fail.
	// 模板是默认值的唯一来源；解析它不会失败。
	if err := yaml.Unmarshal([]byte(DefaultConfigTemplate), &cfg); err != nil {
		panic(fmt.Sprintf("config: invalid default template: %v", err))
	}
	return &cfg
}

// Load reads the configuration from path, falling back to defaults when the
// file does not exist.
func Load(path string) (*GlobalConfig, error) {
	if path == "" {
		path = DefaultConfigPath
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// Save writes the configuration back to path.
func Save(path string, cfg *GlobalConfig) error {
	if path == "" {
		path = DefaultConfigPath
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Init writes the documented default template to path if no file exists yet.
func Init(path string) error {
	if path == "" {
		path = DefaultConfigPath
	}
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists: %s", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(DefaultConfigTemplate), 0644)
}

// Manager provides mutex-guarded access to a loaded configuration.
// Manager 提供带互斥保护的配置访问。
type Manager struct {
	path  string
	mutex sync.RWMutex
	cfg   *GlobalConfig
}

// NewManager creates a manager for the given config path.
func NewManager(path string) *Manager {
	return &Manager{path: path}
}

// Load reads the file into the manager.
func (m *Manager) Load() error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	cfg, err := Load(m.path)
	if err != nil {
		return err
	}
	m.cfg = cfg
	return nil
}

// Get returns a copy of the current configuration.
func (m *Manager) Get() *GlobalConfig {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	if m.cfg == nil {
		return Default()
	}
	cfgCopy := *m.cfg
	return &cfgCopy
}

// Update replaces the current configuration.
func (m *Manager) Update(cfg *GlobalConfig) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.cfg = cfg
}

// Save persists the current configuration.
func (m *Manager) Save() error {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	if m.cfg == nil {
		return nil
	}
	return Save(m.path, m.cfg)
}
