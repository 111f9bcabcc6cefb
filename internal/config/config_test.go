package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestDefaultTemplate verifies the built-in template parses and carries the
// reference dataplane sizing
// TestDefaultTemplate 验证内置模板可解析并带有参考数据平面大小
func TestDefaultTemplate(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "user", cfg.Base.Mode)
	assert.True(t, cfg.Base.Mitigation)
	assert.True(t, cfg.Base.RedirectAllTCP)
	assert.False(t, cfg.Base.PassOnError)
	assert.Equal(t, uint32(65536), cfg.Base.MaxRules)

	assert.Equal(t, 1, cfg.Dataplane.Queues)
	assert.Equal(t, 4096, cfg.Dataplane.FramesPerQueue)
	assert.Equal(t, 2048, cfg.Dataplane.FrameSize)
	assert.Equal(t, 2048, cfg.Dataplane.RingSize)
	assert.Equal(t, 64, cfg.Dataplane.BatchSize)
	assert.Equal(t, 100*time.Millisecond, cfg.Dataplane.PollTimeoutDuration())
}

// TestLoadMissingFileFallsBack verifies a missing config file yields defaults
// TestLoadMissingFileFallsBack 验证缺失配置文件时回退到默认值
func TestLoadMissingFileFallsBack(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

// TestLoadOverridesDefaults verifies a partial file overrides only what it
// names
// TestLoadOverridesDefaults 验证部分配置文件只覆盖其声明的项
func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("base:\n  mode: xdp\n  mitigation: false\ndataplane:\n  queues: 4\n"), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "xdp", cfg.Base.Mode)
	assert.False(t, cfg.Base.Mitigation)
	assert.Equal(t, 4, cfg.Dataplane.Queues)
	// Untouched fields keep their defaults / 未声明的项保持默认
	assert.Equal(t, 4096, cfg.Dataplane.FramesPerQueue)
}

// TestLoadRejectsGarbage verifies unparseable yaml is an error, not defaults
// TestLoadRejectsGarbage 验证无法解析的 yaml 返回错误而非默认值
func TestLoadRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("base: [not a map"), 0644))
	_, err := Load(path)
	assert.Error(t, err)
}

// TestSaveLoadRoundTrip verifies persistence through the Manager
// TestSaveLoadRoundTrip 验证经由 Manager 的持久化
func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	m := NewManager(path)
	require.NoError(t, m.Load())

	cfg := m.Get()
	cfg.Base.Interfaces = []string{"eth0", "eth1"}
	cfg.Metrics.Enabled = true
	m.Update(cfg)
	require.NoError(t, m.Save())

	m2 := NewManager(path)
	require.NoError(t, m2.Load())
	assert.Equal(t, []string{"eth0", "eth1"}, m2.Get().Base.Interfaces)
	assert.True(t, m2.Get().Metrics.Enabled)
}

// TestInit verifies the documented template is written once and only once
// TestInit 验证带注释的模板只写入一次
func TestInit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	require.NoError(t, Init(path))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfigTemplate, string(data))

	assert.Error(t, Init(path))
}

// TestDurationFallbacks verifies malformed durations fall back to safe values
// TestDurationFallbacks 验证畸形时长回退到安全默认值
func TestDurationFallbacks(t *testing.T) {
	d := DataplaneConfig{PollTimeout: "soon"}
	assert.Equal(t, 100*time.Millisecond, d.PollTimeoutDuration())
	d.PollTimeout = "250ms"
	assert.Equal(t, 250*time.Millisecond, d.PollTimeoutDuration())

	m := MetricsConfig{CollectInterval: "-3s"}
	assert.Equal(t, 10*time.Second, m.CollectIntervalDuration())
	m.CollectInterval = "1m"
	assert.Equal(t, time.Minute, m.CollectIntervalDuration())
}
