// Package commands wires the cerberus CLI. Every command talks to the shared
// tables (in bpffs) or to the configuration file; none of them talks to the
// daemon process directly.
// commands 包组装 cerberus 命令行。每个命令要么访问共享表（bpffs 中），
// 要么访问配置文件；没有命令直接与守护进程通信。
package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vppebpf/cerberus/internal/config"
	"github.com/vppebpf/cerberus/internal/utils/logger"
)

var (
	configPath string
	cfgManager *config.Manager
)

var rootCmd = &cobra.Command{
	Use:   "cerberus",
	Short: "Dual-path XDP firewall",
	// Short: 双路径 XDP 防火墙
	Long: `Cerberus filters traffic with an XDP classifier in the kernel and a
zero-copy userspace receive path for redirected flows. Rules, counters and
redirect targets live in shared tables pinned under bpffs.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfgManager = config.NewManager(configPath)
		if err := cfgManager.Load(); err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg := cfgManager.Get()
		if cfg.Logging.Enabled {
			logger.Init(cfg.Logging)
		}
		return nil
	},
}

// Execute runs the CLI.
func Execute() error {
	defer logger.Sync()
	if err := rootCmd.Execute(); err != nil {
		fmt.Printf("❌ %v\n", err)
		return err
	}
	return nil
}

// cmdContext returns the context commands should pass downward.
func cmdContext(cmd *cobra.Command) context.Context {
	return cmd.Context()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultConfigPath, "Path to the configuration file")

	rootCmd.AddCommand(RunCmd)
	rootCmd.AddCommand(RulesCmd)
	rootCmd.AddCommand(StatsCmd)
	rootCmd.AddCommand(MitigationCmd)
	rootCmd.AddCommand(ConfigCmd)
	rootCmd.AddCommand(VersionCmd)
}
