package commands

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/vppebpf/cerberus/internal/daemon"
	"github.com/vppebpf/cerberus/internal/utils/logger"
)

var (
	runMode       string
	runInterfaces []string
)

// RunCmd starts the daemon in the configured mode.
// RunCmd 以配置的模式启动守护进程。
var RunCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the cerberus daemon",
	// Short: 运行 cerberus 守护进程
	Long: `Run the firewall daemon. Mode "user" drives the userspace dataplane
over AF_PACKET; mode "xdp" loads the compiled kernel classifier and keeps
the pinned tables synchronized.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := cfgManager.Get()
		if runMode != "" {
			cfg.Base.Mode = runMode
		}
		if len(runInterfaces) > 0 {
			cfg.Base.Interfaces = runInterfaces
		}

		ctx, stop := signal.NotifyContext(cmdContext(cmd), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		err := daemon.Run(ctx, cfg)
		logger.Get(ctx).Infof("👋 Shutting down")
		return err
	},
}

func init() {
	RunCmd.Flags().StringVarP(&runMode, "mode", "m", "", `Override operation mode ("user" or "xdp")`)
	RunCmd.Flags().StringSliceVarP(&runInterfaces, "interface", "i", nil, "Override interfaces to process")
}
