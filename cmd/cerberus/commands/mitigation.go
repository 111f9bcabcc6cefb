package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

// MitigationCmd toggles the DDoS posture in the configuration file. The
// daemon reads the flag at startup; changing it takes effect on restart.
// MitigationCmd 在配置文件中切换 DDoS 防护姿态。守护进程在启动时读取该
// 标志；修改后重启生效。
var MitigationCmd = &cobra.Command{
	Use:   "mitigation [on|off|status]",
	Short: "Control the ICMP mitigation posture",
	// Short: 控制 ICMP 防护姿态
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := cfgManager.Get()

		switch args[0] {
		case "status":
			if cfg.Base.Mitigation {
				fmt.Println("🛡️  Mitigation: ON (all ICMP dropped before rule lookup)")
			} else {
				fmt.Println("🔓 Mitigation: OFF")
			}
			if note := mitigationModeNote(cfg.Base.Mode); note != "" {
				fmt.Println(note)
			}
			return nil
		case "on":
			cfg.Base.Mitigation = true
		case "off":
			cfg.Base.Mitigation = false
		default:
			return fmt.Errorf("unknown mitigation state %q (want on, off or status)", args[0])
		}

		cfgManager.Update(cfg)
		if err := cfgManager.Save(); err != nil {
			return err
		}
		fmt.Printf("✅ Mitigation set to %s (restart the daemon to apply)\n", args[0])
		if note := mitigationModeNote(cfg.Base.Mode); note != "" {
			fmt.Println(note)
		}
		return nil
	},
}

// mitigationModeNote returns the operator warning for modes where the flag is
// not honored. The XDP program has the ICMP drop compiled in: toggling the
// flag only steers the userspace classifier.
// mitigationModeNote 返回该标志不生效的模式下的运维提示。XDP 程序将 ICMP
// 丢弃编译在内：切换标志只影响用户态分类器。
func mitigationModeNote(mode string) string {
	if mode == "xdp" {
		return "⚠️  Mode is xdp: the kernel program drops ICMP unconditionally; this flag applies to user mode only"
	}
	return ""
}
