package commands

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/vppebpf/cerberus/internal/config"
)

// ConfigCmd manages the configuration file.
var ConfigCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the configuration file",
	// Short: 管理配置文件
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write the documented default configuration",
	// Short: 写入带注释的默认配置
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.Init(configPath); err != nil {
			return err
		}
		fmt.Printf("✅ Wrote default configuration to %s\n", configPath)
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	// Short: 打印生效的配置
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := yaml.Marshal(cfgManager.Get())
		if err != nil {
			return err
		}
		fmt.Print(string(data))
		return nil
	},
}

func init() {
	ConfigCmd.AddCommand(configInitCmd)
	ConfigCmd.AddCommand(configShowCmd)
}
