package commands

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

// Set via -ldflags at build time / 构建时通过 -ldflags 注入
var (
	Version   = "dev"
	GitCommit = "unknown"
)

var VersionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	// Short: 显示版本信息
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("cerberus %s (commit %s, %s)\n", Version, GitCommit, runtime.Version())
	},
}
