package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vppebpf/cerberus/internal/statestore"
)

// StatsCmd reads the shared counters table. Counters are cumulative and
// summed across CPUs; reading never resets them.
// StatsCmd 读取共享计数器表。计数器为累计值且跨 CPU 求和；读取不会清零。
var StatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show packet counters",
	// Short: 显示数据包计数
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := cfgManager.Get()

		store, err := statestore.AttachBPFStore(cfg.Base.BPFPinPath)
		if err != nil {
			return fmt.Errorf("attach shared tables (is the daemon running in xdp mode?): %w", err)
		}
		defer store.Close()

		snap, err := store.Counters().Snapshot()
		if err != nil {
			return err
		}

		total := snap.Pass() + snap.Drop() + snap.Redirect() + snap.Error()
		fmt.Println("📊 Classifier outcomes:")
		fmt.Printf("  pass:     %d\n", snap.Pass())
		fmt.Printf("  drop:     %d\n", snap.Drop())
		fmt.Printf("  redirect: %d\n", snap.Redirect())
		fmt.Printf("  error:    %d\n", snap.Error())
		fmt.Printf("  total:    %d\n", total)
		return nil
	},
}
