package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vppebpf/cerberus/internal/core"
	"github.com/vppebpf/cerberus/internal/statestore"
)

var rulesFile string

// RulesCmd manages the shared rule table through its pinned maps.
// RulesCmd 通过固定的 Map 管理共享规则表。
var RulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Manage the firewall rule table",
	// Short: 管理防火墙规则表
}

var rulesApplyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Reconcile a rule snapshot into the shared table",
	// Short: 将规则快照调和进共享表
	Long: `Apply replaces the rule table with the snapshot: new and changed
entries are installed, entries absent from the snapshot are removed.
Malformed entries are rejected individually and never abort the batch.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := cfgManager.Get()
		path := rulesFile
		if path == "" {
			path = cfg.Base.RuleFile
		}

		rs, err := core.LoadRuleSet(path)
		if err != nil {
			return err
		}

		store, err := statestore.AttachBPFStore(cfg.Base.BPFPinPath)
		if err != nil {
			return fmt.Errorf("attach shared tables (is the daemon running in xdp mode?): %w", err)
		}
		defer store.Close()

		applied, rejected, err := core.NewSynchronizer(store).Apply(cmdContext(cmd), rs.Rules)
		if err != nil {
			return err
		}
		fmt.Printf("✅ Applied %d change(s), rejected %d rule(s)\n", applied, rejected)
		return nil
	},
}

var rulesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List installed rules",
	// Short: 列出已安装的规则
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := cfgManager.Get()

		store, err := statestore.AttachBPFStore(cfg.Base.BPFPinPath)
		if err != nil {
			return fmt.Errorf("attach shared tables (is the daemon running in xdp mode?): %w", err)
		}
		defer store.Close()

		entries, err := store.Rules().Iterate()
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			fmt.Println("Empty rule table.")
			return nil
		}

		fmt.Printf("🛡️  %d installed rule(s):\n", len(entries))
		for _, e := range entries {
			fmt.Printf(" - %s\n", core.Describe(e))
		}
		return nil
	},
}

var rulesValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a rule snapshot without applying it",
	// Short: 校验规则快照但不应用
	RunE: func(cmd *cobra.Command, args []string) error {
		path := rulesFile
		if path == "" {
			path = cfgManager.Get().Base.RuleFile
		}

		rs, err := core.LoadRuleSet(path)
		if err != nil {
			return err
		}

		bad := 0
		for i, r := range rs.Rules {
			if _, _, cerr := r.Compile(); cerr != nil {
				bad++
				fmt.Printf("❌ Rule %d: %v\n", i, cerr)
			}
		}
		if bad > 0 {
			return fmt.Errorf("%d invalid rule(s) in %s", bad, path)
		}
		fmt.Printf("✅ %d rule(s) valid\n", len(rs.Rules))
		return nil
	},
}

func init() {
	RulesCmd.PersistentFlags().StringVarP(&rulesFile, "file", "f", "", "Rule snapshot file (defaults to rule_file from config)")
	RulesCmd.AddCommand(rulesApplyCmd)
	RulesCmd.AddCommand(rulesListCmd)
	RulesCmd.AddCommand(rulesValidateCmd)
}
