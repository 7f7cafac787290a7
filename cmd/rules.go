// Package cmd holds the CLI subcommands.
package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"argus/detect"
)

var (
	rulesDir   string
	outputJSON bool
)

// NewRulesCmd creates the rules management command.
func NewRulesCmd() *cobra.Command {
	rulesCmd := &cobra.Command{
		Use:   "rules",
		Short: "Manage correlation rules",
		Long: `Inspect and validate correlation rule files before deploying them.

Rule files are YAML documents with a top-level "rules" list. Lint checks
every rule's structure, compiles its conditions and cross-checks the whole
set for contradictions, shadowing and redundancy.`,
	}

	rulesCmd.PersistentFlags().StringVar(&rulesDir, "dir", "rules", "Rules directory")
	rulesCmd.PersistentFlags().BoolVar(&outputJSON, "json", false, "Output in JSON format")

	rulesCmd.AddCommand(newLintCmd())
	rulesCmd.AddCommand(newListCmd())
	return rulesCmd
}

func newLintCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "lint",
		Short: "Validate rule files and detect conflicts",
		RunE: func(cmd *cobra.Command, args []string) error {
			rules, err := detect.LoadRulesDir(rulesDir)
			if err != nil {
				return err
			}

			var all []detect.RuleConflict
			for i, rule := range rules {
				conflicts := detect.DetectConflicts(rule, rules[:i])
				all = append(all, conflicts...)
			}

			if outputJSON {
				return json.NewEncoder(os.Stdout).Encode(struct {
					Rules     int                   `json:"rules"`
					Conflicts []detect.RuleConflict `json:"conflicts"`
				}{len(rules), all})
			}

			fmt.Printf("Validated %d rules in %s\n", len(rules), rulesDir)
			for _, c := range all {
				marker := "advisory"
				if c.Type.Blocking() {
					marker = "BLOCKING"
				}
				fmt.Printf("  [%s] %s: %s\n", marker, c.Type, c.Message)
			}
			if detect.HasBlockingConflict(all) {
				return fmt.Errorf("rule set has blocking conflicts")
			}
			return nil
		},
	}
}

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List rules defined in the rules directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			rules, err := detect.LoadRulesDir(rulesDir)
			if err != nil {
				return err
			}

			if outputJSON {
				return json.NewEncoder(os.Stdout).Encode(rules)
			}
			for _, r := range rules {
				fmt.Printf("%-30s %-8s min_events=%d window=%dm enabled=%v\n",
					r.ID, r.Severity, r.MinEvents, r.TimeWindowMinutes, r.Enabled)
			}
			return nil
		},
	}
}
