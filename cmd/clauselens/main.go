// Package main implements the clauselens CLI: clause analysis, learning
// passes and rule set validation against a legal playbook.
package main

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	configPath string
	rulesPath  string
	offline    bool

	version = "dev"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "clauselens",
	Short: "Clause classification against a legal playbook",
	Long: `clauselens analyzes legal documents against a hierarchical rule
playbook: it detects clauses, scores them per party perspective, flags
missing or unacceptable language, and learns from reviewer feedback.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config file (YAML)")
	rootCmd.PersistentFlags().StringVar(&rulesPath, "rules", "rules.yaml", "path to rule set file")
	rootCmd.PersistentFlags().BoolVar(&offline, "offline", false, "run without postgres or remote providers")

	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(learnCmd)
	rootCmd.AddCommand(rulesCmd)
}
