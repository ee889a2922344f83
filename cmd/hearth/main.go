// Package main is the entry point for the hearth CLI.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

type rootOptions struct {
	root      string
	logLevel  string
	configDir string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	rootCmd := &cobra.Command{
		Use:   "hearth",
		Short: "Run tool-using agent tasks inside a sandboxed directory",
		Long: `hearth drives an agent task through planning, tool execution and
verification under an iteration budget. Every file and process tool is
confined to a single sandbox root.`,
		Version:       "0.1.0",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&opts.root, "root", "", "sandbox root (default: current directory)")
	rootCmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "debug, info, warn or error (overrides config)")
	rootCmd.PersistentFlags().StringVar(&opts.configDir, "config-dir", "", "user config directory (default: $XDG_CONFIG_HOME/hearth)")

	rootCmd.AddCommand(
		toolsCmd(opts),
		execCmd(opts),
		budgetCmd(opts),
		journalCmd(opts),
		runCmd(opts),
	)
	return rootCmd
}

func main() {
	// A missing .env is fine.
	_ = godotenv.Load()

	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
