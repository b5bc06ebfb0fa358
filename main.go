package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	configPath string
	rootCmd    = &cobra.Command{
		Use:   "issuetimer",
		Short: "Time work sessions against tracked GitHub issues",
		Long: `issuetimer tracks GitHub issues and times work sessions against one of
them at a time. Every session is recorded with its duration, notes and
participants. Run without a subcommand to open the terminal dashboard.`,
		RunE:          runTUI,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file path")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
