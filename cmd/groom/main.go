package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mikey/mail-groomer/internal/di"
)

var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	flags := &di.CLIFlags{}

	rootCmd := &cobra.Command{
		Use:   "groom",
		Short: "Sanitize email attachments",
		Long: `groom strips dangerous attachments from email messages. Every attachment is
classified by name and content, inspected by a format specific scanner, and
either kept or replaced by a log describing why it was removed.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVarP(&flags.ConfigFile, "config", "c", "", "path to configuration file")
	rootCmd.PersistentFlags().BoolVarP(&flags.Verbose, "verbose", "v", false, "enable debug logging and print diagnostics")
	rootCmd.PersistentFlags().BoolVar(&flags.JSONLog, "json-log", false, "output logs in JSON format")
	rootCmd.PersistentFlags().IntVar(&flags.MaxDepth, "max-depth", 0, "nesting bound for attached messages (default from config)")

	rootCmd.AddCommand(newSanitizeCmd(flags))
	rootCmd.AddCommand(newClassifyCmd(flags))
	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "groom %s (commit: %s)\n", version, commit)
		},
	})

	return rootCmd
}
