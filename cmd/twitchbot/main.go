// Package main is the entry point for the twitchbot CLI.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"twitchbot/pkg/version"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "twitchbot",
	Short: "twitchbot - a Twitch chat command bot",
	Long: `twitchbot connects to Twitch chat, recognises prefixed commands and runs
them with per-command permission checks and typed arguments.

Commands come from the built-in set and from YAML definitions in the
configured commands directory.`,
	SilenceUsage: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), version.Get())
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file path")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(commandsCmd)
	rootCmd.AddCommand(authCmd)
	rootCmd.AddCommand(serviceCmd)
	rootCmd.AddCommand(webuiCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
