package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	version    = "dev"
	configPath string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "postetrack",
	Short: "PosteTrack - Real-time session tracking and billing for shared stations",
	Long: `PosteTrack tracks time-bounded usage sessions on shared stations: it
mirrors the backend's session state, runs one clock per active session,
recomputes cost against tariff plans and subscription benefits on every tick,
and raises escalating alerts as sessions approach or exceed their planned
duration.`,
	Version: version,
	RunE: func(cmd *cobra.Command, args []string) error {
		// Default to server command when no subcommand is provided
		return runServer(cmd, args)
	},
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "/etc/postetrack/config.yaml", "Path to configuration file")
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
