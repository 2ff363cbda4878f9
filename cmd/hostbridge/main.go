package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

const (
	appName    = "hostbridge"
	appVersion = "0.1.0"
)

var rootCmd = &cobra.Command{
	Use:   appName,
	Short: "Local control bridge between automation agents and a single-threaded host",
	Long: `Hostbridge exposes a host application's commands to automation agents
over a loopback HTTP endpoint:
  - Every command executes on the host's one designated thread
  - Requests from the same agent run strictly in order
  - Per-agent sessions, queue depth, and action history are inspectable
  - Command categories can be gated on and off at runtime`,
	Version: appVersion,
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "Path to the settings file (default ./hostbridge.kdl)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(mcpCmd)
	rootCmd.AddCommand(statusCmd)

	rootCmd.SetVersionTemplate(fmt.Sprintf("%s v%s\n", appName, appVersion))
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
