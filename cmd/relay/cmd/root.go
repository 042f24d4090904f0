package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "relay",
	Short: "Websocket message relay for live presentations",
	Long: `relay accepts websocket connections and relays JSON messages between all
clients connected on the same URL path.

Available commands:
  serve     Start the relay server
  config    Print the resolved configuration
  version   Print the version

Use "relay [command] --help" for more information about a specific command.`,
	SilenceUsage: true,
}

// Execute executes the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a YAML config file; environment variables override it")
}
