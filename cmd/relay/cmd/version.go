package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var version = "dev" // This should be set at build time using -ldflags

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of relay",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "relay %s\n", version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
