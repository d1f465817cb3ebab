package cli

import (
	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show the dronecmd version",
	RunE: func(cmd *cobra.Command, args []string) error {
		printf(cmd.OutOrStdout(), "dronecmd version %s\n", version)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
