package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

// overridden at build time with -ldflags "-X ...commands.version=..."
var version = "dev"

func init() {
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Prints the build version.",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(version)
	},
}
