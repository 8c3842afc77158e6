package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configPath *string

var rootCmd = &cobra.Command{
	Use:   "vitemadose",
	Short: "vitemadose scrapes the booking platforms for COVID-19 vaccination slots and publishes per-département JSON resources.",
}

func init() {
	configPath = rootCmd.PersistentFlags().String("config", "config.json5", "Path to the scan configuration file.")
}

func ExecuteContext(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
