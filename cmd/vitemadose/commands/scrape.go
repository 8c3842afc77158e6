package commands

import (
	"os"

	"vitemadose-backend/internal/scrape"
	"vitemadose-backend/lib/serviceutil"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(scrapeCmd)
}

var scrapeCmd = &cobra.Command{
	Use:   "scrape",
	Short: "Runs one full scan and exports the resources.",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := scrape.LoadConfig(*configPath)
		if err != nil {
			serviceutil.Fatal("failed to load configuration", err)
		}

		code, err := scrape.Run(cmd.Context(), cfg)
		if err != nil {
			serviceutil.Fatal("scan failed", err)
		}
		os.Exit(code)
	},
}
