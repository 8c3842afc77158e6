package commands

import (
	"log/slog"

	"vitemadose-backend/internal/scrape"
	"vitemadose-backend/lib/serviceutil"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
)

var cronSpec *string

func init() {
	cronSpec = daemonCmd.Flags().String("cron", "*/15 * * * *", "Cron expression controlling the scan cadence.")
	rootCmd.AddCommand(daemonCmd)
}

var daemonCmd = &cobra.Command{
	Use:   "daemon [--cron <spec>]",
	Short: "Runs scans on a schedule until interrupted.",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := scrape.LoadConfig(*configPath)
		if err != nil {
			serviceutil.Fatal("failed to load configuration", err)
		}

		ctx := cmd.Context()
		runOnce := func() {
			code, err := scrape.Run(ctx, cfg)
			if err != nil {
				slog.Error("scan failed", "err", err)
				return
			}
			slog.Info("scan exited", "code", code)
		}

		scheduler := cron.New()
		if _, err := scheduler.AddFunc(*cronSpec, runOnce); err != nil {
			serviceutil.Fatal("invalid cron expression", err)
		}

		// first scan right away, the cron handles the rest
		runOnce()
		scheduler.Start()
		<-ctx.Done()
		<-scheduler.Stop().Done()
	},
}
