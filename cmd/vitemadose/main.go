package main

import (
	"context"
	"log/slog"

	"vitemadose-backend/cmd/vitemadose/commands"
	"vitemadose-backend/lib/serviceutil"
	"vitemadose-backend/lib/telemetry"
)

func main() {
	ctx := serviceutil.SignalContext()
	telemetry.InitSlog(false)

	tel, err := telemetry.SetupFromEnv(ctx, "vitemadose")
	if err != nil {
		slog.Debug("telemetry disabled", "err", err)
	} else {
		defer tel.Shutdown(context.Background())
		telemetry.InstrumentPerfStats(ctx)
	}

	commands.ExecuteContext(ctx)
}
