package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/canopy-network/defisnap/app/etl"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)

	app := etl.Initialize(ctx)

	summary, err := etl.Run(ctx, app)
	etl.LogSummary(app.Logger, summary, err)

	// the run context may already be canceled; give the push its own deadline
	pushCtx, pushCancel := context.WithTimeout(context.Background(), 10*time.Second)
	etl.PushMetrics(pushCtx, app)
	pushCancel()

	app.Close()
	_ = app.Logger.Sync()
	cancel()

	if err != nil {
		os.Exit(1)
	}
}
