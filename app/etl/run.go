package etl

import (
	"context"
	"fmt"
	"time"

	"github.com/canopy-network/defisnap/app/etl/jobs"
	"github.com/canopy-network/defisnap/app/etl/types"
	"github.com/canopy-network/defisnap/pkg/config"
	"github.com/canopy-network/defisnap/pkg/redis"
	"go.uber.org/zap"
)

type protocolJob func(context.Context, *config.ProtocolSpec) (types.JobOutput, error)

// Run executes the configured jobs once: prices first, then per protocol every
// ingestion job followed by retention. Provider failures are absorbed by the jobs.
// A returned error is a store or cancellation error and ends the run; retention for a
// protocol only runs after all of its ingestion jobs succeeded.
func Run(ctx context.Context, app *types.App) (*types.RunSummary, error) {
	jc := &jobs.Context{
		Logger:  app.Logger,
		Config:  app.Config,
		Store:   app.Store,
		Adapter: app.Adapter,
		Now:     app.Now,
	}
	summary := &types.RunSummary{StartedAt: time.Now().UTC()}
	cfg := app.Config

	record := func(out types.JobOutput, err error) error {
		observe(app, out, err)
		if err != nil {
			summary.Failed = out.Job
			if out.Protocol != "" {
				summary.Failed = out.Job + "/" + out.Protocol
			}
			return fmt.Errorf("job %s failed: %w", summary.Failed, err)
		}
		summary.Jobs = append(summary.Jobs, out)
		publish(ctx, app, out)
		return nil
	}

	if cfg.RunsJob(config.JobPrices) {
		if err := record(jc.RecordPrices(ctx)); err != nil {
			return summary, err
		}
	}

	ingestion := []struct {
		name string
		fn   protocolJob
	}{
		{config.JobTVL, jc.SnapshotTVL},
		{config.JobWallets, jc.SnapshotWallets},
		{config.JobAPY, jc.EstimateAPY},
		{config.JobRisk, jc.ComputeRisk},
	}

	for _, p := range cfg.SelectedProtocols() {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		for _, job := range ingestion {
			if !cfg.RunsJob(job.name) {
				continue
			}
			if err := record(job.fn(ctx, &p)); err != nil {
				return summary, err
			}
		}
		if cfg.RunsJob(config.JobRetention) {
			if err := record(jc.Sweep(ctx, &p)); err != nil {
				return summary, err
			}
		}
	}

	if cfg.RunsJob(config.JobRetention) {
		if err := record(jc.SweepPrices(ctx)); err != nil {
			return summary, err
		}
	}
	return summary, nil
}

func observe(app *types.App, out types.JobOutput, err error) {
	m := app.Metrics
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "failed"
	}
	m.JobRuns.WithLabelValues(out.Job, out.Protocol, status).Inc()
	m.JobDuration.WithLabelValues(out.Job).Observe(out.DurationMs / 1000)
	if err != nil {
		return
	}
	if out.Inserted > 0 && out.Table != "" {
		m.RowsInserted.WithLabelValues(out.Table, out.Protocol).Add(float64(out.Inserted))
	}
	if out.Deleted > 0 {
		m.RowsSwept.WithLabelValues(out.Protocol).Add(float64(out.Deleted))
	}
	if out.Skipped > 0 {
		m.ItemsSkipped.WithLabelValues(out.Job, out.Protocol).Add(float64(out.Skipped))
	}
	m.LastSuccessTS.WithLabelValues(out.Job, out.Protocol).SetToCurrentTime()
}

func publish(ctx context.Context, app *types.App, out types.JobOutput) {
	if app.Events == nil || out.Protocol == "" {
		return
	}
	app.Events.PublishSnapshot(ctx, redis.SnapshotEvent{
		Protocol: out.Protocol,
		Job:      out.Job,
		Inserted: out.Inserted,
		Skipped:  out.Skipped,
		Deleted:  out.Deleted,
		At:       time.Now().UTC(),
	})
}

// LogSummary writes the per-job outcome and the run totals.
func LogSummary(logger *zap.Logger, summary *types.RunSummary, runErr error) {
	for _, j := range summary.Jobs {
		logger.Info("job finished",
			zap.String("job", j.Job),
			zap.String("protocol", j.Protocol),
			zap.Int64("inserted", j.Inserted),
			zap.Int("skipped", j.Skipped),
			zap.Int64("deleted", j.Deleted),
			zap.Float64("duration_ms", j.DurationMs),
		)
	}
	inserted, skipped, deleted := summary.Totals()
	fields := []zap.Field{
		zap.Int("jobs", len(summary.Jobs)),
		zap.Int64("inserted", inserted),
		zap.Int("skipped", skipped),
		zap.Int64("deleted", deleted),
		zap.Duration("elapsed", time.Since(summary.StartedAt)),
	}
	if runErr != nil {
		logger.Error("run aborted", append(fields, zap.String("failed", summary.Failed), zap.Error(runErr))...)
		return
	}
	logger.Info("run complete", fields...)
}
