package types

import (
	"context"
	"time"

	"github.com/canopy-network/defisnap/pkg/adapter"
	"github.com/canopy-network/defisnap/pkg/config"
	"github.com/canopy-network/defisnap/pkg/db"
	"github.com/canopy-network/defisnap/pkg/metrics"
	"github.com/canopy-network/defisnap/pkg/redis"
	"go.uber.org/zap"
)

// EventPublisher receives one event per finished job. *redis.Client implements it.
type EventPublisher interface {
	PublishSnapshot(ctx context.Context, ev redis.SnapshotEvent)
}

// App is everything a single ETL run needs. It is built once by Initialize and
// discarded when the process exits.
type App struct {
	Config  *config.Config
	Logger  *zap.Logger
	Store   db.WarehouseStore
	Adapter *adapter.Adapter
	Metrics *metrics.Collectors
	// Events is nil when Redis is disabled.
	Events EventPublisher
	// Now is the run clock; nil means time.Now.
	Now func() time.Time

	closers []func() error
}

// OnClose registers fn to run when the app is closed, in reverse order.
func (a *App) OnClose(fn func() error) {
	a.closers = append(a.closers, fn)
}

// Close releases the store, the worker pool and the event publisher.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.Logger.Warn("close failed", zap.Error(err))
		}
	}
	a.closers = nil
}

// JobOutput is the result of one job for one protocol. Protocol is empty for the
// protocol-independent price jobs.
type JobOutput struct {
	Job      string `json:"job"`
	Protocol string `json:"protocol,omitempty"`
	// Table is the fact table the job wrote to, if any.
	Table      string  `json:"table,omitempty"`
	Inserted   int64   `json:"inserted"`
	Skipped    int     `json:"skipped"`
	Deleted    int64   `json:"deleted"`
	DurationMs float64 `json:"durationMs"`
}

// RunSummary collects every job output of a run. Failed names the job that stopped
// the run, if any.
type RunSummary struct {
	StartedAt time.Time   `json:"startedAt"`
	Jobs      []JobOutput `json:"jobs"`
	Failed    string      `json:"failed,omitempty"`
}

// Totals sums inserted, skipped and deleted rows over every job.
func (s *RunSummary) Totals() (inserted int64, skipped int, deleted int64) {
	for _, j := range s.Jobs {
		inserted += j.Inserted
		skipped += j.Skipped
		deleted += j.Deleted
	}
	return inserted, skipped, deleted
}
