package jobs

import (
	"context"
	"time"

	"github.com/canopy-network/defisnap/app/etl/types"
	"github.com/canopy-network/defisnap/pkg/config"
	models "github.com/canopy-network/defisnap/pkg/db/models/warehouse"
	"go.uber.org/zap"
)

// Sweep deletes p's fact and risk rows whose bucket date is before today minus the
// retention horizon. A horizon of zero or less disables retention and touches nothing.
func (c *Context) Sweep(ctx context.Context, p *config.ProtocolSpec) (types.JobOutput, error) {
	start := time.Now()
	out := types.JobOutput{Job: config.JobRetention, Protocol: p.Name}
	logger := c.Logger.With(zap.String("protocol", p.Name), zap.String("job", config.JobRetention))

	cutoff, ok := models.RetentionCutoff(c.now(), c.Config.RetentionDays)
	if !ok {
		logger.Info("retention disabled", zap.Int("retention_days", c.Config.RetentionDays))
		return out, nil
	}

	protocolID, err := c.protocolID(ctx, p)
	if err != nil {
		return out, err
	}
	out.Deleted, err = c.Store.SweepProtocol(ctx, protocolID, cutoff)
	if err != nil {
		return out, err
	}

	out.DurationMs = elapsedMs(start)
	logger.Info("retention sweep done",
		zap.Int("retention_days", c.Config.RetentionDays),
		zap.String("cutoff", cutoff.Format(time.DateOnly)),
		zap.Int64("deleted", out.Deleted),
	)
	return out, nil
}

// SweepPrices applies the retention horizon to the protocol-independent price table.
func (c *Context) SweepPrices(ctx context.Context) (types.JobOutput, error) {
	start := time.Now()
	out := types.JobOutput{Job: config.JobRetention, Table: models.TokenPriceTableName}

	cutoff, ok := models.RetentionCutoff(c.now(), c.Config.RetentionDays)
	if !ok {
		return out, nil
	}

	var err error
	out.Deleted, err = c.Store.SweepTokenPrices(ctx, cutoff)
	if err != nil {
		return out, err
	}

	out.DurationMs = elapsedMs(start)
	c.Logger.Info("price retention sweep done",
		zap.String("cutoff", cutoff.Format(time.DateOnly)),
		zap.Int64("deleted", out.Deleted),
	)
	return out, nil
}
