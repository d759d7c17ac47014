package jobs

import (
	"context"
	"time"

	"github.com/canopy-network/defisnap/app/etl/types"
	"github.com/canopy-network/defisnap/pkg/adapter"
	"github.com/canopy-network/defisnap/pkg/config"
	models "github.com/canopy-network/defisnap/pkg/db/models/warehouse"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type positionKey struct {
	discriminator string
	symbol        string
}

// aggregate sums positions sharing (discriminator, asset) so every natural key occurs
// once per batch. Input order is preserved.
func aggregate(positions []adapter.Position) ([]positionKey, map[positionKey]decimal.Decimal) {
	sums := make(map[positionKey]decimal.Decimal, len(positions))
	var order []positionKey
	for _, p := range positions {
		k := positionKey{discriminator: p.Discriminator, symbol: p.AssetSymbol}
		if _, ok := sums[k]; !ok {
			order = append(order, k)
		}
		sums[k] = sums[k].Add(p.Amount)
	}
	return order, sums
}

// SnapshotTVL writes today's TVL rows for p: one row per address and asset, valued in
// USD. A provider failure for the whole protocol is logged and skipped; unpriced
// assets are dropped.
func (c *Context) SnapshotTVL(ctx context.Context, p *config.ProtocolSpec) (types.JobOutput, error) {
	start := time.Now()
	out := types.JobOutput{Job: config.JobTVL, Protocol: p.Name, Table: string(models.FactTVL)}
	logger := c.Logger.With(zap.String("protocol", p.Name), zap.String("job", config.JobTVL))

	res, err := c.Adapter.Positions(ctx, p)
	if err != nil {
		if ctx.Err() != nil {
			return out, ctx.Err()
		}
		out.Skipped++
		logger.Warn("protocol fetch failed, skipping", zap.Error(err))
		return out, nil
	}
	out.Skipped = res.Skipped

	protocolID, err := c.protocolID(ctx, p)
	if err != nil {
		return out, err
	}
	timeID, err := c.bucketID(ctx)
	if err != nil {
		return out, err
	}

	order, sums := aggregate(res.Positions)
	now := c.now()
	source := dataSource(p.Provider)
	rows := make([]*models.Snapshot, 0, len(order))
	var total float64
	for _, k := range order {
		amount := sums[k]
		value, ok := c.usdValue(k.symbol, amount)
		if !ok {
			logger.Debug("no price for asset, dropping position",
				zap.String("asset", k.symbol),
				zap.String("address", k.discriminator),
			)
			continue
		}

		asset, _ := c.registry().Asset(k.symbol)
		assetID, err := c.assetID(ctx, asset)
		if err != nil {
			return out, err
		}
		rows = append(rows, &models.Snapshot{
			ProtocolID:    protocolID,
			AssetID:       assetID,
			TimeID:        timeID,
			Discriminator: k.discriminator,
			Amount:        amount.InexactFloat64(),
			Value:         value,
			DataSource:    source,
			InsertedAt:    now,
		})
		total += value
	}

	if len(rows) > 0 {
		out.Inserted, err = c.Store.InsertSnapshots(ctx, models.FactTVL, rows)
		if err != nil {
			return out, err
		}
	}

	out.DurationMs = elapsedMs(start)
	logger.Info("tvl snapshot written",
		zap.Int("addresses", res.Addresses),
		zap.Int("rows", len(rows)),
		zap.Int64("inserted", out.Inserted),
		zap.Int("skipped", out.Skipped),
		zap.Float64("tvl_usd", total),
	)
	return out, nil
}
