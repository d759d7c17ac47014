package jobs

import (
	"context"
	"time"

	"github.com/canopy-network/defisnap/app/etl/types"
	"github.com/canopy-network/defisnap/pkg/config"
	models "github.com/canopy-network/defisnap/pkg/db/models/warehouse"
	"go.uber.org/zap"
)

// RecordPrices fills the asset dimension from provider metadata and records today's
// configured USD quote for every priced asset. A metadata failure is skipped and the
// asset is resolved from the registry alone.
func (c *Context) RecordPrices(ctx context.Context) (types.JobOutput, error) {
	start := time.Now()
	out := types.JobOutput{Job: config.JobPrices, Table: models.TokenPriceTableName}

	timeID, err := c.bucketID(ctx)
	if err != nil {
		return out, err
	}

	now := c.now()
	var rows []*models.TokenPrice
	for _, a := range c.registry().Assets {
		row := assetRow(a)
		if !a.IsLovelace() && c.Adapter != nil {
			name, policyID, fingerprint, err := c.Adapter.AssetInfo(ctx, a)
			if err != nil {
				if ctx.Err() != nil {
					return out, ctx.Err()
				}
				out.Skipped++
				c.Logger.Warn("asset metadata fetch failed, using registry values",
					zap.String("asset", a.Symbol),
					zap.Error(err),
				)
			} else {
				if a.Name == "" && name != "" {
					row.Name = name
				}
				if policyID != "" {
					row.PolicyID = policyID
				}
				row.Fingerprint = fingerprint
			}
		}

		assetID, err := c.Store.ResolveAsset(ctx, row)
		if err != nil {
			return out, err
		}
		if a.PriceUSD == nil {
			continue
		}
		rows = append(rows, &models.TokenPrice{
			AssetID:    assetID,
			TimeID:     timeID,
			PriceUSD:   *a.PriceUSD,
			DataSource: models.SourceManual,
			InsertedAt: now,
		})
	}

	if len(rows) > 0 {
		out.Inserted, err = c.Store.InsertTokenPrices(ctx, rows)
		if err != nil {
			return out, err
		}
	}

	out.DurationMs = elapsedMs(start)
	c.Logger.Info("token prices recorded",
		zap.Int("priced", len(rows)),
		zap.Int64("inserted", out.Inserted),
		zap.Int("skipped", out.Skipped),
	)
	return out, nil
}
