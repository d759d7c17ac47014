package jobs

import (
	"context"
	"time"

	"github.com/canopy-network/defisnap/app/etl/types"
	"github.com/canopy-network/defisnap/pkg/config"
	models "github.com/canopy-network/defisnap/pkg/db/models/warehouse"
	"go.uber.org/zap"
)

// SnapshotWallets records the largest holders of the protocol's tracked token. Protocols
// without a wallets section are a no-op.
func (c *Context) SnapshotWallets(ctx context.Context, p *config.ProtocolSpec) (types.JobOutput, error) {
	start := time.Now()
	out := types.JobOutput{Job: config.JobWallets, Protocol: p.Name, Table: string(models.FactWalletBalance)}
	if p.Wallets == nil {
		return out, nil
	}
	logger := c.Logger.With(zap.String("protocol", p.Name), zap.String("job", config.JobWallets))

	asset, ok := c.registry().Asset(p.Wallets.Asset)
	if !ok {
		logger.Warn("wallet asset missing from registry", zap.String("asset", p.Wallets.Asset))
		return out, nil
	}

	holders, err := c.Adapter.Holders(ctx, asset, p.Wallets.MaxHolders)
	if err != nil {
		if ctx.Err() != nil {
			return out, ctx.Err()
		}
		out.Skipped++
		logger.Warn("holder fetch failed, skipping", zap.String("asset", asset.Symbol), zap.Error(err))
		return out, nil
	}

	protocolID, err := c.protocolID(ctx, p)
	if err != nil {
		return out, err
	}
	assetID, err := c.assetID(ctx, asset)
	if err != nil {
		return out, err
	}
	timeID, err := c.bucketID(ctx)
	if err != nil {
		return out, err
	}

	now := c.now()
	rows := make([]*models.Snapshot, 0, len(holders))
	for _, h := range holders {
		// unpriced tokens keep a zero USD value; the balance is still useful
		value, _ := c.usdValue(asset.Symbol, h.Amount)
		rows = append(rows, &models.Snapshot{
			ProtocolID:    protocolID,
			AssetID:       assetID,
			TimeID:        timeID,
			Discriminator: h.Address,
			Amount:        h.Amount.InexactFloat64(),
			Value:         value,
			DataSource:    models.SourceBlockfrost,
			InsertedAt:    now,
		})
	}

	if len(rows) > 0 {
		out.Inserted, err = c.Store.InsertSnapshots(ctx, models.FactWalletBalance, rows)
		if err != nil {
			return out, err
		}
	}

	out.DurationMs = elapsedMs(start)
	logger.Info("top wallets written",
		zap.String("asset", asset.Symbol),
		zap.Int("holders", len(holders)),
		zap.Int64("inserted", out.Inserted),
	)
	return out, nil
}
