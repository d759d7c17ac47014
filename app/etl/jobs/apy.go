package jobs

import (
	"context"
	"time"

	"github.com/canopy-network/defisnap/app/etl/types"
	"github.com/canopy-network/defisnap/pkg/config"
	models "github.com/canopy-network/defisnap/pkg/db/models/warehouse"
	"github.com/canopy-network/defisnap/pkg/risk"
	"go.uber.org/zap"
)

// rateWindowDays is how far back the APY job looks for a reference exchange rate.
const rateWindowDays = 7

// EstimateAPY writes APY rows for every lending pool of p.
//
// In staging mode the configured placeholder supply and borrow rates are written with
// the Estimated source. Otherwise the job records today's qToken exchange rate
// (underlying held by the pool per qToken in circulation) and derives the supply APY
// from its annualized growth since the oldest rate in the trailing window. No older
// rate means no APY row yet.
func (c *Context) EstimateAPY(ctx context.Context, p *config.ProtocolSpec) (types.JobOutput, error) {
	start := time.Now()
	out := types.JobOutput{Job: config.JobAPY, Protocol: p.Name, Table: string(models.FactAPY)}
	if len(p.LendingPools) == 0 {
		return out, nil
	}
	logger := c.Logger.With(zap.String("protocol", p.Name), zap.String("job", config.JobAPY))

	protocolID, err := c.protocolID(ctx, p)
	if err != nil {
		return out, err
	}
	timeID, err := c.bucketID(ctx)
	if err != nil {
		return out, err
	}

	now := c.now()
	today := c.today()
	var apyRows, rateRows []*models.Snapshot
	for _, lp := range p.LendingPools {
		underlying, _ := c.registry().Asset(lp.Underlying)
		underlyingID, err := c.assetID(ctx, underlying)
		if err != nil {
			return out, err
		}

		if c.Config.StagingMode {
			apyRows = append(apyRows,
				&models.Snapshot{
					ProtocolID: protocolID, AssetID: underlyingID, TimeID: timeID,
					Discriminator: lp.Name + ":supply", Value: lp.PlaceholderSupplyAPY,
					DataSource: models.SourceEstimated, InsertedAt: now,
				},
				&models.Snapshot{
					ProtocolID: protocolID, AssetID: underlyingID, TimeID: timeID,
					Discriminator: lp.Name + ":borrow", Value: lp.PlaceholderBorrowAPY,
					DataSource: models.SourceEstimated, InsertedAt: now,
				},
			)
			continue
		}

		qtoken, _ := c.registry().Asset(lp.QToken)
		poolLogger := logger.With(zap.String("pool", lp.Name))

		balance, err := c.Adapter.PoolBalance(ctx, p.Provider, lp.Addresses, underlying)
		if err != nil {
			if ctx.Err() != nil {
				return out, ctx.Err()
			}
			out.Skipped++
			poolLogger.Warn("pool balance fetch failed, skipping", zap.Error(err))
			continue
		}
		supply, err := c.Adapter.SupplyOf(ctx, qtoken)
		if err != nil {
			if ctx.Err() != nil {
				return out, ctx.Err()
			}
			out.Skipped++
			poolLogger.Warn("qtoken supply fetch failed, skipping", zap.Error(err))
			continue
		}
		if !supply.IsPositive() {
			out.Skipped++
			poolLogger.Warn("qtoken supply is zero, skipping", zap.String("qtoken", qtoken.Symbol))
			continue
		}

		rate := balance.Div(supply).InexactFloat64()
		qtokenID, err := c.assetID(ctx, qtoken)
		if err != nil {
			return out, err
		}
		rateRows = append(rateRows, &models.Snapshot{
			ProtocolID: protocolID, AssetID: qtokenID, TimeID: timeID,
			Discriminator: lp.Name, Amount: supply.InexactFloat64(), Value: rate,
			DataSource: models.SourceDerived, InsertedAt: now,
		})

		history, err := c.Store.ExchangeRates(ctx, protocolID, lp.Name, today.AddDate(0, 0, -rateWindowDays))
		if err != nil {
			return out, err
		}
		var ref *models.RatePoint
		for i := range history {
			if history[i].Date.Before(today) {
				ref = &history[i]
				break
			}
		}
		if ref == nil {
			poolLogger.Info("no reference exchange rate yet, apy deferred", zap.Float64("rate", rate))
			continue
		}

		days := today.Sub(ref.Date).Hours() / 24
		apy, ok := risk.AnnualizedGrowth(ref.Rate, rate, days)
		if !ok {
			poolLogger.Warn("exchange rate growth undefined, skipping",
				zap.Float64("rate", rate),
				zap.Float64("reference_rate", ref.Rate),
			)
			continue
		}
		apyRows = append(apyRows, &models.Snapshot{
			ProtocolID: protocolID, AssetID: underlyingID, TimeID: timeID,
			Discriminator: lp.Name + ":supply", Value: apy,
			DataSource: models.SourceDerived, InsertedAt: now,
		})
	}

	if len(rateRows) > 0 {
		n, err := c.Store.InsertSnapshots(ctx, models.FactExchangeRate, rateRows)
		if err != nil {
			return out, err
		}
		out.Inserted += n
	}
	if len(apyRows) > 0 {
		n, err := c.Store.InsertSnapshots(ctx, models.FactAPY, apyRows)
		if err != nil {
			return out, err
		}
		out.Inserted += n
	}

	out.DurationMs = elapsedMs(start)
	logger.Info("apy written",
		zap.Bool("staging", c.Config.StagingMode),
		zap.Int("apy_rows", len(apyRows)),
		zap.Int("rate_rows", len(rateRows)),
		zap.Int64("inserted", out.Inserted),
		zap.Int("skipped", out.Skipped),
	)
	return out, nil
}
