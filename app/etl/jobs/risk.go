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

const (
	volatilityWindowDays = 7
	defaultTopN          = 10
)

// ComputeRisk derives today's risk metrics for p from rows already in the warehouse:
// the volatility of daily TVL over the trailing week and, for protocols that track
// wallets, the share held by the largest wallets.
func (c *Context) ComputeRisk(ctx context.Context, p *config.ProtocolSpec) (types.JobOutput, error) {
	start := time.Now()
	out := types.JobOutput{Job: config.JobRisk, Protocol: p.Name, Table: models.RiskMetricTableName}
	logger := c.Logger.With(zap.String("protocol", p.Name), zap.String("job", config.JobRisk))

	protocolID, err := c.protocolID(ctx, p)
	if err != nil {
		return out, err
	}
	timeID, err := c.bucketID(ctx)
	if err != nil {
		return out, err
	}

	// the window holds volatilityWindowDays buckets, today included
	since := c.today().AddDate(0, 0, 1-volatilityWindowDays)
	points, err := c.Store.DailyTVL(ctx, protocolID, since)
	if err != nil {
		return out, err
	}
	series := make([]float64, len(points))
	for i, pt := range points {
		series[i] = pt.TVL
	}

	now := c.now()
	rows := []*models.RiskMetric{{
		ProtocolID:  protocolID,
		TimeID:      timeID,
		Name:        models.MetricTVLVolatility,
		Value:       risk.StdDev(series),
		CollectedAt: now,
	}}

	if p.Wallets != nil {
		balances, err := c.Store.LatestWalletValues(ctx, protocolID)
		if err != nil {
			return out, err
		}
		topN := p.Wallets.TopN
		if topN <= 0 {
			topN = defaultTopN
		}
		rows = append(rows, &models.RiskMetric{
			ProtocolID:  protocolID,
			TimeID:      timeID,
			Name:        models.MetricWhaleConcentration,
			Value:       risk.Concentration(balances, topN),
			CollectedAt: now,
		})
	}

	out.Inserted, err = c.Store.InsertRiskMetrics(ctx, rows)
	if err != nil {
		return out, err
	}

	out.DurationMs = elapsedMs(start)
	fields := []zap.Field{zap.Int("tvl_days", len(series)), zap.Int64("inserted", out.Inserted)}
	for _, r := range rows {
		fields = append(fields, zap.Float64(r.Name, r.Value))
	}
	logger.Info("risk metrics written", fields...)
	return out, nil
}
