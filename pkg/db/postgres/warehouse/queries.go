package warehouse

import (
	"context"
	"fmt"
	"time"

	dbpkg "github.com/canopy-network/defisnap/pkg/db"
	models "github.com/canopy-network/defisnap/pkg/db/models/warehouse"
	"github.com/jackc/pgx/v5"
)

// DailyTVL sums the protocol's TVL per bucket for buckets on or after since.
func (db *DB) DailyTVL(ctx context.Context, protocolID int64, since time.Time) ([]models.TVLPoint, error) {
	query := `
		SELECT t.date, SUM(f.value)
		FROM fact_tvl f
		JOIN dim_time t ON t.id = f.time_id
		WHERE f.protocol_id = $1 AND t.date >= $2
		GROUP BY t.date
		ORDER BY t.date ASC
	`

	rows, err := db.GetExecutor(ctx).Query(ctx, query, protocolID, models.BucketDate(since))
	if err != nil {
		return nil, fmt.Errorf("failed to query daily tvl: %w", err)
	}
	return collectTVL(rows)
}

// LatestWalletValues returns the USD values recorded in the most recent bucket that has
// wallet balances for the protocol.
func (db *DB) LatestWalletValues(ctx context.Context, protocolID int64) ([]float64, error) {
	query := `
		SELECT f.value
		FROM fact_wallet_balance f
		WHERE f.protocol_id = $1 AND f.time_id = (
			SELECT w.time_id
			FROM fact_wallet_balance w
			JOIN dim_time t ON t.id = w.time_id
			WHERE w.protocol_id = $1
			ORDER BY t.date DESC
			LIMIT 1
		)
	`

	rows, err := db.GetExecutor(ctx).Query(ctx, query, protocolID)
	if err != nil {
		return nil, fmt.Errorf("failed to query wallet values: %w", err)
	}
	values, err := pgx.CollectRows(rows, pgx.RowTo[float64])
	if err != nil {
		return nil, fmt.Errorf("failed to scan wallet values: %w", err)
	}
	return values, nil
}

// ExchangeRates returns the recorded exchange rates of a lending pool since the given day.
func (db *DB) ExchangeRates(ctx context.Context, protocolID int64, pool string, since time.Time) ([]models.RatePoint, error) {
	query := `
		SELECT t.date, f.value
		FROM fact_exchange_rate f
		JOIN dim_time t ON t.id = f.time_id
		WHERE f.protocol_id = $1 AND f.discriminator = $2 AND t.date >= $3
		ORDER BY t.date ASC
	`

	rows, err := db.GetExecutor(ctx).Query(ctx, query, protocolID, pool, models.BucketDate(since))
	if err != nil {
		return nil, fmt.Errorf("failed to query exchange rates: %w", err)
	}
	defer rows.Close()

	var out []models.RatePoint
	for rows.Next() {
		var p models.RatePoint
		if err := rows.Scan(&p.Date, &p.Rate); err != nil {
			return nil, fmt.Errorf("failed to scan exchange rate: %w", err)
		}
		p.Date = models.BucketDate(p.Date)
		out = append(out, p)
	}
	return out, rows.Err()
}

// TVLSeries returns one summed TVL point per bucket for the protocol, oldest first.
func (db *DB) TVLSeries(ctx context.Context, protocol string) ([]models.TVLPoint, error) {
	query := `
		SELECT t.date, SUM(f.value)
		FROM fact_tvl f
		JOIN dim_protocol p ON p.id = f.protocol_id
		JOIN dim_time t ON t.id = f.time_id
		WHERE LOWER(p.name) = LOWER($1)
		GROUP BY t.date
		ORDER BY t.date ASC
	`

	rows, err := db.GetExecutor(ctx).Query(ctx, query, protocol)
	if err != nil {
		return nil, fmt.Errorf("failed to query tvl series: %w", err)
	}
	points, err := collectTVL(rows)
	if err != nil {
		return nil, err
	}
	if len(points) == 0 {
		return nil, fmt.Errorf("tvl for %q: %w", protocol, dbpkg.ErrNotFound)
	}
	return points, nil
}

// RecentRiskMetrics returns up to limit risk rows for the protocol, newest first.
func (db *DB) RecentRiskMetrics(ctx context.Context, protocol string, limit int) ([]models.RiskMetricRow, error) {
	query := `
		SELECT r.metric_name, r.value, r.collected_at
		FROM fact_risk_metric r
		JOIN dim_protocol p ON p.id = r.protocol_id
		WHERE LOWER(p.name) = LOWER($1)
		ORDER BY r.collected_at DESC, r.metric_name ASC
		LIMIT $2
	`

	rows, err := db.GetExecutor(ctx).Query(ctx, query, protocol, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query risk metrics: %w", err)
	}
	defer rows.Close()

	var out []models.RiskMetricRow
	for rows.Next() {
		var r models.RiskMetricRow
		if err := rows.Scan(&r.Metric, &r.Value, &r.CollectedAt); err != nil {
			return nil, fmt.Errorf("failed to scan risk metric: %w", err)
		}
		r.CollectedAt = r.CollectedAt.UTC()
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("risk metrics for %q: %w", protocol, dbpkg.ErrNotFound)
	}
	return out, nil
}

// APYSeries returns the protocol's APY observations grouped by pool side, oldest first.
func (db *DB) APYSeries(ctx context.Context, protocol string) ([]models.APYPoint, error) {
	query := `
		SELECT t.date, f.discriminator, a.symbol, f.value, f.data_source
		FROM fact_apy f
		JOIN dim_protocol p ON p.id = f.protocol_id
		JOIN dim_asset a ON a.id = f.asset_id
		JOIN dim_time t ON t.id = f.time_id
		WHERE LOWER(p.name) = LOWER($1)
		ORDER BY f.discriminator ASC, t.date ASC
	`

	rows, err := db.GetExecutor(ctx).Query(ctx, query, protocol)
	if err != nil {
		return nil, fmt.Errorf("failed to query apy series: %w", err)
	}
	defer rows.Close()

	var out []models.APYPoint
	for rows.Next() {
		var p models.APYPoint
		if err := rows.Scan(&p.Date, &p.Pool, &p.Asset, &p.APY, &p.DataSource); err != nil {
			return nil, fmt.Errorf("failed to scan apy: %w", err)
		}
		p.Date = models.BucketDate(p.Date)
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("apy for %q: %w", protocol, dbpkg.ErrNotFound)
	}
	return out, nil
}

// PriceSeries returns the daily prices of an asset, oldest first.
func (db *DB) PriceSeries(ctx context.Context, symbol string) ([]models.PricePoint, error) {
	query := `
		SELECT t.date, f.price_usd, f.data_source
		FROM fact_token_price f
		JOIN dim_asset a ON a.id = f.asset_id
		JOIN dim_time t ON t.id = f.time_id
		WHERE LOWER(a.symbol) = LOWER($1)
		ORDER BY t.date ASC
	`

	rows, err := db.GetExecutor(ctx).Query(ctx, query, symbol)
	if err != nil {
		return nil, fmt.Errorf("failed to query prices: %w", err)
	}
	defer rows.Close()

	var out []models.PricePoint
	for rows.Next() {
		var p models.PricePoint
		if err := rows.Scan(&p.Date, &p.PriceUSD, &p.DataSource); err != nil {
			return nil, fmt.Errorf("failed to scan price: %w", err)
		}
		p.Date = models.BucketDate(p.Date)
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("prices for %q: %w", symbol, dbpkg.ErrNotFound)
	}
	return out, nil
}

func collectTVL(rows pgx.Rows) ([]models.TVLPoint, error) {
	defer rows.Close()

	var out []models.TVLPoint
	for rows.Next() {
		var p models.TVLPoint
		if err := rows.Scan(&p.Date, &p.TVL); err != nil {
			return nil, fmt.Errorf("failed to scan tvl: %w", err)
		}
		p.Date = models.BucketDate(p.Date)
		out = append(out, p)
	}
	return out, rows.Err()
}
