package db

import (
	"context"
	"errors"
	"time"

	"github.com/canopy-network/defisnap/pkg/db/models/warehouse"
)

// ErrNotFound is returned by query helpers when a protocol or asset has no rows.
var ErrNotFound = errors.New("not found")

// Resolver maps natural keys to surrogate ids, creating dimension rows on first reference.
type Resolver interface {
	ResolveProtocol(ctx context.Context, p *warehouse.Protocol) (int64, error)
	ResolveAsset(ctx context.Context, a *warehouse.Asset) (int64, error)
	ResolveTimeBucket(ctx context.Context, t time.Time) (int64, error)
}

// WarehouseStore is everything an ETL run needs from the warehouse.
type WarehouseStore interface {
	Resolver

	// InsertSnapshots writes rows into a protocol-scoped fact table, ignoring rows whose
	// natural key already exists. It returns the number of rows actually added.
	InsertSnapshots(ctx context.Context, table warehouse.FactTable, rows []*warehouse.Snapshot) (int64, error)
	InsertTokenPrices(ctx context.Context, rows []*warehouse.TokenPrice) (int64, error)
	InsertRiskMetrics(ctx context.Context, rows []*warehouse.RiskMetric) (int64, error)

	// DailyTVL sums fact_tvl values per bucket for buckets on or after since, ascending.
	DailyTVL(ctx context.Context, protocolID int64, since time.Time) ([]warehouse.TVLPoint, error)
	// LatestWalletValues returns the USD values of the most recent bucket holding wallet rows.
	LatestWalletValues(ctx context.Context, protocolID int64) ([]float64, error)
	// ExchangeRates returns the recorded rates of one lending pool on or after since, ascending.
	ExchangeRates(ctx context.Context, protocolID int64, pool string, since time.Time) ([]warehouse.RatePoint, error)

	// SweepProtocol deletes the protocol's fact and risk rows whose bucket date is before cutoff.
	SweepProtocol(ctx context.Context, protocolID int64, cutoff time.Time) (int64, error)
	// SweepTokenPrices deletes price rows whose bucket date is before cutoff.
	SweepTokenPrices(ctx context.Context, cutoff time.Time) (int64, error)

	Close() error
}

// QueryStore backs the read-only HTTP API. Lookups by name are case-insensitive and
// return ErrNotFound when nothing matches.
type QueryStore interface {
	TVLSeries(ctx context.Context, protocol string) ([]warehouse.TVLPoint, error)
	RecentRiskMetrics(ctx context.Context, protocol string, limit int) ([]warehouse.RiskMetricRow, error)
	APYSeries(ctx context.Context, protocol string) ([]warehouse.APYPoint, error)
	PriceSeries(ctx context.Context, symbol string) ([]warehouse.PricePoint, error)
	Ping(ctx context.Context) error
}
