// Package jobs holds the ETL jobs. Each job is a method on Context that resolves its
// dimension ids, writes one batch of fact rows and reports what it did.
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/canopy-network/defisnap/pkg/adapter"
	"github.com/canopy-network/defisnap/pkg/config"
	"github.com/canopy-network/defisnap/pkg/db"
	models "github.com/canopy-network/defisnap/pkg/db/models/warehouse"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// policyIDLength is the hex length of a Cardano minting policy id.
const policyIDLength = 56

type Context struct {
	Logger  *zap.Logger
	Config  *config.Config
	Store   db.WarehouseStore
	Adapter *adapter.Adapter
	Now     func() time.Time
}

func (c *Context) now() time.Time {
	if c.Now != nil {
		return c.Now().UTC()
	}
	return time.Now().UTC()
}

func (c *Context) today() time.Time {
	return models.BucketDate(c.now())
}

func (c *Context) registry() *config.Registry {
	return c.Config.Registry
}

func (c *Context) protocolID(ctx context.Context, p *config.ProtocolSpec) (int64, error) {
	id, err := c.Store.ResolveProtocol(ctx, &models.Protocol{Name: p.Name, Segment: p.Segment, Chain: p.Chain})
	if err != nil {
		return 0, fmt.Errorf("resolve protocol %s: %w", p.Name, err)
	}
	return id, nil
}

func (c *Context) assetID(ctx context.Context, a config.AssetSpec) (int64, error) {
	id, err := c.Store.ResolveAsset(ctx, assetRow(a))
	if err != nil {
		return 0, fmt.Errorf("resolve asset %s: %w", a.Symbol, err)
	}
	return id, nil
}

func (c *Context) bucketID(ctx context.Context) (int64, error) {
	id, err := c.Store.ResolveTimeBucket(ctx, c.now())
	if err != nil {
		return 0, fmt.Errorf("resolve time bucket: %w", err)
	}
	return id, nil
}

// assetRow derives the dimension row for a registry asset. The policy id is the
// leading part of a native asset unit; lovelace has none.
func assetRow(a config.AssetSpec) *models.Asset {
	row := &models.Asset{Symbol: a.Symbol, Name: a.Name}
	if row.Name == "" {
		row.Name = a.Symbol
	}
	if !a.IsLovelace() && len(a.Unit) >= policyIDLength {
		row.PolicyID = a.Unit[:policyIDLength]
	}
	return row
}

// usdValue prices amount with the registry quote of symbol.
func (c *Context) usdValue(symbol string, amount decimal.Decimal) (float64, bool) {
	a, ok := c.registry().Asset(symbol)
	if !ok || a.PriceUSD == nil {
		return 0, false
	}
	return amount.Mul(decimal.NewFromFloat(*a.PriceUSD)).InexactFloat64(), true
}

func dataSource(provider string) string {
	switch provider {
	case config.ProviderKoios:
		return models.SourceKoios
	default:
		return models.SourceBlockfrost
	}
}

func elapsedMs(start time.Time) float64 {
	return float64(time.Since(start).Microseconds()) / 1000.0
}
