// Package adapter turns provider responses into normalized per-address positions for
// the protocols in the registry.
package adapter

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/alitto/pond/v2"
	"github.com/canopy-network/defisnap/pkg/chainapi"
	"github.com/canopy-network/defisnap/pkg/config"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// UTXOProvider returns an address balance per unit.
type UTXOProvider interface {
	AddressAmounts(ctx context.Context, address string) ([]chainapi.Amount, error)
}

// AssetProvider answers asset-centric queries. Only Blockfrost implements it.
type AssetProvider interface {
	AssetAddresses(ctx context.Context, unit string, limit int) ([]chainapi.AssetHolder, error)
	PolicyAssets(ctx context.Context, policy string, limit int) ([]chainapi.PolicyAsset, error)
	Asset(ctx context.Context, unit string) (*chainapi.AssetInfo, error)
}

// Position is one asset balance observed at one discriminator (address).
type Position struct {
	Discriminator string
	AssetSymbol   string
	RawAmount     string
	Unit          string
	Amount        decimal.Decimal
}

// Result is the outcome of one protocol fetch. Skipped counts addresses whose
// provider call failed.
type Result struct {
	Positions []Position
	Addresses int
	Skipped   int
}

// Adapter fetches protocol holdings through the configured providers.
type Adapter struct {
	logger    *zap.Logger
	registry  *config.Registry
	utxo      map[string]UTXOProvider
	assets    AssetProvider
	pool      pond.Pool
	defaultMx int
}

type Opts struct {
	Logger   *zap.Logger
	Registry *config.Registry
	// UTXO maps provider names (config.ProviderBlockfrost, config.ProviderKoios) to clients.
	UTXO    map[string]UTXOProvider
	Assets  AssetProvider
	Workers int
	// MaxAddresses caps discovered holder addresses when a protocol sets none.
	MaxAddresses int
}

func New(o Opts) *Adapter {
	if o.Workers <= 0 {
		o.Workers = 8
	}
	if o.MaxAddresses <= 0 {
		o.MaxAddresses = 1000
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return &Adapter{
		logger:    o.Logger,
		registry:  o.Registry,
		utxo:      o.UTXO,
		assets:    o.Assets,
		pool:      pond.NewPool(o.Workers, pond.WithQueueSize(o.Workers*16)),
		defaultMx: o.MaxAddresses,
	}
}

// Close stops the worker pool after running tasks finish.
func (a *Adapter) Close() {
	a.pool.StopAndWait()
}

// Positions resolves the protocol's addresses and fetches every address balance in the
// worker pool. Each provider call carries its own timeout, so a balance spread over many
// pages is never cut short as a whole. A failing address is logged and skipped. Assets that are excluded or not
// in the registry are dropped. The result is ordered by discriminator, then symbol.
func (a *Adapter) Positions(ctx context.Context, p *config.ProtocolSpec) (*Result, error) {
	logger := a.logger.With(zap.String("protocol", p.Name))

	provider, ok := a.utxo[p.Provider]
	if !ok {
		return nil, fmt.Errorf("protocol %s: no client for provider %q", p.Name, p.Provider)
	}

	addresses, err := a.ResolveAddresses(ctx, p)
	if err != nil {
		return nil, err
	}

	results := make([][]Position, len(addresses))
	failed := make([]bool, len(addresses))

	group := a.pool.NewGroupContext(ctx)
	groupCtx := group.Context()
	for i, addr := range addresses {
		group.Submit(func() {
			if err := groupCtx.Err(); err != nil {
				failed[i] = true
				return
			}

			amounts, err := provider.AddressAmounts(groupCtx, addr)
			if err != nil {
				failed[i] = true
				logger.Warn("address fetch failed, skipping",
					zap.String("address", addr),
					zap.Error(err),
				)
				return
			}
			results[i] = a.positionsAt(logger, p, addr, amounts)
		})
	}
	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, pond.ErrGroupStopped) {
		logger.Warn("address fetch group encountered error", zap.Error(err))
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := &Result{Addresses: len(addresses)}
	for i := range addresses {
		if failed[i] {
			out.Skipped++
			continue
		}
		out.Positions = append(out.Positions, results[i]...)
	}
	sort.Slice(out.Positions, func(i, j int) bool {
		if out.Positions[i].Discriminator != out.Positions[j].Discriminator {
			return out.Positions[i].Discriminator < out.Positions[j].Discriminator
		}
		return out.Positions[i].AssetSymbol < out.Positions[j].AssetSymbol
	})
	return out, nil
}

func (a *Adapter) positionsAt(logger *zap.Logger, p *config.ProtocolSpec, addr string, amounts []chainapi.Amount) []Position {
	var out []Position
	for _, amt := range amounts {
		asset, ok := a.registry.AssetByUnit(amt.Unit)
		if !ok {
			continue
		}
		if excluded(p, asset.Symbol) {
			continue
		}
		n, err := Normalize(amt.Quantity, asset.Decimals)
		if err != nil {
			logger.Warn("unparseable quantity, skipping",
				zap.String("address", addr),
				zap.String("unit", amt.Unit),
				zap.Error(err),
			)
			continue
		}
		out = append(out, Position{
			Discriminator: addr,
			AssetSymbol:   asset.Symbol,
			RawAmount:     amt.Quantity,
			Unit:          amt.Unit,
			Amount:        n,
		})
	}
	return out
}

func excluded(p *config.ProtocolSpec, symbol string) bool {
	for _, s := range p.ExcludeAssets {
		if strings.EqualFold(s, symbol) {
			return true
		}
	}
	return false
}
