package jobs

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/canopy-network/defisnap/pkg/adapter"
	"github.com/canopy-network/defisnap/pkg/chainapi"
	"github.com/canopy-network/defisnap/pkg/config"
	"github.com/canopy-network/defisnap/pkg/db/memstore"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

const testRegistry = `
assets:
  - {symbol: ADA, name: Cardano, unit: lovelace, decimals: 6, price_usd: 0.5}
  - {symbol: MIN, unit: min01, decimals: 6, price_usd: 0.02}
  - {symbol: iUSD, unit: iusd01, decimals: 6, price_usd: 1}
  - {symbol: qADA, unit: qada01, decimals: 6}
  - {symbol: NOPRICE, unit: np01, decimals: 0}
protocols:
  - name: Minswap
    segment: DEX
    addresses: [addr_pool1, addr_pool2]
  - name: Indigo
    segment: CDP
    source: asset_holders
    holder_asset: iUSD
    exclude_assets: [iUSD]
    wallets: {asset: iUSD, max_holders: 20, top_n: 10}
  - name: Liqwid
    segment: Lending Pool
    addresses: [addr_liq]
    lending_pools:
      - name: qADA
        qtoken: qADA
        underlying: ADA
        addresses: [addr_liq]
        placeholder_supply_apy: 0.035
        placeholder_borrow_apy: 0.08
`

var testNow = time.Date(2026, 3, 10, 15, 4, 5, 0, time.UTC)

type fakeUTXO struct {
	mu       sync.Mutex
	balances map[string][]chainapi.Amount
	fail     map[string]error
}

func (f *fakeUTXO) AddressAmounts(_ context.Context, address string) ([]chainapi.Amount, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail[address]; err != nil {
		return nil, err
	}
	return f.balances[address], nil
}

func (f *fakeUTXO) set(address string, amounts ...chainapi.Amount) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.balances == nil {
		f.balances = map[string][]chainapi.Amount{}
	}
	f.balances[address] = amounts
}

type fakeAssets struct {
	holders    map[string][]chainapi.AssetHolder
	info       map[string]*chainapi.AssetInfo
	holdersErr error
}

func (f *fakeAssets) AssetAddresses(_ context.Context, unit string, limit int) ([]chainapi.AssetHolder, error) {
	if f.holdersErr != nil {
		return nil, f.holdersErr
	}
	h := f.holders[unit]
	if limit > 0 && len(h) > limit {
		h = h[:limit]
	}
	return h, nil
}

func (f *fakeAssets) PolicyAssets(context.Context, string, int) ([]chainapi.PolicyAsset, error) {
	return nil, nil
}

func (f *fakeAssets) Asset(_ context.Context, unit string) (*chainapi.AssetInfo, error) {
	if info, ok := f.info[unit]; ok {
		return info, nil
	}
	return nil, chainapi.ErrNotFound
}

type fixture struct {
	ctx    *Context
	store  *memstore.Store
	utxo   *fakeUTXO
	assets *fakeAssets
	now    time.Time
}

func newFixture(t *testing.T) *fixture {
	return newFixtureWithLogger(t, zaptest.NewLogger(t))
}

func newFixtureWithLogger(t *testing.T, logger *zap.Logger) *fixture {
	t.Helper()
	reg, err := config.ParseRegistry([]byte(testRegistry))
	require.NoError(t, err)
	require.NoError(t, reg.Validate())

	f := &fixture{
		store:  memstore.New(),
		utxo:   &fakeUTXO{},
		assets: &fakeAssets{},
		now:    testNow,
	}
	a := adapter.New(adapter.Opts{
		Logger:   logger,
		Registry: reg,
		UTXO:     map[string]adapter.UTXOProvider{config.ProviderBlockfrost: f.utxo},
		Assets:   f.assets,
		Workers:  2,
	})
	t.Cleanup(a.Close)

	f.ctx = &Context{
		Logger:  logger,
		Config:  &config.Config{Registry: reg, Jobs: config.AllJobs},
		Store:   f.store,
		Adapter: a,
		Now:     func() time.Time { return f.now },
	}
	return f
}

func (f *fixture) protocol(t *testing.T, name string) *config.ProtocolSpec {
	t.Helper()
	p, ok := f.ctx.Config.Registry.Protocol(name)
	require.True(t, ok)
	return &p
}

func (f *fixture) daysAgo(n int) time.Time {
	return testNow.AddDate(0, 0, -n)
}
