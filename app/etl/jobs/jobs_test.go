package jobs

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/canopy-network/defisnap/pkg/chainapi"
	models "github.com/canopy-network/defisnap/pkg/db/models/warehouse"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordPrices(t *testing.T) {
	f := newFixture(t)
	f.assets.info = map[string]*chainapi.AssetInfo{
		"min01":  {PolicyID: "minpolicy", Fingerprint: "asset1min", Quantity: "1"},
		"qada01": {PolicyID: "qpolicy", Fingerprint: "asset1qada", Quantity: "1"},
		"np01":   {PolicyID: "nppolicy", Fingerprint: "asset1np", Quantity: "1"},
	}
	ctx := context.Background()

	out, err := f.ctx.RecordPrices(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), out.Inserted) // ADA, MIN, iUSD carry a price
	assert.Equal(t, 1, out.Skipped)         // iUSD metadata missing

	minAsset, ok := f.store.Asset("MIN")
	require.True(t, ok)
	assert.Equal(t, "asset1min", minAsset.Fingerprint)
	assert.Equal(t, "minpolicy", minAsset.PolicyID)

	iusd, ok := f.store.Asset("iUSD")
	require.True(t, ok)
	assert.Empty(t, iusd.Fingerprint)

	again, err := f.ctx.RecordPrices(ctx)
	require.NoError(t, err)
	assert.Zero(t, again.Inserted)
	assert.Equal(t, 3, f.store.Count(models.TokenPriceTableName))
}

func TestSnapshotTVLIsIdempotent(t *testing.T) {
	f := newFixture(t)
	f.utxo.set("addr_pool1",
		chainapi.Amount{Unit: "lovelace", Quantity: "10000000"},
		chainapi.Amount{Unit: "min01", Quantity: "100000000"},
		chainapi.Amount{Unit: "np01", Quantity: "5"},
	)
	f.utxo.set("addr_pool2", chainapi.Amount{Unit: "lovelace", Quantity: "2000000"})
	p := f.protocol(t, "Minswap")
	ctx := context.Background()

	out, err := f.ctx.SnapshotTVL(ctx, p)
	require.NoError(t, err)
	assert.Equal(t, int64(3), out.Inserted)
	assert.Zero(t, out.Skipped)

	rows := f.store.Snapshots(models.FactTVL)
	require.Len(t, rows, 3)
	var total float64
	for _, r := range rows {
		total += r.Value
		assert.Equal(t, models.SourceBlockfrost, r.DataSource)
	}
	assert.InDelta(t, 8.0, total, 1e-9) // 10 ADA * 0.5 + 100 MIN * 0.02 + 2 ADA * 0.5

	again, err := f.ctx.SnapshotTVL(ctx, p)
	require.NoError(t, err)
	assert.Zero(t, again.Inserted)
	assert.Equal(t, 3, f.store.Count(string(models.FactTVL)))
}

func TestSnapshotTVLSkipsFailingAddress(t *testing.T) {
	f := newFixture(t)
	f.utxo.set("addr_pool1", chainapi.Amount{Unit: "lovelace", Quantity: "10000000"})
	f.utxo.fail = map[string]error{"addr_pool2": errors.New("502 bad gateway")}

	out, err := f.ctx.SnapshotTVL(context.Background(), f.protocol(t, "Minswap"))
	require.NoError(t, err)
	assert.Equal(t, int64(1), out.Inserted)
	assert.Equal(t, 1, out.Skipped)
}

func TestSnapshotTVLProviderOutageIsNotFatal(t *testing.T) {
	f := newFixture(t)
	f.assets.holdersErr = errors.New("circuit open")

	out, err := f.ctx.SnapshotTVL(context.Background(), f.protocol(t, "Indigo"))
	require.NoError(t, err)
	assert.Zero(t, out.Inserted)
	assert.Equal(t, 1, out.Skipped)
}

func TestSnapshotTVLStoreErrorIsFatal(t *testing.T) {
	f := newFixture(t)
	f.utxo.set("addr_pool1", chainapi.Amount{Unit: "lovelace", Quantity: "10000000"})
	f.store.FailInserts = errors.New("connection reset")

	_, err := f.ctx.SnapshotTVL(context.Background(), f.protocol(t, "Minswap"))
	require.Error(t, err)
	assert.Zero(t, f.store.Count(string(models.FactTVL)))
}

func TestWalletsFeedWhaleConcentration(t *testing.T) {
	f := newFixture(t)
	var holders []chainapi.AssetHolder
	for i := 0; i < 10; i++ {
		holders = append(holders, chainapi.AssetHolder{Address: fmt.Sprintf("whale_%02d", i), Quantity: "9000000"})
	}
	for i := 0; i < 10; i++ {
		holders = append(holders, chainapi.AssetHolder{Address: fmt.Sprintf("minnow_%02d", i), Quantity: "1000000"})
	}
	f.assets.holders = map[string][]chainapi.AssetHolder{"iusd01": holders}
	p := f.protocol(t, "Indigo")
	ctx := context.Background()

	out, err := f.ctx.SnapshotWallets(ctx, p)
	require.NoError(t, err)
	assert.Equal(t, int64(20), out.Inserted)

	_, err = f.ctx.ComputeRisk(ctx, p)
	require.NoError(t, err)

	metrics, err := f.store.RecentRiskMetrics(ctx, "indigo", 10)
	require.NoError(t, err)
	byName := map[string]float64{}
	for _, m := range metrics {
		byName[m.Metric] = m.Value
	}
	assert.InDelta(t, 90.0, byName[models.MetricWhaleConcentration], 1e-9)
	assert.Zero(t, byName[models.MetricTVLVolatility])
}

func TestSnapshotWalletsWithoutSectionIsNoop(t *testing.T) {
	f := newFixture(t)
	out, err := f.ctx.SnapshotWallets(context.Background(), f.protocol(t, "Minswap"))
	require.NoError(t, err)
	assert.Zero(t, out.Inserted)
	assert.Zero(t, f.store.Count(string(models.FactWalletBalance)))
}

func seedTVL(t *testing.T, f *fixture, protocol string, daysAgo int, value float64) {
	t.Helper()
	ctx := context.Background()
	pid, err := f.store.ResolveProtocol(ctx, &models.Protocol{Name: protocol})
	require.NoError(t, err)
	aid, err := f.store.ResolveAsset(ctx, &models.Asset{Symbol: "ADA"})
	require.NoError(t, err)
	tid, err := f.store.ResolveTimeBucket(ctx, f.daysAgo(daysAgo))
	require.NoError(t, err)
	_, err = f.store.InsertSnapshots(ctx, models.FactTVL, []*models.Snapshot{{
		ProtocolID: pid, AssetID: aid, TimeID: tid, Discriminator: "addr_pool1",
		Value: value, InsertedAt: f.daysAgo(daysAgo),
	}})
	require.NoError(t, err)
}

func TestComputeRiskVolatilityUsesTrailingWeek(t *testing.T) {
	f := newFixture(t)
	seedTVL(t, f, "Minswap", 8, 1000)
	seedTVL(t, f, "Minswap", 7, 5000) // a week ago is already outside the window
	seedTVL(t, f, "Minswap", 6, 10)
	seedTVL(t, f, "Minswap", 3, 20)
	seedTVL(t, f, "Minswap", 0, 30)
	ctx := context.Background()

	out, err := f.ctx.ComputeRisk(ctx, f.protocol(t, "Minswap"))
	require.NoError(t, err)
	assert.Equal(t, int64(1), out.Inserted) // no wallets section, volatility only

	metrics, err := f.store.RecentRiskMetrics(ctx, "Minswap", 10)
	require.NoError(t, err)
	require.Len(t, metrics, 1)
	assert.Equal(t, models.MetricTVLVolatility, metrics[0].Metric)
	assert.InDelta(t, 10.0, metrics[0].Value, 1e-9)

	again, err := f.ctx.ComputeRisk(ctx, f.protocol(t, "Minswap"))
	require.NoError(t, err)
	assert.Zero(t, again.Inserted)
}

func TestEstimateAPYStagingPlaceholders(t *testing.T) {
	f := newFixture(t)
	f.ctx.Config.StagingMode = true

	out, err := f.ctx.EstimateAPY(context.Background(), f.protocol(t, "Liqwid"))
	require.NoError(t, err)
	assert.Equal(t, int64(2), out.Inserted)

	rows := f.store.Snapshots(models.FactAPY)
	require.Len(t, rows, 2)
	byDisc := map[string]models.Snapshot{}
	for _, r := range rows {
		byDisc[r.Discriminator] = r
	}
	assert.InDelta(t, 0.035, byDisc["qADA:supply"].Value, 1e-12)
	assert.InDelta(t, 0.08, byDisc["qADA:borrow"].Value, 1e-12)
	assert.Equal(t, models.SourceEstimated, byDisc["qADA:borrow"].DataSource)
	assert.Zero(t, f.store.Count(string(models.FactExchangeRate)))
}

func TestEstimateAPYFromExchangeRateGrowth(t *testing.T) {
	f := newFixture(t)
	f.assets.info = map[string]*chainapi.AssetInfo{"qada01": {Quantity: "50000000000"}} // 50k qADA
	p := f.protocol(t, "Liqwid")
	ctx := context.Background()

	f.now = f.daysAgo(7)
	f.utxo.set("addr_liq", chainapi.Amount{Unit: "lovelace", Quantity: "1000000000"}) // 1000 ADA
	first, err := f.ctx.EstimateAPY(ctx, p)
	require.NoError(t, err)
	assert.Equal(t, int64(1), first.Inserted) // rate only, nothing to compare with yet
	assert.Zero(t, f.store.Count(string(models.FactAPY)))

	f.now = testNow
	f.utxo.set("addr_liq", chainapi.Amount{Unit: "lovelace", Quantity: "1001000000"}) // 1001 ADA
	second, err := f.ctx.EstimateAPY(ctx, p)
	require.NoError(t, err)
	assert.Equal(t, int64(2), second.Inserted)

	rows := f.store.Snapshots(models.FactAPY)
	require.Len(t, rows, 1)
	assert.Equal(t, "qADA:supply", rows[0].Discriminator)
	assert.Equal(t, models.SourceDerived, rows[0].DataSource)
	assert.InDelta(t, math.Pow(1.001, 365.0/7)-1, rows[0].Value, 1e-9)
}

func TestEstimateAPYSkipsPoolOnProviderError(t *testing.T) {
	f := newFixture(t)
	f.utxo.fail = map[string]error{"addr_liq": errors.New("timeout")}

	out, err := f.ctx.EstimateAPY(context.Background(), f.protocol(t, "Liqwid"))
	require.NoError(t, err)
	assert.Zero(t, out.Inserted)
	assert.Equal(t, 1, out.Skipped)
}
