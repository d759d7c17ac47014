package warehouse

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	dbpkg "github.com/canopy-network/defisnap/pkg/db"
	models "github.com/canopy-network/defisnap/pkg/db/models/warehouse"
	"github.com/canopy-network/defisnap/pkg/db/postgres"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// newTestDB connects to POSTGRES_TEST_URL and truncates the warehouse tables. The URL
// must point at a disposable database.
func newTestDB(t *testing.T) *DB {
	t.Helper()
	url := os.Getenv("POSTGRES_TEST_URL")
	if url == "" {
		t.Skip("POSTGRES_TEST_URL not set")
	}

	ctx := context.Background()
	wh, err := New(ctx, zaptest.NewLogger(t), url, postgres.GetPoolConfigForComponent("test"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = wh.Close() })

	require.NoError(t, wh.Exec(ctx, `
		TRUNCATE fact_tvl, fact_apy, fact_wallet_balance, fact_exchange_rate,
			fact_token_price, fact_risk_metric, dim_protocol, dim_asset, dim_time
		RESTART IDENTITY CASCADE
	`))
	return wh
}

func TestResolveIsIdempotentUnderConcurrency(t *testing.T) {
	wh := newTestDB(t)
	ctx := context.Background()

	const workers = 8
	ids := make([]int64, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			// separate caches so every goroutine really hits the database
			other := NewFromClient(wh.Client)
			name := "Minswap"
			if i%2 == 1 {
				name = "minswap"
			}
			id, err := other.ResolveProtocol(ctx, &models.Protocol{Name: name, Segment: "DEX", Chain: "Cardano"})
			assert.NoError(t, err)
			ids[i] = id
		}(i)
	}
	wg.Wait()

	// names differing only in case share one row
	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}

	var count int
	require.NoError(t, wh.Pool.QueryRow(ctx, "SELECT COUNT(*) FROM dim_protocol").Scan(&count))
	assert.Equal(t, 1, count)
}

func TestInsertSnapshotsAndSweep(t *testing.T) {
	wh := newTestDB(t)
	ctx := context.Background()
	now := time.Date(2024, 6, 10, 15, 0, 0, 0, time.UTC)

	pid, err := wh.ResolveProtocol(ctx, &models.Protocol{Name: "Minswap", Segment: "DEX", Chain: "Cardano"})
	require.NoError(t, err)
	aid, err := wh.ResolveAsset(ctx, &models.Asset{Symbol: "ADA", Name: "Cardano"})
	require.NoError(t, err)

	var rows []*models.Snapshot
	for _, day := range []int{0, -1, -5} {
		tid, err := wh.ResolveTimeBucket(ctx, now.AddDate(0, 0, day))
		require.NoError(t, err)
		rows = append(rows, &models.Snapshot{
			ProtocolID: pid, AssetID: aid, TimeID: tid, Discriminator: "addr1",
			Value: 100, DataSource: models.SourceBlockfrost, InsertedAt: now,
		})
	}

	inserted, err := wh.InsertSnapshots(ctx, models.FactTVL, rows)
	require.NoError(t, err)
	assert.EqualValues(t, 3, inserted)

	inserted, err = wh.InsertSnapshots(ctx, models.FactTVL, rows)
	require.NoError(t, err)
	assert.EqualValues(t, 0, inserted)

	series, err := wh.TVLSeries(ctx, "minswap")
	require.NoError(t, err)
	require.Len(t, series, 3)
	assert.True(t, series[0].Date.Before(series[2].Date))

	cutoff, ok := models.RetentionCutoff(now, 3)
	require.True(t, ok)
	deleted, err := wh.SweepProtocol(ctx, pid, cutoff)
	require.NoError(t, err)
	assert.EqualValues(t, 1, deleted)

	_, err = wh.TVLSeries(ctx, "unknown")
	assert.True(t, errors.Is(err, dbpkg.ErrNotFound))
}
