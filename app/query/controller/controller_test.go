package controller

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/canopy-network/defisnap/app/query/types"
	"github.com/canopy-network/defisnap/pkg/db"
	"github.com/canopy-network/defisnap/pkg/db/memstore"
	models "github.com/canopy-network/defisnap/pkg/db/models/warehouse"
	"github.com/canopy-network/defisnap/pkg/metrics"
	"github.com/go-jose/go-jose/v4/json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

var day0 = time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)

type seeder struct {
	t     *testing.T
	store *memstore.Store
}

func (s seeder) ids(protocol, symbol string, day time.Time) (int64, int64, int64) {
	ctx := context.Background()
	pid, err := s.store.ResolveProtocol(ctx, &models.Protocol{Name: protocol, Segment: "DEX"})
	require.NoError(s.t, err)
	aid, err := s.store.ResolveAsset(ctx, &models.Asset{Symbol: symbol})
	require.NoError(s.t, err)
	tid, err := s.store.ResolveTimeBucket(ctx, day)
	require.NoError(s.t, err)
	return pid, aid, tid
}

func (s seeder) tvl(protocol, addr string, day time.Time, value float64) {
	pid, aid, tid := s.ids(protocol, "ADA", day)
	_, err := s.store.InsertSnapshots(context.Background(), models.FactTVL, []*models.Snapshot{{
		ProtocolID: pid, AssetID: aid, TimeID: tid, Discriminator: addr, Value: value,
	}})
	require.NoError(s.t, err)
}

func (s seeder) risk(protocol, metric string, day time.Time, value float64) {
	pid, _, tid := s.ids(protocol, "ADA", day)
	_, err := s.store.InsertRiskMetrics(context.Background(), []*models.RiskMetric{{
		ProtocolID: pid, TimeID: tid, Name: metric, Value: value, CollectedAt: day.Add(6 * time.Hour),
	}})
	require.NoError(s.t, err)
}

func newTestApp(t *testing.T, store db.QueryStore) *types.App {
	t.Helper()
	return &types.App{Store: store, Metrics: metrics.New(), Logger: zaptest.NewLogger(t)}
}

func serve(t *testing.T, app *types.App, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	router, err := NewController(app).NewRouter()
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	WithCORS(router).ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	return rec
}

func TestHandleTVLReturnsAscendingDailySeries(t *testing.T) {
	store := memstore.New()
	s := seeder{t: t, store: store}
	s.tvl("Minswap", "addr_b", day0.AddDate(0, 0, 1), 300)
	s.tvl("Minswap", "addr_a", day0, 100)
	s.tvl("Minswap", "addr_b", day0, 50)
	s.tvl("Indigo", "addr_x", day0, 9999)

	rec := serve(t, newTestApp(t, store), http.MethodGet, "/tvl/minswap")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))

	var body []struct {
		Timestamp string  `json:"timestamp"`
		TVL       float64 `json:"tvl"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body, 2)
	assert.Equal(t, "2026-05-01T00:00:00Z", body[0].Timestamp)
	assert.InDelta(t, 150.0, body[0].TVL, 1e-9)
	assert.Equal(t, "2026-05-02T00:00:00Z", body[1].Timestamp)
	assert.InDelta(t, 300.0, body[1].TVL, 1e-9)
}

func TestHandleTVLUnknownProtocolIsNotFound(t *testing.T) {
	rec := serve(t, newTestApp(t, memstore.New()), http.MethodGet, "/tvl/unknown")
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"error":"no TVL data found"}`, rec.Body.String())
}

func TestHandleRiskReturnsTenMostRecent(t *testing.T) {
	store := memstore.New()
	s := seeder{t: t, store: store}
	for i := 0; i < 12; i++ {
		s.risk("Indigo", models.MetricTVLVolatility, day0.AddDate(0, 0, i), float64(i))
	}

	rec := serve(t, newTestApp(t, store), http.MethodGet, "/risk/Indigo")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Protocol string `json:"protocol"`
		Metrics  []struct {
			Metric    string  `json:"metric"`
			Value     float64 `json:"value"`
			Timestamp string  `json:"timestamp"`
		} `json:"metrics"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "Indigo", body.Protocol)
	require.Len(t, body.Metrics, 10)
	assert.Equal(t, models.MetricTVLVolatility, body.Metrics[0].Metric)
	assert.InDelta(t, 11.0, body.Metrics[0].Value, 1e-9)
	assert.Equal(t, "2026-05-12T06:00:00Z", body.Metrics[0].Timestamp)
	assert.InDelta(t, 2.0, body.Metrics[9].Value, 1e-9)
}

func TestHandleRiskWithoutRowsIsNotFound(t *testing.T) {
	store := memstore.New()
	seeder{t: t, store: store}.tvl("Minswap", "addr_a", day0, 1)

	rec := serve(t, newTestApp(t, store), http.MethodGet, "/risk/Minswap")
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"error":"no risk metrics found"}`, rec.Body.String())
}

type brokenStore struct {
	*memstore.Store
}

func (brokenStore) TVLSeries(context.Context, string) ([]models.TVLPoint, error) {
	return nil, errors.New(`pq: relation "fact_tvl" does not exist`)
}

func (brokenStore) Ping(context.Context) error {
	return errors.New("connection refused")
}

func TestStoreErrorsDoNotLeak(t *testing.T) {
	app := newTestApp(t, brokenStore{Store: memstore.New()})

	rec := serve(t, app, http.MethodGet, "/tvl/Minswap")
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"query failed"}`, rec.Body.String())
	assert.NotContains(t, rec.Body.String(), "fact_tvl")

	health := serve(t, app, http.MethodGet, "/health")
	assert.Equal(t, http.StatusInternalServerError, health.Code)
}

func TestHandlePricesAndAPY(t *testing.T) {
	store := memstore.New()
	s := seeder{t: t, store: store}
	pid, aid, tid := s.ids("Liqwid", "ADA", day0)
	ctx := context.Background()
	_, err := store.InsertTokenPrices(ctx, []*models.TokenPrice{{AssetID: aid, TimeID: tid, PriceUSD: 0.35, DataSource: models.SourceManual}})
	require.NoError(t, err)
	_, err = store.InsertSnapshots(ctx, models.FactAPY, []*models.Snapshot{{
		ProtocolID: pid, AssetID: aid, TimeID: tid, Discriminator: "qADA:supply", Value: 0.035, DataSource: models.SourceEstimated,
	}})
	require.NoError(t, err)
	app := newTestApp(t, store)

	prices := serve(t, app, http.MethodGet, "/prices/ada")
	require.Equal(t, http.StatusOK, prices.Code)
	assert.Contains(t, prices.Body.String(), `"price_usd":0.35`)

	apy := serve(t, app, http.MethodGet, "/apy/liqwid")
	require.Equal(t, http.StatusOK, apy.Code)
	assert.Contains(t, apy.Body.String(), `"qADA:supply"`)

	missing := serve(t, app, http.MethodGet, "/prices/NOPE")
	assert.Equal(t, http.StatusNotFound, missing.Code)
}

func TestHealthAndMetrics(t *testing.T) {
	app := newTestApp(t, memstore.New())

	health := serve(t, app, http.MethodGet, "/health")
	require.Equal(t, http.StatusOK, health.Code)
	assert.JSONEq(t, `{"status":"ok"}`, health.Body.String())

	_ = serve(t, app, http.MethodGet, "/tvl/nobody")

	rec := serve(t, app, http.MethodGet, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), `defisnap_http_requests_total{code="404",route="/tvl/{protocol}"} 1`))
}

func TestPreflightShortCircuits(t *testing.T) {
	rec := serve(t, newTestApp(t, memstore.New()), http.MethodOptions, "/tvl/minswap")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), http.MethodGet)
}
