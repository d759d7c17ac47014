// Package memstore is an in-memory warehouse used for dry runs and tests. It keeps the
// same natural-key and conflict-ignore rules as the Postgres warehouse.
package memstore

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/canopy-network/defisnap/pkg/db"
	models "github.com/canopy-network/defisnap/pkg/db/models/warehouse"
)

var (
	_ db.WarehouseStore = (*Store)(nil)
	_ db.QueryStore     = (*Store)(nil)
)

type priceKey struct {
	AssetID int64
	TimeID  int64
}

type riskKey struct {
	ProtocolID int64
	TimeID     int64
	Name       string
}

type Store struct {
	mu sync.Mutex

	nextID    int64
	protocols map[string]*models.Protocol
	assets    map[string]*models.Asset
	buckets   map[string]*models.TimeBucket
	dates     map[int64]time.Time

	facts  map[models.FactTable]map[models.SnapshotKey]*models.Snapshot
	prices map[priceKey]*models.TokenPrice
	risk   map[riskKey]*models.RiskMetric

	// FailInserts makes every insert fail, to exercise abort paths.
	FailInserts error
}

func New() *Store {
	s := &Store{
		protocols: make(map[string]*models.Protocol),
		assets:    make(map[string]*models.Asset),
		buckets:   make(map[string]*models.TimeBucket),
		dates:     make(map[int64]time.Time),
		facts:     make(map[models.FactTable]map[models.SnapshotKey]*models.Snapshot),
		prices:    make(map[priceKey]*models.TokenPrice),
		risk:      make(map[riskKey]*models.RiskMetric),
	}
	for _, t := range models.ProtocolFactTables {
		s.facts[t] = make(map[models.SnapshotKey]*models.Snapshot)
	}
	return s
}

func (s *Store) id() int64 {
	s.nextID++
	return s.nextID
}

func (s *Store) ResolveProtocol(_ context.Context, p *models.Protocol) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := strings.ToLower(p.Name)
	if existing, ok := s.protocols[key]; ok {
		return existing.ID, nil
	}
	row := *p
	row.ID = s.id()
	s.protocols[key] = &row
	return row.ID, nil
}

func (s *Store) ResolveAsset(_ context.Context, a *models.Asset) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := strings.ToLower(a.Symbol)
	if existing, ok := s.assets[key]; ok {
		return existing.ID, nil
	}
	row := *a
	row.ID = s.id()
	s.assets[key] = &row
	return row.ID, nil
}

func (s *Store) ResolveTimeBucket(_ context.Context, t time.Time) (int64, error) {
	day := models.BucketDate(t)
	key := day.Format(time.DateOnly)

	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.buckets[key]; ok {
		return existing.ID, nil
	}
	row := &models.TimeBucket{ID: s.id(), Date: day}
	s.buckets[key] = row
	s.dates[row.ID] = day
	return row.ID, nil
}

// Asset returns the stored asset row by symbol.
func (s *Store) Asset(symbol string) (models.Asset, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.assets[strings.ToLower(symbol)]
	if !ok {
		return models.Asset{}, false
	}
	return *a, true
}

func (s *Store) InsertSnapshots(_ context.Context, table models.FactTable, rows []*models.Snapshot) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	facts, ok := s.facts[table]
	if !ok {
		return 0, fmt.Errorf("unknown fact table %q", table)
	}
	if s.FailInserts != nil {
		return 0, fmt.Errorf("failed to insert %s: %w", table, s.FailInserts)
	}

	var inserted int64
	for _, r := range rows {
		if _, exists := facts[r.Key()]; exists {
			continue
		}
		row := *r
		facts[r.Key()] = &row
		inserted++
	}
	return inserted, nil
}

func (s *Store) InsertTokenPrices(_ context.Context, rows []*models.TokenPrice) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailInserts != nil {
		return 0, fmt.Errorf("failed to insert %s: %w", models.TokenPriceTableName, s.FailInserts)
	}

	var inserted int64
	for _, r := range rows {
		k := priceKey{AssetID: r.AssetID, TimeID: r.TimeID}
		if _, exists := s.prices[k]; exists {
			continue
		}
		row := *r
		s.prices[k] = &row
		inserted++
	}
	return inserted, nil
}

func (s *Store) InsertRiskMetrics(_ context.Context, rows []*models.RiskMetric) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailInserts != nil {
		return 0, fmt.Errorf("failed to insert %s: %w", models.RiskMetricTableName, s.FailInserts)
	}

	var inserted int64
	for _, r := range rows {
		k := riskKey{ProtocolID: r.ProtocolID, TimeID: r.TimeID, Name: r.Name}
		if _, exists := s.risk[k]; exists {
			continue
		}
		row := *r
		s.risk[k] = &row
		inserted++
	}
	return inserted, nil
}

func (s *Store) DailyTVL(_ context.Context, protocolID int64, since time.Time) ([]models.TVLPoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dailyTVL(func(r *models.Snapshot) bool { return r.ProtocolID == protocolID }, models.BucketDate(since)), nil
}

func (s *Store) dailyTVL(match func(*models.Snapshot) bool, since time.Time) []models.TVLPoint {
	sums := make(map[time.Time]float64)
	for _, r := range s.facts[models.FactTVL] {
		if !match(r) {
			continue
		}
		d := s.dates[r.TimeID]
		if d.Before(since) {
			continue
		}
		sums[d] += r.Value
	}

	out := make([]models.TVLPoint, 0, len(sums))
	for d, v := range sums {
		out = append(out, models.TVLPoint{Date: d, TVL: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out
}

func (s *Store) LatestWalletValues(_ context.Context, protocolID int64) ([]float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var latest time.Time
	for _, r := range s.facts[models.FactWalletBalance] {
		if r.ProtocolID == protocolID && s.dates[r.TimeID].After(latest) {
			latest = s.dates[r.TimeID]
		}
	}

	var out []float64
	for _, r := range s.facts[models.FactWalletBalance] {
		if r.ProtocolID == protocolID && s.dates[r.TimeID].Equal(latest) {
			out = append(out, r.Value)
		}
	}
	return out, nil
}

func (s *Store) ExchangeRates(_ context.Context, protocolID int64, pool string, since time.Time) ([]models.RatePoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	since = models.BucketDate(since)
	var out []models.RatePoint
	for _, r := range s.facts[models.FactExchangeRate] {
		d := s.dates[r.TimeID]
		if r.ProtocolID == protocolID && r.Discriminator == pool && !d.Before(since) {
			out = append(out, models.RatePoint{Date: d, Rate: r.Value})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

func (s *Store) SweepProtocol(_ context.Context, protocolID int64, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff = models.BucketDate(cutoff)
	var deleted int64
	for _, facts := range s.facts {
		for k, r := range facts {
			if r.ProtocolID == protocolID && s.dates[r.TimeID].Before(cutoff) {
				delete(facts, k)
				deleted++
			}
		}
	}
	for k, r := range s.risk {
		if r.ProtocolID == protocolID && s.dates[r.TimeID].Before(cutoff) {
			delete(s.risk, k)
			deleted++
		}
	}
	return deleted, nil
}

func (s *Store) SweepTokenPrices(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff = models.BucketDate(cutoff)
	var deleted int64
	for k, r := range s.prices {
		if s.dates[r.TimeID].Before(cutoff) {
			delete(s.prices, k)
			deleted++
		}
	}
	return deleted, nil
}

// Count returns the number of rows held in a table, by table name.
func (s *Store) Count(table string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch table {
	case models.TokenPriceTableName:
		return len(s.prices)
	case models.RiskMetricTableName:
		return len(s.risk)
	case models.ProtocolTableName:
		return len(s.protocols)
	case models.AssetTableName:
		return len(s.assets)
	case models.TimeBucketTableName:
		return len(s.buckets)
	}
	return len(s.facts[models.FactTable(table)])
}

// Snapshots returns a copy of every row in a fact table ordered by natural key.
func (s *Store) Snapshots(table models.FactTable) []models.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.Snapshot, 0, len(s.facts[table]))
	for _, r := range s.facts[table] {
		out = append(out, *r)
	}
	slices.SortFunc(out, func(a, b models.Snapshot) int {
		if a.TimeID != b.TimeID {
			return int(a.TimeID - b.TimeID)
		}
		if a.AssetID != b.AssetID {
			return int(a.AssetID - b.AssetID)
		}
		return strings.Compare(a.Discriminator, b.Discriminator)
	})
	return out
}

func (s *Store) protocolByName(name string) (*models.Protocol, bool) {
	p, ok := s.protocols[strings.ToLower(name)]
	return p, ok
}

func (s *Store) TVLSeries(_ context.Context, protocol string) ([]models.TVLPoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.protocolByName(protocol)
	if !ok {
		return nil, fmt.Errorf("tvl for %q: %w", protocol, db.ErrNotFound)
	}
	out := s.dailyTVL(func(r *models.Snapshot) bool { return r.ProtocolID == p.ID }, time.Time{})
	if len(out) == 0 {
		return nil, fmt.Errorf("tvl for %q: %w", protocol, db.ErrNotFound)
	}
	return out, nil
}

func (s *Store) RecentRiskMetrics(_ context.Context, protocol string, limit int) ([]models.RiskMetricRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.protocolByName(protocol)
	if !ok {
		return nil, fmt.Errorf("risk metrics for %q: %w", protocol, db.ErrNotFound)
	}

	var out []models.RiskMetricRow
	for _, r := range s.risk {
		if r.ProtocolID == p.ID {
			out = append(out, models.RiskMetricRow{Metric: r.Name, Value: r.Value, CollectedAt: r.CollectedAt.UTC()})
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("risk metrics for %q: %w", protocol, db.ErrNotFound)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CollectedAt.Equal(out[j].CollectedAt) {
			return out[i].CollectedAt.After(out[j].CollectedAt)
		}
		return out[i].Metric < out[j].Metric
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) APYSeries(_ context.Context, protocol string) ([]models.APYPoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.protocolByName(protocol)
	if !ok {
		return nil, fmt.Errorf("apy for %q: %w", protocol, db.ErrNotFound)
	}

	symbols := make(map[int64]string, len(s.assets))
	for _, a := range s.assets {
		symbols[a.ID] = a.Symbol
	}

	var out []models.APYPoint
	for _, r := range s.facts[models.FactAPY] {
		if r.ProtocolID == p.ID {
			out = append(out, models.APYPoint{
				Date: s.dates[r.TimeID], Pool: r.Discriminator, Asset: symbols[r.AssetID],
				APY: r.Value, DataSource: r.DataSource,
			})
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("apy for %q: %w", protocol, db.ErrNotFound)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Pool != out[j].Pool {
			return out[i].Pool < out[j].Pool
		}
		return out[i].Date.Before(out[j].Date)
	})
	return out, nil
}

func (s *Store) PriceSeries(_ context.Context, symbol string) ([]models.PricePoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var assetID int64 = -1
	if a, ok := s.assets[strings.ToLower(symbol)]; ok {
		assetID = a.ID
	}

	var out []models.PricePoint
	for _, r := range s.prices {
		if r.AssetID == assetID {
			out = append(out, models.PricePoint{Date: s.dates[r.TimeID], PriceUSD: r.PriceUSD, DataSource: r.DataSource})
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("prices for %q: %w", symbol, db.ErrNotFound)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) Close() error { return nil }
