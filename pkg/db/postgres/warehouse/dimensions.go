package warehouse

import (
	"context"
	"fmt"
	"strings"
	"time"

	models "github.com/canopy-network/defisnap/pkg/db/models/warehouse"
	"github.com/canopy-network/defisnap/pkg/db/postgres"
)

// dimension describes a get-or-create table: a unique natural key column plus the
// attribute columns written only when the row is first created. A folded key is unique
// case-insensitively, matching how the read queries look names up.
type dimension struct {
	table string
	key   string
	fold  bool
	attrs []string
}

var (
	protocolDim = dimension{table: models.ProtocolTableName, key: "name", fold: true, attrs: []string{"segment", "chain"}}
	assetDim    = dimension{table: models.AssetTableName, key: "symbol", fold: true, attrs: []string{"name", "policy_id", "fingerprint"}}
	timeDim     = dimension{table: models.TimeBucketTableName, key: "date"}
)

// conflictTarget names the unique index the key is checked against.
func (d dimension) conflictTarget() string {
	if d.fold {
		return fmt.Sprintf("(LOWER(%s))", d.key)
	}
	return d.key
}

// insertSQL builds the conflict-ignoring insert. RETURNING yields no row when another
// writer created the key first.
func (d dimension) insertSQL() string {
	cols := append([]string{d.key}, d.attrs...)
	placeholders := make([]string, len(cols))
	for i := range cols {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}
	return fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s) DO NOTHING RETURNING id",
		d.table, strings.Join(cols, ", "), strings.Join(placeholders, ", "), d.conflictTarget(),
	)
}

func (d dimension) selectSQL() string {
	if d.fold {
		return fmt.Sprintf("SELECT id FROM %s WHERE LOWER(%s) = LOWER($1)", d.table, d.key)
	}
	return fmt.Sprintf("SELECT id FROM %s WHERE %s = $1", d.table, d.key)
}

// resolveID returns the id for key in dim, creating the row with attrs when absent.
// Concurrent callers racing on the same key all end up with the single surviving id.
func (db *DB) resolveID(ctx context.Context, exec postgres.Executor, dim dimension, cacheKey string, key any, attrs ...any) (int64, error) {
	if len(attrs) != len(dim.attrs) {
		return 0, fmt.Errorf("resolve %s: expected %d attributes, got %d", dim.table, len(dim.attrs), len(attrs))
	}

	if dim.fold {
		cacheKey = strings.ToLower(cacheKey)
	}
	ck := dim.table + "|" + cacheKey
	if id, ok := db.ids.Load(ck); ok {
		return id, nil
	}

	var id int64
	args := append([]any{key}, attrs...)
	err := exec.QueryRow(ctx, dim.insertSQL(), args...).Scan(&id)
	if postgres.IsNoRows(err) {
		err = exec.QueryRow(ctx, dim.selectSQL(), key).Scan(&id)
	}
	if err != nil {
		return 0, fmt.Errorf("resolve %s %q: %w", dim.table, cacheKey, err)
	}

	db.ids.Store(ck, id)
	return id, nil
}

// ResolveProtocol returns the id of the protocol named p.Name, creating it on first use.
func (db *DB) ResolveProtocol(ctx context.Context, p *models.Protocol) (int64, error) {
	return db.resolveID(ctx, db.GetExecutor(ctx), protocolDim, p.Name, p.Name, p.Segment, p.Chain)
}

// ResolveAsset returns the id of the asset with symbol a.Symbol, creating it on first use.
// Empty policy id and fingerprint are stored as NULL.
func (db *DB) ResolveAsset(ctx context.Context, a *models.Asset) (int64, error) {
	return db.resolveID(ctx, db.GetExecutor(ctx), assetDim, a.Symbol, a.Symbol, a.Name, nullable(a.PolicyID), nullable(a.Fingerprint))
}

// ResolveTimeBucket returns the id of the UTC calendar day containing t.
func (db *DB) ResolveTimeBucket(ctx context.Context, t time.Time) (int64, error) {
	day := models.BucketDate(t)
	return db.resolveID(ctx, db.GetExecutor(ctx), timeDim, day.Format(time.DateOnly), day)
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
