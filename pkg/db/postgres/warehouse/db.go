package warehouse

import (
	"context"
	"fmt"
	"time"

	"github.com/canopy-network/defisnap/pkg/db"
	"github.com/canopy-network/defisnap/pkg/db/postgres"
	"github.com/puzpuzpuz/xsync/v4"
	"go.uber.org/zap"
)

var (
	_ db.WarehouseStore = (*DB)(nil)
	_ db.QueryStore     = (*DB)(nil)
)

// DB is the Postgres star-schema warehouse.
type DB struct {
	postgres.Client

	// ids caches resolved dimension ids keyed by "<table>|<natural key>". Dimension rows
	// are never updated or deleted, so a cached id stays valid for the life of the process.
	ids *xsync.Map[string, int64]
}

// New connects to the warehouse and creates any missing tables.
func New(ctx context.Context, logger *zap.Logger, dbURL string, poolConfig *postgres.PoolConfig) (*DB, error) {
	client, err := postgres.New(ctx, logger.With(zap.String("component", poolConfig.Component)), dbURL, poolConfig)
	if err != nil {
		return nil, err
	}

	wh := NewFromClient(client)
	if err := wh.InitializeDB(ctx); err != nil {
		client.Close()
		return nil, err
	}
	return wh, nil
}

// NewFromClient wraps an existing client without touching the schema.
func NewFromClient(client postgres.Client) *DB {
	return &DB{
		Client: client,
		ids:    xsync.NewMap[string, int64](),
	}
}

// Close terminates the underlying PostgreSQL connection
func (db *DB) Close() error {
	db.Client.Close()
	return nil
}

// InitializeDB ensures the required tables exist. Dimensions are created before the
// fact tables that reference them.
func (db *DB) InitializeDB(ctx context.Context) error {
	initStart := time.Now()

	initOps := []struct {
		name string
		fn   func(context.Context) error
	}{
		{"dimensions", db.initDimensions},
		{"protocol_facts", db.initProtocolFacts},
		{"token_prices", db.initTokenPrices},
		{"risk_metrics", db.initRiskMetrics},
	}

	for _, op := range initOps {
		db.Logger.Debug("Initializing table", zap.String("table", op.name))
		if err := op.fn(ctx); err != nil {
			return fmt.Errorf("init %s: %w", op.name, err)
		}
	}

	db.Logger.Info("Warehouse initialized successfully", zap.Duration("duration", time.Since(initStart)))
	return nil
}
