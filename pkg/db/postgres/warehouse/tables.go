package warehouse

import (
	"context"
	"fmt"

	models "github.com/canopy-network/defisnap/pkg/db/models/warehouse"
)

func (db *DB) initDimensions(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS dim_protocol (
			id BIGSERIAL PRIMARY KEY,
			name TEXT NOT NULL,
			segment TEXT NOT NULL DEFAULT '',
			chain TEXT NOT NULL DEFAULT ''
		);

		CREATE TABLE IF NOT EXISTS dim_asset (
			id BIGSERIAL PRIMARY KEY,
			symbol TEXT NOT NULL,
			name TEXT NOT NULL DEFAULT '',
			policy_id TEXT,
			fingerprint TEXT
		);

		CREATE TABLE IF NOT EXISTS dim_time (
			id BIGSERIAL PRIMARY KEY,
			date DATE NOT NULL UNIQUE
		);

		CREATE UNIQUE INDEX IF NOT EXISTS idx_dim_protocol_lower_name ON dim_protocol (LOWER(name));
		CREATE UNIQUE INDEX IF NOT EXISTS idx_dim_asset_lower_symbol ON dim_asset (LOWER(symbol));
	`
	return db.Exec(ctx, query)
}

// initProtocolFacts creates the four protocol-scoped fact tables. They share a shape,
// so the DDL is generated per table name.
func (db *DB) initProtocolFacts(ctx context.Context) error {
	for _, table := range models.ProtocolFactTables {
		query := fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %[1]s (
				id BIGSERIAL PRIMARY KEY,
				protocol_id BIGINT NOT NULL REFERENCES dim_protocol(id),
				asset_id BIGINT NOT NULL REFERENCES dim_asset(id),
				time_id BIGINT NOT NULL REFERENCES dim_time(id),
				discriminator TEXT NOT NULL DEFAULT '',
				amount DOUBLE PRECISION NOT NULL DEFAULT 0,
				value DOUBLE PRECISION NOT NULL DEFAULT 0,
				data_source TEXT NOT NULL DEFAULT '',
				inserted_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				UNIQUE (protocol_id, asset_id, time_id, discriminator)
			);

			CREATE INDEX IF NOT EXISTS idx_%[1]s_protocol_time ON %[1]s (protocol_id, time_id);
		`, string(table))
		if err := db.Exec(ctx, query); err != nil {
			return fmt.Errorf("%s: %w", table, err)
		}
	}
	return nil
}

func (db *DB) initTokenPrices(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS fact_token_price (
			id BIGSERIAL PRIMARY KEY,
			asset_id BIGINT NOT NULL REFERENCES dim_asset(id),
			time_id BIGINT NOT NULL REFERENCES dim_time(id),
			price_usd DOUBLE PRECISION NOT NULL,
			data_source TEXT NOT NULL DEFAULT '',
			inserted_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
			UNIQUE (asset_id, time_id)
		);
	`
	return db.Exec(ctx, query)
}

func (db *DB) initRiskMetrics(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS fact_risk_metric (
			id BIGSERIAL PRIMARY KEY,
			protocol_id BIGINT NOT NULL REFERENCES dim_protocol(id),
			time_id BIGINT NOT NULL REFERENCES dim_time(id),
			metric_name TEXT NOT NULL,
			value DOUBLE PRECISION NOT NULL,
			collected_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
			UNIQUE (protocol_id, time_id, metric_name)
		);

		CREATE INDEX IF NOT EXISTS idx_fact_risk_metric_collected ON fact_risk_metric (protocol_id, collected_at DESC);
	`
	return db.Exec(ctx, query)
}
