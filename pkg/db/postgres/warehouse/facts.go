package warehouse

import (
	"context"
	"fmt"
	"slices"

	models "github.com/canopy-network/defisnap/pkg/db/models/warehouse"
	"github.com/canopy-network/defisnap/pkg/db/postgres"
	"github.com/jackc/pgx/v5"
)

func snapshotInsertSQL(table models.FactTable) string {
	return fmt.Sprintf(`
		INSERT INTO %s (protocol_id, asset_id, time_id, discriminator, amount, value, data_source, inserted_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (protocol_id, asset_id, time_id, discriminator) DO NOTHING
	`, string(table))
}

// InsertSnapshots writes rows into table in a single transaction. Rows whose natural key
// already exists are ignored, so a second run within the same bucket adds nothing.
func (db *DB) InsertSnapshots(ctx context.Context, table models.FactTable, rows []*models.Snapshot) (int64, error) {
	if !slices.Contains(models.ProtocolFactTables, table) {
		return 0, fmt.Errorf("unknown fact table %q", table)
	}
	if len(rows) == 0 {
		return 0, nil
	}

	batch := &pgx.Batch{}
	query := snapshotInsertSQL(table)
	for _, r := range rows {
		batch.Queue(query,
			r.ProtocolID, r.AssetID, r.TimeID, r.Discriminator,
			r.Amount, r.Value, r.DataSource, r.InsertedAt,
		)
	}

	return db.sendInTx(ctx, string(table), batch)
}

// InsertTokenPrices records at most one price per asset per day.
func (db *DB) InsertTokenPrices(ctx context.Context, rows []*models.TokenPrice) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	batch := &pgx.Batch{}
	query := `
		INSERT INTO fact_token_price (asset_id, time_id, price_usd, data_source, inserted_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (asset_id, time_id) DO NOTHING
	`
	for _, r := range rows {
		batch.Queue(query, r.AssetID, r.TimeID, r.PriceUSD, r.DataSource, r.InsertedAt)
	}

	return db.sendInTx(ctx, models.TokenPriceTableName, batch)
}

// InsertRiskMetrics records at most one value per protocol, day and metric name.
func (db *DB) InsertRiskMetrics(ctx context.Context, rows []*models.RiskMetric) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	batch := &pgx.Batch{}
	query := `
		INSERT INTO fact_risk_metric (protocol_id, time_id, metric_name, value, collected_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (protocol_id, time_id, metric_name) DO NOTHING
	`
	for _, r := range rows {
		batch.Queue(query, r.ProtocolID, r.TimeID, r.Name, r.Value, r.CollectedAt)
	}

	return db.sendInTx(ctx, models.RiskMetricTableName, batch)
}

// sendInTx runs the batch inside a transaction and sums the affected rows. Any failed
// statement rolls the whole batch back.
func (db *DB) sendInTx(ctx context.Context, table string, batch *pgx.Batch) (int64, error) {
	var inserted int64
	err := db.InTx(ctx, func(ctx context.Context) error {
		n, err := executeBatch(ctx, db.GetExecutor(ctx), batch)
		inserted = n
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("failed to insert %s: %w", table, err)
	}
	return inserted, nil
}

func executeBatch(ctx context.Context, exec postgres.Executor, batch *pgx.Batch) (int64, error) {
	br := exec.SendBatch(ctx, batch)
	defer br.Close()

	var affected int64
	for i := 0; i < batch.Len(); i++ {
		tag, err := br.Exec()
		if err != nil {
			return 0, fmt.Errorf("batch statement %d failed: %w", i, err)
		}
		affected += tag.RowsAffected()
	}
	return affected, nil
}
