package warehouse

import (
	"context"
	"fmt"
	"time"

	models "github.com/canopy-network/defisnap/pkg/db/models/warehouse"
)

// SweepProtocol deletes every fact and risk row of the protocol whose bucket date is
// strictly before cutoff. All tables are cleared in one transaction.
func (db *DB) SweepProtocol(ctx context.Context, protocolID int64, cutoff time.Time) (int64, error) {
	tables := make([]string, 0, len(models.ProtocolFactTables)+1)
	for _, t := range models.ProtocolFactTables {
		tables = append(tables, string(t))
	}
	tables = append(tables, models.RiskMetricTableName)

	var deleted int64
	err := db.InTx(ctx, func(ctx context.Context) error {
		exec := db.GetExecutor(ctx)
		for _, table := range tables {
			tag, err := exec.Exec(ctx, sweepSQL(table, true), protocolID, models.BucketDate(cutoff))
			if err != nil {
				return fmt.Errorf("sweep %s: %w", table, err)
			}
			deleted += tag.RowsAffected()
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return deleted, nil
}

// SweepTokenPrices deletes price rows whose bucket date is strictly before cutoff.
func (db *DB) SweepTokenPrices(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := db.GetExecutor(ctx).Exec(ctx, sweepSQL(models.TokenPriceTableName, false), models.BucketDate(cutoff))
	if err != nil {
		return 0, fmt.Errorf("sweep %s: %w", models.TokenPriceTableName, err)
	}
	return tag.RowsAffected(), nil
}

func sweepSQL(table string, byProtocol bool) string {
	if byProtocol {
		return fmt.Sprintf(`
			DELETE FROM %s f
			USING dim_time t
			WHERE f.time_id = t.id AND f.protocol_id = $1 AND t.date < $2
		`, table)
	}
	return fmt.Sprintf(`
		DELETE FROM %s f
		USING dim_time t
		WHERE f.time_id = t.id AND t.date < $1
	`, table)
}
