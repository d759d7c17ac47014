package warehouse

import (
	"strings"
	"testing"

	models "github.com/canopy-network/defisnap/pkg/db/models/warehouse"
	"github.com/stretchr/testify/assert"
)

func TestDimensionInsertSQL(t *testing.T) {
	assert.Equal(t,
		"INSERT INTO dim_asset (symbol, name, policy_id, fingerprint) VALUES ($1, $2, $3, $4) ON CONFLICT ((LOWER(symbol))) DO NOTHING RETURNING id",
		assetDim.insertSQL(),
	)
	assert.Equal(t,
		"INSERT INTO dim_time (date) VALUES ($1) ON CONFLICT (date) DO NOTHING RETURNING id",
		timeDim.insertSQL(),
	)
	assert.Equal(t, "SELECT id FROM dim_protocol WHERE LOWER(name) = LOWER($1)", protocolDim.selectSQL())
	assert.Equal(t, "SELECT id FROM dim_time WHERE date = $1", timeDim.selectSQL())
}

func TestSnapshotInsertSQLIgnoresConflicts(t *testing.T) {
	for _, table := range models.ProtocolFactTables {
		q := snapshotInsertSQL(table)
		assert.Contains(t, q, "INSERT INTO "+string(table))
		assert.Contains(t, q, "ON CONFLICT (protocol_id, asset_id, time_id, discriminator) DO NOTHING")
	}
}

func TestSweepSQL(t *testing.T) {
	q := sweepSQL("fact_tvl", true)
	assert.Contains(t, q, "f.protocol_id = $1")
	assert.Contains(t, q, "t.date < $2")

	q = sweepSQL(models.TokenPriceTableName, false)
	assert.False(t, strings.Contains(q, "protocol_id"))
	assert.Contains(t, q, "t.date < $1")
}
