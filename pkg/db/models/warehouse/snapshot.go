package warehouse

import "time"

// FactTable names one of the protocol-scoped snapshot tables. They share a
// schema and the natural key (protocol_id, asset_id, time_id, discriminator).
type FactTable string

const (
	FactTVL           FactTable = "fact_tvl"
	FactAPY           FactTable = "fact_apy"
	FactWalletBalance FactTable = "fact_wallet_balance"
	FactExchangeRate  FactTable = "fact_exchange_rate"

	TokenPriceTableName = "fact_token_price"
	RiskMetricTableName = "fact_risk_metric"
)

// ProtocolFactTables lists every table the retention sweeper clears per protocol,
// besides the risk metric table.
var ProtocolFactTables = []FactTable{FactTVL, FactAPY, FactWalletBalance, FactExchangeRate}

// Data source labels recorded on fact rows.
const (
	SourceBlockfrost = "Blockfrost"
	SourceKoios      = "Koios"
	SourceManual     = "Manual"
	SourceDerived    = "Derived"
	SourceEstimated  = "Estimated"
)

// Snapshot is one observation in a protocol-scoped fact table.
//
// Discriminator depends on the table: pool or script address for TVL, "<pool>:supply"
// or "<pool>:borrow" for APY, wallet address for balances, pool name for exchange rates.
// Amount is in whole units of the asset (0 where meaningless). Value is USD for TVL and
// wallet balances, a fraction for APY and underlying-per-qToken for exchange rates.
type Snapshot struct {
	ProtocolID    int64     `json:"protocol_id"`
	AssetID       int64     `json:"asset_id"`
	TimeID        int64     `json:"time_id"`
	Discriminator string    `json:"discriminator"`
	Amount        float64   `json:"amount"`
	Value         float64   `json:"value"`
	DataSource    string    `json:"data_source"`
	InsertedAt    time.Time `json:"inserted_at"`
}

// Key returns the natural key of the row.
func (s *Snapshot) Key() SnapshotKey {
	return SnapshotKey{ProtocolID: s.ProtocolID, AssetID: s.AssetID, TimeID: s.TimeID, Discriminator: s.Discriminator}
}

type SnapshotKey struct {
	ProtocolID    int64
	AssetID       int64
	TimeID        int64
	Discriminator string
}

// TokenPrice is a USD quote for an asset, one per day.
type TokenPrice struct {
	AssetID    int64     `json:"asset_id"`
	TimeID     int64     `json:"time_id"`
	PriceUSD   float64   `json:"price_usd"`
	DataSource string    `json:"data_source"`
	InsertedAt time.Time `json:"inserted_at"`
}

// Risk metric names.
const (
	MetricTVLVolatility      = "tvl_volatility"
	MetricWhaleConcentration = "whale_concentration_pct"
)

// RiskMetric is a derived per-protocol metric, one per name per day.
type RiskMetric struct {
	ProtocolID  int64     `json:"protocol_id"`
	TimeID      int64     `json:"time_id"`
	Name        string    `json:"metric"`
	Value       float64   `json:"value"`
	CollectedAt time.Time `json:"collected_at"`
}
