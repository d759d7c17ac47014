package warehouse

import "time"

// TVLPoint is the summed TVL of a protocol for one day.
type TVLPoint struct {
	Date time.Time `json:"timestamp"`
	TVL  float64   `json:"tvl"`
}

// APYPoint is one APY observation for a pool side.
type APYPoint struct {
	Date       time.Time `json:"timestamp"`
	Pool       string    `json:"pool"`
	Asset      string    `json:"asset"`
	APY        float64   `json:"apy"`
	DataSource string    `json:"data_source"`
}

// PricePoint is one daily price of an asset.
type PricePoint struct {
	Date       time.Time `json:"timestamp"`
	PriceUSD   float64   `json:"price_usd"`
	DataSource string    `json:"data_source"`
}

// RiskMetricRow is a risk metric joined with its protocol, as served by the query API.
type RiskMetricRow struct {
	Metric      string    `json:"metric"`
	Value       float64   `json:"value"`
	CollectedAt time.Time `json:"timestamp"`
}

// RatePoint is an exchange rate observation used for APY estimation.
type RatePoint struct {
	Date time.Time
	Rate float64
}
