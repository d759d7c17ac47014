package warehouse

import "time"

const (
	ProtocolTableName   = "dim_protocol"
	AssetTableName      = "dim_asset"
	TimeBucketTableName = "dim_time"
)

// Protocol is the protocol dimension. Name is the natural key; the row is
// created on first reference and never updated afterwards.
type Protocol struct {
	ID      int64  `json:"id"`
	Name    string `json:"name"`
	Segment string `json:"segment"`
	Chain   string `json:"chain"`
}

// Asset is the asset dimension keyed by Symbol. PolicyID and Fingerprint are
// empty for the chain's native asset.
type Asset struct {
	ID          int64  `json:"id"`
	Symbol      string `json:"symbol"`
	Name        string `json:"name"`
	PolicyID    string `json:"policy_id,omitempty"`
	Fingerprint string `json:"fingerprint,omitempty"`
}

// TimeBucket is the day dimension. Date is always UTC midnight.
type TimeBucket struct {
	ID   int64     `json:"id"`
	Date time.Time `json:"date"`
}

// BucketDate truncates t to its UTC calendar day.
func BucketDate(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// RetentionCutoff returns the first bucket date kept for a horizon of days, counted back
// from now's UTC day. ok is false when the horizon disables retention.
func RetentionCutoff(now time.Time, horizonDays int) (cutoff time.Time, ok bool) {
	if horizonDays <= 0 {
		return time.Time{}, false
	}
	return BucketDate(now).AddDate(0, 0, -horizonDays), true
}
