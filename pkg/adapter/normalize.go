package adapter

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Normalize converts a raw smallest-unit quantity into whole units by shifting it
// decimals places. The conversion is exact.
func Normalize(raw string, decimals int32) (decimal.Decimal, error) {
	q, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid quantity %q: %w", raw, err)
	}
	if decimals < 0 {
		return decimal.Zero, fmt.Errorf("invalid decimals %d", decimals)
	}
	return q.Shift(-decimals), nil
}
