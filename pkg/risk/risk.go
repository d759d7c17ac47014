// Package risk holds the pure math behind the derived protocol metrics.
package risk

import (
	"math"
	"sort"

	"github.com/shopspring/decimal"
)

// StdDev is the sample standard deviation (n-1 denominator). Fewer than two
// observations have no spread and yield 0.
func StdDev(values []float64) float64 {
	n := len(values)
	if n < 2 {
		return 0
	}

	var mean float64
	for _, v := range values {
		mean += v
	}
	mean /= float64(n)

	var ss float64
	for _, v := range values {
		d := v - mean
		ss += d * d
	}
	return math.Sqrt(ss / float64(n-1))
}

// Concentration is the share, in percent, of the total balance held by the topN
// largest balances. A non-positive total yields 0 and the result is clamped to [0, 100].
func Concentration(balances []float64, topN int) float64 {
	if len(balances) == 0 || topN <= 0 {
		return 0
	}

	sorted := make([]decimal.Decimal, len(balances))
	total := decimal.Zero
	for i, b := range balances {
		sorted[i] = decimal.NewFromFloat(b)
		total = total.Add(sorted[i])
	}
	if !total.IsPositive() {
		return 0
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].GreaterThan(sorted[j]) })

	if topN > len(sorted) {
		topN = len(sorted)
	}
	top := decimal.Zero
	for _, b := range sorted[:topN] {
		top = top.Add(b)
	}

	pct, _ := top.Div(total).Mul(decimal.NewFromInt(100)).Float64()
	return math.Min(100, math.Max(0, pct))
}

// AnnualizedGrowth converts the growth of a rate from then to now over days into a
// yearly rate: (now/then)^(365/days) - 1. ok is false when the inputs cannot produce
// a meaningful value.
func AnnualizedGrowth(then, now float64, days float64) (rate float64, ok bool) {
	if then <= 0 || now <= 0 || days <= 0 {
		return 0, false
	}
	r := math.Pow(now/then, 365/days) - 1
	if math.IsInf(r, 0) || math.IsNaN(r) {
		return 0, false
	}
	return r, true
}
