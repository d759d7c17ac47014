package risk

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStdDev(t *testing.T) {
	assert.Equal(t, 0.0, StdDev(nil))
	assert.Equal(t, 0.0, StdDev([]float64{42}))
	assert.InDelta(t, 0.0, StdDev([]float64{5, 5, 5}), 1e-12)
	// sample stddev of 2,4,4,4,5,5,7,9 is sqrt(32/7)
	assert.InDelta(t, 2.138089935, StdDev([]float64{2, 4, 4, 4, 5, 5, 7, 9}), 1e-9)
}

func TestConcentration(t *testing.T) {
	// ten whales holding 9 each and ten minnows holding 1 each
	var balances []float64
	for i := 0; i < 10; i++ {
		balances = append(balances, 9, 1)
	}
	assert.InDelta(t, 90.0, Concentration(balances, 10), 1e-9)

	assert.Equal(t, 0.0, Concentration(nil, 10))
	assert.Equal(t, 0.0, Concentration([]float64{0, 0}, 10))
	assert.Equal(t, 0.0, Concentration([]float64{-5, 2}, 10))
	assert.InDelta(t, 100.0, Concentration([]float64{3, 2, 1}, 10), 1e-9)
	assert.InDelta(t, 50.0, Concentration([]float64{3, 2, 1}, 1), 1e-9)
}

func TestAnnualizedGrowth(t *testing.T) {
	r, ok := AnnualizedGrowth(1.0, 1.0, 7)
	assert.True(t, ok)
	assert.InDelta(t, 0.0, r, 1e-12)

	// doubling over a full year is 100%
	r, ok = AnnualizedGrowth(1.0, 2.0, 365)
	assert.True(t, ok)
	assert.InDelta(t, 1.0, r, 1e-12)

	_, ok = AnnualizedGrowth(0, 1, 7)
	assert.False(t, ok)
	_, ok = AnnualizedGrowth(1, 1, 0)
	assert.False(t, ok)
}
