package indicators

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRSI(t *testing.T) {
	tests := []struct {
		name   string
		prices []float64 // newest first
		period int
		want   float64
		ok     bool
	}{
		{
			name:   "insufficient data",
			prices: []float64{1, 2, 3},
			period: 14,
			ok:     false,
		},
		{
			name: "all gains",
			// Strictly rising toward the newest entry.
			prices: []float64{10, 9, 8, 7, 6},
			period: 4,
			want:   100,
			ok:     true,
		},
		{
			name:   "balanced",
			prices: []float64{10, 11, 10, 11, 10},
			period: 4,
			want:   50,
			ok:     true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := RSI(tt.prices, tt.period)
			require.Equal(t, tt.ok, ok)
			if ok {
				assert.InDelta(t, tt.want, got, 0.0001)
			}
		})
	}
}

func TestSMA(t *testing.T) {
	got, ok := SMA([]float64{4, 2, 6, 100}, 3)
	require.True(t, ok)
	assert.InDelta(t, 4.0, got, 0.0001)

	_, ok = SMA([]float64{1, 2}, 3)
	assert.False(t, ok)
}

func TestEMAConstantSeries(t *testing.T) {
	got, ok := EMA([]float64{5, 5, 5, 5, 5}, 3)
	require.True(t, ok)
	assert.InDelta(t, 5.0, got, 0.0001)
}

func TestBollingerBandsSymmetry(t *testing.T) {
	mid, upper, lower, ok := Bollinger([]float64{10, 12, 8, 11, 9}, 5, 2)
	require.True(t, ok)
	assert.InDelta(t, 10.0, mid, 0.0001)
	assert.InDelta(t, upper-mid, mid-lower, 0.0001)
	assert.Greater(t, upper, mid)
}

func TestATR(t *testing.T) {
	got, ok := ATR([]float64{10, 8, 11, 9}, 4)
	require.True(t, ok)
	// Adjacent ranges: |10-8|=2, |8-11|=3, |11-9|=2 → 7/4
	assert.InDelta(t, 1.75, got, 0.0001)

	_, ok = ATR([]float64{1, 2}, 3)
	assert.False(t, ok)
}

func TestMomentum(t *testing.T) {
	prices := []float64{10, 9, 8, 7}
	assert.InDelta(t, 3.0, Momentum(prices, 3), 0.0001)
	assert.Zero(t, Momentum(prices, 5))
}

func TestTrendStrength(t *testing.T) {
	// Strictly rising series, newest first: every adjacent move agrees.
	dir, consistency := TrendStrength([]float64{5, 4, 3, 2, 1})
	assert.Equal(t, 1, dir)
	assert.InDelta(t, 1.0, consistency, 0.0001)

	dir, consistency = TrendStrength([]float64{1, 2, 3, 4, 5})
	assert.Equal(t, -1, dir)
	assert.InDelta(t, 1.0, consistency, 0.0001)
}

func TestDoublePattern(t *testing.T) {
	// Alternating down/up from the newest tick back: double top.
	assert.Equal(t, -1, DoublePattern([]float64{10, 11, 10, 11, 10}))
	assert.Equal(t, 1, DoublePattern([]float64{11, 10, 11, 10, 11}))
	assert.Zero(t, DoublePattern([]float64{1, 2, 3, 4, 5}))
}

func TestVolatilityZeroForFlatSeries(t *testing.T) {
	assert.Zero(t, Volatility([]float64{5, 5, 5, 5}))
	assert.Greater(t, Volatility([]float64{5, 7, 4, 6}), 0.0)
}
