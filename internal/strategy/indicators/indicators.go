// Package indicators holds the technical-indicator math shared by the
// strategies. All functions take quote slices ordered newest first, matching
// the market feed.
package indicators

import "math"

// RSI computes the Relative Strength Index over the given period. ok is
// false when fewer than period+1 prices are available.
func RSI(prices []float64, period int) (float64, bool) {
	if len(prices) < period+1 {
		return 0, false
	}
	var gains, losses float64
	for i := 1; i <= period; i++ {
		diff := prices[i-1] - prices[i]
		if diff >= 0 {
			gains += diff
		} else {
			losses -= diff
		}
	}
	avgGain := gains / float64(period)
	avgLoss := losses / float64(period)
	if avgLoss == 0 {
		return 100, true
	}
	rs := avgGain / avgLoss
	return 100 - (100 / (1 + rs)), true
}

// EMA computes the exponential moving average, seeding from the oldest price
// and folding toward the newest.
func EMA(prices []float64, period int) (float64, bool) {
	if len(prices) < period {
		return 0, false
	}
	multiplier := 2.0 / float64(period+1)
	ema := prices[len(prices)-1]
	for i := len(prices) - 2; i >= 0; i-- {
		ema = (prices[i]-ema)*multiplier + ema
	}
	return ema, true
}

// MACD returns the MACD line, signal line and histogram using the standard
// 12/26/9 periods.
func MACD(prices []float64) (macd, signal, histogram float64) {
	fast, okFast := EMA(prices, 12)
	slow, okSlow := EMA(prices, 26)
	if !okFast || !okSlow {
		return 0, 0, 0
	}
	macd = fast - slow
	extended := make([]float64, len(prices)+1)
	copy(extended, prices)
	extended[len(prices)] = macd
	signal, _ = EMA(extended, 9)
	return macd, signal, macd - signal
}

// SMA computes the simple moving average of the newest period prices.
func SMA(prices []float64, period int) (float64, bool) {
	if len(prices) < period || period <= 0 {
		return 0, false
	}
	total := 0.0
	for i := 0; i < period; i++ {
		total += prices[i]
	}
	return total / float64(period), true
}

// Bollinger computes Bollinger Bands over the newest period prices with the
// given standard-deviation multiplier.
func Bollinger(prices []float64, period int, mult float64) (middle, upper, lower float64, ok bool) {
	sma, ok := SMA(prices, period)
	if !ok {
		return 0, 0, 0, false
	}
	variance := 0.0
	for i := 0; i < period; i++ {
		variance += math.Pow(prices[i]-sma, 2)
	}
	variance /= float64(period)
	stdDev := math.Sqrt(variance)
	return sma, sma + mult*stdDev, sma - mult*stdDev, true
}

// ATR computes a tick-range average over the period: the mean absolute move
// between adjacent observations.
func ATR(prices []float64, period int) (float64, bool) {
	if len(prices) < period || period <= 1 {
		return 0, false
	}
	atr := 0.0
	for i := 1; i < period; i++ {
		high := math.Max(prices[i], prices[i-1])
		low := math.Min(prices[i], prices[i-1])
		atr += high - low
	}
	return atr / float64(period), true
}

// Volatility returns the standard deviation of tick-to-tick returns.
func Volatility(prices []float64) float64 {
	if len(prices) < 2 {
		return 0
	}
	returns := make([]float64, 0, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		returns = append(returns, (prices[i-1]-prices[i])/prices[i])
	}
	mean := 0.0
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))
	variance := 0.0
	for _, r := range returns {
		variance += (r - mean) * (r - mean)
	}
	variance /= float64(len(returns))
	return math.Sqrt(variance)
}

// Momentum returns the price change from lag ticks ago to now. Falls back to
// 0 when the history does not reach the lag.
func Momentum(prices []float64, lag int) float64 {
	if len(prices) == 0 || lag <= 0 {
		return 0
	}
	if lag >= len(prices) {
		return 0
	}
	return prices[0] - prices[lag]
}

// TrendStrength measures short-trend direction (+1 up, -1 down) and the
// fraction of adjacent moves agreeing with it.
func TrendStrength(prices []float64) (direction int, consistency float64) {
	if len(prices) < 3 {
		return 0, 0
	}
	shortTrend := prices[0] - prices[2]
	if shortTrend > 0 {
		direction = 1
	} else {
		direction = -1
	}
	consistent := 0
	for i := 1; i < len(prices); i++ {
		if (shortTrend > 0 && prices[i-1] > prices[i]) ||
			(shortTrend < 0 && prices[i-1] < prices[i]) {
			consistent++
		}
	}
	return direction, float64(consistent) / float64(len(prices)-1)
}

// DoublePattern detects a double top (-1, expect fall) or double bottom
// (+1, expect rise) in the newest five prices. Returns 0 when neither is
// present.
func DoublePattern(prices []float64) int {
	if len(prices) < 5 {
		return 0
	}
	diffs := make([]float64, 4)
	for i := 1; i < 5; i++ {
		diffs[i-1] = prices[i-1] - prices[i]
	}
	doubleTop := diffs[0] < 0 && diffs[1] > 0 && diffs[2] < 0 && diffs[3] > 0
	doubleBottom := diffs[0] > 0 && diffs[1] < 0 && diffs[2] > 0 && diffs[3] < 0
	if doubleTop {
		return -1
	}
	if doubleBottom {
		return 1
	}
	return 0
}
