// Package strategy contains the signal engines. Each variant maps newest-first
// price history plus session bookkeeping to a single trade decision, and
// carries its own operating profile (markets, lookback, pacing, stop rules).
package strategy

import (
	"fmt"
	"math/rand"
	"time"

	"derivbot/internal/domain"
	"derivbot/internal/ports"
)

// Names lists the registered strategy identifiers accepted by ForName.
func Names() []string {
	return []string{"trend", "meanrev", "evenodd", "volatility", "differ", "notouch"}
}

// ForName builds the named strategy. rnd seeds the variants that draw random
// digits or markets; a nil rnd gets a time-seeded source.
func ForName(name string, logger ports.Logger, rnd *rand.Rand) (ports.Strategy, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required for strategy %q", name)
	}
	if rnd == nil {
		rnd = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	switch name {
	case "trend":
		return NewTrend(logger), nil
	case "meanrev":
		return NewMeanReversion(logger), nil
	case "evenodd":
		return NewEvenOdd(logger), nil
	case "volatility":
		return NewVolatility(logger), nil
	case "differ":
		return NewDiffer(logger, rnd), nil
	case "notouch":
		return NewNoTouch(logger), nil
	}
	return nil, fmt.Errorf("unknown strategy %q", name)
}

// quotes extracts the newest-first quote series from tick history.
func quotes(history []domain.Tick) []float64 {
	prices := make([]float64, len(history))
	for i, t := range history {
		prices[i] = t.Quote
	}
	return prices
}

// digitSeries extracts the newest-first last-digit series, dropping ticks
// whose digit could not be derived from the quote text.
func digitSeries(history []domain.Tick) []int {
	digits := make([]int, 0, len(history))
	for _, t := range history {
		if t.HasDigit() {
			digits = append(digits, t.Digit)
		}
	}
	return digits
}
