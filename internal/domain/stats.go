package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// SessionStats is the read-only view of session bookkeeping handed to
// strategies on every decision. Strategies that adapt to recent performance
// (confidence thresholds, streak handling) derive that state from here rather
// than hiding it from the session.
type SessionStats struct {
	TotalTrades       int
	Wins              int
	ConsecutiveLosses int
	TotalProfit       decimal.Decimal
	CurrentStake      decimal.Decimal
	RecentOutcomes    []bool // Oldest first, bounded window of the last settlements
	RunningTime       time.Duration
}

// WinRate returns the fraction of winning trades in RecentOutcomes, or
// fallback when no trades have settled yet.
func (s SessionStats) WinRate(fallback float64) float64 {
	if len(s.RecentOutcomes) == 0 {
		return fallback
	}
	wins := 0
	for _, w := range s.RecentOutcomes {
		if w {
			wins++
		}
	}
	return float64(wins) / float64(len(s.RecentOutcomes))
}

// LossesInLast counts losses among the most recent n outcomes.
func (s SessionStats) LossesInLast(n int) int {
	outcomes := s.RecentOutcomes
	if len(outcomes) > n {
		outcomes = outcomes[len(outcomes)-n:]
	}
	losses := 0
	for _, w := range outcomes {
		if !w {
			losses++
		}
	}
	return losses
}

// StatsSnapshot is the display form of session bookkeeping pushed to the
// stats sink after every settlement.
type StatsSnapshot struct {
	Balance           decimal.Decimal
	Currency          string
	TotalProfit       decimal.Decimal
	TotalTrades       int
	WinRate           string // Percentage with two decimals, e.g. "66.67"
	CurrentStake      decimal.Decimal
	ConsecutiveLosses int
	Market            string
	Target            string
	LastProfit        decimal.Decimal
	RunningTime       string // hh:mm:ss
}

// FormatRunningTime renders an elapsed duration as hh:mm:ss.
func FormatRunningTime(elapsed time.Duration) string {
	if elapsed < 0 {
		elapsed = 0
	}
	total := int(elapsed.Seconds())
	return fmt.Sprintf("%02d:%02d:%02d", total/3600, (total%3600)/60, total%60)
}
