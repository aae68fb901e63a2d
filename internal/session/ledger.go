package session

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"derivbot/internal/domain"
)

// recentWindow bounds the outcome history exposed to strategies and stop
// rules. It covers the largest window any consumer reads (adaptive
// confidence looks at 20, soft stops at 5, sim fairness at 10).
const recentWindow = 20

// Ledger is the session's money and outcome bookkeeping. All methods are
// called under the controller mutex.
type Ledger struct {
	initialStake decimal.Decimal
	multiplier   decimal.Decimal
	takeProfit   decimal.Decimal
	stopLoss     decimal.Decimal

	stake             decimal.Decimal
	totalProfit       decimal.Decimal
	totalTrades       int
	wins              int
	consecutiveLosses int
	recent            []bool // Oldest first
	startedAt         time.Time
	pendingStopReason string
}

func NewLedger(initialStake, multiplier, takeProfit, stopLoss decimal.Decimal) *Ledger {
	return &Ledger{
		initialStake: initialStake,
		multiplier:   multiplier,
		takeProfit:   takeProfit,
		stopLoss:     stopLoss,
		stake:        initialStake,
	}
}

// Reset clears all bookkeeping for a fresh run.
func (l *Ledger) Reset(now time.Time) {
	l.stake = l.initialStake
	l.totalProfit = decimal.Zero
	l.totalTrades = 0
	l.wins = 0
	l.consecutiveLosses = 0
	l.recent = nil
	l.startedAt = now
	l.pendingStopReason = ""
}

// Settle records one trade outcome: totals, loss streak and the martingale
// stake (reset on win, multiplied and rounded to cents on loss).
func (l *Ledger) Settle(win bool, profit decimal.Decimal) {
	l.totalTrades++
	l.totalProfit = l.totalProfit.Add(profit)
	if win {
		l.wins++
		l.consecutiveLosses = 0
		l.stake = l.initialStake
	} else {
		l.consecutiveLosses++
		l.stake = l.stake.Mul(l.multiplier).Round(2)
	}
	l.recent = append(l.recent, win)
	if len(l.recent) > recentWindow {
		l.recent = l.recent[len(l.recent)-recentWindow:]
	}
}

// Stats snapshots the bookkeeping for strategies and the sim outcome engine.
func (l *Ledger) Stats(now time.Time) domain.SessionStats {
	recent := make([]bool, len(l.recent))
	copy(recent, l.recent)
	return domain.SessionStats{
		TotalTrades:       l.totalTrades,
		Wins:              l.wins,
		ConsecutiveLosses: l.consecutiveLosses,
		TotalProfit:       l.totalProfit,
		CurrentStake:      l.stake,
		RecentOutcomes:    recent,
		RunningTime:       now.Sub(l.startedAt),
	}
}

// CurrentStake returns the stake for the next trade.
func (l *Ledger) CurrentStake() decimal.Decimal {
	return l.stake
}

// StartedAt returns when the run began.
func (l *Ledger) StartedAt() time.Time {
	return l.startedAt
}

// WinRatePercent renders the lifetime win rate as e.g. "66.67".
func (l *Ledger) WinRatePercent() string {
	if l.totalTrades == 0 {
		return "0.00"
	}
	return fmt.Sprintf("%.2f", float64(l.wins)/float64(l.totalTrades)*100)
}

// StopVerdict is a decided session stop.
type StopVerdict struct {
	Reason   string
	Severity domain.Severity
}

// EvaluateStop runs the stop-condition ladder after a settlement:
//  1. A win first releases any pending soft stop.
//  2. Take profit, regardless of the trade's own outcome.
//  3. Stop loss, regardless of the trade's own outcome.
//  4. Soft-stop rules: immediate on a win, deferred to the next winning
//     settlement on a loss (stopping right after a loss would lock in the
//     elevated martingale stake).
//
// Returns nil when the session should keep trading.
func (l *Ledger) EvaluateStop(win bool, rules domain.SoftStopRules, now time.Time) *StopVerdict {
	if win && l.pendingStopReason != "" {
		return &StopVerdict{Reason: l.pendingStopReason, Severity: domain.SeverityWarning}
	}

	if l.takeProfit.IsPositive() && l.totalProfit.GreaterThanOrEqual(l.takeProfit) {
		return &StopVerdict{
			Reason:   fmt.Sprintf("Take profit reached: %s", l.totalProfit.StringFixed(2)),
			Severity: domain.SeveritySuccess,
		}
	}
	if l.stopLoss.IsPositive() && l.totalProfit.LessThanOrEqual(l.stopLoss.Neg()) {
		return &StopVerdict{
			Reason:   fmt.Sprintf("Stop loss reached: %s", l.totalProfit.StringFixed(2)),
			Severity: domain.SeverityError,
		}
	}

	if reason := l.softStopReason(rules, now); reason != "" {
		if win {
			return &StopVerdict{Reason: reason, Severity: domain.SeverityWarning}
		}
		if l.pendingStopReason == "" {
			l.pendingStopReason = reason
		}
	}
	return nil
}

// NoteRunTime arms the deferred stop when the run-time rule trips between
// settlements. The actual stop still waits for a winning trade.
func (l *Ledger) NoteRunTime(rules domain.SoftStopRules, now time.Time) {
	if rules.MaxRunTime > 0 && now.Sub(l.startedAt) >= rules.MaxRunTime && l.pendingStopReason == "" {
		l.pendingStopReason = fmt.Sprintf("Maximum run time reached (%s)", rules.MaxRunTime)
	}
}

func (l *Ledger) softStopReason(rules domain.SoftStopRules, now time.Time) string {
	if rules.MaxConsecutiveLosses > 0 && l.consecutiveLosses >= rules.MaxConsecutiveLosses {
		return fmt.Sprintf("%d consecutive losses", l.consecutiveLosses)
	}
	if rules.MaxLossesInWindow > 0 && rules.WindowSize > 0 {
		losses := 0
		recent := l.recent
		if len(recent) > rules.WindowSize {
			recent = recent[len(recent)-rules.WindowSize:]
		}
		for _, w := range recent {
			if !w {
				losses++
			}
		}
		if losses >= rules.MaxLossesInWindow {
			return fmt.Sprintf("%d losses in the last %d trades", losses, rules.WindowSize)
		}
	}
	if rules.MaxRunTime > 0 && now.Sub(l.startedAt) >= rules.MaxRunTime {
		return fmt.Sprintf("Maximum run time reached (%s)", rules.MaxRunTime)
	}
	return ""
}
