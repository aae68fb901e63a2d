package strategy

import (
	"context"
	"time"

	"derivbot/internal/domain"
	"derivbot/internal/ports"
)

// EvenOddConfig holds parameters for the digit-parity strategy.
type EvenOddConfig struct {
	Symbol         string
	TrendWindow    int     // Digits required before a decision
	ProbThreshold  float64 // Parity share above which the other side is bet
	NormalStreak   int     // Same-parity run length that triggers a bet
	RecoveryStreak int     // Looser run length while recovering from a loss
}

// EvenOdd tracks the even/odd distribution of recent last digits and bets
// against the over-represented side. After a loss it switches to a looser
// streak trigger until the next win.
type EvenOdd struct {
	cfg    EvenOddConfig
	logger ports.Logger
}

// NewEvenOdd creates the parity strategy with its production defaults.
func NewEvenOdd(logger ports.Logger) *EvenOdd {
	return &EvenOdd{
		cfg: EvenOddConfig{
			Symbol:         "R_50",
			TrendWindow:    12,
			ProbThreshold:  0.55,
			NormalStreak:   3,
			RecoveryStreak: 2,
		},
		logger: logger,
	}
}

func (s *EvenOdd) Name() string { return "evenodd" }

func (s *EvenOdd) Profile() domain.StrategyProfile {
	return domain.StrategyProfile{
		Symbols:    []string{s.cfg.Symbol},
		Window:     s.cfg.TrendWindow,
		MinHistory: s.cfg.TrendWindow,
		TradeDelay: 600 * time.Millisecond,
		DigitBot:   true,
	}
}

func (s *EvenOdd) Decide(ctx context.Context, history []domain.Tick, stats domain.SessionStats) *domain.Decision {
	digits := digitSeries(history)
	if len(digits) < s.cfg.TrendWindow {
		return nil
	}

	evens := 0
	for _, d := range digits {
		if d%2 == 0 {
			evens++
		}
	}
	evenProb := float64(evens) / float64(len(digits))
	oddProb := 1 - evenProb

	// Run length of the current parity, newest digit first.
	streak := 1
	for i := 1; i < len(digits) && digits[i]%2 == digits[0]%2; i++ {
		streak++
	}
	evenStreak, oddStreak := 0, 0
	if digits[0]%2 == 0 {
		evenStreak = streak
	} else {
		oddStreak = streak
	}

	// A session with an unrecovered loss waits for the distribution to lean
	// first but accepts shorter streaks; normal mode trusts streaks first.
	recovering := stats.ConsecutiveLosses > 0

	var contractType domain.ContractType
	var label string
	if recovering {
		switch {
		case evenProb > s.cfg.ProbThreshold:
			contractType, label = domain.DigitOdd, "Odd"
		case oddProb > s.cfg.ProbThreshold:
			contractType, label = domain.DigitEven, "Even"
		case evenStreak >= s.cfg.RecoveryStreak:
			contractType, label = domain.DigitOdd, "Odd"
		case oddStreak >= s.cfg.RecoveryStreak:
			contractType, label = domain.DigitEven, "Even"
		default:
			return nil
		}
	} else {
		switch {
		case evenStreak >= s.cfg.NormalStreak:
			contractType, label = domain.DigitOdd, "Odd"
		case oddStreak >= s.cfg.NormalStreak:
			contractType, label = domain.DigitEven, "Even"
		case evenProb > s.cfg.ProbThreshold:
			contractType, label = domain.DigitOdd, "Odd"
		case oddProb > s.cfg.ProbThreshold:
			contractType, label = domain.DigitEven, "Even"
		default:
			return nil
		}
	}

	s.logger.Debug(ctx, "parity signal",
		map[string]interface{}{"target": label, "evenProb": evenProb, "streak": streak, "recovering": recovering})
	return &domain.Decision{
		ContractType:  contractType,
		DurationTicks: 1,
		Label:         label,
	}
}
