package strategy

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"derivbot/internal/domain"
	"derivbot/internal/ports"
)

// DifferConfig holds parameters for the digit-differ rotation strategy.
type DifferConfig struct {
	Markets  []string
	SoftStop domain.SoftStopRules
}

// Differ rotates DIGITDIFF trades across the volatility markets. It never
// picks the same market twice in a row, and a digit colliding with the
// previous one is shifted by 3 mod 10. The draw is rand-driven, so the source
// is injected for reproducible tests.
type Differ struct {
	cfg    DifferConfig
	logger ports.Logger
	rnd    *rand.Rand

	lastMarket string
	lastDigit  int
}

// NewDiffer creates the differ strategy over the standard volatility markets.
func NewDiffer(logger ports.Logger, rnd *rand.Rand) *Differ {
	return &Differ{
		cfg: DifferConfig{
			Markets: []string{"R_10", "R_25", "R_50", "R_75", "R_100"},
			SoftStop: domain.SoftStopRules{
				MaxConsecutiveLosses: 2,
				MaxLossesInWindow:    2,
				WindowSize:           5,
				MaxRunTime:           time.Hour,
			},
		},
		logger:    logger,
		rnd:       rnd,
		lastDigit: -1,
	}
}

func (s *Differ) Name() string { return "differ" }

func (s *Differ) Profile() domain.StrategyProfile {
	return domain.StrategyProfile{
		Symbols:    s.cfg.Markets,
		Window:     1,
		MinHistory: 0,
		TradeDelay: 900 * time.Millisecond,
		DigitBot:   true,
		SoftStop:   s.cfg.SoftStop,
	}
}

func (s *Differ) nextMarket() string {
	candidates := make([]string, 0, len(s.cfg.Markets))
	for _, m := range s.cfg.Markets {
		if m != s.lastMarket {
			candidates = append(candidates, m)
		}
	}
	if len(candidates) == 0 {
		return s.cfg.Markets[s.rnd.Intn(len(s.cfg.Markets))]
	}
	market := candidates[s.rnd.Intn(len(candidates))]
	s.lastMarket = market
	return market
}

func (s *Differ) nextDigit() int {
	digit := s.rnd.Intn(10)
	if digit == s.lastDigit {
		digit = (digit + 3) % 10
	}
	s.lastDigit = digit
	return digit
}

func (s *Differ) Decide(ctx context.Context, history []domain.Tick, stats domain.SessionStats) *domain.Decision {
	market := s.nextMarket()
	digit := s.nextDigit()
	label := fmt.Sprintf("Differ %d", digit)
	s.logger.Debug(ctx, "differ pick", map[string]interface{}{"market": market, "digit": digit})
	return &domain.Decision{
		ContractType:  domain.DigitDiff,
		Barrier:       fmt.Sprintf("%d", digit),
		DurationTicks: 1,
		Symbol:        market,
		Label:         label,
	}
}
