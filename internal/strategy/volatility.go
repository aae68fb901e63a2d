package strategy

import (
	"context"
	"math"
	"time"

	"derivbot/internal/domain"
	"derivbot/internal/ports"
	"derivbot/internal/strategy/indicators"
)

// VolatilityConfig holds parameters for the ATR breakout strategy.
type VolatilityConfig struct {
	Symbol           string
	VolatilityWindow int     // Feed retention
	ATRPeriod        int     // e.g., 5
	Threshold        float64 // ATR level separating calm from active regimes
}

// Volatility trades breakouts sized by the average tick range: a move larger
// than 1.2x ATR follows its direction, an elevated ATR without a breakout
// trades against the short average. Stake and duration scale with the regime.
type Volatility struct {
	cfg    VolatilityConfig
	logger ports.Logger
}

// NewVolatility creates the breakout strategy with its production defaults.
func NewVolatility(logger ports.Logger) *Volatility {
	return &Volatility{
		cfg: VolatilityConfig{
			Symbol:           "R_75",
			VolatilityWindow: 10,
			ATRPeriod:        5,
			Threshold:        0.0015,
		},
		logger: logger,
	}
}

func (s *Volatility) Name() string { return "volatility" }

func (s *Volatility) Profile() domain.StrategyProfile {
	return domain.StrategyProfile{
		Symbols:    []string{s.cfg.Symbol},
		Window:     s.cfg.VolatilityWindow,
		MinHistory: s.cfg.ATRPeriod,
		TradeDelay: 900 * time.Millisecond,
	}
}

func (s *Volatility) Decide(ctx context.Context, history []domain.Tick, stats domain.SessionStats) *domain.Decision {
	prices := quotes(history)
	if len(prices) < s.cfg.ATRPeriod {
		return nil
	}
	atr, ok := indicators.ATR(prices, s.cfg.ATRPeriod)
	if !ok || atr == 0 {
		return nil
	}

	latest, previous := prices[0], prices[1]
	change := math.Abs(latest - previous)

	var contractType domain.ContractType
	var label string
	switch {
	case change > atr*1.2:
		contractType, label = domain.Call, "Rise"
		if latest < previous {
			contractType, label = domain.Put, "Fall"
		}
	case atr > s.cfg.Threshold:
		avg := (prices[0] + prices[1] + prices[2]) / 3
		contractType, label = domain.Call, "Rise"
		if latest <= avg {
			contractType, label = domain.Put, "Fall"
		}
	default:
		return nil
	}

	// Calm markets take a larger stake for longer, active ones the reverse.
	stakeFactor, duration := 1.0, 1
	if atr > s.cfg.Threshold*1.5 {
		stakeFactor = 0.8
	} else if atr < s.cfg.Threshold*0.5 {
		stakeFactor, duration = 1.2, 2
	}

	s.logger.Debug(ctx, "volatility signal",
		map[string]interface{}{"direction": label, "atr": atr, "change": change, "stakeFactor": stakeFactor})
	return &domain.Decision{
		ContractType:  contractType,
		DurationTicks: duration,
		Label:         label,
		StakeFactor:   stakeFactor,
	}
}
