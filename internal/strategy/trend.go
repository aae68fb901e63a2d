package strategy

import (
	"context"
	"time"

	"derivbot/internal/domain"
	"derivbot/internal/ports"
	"derivbot/internal/strategy/indicators"
)

// TrendConfig holds parameters for the trend/momentum strategy.
type TrendConfig struct {
	Symbol              string
	TrendWindow         int     // Minimum ticks before a decision
	RSIPeriod           int     // e.g., 14
	VolatilityThreshold float64 // Above this the required signal strength rises from 2 to 3
	DurationTicks       int
}

// Trend trades rise/fall contracts on stacked momentum, RSI and MACD
// confirmation, plus double top/bottom pattern detection.
type Trend struct {
	cfg    TrendConfig
	logger ports.Logger
}

// NewTrend creates the trend strategy with its production defaults.
func NewTrend(logger ports.Logger) *Trend {
	return &Trend{
		cfg: TrendConfig{
			Symbol:              "R_10",
			TrendWindow:         15,
			RSIPeriod:           14,
			VolatilityThreshold: 0.001,
			DurationTicks:       5,
		},
		logger: logger,
	}
}

func (s *Trend) Name() string { return "trend" }

func (s *Trend) Profile() domain.StrategyProfile {
	return domain.StrategyProfile{
		Symbols: []string{s.cfg.Symbol},
		// MACD needs the full 26-tick slow EMA even though decisions start at 15.
		Window:     26,
		MinHistory: s.cfg.TrendWindow,
		TradeDelay: 600 * time.Millisecond,
	}
}

func (s *Trend) Decide(ctx context.Context, history []domain.Tick, stats domain.SessionStats) *domain.Decision {
	prices := quotes(history)
	if len(prices) < s.cfg.TrendWindow {
		return nil
	}

	shortMomentum := indicators.Momentum(prices, 3)
	mediumMomentum := indicators.Momentum(prices, 7)
	longMomentum := indicators.Momentum(prices, 14)
	rsi, ok := indicators.RSI(prices, s.cfg.RSIPeriod)
	if !ok {
		rsi = 50
	}
	macd, _, histogram := indicators.MACD(prices)
	volatility := indicators.Volatility(prices)

	// Direction: +1 rise, -1 fall, 0 no signal. A double pattern sets the
	// direction with double weight; aligned momentum may override it.
	direction := indicators.DoublePattern(prices)
	strength := 0
	if direction != 0 {
		strength += 2
	}
	if shortMomentum > 0 && mediumMomentum > 0 && longMomentum > 0 {
		direction = 1
		strength++
	} else if shortMomentum < 0 && mediumMomentum < 0 && longMomentum < 0 {
		direction = -1
		strength++
	}

	// Oscillator agreement confirms, disagreement penalizes.
	if rsi < 30 {
		strength += confirm(direction == 1)
	} else if rsi > 70 {
		strength += confirm(direction == -1)
	}
	if histogram > 0 && macd > 0 {
		strength += confirm(direction == 1)
	} else if histogram < 0 && macd < 0 {
		strength += confirm(direction == -1)
	}

	required := 2
	if volatility > s.cfg.VolatilityThreshold {
		required = 3
	}
	if direction == 0 || abs(strength) < required {
		return nil
	}

	contractType := domain.Call
	label := "Rise"
	if direction < 0 {
		contractType = domain.Put
		label = "Fall"
	}
	s.logger.Debug(ctx, "trend signal",
		map[string]interface{}{"direction": label, "strength": strength, "rsi": rsi, "volatility": volatility})
	return &domain.Decision{
		ContractType:  contractType,
		DurationTicks: s.cfg.DurationTicks,
		Label:         label,
	}
}

func confirm(aligned bool) int {
	if aligned {
		return 1
	}
	return -1
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
