package strategy

import (
	"context"
	"fmt"
	"math"
	"time"

	"derivbot/internal/domain"
	"derivbot/internal/ports"
	"derivbot/internal/strategy/indicators"
)

// NoTouchConfig holds parameters for the range-bound no-touch strategy.
type NoTouchConfig struct {
	Symbol        string
	TrendWindow   int     // e.g., 15
	RSIPeriod     int     // e.g., 14
	Barrier       float64 // Offset magnitude, signed by the short trend
	MinChecks     int     // Range checks that must pass out of six
	DurationTicks int
}

// NoTouch sells volatility: when six range/exhaustion checks mostly agree
// that the market will not travel far, it buys a NOTOUCH contract with the
// barrier placed against the short trend.
type NoTouch struct {
	cfg    NoTouchConfig
	logger ports.Logger
}

// NewNoTouch creates the no-touch strategy with its production defaults.
func NewNoTouch(logger ports.Logger) *NoTouch {
	return &NoTouch{
		cfg: NoTouchConfig{
			Symbol:        "R_100",
			TrendWindow:   15,
			RSIPeriod:     14,
			Barrier:       0.63,
			MinChecks:     4,
			DurationTicks: 5,
		},
		logger: logger,
	}
}

func (s *NoTouch) Name() string { return "notouch" }

func (s *NoTouch) Profile() domain.StrategyProfile {
	return domain.StrategyProfile{
		Symbols:    []string{s.cfg.Symbol},
		Window:     s.cfg.TrendWindow,
		MinHistory: s.cfg.TrendWindow,
		TradeDelay: 800 * time.Millisecond,
	}
}

// shortTrend sums the direction of the two newest moves, -2..+2.
func shortTrend(prices []float64) int {
	trend := 0
	for i := 0; i < 2; i++ {
		if prices[i] > prices[i+1] {
			trend++
		} else if prices[i] < prices[i+1] {
			trend--
		}
	}
	return trend
}

func (s *NoTouch) Decide(ctx context.Context, history []domain.Tick, stats domain.SessionStats) *domain.Decision {
	prices := quotes(history)
	if len(prices) < s.cfg.TrendWindow {
		return nil
	}
	prices = prices[:s.cfg.TrendWindow]

	shortMA, okShort := indicators.SMA(prices, 5)
	mediumMA, okMedium := indicators.SMA(prices, 10)
	longMA, okLong := indicators.SMA(prices, 15)
	rsi, okRSI := indicators.RSI(prices, s.cfg.RSIPeriod)
	if !okShort || !okMedium || !okLong || !okRSI {
		return nil
	}
	volatility := indicators.Volatility(prices[:5])
	trend := shortTrend(prices)
	momentum := indicators.Momentum(prices, 4) / prices[4]

	checks := 0
	if math.Abs(shortMA-mediumMA) < 0.1 {
		checks++
	}
	if math.Abs(mediumMA-longMA) < 0.1 {
		checks++
	}
	if rsi <= 30 || rsi >= 70 {
		checks++
	}
	if abs(trend) >= 2 {
		checks++
	}
	if math.Abs(momentum) > 0.02 {
		checks++
	}
	if volatility > 0.002 {
		checks++
	}
	if checks < s.cfg.MinChecks {
		return nil
	}

	barrier := fmt.Sprintf("+%.2f", s.cfg.Barrier)
	if trend <= 0 {
		barrier = fmt.Sprintf("-%.2f", s.cfg.Barrier)
	}
	s.logger.Debug(ctx, "no-touch signal",
		map[string]interface{}{"barrier": barrier, "checks": checks, "rsi": rsi})
	return &domain.Decision{
		ContractType:  domain.NoTouch,
		Barrier:       barrier,
		DurationTicks: s.cfg.DurationTicks,
		Label:         "No Touch " + barrier,
	}
}
