package strategy

import (
	"context"
	"math"
	"time"

	"derivbot/internal/domain"
	"derivbot/internal/ports"
	"derivbot/internal/strategy/indicators"
)

// MeanReversionConfig holds parameters for the Bollinger+RSI strategy.
type MeanReversionConfig struct {
	Symbol        string
	Lookback      int     // Bollinger period and minimum history
	StdDevMult    float64 // e.g., 2.0
	RSIPeriod     int     // e.g., 14
	MinConfidence float64 // Base threshold before adaptation
}

// MeanReversion trades against Bollinger band touches with RSI confirmation.
// The confidence threshold adapts to the recent win rate carried in the
// session stats: a hot streak relaxes it slightly, a cold one tightens it.
type MeanReversion struct {
	cfg    MeanReversionConfig
	logger ports.Logger
}

// NewMeanReversion creates the mean-reversion strategy with its production
// defaults.
func NewMeanReversion(logger ports.Logger) *MeanReversion {
	return &MeanReversion{
		cfg: MeanReversionConfig{
			Symbol:        "R_50",
			Lookback:      20,
			StdDevMult:    2.0,
			RSIPeriod:     14,
			MinConfidence: 0.75,
		},
		logger: logger,
	}
}

func (s *MeanReversion) Name() string { return "meanrev" }

func (s *MeanReversion) Profile() domain.StrategyProfile {
	return domain.StrategyProfile{
		Symbols:    []string{s.cfg.Symbol},
		Window:     s.cfg.Lookback,
		MinHistory: s.cfg.Lookback,
		TradeDelay: 800 * time.Millisecond,
	}
}

// threshold returns the adaptive minimum confidence for the current stats.
func (s *MeanReversion) threshold(stats domain.SessionStats) float64 {
	if len(stats.RecentOutcomes) == 0 {
		return s.cfg.MinConfidence
	}
	winRate := stats.WinRate(0.5)
	switch {
	case winRate > 0.7:
		return math.Max(s.cfg.MinConfidence, s.cfg.MinConfidence-0.05)
	case winRate < 0.6:
		return math.Min(0.85, s.cfg.MinConfidence+0.1)
	default:
		return s.cfg.MinConfidence
	}
}

func (s *MeanReversion) Decide(ctx context.Context, history []domain.Tick, stats domain.SessionStats) *domain.Decision {
	prices := quotes(history)
	if len(prices) < s.cfg.Lookback {
		return nil
	}
	_, upper, lower, ok := indicators.Bollinger(prices, s.cfg.Lookback, s.cfg.StdDevMult)
	if !ok {
		return nil
	}
	rsi, ok := indicators.RSI(prices, s.cfg.RSIPeriod)
	if !ok {
		return nil
	}

	current := prices[0]
	bandWidth := upper - lower
	if bandWidth <= 0 {
		return nil
	}
	position := (current - lower) / bandWidth

	var confidence float64
	var contractType domain.ContractType
	var label string
	switch {
	case current >= upper:
		// Overbought, expect reversion down.
		confidence = 0.4
		contractType, label = domain.Put, "Fall"
		if rsi > 70 {
			confidence += 0.3
		} else if rsi > 60 {
			confidence += 0.15
		}
		if current > upper*1.001 {
			confidence += 0.2
		}
	case current <= lower:
		confidence = 0.4
		contractType, label = domain.Call, "Rise"
		if rsi < 30 {
			confidence += 0.3
		} else if rsi < 40 {
			confidence += 0.15
		}
		if current < lower*0.999 {
			confidence += 0.2
		}
	case position > 0.85:
		confidence = 0.3
		contractType, label = domain.Put, "Fall"
		if rsi > 65 {
			confidence += 0.2
		}
	case position < 0.15:
		confidence = 0.3
		contractType, label = domain.Call, "Rise"
		if rsi < 35 {
			confidence += 0.2
		}
	default:
		return nil
	}

	threshold := s.threshold(stats)
	if confidence < threshold {
		return nil
	}

	// Wider bands mean faster moves, so hold for fewer ticks.
	duration := 2
	if bandWidth > 0.01 {
		duration = 1
	}
	s.logger.Debug(ctx, "mean-reversion signal",
		map[string]interface{}{"direction": label, "confidence": confidence, "threshold": threshold, "rsi": rsi})
	return &domain.Decision{
		ContractType:  contractType,
		DurationTicks: duration,
		Label:         label,
		Confidence:    confidence,
	}
}
