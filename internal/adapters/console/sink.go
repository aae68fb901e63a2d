// Package console renders session status and bookkeeping to the log, filling
// the role of the UI layer around a headless session.
package console

import (
	"context"

	"github.com/shopspring/decimal"

	"derivbot/internal/domain"
	"derivbot/internal/ports"
)

// Sink implements ports.StatsSink on a logger.
type Sink struct {
	logger ports.Logger
}

// NewSink creates a console sink.
func NewSink(logger ports.Logger) *Sink {
	return &Sink{logger: logger}
}

func (s *Sink) ShowStatus(text string, severity domain.Severity) {
	ctx := context.Background()
	fields := map[string]interface{}{"severity": string(severity)}
	switch severity {
	case domain.SeverityError:
		s.logger.Error(ctx, nil, text, fields)
	case domain.SeverityWarning:
		s.logger.Warn(ctx, text, fields)
	default:
		s.logger.Info(ctx, text, fields)
	}
}

func (s *Sink) UpdateBalance(amount decimal.Decimal, currency string) {
	s.logger.Info(context.Background(), "balance", map[string]interface{}{
		"amount": amount.StringFixed(2), "currency": currency,
	})
}

func (s *Sink) UpdateStats(snapshot domain.StatsSnapshot) {
	s.logger.Info(context.Background(), "session stats", map[string]interface{}{
		"trades":      snapshot.TotalTrades,
		"winRate":     snapshot.WinRate,
		"totalProfit": snapshot.TotalProfit.StringFixed(2),
		"stake":       snapshot.CurrentStake.StringFixed(2),
		"lossStreak":  snapshot.ConsecutiveLosses,
		"lastProfit":  snapshot.LastProfit.StringFixed(2),
		"market":      snapshot.Market,
		"target":      snapshot.Target,
		"runningTime": snapshot.RunningTime,
	})
}

func (s *Sink) AddHistoryEntry(entry domain.HistoryEntry) {
	outcome := "loss"
	if entry.Win {
		outcome = "win"
	}
	s.logger.Info(context.Background(), "trade settled", map[string]interface{}{
		"market":  entry.Market,
		"target":  entry.Target,
		"stake":   entry.Stake.StringFixed(2),
		"profit":  entry.Profit.StringFixed(2),
		"outcome": outcome,
	})
}

func (s *Sink) UpdateTargets(symbol, label string) {
	s.logger.Info(context.Background(), "next trade", map[string]interface{}{
		"market": symbol, "target": label,
	})
}

func (s *Sink) ResetHistory() {
	s.logger.Debug(context.Background(), "history reset")
}

func (s *Sink) SetRunningState(running bool) {
	s.logger.Info(context.Background(), "session running state", map[string]interface{}{
		"running": running,
	})
}

func (s *Sink) UpdateRunningTime(hhmmss string) {
	s.logger.Debug(context.Background(), "running time", map[string]interface{}{
		"elapsed": hhmmss,
	})
}
