package sqlite

import (
	"context"

	"github.com/shopspring/decimal"

	"derivbot/internal/domain"
	"derivbot/internal/ports"
)

// Sink decorates another stats sink with trade-history persistence. Display
// calls pass through untouched; settled trades are additionally written to
// the history store. Storage failures are logged and swallowed so a full
// disk never stops a session mid-trade.
type Sink struct {
	inner  ports.StatsSink
	store  *HistoryStore
	logger ports.Logger
}

// NewSink wraps inner with persistence backed by store.
func NewSink(inner ports.StatsSink, store *HistoryStore, logger ports.Logger) *Sink {
	return &Sink{inner: inner, store: store, logger: logger}
}

func (s *Sink) ShowStatus(text string, severity domain.Severity) {
	s.inner.ShowStatus(text, severity)
}

func (s *Sink) UpdateBalance(amount decimal.Decimal, currency string) {
	s.inner.UpdateBalance(amount, currency)
}

func (s *Sink) UpdateStats(snapshot domain.StatsSnapshot) {
	s.inner.UpdateStats(snapshot)
}

func (s *Sink) AddHistoryEntry(entry domain.HistoryEntry) {
	if err := s.store.SaveEntry(context.Background(), entry); err != nil {
		s.logger.Error(context.Background(), err, "persisting trade history entry", map[string]interface{}{
			"session": entry.SessionID, "market": entry.Market,
		})
	}
	s.inner.AddHistoryEntry(entry)
}

func (s *Sink) UpdateTargets(symbol, label string) {
	s.inner.UpdateTargets(symbol, label)
}

func (s *Sink) ResetHistory() {
	s.inner.ResetHistory()
}

func (s *Sink) SetRunningState(running bool) {
	s.inner.SetRunningState(running)
}

func (s *Sink) UpdateRunningTime(hhmmss string) {
	s.inner.UpdateRunningTime(hhmmss)
}
