package ports

import (
	"context"

	"derivbot/internal/domain"
)

// Strategy maps price history and session bookkeeping to a trade decision.
// Decide must return nil whenever the history is shorter than the strategy's
// minimum lookback or the signal falls below its confidence floor. Given the
// same inputs it returns the same output, modulo the explicit random source
// some strategies use for tie-breaking.
type Strategy interface {
	// Name identifies the strategy in logs and configuration.
	Name() string

	// Profile describes the markets, lookback, pacing and soft-stop rules
	// the session runs this strategy under.
	Profile() domain.StrategyProfile

	// Decide returns the next trade, or nil when no signal is present.
	// History is ordered newest first, as delivered by the market feed.
	Decide(ctx context.Context, history []domain.Tick, stats domain.SessionStats) *domain.Decision
}
