package ports

import (
	"github.com/shopspring/decimal"

	"derivbot/internal/domain"
)

// StatsSink receives session status and bookkeeping snapshots for display.
// Calls are fire-and-forget; the sink must never block or fail the session.
type StatsSink interface {
	ShowStatus(text string, severity domain.Severity)
	UpdateBalance(amount decimal.Decimal, currency string)
	UpdateStats(snapshot domain.StatsSnapshot)
	AddHistoryEntry(entry domain.HistoryEntry)
	UpdateTargets(symbol, label string)
	ResetHistory()
	SetRunningState(running bool)
	UpdateRunningTime(hhmmss string)
}

// AuthTokenResolver yields the current broker API token, or "" when the
// account is not connected. It is the only cross-session shared resource and
// is read-only.
type AuthTokenResolver func() string
