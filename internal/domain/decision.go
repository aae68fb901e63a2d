package domain

import "time"

// Decision is a strategy's instruction to open one contract. A nil Decision
// means no trade: insufficient data or a signal below the confidence floor.
type Decision struct {
	ContractType  ContractType
	Barrier       string
	DurationTicks int
	Symbol        string  // Chosen market; empty means the strategy's primary symbol
	Label         string  // Display target for the sink
	Confidence    float64 // 0..1 where the strategy scores signals; 0 if unused
	StakeFactor   float64 // Multiplier applied to the base stake; 0 or 1 means unchanged
}

// SoftStopRules are the strategy-specific stop conditions evaluated after
// every settlement. A triggered rule stops the session immediately when the
// just-settled trade won; after a loss the stop is deferred until the next
// winning settlement. Zero values disable a rule.
type SoftStopRules struct {
	MaxConsecutiveLosses int
	MaxLossesInWindow    int
	WindowSize           int
	MaxRunTime           time.Duration
}

// Enabled reports whether any soft-stop rule is configured.
func (r SoftStopRules) Enabled() bool {
	return r.MaxConsecutiveLosses > 0 || r.MaxLossesInWindow > 0 || r.MaxRunTime > 0
}

// StrategyProfile describes a strategy's operating parameters to the session:
// which markets it trades, how much history it needs before deciding, and the
// pacing and stop rules it runs under.
type StrategyProfile struct {
	Symbols    []string
	Window     int           // Feed retention; at least MinHistory
	MinHistory int           // Ticks required before Decide may return a signal
	TradeDelay time.Duration // Pause between a settlement and the next attempt
	DigitBot   bool          // Trades on the tick's last digit rather than direction
	SoftStop   SoftStopRules
}

// PrimarySymbol returns the first configured market.
func (p StrategyProfile) PrimarySymbol() string {
	if len(p.Symbols) == 0 {
		return ""
	}
	return p.Symbols[0]
}
