package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// TradeRequest is one attempted contract purchase. It is created from a
// strategy decision, submitted as a proposal and either becomes a live
// Contract on a successful buy or is discarded on submission failure.
type TradeRequest struct {
	ContractType  ContractType
	Barrier       string // Optional; digit or price offset depending on contract type
	Stake         decimal.Decimal
	DurationTicks int
	Symbol        string
	Label         string // Display target, e.g. "Differ 7" or "CALL"
}

// Contract is one open position awaiting settlement. A session holds at most
// one live Contract at any time.
type Contract struct {
	ID       int64
	BuyPrice decimal.Decimal
	IsSold   bool
	Profit   decimal.Decimal // Signed; negative on a loss
}

// TradeResult is the settled outcome of a single trade.
type TradeResult struct {
	Stake     decimal.Decimal
	Profit    decimal.Decimal
	Win       bool
	Market    string
	Target    string
	Timestamp time.Time
}

// HistoryEntry is one row delivered to the stats sink (and the optional
// trade-history store) after every settlement.
type HistoryEntry struct {
	SessionID string
	Market    string
	Target    string
	Stake     decimal.Decimal
	Profit    decimal.Decimal
	Win       bool
	Timestamp time.Time
}
