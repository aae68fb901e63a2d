package domain

import "github.com/shopspring/decimal"

// Event is one inbound broker message translated into a domain value. The set
// of implementations is closed; the session dispatches on the concrete type
// instead of re-parsing msg_type strings.
type Event interface {
	isEvent()
}

// AuthorizeEvent confirms authorization and reports the account state.
type AuthorizeEvent struct {
	Balance     decimal.Decimal
	Currency    string
	Reconnected bool // True when this authorization followed a reconnect
}

// BalanceEvent is a balance-stream update.
type BalanceEvent struct {
	Balance  decimal.Decimal
	Currency string
}

// TickEvent delivers one price update.
type TickEvent struct {
	Tick Tick
}

// ProposalEvent is the broker's priced offer for a pending proposal.
type ProposalEvent struct {
	ID       string
	AskPrice decimal.Decimal
}

// BuyEvent confirms a contract purchase.
type BuyEvent struct {
	ContractID int64
	BuyPrice   decimal.Decimal
}

// ContractEvent is an open-contract status update; settlement arrives with
// IsSold set.
type ContractEvent struct {
	ContractID int64
	IsSold     bool
	Profit     decimal.Decimal
}

// APIErrorEvent is a broker error payload that does not alter connection
// state (auth and rate-limit errors are consumed by the transport).
type APIErrorEvent struct {
	Code    string
	Message string
}

func (AuthorizeEvent) isEvent() {}
func (BalanceEvent) isEvent()   {}
func (TickEvent) isEvent()      {}
func (ProposalEvent) isEvent()  {}
func (BuyEvent) isEvent()       {}
func (ContractEvent) isEvent()  {}
func (APIErrorEvent) isEvent()  {}
