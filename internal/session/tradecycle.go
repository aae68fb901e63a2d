package session

import (
	"derivbot/internal/domain"
)

// tradePhase tracks the one in-flight trade through its protocol steps. The
// enum replaces the pendingProposal/hasOpenContract flag pairs the invariant
// depends on being consistent.
type tradePhase int

const (
	tradeIdle tradePhase = iota
	proposalPending
	contractOpen
)

// tradeCycle is the proposal -> buy -> settlement protocol state. Mutated
// only under the controller mutex.
type tradeCycle struct {
	phase      tradePhase
	proposalID string
	contractID int64
	request    domain.TradeRequest
}

// begin claims the in-flight slot for a new trade. Returns false when a
// trade is already in flight.
func (c *tradeCycle) begin(req domain.TradeRequest) bool {
	if c.phase != tradeIdle {
		return false
	}
	c.phase = proposalPending
	c.proposalID = ""
	c.contractID = 0
	c.request = req
	return true
}

// onProposal accepts the broker's priced offer for the pending proposal.
// Offers arriving with no proposal outstanding, or after one was already
// accepted, are stale and ignored.
func (c *tradeCycle) onProposal(ev domain.ProposalEvent) bool {
	if c.phase != proposalPending || c.proposalID != "" {
		return false
	}
	c.proposalID = ev.ID
	return true
}

// onBuy records the purchased contract. Ignored unless a proposal was
// accepted first.
func (c *tradeCycle) onBuy(ev domain.BuyEvent) bool {
	if c.phase != proposalPending || c.proposalID == "" {
		return false
	}
	c.phase = contractOpen
	c.contractID = ev.ContractID
	return true
}

// onContract reports whether this update settles the tracked contract.
// Updates for any other contract id are expected after reconnects and are
// ignored without touching state.
func (c *tradeCycle) onContract(ev domain.ContractEvent) bool {
	if c.phase != contractOpen || ev.ContractID != c.contractID {
		return false
	}
	return ev.IsSold
}

// reset releases the in-flight slot.
func (c *tradeCycle) reset() {
	c.phase = tradeIdle
	c.proposalID = ""
	c.contractID = 0
	c.request = domain.TradeRequest{}
}
