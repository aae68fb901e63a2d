package ports

import (
	"context"

	"github.com/shopspring/decimal"

	"derivbot/internal/domain"
)

// TransportEvents are the callbacks a transport invokes from its read loop.
// Callbacks are invoked serially in delivery order; the transport never calls
// them concurrently.
type TransportEvents struct {
	// OnReady fires each time the transport reaches READY, including after
	// a successful reconnection (subscriptions are already re-issued).
	OnReady func()
	// OnEvent delivers one translated broker message.
	OnEvent func(ev domain.Event)
	// OnClosed fires once the transport is fully closed after an explicit
	// Close call. It does not fire for drops that trigger reconnection.
	OnClosed func()
	// OnFatal reports an unrecoverable transport failure (reconnect
	// attempts exhausted, unparseable message). The session must stop.
	OnFatal func(err error)
}

// Transport owns the broker socket: connect, authorize, resubscribe after
// reconnect, bounded-backoff reconnection and graceful close.
type Transport interface {
	// Connect opens the socket and starts authorization. Reconnection after
	// transport drops is handled internally.
	Connect(ctx context.Context) error

	// Close shuts the transport down and cancels any pending reconnect.
	// A graceful close drains the socket close handshake; a forced close
	// tears the connection down immediately.
	Close(graceful bool)

	// State returns the current connection state.
	State() domain.ConnState

	// Reconnect requests the reconnect path explicitly, e.g. when a trade
	// should be placed but the socket is gone. No-op while closing.
	Reconnect(reason string)

	// Subscription requests are tracked independently of the socket so they
	// are re-issued in full after every reconnect.
	SubscribeBalance() error
	SubscribeTicks(symbol string) error
	SubscribeContracts() error

	// SendProposal submits a priced offer request for the trade.
	SendProposal(req domain.TradeRequest, currency string) error

	// SendBuy accepts a proposal at the quoted price.
	SendBuy(proposalID string, price decimal.Decimal) error
}

// TransportFactory builds one transport per session run, binding the given
// callbacks. Sessions create a fresh transport on every start.
type TransportFactory interface {
	New(events TransportEvents) (Transport, error)
}
