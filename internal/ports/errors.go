package ports

import "errors"

// Standard application-level errors. Adapters wrap underlying infrastructure
// errors with these so the session can classify failures without knowing the
// broker protocol.
var (
	// Session lifecycle errors
	ErrAlreadyRunning = errors.New("session is already running")
	ErrNoAuthToken    = errors.New("no authorization token available")
	ErrNotRunning     = errors.New("session is not running")

	// Transport errors
	ErrNotReady           = errors.New("transport is not ready")
	ErrConnectionFailed   = errors.New("failed to connect to the broker")
	ErrReconnectExhausted = errors.New("max reconnection attempts reached")
	ErrMalformedMessage   = errors.New("unparseable broker message")
	ErrAuthExpired        = errors.New("authorization expired")
	ErrRateLimited        = errors.New("broker rate limit exceeded")
	ErrTransportClosed    = errors.New("transport is closed")
	ErrSubscriptionFailed = errors.New("failed to subscribe to broker stream")
	ErrProposalFailed     = errors.New("failed to submit proposal")
	ErrBuyFailed          = errors.New("failed to buy contract")
	ErrConfigurationError = errors.New("invalid or missing configuration")

	// History store errors
	ErrQueryFailed  = errors.New("history store query failed")
	ErrInsertFailed = errors.New("history store insert failed")
)
