// Package deriv implements the broker transport: one WebSocket per session,
// authorization, subscription tracking and bounded-backoff reconnection.
package deriv

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jpillora/backoff"
	"github.com/shopspring/decimal"

	"derivbot/internal/domain"
	"derivbot/internal/ports"
)

// Config holds the transport parameters.
type Config struct {
	URL                  string
	ResolveToken         ports.AuthTokenResolver
	Logger               ports.Logger
	MaxReconnectAttempts int           // Default 10
	ReconnectMinDelay    time.Duration // Default 1s, doubles per attempt
	ReconnectMaxDelay    time.Duration // Default 30s
	RateLimitDelay       time.Duration // Extra delay after a rate-limit error, default 5s
	HandshakeTimeout     time.Duration // Default 10s
	WriteTimeout         time.Duration // Default 10s
}

func (cfg *Config) applyDefaults() {
	if cfg.MaxReconnectAttempts == 0 {
		cfg.MaxReconnectAttempts = 10
	}
	if cfg.ReconnectMinDelay == 0 {
		cfg.ReconnectMinDelay = time.Second
	}
	if cfg.ReconnectMaxDelay == 0 {
		cfg.ReconnectMaxDelay = 30 * time.Second
	}
	if cfg.RateLimitDelay == 0 {
		cfg.RateLimitDelay = 5 * time.Second
	}
	if cfg.HandshakeTimeout == 0 {
		cfg.HandshakeTimeout = 10 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
}

// Factory builds one Client per session run.
type Factory struct {
	cfg Config
}

// NewFactory validates the configuration once so every session gets the same
// checked settings.
func NewFactory(cfg Config) (*Factory, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("broker URL is required: %w", ports.ErrConfigurationError)
	}
	if cfg.ResolveToken == nil {
		return nil, fmt.Errorf("token resolver is required: %w", ports.ErrConfigurationError)
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required: %w", ports.ErrConfigurationError)
	}
	cfg.applyDefaults()
	return &Factory{cfg: cfg}, nil
}

// New implements ports.TransportFactory.
func (f *Factory) New(events ports.TransportEvents) (ports.Transport, error) {
	return newClient(f.cfg, events), nil
}

// Client implements ports.Transport over gorilla/websocket.
//
// The read loop is the only event source; callbacks fire serially from it,
// except OnFatal (reconnect timer goroutine) and OnClosed (the Close caller).
// A generation counter orphans read loops of replaced connections so a stale
// loop can never report a drop for a socket that was already abandoned.
type Client struct {
	cfg     Config
	events  ports.TransportEvents
	logger  ports.Logger
	backoff *backoff.Backoff

	writeMu sync.Mutex

	mu             sync.Mutex
	conn           *websocket.Conn
	state          domain.ConnState
	attempts       int
	gen            int
	reconnectTimer *time.Timer
	closing        bool
	everReady      bool

	subBalance   bool
	subContracts bool
	subTicks     []string

	// Subscriptions already written on the current connection; repeat
	// Subscribe calls are no-ops until the next READY resets these.
	sentBalance   bool
	sentContracts bool
	sentTicks     map[string]bool
}

func newClient(cfg Config, events ports.TransportEvents) *Client {
	return &Client{
		cfg:    cfg,
		events: events,
		logger: cfg.Logger,
		backoff: &backoff.Backoff{
			Min:    cfg.ReconnectMinDelay,
			Max:    cfg.ReconnectMaxDelay,
			Factor: 2,
		},
		state: domain.ConnDisconnected,
	}
}

// Connect opens the socket and starts authorization. Dial failures are not
// returned: they enter the same bounded reconnect path as mid-session drops.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.closing {
		c.mu.Unlock()
		return ports.ErrTransportClosed
	}
	if c.state != domain.ConnDisconnected {
		c.mu.Unlock()
		return fmt.Errorf("transport already started: %w", ports.ErrAlreadyRunning)
	}
	c.state = domain.ConnConnecting
	c.mu.Unlock()

	c.dial(ctx)
	return nil
}

// State returns the current connection state.
func (c *Client) State() domain.ConnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Close shuts the transport down, cancels any pending reconnect and reports
// OnClosed. It never triggers reconnection.
func (c *Client) Close(graceful bool) {
	op := "Close"
	c.mu.Lock()
	if c.closing {
		c.mu.Unlock()
		return
	}
	c.closing = true
	c.state = domain.ConnClosing
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
		c.reconnectTimer = nil
	}
	conn := c.conn
	c.conn = nil
	c.gen++
	c.mu.Unlock()

	if conn != nil {
		if graceful {
			deadline := time.Now().Add(c.cfg.WriteTimeout)
			msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
			if err := conn.WriteControl(websocket.CloseMessage, msg, deadline); err != nil {
				c.logger.Debug(context.Background(), op+": close handshake failed", map[string]interface{}{"error": err.Error()})
			}
		}
		_ = conn.Close()
	}

	c.mu.Lock()
	c.state = domain.ConnDisconnected
	c.mu.Unlock()

	c.logger.Info(context.Background(), op+": transport closed", map[string]interface{}{"graceful": graceful})
	if c.events.OnClosed != nil {
		c.events.OnClosed()
	}
}

// Reconnect requests the reconnect path explicitly. No-op while closing or
// after the attempt ceiling.
func (c *Client) Reconnect(reason string) {
	c.mu.Lock()
	if c.closing || c.state == domain.ConnFailed {
		c.mu.Unlock()
		return
	}
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
	fatal := c.scheduleReconnectLocked(0, reason)
	c.mu.Unlock()
	if fatal != nil {
		fatal()
	}
}

func (c *Client) SubscribeBalance() error {
	c.mu.Lock()
	c.subBalance = true
	send := c.state == domain.ConnReady && !c.sentBalance
	if send {
		c.sentBalance = true
	}
	c.mu.Unlock()
	if !send {
		return nil
	}
	return c.writeJSON(balanceRequest{Balance: 1, Subscribe: 1})
}

func (c *Client) SubscribeTicks(symbol string) error {
	c.mu.Lock()
	tracked := false
	for _, s := range c.subTicks {
		if s == symbol {
			tracked = true
			break
		}
	}
	if !tracked {
		c.subTicks = append(c.subTicks, symbol)
	}
	send := c.state == domain.ConnReady && !c.sentTicks[symbol]
	if send {
		if c.sentTicks == nil {
			c.sentTicks = make(map[string]bool)
		}
		c.sentTicks[symbol] = true
	}
	c.mu.Unlock()
	if !send {
		return nil
	}
	return c.writeJSON(ticksRequest{Ticks: symbol, Subscribe: 1})
}

func (c *Client) SubscribeContracts() error {
	c.mu.Lock()
	c.subContracts = true
	send := c.state == domain.ConnReady && !c.sentContracts
	if send {
		c.sentContracts = true
	}
	c.mu.Unlock()
	if !send {
		return nil
	}
	return c.writeJSON(contractsRequest{ProposalOpenContract: 1, Subscribe: 1})
}

func (c *Client) SendProposal(req domain.TradeRequest, currency string) error {
	if c.State() != domain.ConnReady {
		return ports.ErrNotReady
	}
	if err := c.writeJSON(newProposalRequest(req, currency)); err != nil {
		return fmt.Errorf("sending proposal: %w", ports.ErrProposalFailed)
	}
	return nil
}

func (c *Client) SendBuy(proposalID string, price decimal.Decimal) error {
	if c.State() != domain.ConnReady {
		return ports.ErrNotReady
	}
	if err := c.writeJSON(buyRequest{Buy: proposalID, Price: price.StringFixed(2)}); err != nil {
		return fmt.Errorf("sending buy: %w", ports.ErrBuyFailed)
	}
	return nil
}

// dial opens a socket and begins authorization. Called from Connect and from
// the reconnect timer.
func (c *Client) dial(ctx context.Context) {
	op := "dial"
	dialer := websocket.Dialer{HandshakeTimeout: c.cfg.HandshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, c.cfg.URL, nil)
	if err != nil {
		c.logger.Warn(ctx, op+" failed", map[string]interface{}{"url": c.cfg.URL, "error": err.Error()})
		c.mu.Lock()
		if c.closing {
			c.mu.Unlock()
			return
		}
		fatal := c.scheduleReconnectLocked(0, "dial failed")
		c.mu.Unlock()
		if fatal != nil {
			fatal()
		}
		return
	}

	c.mu.Lock()
	if c.closing {
		c.mu.Unlock()
		_ = conn.Close()
		return
	}
	c.conn = conn
	c.gen++
	gen := c.gen
	c.state = domain.ConnAuthorizing
	c.mu.Unlock()

	go c.readLoop(conn, gen)

	if err := c.writeJSON(authorizeRequest{Authorize: c.cfg.ResolveToken()}); err != nil {
		c.handleDrop(gen, fmt.Errorf("sending authorize: %w", err))
	}
}

func (c *Client) readLoop(conn *websocket.Conn, gen int) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.handleDrop(gen, err)
			return
		}
		c.handleMessage(gen, data)
	}
}

func (c *Client) handleMessage(gen int, data []byte) {
	ctx := context.Background()
	env, err := decode(data)
	if err != nil {
		c.fatal(err)
		return
	}

	if env.Error != nil {
		switch {
		case isAuthError(env.Error.Code):
			c.logger.Warn(ctx, "authorization rejected, reconnecting", map[string]interface{}{"code": env.Error.Code})
			c.dropForReconnect(gen, 0, "authorization expired")
			return
		case isRateLimitError(env.Error.Code):
			c.logger.Warn(ctx, "rate limited, delaying reconnect", map[string]interface{}{"code": env.Error.Code})
			c.dropForReconnect(gen, c.cfg.RateLimitDelay, "rate limited")
			return
		}
	}

	ev, err := translate(env)
	if err != nil {
		c.fatal(err)
		return
	}
	if ev == nil {
		return
	}

	if auth, ok := ev.(domain.AuthorizeEvent); ok {
		c.handleAuthorized(gen, auth)
		return
	}
	if c.events.OnEvent != nil {
		c.events.OnEvent(ev)
	}
}

// handleAuthorized moves to READY, resets the attempt counter and re-issues
// every tracked subscription before announcing readiness.
func (c *Client) handleAuthorized(gen int, auth domain.AuthorizeEvent) {
	c.mu.Lock()
	if gen != c.gen || c.closing {
		c.mu.Unlock()
		return
	}
	auth.Reconnected = c.everReady
	c.everReady = true
	c.state = domain.ConnReady
	c.attempts = 0
	balance, contracts := c.subBalance, c.subContracts
	ticks := append([]string(nil), c.subTicks...)
	c.sentBalance = balance
	c.sentContracts = contracts
	c.sentTicks = make(map[string]bool, len(ticks))
	for _, symbol := range ticks {
		c.sentTicks[symbol] = true
	}
	c.mu.Unlock()

	c.logger.Info(context.Background(), "authorized", map[string]interface{}{
		"currency": auth.Currency, "reconnected": auth.Reconnected,
	})

	if balance {
		_ = c.writeJSON(balanceRequest{Balance: 1, Subscribe: 1})
	}
	for _, symbol := range ticks {
		_ = c.writeJSON(ticksRequest{Ticks: symbol, Subscribe: 1})
	}
	if contracts {
		_ = c.writeJSON(contractsRequest{ProposalOpenContract: 1, Subscribe: 1})
	}

	if c.events.OnEvent != nil {
		c.events.OnEvent(auth)
	}
	if c.events.OnReady != nil {
		c.events.OnReady()
	}
}

// handleDrop reacts to a read failure on the given connection generation.
func (c *Client) handleDrop(gen int, err error) {
	c.mu.Lock()
	if gen != c.gen || c.closing {
		// A superseded connection or an explicit close; nothing to do.
		c.mu.Unlock()
		return
	}
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
	fatal := c.scheduleReconnectLocked(0, err.Error())
	c.mu.Unlock()
	if fatal != nil {
		fatal()
	}
}

// dropForReconnect tears down the current socket and schedules a reconnect
// with an optional extra delay on top of the backoff.
func (c *Client) dropForReconnect(gen int, extra time.Duration, reason string) {
	c.mu.Lock()
	if gen != c.gen || c.closing {
		c.mu.Unlock()
		return
	}
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
	fatal := c.scheduleReconnectLocked(extra, reason)
	c.mu.Unlock()
	if fatal != nil {
		fatal()
	}
}

// scheduleReconnectLocked arms the reconnect timer or, past the attempt
// ceiling, flips to FAILED. It returns the fatal callback to invoke after the
// mutex is released; calling OnFatal under the lock would deadlock a session
// that closes the transport from its fatal handler.
func (c *Client) scheduleReconnectLocked(extra time.Duration, reason string) func() {
	if c.attempts >= c.cfg.MaxReconnectAttempts {
		c.state = domain.ConnFailed
		c.gen++
		err := fmt.Errorf("%s after %d attempts: %w", reason, c.attempts, ports.ErrReconnectExhausted)
		return func() {
			if c.events.OnFatal != nil {
				c.events.OnFatal(err)
			}
		}
	}

	delay := c.backoff.ForAttempt(float64(c.attempts)) + extra
	c.attempts++
	c.state = domain.ConnReconnecting
	c.gen++
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
	}
	c.reconnectTimer = time.AfterFunc(delay, c.retry)

	c.logger.Warn(context.Background(), "connection lost, reconnecting", map[string]interface{}{
		"reason": reason, "attempt": c.attempts, "delay": delay.String(),
	})
	return nil
}

func (c *Client) retry() {
	c.mu.Lock()
	if c.closing || c.state != domain.ConnReconnecting {
		c.mu.Unlock()
		return
	}
	c.state = domain.ConnConnecting
	c.mu.Unlock()
	c.dial(context.Background())
}

// fatal marks the transport unusable and reports upward. Used for malformed
// broker data, where guessing intent is worse than stopping.
func (c *Client) fatal(err error) {
	c.mu.Lock()
	if c.closing || c.state == domain.ConnFailed {
		c.mu.Unlock()
		return
	}
	c.state = domain.ConnFailed
	c.gen++
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
		c.reconnectTimer = nil
	}
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
	c.mu.Unlock()

	c.logger.Error(context.Background(), err, "transport failed")
	if c.events.OnFatal != nil {
		c.events.OnFatal(err)
	}
}

func (c *Client) writeJSON(v interface{}) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ports.ErrNotReady
	}
	_ = conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	return conn.WriteJSON(v)
}
