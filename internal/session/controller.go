// Package session runs one bot instance: it wires the transport, market
// feed, strategy and bookkeeping into the start/trade/stop state machine.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"derivbot/internal/domain"
	"derivbot/internal/feed"
	"derivbot/internal/ports"
)

// Config holds one session's wiring and risk parameters.
type Config struct {
	Strategy     ports.Strategy
	Transport    ports.TransportFactory
	Sink         ports.StatsSink
	Logger       ports.Logger
	ResolveToken ports.AuthTokenResolver

	InitialStake         decimal.Decimal
	MartingaleMultiplier decimal.Decimal
	TakeProfit           decimal.Decimal // Zero disables
	StopLoss             decimal.Decimal // Zero disables
}

func (cfg Config) validate() error {
	switch {
	case cfg.Strategy == nil:
		return fmt.Errorf("strategy is required: %w", ports.ErrConfigurationError)
	case cfg.Transport == nil:
		return fmt.Errorf("transport factory is required: %w", ports.ErrConfigurationError)
	case cfg.Sink == nil:
		return fmt.Errorf("stats sink is required: %w", ports.ErrConfigurationError)
	case cfg.Logger == nil:
		return fmt.Errorf("logger is required: %w", ports.ErrConfigurationError)
	case cfg.ResolveToken == nil:
		return fmt.Errorf("token resolver is required: %w", ports.ErrConfigurationError)
	case !cfg.InitialStake.IsPositive():
		return fmt.Errorf("initial stake must be positive: %w", ports.ErrConfigurationError)
	case cfg.MartingaleMultiplier.LessThanOrEqual(decimal.NewFromInt(1)):
		return fmt.Errorf("martingale multiplier must exceed 1: %w", ports.ErrConfigurationError)
	}
	return nil
}

// Controller is the per-bot session state machine. The transport's read loop
// delivers events serially; the mutex extends that ordering over timer
// callbacks and the public API.
type Controller struct {
	cfg     Config
	logger  ports.Logger
	profile domain.StrategyProfile

	mu          sync.Mutex
	state       domain.SessionState
	runID       string
	transport   ports.Transport
	history     *feed.History
	ledger      *Ledger
	cycle       tradeCycle
	currency    string
	lastBalance decimal.Decimal
	lastMarket  string
	lastTarget  string
	lastProfit  decimal.Decimal

	tradeTimer *time.Timer
	inDelay    bool
	pendingReq *domain.TradeRequest
	tickerStop chan struct{}
	stopReason string
}

// New creates a session controller. The transport is built per run, not
// here, so a stopped session can be started again cleanly.
func New(cfg Config) (*Controller, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Controller{
		cfg:     cfg,
		logger:  cfg.Logger,
		profile: cfg.Strategy.Profile(),
		state:   domain.SessionIdle,
	}, nil
}

// State returns the current session state.
func (c *Controller) State() domain.SessionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// RunID returns the identifier of the current (or last) run.
func (c *Controller) RunID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.runID
}

// Start begins a new run: fresh bookkeeping, fresh transport. Rejected when
// a run is active or no broker token is available.
func (c *Controller) Start(ctx context.Context) error {
	op := "Start"
	c.mu.Lock()
	if c.state != domain.SessionIdle {
		c.mu.Unlock()
		return ports.ErrAlreadyRunning
	}
	if c.cfg.ResolveToken() == "" {
		c.mu.Unlock()
		c.cfg.Sink.ShowStatus("Connect the broker account before starting.", domain.SeverityWarning)
		return ports.ErrNoAuthToken
	}

	window := c.profile.Window
	if window < c.profile.MinHistory {
		window = c.profile.MinHistory
	}

	c.state = domain.SessionStarting
	c.runID = uuid.NewString()
	c.history = feed.New(window)
	c.ledger = NewLedger(c.cfg.InitialStake, c.cfg.MartingaleMultiplier, c.cfg.TakeProfit, c.cfg.StopLoss)
	c.ledger.Reset(time.Now())
	c.cycle.reset()
	c.currency = "USD"
	c.inDelay = false
	c.pendingReq = nil
	c.stopReason = ""

	transport, err := c.cfg.Transport.New(ports.TransportEvents{
		OnReady:  c.onReady,
		OnEvent:  c.onEvent,
		OnClosed: c.onClosed,
		OnFatal:  c.onFatal,
	})
	if err != nil {
		c.state = domain.SessionIdle
		c.mu.Unlock()
		return fmt.Errorf("%s: building transport: %w", op, err)
	}
	c.transport = transport

	c.tickerStop = make(chan struct{})
	go c.runTicker(c.tickerStop)
	c.mu.Unlock()

	c.cfg.Sink.ResetHistory()
	c.cfg.Sink.SetRunningState(true)
	c.cfg.Sink.ShowStatus(fmt.Sprintf("Starting %s session...", c.cfg.Strategy.Name()), domain.SeverityInfo)
	c.logger.Info(ctx, op+": session starting", map[string]interface{}{
		"strategy": c.cfg.Strategy.Name(), "run": c.runID,
	})

	if err := transport.Connect(ctx); err != nil {
		c.Stop("Failed to open the broker connection.", domain.SeverityError)
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// Stop ends the run with a user-visible reason. Safe from any state.
func (c *Controller) Stop(reason string, severity domain.Severity) {
	c.mu.Lock()
	c.stopLocked(reason, severity)
	c.mu.Unlock()
}

// stopLocked cancels every timer, then closes the transport. The IDLE
// transition happens in onClosed once the close handshake completes.
func (c *Controller) stopLocked(reason string, severity domain.Severity) {
	if c.state == domain.SessionStopping || c.state == domain.SessionIdle {
		return
	}
	c.state = domain.SessionStopping
	c.stopReason = reason

	if c.tradeTimer != nil {
		c.tradeTimer.Stop()
		c.tradeTimer = nil
	}
	if c.tickerStop != nil {
		close(c.tickerStop)
		c.tickerStop = nil
	}
	c.pendingReq = nil
	c.inDelay = false

	transport := c.transport

	c.mu.Unlock()
	c.cfg.Sink.ShowStatus(reason, severity)
	c.cfg.Sink.SetRunningState(false)
	if transport != nil {
		transport.Close(true)
	} else {
		c.finishStop()
	}
	c.mu.Lock()
}

// finishStop completes the transition to IDLE.
func (c *Controller) finishStop() {
	c.mu.Lock()
	c.state = domain.SessionIdle
	c.transport = nil
	reason := c.stopReason
	c.mu.Unlock()
	c.logger.Info(context.Background(), "session stopped", map[string]interface{}{"reason": reason})
}

// onReady runs on every READY transition, first connect and reconnects
// alike. Subscriptions are idempotent on the transport side.
func (c *Controller) onReady() {
	c.mu.Lock()
	if c.state != domain.SessionStarting && c.state != domain.SessionRunning {
		c.mu.Unlock()
		return
	}
	c.state = domain.SessionRunning
	transport := c.transport
	retry := c.pendingReq
	c.pendingReq = nil
	c.mu.Unlock()

	_ = transport.SubscribeBalance()
	// Trades may rotate markets, but the feed follows the primary symbol.
	_ = transport.SubscribeTicks(c.profile.PrimarySymbol())
	_ = transport.SubscribeContracts()

	if retry != nil {
		c.mu.Lock()
		c.sendProposalLocked(*retry)
		c.mu.Unlock()
	}
}

func (c *Controller) onClosed() {
	c.finishStop()
}

func (c *Controller) onFatal(err error) {
	c.logger.Error(context.Background(), err, "transport gave up")
	c.mu.Lock()
	if errors.Is(err, ports.ErrReconnectExhausted) {
		c.stopLocked("Connection lost and could not be restored.", domain.SeverityError)
	} else {
		c.stopLocked("Broker connection failed.", domain.SeverityError)
	}
	c.mu.Unlock()
}

// onEvent dispatches one translated broker message.
func (c *Controller) onEvent(ev domain.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != domain.SessionRunning && c.state != domain.SessionStarting {
		return
	}

	switch ev := ev.(type) {
	case domain.AuthorizeEvent:
		c.currency = ev.Currency
		c.lastBalance = ev.Balance
		c.cfg.Sink.UpdateBalance(ev.Balance, ev.Currency)
		if ev.Reconnected {
			c.cfg.Sink.ShowStatus("Reconnected to the broker.", domain.SeverityInfo)
		}

	case domain.BalanceEvent:
		c.lastBalance = ev.Balance
		c.cfg.Sink.UpdateBalance(ev.Balance, ev.Currency)

	case domain.TickEvent:
		c.handleTickLocked(ev.Tick)

	case domain.ProposalEvent:
		if c.cycle.onProposal(ev) {
			transport := c.transport
			proposalID := ev.ID
			if err := transport.SendBuy(proposalID, ev.AskPrice); err != nil {
				c.logger.Warn(context.Background(), "buy failed, abandoning trade", map[string]interface{}{"error": err.Error()})
				c.cycle.reset()
				c.scheduleNextTradeLocked()
			}
		}

	case domain.BuyEvent:
		c.cycle.onBuy(ev)

	case domain.ContractEvent:
		if c.cycle.onContract(ev) {
			c.handleSettlementLocked(ev.Profit)
		}

	case domain.APIErrorEvent:
		c.cfg.Sink.ShowStatus(fmt.Sprintf("%s: %s", ev.Code, ev.Message), domain.SeverityWarning)
		if c.cycle.phase == proposalPending {
			// The proposal or buy was rejected; free the slot and try
			// again after the usual pause. Once a contract is open the
			// error cannot be about this trade, and the slot stays held
			// until the genuine settlement arrives.
			c.cycle.reset()
			c.scheduleNextTradeLocked()
		}
	}
}

// handleTickLocked feeds the price history and, when nothing is in flight,
// asks the strategy for the next trade.
func (c *Controller) handleTickLocked(tick domain.Tick) {
	if tick.Symbol != c.profile.PrimarySymbol() {
		return
	}
	c.history.Push(tick)

	if c.state != domain.SessionRunning || c.cycle.phase != tradeIdle || c.inDelay || c.pendingReq != nil {
		return
	}
	c.tryTradeLocked()
}

// tryTradeLocked runs one decision attempt against the current history.
func (c *Controller) tryTradeLocked() {
	if !c.history.HasEnough(c.profile.MinHistory) {
		return
	}
	now := time.Now()
	decision := c.cfg.Strategy.Decide(context.Background(), c.history.Snapshot(), c.ledger.Stats(now))
	if decision == nil {
		return
	}

	stake := c.ledger.stake
	if decision.StakeFactor > 0 && decision.StakeFactor != 1 {
		stake = stake.Mul(decimal.NewFromFloat(decision.StakeFactor)).Round(2)
	}
	symbol := decision.Symbol
	if symbol == "" {
		symbol = c.profile.PrimarySymbol()
	}

	req := domain.TradeRequest{
		ContractType:  decision.ContractType,
		Barrier:       decision.Barrier,
		Stake:         stake,
		DurationTicks: decision.DurationTicks,
		Symbol:        symbol,
		Label:         decision.Label,
	}
	if !c.cycle.begin(req) {
		return
	}
	c.lastMarket = symbol
	c.lastTarget = decision.Label
	c.cfg.Sink.UpdateTargets(symbol, decision.Label)
	c.sendProposalLocked(req)
}

// sendProposalLocked submits the proposal, or parks it for retry when the
// transport is away. A parked trade is re-sent from the next onReady.
func (c *Controller) sendProposalLocked(req domain.TradeRequest) {
	err := c.transport.SendProposal(req, c.currency)
	if err == nil {
		return
	}
	if errors.Is(err, ports.ErrNotReady) {
		c.logger.Warn(context.Background(), "trade attempted while disconnected, will retry after reconnect", nil)
		c.pendingReq = &req
		transport := c.transport
		c.mu.Unlock()
		transport.Reconnect("trade attempt while disconnected")
		c.mu.Lock()
		return
	}
	c.logger.Error(context.Background(), err, "proposal failed")
	c.cycle.reset()
	c.scheduleNextTradeLocked()
}

// handleSettlementLocked closes out the in-flight trade: bookkeeping,
// history entry, stats push, stop ladder, then the inter-trade pause.
func (c *Controller) handleSettlementLocked(profit decimal.Decimal) {
	now := time.Now()
	win := profit.IsPositive()
	req := c.cycle.request
	c.cycle.reset()

	c.ledger.Settle(win, profit)
	c.lastProfit = profit

	c.cfg.Sink.AddHistoryEntry(domain.HistoryEntry{
		SessionID: c.runID,
		Market:    req.Symbol,
		Target:    req.Label,
		Stake:     req.Stake,
		Profit:    profit,
		Win:       win,
		Timestamp: now,
	})
	c.pushStatsLocked(now)

	if verdict := c.ledger.EvaluateStop(win, c.profile.SoftStop, now); verdict != nil {
		c.stopLocked(verdict.Reason, verdict.Severity)
		return
	}
	c.scheduleNextTradeLocked()
}

func (c *Controller) pushStatsLocked(now time.Time) {
	stats := c.ledger.Stats(now)
	c.cfg.Sink.UpdateStats(domain.StatsSnapshot{
		Balance:           c.lastBalance,
		Currency:          c.currency,
		TotalProfit:       stats.TotalProfit,
		TotalTrades:       stats.TotalTrades,
		WinRate:           c.ledger.WinRatePercent(),
		CurrentStake:      stats.CurrentStake,
		ConsecutiveLosses: stats.ConsecutiveLosses,
		Market:            c.lastMarket,
		Target:            c.lastTarget,
		LastProfit:        c.lastProfit,
		RunningTime:       domain.FormatRunningTime(stats.RunningTime),
	})
}

// scheduleNextTradeLocked arms the inter-trade delay. When it fires the
// session attempts a decision immediately instead of waiting for a tick, so
// strategies with no history requirement keep their cadence.
func (c *Controller) scheduleNextTradeLocked() {
	if c.state != domain.SessionRunning && c.state != domain.SessionStarting {
		return
	}
	delay := c.profile.TradeDelay
	if delay <= 0 {
		delay = 500 * time.Millisecond
	}
	c.inDelay = true
	if c.tradeTimer != nil {
		c.tradeTimer.Stop()
	}
	c.tradeTimer = time.AfterFunc(delay, c.onTradeTimer)
}

func (c *Controller) onTradeTimer() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != domain.SessionRunning {
		return
	}
	c.inDelay = false
	if c.cycle.phase == tradeIdle && c.pendingReq == nil {
		c.tryTradeLocked()
	}
}

// runTicker publishes the running time once per second and feeds the
// time-based soft-stop rule between settlements.
func (c *Controller) runTicker(stop chan struct{}) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case now := <-ticker.C:
			c.mu.Lock()
			if c.state == domain.SessionRunning {
				elapsed := now.Sub(c.ledger.startedAt)
				c.cfg.Sink.UpdateRunningTime(domain.FormatRunningTime(elapsed))
				c.ledger.NoteRunTime(c.profile.SoftStop, now)
			}
			c.mu.Unlock()
		}
	}
}
