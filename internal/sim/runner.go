package sim

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"derivbot/internal/domain"
	"derivbot/internal/feed"
	"derivbot/internal/ports"
	"derivbot/internal/session"
)

// Config holds a simulated session's wiring and risk parameters. The shape
// mirrors the live session config minus the transport.
type Config struct {
	Strategy ports.Strategy
	Sink     ports.StatsSink
	Logger   ports.Logger

	InitialStake         decimal.Decimal
	MartingaleMultiplier decimal.Decimal
	TakeProfit           decimal.Decimal // Zero disables
	StopLoss             decimal.Decimal // Zero disables

	StartingBalance decimal.Decimal // Demo balance; defaults to 1000
	Rand            *rand.Rand      // Optional; seeded from the clock when nil
}

func (cfg Config) validate() error {
	switch {
	case cfg.Strategy == nil:
		return fmt.Errorf("strategy is required: %w", ports.ErrConfigurationError)
	case cfg.Sink == nil:
		return fmt.Errorf("stats sink is required: %w", ports.ErrConfigurationError)
	case cfg.Logger == nil:
		return fmt.Errorf("logger is required: %w", ports.ErrConfigurationError)
	case !cfg.InitialStake.IsPositive():
		return fmt.Errorf("initial stake must be positive: %w", ports.ErrConfigurationError)
	case cfg.MartingaleMultiplier.LessThanOrEqual(decimal.NewFromInt(1)):
		return fmt.Errorf("martingale multiplier must exceed 1: %w", ports.ErrConfigurationError)
	}
	return nil
}

// Runner drives one demo session on timers: a synthetic price walk feeds the
// real strategy, the outcome model settles each trade, and the same ledger
// as the live session keeps the books.
type Runner struct {
	cfg     Config
	logger  ports.Logger
	profile domain.StrategyProfile
	rnd     *rand.Rand

	mu         sync.Mutex
	state      domain.SessionState
	runID      string
	ledger     *session.Ledger
	history    *feed.History
	balance    decimal.Decimal
	lastQuote  float64
	lastMarket string
	lastTarget string
	lastProfit decimal.Decimal
	inFlight   bool
	tradeTimer *time.Timer
	tickerStop chan struct{}

	// Timer ranges, overridable in tests.
	durationFor func(ticks int) time.Duration
	delayFor    func(ticks int) time.Duration
}

// NewRunner creates a demo session runner.
func NewRunner(cfg Config) (*Runner, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if cfg.StartingBalance.IsZero() {
		cfg.StartingBalance = decimal.NewFromInt(1000)
	}
	rnd := cfg.Rand
	if rnd == nil {
		rnd = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	r := &Runner{
		cfg:     cfg,
		logger:  cfg.Logger,
		profile: cfg.Strategy.Profile(),
		rnd:     rnd,
		state:   domain.SessionIdle,
	}
	r.durationFor = r.contractDuration
	r.delayFor = r.nextTradeDelay
	return r, nil
}

// State returns the current session state.
func (r *Runner) State() domain.SessionState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Start begins a demo run. No broker credentials are needed.
func (r *Runner) Start(ctx context.Context) error {
	op := "Start"
	r.mu.Lock()
	if r.state != domain.SessionIdle {
		r.mu.Unlock()
		return ports.ErrAlreadyRunning
	}
	now := time.Now()
	r.state = domain.SessionRunning
	r.runID = uuid.NewString()
	window := r.profile.Window
	if window < r.profile.MinHistory {
		window = r.profile.MinHistory
	}
	r.history = feed.New(window)
	r.ledger = session.NewLedger(r.cfg.InitialStake, r.cfg.MartingaleMultiplier, r.cfg.TakeProfit, r.cfg.StopLoss)
	r.ledger.Reset(now)
	r.balance = r.cfg.StartingBalance
	r.lastQuote = 100
	r.inFlight = false
	r.tickerStop = make(chan struct{})
	go r.runTicker(r.tickerStop)
	r.tradeTimer = time.AfterFunc(500*time.Millisecond, r.queueTrade)
	r.mu.Unlock()

	r.cfg.Sink.ResetHistory()
	r.cfg.Sink.UpdateBalance(r.cfg.StartingBalance, "USD")
	r.cfg.Sink.SetRunningState(true)
	r.cfg.Sink.ShowStatus(fmt.Sprintf("Simulation mode: starting %s...", r.cfg.Strategy.Name()), domain.SeveritySuccess)
	r.logger.Info(ctx, op+": simulated session starting", map[string]interface{}{
		"strategy": r.cfg.Strategy.Name(), "run": r.runID,
	})
	return nil
}

// Stop ends the demo run.
func (r *Runner) Stop(reason string, severity domain.Severity) {
	r.mu.Lock()
	if r.state != domain.SessionRunning {
		r.mu.Unlock()
		return
	}
	r.state = domain.SessionIdle
	if r.tradeTimer != nil {
		r.tradeTimer.Stop()
		r.tradeTimer = nil
	}
	if r.tickerStop != nil {
		close(r.tickerStop)
		r.tickerStop = nil
	}
	r.inFlight = false
	r.mu.Unlock()

	r.cfg.Sink.ShowStatus(reason, severity)
	r.cfg.Sink.SetRunningState(false)
	r.logger.Info(context.Background(), "simulated session stopped", map[string]interface{}{"reason": reason})
}

// queueTrade asks the strategy for the next trade over a fresh synthetic
// window and opens the simulated contract.
func (r *Runner) queueTrade() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != domain.SessionRunning || r.inFlight {
		return
	}

	r.refillHistoryLocked()
	now := time.Now()
	decision := r.cfg.Strategy.Decide(context.Background(), r.history.Snapshot(), r.ledger.Stats(now))
	if decision == nil {
		decision = r.fallbackDecisionLocked()
	}

	stake := r.ledger.CurrentStake()
	if decision.StakeFactor > 0 && decision.StakeFactor != 1 {
		stake = stake.Mul(decimal.NewFromFloat(decision.StakeFactor)).Round(2)
	}
	symbol := decision.Symbol
	if symbol == "" {
		symbol = r.profile.PrimarySymbol()
	}

	r.inFlight = true
	r.lastMarket = symbol
	r.lastTarget = decision.Label
	r.cfg.Sink.UpdateTargets(symbol, decision.Label)

	d := *decision
	r.tradeTimer = time.AfterFunc(r.durationFor(d.DurationTicks), func() {
		r.settleTrade(d, stake, symbol)
	})
}

// settleTrade resolves the simulated contract and runs the same settlement
// bookkeeping as the live session.
func (r *Runner) settleTrade(d domain.Decision, stake decimal.Decimal, symbol string) {
	r.mu.Lock()
	if r.state != domain.SessionRunning || !r.inFlight {
		r.mu.Unlock()
		return
	}
	now := time.Now()
	win := drawOutcome(r.rnd, d.ContractType, d.Barrier, r.profile.DigitBot, r.ledger.Stats(now))
	profit := settlementProfit(stake, d.ContractType, d.Barrier, win)
	r.balance = r.balance.Add(profit).Round(2)
	r.ledger.Settle(win, profit)
	r.lastProfit = profit
	r.inFlight = false

	balance := r.balance
	entry := domain.HistoryEntry{
		SessionID: r.runID,
		Market:    symbol,
		Target:    d.Label,
		Stake:     stake,
		Profit:    profit,
		Win:       win,
		Timestamp: now,
	}
	stats := r.ledger.Stats(now)
	snapshot := domain.StatsSnapshot{
		Balance:           balance,
		Currency:          "USD",
		TotalProfit:       stats.TotalProfit,
		TotalTrades:       stats.TotalTrades,
		WinRate:           r.ledger.WinRatePercent(),
		CurrentStake:      stats.CurrentStake,
		ConsecutiveLosses: stats.ConsecutiveLosses,
		Market:            r.lastMarket,
		Target:            r.lastTarget,
		LastProfit:        profit,
		RunningTime:       domain.FormatRunningTime(stats.RunningTime),
	}
	verdict := r.ledger.EvaluateStop(win, r.profile.SoftStop, now)
	if verdict == nil {
		r.tradeTimer = time.AfterFunc(r.delayFor(d.DurationTicks), r.queueTrade)
	}
	r.mu.Unlock()

	r.cfg.Sink.UpdateBalance(balance, "USD")
	r.cfg.Sink.AddHistoryEntry(entry)
	r.cfg.Sink.UpdateStats(snapshot)
	if verdict != nil {
		r.Stop(verdict.Reason, verdict.Severity)
	}
}

// refillHistoryLocked extends the synthetic price walk until the strategy's
// window is full. Digits are drawn uniformly, matching the broker's
// volatility-index tail digits.
func (r *Runner) refillHistoryLocked() {
	window := r.history.Window()
	for i := 0; i < window; i++ {
		r.lastQuote += (r.rnd.Float64() - 0.5) * 0.1
		r.history.Push(domain.Tick{
			Symbol: r.profile.PrimarySymbol(),
			Quote:  r.lastQuote,
			Digit:  r.rnd.Intn(10),
			Epoch:  time.Now(),
		})
	}
}

// fallbackDecisionLocked keeps the demo trading when the strategy abstains
// on the synthetic walk: digit bots rotate a random digit-differs contract,
// directional bots flip a coin.
func (r *Runner) fallbackDecisionLocked() *domain.Decision {
	if r.profile.DigitBot {
		digit := r.rnd.Intn(10)
		return &domain.Decision{
			ContractType:  domain.DigitDiff,
			Barrier:       fmt.Sprintf("%d", digit),
			DurationTicks: 1,
			Symbol:        r.randomMarketLocked(),
			Label:         fmt.Sprintf("Differ %d", digit),
		}
	}
	if r.rnd.Float64() < 0.5 {
		return &domain.Decision{ContractType: domain.Call, DurationTicks: 5, Label: "CALL"}
	}
	return &domain.Decision{ContractType: domain.Put, DurationTicks: 5, Label: "PUT"}
}

// randomMarketLocked picks a market from the profile, avoiding an immediate
// repeat when more than one is configured.
func (r *Runner) randomMarketLocked() string {
	symbols := r.profile.Symbols
	if len(symbols) == 0 {
		return ""
	}
	options := make([]string, 0, len(symbols))
	for _, s := range symbols {
		if s != r.lastMarket {
			options = append(options, s)
		}
	}
	if len(options) == 0 {
		options = symbols
	}
	return options[r.rnd.Intn(len(options))]
}

// contractDuration mimics real settlement latency per contract length.
// Called under the mutex.
func (r *Runner) contractDuration(ticks int) time.Duration {
	switch ticks {
	case 1:
		return time.Duration(2500+r.rnd.Float64()*2000) * time.Millisecond
	case 2:
		return time.Duration(4000+r.rnd.Float64()*3000) * time.Millisecond
	default:
		return time.Duration(8000+r.rnd.Float64()*6000) * time.Millisecond
	}
}

// nextTradeDelay mimics proposal and processing time between trades.
// Called under the mutex.
func (r *Runner) nextTradeDelay(ticks int) time.Duration {
	switch ticks {
	case 1:
		return time.Duration(800+r.rnd.Float64()*500) * time.Millisecond
	case 2:
		return time.Duration(1000+r.rnd.Float64()*700) * time.Millisecond
	default:
		return time.Duration(1500+r.rnd.Float64()*1000) * time.Millisecond
	}
}

func (r *Runner) runTicker(stop chan struct{}) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case now := <-ticker.C:
			r.mu.Lock()
			running := r.state == domain.SessionRunning
			var elapsed time.Duration
			if running {
				elapsed = now.Sub(r.ledger.StartedAt())
				r.ledger.NoteRunTime(r.profile.SoftStop, now)
			}
			r.mu.Unlock()
			if running {
				r.cfg.Sink.UpdateRunningTime(domain.FormatRunningTime(elapsed))
			}
		}
	}
}
