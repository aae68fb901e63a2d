package sim

import (
	"context"
	"math/rand"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"derivbot/internal/domain"
	"derivbot/internal/ports"
)

type mockLogger struct{}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

type captureSink struct {
	mu       sync.Mutex
	entries  []domain.HistoryEntry
	statuses []string
	running  []bool
}

func (s *captureSink) ShowStatus(text string, severity domain.Severity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses = append(s.statuses, text)
}

func (s *captureSink) UpdateBalance(amount decimal.Decimal, currency string) {}
func (s *captureSink) UpdateStats(snapshot domain.StatsSnapshot)             {}

func (s *captureSink) AddHistoryEntry(entry domain.HistoryEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entry)
}

func (s *captureSink) UpdateTargets(symbol, label string) {}
func (s *captureSink) ResetHistory()                      {}

func (s *captureSink) SetRunningState(running bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = append(s.running, running)
}

func (s *captureSink) UpdateRunningTime(hhmmss string) {}

func (s *captureSink) entryCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

type stubStrategy struct {
	profile  domain.StrategyProfile
	decision *domain.Decision
}

func (s *stubStrategy) Name() string                    { return "stub" }
func (s *stubStrategy) Profile() domain.StrategyProfile { return s.profile }

func (s *stubStrategy) Decide(ctx context.Context, ticks []domain.Tick, stats domain.SessionStats) *domain.Decision {
	if s.decision == nil {
		return nil
	}
	d := *s.decision
	return &d
}

func TestPayoutRates(t *testing.T) {
	tests := []struct {
		ct      domain.ContractType
		barrier string
		want    float64
	}{
		{domain.DigitDiff, "7", 0.0619},
		{domain.DigitOver, "0", 0.95},
		{domain.DigitUnder, "9", 0.95},
		{domain.DigitEven, "", 0.96},
		{domain.DigitOdd, "", 0.96},
		{domain.Call, "", 0.75},
		{domain.Put, "", 0.75},
		{domain.NoTouch, "+0.63", 1.5},
	}
	for _, tt := range tests {
		assert.InDelta(t, tt.want, payoutRate(tt.ct, tt.barrier), 1e-9, "%s", tt.ct)
	}
}

func TestWinProbabilityByBarrier(t *testing.T) {
	assert.InDelta(t, 0.90, winProbability(domain.DigitOver, "0"), 1e-9)
	assert.InDelta(t, 0.60, winProbability(domain.DigitOver, "4"), 1e-9)
	assert.InDelta(t, 0.90, winProbability(domain.DigitUnder, "9"), 1e-9)
	assert.InDelta(t, 0.60, winProbability(domain.DigitUnder, "5"), 1e-9)
	assert.InDelta(t, 0.30, winProbability(domain.NoTouch, "+0.63"), 1e-9)
}

func TestSettlementProfit(t *testing.T) {
	stake := decimal.NewFromInt(10)

	win := settlementProfit(stake, domain.Call, "", true)
	assert.True(t, win.Equal(decimal.NewFromFloat(7.5)), "got %s", win)

	diff := settlementProfit(stake, domain.DigitDiff, "7", true)
	assert.True(t, diff.Equal(decimal.NewFromFloat(0.62)), "rounded to cents, got %s", diff)

	loss := settlementProfit(stake, domain.Call, "", false)
	assert.True(t, loss.Equal(decimal.NewFromInt(-10)))
}

func TestDigitBotForcedWinAfterTwoLosses(t *testing.T) {
	rnd := rand.New(rand.NewSource(1))
	stats := domain.SessionStats{
		ConsecutiveLosses: 2,
		RecentOutcomes:    []bool{true, true, true, true, true, true, true, true, false, false},
	}

	for i := 0; i < 100; i++ {
		require.True(t, drawOutcome(rnd, domain.DigitDiff, "7", true, stats),
			"digit bot must win the trade after two straight losses")
	}
}

func TestForcedWinBeforeThirdLossInWindow(t *testing.T) {
	rnd := rand.New(rand.NewSource(1))
	stats := domain.SessionStats{
		ConsecutiveLosses: 1,
		RecentOutcomes:    []bool{false, true, true, true, false},
	}

	for i := 0; i < 100; i++ {
		require.True(t, drawOutcome(rnd, domain.NoTouch, "+0.63", false, stats),
			"a third loss in the ten-trade window must not happen")
	}
}

func TestRandomDrawWhenUnconstrained(t *testing.T) {
	rnd := rand.New(rand.NewSource(42))
	stats := domain.SessionStats{RecentOutcomes: []bool{true, true, true}}

	wins := 0
	for i := 0; i < 2000; i++ {
		if drawOutcome(rnd, domain.DigitDiff, "7", false, stats) {
			wins++
		}
	}
	assert.InDelta(t, 0.90, float64(wins)/2000, 0.03)
}

func newTestRunner(t *testing.T, strategy *stubStrategy, mutate func(*Config)) (*Runner, *captureSink) {
	t.Helper()
	sink := &captureSink{}
	cfg := Config{
		Strategy:             strategy,
		Sink:                 sink,
		Logger:               &mockLogger{},
		InitialStake:         decimal.NewFromInt(10),
		MartingaleMultiplier: decimal.NewFromInt(2),
		Rand:                 rand.New(rand.NewSource(7)),
	}
	if mutate != nil {
		mutate(&cfg)
	}
	r, err := NewRunner(cfg)
	require.NoError(t, err)
	r.durationFor = func(ticks int) time.Duration { return time.Millisecond }
	r.delayFor = func(ticks int) time.Duration { return time.Millisecond }
	t.Cleanup(func() { r.Stop("test done", domain.SeverityInfo) })
	return r, sink
}

func TestRunnerStopsOnTakeProfit(t *testing.T) {
	strategy := &stubStrategy{
		profile: domain.StrategyProfile{Symbols: []string{"R_10"}, Window: 5, MinHistory: 1},
		decision: &domain.Decision{
			ContractType: domain.Call, DurationTicks: 5, Label: "CALL",
		},
	}
	r, sink := newTestRunner(t, strategy, func(cfg *Config) {
		cfg.TakeProfit = decimal.NewFromInt(5)
	})

	require.NoError(t, r.Start(context.Background()))

	// The fairness window guarantees a win within a few trades, and one
	// CALL win pays 7.50 against a 5.00 target.
	require.Eventually(t, func() bool { return r.State() == domain.SessionIdle },
		5*time.Second, time.Millisecond)
	assert.Greater(t, sink.entryCount(), 0)

	sink.mu.Lock()
	defer sink.mu.Unlock()
	found := false
	for _, st := range sink.statuses {
		if strings.HasPrefix(st, "Take profit") {
			found = true
		}
	}
	assert.True(t, found, "statuses: %v", sink.statuses)
}

func TestRunnerFallsBackWhenStrategyAbstains(t *testing.T) {
	strategy := &stubStrategy{
		profile: domain.StrategyProfile{
			Symbols:  []string{"R_10", "R_25"},
			Window:   1,
			DigitBot: true,
		},
	}
	r, sink := newTestRunner(t, strategy, nil)

	require.NoError(t, r.Start(context.Background()))
	require.Eventually(t, func() bool { return sink.entryCount() >= 3 },
		5*time.Second, time.Millisecond)

	r.Stop("done", domain.SeverityInfo)
	sink.mu.Lock()
	defer sink.mu.Unlock()
	for _, e := range sink.entries {
		assert.Contains(t, []string{"R_10", "R_25"}, e.Market)
		assert.NotEmpty(t, e.Target)
	}
}

func TestRunnerRejectsDoubleStart(t *testing.T) {
	strategy := &stubStrategy{
		profile:  domain.StrategyProfile{Symbols: []string{"R_10"}, Window: 1},
		decision: &domain.Decision{ContractType: domain.Put, DurationTicks: 5, Label: "PUT"},
	}
	r, _ := newTestRunner(t, strategy, nil)

	require.NoError(t, r.Start(context.Background()))
	require.ErrorIs(t, r.Start(context.Background()), ports.ErrAlreadyRunning)
}
