package deriv

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"derivbot/internal/domain"
	"derivbot/internal/ports"
)

type mockLogger struct{}

func (mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// fakeBroker is a WebSocket server that answers authorize requests and
// records everything the client sends.
type fakeBroker struct {
	srv   *httptest.Server
	conns chan *websocket.Conn
	msgs  chan map[string]interface{}
}

func newFakeBroker(t *testing.T) *fakeBroker {
	b := &fakeBroker{
		conns: make(chan *websocket.Conn, 8),
		msgs:  make(chan map[string]interface{}, 64),
	}
	b.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		b.conns <- conn
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var m map[string]interface{}
			if json.Unmarshal(data, &m) != nil {
				continue
			}
			if _, ok := m["authorize"]; ok {
				_ = conn.WriteMessage(websocket.TextMessage,
					[]byte(`{"msg_type":"authorize","authorize":{"balance":"1000.00","currency":"USD"}}`))
			}
			b.msgs <- m
		}
	}))
	t.Cleanup(b.srv.Close)
	return b
}

func (b *fakeBroker) url() string {
	return "ws" + strings.TrimPrefix(b.srv.URL, "http")
}

func (b *fakeBroker) nextConn(t *testing.T) *websocket.Conn {
	t.Helper()
	select {
	case conn := <-b.conns:
		return conn
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a broker connection")
		return nil
	}
}

func (b *fakeBroker) nextMsg(t *testing.T) map[string]interface{} {
	t.Helper()
	select {
	case m := <-b.msgs:
		return m
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a client message")
		return nil
	}
}

type recorder struct {
	ready  chan struct{}
	events chan domain.Event
	closed chan struct{}
	fatal  chan error
}

func newRecorder() *recorder {
	return &recorder{
		ready:  make(chan struct{}, 8),
		events: make(chan domain.Event, 64),
		closed: make(chan struct{}, 1),
		fatal:  make(chan error, 1),
	}
}

func (r *recorder) transportEvents() ports.TransportEvents {
	return ports.TransportEvents{
		OnReady:  func() { r.ready <- struct{}{} },
		OnEvent:  func(ev domain.Event) { r.events <- ev },
		OnClosed: func() { r.closed <- struct{}{} },
		OnFatal:  func(err error) { r.fatal <- err },
	}
}

func (r *recorder) waitReady(t *testing.T) {
	t.Helper()
	select {
	case <-r.ready:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for OnReady")
	}
}

func (r *recorder) waitAuthorize(t *testing.T) domain.AuthorizeEvent {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-r.events:
			if auth, ok := ev.(domain.AuthorizeEvent); ok {
				return auth
			}
		case <-deadline:
			t.Fatal("timed out waiting for AuthorizeEvent")
		}
	}
}

func (r *recorder) waitTick(t *testing.T) domain.TickEvent {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-r.events:
			if tick, ok := ev.(domain.TickEvent); ok {
				return tick
			}
		case <-deadline:
			t.Fatal("timed out waiting for TickEvent")
		}
	}
}

func testConfig(url string) Config {
	return Config{
		URL:               url,
		ResolveToken:      func() string { return "token-1" },
		Logger:            mockLogger{},
		ReconnectMinDelay: 5 * time.Millisecond,
		ReconnectMaxDelay: 20 * time.Millisecond,
		RateLimitDelay:    5 * time.Millisecond,
	}
}

func newTestClient(t *testing.T, url string, rec *recorder) *Client {
	t.Helper()
	factory, err := NewFactory(testConfig(url))
	require.NoError(t, err)
	transport, err := factory.New(rec.transportEvents())
	require.NoError(t, err)
	client := transport.(*Client)
	t.Cleanup(func() { client.Close(false) })
	return client
}

func TestTranslate(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want domain.Event
	}{
		{
			name: "balance",
			raw:  `{"msg_type":"balance","balance":{"balance":"995.50","currency":"USD"}}`,
			want: domain.BalanceEvent{Balance: decimal.RequireFromString("995.50"), Currency: "USD"},
		},
		{
			name: "tick carries last digit",
			raw:  `{"msg_type":"tick","tick":{"symbol":"R_50","quote":100.47,"epoch":1700000000}}`,
			want: domain.TickEvent{Tick: domain.Tick{
				Symbol: "R_50", Quote: 100.47, Raw: "100.47", Digit: 7,
				Epoch: time.Unix(1700000000, 0),
			}},
		},
		{
			name: "proposal",
			raw:  `{"msg_type":"proposal","proposal":{"id":"abc-123","ask_price":"10.00"}}`,
			want: domain.ProposalEvent{ID: "abc-123", AskPrice: decimal.RequireFromString("10.00")},
		},
		{
			name: "buy",
			raw:  `{"msg_type":"buy","buy":{"contract_id":987654,"buy_price":"10.00"}}`,
			want: domain.BuyEvent{ContractID: 987654, BuyPrice: decimal.RequireFromString("10.00")},
		},
		{
			name: "settled contract",
			raw:  `{"msg_type":"proposal_open_contract","proposal_open_contract":{"contract_id":987654,"is_sold":1,"profit":"-10.00"}}`,
			want: domain.ContractEvent{ContractID: 987654, IsSold: true, Profit: decimal.RequireFromString("-10.00")},
		},
		{
			name: "informational error",
			raw:  `{"msg_type":"proposal","error":{"code":"ContractBuyValidationError","message":"Stake too low."}}`,
			want: domain.APIErrorEvent{Code: "ContractBuyValidationError", Message: "Stake too low."},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env, err := decode([]byte(tt.raw))
			require.NoError(t, err)
			ev, err := translate(env)
			require.NoError(t, err)
			if want, ok := tt.want.(domain.BalanceEvent); ok {
				got := ev.(domain.BalanceEvent)
				assert.True(t, want.Balance.Equal(got.Balance))
				assert.Equal(t, want.Currency, got.Currency)
				return
			}
			assert.Equal(t, tt.want, ev)
		})
	}
}

func TestTranslateUnknownTypeIsIgnored(t *testing.T) {
	env, err := decode([]byte(`{"msg_type":"ping","ping":"pong"}`))
	require.NoError(t, err)
	ev, err := translate(env)
	require.NoError(t, err)
	assert.Nil(t, ev)
}

func TestTranslateMissingPayloadIsMalformed(t *testing.T) {
	env, err := decode([]byte(`{"msg_type":"tick"}`))
	require.NoError(t, err)
	_, err = translate(env)
	assert.ErrorIs(t, err, ports.ErrMalformedMessage)
}

func TestDecodeRejectsInvalidJSON(t *testing.T) {
	_, err := decode([]byte("not json at all"))
	assert.ErrorIs(t, err, ports.ErrMalformedMessage)
}

func TestDigitFromQuote(t *testing.T) {
	digit, ok := digitFromQuote("100.47")
	require.True(t, ok)
	assert.Equal(t, 7, digit)

	_, ok = digitFromQuote("")
	assert.False(t, ok)

	_, ok = digitFromQuote("100.")
	assert.False(t, ok)
}

func TestBackoffDelays(t *testing.T) {
	// Delay before retry k is min(1000 * 2^(k-1), 30000) ms.
	client := newClient(Config{
		ReconnectMinDelay: time.Second,
		ReconnectMaxDelay: 30 * time.Second,
		Logger:            mockLogger{},
	}, ports.TransportEvents{})

	want := []time.Duration{
		1 * time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second,
		16 * time.Second, 30 * time.Second, 30 * time.Second, 30 * time.Second,
		30 * time.Second, 30 * time.Second,
	}
	for k, expect := range want {
		assert.Equal(t, expect, client.backoff.ForAttempt(float64(k)), "retry %d", k+1)
	}
}

func TestConnectAuthorizeSubscribe(t *testing.T) {
	broker := newFakeBroker(t)
	rec := newRecorder()
	client := newTestClient(t, broker.url(), rec)

	require.NoError(t, client.Connect(context.Background()))

	msg := broker.nextMsg(t)
	assert.Equal(t, "token-1", msg["authorize"])

	auth := rec.waitAuthorize(t)
	assert.False(t, auth.Reconnected)
	assert.Equal(t, "USD", auth.Currency)
	assert.True(t, decimal.RequireFromString("1000.00").Equal(auth.Balance))
	rec.waitReady(t)
	assert.Equal(t, domain.ConnReady, client.State())

	require.NoError(t, client.SubscribeTicks("R_50"))
	msg = broker.nextMsg(t)
	assert.Equal(t, "R_50", msg["ticks"])

	// A second subscription for the same symbol is a tracked no-op.
	require.NoError(t, client.SubscribeTicks("R_50"))
	require.NoError(t, client.SubscribeBalance())
	msg = broker.nextMsg(t)
	assert.EqualValues(t, 1, msg["balance"])

	conn := broker.nextConn(t)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage,
		[]byte(`{"msg_type":"tick","tick":{"symbol":"R_50","quote":100.43,"epoch":1700000000}}`)))
	tick := rec.waitTick(t)
	assert.Equal(t, 3, tick.Tick.Digit)
	assert.Equal(t, "100.43", tick.Tick.Raw)
}

func TestConnectTwiceIsRejected(t *testing.T) {
	broker := newFakeBroker(t)
	rec := newRecorder()
	client := newTestClient(t, broker.url(), rec)

	require.NoError(t, client.Connect(context.Background()))
	rec.waitReady(t)
	assert.ErrorIs(t, client.Connect(context.Background()), ports.ErrAlreadyRunning)
}

func TestResubscribeAfterDrop(t *testing.T) {
	broker := newFakeBroker(t)
	rec := newRecorder()
	client := newTestClient(t, broker.url(), rec)

	require.NoError(t, client.Connect(context.Background()))
	broker.nextMsg(t) // authorize
	rec.waitReady(t)
	auth := rec.waitAuthorize(t)
	assert.False(t, auth.Reconnected)

	require.NoError(t, client.SubscribeBalance())
	require.NoError(t, client.SubscribeTicks("R_75"))
	require.NoError(t, client.SubscribeContracts())
	broker.nextMsg(t)
	broker.nextMsg(t)
	broker.nextMsg(t)

	// Kill the socket server-side; the client must reconnect, authorize
	// and re-issue every subscription without being asked.
	conn := broker.nextConn(t)
	conn.Close()

	msg := broker.nextMsg(t)
	assert.Equal(t, "token-1", msg["authorize"])
	auth = rec.waitAuthorize(t)
	assert.True(t, auth.Reconnected)
	rec.waitReady(t)

	seen := map[string]bool{}
	for i := 0; i < 3; i++ {
		m := broker.nextMsg(t)
		switch {
		case m["balance"] != nil:
			seen["balance"] = true
		case m["ticks"] != nil:
			assert.Equal(t, "R_75", m["ticks"])
			seen["ticks"] = true
		case m["proposal_open_contract"] != nil:
			seen["contracts"] = true
		}
	}
	assert.Len(t, seen, 3)
}

func TestReconnectDoesNotDuplicateSubscriptions(t *testing.T) {
	broker := newFakeBroker(t)
	rec := newRecorder()

	// Subscribe from OnReady on every READY, the way the session does,
	// trusting the transport to dedupe against its own resubscription.
	var client *Client
	events := rec.transportEvents()
	onReady := events.OnReady
	events.OnReady = func() {
		require.NoError(t, client.SubscribeBalance())
		require.NoError(t, client.SubscribeContracts())
		onReady()
	}
	factory, err := NewFactory(testConfig(broker.url()))
	require.NoError(t, err)
	transport, err := factory.New(events)
	require.NoError(t, err)
	client = transport.(*Client)
	t.Cleanup(func() { client.Close(false) })

	require.NoError(t, client.Connect(context.Background()))
	broker.nextMsg(t) // authorize
	rec.waitReady(t)
	auth := rec.waitAuthorize(t)
	assert.False(t, auth.Reconnected)
	broker.nextMsg(t) // balance
	broker.nextMsg(t) // proposal_open_contract

	conn := broker.nextConn(t)
	conn.Close()

	msg := broker.nextMsg(t)
	assert.Equal(t, "token-1", msg["authorize"])
	auth = rec.waitAuthorize(t)
	assert.True(t, auth.Reconnected)
	rec.waitReady(t)

	// Exactly one balance and one contract subscription on the new
	// socket even though both the client and OnReady asked for them.
	counts := map[string]int{}
	for i := 0; i < 2; i++ {
		m := broker.nextMsg(t)
		switch {
		case m["balance"] != nil:
			counts["balance"]++
		case m["proposal_open_contract"] != nil:
			counts["contracts"]++
		}
	}
	assert.Equal(t, 1, counts["balance"])
	assert.Equal(t, 1, counts["contracts"])

	select {
	case m := <-broker.msgs:
		t.Fatalf("unexpected duplicate subscription: %v", m)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestReconnectExhaustionIsFatal(t *testing.T) {
	rec := newRecorder()
	// Nothing listens on the discard port, so every dial fails.
	cfg := testConfig("ws://127.0.0.1:9")
	cfg.ReconnectMinDelay = time.Millisecond
	cfg.ReconnectMaxDelay = 2 * time.Millisecond
	factory, err := NewFactory(cfg)
	require.NoError(t, err)
	transport, err := factory.New(rec.transportEvents())
	require.NoError(t, err)
	client := transport.(*Client)
	defer client.Close(false)

	require.NoError(t, client.Connect(context.Background()))

	select {
	case err := <-rec.fatal:
		assert.ErrorIs(t, err, ports.ErrReconnectExhausted)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for the fatal reconnect error")
	}
	assert.Equal(t, domain.ConnFailed, client.State())

	// The ceiling is terminal; no further attempt may be scheduled.
	select {
	case err := <-rec.fatal:
		t.Fatalf("unexpected second fatal error: %v", err)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestExplicitCloseDoesNotReconnect(t *testing.T) {
	broker := newFakeBroker(t)
	rec := newRecorder()
	client := newTestClient(t, broker.url(), rec)

	require.NoError(t, client.Connect(context.Background()))
	broker.nextMsg(t)
	rec.waitReady(t)
	broker.nextConn(t)

	client.Close(true)
	select {
	case <-rec.closed:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for OnClosed")
	}
	assert.Equal(t, domain.ConnDisconnected, client.State())

	select {
	case <-broker.conns:
		t.Fatal("transport reconnected after an explicit close")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestRateLimitErrorTriggersDelayedReconnect(t *testing.T) {
	broker := newFakeBroker(t)
	rec := newRecorder()
	client := newTestClient(t, broker.url(), rec)

	require.NoError(t, client.Connect(context.Background()))
	broker.nextMsg(t)
	rec.waitReady(t)
	auth := rec.waitAuthorize(t)
	assert.False(t, auth.Reconnected)

	conn := broker.nextConn(t)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage,
		[]byte(`{"msg_type":"ping","error":{"code":"RateLimit","message":"Too many requests."}}`)))

	// The client drops the socket and comes back with a fresh authorize.
	msg := broker.nextMsg(t)
	assert.Equal(t, "token-1", msg["authorize"])
	auth = rec.waitAuthorize(t)
	assert.True(t, auth.Reconnected)
}

func TestMalformedMessageIsFatal(t *testing.T) {
	broker := newFakeBroker(t)
	rec := newRecorder()
	client := newTestClient(t, broker.url(), rec)

	require.NoError(t, client.Connect(context.Background()))
	broker.nextMsg(t)
	rec.waitReady(t)

	conn := broker.nextConn(t)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))

	select {
	case err := <-rec.fatal:
		assert.ErrorIs(t, err, ports.ErrMalformedMessage)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the malformed-message fatal")
	}
}

func TestSendRequiresReady(t *testing.T) {
	broker := newFakeBroker(t)
	rec := newRecorder()
	client := newTestClient(t, broker.url(), rec)

	req := domain.TradeRequest{
		ContractType:  domain.Call,
		Stake:         decimal.RequireFromString("10.00"),
		DurationTicks: 5,
		Symbol:        "R_10",
	}
	assert.ErrorIs(t, client.SendProposal(req, "USD"), ports.ErrNotReady)
	assert.ErrorIs(t, client.SendBuy("abc", decimal.RequireFromString("10.00")), ports.ErrNotReady)
}

func TestProposalWireFormat(t *testing.T) {
	broker := newFakeBroker(t)
	rec := newRecorder()
	client := newTestClient(t, broker.url(), rec)

	require.NoError(t, client.Connect(context.Background()))
	broker.nextMsg(t)
	rec.waitReady(t)

	req := domain.TradeRequest{
		ContractType:  domain.DigitDiff,
		Barrier:       "7",
		Stake:         decimal.RequireFromString("12.5"),
		DurationTicks: 1,
		Symbol:        "R_25",
	}
	require.NoError(t, client.SendProposal(req, "USD"))

	msg := broker.nextMsg(t)
	assert.EqualValues(t, 1, msg["proposal"])
	assert.Equal(t, "12.50", msg["amount"])
	assert.Equal(t, "stake", msg["basis"])
	assert.Equal(t, "DIGITDIFF", msg["contract_type"])
	assert.Equal(t, "USD", msg["currency"])
	assert.EqualValues(t, 1, msg["duration"])
	assert.Equal(t, "t", msg["duration_unit"])
	assert.Equal(t, "R_25", msg["symbol"])
	assert.Equal(t, "7", msg["barrier"])

	require.NoError(t, client.SendBuy("prop-1", decimal.RequireFromString("12.50")))
	msg = broker.nextMsg(t)
	assert.Equal(t, "prop-1", msg["buy"])
	assert.Equal(t, "12.50", msg["price"])
}
