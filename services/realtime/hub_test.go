package realtime

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"price_alert_backend/models"
)

type fakeConn struct {
	id string

	mu        sync.Mutex
	events    []Event
	fail      bool
	closed    bool
	closeCode int
}

func newFakeConn(id string) *fakeConn { return &fakeConn{id: id} }

func (c *fakeConn) ID() string { return c.id }

func (c *fakeConn) Send(event Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail {
		return errors.New("broken pipe")
	}
	c.events = append(c.events, event)
	return nil
}

func (c *fakeConn) Close(code int, reason string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.closeCode = code
	return nil
}

func (c *fakeConn) setFail(fail bool) {
	c.mu.Lock()
	c.fail = fail
	c.mu.Unlock()
}

func (c *fakeConn) received(eventType string) []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []Event
	for _, e := range c.events {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

func (c *fakeConn) last() Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.events[len(c.events)-1]
}

func TestHubConnectSendsWelcome(t *testing.T) {
	hub := NewHub(zaptest.NewLogger(t))
	conn := newFakeConn("c1")

	require.NoError(t, hub.Connect(conn, 7))

	welcome := conn.received(EventConnected)
	require.Len(t, welcome, 1)
	assert.Equal(t, uint(7), welcome[0].UserID)
	assert.Equal(t, welcomeMessage, welcome[0].Message)
	assert.NotNil(t, welcome[0].Timestamp)
	assert.Equal(t, Stats{ActiveUsers: 1, TotalConnections: 1, Symbols: []string{}}, hub.Stats())
}

func TestHubConnectDropsConnectionWhenWelcomeFails(t *testing.T) {
	hub := NewHub(zaptest.NewLogger(t))
	conn := newFakeConn("c1")
	conn.setFail(true)

	assert.Error(t, hub.Connect(conn, 7))
	assert.True(t, conn.closed)
	assert.Equal(t, 0, hub.Stats().TotalConnections)
}

func TestHubSubscribeRequiresConnection(t *testing.T) {
	hub := NewHub(zaptest.NewLogger(t))

	_, err := hub.Subscribe(1, "BTC")
	assert.ErrorIs(t, err, ErrNotConnected)
	assert.Empty(t, hub.Watchers("BTC"))

	require.NoError(t, hub.Connect(newFakeConn("c1"), 1))
	_, err = hub.Subscribe(1, "  ")
	assert.ErrorIs(t, err, ErrEmptySymbol)
}

func TestHubSubscribeIsIdempotentAndCanonical(t *testing.T) {
	hub := NewHub(zaptest.NewLogger(t))
	require.NoError(t, hub.Connect(newFakeConn("c1"), 1))

	for _, symbol := range []string{"btc", "BTC", " Btc "} {
		got, err := hub.Subscribe(1, symbol)
		require.NoError(t, err)
		assert.Equal(t, "BTC", got)
	}
	_, err := hub.Subscribe(1, "eth")
	require.NoError(t, err)

	assert.Equal(t, []string{"BTC", "ETH"}, hub.Subscriptions(1))
	assert.Equal(t, []uint{1}, hub.Watchers("btc"))

	_, err = hub.Unsubscribe(1, "btc")
	require.NoError(t, err)
	_, err = hub.Unsubscribe(1, "btc")
	require.NoError(t, err)
	assert.Equal(t, []string{"ETH"}, hub.Subscriptions(1))
	assert.Equal(t, 1, hub.Stats().WatchedSymbols)
}

func TestHubBroadcastReachesEveryWatcherConnection(t *testing.T) {
	hub := NewHub(zaptest.NewLogger(t))
	a1, a2, b := newFakeConn("a1"), newFakeConn("a2"), newFakeConn("b")
	require.NoError(t, hub.Connect(a1, 1))
	require.NoError(t, hub.Connect(a2, 1))
	require.NoError(t, hub.Connect(b, 2))

	_, err := hub.Subscribe(1, "ETH")
	require.NoError(t, err)

	delivered := hub.BroadcastPriceUpdate("eth", decimal.RequireFromString("3012.5"), models.AssetClassCrypto)
	assert.Equal(t, 2, delivered)

	for _, conn := range []*fakeConn{a1, a2} {
		updates := conn.received(EventPriceUpdate)
		require.Len(t, updates, 1)
		payload, ok := updates[0].Data.(PriceUpdate)
		require.True(t, ok)
		assert.Equal(t, "ETH", payload.Symbol)
		assert.Equal(t, models.AssetClassCrypto, payload.AssetType)
		assert.True(t, payload.Price.Equal(decimal.RequireFromString("3012.5")))
	}
	assert.Empty(t, b.received(EventPriceUpdate))
}

func TestHubFailedSendRemovesOnlyThatConnection(t *testing.T) {
	hub := NewHub(zaptest.NewLogger(t))
	healthy, broken := newFakeConn("healthy"), newFakeConn("broken")
	require.NoError(t, hub.Connect(healthy, 1))
	require.NoError(t, hub.Connect(broken, 1))
	_, err := hub.Subscribe(1, "ETH")
	require.NoError(t, err)

	broken.setFail(true)
	assert.Equal(t, 1, hub.BroadcastPriceUpdate("ETH", decimal.NewFromInt(3000), models.AssetClassCrypto))

	assert.True(t, broken.closed)
	assert.False(t, healthy.closed)
	assert.Equal(t, 1, hub.Stats().TotalConnections)
	assert.Equal(t, []uint{1}, hub.Watchers("ETH"))

	assert.Equal(t, 1, hub.BroadcastPriceUpdate("ETH", decimal.NewFromInt(3001), models.AssetClassCrypto))
	assert.Len(t, healthy.received(EventPriceUpdate), 2)
}

func TestHubLastDisconnectClearsWatchers(t *testing.T) {
	hub := NewHub(zaptest.NewLogger(t))
	first, second := newFakeConn("first"), newFakeConn("second")
	require.NoError(t, hub.Connect(first, 9))
	require.NoError(t, hub.Connect(second, 9))
	for _, symbol := range []string{"BTC", "AAPL"} {
		_, err := hub.Subscribe(9, symbol)
		require.NoError(t, err)
	}

	hub.Disconnect(first)
	assert.Equal(t, []string{"AAPL", "BTC"}, hub.Subscriptions(9))

	hub.Disconnect(second)
	assert.Empty(t, hub.Subscriptions(9))
	assert.Empty(t, hub.Watchers("BTC"))
	assert.Equal(t, Stats{Symbols: []string{}}, hub.Stats())

	// unknown connection is a no-op
	hub.Disconnect(newFakeConn("ghost"))
}

func TestHubReconnectUnderOtherUserMovesConnection(t *testing.T) {
	hub := NewHub(zaptest.NewLogger(t))
	conn := newFakeConn("shared")
	require.NoError(t, hub.Connect(conn, 1))
	_, err := hub.Subscribe(1, "btc")
	require.NoError(t, err)

	require.NoError(t, hub.Connect(conn, 2))
	assert.Empty(t, hub.Watchers("BTC"))
	assert.Empty(t, hub.Subscriptions(1))
	assert.Equal(t, 1, hub.Stats().ActiveUsers)
	assert.Equal(t, 1, hub.Stats().TotalConnections)

	hub.Disconnect(conn)
	assert.Equal(t, Stats{Symbols: []string{}}, hub.Stats())
}

func TestHubSendAlertTriggered(t *testing.T) {
	hub := NewHub(zaptest.NewLogger(t))
	conn, other := newFakeConn("c1"), newFakeConn("c2")
	require.NoError(t, hub.Connect(conn, 3))
	require.NoError(t, hub.Connect(other, 4))

	details := AlertTriggered{
		AlertID:      11,
		Symbol:       "BTC",
		CurrentPrice: decimal.NewFromInt(51000),
		TargetPrice:  decimal.NewFromInt(50000),
		AlertType:    models.AlertKindAbove,
		Message:      "BTC reached $51,000.00, above your target of $50,000.00",
	}
	assert.Equal(t, 1, hub.SendAlertTriggered(3, details))
	assert.Equal(t, 0, hub.SendAlertTriggered(99, details))

	events := conn.received(EventAlertTriggered)
	require.Len(t, events, 1)
	assert.Equal(t, details, events[0].Data)
	assert.Empty(t, other.received(EventAlertTriggered))
}

func TestHubHandleMessage(t *testing.T) {
	hub := NewHub(zaptest.NewLogger(t))
	conn := newFakeConn("c1")
	require.NoError(t, hub.Connect(conn, 5))

	hub.HandleMessage(conn, 5, []byte(`{"type":"subscribe","symbol":"btc"}`))
	assert.Equal(t, EventSubscribed, conn.last().Type)
	assert.Equal(t, "BTC", conn.last().Symbol)

	hub.HandleMessage(conn, 5, []byte(`{"type":"get_subscriptions"}`))
	assert.Equal(t, EventSubscriptions, conn.last().Type)
	assert.Equal(t, []string{"BTC"}, conn.last().Data)

	hub.HandleMessage(conn, 5, []byte(`{"type":"ping","timestamp":1700000000}`))
	assert.Equal(t, EventPong, conn.last().Type)
	assert.Equal(t, float64(1700000000), conn.last().Timestamp)

	hub.HandleMessage(conn, 5, []byte(`{"type":"unsubscribe","symbol":"BTC"}`))
	assert.Equal(t, EventUnsubscribed, conn.last().Type)
	assert.Empty(t, hub.Subscriptions(5))

	hub.HandleMessage(conn, 5, []byte(`{"type":"subscribe"}`))
	assert.Equal(t, EventError, conn.last().Type)
	assert.Equal(t, "Symbol is required", conn.last().Message)

	hub.HandleMessage(conn, 5, []byte(`{"type":"dance"}`))
	assert.Equal(t, EventError, conn.last().Type)
	assert.Equal(t, "Unknown message type: dance", conn.last().Message)

	hub.HandleMessage(conn, 5, []byte(`not json`))
	assert.Equal(t, EventError, conn.last().Type)

	assert.False(t, conn.closed)
	assert.Equal(t, 1, hub.Stats().TotalConnections)
}

func TestHubCloseAll(t *testing.T) {
	hub := NewHub(zaptest.NewLogger(t))
	conns := make([]*fakeConn, 0, 3)
	for i := 0; i < 3; i++ {
		conn := newFakeConn(fmt.Sprintf("c%d", i))
		conns = append(conns, conn)
		require.NoError(t, hub.Connect(conn, uint(i%2)+1))
	}
	_, err := hub.Subscribe(1, "BTC")
	require.NoError(t, err)

	assert.Equal(t, 3, hub.CloseAll(1001, "server shutting down"))
	for _, conn := range conns {
		assert.True(t, conn.closed)
		assert.Equal(t, 1001, conn.closeCode)
	}
	assert.Equal(t, Stats{Symbols: []string{}}, hub.Stats())
}

func TestHubConcurrentUse(t *testing.T) {
	hub := NewHub(zaptest.NewLogger(t))
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			conn := newFakeConn(fmt.Sprintf("c%d", i))
			userID := uint(i%5) + 1
			_ = hub.Connect(conn, userID)
			_, _ = hub.Subscribe(userID, "BTC")
			hub.BroadcastPriceUpdate("BTC", decimal.NewFromInt(int64(i)), models.AssetClassCrypto)
			if i%2 == 0 {
				hub.Disconnect(conn)
			}
		}(i)
	}
	wg.Wait()

	stats := hub.Stats()
	assert.Equal(t, 10, stats.TotalConnections)
	for _, userID := range hub.Watchers("BTC") {
		assert.NotZero(t, hub.SendToUser(userID, Event{Type: EventPong}))
	}
}
