// Package realtime tracks live client connections, their symbol subscriptions,
// and delivers price and alert events to them.
package realtime

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"price_alert_backend/metrics"
	"price_alert_backend/models"
)

const welcomeMessage = "Connected to Stock/Crypto Alert System"

var (
	// ErrNotConnected is returned when subscribing a user without a live connection
	ErrNotConnected = errors.New("user has no live connection")
	// ErrEmptySymbol is returned for a blank subscription symbol
	ErrEmptySymbol = errors.New("symbol is required")
)

// Connection is one live client transport
type Connection interface {
	ID() string
	Send(Event) error
	Close(code int, reason string) error
}

// Stats is a point-in-time view of the hub
type Stats struct {
	ActiveUsers      int      `json:"active_users"`
	TotalConnections int      `json:"total_connections"`
	WatchedSymbols   int      `json:"watched_symbols"`
	Symbols          []string `json:"symbols"`
}

// Hub owns every live connection and the symbol watcher registry.
// A user appears as a watcher only while it has at least one connection.
type Hub struct {
	mu          sync.RWMutex
	connections map[uint]map[string]Connection // user id -> connection id -> connection
	owners      map[string]uint                // connection id -> user id
	watchers    map[string]map[uint]struct{}   // symbol -> user ids

	logger *zap.Logger
	now    func() time.Time
}

func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		connections: make(map[uint]map[string]Connection),
		owners:      make(map[string]uint),
		watchers:    make(map[string]map[uint]struct{}),
		logger:      logger.Named("hub"),
		now:         time.Now,
	}
}

// Connect registers a connection for a user and sends the welcome event
// A connection id already owned by another user is moved to userID.
func (h *Hub) Connect(conn Connection, userID uint) error {
	h.mu.Lock()
	if owner, ok := h.owners[conn.ID()]; ok && owner != userID {
		h.removeLocked(conn.ID())
	}
	conns, ok := h.connections[userID]
	if !ok {
		conns = make(map[string]Connection)
		h.connections[userID] = conns
	}
	conns[conn.ID()] = conn
	h.owners[conn.ID()] = userID
	total := len(conns)
	h.mu.Unlock()

	h.logger.Info("websocket_connected",
		zap.Uint("user_id", userID),
		zap.String("connection_id", conn.ID()),
		zap.Int("user_connections", total),
	)

	welcome := Event{
		Type:      EventConnected,
		Message:   welcomeMessage,
		UserID:    userID,
		Timestamp: h.now().UTC().Format(time.RFC3339Nano),
	}
	if err := conn.Send(welcome); err != nil {
		h.drop(conn, err)
		return fmt.Errorf("send welcome: %w", err)
	}
	return nil
}

// Disconnect removes a connection. When it was the user's last one the user
// stops watching every symbol. Unknown connections are ignored.
func (h *Hub) Disconnect(conn Connection) {
	h.mu.Lock()
	userID, removed, lastConnection := h.removeLocked(conn.ID())
	h.mu.Unlock()

	if removed {
		h.logger.Info("websocket_disconnected",
			zap.Uint("user_id", userID),
			zap.String("connection_id", conn.ID()),
			zap.Bool("last_connection", lastConnection),
		)
	}
}

// removeLocked must be called with h.mu held for writing
func (h *Hub) removeLocked(connID string) (userID uint, removed, lastConnection bool) {
	userID, ok := h.owners[connID]
	if !ok {
		return 0, false, false
	}
	delete(h.owners, connID)

	conns := h.connections[userID]
	delete(conns, connID)
	if len(conns) > 0 {
		return userID, true, false
	}

	delete(h.connections, userID)
	for symbol, users := range h.watchers {
		delete(users, userID)
		if len(users) == 0 {
			delete(h.watchers, symbol)
		}
	}
	return userID, true, true
}

// Subscribe adds the user as a watcher of symbol. Idempotent.
func (h *Hub) Subscribe(userID uint, symbol string) (string, error) {
	symbol = models.CanonicalSymbol(symbol)
	if symbol == "" {
		return "", ErrEmptySymbol
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.connections[userID]) == 0 {
		return symbol, ErrNotConnected
	}
	users, ok := h.watchers[symbol]
	if !ok {
		users = make(map[uint]struct{})
		h.watchers[symbol] = users
	}
	users[userID] = struct{}{}
	return symbol, nil
}

// Unsubscribe removes the user from the watchers of symbol. Idempotent.
func (h *Hub) Unsubscribe(userID uint, symbol string) (string, error) {
	symbol = models.CanonicalSymbol(symbol)
	if symbol == "" {
		return "", ErrEmptySymbol
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if users, ok := h.watchers[symbol]; ok {
		delete(users, userID)
		if len(users) == 0 {
			delete(h.watchers, symbol)
		}
	}
	return symbol, nil
}

// Subscriptions returns the user's watched symbols, sorted
func (h *Hub) Subscriptions(userID uint) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	symbols := make([]string, 0)
	for symbol, users := range h.watchers {
		if _, ok := users[userID]; ok {
			symbols = append(symbols, symbol)
		}
	}
	sort.Strings(symbols)
	return symbols
}

// Watchers returns the user ids watching symbol
func (h *Hub) Watchers(symbol string) []uint {
	h.mu.RLock()
	defer h.mu.RUnlock()

	users := h.watchers[models.CanonicalSymbol(symbol)]
	out := make([]uint, 0, len(users))
	for userID := range users {
		out = append(out, userID)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// SendToUser delivers event to every live connection of the user and returns
// how many accepted it. A connection that fails is removed; the others still receive.
func (h *Hub) SendToUser(userID uint, event Event) int {
	h.mu.RLock()
	conns := make([]Connection, 0, len(h.connections[userID]))
	for _, conn := range h.connections[userID] {
		conns = append(conns, conn)
	}
	h.mu.RUnlock()

	return h.deliver(conns, event)
}

// BroadcastPriceUpdate sends a price_update to every connection of every watcher
func (h *Hub) BroadcastPriceUpdate(symbol string, price decimal.Decimal, class models.AssetClass) int {
	symbol = models.CanonicalSymbol(symbol)

	h.mu.RLock()
	var conns []Connection
	for userID := range h.watchers[symbol] {
		for _, conn := range h.connections[userID] {
			conns = append(conns, conn)
		}
	}
	h.mu.RUnlock()

	if len(conns) == 0 {
		return 0
	}

	event := Event{
		Type: EventPriceUpdate,
		Data: PriceUpdate{
			Symbol:    symbol,
			Price:     price,
			AssetType: class,
			Timestamp: h.now().UTC(),
		},
	}
	delivered := h.deliver(conns, event)

	h.logger.Debug("price_update_broadcast",
		zap.String("symbol", symbol),
		zap.String("price", price.String()),
		zap.Int("connections", len(conns)),
		zap.Int("delivered", delivered),
	)
	return delivered
}

// SendAlertTriggered delivers an alert_triggered event to the alert owner
func (h *Hub) SendAlertTriggered(userID uint, details AlertTriggered) int {
	delivered := h.SendToUser(userID, Event{Type: EventAlertTriggered, Data: details})
	h.logger.Info("alert_notification_sent",
		zap.Uint("user_id", userID),
		zap.Uint("alert_id", details.AlertID),
		zap.Int("delivered", delivered),
	)
	return delivered
}

// HandleMessage answers one inbound client command on the connection it came from.
// Bad input gets an error event; the connection stays open.
func (h *Hub) HandleMessage(conn Connection, userID uint, raw []byte) {
	var msg inboundMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		h.reply(conn, errorEvent("Invalid JSON message"))
		return
	}

	switch msg.Type {
	case MessageSubscribe:
		symbol, err := h.Subscribe(userID, msg.Symbol)
		if err != nil {
			h.reply(conn, errorEvent(subscribeErrorMessage(err)))
			return
		}
		h.logger.Info("user_subscribed_to_symbol", zap.Uint("user_id", userID), zap.String("symbol", symbol))
		h.reply(conn, Event{
			Type:    EventSubscribed,
			Symbol:  symbol,
			Message: fmt.Sprintf("Subscribed to %s updates", symbol),
		})

	case MessageUnsubscribe:
		symbol, err := h.Unsubscribe(userID, msg.Symbol)
		if err != nil {
			h.reply(conn, errorEvent(subscribeErrorMessage(err)))
			return
		}
		h.logger.Info("user_unsubscribed_from_symbol", zap.Uint("user_id", userID), zap.String("symbol", symbol))
		h.reply(conn, Event{
			Type:    EventUnsubscribed,
			Symbol:  symbol,
			Message: fmt.Sprintf("Unsubscribed from %s updates", symbol),
		})

	case MessageGetSubscriptions:
		h.reply(conn, Event{Type: EventSubscriptions, Data: h.Subscriptions(userID)})

	case MessagePing:
		h.reply(conn, Event{Type: EventPong, Timestamp: msg.Timestamp})

	default:
		h.reply(conn, errorEvent(fmt.Sprintf("Unknown message type: %s", msg.Type)))
	}
}

func subscribeErrorMessage(err error) string {
	switch {
	case errors.Is(err, ErrEmptySymbol):
		return "Symbol is required"
	case errors.Is(err, ErrNotConnected):
		return "Connection is not registered"
	default:
		return err.Error()
	}
}

// Stats returns connection and subscription counts
func (h *Hub) Stats() Stats {
	h.mu.RLock()
	defer h.mu.RUnlock()

	stats := Stats{
		ActiveUsers:    len(h.connections),
		WatchedSymbols: len(h.watchers),
		Symbols:        make([]string, 0, len(h.watchers)),
	}
	for _, conns := range h.connections {
		stats.TotalConnections += len(conns)
	}
	for symbol := range h.watchers {
		stats.Symbols = append(stats.Symbols, symbol)
	}
	sort.Strings(stats.Symbols)
	return stats
}

// PublishMetrics copies the current counts into the hub gauges
func (h *Hub) PublishMetrics() Stats {
	stats := h.Stats()
	metrics.HubActiveUsers.Set(float64(stats.ActiveUsers))
	metrics.HubConnections.Set(float64(stats.TotalConnections))
	metrics.HubWatchedSymbols.Set(float64(stats.WatchedSymbols))
	return stats
}

// CloseAll closes and forgets every connection
func (h *Hub) CloseAll(code int, reason string) int {
	h.mu.Lock()
	var conns []Connection
	for _, userConns := range h.connections {
		for _, conn := range userConns {
			conns = append(conns, conn)
		}
	}
	h.connections = make(map[uint]map[string]Connection)
	h.owners = make(map[string]uint)
	h.watchers = make(map[string]map[uint]struct{})
	h.mu.Unlock()

	for _, conn := range conns {
		if err := conn.Close(code, reason); err != nil {
			h.logger.Debug("close_failed", zap.String("connection_id", conn.ID()), zap.Error(err))
		}
	}
	h.logger.Info("hub_closed", zap.Int("connections", len(conns)))
	return len(conns)
}

func (h *Hub) deliver(conns []Connection, event Event) int {
	delivered := 0
	for _, conn := range conns {
		if err := conn.Send(event); err != nil {
			h.drop(conn, err)
			continue
		}
		delivered++
	}
	return delivered
}

func (h *Hub) reply(conn Connection, event Event) {
	if err := conn.Send(event); err != nil {
		h.drop(conn, err)
	}
}

// drop removes a connection whose send failed and closes it
func (h *Hub) drop(conn Connection, cause error) {
	metrics.HubDeliveryFailures.Inc()
	h.logger.Warn("send_message_failed", zap.String("connection_id", conn.ID()), zap.Error(cause))

	h.Disconnect(conn)
	if err := conn.Close(websocket.CloseInternalServerErr, "delivery failed"); err != nil {
		h.logger.Debug("close_failed", zap.String("connection_id", conn.ID()), zap.Error(err))
	}
}
