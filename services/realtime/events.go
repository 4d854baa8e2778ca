package realtime

import (
	"time"

	"github.com/shopspring/decimal"

	"price_alert_backend/models"
)

// Event types sent to clients
const (
	EventConnected      = "connected"
	EventPriceUpdate    = "price_update"
	EventAlertTriggered = "alert_triggered"
	EventSubscribed     = "subscribed"
	EventUnsubscribed   = "unsubscribed"
	EventSubscriptions  = "subscriptions"
	EventPong           = "pong"
	EventError          = "error"
)

// Inbound message types
const (
	MessageSubscribe        = "subscribe"
	MessageUnsubscribe      = "unsubscribe"
	MessagePing             = "ping"
	MessageGetSubscriptions = "get_subscriptions"
)

// Event is one JSON frame sent to a client
type Event struct {
	Type      string      `json:"type"`
	Symbol    string      `json:"symbol,omitempty"`
	Message   string      `json:"message,omitempty"`
	UserID    uint        `json:"user_id,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp interface{} `json:"timestamp,omitempty"`
}

// PriceUpdate is the payload of a price_update event
type PriceUpdate struct {
	Symbol    string            `json:"symbol"`
	Price     decimal.Decimal   `json:"price"`
	AssetType models.AssetClass `json:"asset_type"`
	Timestamp time.Time         `json:"timestamp"`
}

// AlertTriggered is the payload of an alert_triggered event
type AlertTriggered struct {
	AlertID      uint             `json:"alert_id"`
	Symbol       string           `json:"symbol"`
	CurrentPrice decimal.Decimal  `json:"current_price"`
	TargetPrice  decimal.Decimal  `json:"target_price"`
	AlertType    models.AlertKind `json:"alert_type"`
	Message      string           `json:"message"`
	TriggeredAt  time.Time        `json:"triggered_at"`
}

// inboundMessage is a client command
type inboundMessage struct {
	Type      string      `json:"type"`
	Symbol    string      `json:"symbol"`
	Timestamp interface{} `json:"timestamp"`
}

func errorEvent(message string) Event {
	return Event{Type: EventError, Message: message}
}
