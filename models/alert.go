package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// AssetClass identifies which family of price providers serves a symbol
type AssetClass string

// AlertKind identifies the trigger condition of an alert
type AlertKind string

// AlertStatus is the lifecycle state of an alert
type AlertStatus string

// Asset classes
const (
	AssetClassStock  AssetClass = "stock"
	AssetClassCrypto AssetClass = "crypto"
)

// Alert kinds
const (
	AlertKindAbove         AlertKind = "above"
	AlertKindBelow         AlertKind = "below"
	AlertKindPercentChange AlertKind = "percent_change"
)

// Alert statuses. Soft-deleted alerts are expressed through DeletedAt, not a status.
const (
	AlertStatusActive    AlertStatus = "active"
	AlertStatusTriggered AlertStatus = "triggered"
	AlertStatusPaused    AlertStatus = "paused"
)

// Alert represents a user's standing instruction to be notified when a symbol's
// price meets a condition.
type Alert struct {
	ID               uint                `gorm:"primaryKey" json:"id"`
	UserID           uint                `gorm:"index;not null" json:"user_id"`
	User             User                `gorm:"foreignKey:UserID" json:"user,omitempty"`
	Symbol           string              `gorm:"size:20;index;not null" json:"symbol"`
	AssetClass       AssetClass          `gorm:"size:10;index;not null" json:"asset_class"`
	Kind             AlertKind           `gorm:"size:20;not null" json:"kind"`
	TargetPrice      decimal.Decimal     `gorm:"type:decimal(20,8)" json:"target_price"`
	PercentThreshold decimal.NullDecimal `gorm:"type:decimal(10,4)" json:"percent_threshold"`
	BaselinePrice    decimal.NullDecimal `gorm:"type:decimal(20,8)" json:"baseline_price"`
	Status           AlertStatus         `gorm:"size:16;index;not null;default:active" json:"status"`
	NotifyPush       bool                `gorm:"not null" json:"notify_push"`
	NotifyEmail      bool                `gorm:"not null" json:"notify_email"`
	NotifySMS        bool                `gorm:"not null" json:"notify_sms"`
	TriggeredPrice   decimal.NullDecimal `gorm:"type:decimal(20,8)" json:"triggered_price"`
	TriggeredAt      *time.Time          `json:"triggered_at"`
	CreatedAt        time.Time           `json:"created_at"`
	UpdatedAt        time.Time           `json:"updated_at"`
	DeletedAt        gorm.DeletedAt      `gorm:"index" json:"-"`
}

// BeforeSave keeps the stored symbol canonical
func (a *Alert) BeforeSave(tx *gorm.DB) error {
	a.Symbol = CanonicalSymbol(a.Symbol)
	return nil
}

// IsActive checks if the alert is eligible for evaluation
func (a *Alert) IsActive() bool {
	return a.Status == AlertStatusActive
}

// IsTriggered checks if the alert has already fired
func (a *Alert) IsTriggered() bool {
	return a.Status == AlertStatusTriggered
}

// CanonicalSymbol normalizes a user supplied symbol ("eth " -> "ETH")
func CanonicalSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// IsValidAssetClass checks if the asset class is supported
func IsValidAssetClass(class AssetClass) bool {
	return class == AssetClassStock || class == AssetClassCrypto
}

// ParseAssetClass converts a query/config value into an AssetClass
func ParseAssetClass(value string) (AssetClass, bool) {
	class := AssetClass(strings.ToLower(strings.TrimSpace(value)))
	// "equity" is accepted as an alias used by some clients
	if class == "equity" {
		class = AssetClassStock
	}
	return class, IsValidAssetClass(class)
}

// MigrateAlertModels runs database migrations for alert-related models
func MigrateAlertModels(db *gorm.DB) error {
	return db.AutoMigrate(&Alert{})
}
