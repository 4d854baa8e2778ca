package alerts

import (
	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"price_alert_backend/models"
)

var usd = message.NewPrinter(language.English)

// FormatUSD renders a price as "$42,350.75"
func FormatUSD(price decimal.Decimal) string {
	return usd.Sprintf("$%.2f", price.Round(2).InexactFloat64())
}

// TriggerMessage builds the human readable notification text for a fired alert
func TriggerMessage(alert *models.Alert, price decimal.Decimal) string {
	switch alert.Kind {
	case models.AlertKindAbove:
		return usd.Sprintf("%s reached %s, above your target of %s",
			alert.Symbol, FormatUSD(price), FormatUSD(alert.TargetPrice))
	case models.AlertKindBelow:
		return usd.Sprintf("%s dropped to %s, below your target of %s",
			alert.Symbol, FormatUSD(price), FormatUSD(alert.TargetPrice))
	case models.AlertKindPercentChange:
		if change, ok := PercentChange(alert, price); ok {
			direction := "up"
			if change.IsNegative() {
				direction = "down"
			}
			return usd.Sprintf("%s changed %s%% %s from %s to %s",
				alert.Symbol, change.Abs().StringFixed(2), direction,
				FormatUSD(alert.BaselinePrice.Decimal), FormatUSD(price))
		}
	}
	return usd.Sprintf("Alert triggered for %s at %s", alert.Symbol, FormatUSD(price))
}
