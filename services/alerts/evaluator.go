// Package alerts decides when an alert fires and persists the resulting transition.
package alerts

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"price_alert_backend/models"
)

var (
	// ErrAlertNotActive is returned when a non-active alert is handed to the evaluator
	ErrAlertNotActive = errors.New("alert is not active")
	// ErrUnknownAlertKind is returned for kinds the evaluator does not understand
	ErrUnknownAlertKind = errors.New("unknown alert kind")
)

var hundred = decimal.NewFromInt(100)

// Evaluate reports whether the alert's condition holds at the given price.
// Percent-change alerts compare the absolute move from the baseline, so a drop
// fires the same as a rise. Without a usable baseline they never fire.
func Evaluate(alert *models.Alert, price decimal.Decimal) (bool, error) {
	if !alert.IsActive() {
		return false, fmt.Errorf("%w: alert %d is %s", ErrAlertNotActive, alert.ID, alert.Status)
	}

	switch alert.Kind {
	case models.AlertKindAbove:
		return price.GreaterThanOrEqual(alert.TargetPrice), nil
	case models.AlertKindBelow:
		return price.LessThanOrEqual(alert.TargetPrice), nil
	case models.AlertKindPercentChange:
		change, ok := PercentChange(alert, price)
		if !ok || !alert.PercentThreshold.Valid {
			return false, nil
		}
		return change.Abs().GreaterThanOrEqual(alert.PercentThreshold.Decimal), nil
	default:
		return false, fmt.Errorf("%w: %q", ErrUnknownAlertKind, alert.Kind)
	}
}

// PercentChange returns the signed move from the baseline in percent.
// ok is false when the alert has no baseline or a zero baseline.
func PercentChange(alert *models.Alert, price decimal.Decimal) (decimal.Decimal, bool) {
	if !alert.BaselinePrice.Valid || alert.BaselinePrice.Decimal.IsZero() {
		return decimal.Zero, false
	}
	baseline := alert.BaselinePrice.Decimal
	return price.Sub(baseline).Div(baseline).Mul(hundred), true
}
