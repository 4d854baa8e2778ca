package alerts

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"price_alert_backend/models"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func activeAlert(kind models.AlertKind) *models.Alert {
	return &models.Alert{
		ID:         1,
		Symbol:     "BTC",
		AssetClass: models.AssetClassCrypto,
		Kind:       kind,
		Status:     models.AlertStatusActive,
	}
}

func TestEvaluateAbove(t *testing.T) {
	alert := activeAlert(models.AlertKindAbove)
	alert.TargetPrice = d("50000")

	cases := map[string]bool{"49999.99": false, "50000": true, "50000.01": true}
	for price, want := range cases {
		got, err := Evaluate(alert, d(price))
		require.NoError(t, err)
		assert.Equal(t, want, got, "price %s", price)
	}
}

func TestEvaluateBelow(t *testing.T) {
	alert := activeAlert(models.AlertKindBelow)
	alert.TargetPrice = d("3000")

	cases := map[string]bool{"3000.01": false, "3000": true, "2999": true}
	for price, want := range cases {
		got, err := Evaluate(alert, d(price))
		require.NoError(t, err)
		assert.Equal(t, want, got, "price %s", price)
	}
}

func TestEvaluatePercentChangeBothDirections(t *testing.T) {
	alert := activeAlert(models.AlertKindPercentChange)
	alert.BaselinePrice = decimal.NewNullDecimal(d("100"))
	alert.PercentThreshold = decimal.NewNullDecimal(d("5"))

	cases := map[string]bool{"104": false, "105": true, "95": true, "96": false, "130": true}
	for price, want := range cases {
		got, err := Evaluate(alert, d(price))
		require.NoError(t, err)
		assert.Equal(t, want, got, "price %s", price)
	}
}

func TestEvaluatePercentChangeWithoutBaselineNeverTriggers(t *testing.T) {
	alert := activeAlert(models.AlertKindPercentChange)
	alert.PercentThreshold = decimal.NewNullDecimal(d("1"))

	for _, price := range []string{"0.01", "100", "1000000"} {
		got, err := Evaluate(alert, d(price))
		require.NoError(t, err)
		assert.False(t, got)
	}

	alert.BaselinePrice = decimal.NewNullDecimal(decimal.Zero)
	got, err := Evaluate(alert, d("100"))
	require.NoError(t, err)
	assert.False(t, got)
}

func TestEvaluatePercentChangeWithoutThresholdNeverTriggers(t *testing.T) {
	alert := activeAlert(models.AlertKindPercentChange)
	alert.BaselinePrice = decimal.NewNullDecimal(d("100"))

	got, err := Evaluate(alert, d("500"))
	require.NoError(t, err)
	assert.False(t, got)
}

func TestEvaluateRejectsInactiveAlert(t *testing.T) {
	for _, status := range []models.AlertStatus{models.AlertStatusTriggered, models.AlertStatusPaused} {
		alert := activeAlert(models.AlertKindAbove)
		alert.TargetPrice = d("1")
		alert.Status = status

		got, err := Evaluate(alert, d("100"))
		assert.ErrorIs(t, err, ErrAlertNotActive)
		assert.False(t, got)
	}
}

func TestEvaluateUnknownKind(t *testing.T) {
	alert := activeAlert("sideways")

	got, err := Evaluate(alert, d("100"))
	assert.ErrorIs(t, err, ErrUnknownAlertKind)
	assert.False(t, got)
}

func TestTriggerMessage(t *testing.T) {
	above := activeAlert(models.AlertKindAbove)
	above.TargetPrice = d("40000")
	assert.Equal(t, "BTC reached $42,350.75, above your target of $40,000.00",
		TriggerMessage(above, d("42350.75")))

	below := activeAlert(models.AlertKindBelow)
	below.Symbol = "AAPL"
	below.TargetPrice = d("180")
	assert.Equal(t, "AAPL dropped to $179.50, below your target of $180.00",
		TriggerMessage(below, d("179.5")))

	pct := activeAlert(models.AlertKindPercentChange)
	pct.Symbol = "ETH"
	pct.BaselinePrice = decimal.NewNullDecimal(d("2000"))
	pct.PercentThreshold = decimal.NewNullDecimal(d("5"))
	assert.Equal(t, "ETH changed 10.00% up from $2,000.00 to $2,200.00",
		TriggerMessage(pct, d("2200")))
	assert.Equal(t, "ETH changed 7.50% down from $2,000.00 to $1,850.00",
		TriggerMessage(pct, d("1850")))

	pct.BaselinePrice = decimal.NullDecimal{}
	assert.Equal(t, "Alert triggered for ETH at $1,850.00", TriggerMessage(pct, d("1850")))
}
