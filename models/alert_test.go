package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanonicalSymbol(t *testing.T) {
	assert.Equal(t, "ETH", CanonicalSymbol("eth"))
	assert.Equal(t, "BTC", CanonicalSymbol("  btc "))
	assert.Equal(t, "", CanonicalSymbol("   "))
}

func TestParseAssetClass(t *testing.T) {
	tests := []struct {
		in    string
		want  AssetClass
		valid bool
	}{
		{"crypto", AssetClassCrypto, true},
		{"STOCK", AssetClassStock, true},
		{"equity", AssetClassStock, true},
		{"forex", AssetClass("forex"), false},
	}

	for _, tt := range tests {
		got, ok := ParseAssetClass(tt.in)
		assert.Equal(t, tt.valid, ok, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestAlertStatusHelpers(t *testing.T) {
	alert := &Alert{Status: AlertStatusActive}
	assert.True(t, alert.IsActive())
	assert.False(t, alert.IsTriggered())

	alert.Status = AlertStatusTriggered
	assert.False(t, alert.IsActive())
	assert.True(t, alert.IsTriggered())
}

func TestUserDisplayName(t *testing.T) {
	assert.Equal(t, "Ada", User{FullName: "Ada", Email: "ada@example.com"}.DisplayName())
	assert.Equal(t, "ada@example.com", User{Email: "ada@example.com"}.DisplayName())
}
