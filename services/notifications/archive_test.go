package notifications

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"

	"price_alert_backend/models"
)

func TestMongoArchiveRecordTrigger(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	alert := &models.Alert{
		ID:          4,
		UserID:      2,
		Symbol:      "AAPL",
		AssetClass:  models.AssetClassStock,
		Kind:        models.AlertKindBelow,
		TargetPrice: decimal.NewFromInt(180),
	}
	record := NewTriggerRecord(alert, decimal.RequireFromString("179.5"), "AAPL dropped", time.Now())

	mt.Run("success", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateSuccessResponse())
		archive := NewMongoArchive(mt.Coll)

		assert.NoError(mt, archive.RecordTrigger(context.Background(), record))
		assert.NoError(mt, archive.Close(context.Background()))
	})

	mt.Run("write error", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateWriteErrorsResponse(mtest.WriteError{
			Index:   0,
			Code:    11000,
			Message: "duplicate key error",
		}))
		archive := NewMongoArchive(mt.Coll)

		assert.Error(mt, archive.RecordTrigger(context.Background(), record))
	})
}

func TestNewTriggerRecord(t *testing.T) {
	at := time.Date(2025, 5, 6, 7, 8, 9, 0, time.FixedZone("X", 3600))
	alert := &models.Alert{ID: 1, UserID: 2, Symbol: "ETH", Kind: models.AlertKindPercentChange}

	record := NewTriggerRecord(alert, decimal.RequireFromString("2200.25"), "moved", at)
	assert.Equal(t, "2200.25", record.Price.String())
	assert.Equal(t, "0", record.TargetPrice.String())
	assert.Equal(t, time.UTC, record.TriggeredAt.Location())
	assert.True(t, record.TriggeredAt.Equal(at))
}
