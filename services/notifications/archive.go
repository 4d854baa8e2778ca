package notifications

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"price_alert_backend/models"
)

// TriggerCollection stores one document per committed trigger
const TriggerCollection = "alert_triggers"

// TriggerRecord is the archived form of a trigger
type TriggerRecord struct {
	AlertID     uint                 `bson:"alert_id"`
	UserID      uint                 `bson:"user_id"`
	Symbol      string               `bson:"symbol"`
	AssetClass  models.AssetClass    `bson:"asset_class"`
	Kind        models.AlertKind     `bson:"kind"`
	Price       primitive.Decimal128 `bson:"price"`
	TargetPrice primitive.Decimal128 `bson:"target_price"`
	Message     string               `bson:"message"`
	TriggeredAt time.Time            `bson:"triggered_at"`
}

// NewTriggerRecord builds the archive document for a triggered alert
func NewTriggerRecord(alert *models.Alert, price decimal.Decimal, message string, triggeredAt time.Time) TriggerRecord {
	return TriggerRecord{
		AlertID:     alert.ID,
		UserID:      alert.UserID,
		Symbol:      alert.Symbol,
		AssetClass:  alert.AssetClass,
		Kind:        alert.Kind,
		Price:       toDecimal128(price),
		TargetPrice: toDecimal128(alert.TargetPrice),
		Message:     message,
		TriggeredAt: triggeredAt.UTC(),
	}
}

func toDecimal128(d decimal.Decimal) primitive.Decimal128 {
	value, err := primitive.ParseDecimal128(d.String())
	if err != nil {
		return primitive.NewDecimal128(0, 0)
	}
	return value
}

// MongoArchive writes trigger records to MongoDB
type MongoArchive struct {
	client     *mongo.Client
	collection *mongo.Collection
}

// NewMongoArchive wraps an existing collection
func NewMongoArchive(collection *mongo.Collection) *MongoArchive {
	return &MongoArchive{collection: collection}
}

// ConnectMongoArchive connects, pings and ensures the archive indexes
func ConnectMongoArchive(ctx context.Context, uri, database string, logger *zap.Logger) (*MongoArchive, error) {
	connectCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	clientOptions := options.Client().
		ApplyURI(uri).
		SetServerAPIOptions(options.ServerAPI(options.ServerAPIVersion1)).
		SetMaxPoolSize(10).
		SetMaxConnIdleTime(30 * time.Second).
		SetConnectTimeout(30 * time.Second).
		SetRetryWrites(true)

	client, err := mongo.Connect(connectCtx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	if err := client.Ping(connectCtx, nil); err != nil {
		_ = client.Disconnect(connectCtx)
		return nil, fmt.Errorf("mongo ping: %w", err)
	}

	archive := &MongoArchive{
		client:     client,
		collection: client.Database(database).Collection(TriggerCollection),
	}
	if err := archive.EnsureIndexes(connectCtx); err != nil {
		logger.Warn("mongo_index_creation_failed", zap.Error(err))
	}
	logger.Info("mongo_archive_connected", zap.String("database", database))
	return archive, nil
}

// EnsureIndexes creates the lookup indexes used by trigger history queries
func (a *MongoArchive) EnsureIndexes(ctx context.Context) error {
	_, err := a.collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "triggered_at", Value: -1}}},
		{Keys: bson.D{{Key: "alert_id", Value: 1}}},
	})
	return err
}

func (a *MongoArchive) RecordTrigger(ctx context.Context, record TriggerRecord) error {
	if _, err := a.collection.InsertOne(ctx, record); err != nil {
		return fmt.Errorf("archive trigger for alert %d: %w", record.AlertID, err)
	}
	return nil
}

// Close disconnects the client when the archive owns it
func (a *MongoArchive) Close(ctx context.Context) error {
	if a.client == nil {
		return nil
	}
	return a.client.Disconnect(ctx)
}
