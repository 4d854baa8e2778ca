package alerts

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"price_alert_backend/models"
)

var (
	// ErrStoreUnavailable wraps every failure of the underlying database
	ErrStoreUnavailable = errors.New("alert store unavailable")
	// ErrTransitionConflict means the alert was no longer active when the trigger was written
	ErrTransitionConflict = errors.New("alert is no longer active")
)

// Store is the persistence the monitoring engine needs
type Store interface {
	// ListActive returns every active, non-deleted alert with its owner preloaded
	ListActive(ctx context.Context) ([]models.Alert, error)
	// MarkTriggered moves an active alert to triggered and records the trigger price and time
	MarkTriggered(ctx context.Context, id uint, price decimal.Decimal, at time.Time) error
	// Transaction runs fn against a store bound to a single database transaction
	Transaction(ctx context.Context, fn func(Store) error) error
	// PurgeTriggeredBefore soft-deletes triggered alerts that fired before cutoff
	PurgeTriggeredBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// GormStore implements Store on gorm
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) ListActive(ctx context.Context) ([]models.Alert, error) {
	var alerts []models.Alert
	err := s.db.WithContext(ctx).
		Preload("User").
		Where("status = ?", models.AlertStatusActive).
		Order("id ASC").
		Find(&alerts).Error
	if err != nil {
		return nil, fmt.Errorf("%w: list active alerts: %w", ErrStoreUnavailable, err)
	}
	return alerts, nil
}

func (s *GormStore) MarkTriggered(ctx context.Context, id uint, price decimal.Decimal, at time.Time) error {
	result := s.db.WithContext(ctx).
		Session(&gorm.Session{SkipHooks: true}).
		Model(&models.Alert{}).
		Where("id = ? AND status = ?", id, models.AlertStatusActive).
		Updates(map[string]interface{}{
			"status":          models.AlertStatusTriggered,
			"triggered_price": decimal.NewNullDecimal(price),
			"triggered_at":    at,
		})
	if result.Error != nil {
		return fmt.Errorf("%w: mark alert %d triggered: %w", ErrStoreUnavailable, id, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: alert %d", ErrTransitionConflict, id)
	}
	return nil
}

func (s *GormStore) Transaction(ctx context.Context, fn func(Store) error) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&GormStore{db: tx})
	})
	if err != nil && !errors.Is(err, ErrStoreUnavailable) {
		return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	return err
}

func (s *GormStore) PurgeTriggeredBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result := s.db.WithContext(ctx).
		Session(&gorm.Session{SkipHooks: true}).
		Where("status = ? AND triggered_at < ?", models.AlertStatusTriggered, cutoff).
		Delete(&models.Alert{})
	if result.Error != nil {
		return 0, fmt.Errorf("%w: purge triggered alerts: %w", ErrStoreUnavailable, result.Error)
	}
	return result.RowsAffected, nil
}
