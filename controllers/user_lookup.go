package controllers

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"price_alert_backend/models"
)

// ErrUserNotFound means the token subject has no user row
var ErrUserNotFound = errors.New("user not found")

// UserLookup loads the owner of an access token
type UserLookup interface {
	FindUser(ctx context.Context, id uint) (*models.User, error)
}

// GormUserLookup reads users from the database
type GormUserLookup struct {
	db *gorm.DB
}

func NewGormUserLookup(db *gorm.DB) *GormUserLookup {
	return &GormUserLookup{db: db}
}

func (l *GormUserLookup) FindUser(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	if err := l.db.WithContext(ctx).First(&user, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}
