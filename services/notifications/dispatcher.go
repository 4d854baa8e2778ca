// Package notifications fans a committed alert trigger out to the user's
// enabled channels.
package notifications

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"price_alert_backend/metrics"
	"price_alert_backend/models"
	"price_alert_backend/services/realtime"
)

// Channel names used in logs and metrics
const (
	ChannelPush    = "push"
	ChannelEmail   = "email"
	ChannelSMS     = "sms"
	ChannelArchive = "archive"
)

const DefaultSendTimeout = 30 * time.Second

// PushSender delivers the in-app event to the user's live connections
type PushSender interface {
	SendAlertTriggered(userID uint, details realtime.AlertTriggered) int
}

// EmailSender delivers the alert email
type EmailSender interface {
	SendAlertEmail(ctx context.Context, email AlertEmail) error
}

// SMSSender delivers the alert text message
type SMSSender interface {
	SendAlertSMS(ctx context.Context, sms AlertSMS) error
}

// TriggerRecorder keeps a durable record of each committed trigger
type TriggerRecorder interface {
	RecordTrigger(ctx context.Context, record TriggerRecord) error
}

// AlertEmail carries everything the email template renders
type AlertEmail struct {
	To           string
	UserName     string
	Symbol       string
	AssetClass   models.AssetClass
	Kind         models.AlertKind
	CurrentPrice decimal.Decimal
	TargetPrice  decimal.Decimal
	Message      string
	TriggeredAt  time.Time
}

// AlertSMS is a short text notification
type AlertSMS struct {
	To      string
	Symbol  string
	Message string
}

// Dispatcher sends trigger notifications. Every channel is independent: a
// failing channel is logged and never affects the others.
type Dispatcher struct {
	push    PushSender
	email   EmailSender
	sms     SMSSender
	archive TriggerRecorder

	sendTimeout time.Duration
	logger      *zap.Logger
	wg          sync.WaitGroup
}

// NewDispatcher creates a dispatcher. Any sender may be nil to disable its channel.
func NewDispatcher(push PushSender, email EmailSender, sms SMSSender, archive TriggerRecorder, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		push:        push,
		email:       email,
		sms:         sms,
		archive:     archive,
		sendTimeout: DefaultSendTimeout,
		logger:      logger.Named("notifications"),
	}
}

// Notify dispatches a triggered alert. Push is delivered inline; email, SMS and
// the archive write run in the background and are drained by Wait.
func (d *Dispatcher) Notify(ctx context.Context, alert *models.Alert, price decimal.Decimal, message string) {
	triggeredAt := time.Now().UTC()
	if alert.TriggeredAt != nil {
		triggeredAt = alert.TriggeredAt.UTC()
	}
	log := d.logger.With(
		zap.Uint("alert_id", alert.ID),
		zap.Uint("user_id", alert.UserID),
		zap.String("symbol", alert.Symbol),
	)

	if alert.NotifyPush && d.push != nil {
		delivered := d.push.SendAlertTriggered(alert.UserID, realtime.AlertTriggered{
			AlertID:      alert.ID,
			Symbol:       alert.Symbol,
			CurrentPrice: price,
			TargetPrice:  alert.TargetPrice,
			AlertType:    alert.Kind,
			Message:      message,
			TriggeredAt:  triggeredAt,
		})
		status := "sent"
		if delivered == 0 {
			status = "offline"
		}
		metrics.NotificationsTotal.WithLabelValues(ChannelPush, status).Inc()
	}

	// Background sends outlive the monitoring cycle that produced them
	bg := context.WithoutCancel(ctx)

	if alert.NotifyEmail && d.email != nil {
		email := AlertEmail{
			To:           alert.User.Email,
			UserName:     alert.User.DisplayName(),
			Symbol:       alert.Symbol,
			AssetClass:   alert.AssetClass,
			Kind:         alert.Kind,
			CurrentPrice: price,
			TargetPrice:  alert.TargetPrice,
			Message:      message,
			TriggeredAt:  triggeredAt,
		}
		d.goSend(bg, ChannelEmail, log, func(ctx context.Context) error {
			return d.email.SendAlertEmail(ctx, email)
		})
	}

	if alert.NotifySMS && d.sms != nil {
		sms := AlertSMS{To: alert.User.Phone, Symbol: alert.Symbol, Message: message}
		d.goSend(bg, ChannelSMS, log, func(ctx context.Context) error {
			return d.sms.SendAlertSMS(ctx, sms)
		})
	}

	if d.archive != nil {
		record := NewTriggerRecord(alert, price, message, triggeredAt)
		d.goSend(bg, ChannelArchive, log, func(ctx context.Context) error {
			return d.archive.RecordTrigger(ctx, record)
		})
	}
}

// Wait blocks until every background send has finished
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) goSend(ctx context.Context, channel string, log *zap.Logger, send func(context.Context) error) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				metrics.NotificationsTotal.WithLabelValues(channel, "failed").Inc()
				log.Error("notification_panic", zap.String("channel", channel), zap.Any("panic", r))
			}
		}()

		sendCtx, cancel := context.WithTimeout(ctx, d.sendTimeout)
		defer cancel()

		if err := send(sendCtx); err != nil {
			metrics.NotificationsTotal.WithLabelValues(channel, "failed").Inc()
			log.Warn("notification_failed", zap.String("channel", channel), zap.Error(err))
			return
		}
		metrics.NotificationsTotal.WithLabelValues(channel, "sent").Inc()
		log.Info("notification_sent", zap.String("channel", channel))
	}()
}
