package notifications

import (
	"context"

	"go.uber.org/zap"
)

// NoopSMSSender records SMS requests in the log. No SMS gateway is wired yet.
type NoopSMSSender struct {
	logger *zap.Logger
}

func NewNoopSMSSender(logger *zap.Logger) *NoopSMSSender {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NoopSMSSender{logger: logger.Named("sms")}
}

func (s *NoopSMSSender) SendAlertSMS(_ context.Context, sms AlertSMS) error {
	s.logger.Info("sms_notification_queued", zap.String("symbol", sms.Symbol), zap.Bool("has_phone", sms.To != ""))
	return nil
}
