package notifications

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"strings"
	"time"

	"go.uber.org/zap"
	"gopkg.in/gomail.v2"

	"price_alert_backend/services/alerts"
)

//go:embed templates/*.html
var templateFS embed.FS

var alertTemplate = template.Must(template.ParseFS(templateFS, "templates/alert_triggered.html"))

// ErrEmailNotConfigured is returned when SMTP credentials are missing
var ErrEmailNotConfigured = errors.New("email is not configured")

// EmailConfig holds SMTP settings
type EmailConfig struct {
	Host      string
	Port      int
	Username  string
	Password  string
	FromEmail string
	FromName  string
	AppURL    string
}

// Configured reports whether credentials and a sender are set
func (c EmailConfig) Configured() bool {
	return c.Username != "" && c.Password != "" && c.FromEmail != ""
}

// Dialer sends composed messages; gomail.Dialer satisfies it
type Dialer interface {
	DialAndSend(m ...*gomail.Message) error
}

// EmailService sends alert emails over SMTP
type EmailService struct {
	cfg    EmailConfig
	dialer Dialer
	logger *zap.Logger
}

func NewEmailService(cfg EmailConfig, logger *zap.Logger) *EmailService {
	if logger == nil {
		logger = zap.NewNop()
	}
	svc := &EmailService{
		cfg:    cfg,
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		logger: logger.Named("email"),
	}
	if !cfg.Configured() {
		svc.logger.Warn("email_not_configured", zap.String("message", "SMTP credentials not set"))
	}
	return svc
}

// WithDialer replaces the SMTP transport
func (s *EmailService) WithDialer(d Dialer) *EmailService {
	s.dialer = d
	return s
}

// SendAlertEmail renders and sends the alert email. It gives up when ctx ends,
// though the SMTP exchange itself cannot be interrupted.
func (s *EmailService) SendAlertEmail(ctx context.Context, email AlertEmail) error {
	if !s.cfg.Configured() {
		return ErrEmailNotConfigured
	}
	if email.To == "" {
		return fmt.Errorf("alert email for %s: missing recipient", email.Symbol)
	}

	msg, err := s.BuildMessage(email)
	if err != nil {
		return err
	}

	done := make(chan error, 1)
	go func() { done <- s.dialer.DialAndSend(msg) }()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("smtp send to %s: %w", email.To, err)
		}
		s.logger.Info("email_sent", zap.String("to", email.To), zap.String("symbol", email.Symbol))
		return nil
	case <-ctx.Done():
		return fmt.Errorf("smtp send to %s: %w", email.To, ctx.Err())
	}
}

// Subject returns the email subject line
func Subject(email AlertEmail) string {
	return fmt.Sprintf("%s Alert Triggered - %s", email.Symbol, alerts.FormatUSD(email.CurrentPrice))
}

// BuildMessage composes the multipart message with a plain text body and an
// HTML alternative
func (s *EmailService) BuildMessage(email AlertEmail) (*gomail.Message, error) {
	html, err := s.renderHTML(email)
	if err != nil {
		return nil, err
	}

	m := gomail.NewMessage()
	m.SetAddressHeader("From", s.cfg.FromEmail, s.cfg.FromName)
	m.SetHeader("To", email.To)
	m.SetHeader("Subject", Subject(email))
	m.SetBody("text/plain", s.renderText(email))
	m.AddAlternative("text/html", html)
	return m, nil
}

type templateData struct {
	UserName     string
	Symbol       string
	AssetClass   string
	Kind         string
	CurrentPrice string
	TargetPrice  string
	Message      string
	TriggeredAt  string
	AlertsURL    string
}

func (s *EmailService) data(email AlertEmail) templateData {
	data := templateData{
		UserName:     email.UserName,
		Symbol:       email.Symbol,
		AssetClass:   strings.ToUpper(string(email.AssetClass)),
		Kind:         strings.ToUpper(string(email.Kind)),
		CurrentPrice: alerts.FormatUSD(email.CurrentPrice),
		Message:      email.Message,
		TriggeredAt:  email.TriggeredAt.UTC().Format(time.RFC1123),
		AlertsURL:    strings.TrimRight(s.cfg.AppURL, "/") + "/alerts",
	}
	if !email.TargetPrice.IsZero() {
		data.TargetPrice = alerts.FormatUSD(email.TargetPrice)
	}
	return data
}

func (s *EmailService) renderHTML(email AlertEmail) (string, error) {
	var buf bytes.Buffer
	if err := alertTemplate.Execute(&buf, s.data(email)); err != nil {
		return "", fmt.Errorf("render alert email: %w", err)
	}
	return buf.String(), nil
}

func (s *EmailService) renderText(email AlertEmail) string {
	data := s.data(email)

	var b strings.Builder
	b.WriteString("Price Alert Triggered!\n\n")
	fmt.Fprintf(&b, "%s (%s)\n", data.Symbol, data.AssetClass)
	fmt.Fprintf(&b, "Current Price: %s\n", data.CurrentPrice)
	if data.TargetPrice != "" {
		fmt.Fprintf(&b, "Your Target: %s\n", data.TargetPrice)
	}
	fmt.Fprintf(&b, "Alert Type: %s\n\n", data.Kind)
	fmt.Fprintf(&b, "%s\n\n", data.Message)
	fmt.Fprintf(&b, "Triggered at: %s\n\n", data.TriggeredAt)
	fmt.Fprintf(&b, "View your alerts: %s\n", data.AlertsURL)
	return b.String()
}
