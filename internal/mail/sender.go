// Package mail sends transactional email over SMTP.
package mail

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fieldcrm/crm-api/internal/config"
	gomail "github.com/wneessen/go-mail"
	"go.uber.org/zap"
)

// ErrConfigurationMissing is returned when SMTP host or sender address is not configured
var ErrConfigurationMissing = errors.New("mail configuration missing")

// Message is a plain text email
type Message struct {
	To       []string
	Subject  string
	TextBody string
}

// Sender delivers messages through the configured SMTP server
type Sender struct {
	cfg    *config.MailConfig
	logger *zap.Logger
}

// NewSender creates a new SMTP sender
func NewSender(cfg *config.MailConfig, logger *zap.Logger) *Sender {
	return &Sender{cfg: cfg, logger: logger}
}

// Enabled reports whether host and sender address are configured
func (s *Sender) Enabled() bool {
	return s.cfg != nil && s.cfg.Host != "" && s.cfg.From != ""
}

// AppURL returns the client URL linked from emails
func (s *Sender) AppURL() string {
	if s.cfg == nil {
		return ""
	}
	return s.cfg.AppURL
}

// Send delivers msg
func (s *Sender) Send(ctx context.Context, msg *Message) error {
	if !s.Enabled() {
		return ErrConfigurationMissing
	}

	m, err := s.buildMessage(msg)
	if err != nil {
		return err
	}

	opts := []gomail.Option{
		gomail.WithPort(s.cfg.Port),
		gomail.WithTimeout(15 * time.Second),
		gomail.WithTLSPortPolicy(gomail.TLSOpportunistic),
	}
	if s.cfg.Username != "" {
		opts = append(opts,
			gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
			gomail.WithUsername(s.cfg.Username),
			gomail.WithPassword(s.cfg.Password),
		)
	}

	client, err := gomail.NewClient(s.cfg.Host, opts...)
	if err != nil {
		return fmt.Errorf("create smtp client: %w", err)
	}
	if err := client.DialAndSendWithContext(ctx, m); err != nil {
		return fmt.Errorf("send mail: %w", err)
	}

	s.logger.Info("mail sent",
		zap.Strings("to", msg.To),
		zap.String("subject", msg.Subject))
	return nil
}

// SendTemplate renders a template and delivers it to the recipients
func (s *Sender) SendTemplate(ctx context.Context, name Template, data any, to ...string) error {
	if !s.Enabled() {
		return ErrConfigurationMissing
	}
	subject, body, err := Render(name, data)
	if err != nil {
		return err
	}
	return s.Send(ctx, &Message{To: to, Subject: subject, TextBody: body})
}

func (s *Sender) buildMessage(msg *Message) (*gomail.Msg, error) {
	if len(msg.To) == 0 {
		return nil, errors.New("mail has no recipients")
	}
	m := gomail.NewMsg()
	if err := m.From(s.cfg.From); err != nil {
		return nil, fmt.Errorf("invalid sender address: %w", err)
	}
	if err := m.To(msg.To...); err != nil {
		return nil, fmt.Errorf("invalid recipient address: %w", err)
	}
	m.Subject(msg.Subject)
	m.SetBodyString(gomail.TypeTextPlain, msg.TextBody)
	return m, nil
}
