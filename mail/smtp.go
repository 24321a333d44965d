package mail

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"time"

	"gopkg.in/gomail.v2"
)

// SMTPConfig describes the relay and the message envelope.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	Subject  string
	// CodeTTL is quoted in the message body.
	CodeTTL time.Duration
}

// SMTPMailer implements contestauth.Mailer over SMTP.
type SMTPMailer struct {
	cfg    SMTPConfig
	sender gomail.Sender
	dialer *gomail.Dialer
	logger *slog.Logger
}

// SMTPOption configures an [SMTPMailer].
type SMTPOption func(*SMTPMailer)

// WithSender replaces the SMTP connection, mainly for tests.
func WithSender(s gomail.Sender) SMTPOption {
	return func(m *SMTPMailer) { m.sender = s }
}

func WithLogger(logger *slog.Logger) SMTPOption {
	return func(m *SMTPMailer) { m.logger = logger }
}

func NewSMTPMailer(cfg SMTPConfig, opts ...SMTPOption) (*SMTPMailer, error) {
	if cfg.Host == "" || cfg.From == "" {
		return nil, errors.New("mail: smtp host and from address are required")
	}
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	if cfg.Subject == "" {
		cfg.Subject = "Your verification code"
	}

	m := &SMTPMailer{
		cfg:    cfg,
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}
	return m, nil
}

// SendCode sends one message per call; failures are returned, not retried.
func (m *SMTPMailer) SendCode(ctx context.Context, destination, code string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	msg := m.message(destination, code)

	var err error
	if m.sender != nil {
		err = gomail.Send(m.sender, msg)
	} else {
		err = m.dialer.DialAndSend(msg)
	}
	if err != nil {
		return fmt.Errorf("send email: %w", err)
	}

	m.logger.Info("verification email sent", slog.String("to", destination))
	return nil
}

func (m *SMTPMailer) message(destination, code string) *gomail.Message {
	msg := gomail.NewMessage()
	msg.SetHeader("From", m.cfg.From)
	msg.SetHeader("To", destination)
	msg.SetHeader("Subject", m.cfg.Subject)

	validity := ""
	if m.cfg.CodeTTL > 0 {
		validity = fmt.Sprintf(" It expires in %d minutes.", int(m.cfg.CodeTTL.Round(time.Minute)/time.Minute))
	}
	msg.SetBody("text/plain", fmt.Sprintf("Your verification code is %s.%s", code, validity))
	msg.AddAlternative("text/html", fmt.Sprintf(`<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif;">
  <div style="max-width: 520px; margin: 0 auto; padding: 16px;">
    <p>Your verification code is:</p>
    <div style="font-size: 28px; font-weight: bold; letter-spacing: 3px;">%s</div>
    <p>%s</p>
  </div>
</body>
</html>`, html.EscapeString(code), html.EscapeString(validity)))
	return msg
}
