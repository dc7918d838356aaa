package notify

import (
	"context"
	"fmt"

	"gopkg.in/gomail.v2"
)

type smtpSender interface {
	DialAndSend(m ...*gomail.Message) error
}

// SMTPConfig configures a plain SMTP relay.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	AppName  string
}

// SMTPEmail sends codes through an SMTP relay with gomail.
type SMTPEmail struct {
	dialer  smtpSender
	from    string
	appName string
}

func NewSMTPEmail(cfg SMTPConfig) *SMTPEmail {
	return &SMTPEmail{
		dialer:  gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		from:    cfg.From,
		appName: cfg.AppName,
	}
}

func (s *SMTPEmail) Send(ctx context.Context, msg Message) error {
	subject, body := Render(msg, s.appName)

	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", msg.Destination)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", body)

	return runWithContext(ctx, func() error {
		if err := s.dialer.DialAndSend(m); err != nil {
			return fmt.Errorf("%w: smtp: %v", ErrDeliveryFailed, err)
		}
		return nil
	})
}
