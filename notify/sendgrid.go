package notify

import (
	"context"
	"fmt"
	"html"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

type mailSender interface {
	Send(email *mail.SGMailV3) (*rest.Response, error)
}

// SendGridConfig configures the SendGrid email notifier.
type SendGridConfig struct {
	APIKey      string
	FromName    string
	FromAddress string
	AppName     string
	// SandboxMode validates requests without delivering mail.
	SandboxMode bool
}

// SendGridEmail sends codes through the SendGrid v3 mail API.
type SendGridEmail struct {
	client mailSender
	cfg    SendGridConfig
}

func NewSendGridEmail(cfg SendGridConfig) *SendGridEmail {
	return &SendGridEmail{client: sendgrid.NewSendClient(cfg.APIKey), cfg: cfg}
}

const verificationEmailHTML = `<html><body>
<h3>%s</h3>
<p>Use the following code to continue:</p>
<p style="font-size:20px;font-weight:bold;letter-spacing:2px">%s</p>
</body></html>`

func (s *SendGridEmail) Send(ctx context.Context, msg Message) error {
	subject, text := Render(msg, s.cfg.AppName)
	from := mail.NewEmail(s.cfg.FromName, s.cfg.FromAddress)
	to := mail.NewEmail("", msg.Destination)
	htmlBody := fmt.Sprintf(verificationEmailHTML, html.EscapeString(subject), html.EscapeString(msg.Secret))
	message := mail.NewSingleEmail(from, subject, to, text, htmlBody)

	if s.cfg.SandboxMode {
		ms := mail.NewMailSettings()
		ms.SetSandboxMode(mail.NewSetting(true))
		message.MailSettings = ms
	}

	return runWithContext(ctx, func() error {
		resp, err := s.client.Send(message)
		if err != nil {
			return fmt.Errorf("%w: sendgrid: %v", ErrDeliveryFailed, err)
		}
		if resp != nil && resp.StatusCode >= 400 {
			return fmt.Errorf("%w: sendgrid status %d", ErrDeliveryFailed, resp.StatusCode)
		}
		return nil
	})
}
