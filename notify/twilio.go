package notify

import (
	"context"
	"fmt"

	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

type twilioMessageCreator interface {
	CreateMessage(params *twilioApi.CreateMessageParams) (*twilioApi.ApiV2010Message, error)
}

// TwilioConfig holds account credentials and the sending number.
type TwilioConfig struct {
	AccountSID string
	AuthToken  string
	FromPhone  string
	AppName    string
}

// TwilioSMS sends codes as SMS through the Twilio REST API.
type TwilioSMS struct {
	api     twilioMessageCreator
	from    string
	appName string
}

func NewTwilioSMS(cfg TwilioConfig) *TwilioSMS {
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: cfg.AccountSID,
		Password: cfg.AuthToken,
	})
	return &TwilioSMS{api: client.Api, from: cfg.FromPhone, appName: cfg.AppName}
}

func (t *TwilioSMS) Send(ctx context.Context, msg Message) error {
	_, body := Render(msg, t.appName)

	params := &twilioApi.CreateMessageParams{}
	params.SetTo(msg.Destination)
	params.SetFrom(t.from)
	params.SetBody(body)

	return runWithContext(ctx, func() error {
		if _, err := t.api.CreateMessage(params); err != nil {
			return fmt.Errorf("%w: twilio: %v", ErrDeliveryFailed, err)
		}
		return nil
	})
}
