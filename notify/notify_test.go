package notify

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
	"gopkg.in/gomail.v2"
)

func sampleMessage(channel string) Message {
	return Message{
		Channel:        channel,
		Destination:    "+14045550100",
		Purpose:        "phone_verification",
		VerificationID: "v-1",
		Secret:         "482913",
		ExpiresAt:      time.Now().Add(10 * time.Minute),
	}
}

func TestRouterDispatchesByChannel(t *testing.T) {
	var got []string
	r := Router{
		ChannelSMS: NotifierFunc(func(_ context.Context, msg Message) error {
			got = append(got, "sms:"+msg.Destination)
			return nil
		}),
		ChannelEmail: NotifierFunc(func(_ context.Context, msg Message) error {
			got = append(got, "email:"+msg.Destination)
			return nil
		}),
	}

	if err := r.Send(context.Background(), sampleMessage(ChannelSMS)); err != nil {
		t.Fatalf("send sms: %v", err)
	}
	if len(got) != 1 || got[0] != "sms:+14045550100" {
		t.Fatalf("unexpected dispatch %v", got)
	}

	err := r.Send(context.Background(), sampleMessage("pigeon"))
	if !errors.Is(err, ErrNoRoute) {
		t.Fatalf("expected ErrNoRoute, got %v", err)
	}
}

func TestRenderIncludesSecretAndExpiry(t *testing.T) {
	subject, body := Render(sampleMessage(ChannelSMS), "Acme")
	if subject != "Acme - phone verification code" {
		t.Fatalf("unexpected subject %q", subject)
	}
	if !strings.Contains(body, "482913") || !strings.Contains(body, "10 minutes") {
		t.Fatalf("unexpected body %q", body)
	}
}

func TestWriterNotifier(t *testing.T) {
	var buf bytes.Buffer
	n := NewWriterNotifier(&buf, "Acme")
	if err := n.Send(context.Background(), sampleMessage(ChannelSMS)); err != nil {
		t.Fatalf("send: %v", err)
	}
	if !strings.HasPrefix(buf.String(), "[sms -> +14045550100]") {
		t.Fatalf("unexpected output %q", buf.String())
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := n.Send(ctx, sampleMessage(ChannelSMS)); err == nil {
		t.Fatal("expected canceled context error")
	}
}

type fakeTwilio struct {
	params *twilioApi.CreateMessageParams
	err    error
	delay  time.Duration
}

func (f *fakeTwilio) CreateMessage(params *twilioApi.CreateMessageParams) (*twilioApi.ApiV2010Message, error) {
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	f.params = params
	return &twilioApi.ApiV2010Message{}, f.err
}

func TestTwilioSMSSend(t *testing.T) {
	api := &fakeTwilio{}
	n := &TwilioSMS{api: api, from: "+15550000000", appName: "Acme"}

	if err := n.Send(context.Background(), sampleMessage(ChannelSMS)); err != nil {
		t.Fatalf("send: %v", err)
	}
	if api.params == nil || *api.params.To != "+14045550100" || *api.params.From != "+15550000000" {
		t.Fatalf("unexpected params %+v", api.params)
	}
	if !strings.Contains(*api.params.Body, "482913") {
		t.Fatalf("body missing code: %q", *api.params.Body)
	}

	api.err = errors.New("boom")
	if err := n.Send(context.Background(), sampleMessage(ChannelSMS)); !errors.Is(err, ErrDeliveryFailed) {
		t.Fatalf("expected ErrDeliveryFailed, got %v", err)
	}
}

func TestTwilioSMSRespectsTimeout(t *testing.T) {
	n := &TwilioSMS{api: &fakeTwilio{delay: 200 * time.Millisecond}}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := n.Send(ctx, sampleMessage(ChannelSMS))
	if !errors.Is(err, ErrDeliveryFailed) {
		t.Fatalf("expected ErrDeliveryFailed on timeout, got %v", err)
	}
	if time.Since(start) > 150*time.Millisecond {
		t.Fatal("send must return when the context ends")
	}
}

type fakeSendGrid struct {
	msg    *mail.SGMailV3
	status int
}

func (f *fakeSendGrid) Send(email *mail.SGMailV3) (*rest.Response, error) {
	f.msg = email
	return &rest.Response{StatusCode: f.status}, nil
}

func TestSendGridEmailSend(t *testing.T) {
	client := &fakeSendGrid{status: 202}
	n := &SendGridEmail{client: client, cfg: SendGridConfig{FromName: "Acme", FromAddress: "no-reply@acme.test", AppName: "Acme", SandboxMode: true}}

	msg := sampleMessage(ChannelEmail)
	msg.Destination = "user@example.com"
	if err := n.Send(context.Background(), msg); err != nil {
		t.Fatalf("send: %v", err)
	}
	if client.msg == nil || client.msg.From.Address != "no-reply@acme.test" {
		t.Fatalf("unexpected message %+v", client.msg)
	}
	if client.msg.MailSettings == nil || client.msg.MailSettings.SandboxMode == nil || !*client.msg.MailSettings.SandboxMode.Enable {
		t.Fatal("sandbox mode must be set")
	}

	client.status = 500
	if err := n.Send(context.Background(), msg); !errors.Is(err, ErrDeliveryFailed) {
		t.Fatalf("expected ErrDeliveryFailed on 5xx, got %v", err)
	}
}

type fakeDialer struct {
	sent []*gomail.Message
}

func (f *fakeDialer) DialAndSend(m ...*gomail.Message) error {
	f.sent = append(f.sent, m...)
	return nil
}

func TestSMTPEmailSend(t *testing.T) {
	d := &fakeDialer{}
	n := &SMTPEmail{dialer: d, from: "no-reply@acme.test", appName: "Acme"}

	msg := sampleMessage(ChannelEmail)
	msg.Destination = "user@example.com"
	if err := n.Send(context.Background(), msg); err != nil {
		t.Fatalf("send: %v", err)
	}
	if len(d.sent) != 1 {
		t.Fatalf("expected one message, got %d", len(d.sent))
	}
	if to := d.sent[0].GetHeader("To"); len(to) != 1 || to[0] != "user@example.com" {
		t.Fatalf("unexpected To header %v", to)
	}
}
