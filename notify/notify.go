package notify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
)

// Channel names understood by Router. They match the engine's channel values.
const (
	ChannelSMS   = "sms"
	ChannelEmail = "email"
)

var (
	// ErrNoRoute means no notifier is registered for the message channel.
	ErrNoRoute = errors.New("notify: no notifier for channel")
	// ErrDeliveryFailed wraps transport failures.
	ErrDeliveryFailed = errors.New("notify: delivery failed")
)

// Message is one secret handed off for delivery. Secret is plaintext and must
// not be logged by implementations.
type Message struct {
	Channel        string
	Destination    string
	Purpose        string
	VerificationID string
	Secret         string
	ExpiresAt      time.Time
}

// Notifier delivers a message once. The engine treats delivery as best
// effort: errors are logged and counted, never retried.
type Notifier interface {
	Send(ctx context.Context, msg Message) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, msg Message) error

func (f NotifierFunc) Send(ctx context.Context, msg Message) error {
	return f(ctx, msg)
}

// Router dispatches on Message.Channel.
type Router map[string]Notifier

func (r Router) Send(ctx context.Context, msg Message) error {
	n, ok := r[msg.Channel]
	if !ok || n == nil {
		return fmt.Errorf("%w %q", ErrNoRoute, msg.Channel)
	}
	return n.Send(ctx, msg)
}

// Render builds the default subject line and plain-text body for msg.
func Render(msg Message, appName string) (subject, body string) {
	if appName == "" {
		appName = "Verification"
	}
	label := strings.ReplaceAll(msg.Purpose, "_", " ")
	subject = appName + " - " + label + " code"

	minutes := int(time.Until(msg.ExpiresAt).Round(time.Minute) / time.Minute)
	if minutes < 1 {
		minutes = 1
	}
	body = fmt.Sprintf("Your %s %s code is %s. It expires in %d minutes.", appName, label, msg.Secret, minutes)
	return subject, body
}

// WriterNotifier prints messages to w. It is meant for local development
// where no real transport is configured, and it does print the secret.
type WriterNotifier struct {
	mu      sync.Mutex
	w       io.Writer
	appName string
}

func NewWriterNotifier(w io.Writer, appName string) *WriterNotifier {
	return &WriterNotifier{w: w, appName: appName}
}

func (n *WriterNotifier) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, body := Render(msg, n.appName)

	n.mu.Lock()
	defer n.mu.Unlock()
	_, err := fmt.Fprintf(n.w, "[%s -> %s] %s\n", msg.Channel, msg.Destination, body)
	return err
}

// runWithContext runs a blocking SDK call and abandons it when ctx ends. The
// SDK clients used here take no context, so the goroutine may outlive the
// call; its result is discarded.
func runWithContext(ctx context.Context, fn func() error) error {
	done := make(chan error, 1)
	go func() {
		done <- fn()
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", ErrDeliveryFailed, ctx.Err())
	}
}
