package goVerify

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/goVerify/audit"
	"github.com/MrEthical07/goVerify/credstore"
	"github.com/MrEthical07/goVerify/notify"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus/hooks/test"
)

const (
	testPhone          = "(555) 123-4567"
	testPhoneCanonical = "+15551234567"
	testEmail          = "Alice@Example.COM"
)

var testKey = bytes.Repeat([]byte("k"), 32)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// outbox records every delivered message.
type outbox struct {
	mu   sync.Mutex
	msgs []notify.Message
	fail error
}

func (o *outbox) Send(_ context.Context, msg notify.Message) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.fail != nil {
		return o.fail
	}
	o.msgs = append(o.msgs, msg)
	return nil
}

func (o *outbox) count() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.msgs)
}

func (o *outbox) last(t *testing.T) notify.Message {
	t.Helper()
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.msgs) == 0 {
		t.Fatal("expected a delivered message")
	}
	return o.msgs[len(o.msgs)-1]
}

type harness struct {
	engine *Engine
	clock  *fakeClock
	outbox *outbox
	store  *credstore.MemoryStore
	mr     *miniredis.Miniredis
	events *audit.ChannelSink
	logs   *test.Hook
}

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Secret.Key = testKey
	cfg.Backend.RetryDelay = time.Millisecond
	cfg.Audit.Enabled = true
	cfg.Audit.DropIfFull = false
	cfg.Audit.BufferSize = 256
	cfg.Metrics.Enabled = true
	return cfg
}

// newHarness builds an engine over a fake clock, an in-memory record store
// and miniredis-backed limiters. mutate may adjust the config first.
func newHarness(t *testing.T, mutate func(*Config)) *harness {
	t.Helper()

	cfg := testConfig()
	if mutate != nil {
		mutate(&cfg)
	}

	mr, rdb := newTestRedis(t)
	clock := newFakeClock()
	box := &outbox{}
	store := credstore.NewMemoryStoreWithClock(clock.Now)
	events := audit.NewChannelSink(256)
	logger, hook := test.NewNullLogger()

	engine, err := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithStore(store).
		WithNotifier(box).
		WithAuditSink(events).
		WithLogger(logger).
		WithClock(clock.Now).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)

	return &harness{
		engine: engine,
		clock:  clock,
		outbox: box,
		store:  store,
		mr:     mr,
		events: events,
		logs:   hook,
	}
}

// issuePhone issues a phone verification and returns the delivered code.
func (h *harness) issuePhone(t *testing.T) (IssueResult, string) {
	t.Helper()

	res, err := h.engine.Issue(context.Background(), testPhone, PurposePhoneVerification, "")
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	msg := h.outbox.last(t)
	if msg.VerificationID != res.VerificationID {
		t.Fatalf("delivered id %q, issued %q", msg.VerificationID, res.VerificationID)
	}
	return res, msg.Secret
}

func (h *harness) verifyPhone(t *testing.T, code string) VerifyResult {
	t.Helper()

	res, err := h.engine.Verify(context.Background(), testPhone, PurposePhoneVerification, code)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	return res
}

// nextEvent waits for the next audit event of eventType, skipping others.
func (h *harness) nextEvent(t *testing.T, eventType string) audit.Event {
	t.Helper()

	timeout := time.After(2 * time.Second)
	for {
		select {
		case ev := <-h.events.Events():
			if ev.EventType == eventType {
				return ev
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %s audit event", eventType)
		}
	}
}

// wrongCode returns a well-formed OTP that differs from code.
func wrongCode(code string) string {
	b := []byte(code)
	if b[0] == '9' {
		b[0] = '0'
	} else {
		b[0]++
	}
	return string(b)
}

func asRejection(t *testing.T, err error, want error) *RejectionError {
	t.Helper()

	if !errors.Is(err, want) {
		t.Fatalf("expected %v, got %v", want, err)
	}
	var rej *RejectionError
	if !errors.As(err, &rej) {
		t.Fatalf("expected *RejectionError, got %T", err)
	}
	return rej
}

func TestNilEngineNotReady(t *testing.T) {
	var e *Engine
	ctx := context.Background()

	if _, err := e.Issue(ctx, testPhone, PurposePhoneVerification, ""); !errors.Is(err, ErrEngineNotReady) {
		t.Fatalf("Issue: expected ErrEngineNotReady, got %v", err)
	}
	if _, err := e.Resend(ctx, testPhone, PurposePhoneVerification); !errors.Is(err, ErrEngineNotReady) {
		t.Fatalf("Resend: expected ErrEngineNotReady, got %v", err)
	}
	if _, err := e.Verify(ctx, testPhone, PurposePhoneVerification, "123456"); !errors.Is(err, ErrEngineNotReady) {
		t.Fatalf("Verify: expected ErrEngineNotReady, got %v", err)
	}
	if _, err := e.Status(ctx, testPhone, PurposePhoneVerification); !errors.Is(err, ErrEngineNotReady) {
		t.Fatalf("Status: expected ErrEngineNotReady, got %v", err)
	}
	e.Close()
	if e.AuditDropped() != 0 {
		t.Fatal("expected zero dropped on nil engine")
	}
}

func TestEnginePurposesListsConfigured(t *testing.T) {
	h := newHarness(t, nil)

	got := map[Purpose]bool{}
	for _, p := range h.engine.Purposes() {
		got[p] = true
	}
	for _, want := range []Purpose{PurposePhoneVerification, PurposeEmailVerification, PurposePasswordReset, PurposeCSRFToken} {
		if !got[want] {
			t.Fatalf("missing purpose %s", want)
		}
	}
}
