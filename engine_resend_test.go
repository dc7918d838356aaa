package goVerify

import (
	"context"
	"errors"
	"testing"
	"time"
)

func steppedBackoff(cfg *Config) {
	cfg.Backoff.Schedule = []time.Duration{30 * time.Second, 60 * time.Second, 120 * time.Second}
	cfg.Backoff.MaxResends = 2
}

func TestResendCooldownThenNewSecret(t *testing.T) {
	h := newHarness(t, steppedBackoff)
	ctx := context.Background()

	issued, oldCode := h.issuePhone(t)
	if want := h.clock.Now().Add(30 * time.Second); !issued.NextAllowedResendAt.Equal(want) {
		t.Fatalf("expected next resend at %s, got %s", want, issued.NextAllowedResendAt)
	}

	_, err := h.engine.Resend(ctx, testPhone, PurposePhoneVerification)
	rej := asRejection(t, err, ErrCooldownActive)
	if rej.RetryAfterSeconds() != 30 {
		t.Fatalf("expected 30s cooldown, got %d", rej.RetryAfterSeconds())
	}

	h.clock.Advance(30 * time.Second)
	res, err := h.engine.Resend(ctx, testPhone, PurposePhoneVerification)
	if err != nil {
		t.Fatalf("Resend at the allowed time failed: %v", err)
	}
	if res.VerificationID == issued.VerificationID {
		t.Fatal("resend must issue a new verification id")
	}
	if res.ResendsRemaining != 1 {
		t.Fatalf("expected 1 resend remaining, got %d", res.ResendsRemaining)
	}
	if want := h.clock.Now().Add(60 * time.Second); !res.NextAllowedResendAt.Equal(want) {
		t.Fatalf("expected next resend at %s, got %s", want, res.NextAllowedResendAt)
	}
	newCode := h.outbox.last(t).Secret

	if oldCode != newCode {
		if out := h.verifyPhone(t, oldCode); out.Verified() {
			t.Fatal("previous code must stop validating after resend")
		}
	}
	if out := h.verifyPhone(t, newCode); !out.Verified() {
		t.Fatalf("expected resent code to verify, got %s", out.Outcome)
	}
}

func TestResendCooldownRoundsUp(t *testing.T) {
	h := newHarness(t, steppedBackoff)
	h.issuePhone(t)

	h.clock.Advance(29*time.Second + 500*time.Millisecond)
	_, err := h.engine.Resend(context.Background(), testPhone, PurposePhoneVerification)
	rej := asRejection(t, err, ErrCooldownActive)
	if rej.RetryAfterSeconds() != 1 {
		t.Fatalf("expected a half second to round up to 1, got %d", rej.RetryAfterSeconds())
	}
}

func TestResendResetsAttemptsAndKeepsChannel(t *testing.T) {
	h := newHarness(t, steppedBackoff)
	_, code := h.issuePhone(t)
	h.verifyPhone(t, wrongCode(code))
	h.verifyPhone(t, wrongCode(code))

	h.clock.Advance(30 * time.Second)
	if _, err := h.engine.Resend(context.Background(), testPhone, PurposePhoneVerification); err != nil {
		t.Fatalf("Resend failed: %v", err)
	}

	rec, err := h.store.GetActive(context.Background(), testPhoneCanonical, string(PurposePhoneVerification))
	if err != nil {
		t.Fatalf("GetActive failed: %v", err)
	}
	if rec.AttemptCount != 0 || rec.ResendCount != 1 {
		t.Fatalf("expected attempts reset and one resend, got %s", rec)
	}
	if rec.Channel != string(ChannelSMS) {
		t.Fatalf("expected channel preserved, got %s", rec.Channel)
	}
}

func TestResendExhaustedOffersAlternateChannel(t *testing.T) {
	h := newHarness(t, steppedBackoff)
	ctx := context.Background()
	h.issuePhone(t)

	for _, wait := range []time.Duration{30 * time.Second, 60 * time.Second} {
		h.clock.Advance(wait)
		if _, err := h.engine.Resend(ctx, testPhone, PurposePhoneVerification); err != nil {
			t.Fatalf("Resend failed: %v", err)
		}
	}

	h.clock.Advance(5 * time.Minute)
	_, err := h.engine.Resend(ctx, testPhone, PurposePhoneVerification)
	rej := asRejection(t, err, ErrResendExhausted)
	if !rej.Advice.OfferAlternateChannel || !rej.Advice.OfferSupportContact {
		t.Fatalf("expected alternate channel advice, got %+v", rej.Advice)
	}

	status, err := h.engine.Status(ctx, testPhone, PurposePhoneVerification)
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if status.ResendsRemaining != 0 || !status.NextAllowedResendAt.IsZero() {
		t.Fatalf("expected no resend left, got %+v", status)
	}
	if !status.Advice.OfferAlternateChannel {
		t.Fatal("status must carry the advice once resends are exhausted")
	}

	if got := h.engine.MetricsSnapshot().Counters[MetricResendExhausted]; got != 1 {
		t.Fatalf("expected one exhausted rejection, got %d", got)
	}
}

func TestResendWithoutIssueNotFound(t *testing.T) {
	h := newHarness(t, nil)

	_, err := h.engine.Resend(context.Background(), testPhone, PurposePhoneVerification)
	asRejection(t, err, ErrNotFound)
}

func TestResendAfterVerifiedRejected(t *testing.T) {
	h := newHarness(t, nil)
	_, code := h.issuePhone(t)
	h.verifyPhone(t, code)

	_, err := h.engine.Resend(context.Background(), testPhone, PurposePhoneVerification)
	asRejection(t, err, ErrAlreadyVerified)
}

func TestResendWhileLockedRejected(t *testing.T) {
	h := newHarness(t, nil)
	_, code := h.issuePhone(t)
	for i := 0; i < 3; i++ {
		h.verifyPhone(t, wrongCode(code))
	}

	h.clock.Advance(time.Minute)
	_, err := h.engine.Resend(context.Background(), testPhone, PurposePhoneVerification)
	rej := asRejection(t, err, ErrLockedOut)
	if rej.RetryAfter != 14*time.Minute {
		t.Fatalf("expected the remaining lock as retry hint, got %s", rej.RetryAfter)
	}
}

func TestResendExpiredRecordAllowed(t *testing.T) {
	h := newHarness(t, nil)
	h.issuePhone(t)
	h.clock.Advance(11 * time.Minute)

	res, err := h.engine.Resend(context.Background(), testPhone, PurposePhoneVerification)
	if err != nil {
		t.Fatalf("Resend of an expired record failed: %v", err)
	}
	if !res.ExpiresAt.After(h.clock.Now()) {
		t.Fatalf("expected a fresh expiry, got %s", res.ExpiresAt)
	}
	if out := h.verifyPhone(t, h.outbox.last(t).Secret); !out.Verified() {
		t.Fatalf("expected the resent code to verify, got %s", out.Outcome)
	}
}

func TestResendDirectChannelReturnsToken(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	first, err := h.engine.Issue(ctx, "session-7", PurposeCSRFToken, ChannelDirect)
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	res, err := h.engine.Resend(ctx, "session-7", PurposeCSRFToken)
	if err != nil {
		t.Fatalf("Resend failed: %v", err)
	}
	if res.Token == "" || res.Token == first.Token {
		t.Fatal("expected a fresh token on resend")
	}
}

func TestResendRejectionIsAudited(t *testing.T) {
	h := newHarness(t, steppedBackoff)
	h.issuePhone(t)

	_, err := h.engine.Resend(context.Background(), testPhone, PurposePhoneVerification)
	if !errors.Is(err, ErrCooldownActive) {
		t.Fatalf("expected cooldown, got %v", err)
	}

	ev := h.nextEvent(t, auditEventResend)
	if ev.Success || ev.Error != string(auditErrCooldownActive) {
		t.Fatalf("expected cooldown audit event, got %+v", ev)
	}
	if ev.Metadata["retry_after_seconds"] != "30" {
		t.Fatalf("expected retry hint in metadata, got %v", ev.Metadata)
	}
}
