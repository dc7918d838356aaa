package goVerify

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestStatusPendingRecord(t *testing.T) {
	h := newHarness(t, steppedBackoff)
	issued, code := h.issuePhone(t)
	h.verifyPhone(t, wrongCode(code))

	status, err := h.engine.Status(context.Background(), testPhone, PurposePhoneVerification)
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if status.Status != StatusPending {
		t.Fatalf("expected pending, got %s", status.Status)
	}
	if status.VerificationID != issued.VerificationID || status.Channel != ChannelSMS {
		t.Fatalf("unexpected identity: %+v", status)
	}
	if status.AttemptsRemaining != 2 || status.ResendsRemaining != 2 {
		t.Fatalf("expected 2 attempts and 2 resends remaining, got %+v", status)
	}
	if !status.ExpiresAt.Equal(issued.ExpiresAt) || !status.NextAllowedResendAt.Equal(issued.NextAllowedResendAt) {
		t.Fatalf("status times diverge from issue result: %+v", status)
	}
	if status.Advice.Any() {
		t.Fatalf("no advice expected, got %+v", status.Advice)
	}
}

func TestStatusDoesNotConsumeAttempts(t *testing.T) {
	h := newHarness(t, nil)
	h.issuePhone(t)

	for i := 0; i < 5; i++ {
		if _, err := h.engine.Status(context.Background(), testPhone, PurposePhoneVerification); err != nil {
			t.Fatalf("Status failed: %v", err)
		}
	}

	rec, err := h.store.GetActive(context.Background(), testPhoneCanonical, string(PurposePhoneVerification))
	if err != nil {
		t.Fatalf("GetActive failed: %v", err)
	}
	if rec.AttemptCount != 0 || rec.Version != 1 {
		t.Fatalf("status must not write a pending record, got %s", rec)
	}
}

func TestStatusExpiresLazily(t *testing.T) {
	h := newHarness(t, nil)
	issued, _ := h.issuePhone(t)
	h.clock.Advance(10*time.Minute + time.Second)

	status, err := h.engine.Status(context.Background(), testPhone, PurposePhoneVerification)
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if status.Status != StatusExpired || status.AttemptsRemaining != 0 {
		t.Fatalf("expected expired with no attempts, got %+v", status)
	}

	ev := h.nextEvent(t, auditEventExpire)
	if ev.VerificationID != issued.VerificationID || ev.Subject != testPhoneCanonical {
		t.Fatalf("unexpected expire event: %+v", ev)
	}

	rec, err := h.store.GetActive(context.Background(), testPhoneCanonical, string(PurposePhoneVerification))
	if err != nil {
		t.Fatalf("GetActive failed: %v", err)
	}
	if rec.Status != StatusExpired {
		t.Fatalf("expected stored record expired, got %s", rec.Status)
	}
}

func TestStatusVerifiedRecord(t *testing.T) {
	h := newHarness(t, nil)
	_, code := h.issuePhone(t)
	h.verifyPhone(t, code)

	status, err := h.engine.Status(context.Background(), testPhone, PurposePhoneVerification)
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if status.Status != StatusVerified {
		t.Fatalf("expected verified, got %s", status.Status)
	}
	if status.ResendsRemaining != 0 || !status.NextAllowedResendAt.IsZero() || status.AttemptsRemaining != 0 {
		t.Fatalf("verified record must report nothing left, got %+v", status)
	}
}

func TestStatusLockedRecord(t *testing.T) {
	h := newHarness(t, nil)
	_, code := h.issuePhone(t)
	for i := 0; i < 3; i++ {
		h.verifyPhone(t, wrongCode(code))
	}

	status, err := h.engine.Status(context.Background(), testPhone, PurposePhoneVerification)
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if status.Status != StatusLocked {
		t.Fatalf("expected locked, got %s", status.Status)
	}
	if want := h.clock.Now().Add(15 * time.Minute); !status.LockedUntil.Equal(want) {
		t.Fatalf("expected lock until %s, got %s", want, status.LockedUntil)
	}
	if !status.NextAllowedResendAt.Equal(status.LockedUntil) {
		t.Fatalf("resend must wait for the lock, got %s", status.NextAllowedResendAt)
	}
}

func TestStatusNotFound(t *testing.T) {
	h := newHarness(t, nil)

	_, err := h.engine.Status(context.Background(), testPhone, PurposePhoneVerification)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestStatusValidation(t *testing.T) {
	h := newHarness(t, nil)

	_, err := h.engine.Status(context.Background(), "nope", PurposeEmailVerification)
	if !errors.Is(err, ErrInvalidSubject) {
		t.Fatalf("expected ErrInvalidSubject, got %v", err)
	}
}
