package flows

import (
	"time"

	"github.com/MrEthical07/goVerify/credstore"
	"github.com/MrEthical07/goVerify/internal/backoff"
)

// IssueParams carries the freshly generated identity of a new secret.
type IssueParams struct {
	VerificationID string
	Subject        string
	Purpose        string
	Channel        string
	SecretHash     [32]byte
	TTL            time.Duration
}

// Issue builds the first record of a new resend window. Counters start at
// zero regardless of any previous record.
func Issue(now time.Time, p IssueParams) *credstore.Record {
	return &credstore.Record{
		VerificationID: p.VerificationID,
		Subject:        p.Subject,
		Purpose:        p.Purpose,
		Channel:        p.Channel,
		SecretHash:     p.SecretHash,
		IssuedAt:       now,
		ExpiresAt:      now.Add(p.TTL),
		LastSentAt:     now,
		Status:         credstore.StatusPending,
	}
}

// IssueBlocked reports whether prev forbids a fresh issue at now. Only an
// active lock does; every other state may be superseded.
func IssueBlocked(prev *credstore.Record, now time.Time) bool {
	return prev.Locked(now)
}

// ResendReason classifies a resend eligibility check.
type ResendReason uint8

const (
	ResendAllowed ResendReason = iota
	ResendNotFound
	ResendAlreadyVerified
	ResendLocked
	ResendExhausted
	ResendCooldown
)

// ResendCheck is the gate result for a resend request.
type ResendCheck struct {
	Reason        ResendReason
	NextAllowedAt time.Time
	RetryAfter    time.Duration
}

// CheckResend decides whether prev may be replaced by a resent secret at now.
func CheckResend(prev *credstore.Record, now time.Time, sched *backoff.Scheduler) ResendCheck {
	if prev == nil {
		return ResendCheck{Reason: ResendNotFound}
	}
	if prev.Status == credstore.StatusVerified {
		return ResendCheck{Reason: ResendAlreadyVerified}
	}
	if prev.Locked(now) {
		return ResendCheck{Reason: ResendLocked, RetryAfter: prev.LockedUntil.Sub(now), NextAllowedAt: prev.LockedUntil}
	}
	if sched.Exhausted(prev.ResendCount) {
		return ResendCheck{Reason: ResendExhausted}
	}

	next := sched.NextAllowedAt(prev.LastSentAt, prev.ResendCount)
	if now.Before(next) {
		return ResendCheck{Reason: ResendCooldown, NextAllowedAt: next, RetryAfter: next.Sub(now)}
	}
	return ResendCheck{Reason: ResendAllowed, NextAllowedAt: next}
}

// Resend builds the replacement for prev: a new secret and expiry, one more
// resend counted and the attempt counter reset.
func Resend(prev *credstore.Record, now time.Time, p IssueParams) *credstore.Record {
	next := Issue(now, p)
	next.ResendCount = prev.ResendCount + 1
	next.Version = prev.Version
	return next
}

// NextResendAt returns when rec may next be resent, or the zero time when no
// resend remains.
func NextResendAt(rec *credstore.Record, sched *backoff.Scheduler) time.Time {
	if rec == nil || rec.Status == credstore.StatusVerified || sched.Exhausted(rec.ResendCount) {
		return time.Time{}
	}
	next := sched.NextAllowedAt(rec.LastSentAt, rec.ResendCount)
	if rec.LockedUntil.After(next) {
		return rec.LockedUntil
	}
	return next
}
