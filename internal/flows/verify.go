package flows

import (
	"time"

	"github.com/MrEthical07/goVerify/credstore"
)

// Outcome is the result class of a verification attempt.
type Outcome uint8

const (
	OutcomeNotFound Outcome = iota + 1
	OutcomeSuccess
	OutcomeInvalidCode
	OutcomeExpired
	OutcomeLockedOut
	OutcomeAlreadyVerified
	OutcomeSuperseded
)

// VerifyPolicy is the per-purpose attempt ceiling.
type VerifyPolicy struct {
	MaxAttempts int
	// LockDuration is how long a locked record refuses re-issuance. Zero
	// locks without a cooldown.
	LockDuration time.Duration
}

// VerifyDecision describes what the caller must persist and report.
type VerifyDecision struct {
	Outcome           Outcome
	AttemptsRemaining int
	// Next is the record to compare-and-swap, or nil when nothing changes.
	Next *credstore.Record
	// Locked is true when this decision moves the record into Locked.
	Locked bool
}

// Verify evaluates one attempt against rec at now. matches is consulted only
// when the record is pending, unexpired and below the attempt ceiling, so a
// terminal or expired record never pays for (or leaks) a comparison.
func Verify(rec *credstore.Record, now time.Time, policy VerifyPolicy, matches func(*credstore.Record) bool) VerifyDecision {
	if rec == nil {
		return VerifyDecision{Outcome: OutcomeNotFound}
	}

	if next, ok := Expire(rec, now); ok {
		return VerifyDecision{Outcome: OutcomeExpired, Next: next}
	}

	switch rec.Status {
	case credstore.StatusPending:
	case credstore.StatusVerified:
		return VerifyDecision{Outcome: OutcomeAlreadyVerified}
	case credstore.StatusExpired:
		return VerifyDecision{Outcome: OutcomeExpired}
	case credstore.StatusLocked:
		return VerifyDecision{Outcome: OutcomeLockedOut}
	case credstore.StatusSuperseded:
		return VerifyDecision{Outcome: OutcomeSuperseded}
	default:
		return VerifyDecision{Outcome: OutcomeNotFound}
	}

	if rec.AttemptCount >= policy.MaxAttempts {
		return VerifyDecision{Outcome: OutcomeLockedOut, Next: lock(rec, now, policy), Locked: true}
	}

	if matches(rec) {
		next := *rec
		next.Status = credstore.StatusVerified
		return VerifyDecision{Outcome: OutcomeSuccess, AttemptsRemaining: policy.MaxAttempts - rec.AttemptCount, Next: &next}
	}

	next := *rec
	next.AttemptCount++
	remaining := policy.MaxAttempts - next.AttemptCount
	if remaining <= 0 {
		return VerifyDecision{Outcome: OutcomeInvalidCode, Next: lock(&next, now, policy), Locked: true}
	}
	return VerifyDecision{Outcome: OutcomeInvalidCode, AttemptsRemaining: remaining, Next: &next}
}

// Expire returns a copy of rec moved to Expired when it is pending and its
// TTL has passed. The second result is false when no transition applies.
func Expire(rec *credstore.Record, now time.Time) (*credstore.Record, bool) {
	if rec == nil || rec.Status != credstore.StatusPending || !now.After(rec.ExpiresAt) {
		return nil, false
	}
	next := *rec
	next.Status = credstore.StatusExpired
	return &next, true
}

// AttemptsRemaining reports how many wrong codes rec can still absorb.
func AttemptsRemaining(rec *credstore.Record, maxAttempts int) int {
	if rec == nil || rec.Status != credstore.StatusPending {
		return 0
	}
	if r := maxAttempts - rec.AttemptCount; r > 0 {
		return r
	}
	return 0
}

func lock(rec *credstore.Record, now time.Time, policy VerifyPolicy) *credstore.Record {
	next := *rec
	next.Status = credstore.StatusLocked
	if policy.LockDuration > 0 {
		next.LockedUntil = now.Add(policy.LockDuration)
	}
	return &next
}
