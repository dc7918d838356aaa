package goVerify

import (
	"errors"
	"fmt"
	"strconv"
	"time"
)

var (
	// ErrValidation is the parent of every input validation error. Callers
	// can re-prompt the user; nothing was consumed.
	ErrValidation = errors.New("validation failed")

	// ErrInvalidSubject is returned when a phone number, email or principal
	// cannot be normalized.
	ErrInvalidSubject = fmt.Errorf("%w: invalid subject", ErrValidation)
	// ErrInvalidCodeFormat is returned when a presented code has the wrong
	// length or alphabet for its purpose. No attempt is counted.
	ErrInvalidCodeFormat = fmt.Errorf("%w: invalid code format", ErrValidation)
	// ErrUnknownPurpose is returned for a purpose without a configured policy.
	ErrUnknownPurpose = fmt.Errorf("%w: unknown purpose", ErrValidation)
	// ErrInvalidChannel is returned when the purpose does not allow the
	// requested delivery channel.
	ErrInvalidChannel = fmt.Errorf("%w: invalid channel", ErrValidation)

	// ErrRateLimited means a per-subject or per-caller ceiling was hit.
	ErrRateLimited = errors.New("verification rate limited")
	// ErrCooldownActive means the backoff schedule has not elapsed yet.
	ErrCooldownActive = errors.New("resend cooldown active")
	// ErrResendExhausted means no resend remains for the current window.
	ErrResendExhausted = errors.New("resends exhausted")

	// ErrLockedOut means the record is locked by failed attempts.
	ErrLockedOut = errors.New("verification locked out")
	// ErrAlreadyVerified means the current secret was already redeemed.
	ErrAlreadyVerified = errors.New("already verified")
	// ErrExpired means the current secret passed its TTL.
	ErrExpired = errors.New("verification expired")
	// ErrSuperseded means a newer secret replaced the one presented.
	ErrSuperseded = errors.New("verification superseded")
	// ErrInvalidCode means the presented code did not match.
	ErrInvalidCode = errors.New("invalid verification code")
	// ErrNotFound means nothing is pending for the subject and purpose.
	ErrNotFound = errors.New("verification not found")

	// ErrBackendUnavailable is a transient store or limiter failure that
	// survived the internal retry. Callers may retry.
	ErrBackendUnavailable = errors.New("verification backend unavailable")
	// ErrEngineNotReady is returned by a nil or unbuilt Engine.
	ErrEngineNotReady = errors.New("engine not initialized")
)

// RejectionError is a policy or state rejection carrying retry hints. It
// unwraps to one of the sentinels above, so errors.Is keeps working.
type RejectionError struct {
	Err        error
	RetryAfter time.Duration
	Advice     Advice
}

func (e *RejectionError) Error() string {
	if e == nil || e.Err == nil {
		return "verification rejected"
	}
	if e.RetryAfter > 0 {
		return e.Err.Error() + " (retry after " + strconv.Itoa(e.RetryAfterSeconds()) + "s)"
	}
	return e.Err.Error()
}

func (e *RejectionError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// RetryAfterSeconds rounds RetryAfter up to whole seconds. Any positive
// duration yields at least 1.
func (e *RejectionError) RetryAfterSeconds() int {
	if e == nil || e.RetryAfter <= 0 {
		return 0
	}
	secs := e.RetryAfter / time.Second
	if e.RetryAfter%time.Second != 0 {
		secs++
	}
	return int(secs)
}

func reject(err error, retryAfter time.Duration) *RejectionError {
	return &RejectionError{Err: err, RetryAfter: retryAfter}
}
