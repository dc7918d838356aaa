package goVerify

import (
	"context"
	"errors"

	"github.com/MrEthical07/goVerify/credstore"
	"github.com/MrEthical07/goVerify/internal/flows"
)

// Status reports the active record for subject and purpose without consuming
// an attempt. The only write it performs is moving a pending record whose TTL
// has passed to StatusExpired, which emits one expire audit event.
//
// A missing record returns ErrNotFound.
func (e *Engine) Status(ctx context.Context, subject string, purpose Purpose) (StatusResult, error) {
	if !e.ready() {
		return StatusResult{}, ErrEngineNotReady
	}

	policy, canonical, err := e.resolve(purpose, subject)
	if err != nil {
		e.metricInc(MetricValidationFailure)
		return StatusResult{}, err
	}

	for round := 0; round < maxWriteRounds; round++ {
		rec, err := e.load(ctx, canonical, purpose)
		if err != nil {
			return StatusResult{}, err
		}
		if rec == nil {
			return StatusResult{}, ErrNotFound
		}

		if next, ok := flows.Expire(rec, e.now()); ok {
			if err := e.write(ctx, rec, next); err != nil {
				if errors.Is(err, credstore.ErrConflict) {
					continue
				}
				return StatusResult{}, err
			}
			e.emitAudit(ctx, auditEventExpire, true, auditTarget{
				subject:        canonical,
				purpose:        purpose,
				verificationID: next.VerificationID,
			}, nil, nil)
			rec = next
		}

		return e.statusOf(ctx, rec, policy), nil
	}

	return StatusResult{}, errContention
}

func (e *Engine) statusOf(ctx context.Context, rec *credstore.Record, policy PurposePolicy) StatusResult {
	result := StatusResult{
		Status:              rec.Status,
		VerificationID:      rec.VerificationID,
		Channel:             Channel(rec.Channel),
		ExpiresAt:           rec.ExpiresAt,
		AttemptsRemaining:   flows.AttemptsRemaining(rec, policy.MaxAttempts),
		NextAllowedResendAt: flows.NextResendAt(rec, e.scheduler),
		LockedUntil:         rec.LockedUntil,
	}
	if rec.Status != StatusVerified {
		result.ResendsRemaining = e.scheduler.Remaining(rec.ResendCount)
	}

	recent := 0
	if rec.Status == StatusLocked {
		recent = e.lockoutCount(ctx, rec.Subject, Purpose(rec.Purpose))
	}
	if rec.Status != StatusVerified {
		result.Advice = e.advise(rec, recent)
	}
	return result
}
