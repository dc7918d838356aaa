package goVerify

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/MrEthical07/goVerify/credstore"
	"github.com/MrEthical07/goVerify/internal/flows"
	"github.com/MrEthical07/goVerify/internal/secret"
)

// Verify checks code against the active secret for subject and purpose.
//
// The outcome is reported in VerifyResult, not as an error: a wrong code,
// an expired or locked record and a repeated success are all normal results.
// The error is reserved for malformed input (ErrValidation), rate limiting
// (*RejectionError wrapping ErrRateLimited) and backend failure.
//
// Only the first successful Verify of a secret reports OutcomeSuccess;
// every later call reports OutcomeAlreadyVerified. Each call emits exactly
// one audit event.
func (e *Engine) Verify(ctx context.Context, subject string, purpose Purpose, code string) (VerifyResult, error) {
	if !e.ready() {
		return VerifyResult{}, ErrEngineNotReady
	}

	start := time.Now()
	defer func() {
		e.metrics.Observe(MetricVerifyLatency, time.Since(start))
	}()

	policy, canonical, err := e.resolve(purpose, subject)
	if err != nil {
		e.metricInc(MetricValidationFailure)
		e.emitAudit(ctx, auditEventVerify, false, auditTarget{purpose: purpose}, err, nil)
		return VerifyResult{}, err
	}
	target := auditTarget{subject: canonical, purpose: purpose}

	code = strings.TrimSpace(code)
	if !secret.WellFormed(policy.secretKind(), policy.OTPDigits, code) {
		e.metricInc(MetricValidationFailure)
		e.emitAudit(ctx, auditEventVerify, false, target, ErrInvalidCodeFormat, nil)
		return VerifyResult{}, ErrInvalidCodeFormat
	}

	if err := e.checkRate(ctx, actionVerify, purpose, canonical); err != nil {
		e.emitAudit(ctx, auditEventVerify, false, target, err, nil)
		return VerifyResult{}, err
	}

	verifyPolicy := flows.VerifyPolicy{MaxAttempts: policy.MaxAttempts, LockDuration: policy.LockDuration}
	var hashErr error
	matches := func(rec *credstore.Record) bool {
		digest, err := e.hasher.Hash(string(purpose), rec.VerificationID, rec.Subject, code)
		if err != nil {
			hashErr = err
			return false
		}
		return secret.Equal(digest, rec.SecretHash)
	}

	for round := 0; round < maxWriteRounds; round++ {
		rec, err := e.load(ctx, canonical, purpose)
		if err != nil {
			return VerifyResult{}, e.fail(ctx, auditEventVerify, MetricVerifyError, target, err)
		}
		if rec != nil {
			target.verificationID = rec.VerificationID
		}

		decision := flows.Verify(rec, e.now(), verifyPolicy, matches)
		if hashErr != nil {
			return VerifyResult{}, e.fail(ctx, auditEventVerify, MetricVerifyError, target, hashErr)
		}

		if decision.Next != nil {
			if err := e.write(ctx, rec, decision.Next); err != nil {
				if errors.Is(err, credstore.ErrConflict) {
					continue
				}
				return VerifyResult{}, e.fail(ctx, auditEventVerify, MetricVerifyError, target, err)
			}
		}

		result := VerifyResult{
			Outcome:           outcomeFromFlow(decision.Outcome),
			AttemptsRemaining: decision.AttemptsRemaining,
			Locked:            decision.Locked || decision.Outcome == flows.OutcomeLockedOut,
		}
		current := rec
		if decision.Next != nil {
			current = decision.Next
		}
		if current != nil {
			result.LockedUntil = current.LockedUntil
		}

		switch {
		case decision.Locked:
			result.Advice = e.advise(current, e.recordLockout(ctx, canonical, purpose))
		case result.Outcome == OutcomeLockedOut:
			result.Advice = e.advise(current, e.lockoutCount(ctx, canonical, purpose))
		}

		e.countOutcome(result.Outcome)
		if result.Verified() {
			e.clearLockouts(ctx, canonical, purpose)
		}
		e.emitAudit(ctx, auditEventVerify, result.Verified(), target, result.Err(), func() map[string]string {
			meta := map[string]string{
				"outcome":            result.Outcome.String(),
				"attempts_remaining": strconv.Itoa(result.AttemptsRemaining),
			}
			if decision.Locked {
				meta["locked"] = "true"
			}
			return meta
		})
		return result, nil
	}

	return VerifyResult{}, e.fail(ctx, auditEventVerify, MetricVerifyError, target, errContention)
}

func (e *Engine) countOutcome(o VerifyOutcome) {
	switch o {
	case OutcomeSuccess:
		e.metricInc(MetricVerifySuccess)
	case OutcomeInvalidCode:
		e.metricInc(MetricVerifyInvalidCode)
	case OutcomeExpired:
		e.metricInc(MetricVerifyExpired)
	case OutcomeLockedOut:
		e.metricInc(MetricVerifyLockedOut)
	case OutcomeAlreadyVerified:
		e.metricInc(MetricVerifyAlreadyVerified)
	case OutcomeSuperseded:
		e.metricInc(MetricVerifySuperseded)
	default:
		e.metricInc(MetricVerifyNotFound)
	}
}
