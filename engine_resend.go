package goVerify

import (
	"context"
	"errors"
	"strconv"

	"github.com/MrEthical07/goVerify/credstore"
	"github.com/MrEthical07/goVerify/internal/flows"
)

// Resend replaces the current secret with a new one on the same channel,
// subject to the backoff schedule. The previous plaintext stops validating,
// the attempt counter resets and ResendCount grows by one.
//
// Rejections are *RejectionError values wrapping ErrCooldownActive (with a
// positive RetryAfter), ErrResendExhausted (with Advice), ErrRateLimited,
// ErrLockedOut, ErrNotFound or ErrAlreadyVerified. Of two concurrent
// resends, exactly one succeeds; the other observes the winner's record and
// is rejected by its cooldown.
func (e *Engine) Resend(ctx context.Context, subject string, purpose Purpose) (ResendResult, error) {
	if !e.ready() {
		return ResendResult{}, ErrEngineNotReady
	}

	policy, canonical, err := e.resolve(purpose, subject)
	if err != nil {
		e.metricInc(MetricValidationFailure)
		e.emitAudit(ctx, auditEventResend, false, auditTarget{purpose: purpose}, err, nil)
		return ResendResult{}, err
	}
	target := auditTarget{subject: canonical, purpose: purpose}

	if err := e.checkRate(ctx, actionSend, purpose, canonical); err != nil {
		e.metricInc(MetricResendRejected)
		e.emitAudit(ctx, auditEventResend, false, target, err, nil)
		return ResendResult{}, err
	}

	for round := 0; round < maxWriteRounds; round++ {
		prev, err := e.load(ctx, canonical, purpose)
		if err != nil {
			return ResendResult{}, e.fail(ctx, auditEventResend, MetricResendRejected, target, err)
		}
		if prev != nil {
			target.verificationID = prev.VerificationID
		}

		now := e.now()
		check := flows.CheckResend(prev, now, e.scheduler)
		if check.Reason != flows.ResendAllowed {
			rejection := e.resendRejection(ctx, prev, check, canonical, purpose)
			e.emitAudit(ctx, auditEventResend, false, target, rejection, func() map[string]string {
				meta := map[string]string{}
				if rejection.RetryAfter > 0 {
					meta["retry_after_seconds"] = strconv.Itoa(rejection.RetryAfterSeconds())
				}
				if rejection.Advice.Any() {
					meta["offer_alternate_channel"] = "true"
				}
				return meta
			})
			return ResendResult{}, rejection
		}

		id, plaintext, digest, err := e.newSecret(policy, purpose, canonical)
		if err != nil {
			return ResendResult{}, e.fail(ctx, auditEventResend, MetricResendRejected, target, err)
		}
		next := flows.Resend(prev, now, flows.IssueParams{
			VerificationID: id,
			Subject:        canonical,
			Purpose:        string(purpose),
			Channel:        prev.Channel,
			SecretHash:     digest,
			TTL:            policy.TTL,
		})

		if err := e.write(ctx, prev, next); err != nil {
			if errors.Is(err, credstore.ErrConflict) {
				continue
			}
			return ResendResult{}, e.fail(ctx, auditEventResend, MetricResendRejected, target, err)
		}

		delivered := e.deliver(ctx, next, plaintext)
		e.metricInc(MetricResendSuccess)
		target.verificationID = next.VerificationID
		e.emitAudit(ctx, auditEventResend, true, target, nil, func() map[string]string {
			return map[string]string{
				"channel":         next.Channel,
				"delivered":       strconv.FormatBool(delivered),
				"resend_count":    strconv.Itoa(next.ResendCount),
				"superseded_id":   prev.VerificationID,
				"previous_status": prev.Status.String(),
			}
		})

		result := ResendResult{
			VerificationID:      next.VerificationID,
			ExpiresAt:           next.ExpiresAt,
			NextAllowedResendAt: flows.NextResendAt(next, e.scheduler),
			ResendsRemaining:    e.scheduler.Remaining(next.ResendCount),
		}
		if Channel(next.Channel) == ChannelDirect {
			result.Token = plaintext
		}
		return result, nil
	}

	return ResendResult{}, e.fail(ctx, auditEventResend, MetricResendRejected, target, errContention)
}

func (e *Engine) resendRejection(ctx context.Context, prev *credstore.Record, check flows.ResendCheck, subject string, purpose Purpose) *RejectionError {
	switch check.Reason {
	case flows.ResendNotFound:
		e.metricInc(MetricResendRejected)
		return reject(ErrNotFound, 0)
	case flows.ResendAlreadyVerified:
		e.metricInc(MetricResendRejected)
		return reject(ErrAlreadyVerified, 0)
	case flows.ResendLocked:
		e.metricInc(MetricResendRejected)
		rejection := reject(ErrLockedOut, check.RetryAfter)
		rejection.Advice = e.advise(prev, e.lockoutCount(ctx, subject, purpose))
		return rejection
	case flows.ResendExhausted:
		e.metricInc(MetricResendExhausted)
		rejection := reject(ErrResendExhausted, 0)
		rejection.Advice = e.advise(prev, e.lockoutCount(ctx, subject, purpose))
		return rejection
	default:
		e.metricInc(MetricResendCooldown)
		return reject(ErrCooldownActive, check.RetryAfter)
	}
}
