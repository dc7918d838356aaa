package goVerify

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/MrEthical07/goVerify/credstore"
	"github.com/MrEthical07/goVerify/internal/flows"
)

// Issue starts a fresh verification for subject and purpose. Any earlier
// secret for the pair stops validating and the attempt and resend counters
// start from zero. The plaintext goes to the notifier, or into
// IssueResult.Token for the direct channel. An empty channel selects the
// purpose's default.
//
// Rejections are *RejectionError values wrapping ErrRateLimited or
// ErrLockedOut. Delivery failure never fails the call.
func (e *Engine) Issue(ctx context.Context, subject string, purpose Purpose, channel Channel) (IssueResult, error) {
	if !e.ready() {
		return IssueResult{}, ErrEngineNotReady
	}

	policy, canonical, err := e.resolve(purpose, subject)
	if err != nil {
		e.metricInc(MetricValidationFailure)
		e.emitAudit(ctx, auditEventIssue, false, auditTarget{purpose: purpose}, err, nil)
		return IssueResult{}, err
	}
	target := auditTarget{subject: canonical, purpose: purpose}

	if channel == "" {
		channel = policy.DefaultChannel
	}
	if !policy.allows(channel) {
		e.metricInc(MetricValidationFailure)
		e.emitAudit(ctx, auditEventIssue, false, target, ErrInvalidChannel, func() map[string]string {
			return map[string]string{"channel": string(channel)}
		})
		return IssueResult{}, ErrInvalidChannel
	}

	if err := e.checkRate(ctx, actionSend, purpose, canonical); err != nil {
		e.metricInc(MetricIssueRejected)
		e.emitAudit(ctx, auditEventIssue, false, target, err, nil)
		return IssueResult{}, err
	}

	for round := 0; round < maxWriteRounds; round++ {
		prev, err := e.load(ctx, canonical, purpose)
		if err != nil {
			return IssueResult{}, e.fail(ctx, auditEventIssue, MetricIssueRejected, target, err)
		}

		now := e.now()
		if flows.IssueBlocked(prev, now) {
			rejection := reject(ErrLockedOut, prev.LockedUntil.Sub(now))
			e.metricInc(MetricIssueRejected)
			e.emitAudit(ctx, auditEventIssue, false, target, rejection, nil)
			return IssueResult{}, rejection
		}

		id, plaintext, digest, err := e.newSecret(policy, purpose, canonical)
		if err != nil {
			return IssueResult{}, e.fail(ctx, auditEventIssue, MetricIssueRejected, target, err)
		}
		next := flows.Issue(now, flows.IssueParams{
			VerificationID: id,
			Subject:        canonical,
			Purpose:        string(purpose),
			Channel:        string(channel),
			SecretHash:     digest,
			TTL:            policy.TTL,
		})

		if err := e.write(ctx, prev, next); err != nil {
			if errors.Is(err, credstore.ErrConflict) {
				continue
			}
			return IssueResult{}, e.fail(ctx, auditEventIssue, MetricIssueRejected, target, err)
		}

		delivered := e.deliver(ctx, next, plaintext)
		e.metricInc(MetricIssueSuccess)
		target.verificationID = next.VerificationID
		e.emitAudit(ctx, auditEventIssue, true, target, nil, func() map[string]string {
			meta := map[string]string{
				"channel":   string(channel),
				"delivered": strconv.FormatBool(delivered),
			}
			if prev != nil {
				meta["replaced"] = prev.Status.String()
			}
			return meta
		})

		result := IssueResult{
			VerificationID:      next.VerificationID,
			ExpiresAt:           next.ExpiresAt,
			NextAllowedResendAt: flows.NextResendAt(next, e.scheduler),
		}
		if channel == ChannelDirect {
			result.Token = plaintext
		}
		return result, nil
	}

	return IssueResult{}, e.fail(ctx, auditEventIssue, MetricIssueRejected, target, errContention)
}

// errContention is returned when every write round lost a race.
var errContention = fmt.Errorf("%w: record contention", ErrBackendUnavailable)

// fail records an operation that ended on a backend or internal error.
func (e *Engine) fail(ctx context.Context, eventType string, metric MetricID, target auditTarget, err error) error {
	e.metricInc(metric)
	e.emitAudit(ctx, eventType, false, target, err, nil)
	return err
}
