package goVerify

import (
	"context"

	"github.com/MrEthical07/goVerify/credstore"
)

// advise recommends a fallback path once the resend budget is spent or the
// subject keeps locking itself out. It only reads state.
func (e *Engine) advise(rec *credstore.Record, recentLockouts int) Advice {
	exhausted := rec != nil && e.scheduler.Exhausted(rec.ResendCount)
	repeated := e.config.Lockout.HistoryEnabled && recentLockouts >= e.config.Lockout.AdvisorThreshold
	if !exhausted && !repeated {
		return Advice{}
	}
	e.metricInc(MetricAdvisorTriggered)
	return Advice{OfferAlternateChannel: true, OfferSupportContact: true}
}

// lockoutCount reads the rolling lockout history. Failures degrade to zero:
// advice is a hint and must not fail the request.
func (e *Engine) lockoutCount(ctx context.Context, subject string, purpose Purpose) int {
	if e.lockouts == nil {
		return 0
	}
	var count int
	err := e.callBackend(ctx, "lockout_count", func(ctx context.Context) error {
		var err error
		count, err = e.lockouts.Count(ctx, subject, string(purpose))
		return err
	})
	if err != nil {
		e.logger.WithError(err).WithField("purpose", purpose).Warn("lockout history unavailable")
		return 0
	}
	return count
}

// recordLockout appends one lockout to the history and returns the new
// count.
func (e *Engine) recordLockout(ctx context.Context, subject string, purpose Purpose) int {
	e.metricInc(MetricLockoutTriggered)
	if e.lockouts == nil {
		return 0
	}
	var count int
	err := e.callBackend(ctx, "lockout_record", func(ctx context.Context) error {
		var err error
		count, err = e.lockouts.Record(ctx, subject, string(purpose))
		return err
	})
	if err != nil {
		e.logger.WithError(err).WithField("purpose", purpose).Warn("failed to record lockout")
		return 0
	}
	return count
}

// clearLockouts forgets the lockout history after a successful verification.
func (e *Engine) clearLockouts(ctx context.Context, subject string, purpose Purpose) {
	if e.lockouts == nil {
		return
	}
	err := e.callBackend(ctx, "lockout_reset", func(ctx context.Context) error {
		return e.lockouts.Reset(ctx, subject, string(purpose))
	})
	if err != nil {
		e.logger.WithError(err).WithField("purpose", purpose).Warn("failed to clear lockout history")
	}
}
