package goVerify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/goVerify/audit"
	"github.com/MrEthical07/goVerify/credstore"
	"github.com/MrEthical07/goVerify/identifier"
	"github.com/MrEthical07/goVerify/internal/backoff"
	"github.com/MrEthical07/goVerify/internal/limiters"
	"github.com/MrEthical07/goVerify/internal/secret"
	"github.com/MrEthical07/goVerify/notify"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	actionSend   = "send"
	actionVerify = "verify"

	// maxWriteRounds bounds the read-evaluate-swap loop. Each lost round
	// means another writer made progress on the same record.
	maxWriteRounds = 4
)

// Engine issues, resends, verifies and reports on verification secrets. It
// holds no per-subject state; everything shared lives in the record store
// and Redis, so any number of Engines may serve the same subjects.
type Engine struct {
	config     Config
	store      credstore.Store
	normalizer *identifier.Normalizer
	hasher     *secret.Hasher
	scheduler  *backoff.Scheduler
	requests   *limiters.RequestLimiter
	lockouts   *limiters.LockoutTracker
	notifier   notify.Notifier
	audit      *audit.Dispatcher
	metrics    *Metrics
	logger     logrus.FieldLogger
	now        func() time.Time
}

// Close drains pending audit events.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped returns the number of audit events discarded under
// backpressure.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot returns a copy of the engine counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

// Purposes lists the configured purposes.
func (e *Engine) Purposes() []Purpose {
	if e == nil {
		return nil
	}
	out := make([]Purpose, 0, len(e.config.Purposes))
	for p := range e.config.Purposes {
		out = append(out, p)
	}
	return out
}

func (e *Engine) ready() bool {
	return e != nil && e.store != nil && e.hasher != nil && e.scheduler != nil
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

// resolve validates purpose and canonicalizes subject.
func (e *Engine) resolve(purpose Purpose, subject string) (PurposePolicy, string, error) {
	policy, ok := e.config.Purposes[purpose]
	if !ok {
		return PurposePolicy{}, "", ErrUnknownPurpose
	}
	canonical, err := e.normalizer.Normalize(subject, policy.SubjectKind)
	if err != nil {
		return PurposePolicy{}, "", fmt.Errorf("%w: %v", ErrInvalidSubject, err)
	}
	return policy, canonical, nil
}

// checkRate enforces both the subject and the caller ceiling for action.
func (e *Engine) checkRate(ctx context.Context, action string, purpose Purpose, subject string) error {
	if e.requests == nil {
		return nil
	}

	var retryAfter time.Duration
	err := e.callBackend(ctx, "rate_limit", func(ctx context.Context) error {
		var err error
		retryAfter, err = e.requests.Check(ctx, action, string(purpose)+":"+subject, callerKey(ctx))
		return err
	})
	if err == nil {
		return nil
	}
	if errors.Is(err, limiters.ErrRequestRateLimited) {
		e.metricInc(MetricRateLimitHit)
		return reject(ErrRateLimited, retryAfter)
	}
	return err
}

// callBackend runs fn under the backend timeout. A transient failure is
// retried exactly once after RetryDelay; a second failure surfaces as
// ErrBackendUnavailable. Non-transient errors (conflicts, not found, rate
// limit decisions) return unchanged.
func (e *Engine) callBackend(ctx context.Context, op string, fn func(context.Context) error) error {
	err := e.runWithTimeout(ctx, fn)
	if err == nil || !transient(err) {
		return err
	}
	if ctx.Err() != nil {
		e.metricInc(MetricBackendUnavailable)
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, ctx.Err())
	}

	e.metricInc(MetricBackendRetry)
	e.logger.WithError(err).WithField("op", op).Warn("backend call failed, retrying once")

	timer := time.NewTimer(e.config.Backend.RetryDelay)
	select {
	case <-ctx.Done():
		timer.Stop()
		e.metricInc(MetricBackendUnavailable)
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, ctx.Err())
	case <-timer.C:
	}

	err = e.runWithTimeout(ctx, fn)
	if err != nil && transient(err) {
		e.metricInc(MetricBackendUnavailable)
		e.logger.WithError(err).WithField("op", op).Error("backend unavailable after retry")
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return err
}

func (e *Engine) runWithTimeout(ctx context.Context, fn func(context.Context) error) error {
	callCtx, cancel := context.WithTimeout(ctx, e.config.Backend.Timeout)
	defer cancel()
	return fn(callCtx)
}

func transient(err error) bool {
	return errors.Is(err, credstore.ErrUnavailable) ||
		errors.Is(err, limiters.ErrRequestLimiterUnavailable) ||
		errors.Is(err, limiters.ErrLockoutUnavailable) ||
		errors.Is(err, context.DeadlineExceeded)
}

// load returns the active record or nil when none exists.
func (e *Engine) load(ctx context.Context, subject string, purpose Purpose) (*credstore.Record, error) {
	var rec *credstore.Record
	err := e.callBackend(ctx, "get_active", func(ctx context.Context) error {
		var err error
		rec, err = e.store.GetActive(ctx, subject, string(purpose))
		return err
	})
	if errors.Is(err, credstore.ErrNotFound) {
		return nil, nil
	}
	return rec, err
}

// write installs next. prev is the record it was derived from, or nil when
// nothing was stored. A lost race returns credstore.ErrConflict.
//
// When the first attempt failed transiently the write may have committed
// before its reply was lost. A conflict on the retry is then resolved by
// reading the record back: finding next in place means the write landed.
// Anything else is reported as ErrBackendUnavailable so the caller never
// re-runs its decision against a state it may have produced itself.
func (e *Engine) write(ctx context.Context, prev, next *credstore.Record) error {
	ttl := e.storeTTL(next)
	attempts := 0
	err := e.callBackend(ctx, "write", func(ctx context.Context) error {
		attempts++
		if prev == nil {
			return e.store.Put(ctx, next, ttl)
		}
		next.Version = prev.Version
		return e.store.CompareAndSwap(ctx, next, ttl)
	})
	if errors.Is(err, credstore.ErrConflict) && attempts > 1 {
		return e.confirmWrite(ctx, prev, next)
	}
	if errors.Is(err, credstore.ErrConflict) {
		e.metricInc(MetricStoreConflict)
	}
	return err
}

// confirmWrite checks whether next was committed by an attempt whose reply
// was lost.
func (e *Engine) confirmWrite(ctx context.Context, prev, next *credstore.Record) error {
	want := uint64(1)
	if prev != nil {
		want = prev.Version + 1
	}

	current, err := e.load(ctx, next.Subject, Purpose(next.Purpose))
	if err != nil {
		return err
	}
	if current != nil && current.Version == want && sameWrite(current, next) {
		next.Version = current.Version
		e.logger.WithFields(logrus.Fields{
			"purpose":         next.Purpose,
			"verification_id": next.VerificationID,
		}).Warn("write committed before a lost reply")
		return nil
	}

	e.metricInc(MetricBackendUnavailable)
	return fmt.Errorf("%w: write outcome unknown after retry", ErrBackendUnavailable)
}

// sameWrite compares the fields a decision sets. Timestamps are left out
// because stores may round them.
func sameWrite(stored, next *credstore.Record) bool {
	return stored.VerificationID == next.VerificationID &&
		stored.SecretHash == next.SecretHash &&
		stored.AttemptCount == next.AttemptCount &&
		stored.ResendCount == next.ResendCount &&
		stored.Status == next.Status &&
		stored.LockedUntil.IsZero() == next.LockedUntil.IsZero()
}

// storeTTL keeps a record readable until its expiry or lock ends, plus the
// retention period for terminal-state reporting.
func (e *Engine) storeTTL(rec *credstore.Record) time.Duration {
	now := e.now()
	until := rec.ExpiresAt
	if rec.LockedUntil.After(until) {
		until = rec.LockedUntil
	}
	ttl := until.Sub(now)
	if ttl < 0 {
		ttl = 0
	}
	ttl += e.config.Store.RecordRetention
	if ttl < time.Second {
		ttl = time.Second
	}
	return ttl
}

// newSecret generates a verification id, plaintext and its digest.
func (e *Engine) newSecret(policy PurposePolicy, purpose Purpose, subject string) (string, string, [32]byte, error) {
	id := uuid.NewString()
	plaintext, err := secret.Generate(policy.secretKind(), policy.OTPDigits)
	if err != nil {
		return "", "", [32]byte{}, err
	}
	digest, err := e.hasher.Hash(string(purpose), id, subject, plaintext)
	if err != nil {
		return "", "", [32]byte{}, err
	}
	return id, plaintext, digest, nil
}

// deliver hands plaintext to the notifier once. Failure is logged and
// counted, never returned: the record is already valid and resendable.
func (e *Engine) deliver(ctx context.Context, rec *credstore.Record, plaintext string) bool {
	if Channel(rec.Channel) == ChannelDirect {
		return true
	}
	if e.notifier == nil {
		e.metricInc(MetricNotifyFailure)
		e.logger.WithFields(logrus.Fields{
			"purpose":         rec.Purpose,
			"verification_id": rec.VerificationID,
		}).Error("no notifier configured, secret not delivered")
		return false
	}

	sendCtx, cancel := context.WithTimeout(ctx, e.config.Notifier.Timeout)
	defer cancel()

	err := e.notifier.Send(sendCtx, notify.Message{
		Channel:        rec.Channel,
		Destination:    rec.Subject,
		Purpose:        rec.Purpose,
		VerificationID: rec.VerificationID,
		Secret:         plaintext,
		ExpiresAt:      rec.ExpiresAt,
	})
	if err != nil {
		e.metricInc(MetricNotifyFailure)
		e.logger.WithError(err).WithFields(logrus.Fields{
			"channel":         rec.Channel,
			"purpose":         rec.Purpose,
			"verification_id": rec.VerificationID,
		}).Warn("secret delivery failed")
		return false
	}
	e.metricInc(MetricNotifySuccess)
	return true
}
