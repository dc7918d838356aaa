package credstore

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Status is the lifecycle state of a verification record.
type Status uint8

const (
	StatusUnknown Status = iota
	StatusPending
	StatusVerified
	StatusExpired
	StatusLocked
	StatusSuperseded
)

// String returns the lowercase status name used on the wire.
func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusVerified:
		return "verified"
	case StatusExpired:
		return "expired"
	case StatusLocked:
		return "locked"
	case StatusSuperseded:
		return "superseded"
	default:
		return "unknown"
	}
}

// Terminal reports whether s can no longer transition without a fresh issue.
func (s Status) Terminal() bool {
	return s != StatusPending && s != StatusUnknown
}

// Record is the single active verification credential for a
// (subject, purpose) pair.
type Record struct {
	VerificationID string
	Subject        string
	Purpose        string
	Channel        string
	SecretHash     [32]byte

	IssuedAt    time.Time
	ExpiresAt   time.Time
	LastSentAt  time.Time
	LockedUntil time.Time

	AttemptCount int
	ResendCount  int
	Status       Status

	// Version is managed by the store. Put sets it to 1 and every successful
	// CompareAndSwap increments it.
	Version uint64
}

// String omits SecretHash so records can be logged safely.
func (r *Record) String() string {
	if r == nil {
		return "<nil>"
	}
	return fmt.Sprintf(
		"Record{id=%s subject=%s purpose=%s channel=%s status=%s attempts=%d resends=%d expires=%s version=%d}",
		r.VerificationID, r.Subject, r.Purpose, r.Channel, r.Status,
		r.AttemptCount, r.ResendCount, r.ExpiresAt.UTC().Format(time.RFC3339), r.Version,
	)
}

// Locked reports whether LockedUntil is set and still in the future at now.
func (r *Record) Locked(now time.Time) bool {
	return r != nil && !r.LockedUntil.IsZero() && now.Before(r.LockedUntil)
}

var (
	// ErrNotFound means no record exists for the (subject, purpose) pair.
	ErrNotFound = errors.New("verification record not found")
	// ErrConflict means a concurrent writer won: Put found an existing record
	// or CompareAndSwap saw a different version.
	ErrConflict = errors.New("verification record version conflict")
	// ErrUnavailable wraps backend failures and timeouts. Callers may retry.
	ErrUnavailable = errors.New("verification store unavailable")
	// ErrInvalidRecord is returned for records missing required fields.
	ErrInvalidRecord = errors.New("invalid verification record")
)

// Store persists at most one active record per (subject, purpose).
//
// Implementations must make CompareAndSwap linearizable per key across
// processes; in-process locking alone is not enough.
type Store interface {
	// GetActive returns the current record or ErrNotFound.
	GetActive(ctx context.Context, subject, purpose string) (*Record, error)
	// Put inserts rec when no record exists for its key, setting
	// rec.Version to 1. It returns ErrConflict otherwise.
	Put(ctx context.Context, rec *Record, ttl time.Duration) error
	// CompareAndSwap replaces the stored record only if its Version equals
	// rec.Version, then increments rec.Version. A record with a different
	// VerificationID supersedes the stored one.
	CompareAndSwap(ctx context.Context, rec *Record, ttl time.Duration) error
}

func validateRecord(rec *Record, ttl time.Duration) error {
	if rec == nil || rec.Subject == "" || rec.Purpose == "" || rec.VerificationID == "" {
		return ErrInvalidRecord
	}
	if ttl <= 0 {
		return fmt.Errorf("%w: ttl must be > 0", ErrInvalidRecord)
	}
	return nil
}

func wrapUnavailable(err error) error {
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}

func recordKey(subject, purpose string) string {
	return purpose + ":" + subject
}
