// Package backoff computes resend cooldowns from a stepped delay schedule.
package backoff

import (
	"errors"
	"time"
)

// DefaultSchedule is the delay applied before the first, second and third
// resend; later resends reuse the last entry.
var DefaultSchedule = []time.Duration{0, 60 * time.Second, 120 * time.Second, 300 * time.Second}

// DefaultMaxResends is the number of resends allowed after the initial send.
const DefaultMaxResends = 3

var (
	ErrEmptySchedule      = errors.New("backoff schedule must not be empty")
	ErrNegativeDelay      = errors.New("backoff delays must be >= 0")
	ErrDecreasingSchedule = errors.New("backoff schedule must be non-decreasing")
	ErrNegativeMaxResends = errors.New("backoff max resends must be >= 0")
)

// Scheduler answers when the next resend is allowed. It is immutable after
// construction and safe for concurrent use.
type Scheduler struct {
	schedule   []time.Duration
	maxResends int
}

// New validates schedule and returns a Scheduler.
func New(schedule []time.Duration, maxResends int) (*Scheduler, error) {
	if err := Validate(schedule, maxResends); err != nil {
		return nil, err
	}
	cp := make([]time.Duration, len(schedule))
	copy(cp, schedule)
	return &Scheduler{schedule: cp, maxResends: maxResends}, nil
}

// Validate checks that schedule is non-empty, non-negative and monotonically
// non-decreasing.
func Validate(schedule []time.Duration, maxResends int) error {
	if len(schedule) == 0 {
		return ErrEmptySchedule
	}
	if maxResends < 0 {
		return ErrNegativeMaxResends
	}
	for i, d := range schedule {
		if d < 0 {
			return ErrNegativeDelay
		}
		if i > 0 && d < schedule[i-1] {
			return ErrDecreasingSchedule
		}
	}
	return nil
}

// Delay returns the cooldown that must elapse after the previous send before
// a resend numbered resendCount+1 is accepted.
func (s *Scheduler) Delay(resendCount int) time.Duration {
	if resendCount < 0 {
		resendCount = 0
	}
	if resendCount >= len(s.schedule) {
		resendCount = len(s.schedule) - 1
	}
	return s.schedule[resendCount]
}

// NextAllowedAt is lastSentAt plus the delay for the current resend count.
func (s *Scheduler) NextAllowedAt(lastSentAt time.Time, resendCount int) time.Time {
	return lastSentAt.Add(s.Delay(resendCount))
}

// Exhausted reports whether no further resend may be issued.
func (s *Scheduler) Exhausted(resendCount int) bool {
	return resendCount >= s.maxResends
}

// Remaining returns how many resends are still available.
func (s *Scheduler) Remaining(resendCount int) int {
	if r := s.maxResends - resendCount; r > 0 {
		return r
	}
	return 0
}

// MaxResends returns the configured resend ceiling.
func (s *Scheduler) MaxResends() int {
	return s.maxResends
}
