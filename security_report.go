package goVerify

import (
	"sort"
	"time"
)

// SecurityReport summarizes the effective hardening posture of an Engine.
// It carries no key material and is safe to log at startup.
type SecurityReport struct {
	ProductionMode       bool
	RateLimitingActive   bool
	CallerLimitsActive   bool
	LockoutHistoryActive bool
	AuditActive          bool
	MetricsActive        bool
	MaxResends           int
	BackoffSchedule      []time.Duration
	Purposes             []PurposeReport
}

// PurposeReport is the policy of one configured purpose.
type PurposeReport struct {
	Purpose      Purpose
	SubjectKind  string
	Secret       string
	OTPDigits    int
	TTL          time.Duration
	MaxAttempts  int
	LockDuration time.Duration
	Channels     []Channel
}

func (e *Engine) SecurityReport() SecurityReport {
	if e == nil {
		return SecurityReport{}
	}

	cfg := e.config
	callerLimits := cfg.RateLimit.Enabled &&
		cfg.RateLimit.Send.CallerLimit > 0 &&
		cfg.RateLimit.Verify.CallerLimit > 0

	report := SecurityReport{
		ProductionMode:       cfg.Security.ProductionMode,
		RateLimitingActive:   cfg.RateLimit.Enabled,
		CallerLimitsActive:   callerLimits,
		LockoutHistoryActive: cfg.Lockout.HistoryEnabled,
		AuditActive:          e.audit != nil,
		MetricsActive:        e.metrics.Enabled(),
		MaxResends:           cfg.Backoff.MaxResends,
		BackoffSchedule:      append([]time.Duration(nil), cfg.Backoff.Schedule...),
		Purposes:             make([]PurposeReport, 0, len(cfg.Purposes)),
	}

	for name, p := range cfg.Purposes {
		pr := PurposeReport{
			Purpose:      name,
			SubjectKind:  p.SubjectKind.String(),
			Secret:       p.Secret.String(),
			TTL:          p.TTL,
			MaxAttempts:  p.MaxAttempts,
			LockDuration: p.LockDuration,
			Channels:     append([]Channel(nil), p.AllowedChannels...),
		}
		if p.Secret == SecretOTP {
			pr.OTPDigits = p.OTPDigits
		}
		report.Purposes = append(report.Purposes, pr)
	}
	sort.Slice(report.Purposes, func(i, j int) bool {
		return report.Purposes[i].Purpose < report.Purposes[j].Purpose
	})

	return report
}
