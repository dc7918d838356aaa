package internaldefs

import (
	goVerify "github.com/MrEthical07/goVerify"
)

// CounterDef binds an engine counter to its exported name.
type CounterDef struct {
	ID   goVerify.MetricID
	Name string
	Help string
}

// HistogramDef binds an engine histogram to its exported name.
type HistogramDef struct {
	ID   goVerify.MetricID
	Name string
	Help string
}

// CounterDefs lists every counter exported, in exposition order.
var CounterDefs = []CounterDef{
	{ID: goVerify.MetricIssueSuccess, Name: "goverify_issue_success_total", Help: "Credentials issued."},
	{ID: goVerify.MetricIssueRejected, Name: "goverify_issue_rejected_total", Help: "Issue requests rejected by rate limits or an active lock."},
	{ID: goVerify.MetricResendSuccess, Name: "goverify_resend_success_total", Help: "Successful resends."},
	{ID: goVerify.MetricResendCooldown, Name: "goverify_resend_cooldown_total", Help: "Resends rejected during the backoff cooldown."},
	{ID: goVerify.MetricResendExhausted, Name: "goverify_resend_exhausted_total", Help: "Resends rejected after the resend budget was spent."},
	{ID: goVerify.MetricResendRejected, Name: "goverify_resend_rejected_total", Help: "Resends rejected for any other reason."},
	{ID: goVerify.MetricVerifySuccess, Name: "goverify_verify_success_total", Help: "Successful verifications."},
	{ID: goVerify.MetricVerifyInvalidCode, Name: "goverify_verify_invalid_code_total", Help: "Verifications with a wrong secret."},
	{ID: goVerify.MetricVerifyExpired, Name: "goverify_verify_expired_total", Help: "Verifications against an expired credential."},
	{ID: goVerify.MetricVerifyLockedOut, Name: "goverify_verify_locked_out_total", Help: "Verifications against a locked credential."},
	{ID: goVerify.MetricVerifyAlreadyVerified, Name: "goverify_verify_already_verified_total", Help: "Verifications against a consumed credential."},
	{ID: goVerify.MetricVerifySuperseded, Name: "goverify_verify_superseded_total", Help: "Verifications against a superseded credential."},
	{ID: goVerify.MetricVerifyNotFound, Name: "goverify_verify_not_found_total", Help: "Verifications with no credential on record."},
	{ID: goVerify.MetricVerifyError, Name: "goverify_verify_error_total", Help: "Verifications that failed with an error."},
	{ID: goVerify.MetricLockoutTriggered, Name: "goverify_lockout_triggered_total", Help: "Credentials locked after exhausting attempts."},
	{ID: goVerify.MetricAdvisorTriggered, Name: "goverify_advisor_triggered_total", Help: "Responses that carried alternative-channel advice."},
	{ID: goVerify.MetricRateLimitHit, Name: "goverify_rate_limit_hit_total", Help: "Rate-limit checks that denied requests."},
	{ID: goVerify.MetricValidationFailure, Name: "goverify_validation_failure_total", Help: "Requests rejected by input validation."},
	{ID: goVerify.MetricNotifySuccess, Name: "goverify_notify_success_total", Help: "Secrets handed to the delivery channel."},
	{ID: goVerify.MetricNotifyFailure, Name: "goverify_notify_failure_total", Help: "Secret deliveries that failed."},
	{ID: goVerify.MetricStoreConflict, Name: "goverify_store_conflict_total", Help: "Conditional writes that lost a concurrent race."},
	{ID: goVerify.MetricBackendRetry, Name: "goverify_backend_retry_total", Help: "Backend calls retried after a transient error."},
	{ID: goVerify.MetricBackendUnavailable, Name: "goverify_backend_unavailable_total", Help: "Operations failed because the backend was unavailable."},
}

// HistogramDefs lists every histogram exported.
var HistogramDefs = []HistogramDef{
	{ID: goVerify.MetricVerifyLatency, Name: "goverify_verify_latency_seconds", Help: "Verify latency histogram."},
}

// HistogramBounds are the upper bounds of the engine buckets, in seconds.
var HistogramBounds = []string{
	"0.005",
	"0.01",
	"0.025",
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"+Inf",
}

// HistogramBoundSuffix is HistogramBounds spelled for instrument names.
var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// AuditDroppedName is the counter for audit events lost to backpressure.
const AuditDroppedName = "goverify_audit_dropped_total"

// AuditDroppedHelp documents AuditDroppedName.
const AuditDroppedHelp = "Dropped audit events due to dispatcher backpressure."

// NormalizeBuckets copies raw into a fixed eight-bucket array, zero-filling
// missing entries and ignoring extras.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets converts per-bucket counts into the running totals
// exposition formats expect.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
