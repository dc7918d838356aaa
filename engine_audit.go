package goVerify

import (
	"context"
	"errors"

	"github.com/MrEthical07/goVerify/audit"
)

const (
	auditEventIssue  = "verification_issue"
	auditEventResend = "verification_resend"
	auditEventVerify = "verification_verify"
	auditEventExpire = "verification_expire"
)

// AuditErrorCode is the stable, secret-free error label written to audit
// events.
type AuditErrorCode string

const (
	auditErrInvalidSubject     AuditErrorCode = "invalid_subject"
	auditErrInvalidCodeFormat  AuditErrorCode = "invalid_code_format"
	auditErrUnknownPurpose     AuditErrorCode = "unknown_purpose"
	auditErrInvalidChannel     AuditErrorCode = "invalid_channel"
	auditErrValidation         AuditErrorCode = "validation"
	auditErrRateLimited        AuditErrorCode = "rate_limited"
	auditErrCooldownActive     AuditErrorCode = "cooldown_active"
	auditErrResendExhausted    AuditErrorCode = "resend_exhausted"
	auditErrLockedOut          AuditErrorCode = "locked_out"
	auditErrAlreadyVerified    AuditErrorCode = "already_verified"
	auditErrExpired            AuditErrorCode = "expired"
	auditErrSuperseded         AuditErrorCode = "superseded"
	auditErrInvalidCode        AuditErrorCode = "invalid_code"
	auditErrNotFound           AuditErrorCode = "not_found"
	auditErrBackendUnavailable AuditErrorCode = "backend_unavailable"
	auditErrInternal           AuditErrorCode = "internal_error"
)

// auditTarget identifies the record an event is about.
type auditTarget struct {
	subject        string
	purpose        Purpose
	verificationID string
}

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	target auditTarget,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := audit.Event{
		Timestamp:      e.now().UTC(),
		EventType:      eventType,
		Subject:        target.subject,
		Purpose:        string(target.purpose),
		VerificationID: target.verificationID,
		IP:             ClientIPFromContext(ctx),
		CallerID:       CallerIDFromContext(ctx),
		Success:        success,
		Metadata:       metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrInvalidSubject):
		return auditErrInvalidSubject
	case errors.Is(err, ErrInvalidCodeFormat):
		return auditErrInvalidCodeFormat
	case errors.Is(err, ErrUnknownPurpose):
		return auditErrUnknownPurpose
	case errors.Is(err, ErrInvalidChannel):
		return auditErrInvalidChannel
	case errors.Is(err, ErrValidation):
		return auditErrValidation
	case errors.Is(err, ErrRateLimited):
		return auditErrRateLimited
	case errors.Is(err, ErrCooldownActive):
		return auditErrCooldownActive
	case errors.Is(err, ErrResendExhausted):
		return auditErrResendExhausted
	case errors.Is(err, ErrLockedOut):
		return auditErrLockedOut
	case errors.Is(err, ErrAlreadyVerified):
		return auditErrAlreadyVerified
	case errors.Is(err, ErrExpired):
		return auditErrExpired
	case errors.Is(err, ErrSuperseded):
		return auditErrSuperseded
	case errors.Is(err, ErrInvalidCode):
		return auditErrInvalidCode
	case errors.Is(err, ErrNotFound):
		return auditErrNotFound
	case errors.Is(err, ErrBackendUnavailable):
		return auditErrBackendUnavailable
	default:
		return auditErrInternal
	}
}
