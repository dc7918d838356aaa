package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	goVerify "github.com/MrEthical07/goVerify"
	"github.com/sirupsen/logrus"
)

const (
	ErrCodeInvalidPayload     = "invalid_payload"
	ErrCodeValidation         = "validation_error"
	ErrCodeUnauthorized       = "unauthorized"
	ErrCodeRateLimited        = "rate_limit_exceeded"
	ErrCodeCooldownActive     = "cooldown_active"
	ErrCodeResendExhausted    = "resend_exhausted"
	ErrCodeLockedOut          = "locked_out"
	ErrCodeNotFound           = "not_found"
	ErrCodeAlreadyVerified    = "already_verified"
	ErrCodeInvalidCode        = "invalid_code"
	ErrCodeExpired            = "expired"
	ErrCodeSuperseded         = "superseded"
	ErrCodeBackendUnavailable = "backend_unavailable"
	ErrCodeInternal           = "internal_server_error"
)

// ErrorResponse is the body of every non-2xx response. Only the hint fields
// relevant to Code are set.
type ErrorResponse struct {
	Code                     string `json:"code"`
	Message                  string `json:"message"`
	RetryAfterSeconds        int    `json:"retryAfterSeconds,omitempty"`
	CooldownRemainingSeconds int    `json:"cooldownRemainingSeconds,omitempty"`
	AttemptsRemaining        *int   `json:"attemptsRemaining,omitempty"`
	InvalidCode              bool   `json:"invalidCode,omitempty"`
	Expired                  bool   `json:"expired,omitempty"`
	LockedOut                bool   `json:"lockedOut,omitempty"`
	Superseded               bool   `json:"superseded,omitempty"`
	AlreadyVerified          bool   `json:"alreadyVerified,omitempty"`
	ResendExhausted          bool   `json:"resendExhausted,omitempty"`
	OfferAlternateChannel    bool   `json:"offerAlternateChannel,omitempty"`
	OfferSupportContact      bool   `json:"offerSupportContact,omitempty"`
	Retryable                bool   `json:"retryable,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func (h *Handler) respondError(w http.ResponseWriter, status int, body ErrorResponse, devErr error) {
	if body.RetryAfterSeconds > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(body.RetryAfterSeconds))
	} else if body.CooldownRemainingSeconds > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(body.CooldownRemainingSeconds))
	}
	respondJSON(w, status, body)

	entry := h.logger.WithFields(logrus.Fields{
		"status": status,
		"code":   body.Code,
	})
	if devErr != nil {
		entry = entry.WithError(devErr)
	}
	if status >= http.StatusInternalServerError {
		entry.Error(body.Message)
		return
	}
	entry.Debug(body.Message)
}

// respondEngineError maps an engine error onto its status code and hint
// fields.
func (h *Handler) respondEngineError(w http.ResponseWriter, err error) {
	var rej *goVerify.RejectionError
	errors.As(err, &rej)

	switch {
	case errors.Is(err, goVerify.ErrValidation):
		h.respondError(w, http.StatusBadRequest, ErrorResponse{
			Code:    ErrCodeValidation,
			Message: err.Error(),
		}, nil)
	case errors.Is(err, goVerify.ErrRateLimited):
		h.respondError(w, http.StatusTooManyRequests, ErrorResponse{
			Code:              ErrCodeRateLimited,
			Message:           "Too many requests",
			RetryAfterSeconds: rej.RetryAfterSeconds(),
		}, nil)
	case errors.Is(err, goVerify.ErrCooldownActive):
		h.respondError(w, http.StatusBadRequest, ErrorResponse{
			Code:                     ErrCodeCooldownActive,
			Message:                  "Resend is not allowed yet",
			CooldownRemainingSeconds: rej.RetryAfterSeconds(),
		}, nil)
	case errors.Is(err, goVerify.ErrResendExhausted):
		body := ErrorResponse{
			Code:            ErrCodeResendExhausted,
			Message:         "No resends remain",
			ResendExhausted: true,
		}
		if rej != nil {
			body.OfferAlternateChannel = rej.Advice.OfferAlternateChannel
			body.OfferSupportContact = rej.Advice.OfferSupportContact
		}
		h.respondError(w, http.StatusConflict, body, nil)
	case errors.Is(err, goVerify.ErrLockedOut):
		h.respondError(w, http.StatusLocked, ErrorResponse{
			Code:              ErrCodeLockedOut,
			Message:           "Verification is locked",
			LockedOut:         true,
			RetryAfterSeconds: rej.RetryAfterSeconds(),
		}, nil)
	case errors.Is(err, goVerify.ErrNotFound):
		h.respondError(w, http.StatusNotFound, ErrorResponse{
			Code:    ErrCodeNotFound,
			Message: "No verification found",
		}, nil)
	case errors.Is(err, goVerify.ErrAlreadyVerified):
		h.respondError(w, http.StatusConflict, ErrorResponse{
			Code:            ErrCodeAlreadyVerified,
			Message:         "Already verified",
			AlreadyVerified: true,
		}, nil)
	case errors.Is(err, goVerify.ErrBackendUnavailable):
		h.respondError(w, http.StatusServiceUnavailable, ErrorResponse{
			Code:      ErrCodeBackendUnavailable,
			Message:   "Verification backend unavailable",
			Retryable: true,
		}, err)
	default:
		h.respondError(w, http.StatusInternalServerError, ErrorResponse{
			Code:    ErrCodeInternal,
			Message: "Internal server error",
		}, err)
	}
}

// respondVerifyOutcome writes a non-success Verify outcome.
func (h *Handler) respondVerifyOutcome(w http.ResponseWriter, res goVerify.VerifyResult) {
	switch res.Outcome {
	case goVerify.OutcomeInvalidCode:
		remaining := res.AttemptsRemaining
		h.respondError(w, http.StatusBadRequest, ErrorResponse{
			Code:                  ErrCodeInvalidCode,
			Message:               "Invalid code",
			InvalidCode:           true,
			AttemptsRemaining:     &remaining,
			LockedOut:             res.Locked,
			OfferAlternateChannel: res.Advice.OfferAlternateChannel,
			OfferSupportContact:   res.Advice.OfferSupportContact,
		}, nil)
	case goVerify.OutcomeExpired:
		h.respondError(w, http.StatusGone, ErrorResponse{
			Code:    ErrCodeExpired,
			Message: "Verification expired",
			Expired: true,
		}, nil)
	case goVerify.OutcomeLockedOut:
		h.respondError(w, http.StatusLocked, ErrorResponse{
			Code:                  ErrCodeLockedOut,
			Message:               "Verification is locked",
			LockedOut:             true,
			RetryAfterSeconds:     retryAfterUntil(h.now(), res.LockedUntil),
			OfferAlternateChannel: res.Advice.OfferAlternateChannel,
			OfferSupportContact:   res.Advice.OfferSupportContact,
		}, nil)
	case goVerify.OutcomeSuperseded:
		h.respondError(w, http.StatusConflict, ErrorResponse{
			Code:       ErrCodeSuperseded,
			Message:    "A newer code was issued",
			Superseded: true,
		}, nil)
	case goVerify.OutcomeAlreadyVerified:
		h.respondEngineError(w, goVerify.ErrAlreadyVerified)
	default:
		h.respondEngineError(w, goVerify.ErrNotFound)
	}
}
