package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	goVerify "github.com/MrEthical07/goVerify"
	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"
)

const defaultMaxBodyBytes = 4 << 10

var validate = validator.New()

// Service is the engine surface the handlers call. *goVerify.Engine
// satisfies it.
type Service interface {
	Issue(ctx context.Context, subject string, purpose goVerify.Purpose, channel goVerify.Channel) (goVerify.IssueResult, error)
	Resend(ctx context.Context, subject string, purpose goVerify.Purpose) (goVerify.ResendResult, error)
	Verify(ctx context.Context, subject string, purpose goVerify.Purpose, code string) (goVerify.VerifyResult, error)
	Status(ctx context.Context, subject string, purpose goVerify.Purpose) (goVerify.StatusResult, error)
	Purposes() []goVerify.Purpose
}

// Handler serves the verification endpoints.
type Handler struct {
	svc          Service
	logger       logrus.FieldLogger
	maxBodyBytes int64
	now          func() time.Time
}

// NewHandler wires svc into HTTP handlers. See Options for defaults.
func NewHandler(svc Service, opts Options) *Handler {
	opts = opts.withDefaults()
	return &Handler{
		svc:          svc,
		logger:       opts.Logger,
		maxBodyBytes: opts.MaxBodyBytes,
		now:          opts.Clock,
	}
}

// POST /v1/verifications/issue
func (h *Handler) Issue(w http.ResponseWriter, r *http.Request) {
	var req IssueRequest
	if !h.decode(w, r, &req) {
		return
	}

	res, err := h.svc.Issue(r.Context(), req.Subject, goVerify.Purpose(req.Purpose), goVerify.Channel(req.Channel))
	if err != nil {
		h.respondEngineError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, IssueResponse{
		VerificationID:      res.VerificationID,
		ExpiresAt:           res.ExpiresAt.UTC(),
		NextAllowedResendAt: res.NextAllowedResendAt.UTC(),
		Token:               res.Token,
	})
}

// POST /v1/verifications/resend
func (h *Handler) Resend(w http.ResponseWriter, r *http.Request) {
	var req ResendRequest
	if !h.decode(w, r, &req) {
		return
	}

	res, err := h.svc.Resend(r.Context(), req.Subject, goVerify.Purpose(req.Purpose))
	if err != nil {
		h.respondEngineError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, ResendResponse{
		VerificationID:      res.VerificationID,
		ExpiresAt:           res.ExpiresAt.UTC(),
		NextAllowedResendAt: res.NextAllowedResendAt.UTC(),
		ResendsRemaining:    res.ResendsRemaining,
		Token:               res.Token,
	})
}

// POST /v1/verifications/verify
func (h *Handler) Verify(w http.ResponseWriter, r *http.Request) {
	var req VerifyRequest
	if !h.decode(w, r, &req) {
		return
	}

	res, err := h.svc.Verify(r.Context(), req.Subject, goVerify.Purpose(req.Purpose), req.Code)
	if err != nil {
		h.respondEngineError(w, err)
		return
	}
	if !res.Verified() {
		h.respondVerifyOutcome(w, res)
		return
	}

	respondJSON(w, http.StatusOK, VerifyResponse{Verified: true})
}

// GET /v1/verifications/status?subject=&purpose=
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	q := StatusQuery{
		Subject: r.URL.Query().Get("subject"),
		Purpose: r.URL.Query().Get("purpose"),
	}
	if err := validate.Struct(q); err != nil {
		h.respondError(w, http.StatusBadRequest, ErrorResponse{
			Code:    ErrCodeValidation,
			Message: "subject and purpose are required",
		}, err)
		return
	}

	res, err := h.svc.Status(r.Context(), q.Subject, goVerify.Purpose(q.Purpose))
	if err != nil {
		h.respondEngineError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, newStatusResponse(res))
}

// GET /v1/verifications/purposes
func (h *Handler) Purposes(w http.ResponseWriter, _ *http.Request) {
	purposes := h.svc.Purposes()
	out := PurposesResponse{Purposes: make([]string, 0, len(purposes))}
	for _, p := range purposes {
		out.Purposes = append(out.Purposes, string(p))
	}
	respondJSON(w, http.StatusOK, out)
}

// GET /health
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// decode reads a bounded JSON body into dst and validates it. It writes the
// 400 response itself and reports false on failure.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	body := http.MaxBytesReader(w, r.Body, h.maxBodyBytes)
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		h.respondError(w, http.StatusBadRequest, ErrorResponse{
			Code:    ErrCodeInvalidPayload,
			Message: "Invalid JSON payload",
		}, err)
		return false
	}
	if _, err := dec.Token(); err != io.EOF {
		h.respondError(w, http.StatusBadRequest, ErrorResponse{
			Code:    ErrCodeInvalidPayload,
			Message: "Request body must contain a single JSON object",
		}, nil)
		return false
	}

	if err := validate.Struct(dst); err != nil {
		h.respondError(w, http.StatusBadRequest, ErrorResponse{
			Code:    ErrCodeValidation,
			Message: validationMessage(err),
		}, err)
		return false
	}
	return true
}

func validationMessage(err error) string {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok || len(verrs) == 0 {
		return "Invalid request"
	}
	fe := verrs[0]
	return "field " + fe.Field() + " failed " + fe.Tag()
}

func retryAfterUntil(now, until time.Time) int {
	if until.IsZero() || !until.After(now) {
		return 0
	}
	d := until.Sub(now)
	secs := int(d / time.Second)
	if d%time.Second != 0 {
		secs++
	}
	return secs
}
