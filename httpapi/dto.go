package httpapi

import (
	"time"

	goVerify "github.com/MrEthical07/goVerify"
)

// IssueRequest is the body of POST /v1/verifications/issue.
type IssueRequest struct {
	Subject string `json:"subject" validate:"required,max=320"`
	Purpose string `json:"purpose" validate:"required,max=64"`
	Channel string `json:"channel,omitempty" validate:"omitempty,oneof=sms email direct"`
}

// ResendRequest is the body of POST /v1/verifications/resend.
type ResendRequest struct {
	Subject string `json:"subject" validate:"required,max=320"`
	Purpose string `json:"purpose" validate:"required,max=64"`
}

// VerifyRequest is the body of POST /v1/verifications/verify.
type VerifyRequest struct {
	Subject string `json:"subject" validate:"required,max=320"`
	Purpose string `json:"purpose" validate:"required,max=64"`
	Code    string `json:"code" validate:"required,max=128"`
}

// StatusQuery is the query string of GET /v1/verifications/status.
type StatusQuery struct {
	Subject string `validate:"required,max=320"`
	Purpose string `validate:"required,max=64"`
}

type IssueResponse struct {
	VerificationID      string    `json:"verificationId"`
	ExpiresAt           time.Time `json:"expiresAt"`
	NextAllowedResendAt time.Time `json:"nextAllowedResendAt"`
	Token               string    `json:"token,omitempty"`
}

type ResendResponse struct {
	VerificationID      string    `json:"verificationId"`
	ExpiresAt           time.Time `json:"expiresAt"`
	NextAllowedResendAt time.Time `json:"nextAllowedResendAt"`
	ResendsRemaining    int       `json:"resendsRemaining"`
	Token               string    `json:"token,omitempty"`
}

type VerifyResponse struct {
	Verified bool `json:"verified"`
}

type StatusResponse struct {
	Status                string     `json:"status"`
	VerificationID        string     `json:"verificationId"`
	Channel               string     `json:"channel"`
	ExpiresAt             time.Time  `json:"expiresAt"`
	AttemptsRemaining     int        `json:"attemptsRemaining"`
	ResendsRemaining      int        `json:"resendsRemaining"`
	NextAllowedResendAt   time.Time  `json:"nextAllowedResendAt"`
	LockedUntil           *time.Time `json:"lockedUntil,omitempty"`
	OfferAlternateChannel bool       `json:"offerAlternateChannel"`
	OfferSupportContact   bool       `json:"offerSupportContact"`
}

type PurposesResponse struct {
	Purposes []string `json:"purposes"`
}

func newStatusResponse(s goVerify.StatusResult) StatusResponse {
	resp := StatusResponse{
		Status:                s.Status.String(),
		VerificationID:        s.VerificationID,
		Channel:               string(s.Channel),
		ExpiresAt:             s.ExpiresAt.UTC(),
		AttemptsRemaining:     s.AttemptsRemaining,
		ResendsRemaining:      s.ResendsRemaining,
		NextAllowedResendAt:   s.NextAllowedResendAt.UTC(),
		OfferAlternateChannel: s.Advice.OfferAlternateChannel,
		OfferSupportContact:   s.Advice.OfferSupportContact,
	}
	if !s.LockedUntil.IsZero() {
		lockedUntil := s.LockedUntil.UTC()
		resp.LockedUntil = &lockedUntil
	}
	return resp
}
