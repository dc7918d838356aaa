package goVerify

import (
	"time"

	"github.com/MrEthical07/goVerify/credstore"
	"github.com/MrEthical07/goVerify/internal/flows"
)

// Purpose selects the policy (subject kind, secret shape, TTL, attempts)
// applied to a verification.
type Purpose string

const (
	PurposePhoneVerification Purpose = "phone_verification"
	PurposeEmailVerification Purpose = "email_verification"
	PurposePasswordReset     Purpose = "password_reset"
	PurposeCSRFToken         Purpose = "csrf_token"
)

// Channel is the delivery path for a freshly issued secret.
type Channel string

const (
	ChannelSMS   Channel = "sms"
	ChannelEmail Channel = "email"
	// ChannelDirect returns the secret to the caller in the issue result
	// instead of handing it to a notifier. Used for anti-forgery tokens.
	ChannelDirect Channel = "direct"
)

// SecretKind is the shape of the generated secret.
type SecretKind uint8

const (
	SecretOTP SecretKind = iota + 1
	SecretToken
)

func (k SecretKind) String() string {
	switch k {
	case SecretOTP:
		return "otp"
	case SecretToken:
		return "token"
	default:
		return "unknown"
	}
}

// Status mirrors the stored record status.
type Status = credstore.Status

const (
	StatusPending    = credstore.StatusPending
	StatusVerified   = credstore.StatusVerified
	StatusExpired    = credstore.StatusExpired
	StatusLocked     = credstore.StatusLocked
	StatusSuperseded = credstore.StatusSuperseded
)

// VerifyOutcome is the tagged result of Verify. Exactly one outcome is
// reported per call.
type VerifyOutcome uint8

const (
	OutcomeNotFound VerifyOutcome = iota + 1
	OutcomeSuccess
	OutcomeInvalidCode
	OutcomeExpired
	OutcomeLockedOut
	OutcomeAlreadyVerified
	OutcomeSuperseded
)

func (o VerifyOutcome) String() string {
	switch o {
	case OutcomeNotFound:
		return "not_found"
	case OutcomeSuccess:
		return "success"
	case OutcomeInvalidCode:
		return "invalid_code"
	case OutcomeExpired:
		return "expired"
	case OutcomeLockedOut:
		return "locked_out"
	case OutcomeAlreadyVerified:
		return "already_verified"
	case OutcomeSuperseded:
		return "superseded"
	default:
		return "unknown"
	}
}

func outcomeFromFlow(o flows.Outcome) VerifyOutcome {
	switch o {
	case flows.OutcomeSuccess:
		return OutcomeSuccess
	case flows.OutcomeInvalidCode:
		return OutcomeInvalidCode
	case flows.OutcomeExpired:
		return OutcomeExpired
	case flows.OutcomeLockedOut:
		return OutcomeLockedOut
	case flows.OutcomeAlreadyVerified:
		return OutcomeAlreadyVerified
	case flows.OutcomeSuperseded:
		return OutcomeSuperseded
	default:
		return OutcomeNotFound
	}
}

// Advice tells the caller to offer a fallback path after repeated failure.
type Advice struct {
	OfferAlternateChannel bool
	OfferSupportContact   bool
}

// Any reports whether any recommendation is set.
func (a Advice) Any() bool {
	return a.OfferAlternateChannel || a.OfferSupportContact
}

// IssueResult is returned by a successful Issue.
type IssueResult struct {
	VerificationID      string
	ExpiresAt           time.Time
	NextAllowedResendAt time.Time
	// Token holds the plaintext secret only for ChannelDirect.
	Token string
}

// ResendResult is returned by a successful Resend.
type ResendResult struct {
	VerificationID      string
	ExpiresAt           time.Time
	NextAllowedResendAt time.Time
	ResendsRemaining    int
	Token               string
}

// VerifyResult reports the outcome of one Verify call.
type VerifyResult struct {
	Outcome           VerifyOutcome
	AttemptsRemaining int
	// Locked is set when the record is locked after this call, including
	// the wrong attempt that reached the ceiling.
	Locked      bool
	LockedUntil time.Time
	Advice      Advice
}

// Verified reports whether this call redeemed the secret.
func (r VerifyResult) Verified() bool {
	return r.Outcome == OutcomeSuccess
}

// Err maps a non-success outcome to its sentinel error, or nil on success.
func (r VerifyResult) Err() error {
	switch r.Outcome {
	case OutcomeSuccess:
		return nil
	case OutcomeInvalidCode:
		return ErrInvalidCode
	case OutcomeExpired:
		return ErrExpired
	case OutcomeLockedOut:
		return ErrLockedOut
	case OutcomeAlreadyVerified:
		return ErrAlreadyVerified
	case OutcomeSuperseded:
		return ErrSuperseded
	default:
		return ErrNotFound
	}
}

// StatusResult is a read-only view of the active record.
type StatusResult struct {
	Status              Status
	VerificationID      string
	Channel             Channel
	ExpiresAt           time.Time
	AttemptsRemaining   int
	ResendsRemaining    int
	NextAllowedResendAt time.Time
	LockedUntil         time.Time
	Advice              Advice
}
