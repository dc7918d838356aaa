package goVerify

import (
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/goVerify/identifier"
	"github.com/MrEthical07/goVerify/internal/backoff"
	"github.com/MrEthical07/goVerify/internal/secret"
)

// Config is the complete engine policy. It is copied into the Builder and
// never read from globals.
type Config struct {
	Secret    SecretConfig
	Phone     PhoneConfig
	Purposes  map[Purpose]PurposePolicy
	Backoff   BackoffConfig
	Lockout   LockoutConfig
	RateLimit RateLimitConfig
	Store     StoreConfig
	Backend   BackendConfig
	Notifier  NotifierConfig
	Audit     AuditConfig
	Metrics   MetricsConfig
	Security  SecurityConfig
}

/*
====================================
SECRET & SUBJECT CONFIG
====================================
*/

// SecretConfig holds the server-side HMAC key. Secrets are stored only as
// HMAC digests under a per-purpose key derived from Key.
type SecretConfig struct {
	Key []byte
}

// PhoneConfig controls phone normalization.
type PhoneConfig struct {
	// DefaultCountryCode is prefixed to national 10-digit numbers.
	DefaultCountryCode string
}

// PurposePolicy is the per-purpose verification policy.
type PurposePolicy struct {
	SubjectKind     identifier.Kind
	Secret          SecretKind
	OTPDigits       int
	TTL             time.Duration
	MaxAttempts     int
	LockDuration    time.Duration
	DefaultChannel  Channel
	AllowedChannels []Channel
}

func (p PurposePolicy) allows(ch Channel) bool {
	for _, allowed := range p.AllowedChannels {
		if allowed == ch {
			return true
		}
	}
	return false
}

// channelSubjectKind is the only subject kind a channel can deliver to. A
// direct channel hands the secret to the caller, so it must never carry a
// proof-of-possession code for a phone or mailbox.
func channelSubjectKind(ch Channel) identifier.Kind {
	switch ch {
	case ChannelSMS:
		return identifier.Phone
	case ChannelEmail:
		return identifier.Email
	default:
		return identifier.Principal
	}
}

func (p PurposePolicy) secretKind() secret.Kind {
	if p.Secret == SecretToken {
		return secret.Token
	}
	return secret.OTP
}

/*
====================================
RESEND & LOCKOUT CONFIG
====================================
*/

// BackoffConfig is the resend cooldown schedule shared by every purpose.
type BackoffConfig struct {
	Schedule   []time.Duration
	MaxResends int
}

// LockoutConfig controls the lockout history used by the alternate channel
// advisor.
type LockoutConfig struct {
	HistoryEnabled   bool
	HistoryWindow    time.Duration
	AdvisorThreshold int
}

/*
====================================
RATE LIMIT CONFIG
====================================
*/

// ActionLimit is a per-subject and a per-caller ceiling over one window.
// A zero limit disables that ceiling.
type ActionLimit struct {
	SubjectLimit int
	CallerLimit  int
	Window       time.Duration
}

// RateLimitConfig configures request ceilings. Send is shared by Issue and
// Resend.
type RateLimitConfig struct {
	Enabled     bool
	RedisPrefix string
	Send        ActionLimit
	Verify      ActionLimit
}

/*
====================================
BACKEND CONFIG
====================================
*/

// StoreConfig configures the default Redis record store.
type StoreConfig struct {
	RedisPrefix string
	// RecordRetention keeps terminal records readable after expiry so Status
	// and Verify can report them.
	RecordRetention time.Duration
}

// BackendConfig bounds every store and limiter call.
type BackendConfig struct {
	Timeout    time.Duration
	RetryDelay time.Duration
}

// NotifierConfig bounds the single delivery attempt.
type NotifierConfig struct {
	Timeout time.Duration
}

// AuditConfig configures the async audit dispatcher.
type AuditConfig struct {
	Enabled     bool
	BufferSize  int
	DropIfFull  bool
	SinkTimeout time.Duration
}

// MetricsConfig enables in-process counters and the verify latency
// histogram.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

// SecurityConfig holds deployment hardening switches.
type SecurityConfig struct {
	// ProductionMode turns recommended settings into hard requirements.
	ProductionMode bool
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns the built-in policy. Secret.Key is left empty and
// must be supplied.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		Phone: PhoneConfig{
			DefaultCountryCode: identifier.DefaultCountryCode,
		},
		Purposes: defaultPurposes(),
		Backoff: BackoffConfig{
			Schedule:   append([]time.Duration(nil), backoff.DefaultSchedule...),
			MaxResends: backoff.DefaultMaxResends,
		},
		Lockout: LockoutConfig{
			HistoryEnabled:   true,
			HistoryWindow:    24 * time.Hour,
			AdvisorThreshold: 2,
		},
		RateLimit: RateLimitConfig{
			Enabled:     true,
			RedisPrefix: "gvr",
			Send: ActionLimit{
				SubjectLimit: 10,
				CallerLimit:  50,
				Window:       time.Hour,
			},
			Verify: ActionLimit{
				SubjectLimit: 20,
				CallerLimit:  100,
				Window:       15 * time.Minute,
			},
		},
		Store: StoreConfig{
			RedisPrefix:     "gvrec",
			RecordRetention: 24 * time.Hour,
		},
		Backend: BackendConfig{
			Timeout:    2 * time.Second,
			RetryDelay: 50 * time.Millisecond,
		},
		Notifier: NotifierConfig{
			Timeout: 5 * time.Second,
		},
		Audit: AuditConfig{
			Enabled:     false,
			BufferSize:  1024,
			DropIfFull:  true,
			SinkTimeout: 2 * time.Second,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
	}
}

func defaultPurposes() map[Purpose]PurposePolicy {
	return map[Purpose]PurposePolicy{
		PurposePhoneVerification: {
			SubjectKind:     identifier.Phone,
			Secret:          SecretOTP,
			OTPDigits:       secret.DefaultOTPDigits,
			TTL:             10 * time.Minute,
			MaxAttempts:     3,
			LockDuration:    15 * time.Minute,
			DefaultChannel:  ChannelSMS,
			AllowedChannels: []Channel{ChannelSMS},
		},
		PurposeEmailVerification: {
			SubjectKind:     identifier.Email,
			Secret:          SecretOTP,
			OTPDigits:       secret.DefaultOTPDigits,
			TTL:             15 * time.Minute,
			MaxAttempts:     5,
			LockDuration:    15 * time.Minute,
			DefaultChannel:  ChannelEmail,
			AllowedChannels: []Channel{ChannelEmail},
		},
		PurposePasswordReset: {
			SubjectKind:     identifier.Email,
			Secret:          SecretToken,
			TTL:             15 * time.Minute,
			MaxAttempts:     5,
			LockDuration:    15 * time.Minute,
			DefaultChannel:  ChannelEmail,
			AllowedChannels: []Channel{ChannelEmail},
		},
		PurposeCSRFToken: {
			SubjectKind:     identifier.Principal,
			Secret:          SecretToken,
			TTL:             time.Hour,
			MaxAttempts:     3,
			LockDuration:    5 * time.Minute,
			DefaultChannel:  ChannelDirect,
			AllowedChannels: []Channel{ChannelDirect},
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.Secret.Key = cloneBytes(cfg.Secret.Key)
	out.Backoff.Schedule = append([]time.Duration(nil), cfg.Backoff.Schedule...)
	if cfg.Purposes != nil {
		out.Purposes = make(map[Purpose]PurposePolicy, len(cfg.Purposes))
		for name, p := range cfg.Purposes {
			p.AllowedChannels = append([]Channel(nil), p.AllowedChannels...)
			out.Purposes[name] = p
		}
	}
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate returns the first configuration error found. The Builder calls
// it before constructing an Engine.
func (c *Config) Validate() error {
	// Secret
	if len(c.Secret.Key) < secret.MinKeyLength {
		return fmt.Errorf("Secret Key must be at least %d bytes", secret.MinKeyLength)
	}

	// Phone
	if _, err := identifier.New(c.Phone.DefaultCountryCode); err != nil {
		return errors.New("Phone DefaultCountryCode must be 1-3 digits without a leading zero")
	}

	// Purposes
	if len(c.Purposes) == 0 {
		return errors.New("at least one Purpose must be configured")
	}
	for name, p := range c.Purposes {
		if err := validatePurpose(name, p); err != nil {
			return err
		}
	}

	// Backoff
	if err := backoff.Validate(c.Backoff.Schedule, c.Backoff.MaxResends); err != nil {
		return fmt.Errorf("Backoff: %w", err)
	}

	// Lockout
	if c.Lockout.HistoryEnabled {
		if c.Lockout.HistoryWindow <= 0 {
			return errors.New("Lockout HistoryWindow must be > 0 when HistoryEnabled is true")
		}
		if c.Lockout.AdvisorThreshold <= 0 {
			return errors.New("Lockout AdvisorThreshold must be > 0 when HistoryEnabled is true")
		}
	}

	// Rate limits
	if c.RateLimit.Enabled {
		if c.RateLimit.RedisPrefix == "" {
			return errors.New("RateLimit RedisPrefix must not be empty")
		}
		for name, l := range map[string]ActionLimit{"Send": c.RateLimit.Send, "Verify": c.RateLimit.Verify} {
			if l.SubjectLimit < 0 || l.CallerLimit < 0 {
				return fmt.Errorf("RateLimit %s limits must be >= 0", name)
			}
			if (l.SubjectLimit > 0 || l.CallerLimit > 0) && l.Window <= 0 {
				return fmt.Errorf("RateLimit %s Window must be > 0", name)
			}
		}
	}

	// Store
	if c.Store.RedisPrefix == "" {
		return errors.New("Store RedisPrefix must not be empty")
	}
	if c.Store.RecordRetention < 0 {
		return errors.New("Store RecordRetention must be >= 0")
	}

	// Backend
	if c.Backend.Timeout <= 0 {
		return errors.New("Backend Timeout must be > 0")
	}
	if c.Backend.RetryDelay < 0 || c.Backend.RetryDelay >= c.Backend.Timeout {
		return errors.New("Backend RetryDelay must be >= 0 and < Timeout")
	}
	if c.Notifier.Timeout <= 0 {
		return errors.New("Notifier Timeout must be > 0")
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when Audit is enabled")
	}
	if c.Audit.SinkTimeout < 0 {
		return errors.New("Audit SinkTimeout must be >= 0")
	}

	if c.Security.ProductionMode {
		if !c.RateLimit.Enabled {
			return errors.New("RateLimit must be enabled in ProductionMode")
		}
		if c.RateLimit.Send.CallerLimit <= 0 || c.RateLimit.Verify.CallerLimit <= 0 {
			return errors.New("per-caller rate limits are required in ProductionMode")
		}
		if !c.Audit.Enabled {
			return errors.New("Audit must be enabled in ProductionMode")
		}
		for name, p := range c.Purposes {
			if p.Secret == SecretOTP && p.MaxAttempts > 5 {
				return fmt.Errorf("Purpose %q MaxAttempts must be <= 5 for OTP secrets in ProductionMode", name)
			}
		}
	}

	return nil
}

func validatePurpose(name Purpose, p PurposePolicy) error {
	if name == "" {
		return errors.New("Purpose name must not be empty")
	}
	switch p.SubjectKind {
	case identifier.Phone, identifier.Email, identifier.Principal:
	default:
		return fmt.Errorf("Purpose %q SubjectKind is invalid", name)
	}
	switch p.Secret {
	case SecretOTP:
		if p.OTPDigits < secret.MinOTPDigits || p.OTPDigits > secret.MaxOTPDigits {
			return fmt.Errorf("Purpose %q OTPDigits must be between %d and %d", name, secret.MinOTPDigits, secret.MaxOTPDigits)
		}
	case SecretToken:
	default:
		return fmt.Errorf("Purpose %q Secret kind is invalid", name)
	}
	if p.TTL <= 0 {
		return fmt.Errorf("Purpose %q TTL must be > 0", name)
	}
	if p.MaxAttempts <= 0 {
		return fmt.Errorf("Purpose %q MaxAttempts must be > 0", name)
	}
	if p.LockDuration < 0 {
		return fmt.Errorf("Purpose %q LockDuration must be >= 0", name)
	}
	if len(p.AllowedChannels) == 0 {
		return fmt.Errorf("Purpose %q must allow at least one channel", name)
	}
	for _, ch := range p.AllowedChannels {
		switch ch {
		case ChannelSMS, ChannelEmail, ChannelDirect:
		default:
			return fmt.Errorf("Purpose %q channel %q is invalid", name, ch)
		}
		if channelSubjectKind(ch) != p.SubjectKind {
			return fmt.Errorf("Purpose %q channel %q cannot deliver to %s subjects", name, ch, p.SubjectKind)
		}
	}
	if !p.allows(p.DefaultChannel) {
		return fmt.Errorf("Purpose %q DefaultChannel must be one of AllowedChannels", name)
	}
	return nil
}
