package jwt

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SigningMethod selects the algorithm caller tokens are signed with.
type SigningMethod string

const (
	MethodHS256   SigningMethod = "hs256"
	MethodEd25519 SigningMethod = "ed25519"
)

var (
	ErrMissingSubject = errors.New("caller token has no subject")
	ErrFutureIssuedAt = errors.New("caller token iat too far in the future")
	ErrUnknownKeyID   = errors.New("unknown kid")
	ErrMissingKeyID   = errors.New("missing kid")
)

// Config describes how caller tokens are signed and checked.
//
// HS256 uses PrivateKey as the shared secret for both directions. Ed25519
// verifies with PublicKey, or with VerifyKeys selected by the kid header.
type Config struct {
	SigningMethod SigningMethod
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Audience      string
	TokenTTL      time.Duration
	Leeway        time.Duration
	RequireIAT    bool
	MaxFutureIAT  time.Duration
	KeyID         string
	VerifyKeys    map[string][]byte
}

// Manager signs and parses caller tokens. The token subject becomes the
// caller id used for per-caller rate limiting.
type Manager struct {
	config Config
	now    func() time.Time
}

// CallerClaims are the claims of a caller token.
type CallerClaims struct {
	Scope string `json:"scope,omitempty"`
	jwt.RegisteredClaims
}

// NewManager validates cfg and returns a Manager.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.TokenTTL == 0 {
		cfg.TokenTTL = 15 * time.Minute
	}
	if cfg.TokenTTL < 0 {
		return nil, errors.New("invalid TTL configuration")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}
	if cfg.MaxFutureIAT == 0 {
		cfg.MaxFutureIAT = 10 * time.Minute
	}
	if cfg.MaxFutureIAT < 0 || cfg.MaxFutureIAT > 24*time.Hour {
		return nil, errors.New("invalid MaxFutureIAT configuration")
	}
	cfg.KeyID = strings.TrimSpace(cfg.KeyID)

	switch cfg.SigningMethod {
	case MethodHS256:
		if len(cfg.PrivateKey) < 32 {
			return nil, errors.New("hs256 requires a key of at least 32 bytes")
		}
	case MethodEd25519:
		if len(cfg.PrivateKey) > 0 {
			if _, err := parseEdPrivateKey(cfg.PrivateKey); err != nil {
				return nil, err
			}
		}
		if len(cfg.PublicKey) > 0 {
			if _, err := parseEdPublicKey(cfg.PublicKey); err != nil {
				return nil, err
			}
		}
		if len(cfg.VerifyKeys) == 0 && len(cfg.PublicKey) == 0 {
			return nil, errors.New("ed25519 requires public key or verify key set")
		}
		for kid, key := range cfg.VerifyKeys {
			if strings.TrimSpace(kid) == "" {
				return nil, errors.New("verify key map contains empty kid")
			}
			if _, err := parseEdPublicKey(key); err != nil {
				return nil, fmt.Errorf("invalid ed25519 verify key for kid %q: %w", kid, err)
			}
		}
	default:
		return nil, errors.New("unsupported signing method")
	}
	if cfg.KeyID != "" && len(cfg.VerifyKeys) > 0 {
		if _, ok := cfg.VerifyKeys[cfg.KeyID]; !ok {
			return nil, errors.New("KeyID is not present in VerifyKeys")
		}
	}

	return &Manager{config: cfg, now: time.Now}, nil
}

// CreateCaller signs a token for callerID. Services that front the API use
// it to mint their own credentials; tests and the load generator use it too.
func (j *Manager) CreateCaller(callerID, scope string) (string, error) {
	callerID = strings.TrimSpace(callerID)
	if callerID == "" {
		return "", ErrMissingSubject
	}

	now := j.now()
	claims := CallerClaims{
		Scope: scope,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   callerID,
			ExpiresAt: jwt.NewNumericDate(now.Add(j.config.TokenTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    j.config.Issuer,
		},
	}
	if j.config.Audience != "" {
		claims.Audience = jwt.ClaimStrings{j.config.Audience}
	}

	token := jwt.NewWithClaims(j.method(), claims)
	if j.config.KeyID != "" {
		token.Header["kid"] = j.config.KeyID
	}

	signKey, err := j.signKey()
	if err != nil {
		return "", err
	}
	return token.SignedString(signKey)
}

// ParseCaller verifies tokenStr and returns its claims. Tokens without a
// subject are rejected since they cannot identify a caller.
func (j *Manager) ParseCaller(tokenStr string) (*CallerClaims, error) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{j.method().Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(j.now),
	}
	if j.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(j.config.Leeway))
	}
	if j.config.RequireIAT {
		options = append(options, jwt.WithIssuedAt())
	}
	if j.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(j.config.Issuer))
	}
	if j.config.Audience != "" {
		options = append(options, jwt.WithAudience(j.config.Audience))
	}

	token, err := jwt.NewParser(options...).ParseWithClaims(tokenStr, &CallerClaims{}, j.keyFunc)
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*CallerClaims)
	if !ok || !token.Valid {
		return nil, jwt.ErrTokenInvalidClaims
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return nil, ErrMissingSubject
	}
	if claims.IssuedAt != nil && claims.IssuedAt.Time.After(j.now().Add(j.config.MaxFutureIAT)) {
		return nil, ErrFutureIssuedAt
	}

	return claims, nil
}

func (j *Manager) keyFunc(t *jwt.Token) (interface{}, error) {
	if t.Method.Alg() != j.method().Alg() {
		return nil, fmt.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
	}

	kid, _ := t.Header["kid"].(string)
	if len(j.config.VerifyKeys) > 0 {
		if kid == "" {
			return nil, ErrMissingKeyID
		}
		key, ok := j.config.VerifyKeys[kid]
		if !ok {
			return nil, ErrUnknownKeyID
		}
		return j.verifyKeyFrom(key)
	}

	if j.config.KeyID != "" {
		if kid == "" {
			return nil, ErrMissingKeyID
		}
		if kid != j.config.KeyID {
			return nil, ErrUnknownKeyID
		}
	}

	if j.config.SigningMethod == MethodHS256 {
		return j.config.PrivateKey, nil
	}
	return parseEdPublicKey(j.config.PublicKey)
}

func (j *Manager) method() jwt.SigningMethod {
	if j.config.SigningMethod == MethodHS256 {
		return jwt.SigningMethodHS256
	}
	return jwt.SigningMethodEdDSA
}

func (j *Manager) signKey() (interface{}, error) {
	if j.config.SigningMethod == MethodHS256 {
		return j.config.PrivateKey, nil
	}
	if len(j.config.PrivateKey) == 0 {
		return nil, errors.New("manager has no signing key")
	}
	return parseEdPrivateKey(j.config.PrivateKey)
}

func (j *Manager) verifyKeyFrom(key []byte) (interface{}, error) {
	if j.config.SigningMethod == MethodHS256 {
		return key, nil
	}
	return parseEdPublicKey(key)
}

func parseEdPrivateKey(key []byte) (ed25519.PrivateKey, error) {
	if len(key) == ed25519.PrivateKeySize {
		return ed25519.PrivateKey(key), nil
	}
	parsed, err := jwt.ParseEdPrivateKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 private key")
	}
	edKey, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, errors.New("invalid ed25519 private key type")
	}
	return edKey, nil
}

func parseEdPublicKey(key []byte) (ed25519.PublicKey, error) {
	if len(key) == ed25519.PublicKeySize {
		return ed25519.PublicKey(key), nil
	}
	parsed, err := jwt.ParseEdPublicKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 public key")
	}
	edKey, ok := parsed.(ed25519.PublicKey)
	if !ok {
		return nil, errors.New("invalid ed25519 public key type")
	}
	return edKey, nil
}
