// Package secret generates verification secrets and computes their keyed
// storable hashes.
//
// Plaintext secrets leave this package exactly once, from Generate. Only the
// 32-byte HMAC returned by Hasher.Hash is ever persisted.
package secret

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"math/big"
	"strings"
	"sync"

	"golang.org/x/crypto/hkdf"
)

// Kind selects the shape of a generated secret.
type Kind uint8

const (
	// OTP is a fixed-length numeric code meant to be typed by a human.
	OTP Kind = iota + 1
	// Token is a 256-bit URL-safe random string.
	Token
)

func (k Kind) String() string {
	switch k {
	case OTP:
		return "otp"
	case Token:
		return "token"
	default:
		return "unknown"
	}
}

const (
	MinOTPDigits     = 6
	MaxOTPDigits     = 10
	DefaultOTPDigits = 6
	MinKeyLength     = 32

	tokenBytes = 32
	hkdfSalt   = "goverify/secret-hash/v1"
)

// TokenLength is the encoded length of a Token secret.
var TokenLength = base64.RawURLEncoding.EncodedLen(tokenBytes)

var (
	ErrInvalidDigits = errors.New("otp digits must be between 6 and 10")
	ErrKeyTooShort   = errors.New("hmac key must be at least 32 bytes")
	ErrUnknownKind   = errors.New("unknown secret kind")
)

// Generate returns a fresh plaintext secret of the given kind. digits is
// only consulted for OTP.
func Generate(kind Kind, digits int) (string, error) {
	switch kind {
	case OTP:
		return NewOTP(digits)
	case Token:
		return NewToken()
	default:
		return "", ErrUnknownKind
	}
}

// NewOTP draws digits uniformly distributed decimal digits from crypto/rand.
func NewOTP(digits int) (string, error) {
	if digits < MinOTPDigits || digits > MaxOTPDigits {
		return "", ErrInvalidDigits
	}

	var b strings.Builder
	b.Grow(digits)

	max := big.NewInt(10)
	for i := 0; i < digits; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b.WriteByte(byte('0' + n.Int64()))
	}

	otp := b.String()
	if len(otp) != digits {
		return "", fmt.Errorf("invalid otp generation length")
	}
	return otp, nil
}

// NewToken returns 32 random bytes encoded base64url without padding.
func NewToken() (string, error) {
	var raw [tokenBytes]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw[:]), nil
}

// WellFormed reports whether presented has the exact shape a secret of kind
// would have. It lets callers reject garbage without consuming an attempt.
func WellFormed(kind Kind, digits int, presented string) bool {
	switch kind {
	case OTP:
		if len(presented) != digits {
			return false
		}
		for i := 0; i < len(presented); i++ {
			if presented[i] < '0' || presented[i] > '9' {
				return false
			}
		}
		return true
	case Token:
		if len(presented) != TokenLength {
			return false
		}
		_, err := base64.RawURLEncoding.DecodeString(presented)
		return err == nil
	default:
		return false
	}
}

// Hasher computes HMAC-SHA256 digests keyed per purpose. Purpose keys are
// derived from the master key with HKDF-SHA256 and cached.
type Hasher struct {
	master []byte
	keys   sync.Map // purpose -> []byte
}

// NewHasher copies key and returns a Hasher. key must hold at least
// MinKeyLength bytes.
func NewHasher(key []byte) (*Hasher, error) {
	if len(key) < MinKeyLength {
		return nil, ErrKeyTooShort
	}
	master := make([]byte, len(key))
	copy(master, key)
	return &Hasher{master: master}, nil
}

// Hash binds plaintext to the record it was issued for. A digest computed
// for one verification id or subject never matches another.
func (h *Hasher) Hash(purpose, verificationID, subject, plaintext string) ([32]byte, error) {
	var out [32]byte
	key, err := h.purposeKey(purpose)
	if err != nil {
		return out, err
	}

	mac := hmac.New(sha256.New, key)
	for _, part := range []string{purpose, verificationID, subject, plaintext} {
		_, _ = mac.Write([]byte(part))
		_, _ = mac.Write([]byte{0})
	}
	copy(out[:], mac.Sum(nil))
	return out, nil
}

func (h *Hasher) purposeKey(purpose string) ([]byte, error) {
	if cached, ok := h.keys.Load(purpose); ok {
		return cached.([]byte), nil
	}

	key := make([]byte, 32)
	r := hkdf.New(sha256.New, h.master, []byte(hkdfSalt), []byte("purpose:"+purpose))
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, err
	}
	actual, _ := h.keys.LoadOrStore(purpose, key)
	return actual.([]byte), nil
}

// Equal compares two digests in constant time.
func Equal(a, b [32]byte) bool {
	return subtle.ConstantTimeCompare(a[:], b[:]) == 1
}
