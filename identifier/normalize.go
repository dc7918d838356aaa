package identifier

import (
	"errors"
	"net/mail"
	"strings"
	"unicode"
)

// Kind selects the normalization rules applied to a raw subject.
type Kind uint8

const (
	// Phone subjects are canonicalized to +<countrycode><digits>.
	Phone Kind = iota + 1
	// Email subjects are trimmed and lowercased.
	Email
	// Principal subjects are opaque session or account ids, kept case-sensitive.
	Principal
)

// String returns the lowercase kind name used in config and audit metadata.
func (k Kind) String() string {
	switch k {
	case Phone:
		return "phone"
	case Email:
		return "email"
	case Principal:
		return "principal"
	default:
		return "unknown"
	}
}

// ParseKind maps a config string back to a Kind.
func ParseKind(s string) (Kind, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "phone":
		return Phone, true
	case "email":
		return Email, true
	case "principal":
		return Principal, true
	default:
		return 0, false
	}
}

var (
	ErrInvalidPhone     = errors.New("invalid phone number")
	ErrInvalidEmail     = errors.New("invalid email address")
	ErrInvalidPrincipal = errors.New("invalid principal identifier")
	ErrUnknownKind      = errors.New("unknown identifier kind")
)

const (
	// DefaultCountryCode is prepended to bare 10-digit national numbers.
	DefaultCountryCode = "1"

	nationalDigits     = 10
	minE164Digits      = 8
	maxE164Digits      = 15
	maxPrincipalLength = 256
)

// Normalizer holds the locale settings used for phone numbers. The zero value
// uses DefaultCountryCode.
type Normalizer struct {
	CountryCode string
}

// New returns a Normalizer for the given default country calling code
// (digits only, e.g. "1" or "44").
func New(countryCode string) (*Normalizer, error) {
	cc := strings.TrimPrefix(strings.TrimSpace(countryCode), "+")
	if cc == "" {
		cc = DefaultCountryCode
	}
	if len(cc) > 3 || !allDigits(cc) || cc[0] == '0' {
		return nil, errors.New("country code must be 1-3 digits without a leading zero")
	}
	return &Normalizer{CountryCode: cc}, nil
}

// Normalize canonicalizes raw according to kind.
func (n *Normalizer) Normalize(raw string, kind Kind) (string, error) {
	switch kind {
	case Phone:
		return n.Phone(raw)
	case Email:
		return NormalizeEmail(raw)
	case Principal:
		return NormalizePrincipal(raw)
	default:
		return "", ErrUnknownKind
	}
}

// Phone canonicalizes a phone number. Input that already carries a leading
// '+' is treated as international; anything else is treated as a national
// number in the configured country, optionally already prefixed with it.
func (n *Normalizer) Phone(raw string) (string, error) {
	cc := DefaultCountryCode
	if n != nil && n.CountryCode != "" {
		cc = n.CountryCode
	}

	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", ErrInvalidPhone
	}

	var b strings.Builder
	b.Grow(len(trimmed))
	for _, r := range trimmed {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '+' || r == '(' || r == ')' || r == '-' || r == '.' || r == ' ':
		default:
			return "", ErrInvalidPhone
		}
	}
	digits := b.String()

	if strings.HasPrefix(trimmed, "+") {
		if strings.Count(trimmed, "+") != 1 {
			return "", ErrInvalidPhone
		}
		if len(digits) < minE164Digits || len(digits) > maxE164Digits || digits[0] == '0' {
			return "", ErrInvalidPhone
		}
		return "+" + digits, nil
	}
	if strings.Contains(trimmed, "+") {
		return "", ErrInvalidPhone
	}

	switch {
	case len(digits) == nationalDigits:
		return "+" + cc + digits, nil
	case len(digits) == len(cc)+nationalDigits && strings.HasPrefix(digits, cc):
		return "+" + digits, nil
	default:
		return "", ErrInvalidPhone
	}
}

// NormalizePhone canonicalizes raw with DefaultCountryCode.
func NormalizePhone(raw string) (string, error) {
	return (&Normalizer{}).Phone(raw)
}

// NormalizeEmail lowercases and trims raw and checks the basic address shape:
// a single '@', a non-empty local part and a dotted domain.
func NormalizeEmail(raw string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(raw))
	if email == "" || strings.Count(email, "@") != 1 {
		return "", ErrInvalidEmail
	}
	for _, r := range email {
		if unicode.IsSpace(r) || unicode.IsControl(r) {
			return "", ErrInvalidEmail
		}
	}

	at := strings.IndexByte(email, '@')
	local, domain := email[:at], email[at+1:]
	if local == "" || !strings.Contains(domain, ".") {
		return "", ErrInvalidEmail
	}
	for _, label := range strings.Split(domain, ".") {
		if label == "" {
			return "", ErrInvalidEmail
		}
	}

	// Reject display-name forms and anything net/mail would rewrite.
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", ErrInvalidEmail
	}
	return email, nil
}

// NormalizePrincipal trims raw and rejects empty, oversized or
// control-character ids.
func NormalizePrincipal(raw string) (string, error) {
	p := strings.TrimSpace(raw)
	if p == "" || len(p) > maxPrincipalLength {
		return "", ErrInvalidPrincipal
	}
	for _, r := range p {
		if unicode.IsControl(r) {
			return "", ErrInvalidPrincipal
		}
	}
	return p, nil
}

func allDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
