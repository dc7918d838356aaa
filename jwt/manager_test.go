package jwt

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"strings"
	"testing"
	"time"

	gjwt "github.com/golang-jwt/jwt/v5"
)

var hsKey = []byte(strings.Repeat("s", 32))

func newEdKeys(t *testing.T) (ed25519.PublicKey, ed25519.PrivateKey) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate ed25519 key: %v", err)
	}
	return pub, priv
}

func sign(t *testing.T, method gjwt.SigningMethod, key interface{}, claims CallerClaims, kid string) string {
	t.Helper()
	tok := gjwt.NewWithClaims(method, claims)
	if kid != "" {
		tok.Header["kid"] = kid
	}
	s, err := tok.SignedString(key)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return s
}

func TestNewManagerValidation(t *testing.T) {
	pub, _ := newEdKeys(t)
	tests := []struct {
		name string
		cfg  Config
	}{
		{"short hs key", Config{SigningMethod: MethodHS256, PrivateKey: []byte("short")}},
		{"unknown method", Config{SigningMethod: "rs256", PrivateKey: hsKey}},
		{"negative leeway", Config{SigningMethod: MethodHS256, PrivateKey: hsKey, Leeway: -time.Second}},
		{"ed25519 without public key", Config{SigningMethod: MethodEd25519}},
		{"kid missing from verify keys", Config{SigningMethod: MethodEd25519, KeyID: "k9", VerifyKeys: map[string][]byte{"k1": pub}}},
		{"empty kid", Config{SigningMethod: MethodEd25519, VerifyKeys: map[string][]byte{" ": pub}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewManager(tt.cfg); err == nil {
				t.Fatal("expected configuration error")
			}
		})
	}
}

func TestHS256RoundTrip(t *testing.T) {
	m, err := NewManager(Config{SigningMethod: MethodHS256, PrivateKey: hsKey, Issuer: "goverify", Audience: "verifications"})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	token, err := m.CreateCaller("svc-checkout", "verify")
	if err != nil {
		t.Fatalf("create caller: %v", err)
	}
	claims, err := m.ParseCaller(token)
	if err != nil {
		t.Fatalf("parse caller: %v", err)
	}
	if claims.Subject != "svc-checkout" || claims.Scope != "verify" {
		t.Fatalf("unexpected claims %+v", claims)
	}

	if _, err := m.CreateCaller("  ", ""); !errors.Is(err, ErrMissingSubject) {
		t.Fatalf("expected ErrMissingSubject, got %v", err)
	}
}

func TestParseCallerRejectsWrongAlgorithm(t *testing.T) {
	pub, _ := newEdKeys(t)
	m, err := NewManager(Config{SigningMethod: MethodEd25519, PublicKey: pub})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	token := sign(t, gjwt.SigningMethodHS256, hsKey, CallerClaims{RegisteredClaims: gjwt.RegisteredClaims{
		Subject:   "svc",
		ExpiresAt: gjwt.NewNumericDate(time.Now().Add(time.Minute)),
	}}, "")
	if _, err := m.ParseCaller(token); err == nil {
		t.Fatal("expected wrong algorithm to be rejected")
	}
}

func TestParseCallerRequiresSubjectAndExpiry(t *testing.T) {
	m, err := NewManager(Config{SigningMethod: MethodHS256, PrivateKey: hsKey})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	noSubject := sign(t, gjwt.SigningMethodHS256, hsKey, CallerClaims{RegisteredClaims: gjwt.RegisteredClaims{
		ExpiresAt: gjwt.NewNumericDate(time.Now().Add(time.Minute)),
	}}, "")
	if _, err := m.ParseCaller(noSubject); !errors.Is(err, ErrMissingSubject) {
		t.Fatalf("expected ErrMissingSubject, got %v", err)
	}

	noExpiry := sign(t, gjwt.SigningMethodHS256, hsKey, CallerClaims{RegisteredClaims: gjwt.RegisteredClaims{
		Subject: "svc",
	}}, "")
	if _, err := m.ParseCaller(noExpiry); err == nil {
		t.Fatal("expected token without exp to fail")
	}
}

func TestParseCallerIssuerAudienceAndLeeway(t *testing.T) {
	pub, priv := newEdKeys(t)
	m, err := NewManager(Config{
		SigningMethod: MethodEd25519,
		PrivateKey:    priv,
		PublicKey:     pub,
		Issuer:        "goverify",
		Audience:      "api",
		Leeway:        30 * time.Second,
	})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	token, err := m.CreateCaller("svc", "")
	if err != nil {
		t.Fatalf("create caller: %v", err)
	}
	if _, err := m.ParseCaller(token); err != nil {
		t.Fatalf("expected valid token to parse: %v", err)
	}

	claims := func(iss, aud string, exp time.Duration) CallerClaims {
		return CallerClaims{RegisteredClaims: gjwt.RegisteredClaims{
			Subject:   "svc",
			Issuer:    iss,
			Audience:  gjwt.ClaimStrings{aud},
			ExpiresAt: gjwt.NewNumericDate(time.Now().Add(exp)),
			IssuedAt:  gjwt.NewNumericDate(time.Now().Add(-time.Minute)),
		}}
	}

	if _, err := m.ParseCaller(sign(t, gjwt.SigningMethodEdDSA, priv, claims("other", "api", time.Minute), "")); err == nil {
		t.Fatal("expected wrong issuer to fail")
	}
	if _, err := m.ParseCaller(sign(t, gjwt.SigningMethodEdDSA, priv, claims("goverify", "other-api", time.Minute), "")); err == nil {
		t.Fatal("expected wrong audience to fail")
	}
	if _, err := m.ParseCaller(sign(t, gjwt.SigningMethodEdDSA, priv, claims("goverify", "api", -15*time.Second), "")); err != nil {
		t.Fatalf("expected token within leeway to pass: %v", err)
	}
	if _, err := m.ParseCaller(sign(t, gjwt.SigningMethodEdDSA, priv, claims("goverify", "api", -2*time.Minute), "")); err == nil {
		t.Fatal("expected expired token to fail")
	}
}

func TestParseCallerFutureIssuedAt(t *testing.T) {
	m, err := NewManager(Config{SigningMethod: MethodHS256, PrivateKey: hsKey, MaxFutureIAT: time.Minute})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	token := sign(t, gjwt.SigningMethodHS256, hsKey, CallerClaims{RegisteredClaims: gjwt.RegisteredClaims{
		Subject:   "svc",
		IssuedAt:  gjwt.NewNumericDate(time.Now().Add(time.Hour)),
		ExpiresAt: gjwt.NewNumericDate(time.Now().Add(2 * time.Hour)),
	}}, "")
	if _, err := m.ParseCaller(token); err == nil {
		t.Fatal("expected far-future iat to fail")
	}
}

func TestParseCallerKeyIDSelection(t *testing.T) {
	pub1, priv1 := newEdKeys(t)
	pub2, _ := newEdKeys(t)
	m, err := NewManager(Config{
		SigningMethod: MethodEd25519,
		PrivateKey:    priv1,
		KeyID:         "k1",
		VerifyKeys:    map[string][]byte{"k1": pub1},
	})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	claims := CallerClaims{RegisteredClaims: gjwt.RegisteredClaims{
		Subject:   "svc",
		ExpiresAt: gjwt.NewNumericDate(time.Now().Add(time.Minute)),
	}}
	if _, err := m.ParseCaller(sign(t, gjwt.SigningMethodEdDSA, priv1, claims, "k2")); err == nil {
		t.Fatal("expected unknown kid failure")
	}
	if _, err := m.ParseCaller(sign(t, gjwt.SigningMethodEdDSA, priv1, claims, "")); err == nil {
		t.Fatal("expected missing kid failure")
	}

	good, err := m.CreateCaller("svc", "")
	if err != nil {
		t.Fatalf("create caller: %v", err)
	}
	if _, err := m.ParseCaller(good); err != nil {
		t.Fatalf("expected known kid token to pass: %v", err)
	}

	other, _ := NewManager(Config{SigningMethod: MethodEd25519, VerifyKeys: map[string][]byte{"k1": pub2}})
	if _, err := other.ParseCaller(good); err == nil {
		t.Fatal("expected parse failure with mismatched key set")
	}
}
