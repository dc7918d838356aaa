package middleware

import (
	"net"
	"net/http"
	"strings"

	goVerify "github.com/MrEthical07/goVerify"
	"github.com/MrEthical07/goVerify/jwt"
)

// CallerParser verifies a bearer token. *jwt.Manager satisfies it.
type CallerParser interface {
	ParseCaller(token string) (*jwt.CallerClaims, error)
}

// RejectFunc writes the response for a request that failed caller
// authentication.
type RejectFunc func(w http.ResponseWriter, r *http.Request, err error)

// RequireCaller rejects requests without a valid bearer caller token and
// attaches the token subject to the request context as the caller id.
func RequireCaller(parser CallerParser, reject RejectFunc) func(http.Handler) http.Handler {
	if reject == nil {
		reject = func(w http.ResponseWriter, _ *http.Request, _ error) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if parser == nil {
				reject(w, r, ErrNoParser)
				return
			}

			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				reject(w, r, ErrMissingBearer)
				return
			}

			claims, err := parser.ParseCaller(token)
			if err != nil {
				reject(w, r, err)
				return
			}

			ctx := goVerify.WithCallerID(r.Context(), claims.Subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ClientIP attaches the requesting address to the request context. With
// trustForwarded set, the first X-Forwarded-For entry wins over RemoteAddr;
// only enable it behind a proxy that overwrites the header.
func ClientIP(trustForwarded bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := RequestIP(r, trustForwarded)
			if ip != "" {
				r = r.WithContext(goVerify.WithClientIP(r.Context(), ip))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequestIP extracts the client address from r.
func RequestIP(r *http.Request, trustForwarded bool) string {
	if trustForwarded {
		if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
			first, _, _ := strings.Cut(fwd, ",")
			if ip := net.ParseIP(strings.TrimSpace(first)); ip != nil {
				return ip.String()
			}
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	if ip := net.ParseIP(strings.TrimSpace(host)); ip != nil {
		return ip.String()
	}
	return ""
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if len(value) < len(bearer) || !strings.EqualFold(value[:len(bearer)], bearer) {
		return "", false
	}

	token := strings.TrimSpace(value[len(bearer):])
	if token == "" {
		return "", false
	}

	return token, true
}
