package httpapi

import (
	"io"
	"net/http"
	"time"

	"github.com/MrEthical07/goVerify/middleware"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

// Options configures the router. The zero value serves unauthenticated
// requests and keys per-caller limits on RemoteAddr.
type Options struct {
	// Callers, when set, requires a bearer caller token on every
	// /v1 request. The token subject becomes the per-caller limit key.
	Callers middleware.CallerParser
	// TrustForwardedFor takes the client IP from X-Forwarded-For.
	TrustForwardedFor bool
	Logger            logrus.FieldLogger
	MaxBodyBytes      int64
	Clock             func() time.Time
}

func (o Options) withDefaults() Options {
	if o.Logger == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		o.Logger = l
	}
	if o.MaxBodyBytes <= 0 {
		o.MaxBodyBytes = defaultMaxBodyBytes
	}
	if o.Clock == nil {
		o.Clock = time.Now
	}
	return o
}

// NewRouter returns a mux router serving /health and the /v1/verifications
// endpoints for svc.
func NewRouter(svc Service, opts Options) *mux.Router {
	opts = opts.withDefaults()
	h := NewHandler(svc, opts)

	router := mux.NewRouter()
	router.HandleFunc("/health", h.Health).Methods(http.MethodGet)

	v1 := router.PathPrefix("/v1/verifications").Subrouter()
	v1.Use(middleware.ClientIP(opts.TrustForwardedFor))
	if opts.Callers != nil {
		v1.Use(middleware.RequireCaller(opts.Callers, h.rejectCaller))
	}

	v1.HandleFunc("/issue", h.Issue).Methods(http.MethodPost)
	v1.HandleFunc("/resend", h.Resend).Methods(http.MethodPost)
	v1.HandleFunc("/verify", h.Verify).Methods(http.MethodPost)
	v1.HandleFunc("/status", h.Status).Methods(http.MethodGet)
	v1.HandleFunc("/purposes", h.Purposes).Methods(http.MethodGet)

	return router
}

func (h *Handler) rejectCaller(w http.ResponseWriter, _ *http.Request, err error) {
	h.respondError(w, http.StatusUnauthorized, ErrorResponse{
		Code:    ErrCodeUnauthorized,
		Message: "Missing or invalid caller token",
	}, err)
}
