package httpapi

import (
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/code100x/contestauth"
	"github.com/code100x/contestauth/middleware"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
)

// DefaultPrefix is where the auth routes are mounted.
const DefaultPrefix = "/api/v1/user"

// Options configures [NewRouter]. The zero value mounts the API at
// DefaultPrefix with no CORS, no access log and no metrics route. A Prefix of
// "/" also falls back to DefaultPrefix.
type Options struct {
	Prefix string
	// AllowedOrigins enables CORS with credentials for the listed origins.
	AllowedOrigins []string
	// AccessLog receives Apache combined log lines.
	AccessLog io.Writer
	// Metrics is served at GET /metrics when set.
	Metrics http.Handler
	// TrustProxyHeaders takes the client address from X-Forwarded-For and
	// X-Real-IP. Enable only behind a proxy that sets them.
	TrustProxyHeaders bool
	Logger            *slog.Logger
}

// NewRouter returns the HTTP handler for engine.
func NewRouter(engine *contestauth.Engine, opts Options) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "httpapi")

	prefix := strings.TrimRight(opts.Prefix, "/")
	if prefix == "" {
		prefix = DefaultPrefix
	}

	h := &handler{
		engine: engine,
		cfg:    engine.Config(),
		logger: logger,
	}

	r := mux.NewRouter()
	r.NotFoundHandler = http.HandlerFunc(notFound)
	r.MethodNotAllowedHandler = http.HandlerFunc(methodNotAllowed)

	r.HandleFunc("/health", health).Methods(http.MethodGet)
	if opts.Metrics != nil {
		r.Handle("/metrics", opts.Metrics).Methods(http.MethodGet)
	}

	api := r.PathPrefix(prefix).Subrouter()
	api.HandleFunc("/signup", h.signup).Methods(http.MethodPost)
	api.HandleFunc("/verify-otp", h.verifyOTP).Methods(http.MethodPost)
	api.HandleFunc("/resend-otp", h.resendOTP).Methods(http.MethodPost)
	api.HandleFunc("/signin", h.signin).Methods(http.MethodPost)
	api.HandleFunc("/refresh", h.refresh).Methods(http.MethodPost)
	api.HandleFunc("/signout", h.signout).Methods(http.MethodPost)
	api.Handle("/me", middleware.RequireAuth(engine)(http.HandlerFunc(h.me))).Methods(http.MethodGet)
	api.Handle("/admin/ping", middleware.RequireAdmin(engine)(http.HandlerFunc(h.adminPing))).Methods(http.MethodGet)

	var out http.Handler = r
	if len(opts.AllowedOrigins) > 0 {
		out = handlers.CORS(
			handlers.AllowedOrigins(opts.AllowedOrigins),
			handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodOptions}),
			handlers.AllowedHeaders([]string{"Content-Type", "Authorization"}),
			handlers.AllowCredentials(),
		)(out)
	}
	if opts.AccessLog != nil {
		out = handlers.CombinedLoggingHandler(opts.AccessLog, out)
	}
	if opts.TrustProxyHeaders {
		out = handlers.ProxyHeaders(out)
	}
	return handlers.RecoveryHandler(
		handlers.RecoveryLogger(slog.NewLogLogger(logger.Handler(), slog.LevelError)),
	)(out)
}
