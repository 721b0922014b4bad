package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/hwenwur/oh-my-ddl/cmd/ohmyddl/internal/telemetry"
)

// RouterOptions controls the construction of the HTTP router.
// Registry is required; the other fields have defaults.
type RouterOptions struct {
	Registry      *Registry
	CORSOptions   *cors.Options
	Metrics       *telemetry.ServerMetrics
	Middleware    []func(http.Handler) http.Handler
	HealthHandler http.HandlerFunc
	ExtraRoutes   func(chi.Router)
}

// DefaultCORSOptions allows the bundled web page when it is served from a dev server.
func DefaultCORSOptions() cors.Options {
	return cors.Options{
		AllowedOrigins: []string{
			"http://localhost:5986",
			"http://127.0.0.1:5986",
			"http://localhost:5173",
			"http://127.0.0.1:5173",
		},
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}
}

func defaultHealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// NewRouter mounts the session API under /api and a health check.
func NewRouter(opts RouterOptions) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	if opts.Metrics != nil {
		r.Use(opts.Metrics.Middleware)
	}

	corsCfg := DefaultCORSOptions()
	if opts.CORSOptions != nil {
		corsCfg = *opts.CORSOptions
	}
	r.Use(cors.Handler(corsCfg))

	for _, mw := range opts.Middleware {
		if mw != nil {
			r.Use(mw)
		}
	}

	r.Route("/api", func(api chi.Router) {
		api.Group(func(g chi.Router) {
			g.Use(JSONRequired)
			g.Post("/login", HandleLogin(opts.Registry))
			g.Post("/check_sid", HandleCheckSID(opts.Registry))
			g.Post("/get_unfinish_works", HandleUnfinishedWorks(opts.Registry))
		})
		api.Post("/logout", HandleLogout(opts.Registry))
	})

	healthHandler := opts.HealthHandler
	if healthHandler == nil {
		healthHandler = defaultHealthHandler
	}
	r.Get("/health", healthHandler)

	if opts.ExtraRoutes != nil {
		opts.ExtraRoutes(r)
	}
	return r
}
