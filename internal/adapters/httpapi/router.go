package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/kominfo-unma/canva-claim-api/internal/platform/config"
)

type RouterOptions struct {
	// AuthMiddleware guards the session and admin routes. Required.
	AuthMiddleware func(http.Handler) http.Handler

	// SubmitLimiter throttles POST /api/claims per client. Nil disables it.
	SubmitLimiter *RateLimiter

	// AccessLog enables the per-request log line.
	AccessLog bool
	Logger    zerolog.Logger
}

// NewRouter wires routes and middleware and delegates to s.
func NewRouter(s *Server, opts RouterOptions) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	if opts.AccessLog {
		r.Use(RequestLogger(opts.Logger))
	}
	r.Use(middleware.Recoverer)

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		writeError(w, req, http.StatusNotFound, CodeNotFound, "not found", nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		writeError(w, req, http.StatusMethodNotAllowed, CodeBadRequest, "method not allowed", nil)
	})

	r.Get("/healthz", s.Healthz)

	r.Route("/api", func(r chi.Router) {
		r.Get("/view", s.GetView)
		r.Get("/organizations", s.ListOrganizations)

		r.Group(func(r chi.Router) {
			if opts.SubmitLimiter != nil {
				r.Use(opts.SubmitLimiter.Middleware)
			}
			r.Post("/claims", s.SubmitClaim)
		})

		r.Post("/auth/login", s.Login)

		r.Group(func(r chi.Router) {
			r.Use(opts.AuthMiddleware)

			r.Post("/auth/logout", s.Logout)
			r.Get("/auth/session", s.GetSession)

			r.Route(config.NormalizePath(s.AdminPath)+"/claims", func(r chi.Router) {
				r.Get("/", s.ListClaims)
				r.Get("/export", s.ExportClaims)
				r.Delete("/{claimId}", s.DeleteClaim)
			})
		})
	})
	return r
}
