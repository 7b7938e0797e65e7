/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:     Unique ID per request for tracing
  2. RequestLogger: zap line per request (method, path, status, duration)
  3. Recoverer:     Panic recovery (500 instead of crash)
  4. CORS:          Cross-origin requests for the booking frontend

ROUTE GROUPS:
  /healthz                        Liveness + store ping
  /api/window, /api/leaderboard   Public reads
  /api/days/{dayKey}/...          Public day schedule
  /api/me/*                       Authenticated reads
  /api/reservations/*             Authenticated, rate-limited mutations

SEE ALSO:
  - handlers.go: Handler implementations
  - auth.go: Bearer token middleware
  - ratelimit.go: Per-user limiter
*/
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
)

// RouterOptions configures the cross-cutting parts of the router.
type RouterOptions struct {
	JWTSecret       []byte
	CORSOrigins     []string
	RateLimitPerMin int
	Logger          *zap.Logger
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, opts RouterOptions) *chi.Mux {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	origins := opts.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(RequestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	limiter := NewRateLimiter(opts.RateLimitPerMin)

	r.Get("/healthz", h.Health)

	r.Route("/api", func(r chi.Router) {
		r.Get("/window", h.GetWindow)
		r.Get("/leaderboard", h.GetLeaderboard)
		r.Get("/days/{dayKey}/reservations", h.ListDay)

		r.Group(func(r chi.Router) {
			r.Use(Authenticate(opts.JWTSecret))

			r.Route("/me", func(r chi.Router) {
				r.Get("/reservations/{dayKey}", h.GetMyReservation)
				r.Get("/days", h.GetMyDays)
			})

			r.Route("/reservations", func(r chi.Router) {
				r.Use(limiter.Limit)
				r.Post("/", h.CreateReservation)
				r.Put("/{dayKey}", h.EditReservation)
				r.Delete("/{dayKey}", h.DeleteReservation)
			})
		})
	})

	return r
}

// RequestLogger writes one zap line per request once the response is done.
func RequestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			defer func() {
				logger.Info("http request",
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.Int("status", ww.Status()),
					zap.Int("bytes", ww.BytesWritten()),
					zap.Duration("duration", time.Since(start)),
					zap.String("request_id", middleware.GetReqID(r.Context())),
				)
			}()
			next.ServeHTTP(ww, r)
		})
	}
}
