/*
server.go - HTTP server, routing, and middleware

PURPOSE:
  Wires the chi router: request identity from bearer tokens, role gates
  on the admin surface, and the public health and metrics endpoints.

ROUTES:
  GET  /healthz                      liveness (public)
  GET  /metrics                      Prometheus (public)
  POST /api/student/bookings         reserve meal slots
  GET  /api/student/bookings         booking history
  GET  /api/student/ledger           remaining tokens
  GET  /api/admin/meal-list          unverified bookings for a day/slot
  PUT  /api/admin/verify             mark a slot collected
  POST /api/admin/reset              manual ledger reset
  POST /api/admin/students           register a student
  GET  /api/admin/students           list students

SEE ALSO:
  - handlers.go:      Handler implementations
  - ../auth/jwt.go:   Token parsing
*/
package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/warp/mess-engine/auth"
	"github.com/warp/mess-engine/mess"
)

type ctxKey int

const identityKey ctxKey = iota

// identityFrom returns the authenticated student ID, or "" outside the
// authenticated routes.
func identityFrom(ctx context.Context) string {
	if id, ok := ctx.Value(identityKey).(*auth.Identity); ok {
		return id.StudentID
	}
	return ""
}

func roleFrom(ctx context.Context) mess.Role {
	if id, ok := ctx.Value(identityKey).(*auth.Identity); ok {
		return id.Role
	}
	return ""
}

// NewRouter assembles the full HTTP surface.
func NewRouter(h *Handler, tokens *auth.Tokens, log zerolog.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(log))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/healthz", h.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Use(authenticate(tokens))

		r.Route("/student", func(r chi.Router) {
			r.Post("/bookings", h.handleReserve)
			r.Get("/bookings", h.handleHistory)
			r.Get("/ledger", h.handleLedger)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(requireRole(mess.RoleAdmin))

			r.Get("/meal-list", h.handleMealList)
			r.Put("/verify", h.handleVerify)
			r.Post("/reset", h.handleReset)
			r.Post("/students", h.handleCreateStudent)
			r.Get("/students", h.handleListStudents)
		})
	})

	return r
}

// authenticate parses the bearer token and stores the identity in the
// request context. Requests without a valid token are rejected.
func authenticate(tokens *auth.Tokens) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			raw, found := strings.CutPrefix(header, "Bearer ")
			if !found || raw == "" {
				writeError(w, http.StatusUnauthorized, "missing bearer token", "")
				return
			}

			identity, err := tokens.Parse(raw)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "invalid bearer token", "")
				return
			}

			ctx := context.WithValue(r.Context(), identityKey, identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// requireRole gates a subtree on the authenticated role.
func requireRole(role mess.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if roleFrom(r.Context()) != role {
				writeError(w, http.StatusForbidden, "insufficient privileges", "")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// requestLogger emits one structured line per request.
func requestLogger(log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			log.Info().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Dur("duration", time.Since(start)).
				Str("request_id", middleware.GetReqID(r.Context())).
				Msg("request")
		})
	}
}
