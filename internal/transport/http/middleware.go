package http

import (
	"context"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"keygate/internal/apperror"
	"keygate/internal/auth"
	"keygate/internal/observability/metrics"
)

type ctxKey int

const claimsKey ctxKey = iota

var errForbidden = apperror.New(apperror.KindInvalidCredentials, "not allowed for this session")

// requireRole admits requests carrying a bearer session with one of roles.
func (h *Handler) requireRole(roles ...auth.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || token == "" {
				h.respondError(w, apperror.New(apperror.KindInvalidCredentials, "missing session token"))
				return
			}
			claims, err := h.svc.VerifySession(token)
			if err != nil {
				h.respondError(w, err)
				return
			}
			if !slices.Contains(roles, claims.Role) {
				h.respondError(w, errForbidden)
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), claimsKey, claims)))
		})
	}
}

func claimsFrom(ctx context.Context) *auth.Claims {
	c, _ := ctx.Value(claimsKey).(*auth.Claims)
	return c
}

// canAccess reports whether the session may act on username's resources.
func canAccess(ctx context.Context, username string) bool {
	c := claimsFrom(ctx)
	if c == nil {
		return false
	}
	return c.Role == auth.RoleAdmin || c.Username == username
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// WithMetrics records request count and latency labelled by route pattern.
func WithMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		path := r.Pattern
		if path == "" {
			path = "unmatched"
		}
		metrics.HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(rec.status)).Inc()
		metrics.HTTPRequestDurationSeconds.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}
