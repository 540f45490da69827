package http

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/safe-speed-service/internal/domain"
	"github.com/couchcryptid/safe-speed-service/internal/service"
)

type identityKey struct{}

// route registers h under pattern with request logging and metrics.
func (s *Server) route(mux *http.ServeMux, pattern string, h http.HandlerFunc) {
	mux.Handle(pattern, s.instrument(pattern, h))
}

func (s *Server) instrument(pattern string, next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next(rec, r)

		elapsed := time.Since(start)
		s.metrics.HTTPRequests.WithLabelValues(pattern, strconv.Itoa(rec.status)).Inc()
		s.metrics.HTTPDuration.WithLabelValues(pattern).Observe(elapsed.Seconds())
		s.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration_ms", elapsed.Milliseconds(),
		)
	})
}

// requireRole resolves the bearer token and rejects callers without one of
// the allowed roles.
func (s *Server) requireRole(allowed []domain.Role, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := s.auth.Current(r.Context(), bearerToken(r))
		if err != nil {
			if errors.Is(err, service.ErrUnauthenticated) {
				writeError(w, http.StatusUnauthorized, "unauthenticated", err.Error())
				return
			}
			s.writeServiceError(w, err)
			return
		}
		if !slices.Contains(allowed, id.Role) {
			writeError(w, http.StatusForbidden, "forbidden", "this action requires the "+string(allowed[0])+" role")
			return
		}
		next(w, r.WithContext(context.WithValue(r.Context(), identityKey{}, id)))
	}
}

func identityFrom(ctx context.Context) domain.Identity {
	id, _ := ctx.Value(identityKey{}).(domain.Identity)
	return id
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(h, "Bearer ")
	if !ok {
		return ""
	}
	return strings.TrimSpace(token)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}
