package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/couchcryptid/safe-speed-service/internal/domain"
	"github.com/couchcryptid/safe-speed-service/internal/observability"
	"github.com/couchcryptid/safe-speed-service/internal/service"
	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server exposes the /api/v1 routes plus health, readiness, and metrics.
type Server struct {
	httpServer *http.Server
	speed      *service.SpeedService
	auth       *service.AuthService
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewServer creates the HTTP server. Readiness is reported by the speed
// service's store ping.
func NewServer(addr string, speed *service.SpeedService, auth *service.AuthService, metrics *observability.Metrics, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		speed:   speed,
		auth:    auth,
		metrics: metrics,
		logger:  logger,
	}

	mux.HandleFunc("GET /healthz", sharedobs.LivenessHandler())
	mux.HandleFunc("GET /readyz", sharedobs.ReadinessHandler(speed))
	mux.Handle("GET /metrics", promhttp.Handler())

	anyone := []domain.Role{domain.RoleAdmin, domain.RoleDriver}
	admin := []domain.Role{domain.RoleAdmin}

	s.route(mux, "POST /api/v1/auth/register", s.handleRegister)
	s.route(mux, "POST /api/v1/auth/login", s.handleLogin)
	s.route(mux, "POST /api/v1/auth/logout", s.handleLogout)
	s.route(mux, "GET /api/v1/me", s.requireRole(anyone, s.handleMe))

	s.route(mux, "GET /api/v1/config", s.requireRole(anyone, s.handleGetConfig))
	s.route(mux, "PUT /api/v1/config", s.requireRole(admin, s.handlePutConfig))
	s.route(mux, "DELETE /api/v1/config", s.requireRole(admin, s.handleResetConfig))

	s.route(mux, "POST /api/v1/speed/evaluate", s.requireRole(anyone, s.handleEvaluate))
	s.route(mux, "POST /api/v1/speed/recalculate", s.requireRole(anyone, s.handleRecalculate))

	s.route(mux, "GET /api/v1/history", s.requireRole(anyone, s.handleHistory))
	s.route(mux, "DELETE /api/v1/history", s.requireRole(anyone, s.handleClearHistory))
	s.route(mux, "GET /api/v1/history/verify", s.requireRole(admin, s.handleVerifyHistory))

	s.route(mux, "GET /api/v1/weather", s.requireRole(anyone, s.handleWeather))

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}
