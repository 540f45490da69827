package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/couchcryptid/safe-speed-service/internal/domain"
	"github.com/couchcryptid/safe-speed-service/internal/service"
)

const maxBodyBytes = 1 << 20

// decodeJSON reads a JSON body into dst. An empty body leaves dst unchanged
// when allowEmpty is set.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any, allowEmpty bool) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if allowEmpty && errors.Is(err, io.EOF) {
			return true
		}
		writeError(w, http.StatusBadRequest, "invalid_body", "malformed JSON body: "+err.Error())
		return false
	}
	return true
}

// --- auth ---

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role,omitempty"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if !decodeJSON(w, r, &req, false) {
		return
	}

	var role domain.Role
	if req.Role != "" {
		parsed, err := domain.ParseRole(req.Role)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_role", err.Error())
			return
		}
		role = parsed
	}

	id, err := s.auth.Register(r.Context(), service.RegisterRequest{Email: req.Email, Password: req.Password, Role: role})
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, id)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if !decodeJSON(w, r, &req, false) {
		return
	}
	session, err := s.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := s.auth.Logout(r.Context(), bearerToken(r)); err != nil {
		s.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, identityFrom(r.Context()))
}

// --- config ---

// configRequest keeps enum fields as strings so bad values surface as
// per-field validation errors rather than a decode failure.
type configRequest struct {
	BaseSpeedLimit        float64          `json:"baseSpeedLimit"`
	Surface               string           `json:"surface"`
	DayPeriod             string           `json:"dayPeriod"`
	EnableExternalWeather bool             `json:"enableExternalWeather"`
	DefaultLocation       *domain.Location `json:"defaultLocation,omitempty"`
}

func (c configRequest) toConfig() domain.SpeedConfig {
	return domain.SpeedConfig{
		BaseSpeedLimit:        c.BaseSpeedLimit,
		Surface:               domain.Surface(c.Surface),
		DayPeriod:             domain.DayPeriod(c.DayPeriod),
		EnableExternalWeather: c.EnableExternalWeather,
		DefaultLocation:       c.DefaultLocation,
	}
}

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	cfg, ok := s.speed.Config(r.Context())
	if !ok {
		s.writeServiceError(w, service.ErrConfigMissing)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

func (s *Server) handlePutConfig(w http.ResponseWriter, r *http.Request) {
	var req configRequest
	if !decodeJSON(w, r, &req, false) {
		return
	}
	cfg := req.toConfig()
	if err := s.speed.SaveConfig(r.Context(), cfg); err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

func (s *Server) handleResetConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.speed.ResetConfig(r.Context())
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

// --- speed ---

type evaluateRequest struct {
	BaseSpeedLimit float64                 `json:"baseSpeedLimit"`
	Surface        string                  `json:"surface"`
	DayPeriod      string                  `json:"dayPeriod"`
	Weather        *domain.WeatherSnapshot `json:"weather,omitempty"`
}

func (s *Server) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	var req evaluateRequest
	if !decodeJSON(w, r, &req, false) {
		return
	}
	// Range checks apply to stored configs only; the evaluator itself
	// accepts any base speed.
	cfg := domain.SpeedConfig{
		BaseSpeedLimit: domain.MaxBaseSpeedLimit,
		Surface:        domain.Surface(req.Surface),
		DayPeriod:      domain.DayPeriod(req.DayPeriod),
	}
	if err := cfg.Validate(); err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.speed.Evaluate(req.BaseSpeedLimit, cfg.Surface, cfg.DayPeriod, req.Weather))
}

func (s *Server) handleRecalculate(w http.ResponseWriter, r *http.Request) {
	var req service.RecalcRequest
	if !decodeJSON(w, r, &req, true) {
		return
	}
	res, err := s.speed.Recalculate(r.Context(), req)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// --- history ---

type historyResponse struct {
	Entries      []domain.SpeedHistoryEntry `json:"entries"`
	CurrentSpeed float64                    `json:"currentSpeed"`
	Status       domain.SafetyStatus        `json:"status,omitempty"`
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	current := domain.DefaultCurrentSpeed
	if v := r.URL.Query().Get("currentSpeed"); v != "" {
		parsed, err := strconv.ParseFloat(v, 64)
		if err != nil || parsed < 0 {
			writeError(w, http.StatusBadRequest, "invalid_query", "currentSpeed must be a non-negative number")
			return
		}
		current = parsed
	}

	resp := historyResponse{
		Entries:      s.speed.History(r.Context()),
		CurrentSpeed: current,
	}
	if len(resp.Entries) > 0 {
		resp.Status = domain.ClassifySpeed(current, resp.Entries[0].ComputedMax)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleClearHistory(w http.ResponseWriter, r *http.Request) {
	if err := s.speed.ClearHistory(r.Context()); err != nil {
		s.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleVerifyHistory(w http.ResponseWriter, r *http.Request) {
	report, err := s.speed.VerifyHistory(r.Context())
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// --- weather ---

func (s *Server) handleWeather(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	lat, errLat := strconv.ParseFloat(q.Get("lat"), 64)
	lon, errLon := strconv.ParseFloat(q.Get("lon"), 64)
	if errLat != nil || errLon != nil {
		writeError(w, http.StatusBadRequest, "invalid_query", "lat and lon must be numbers")
		return
	}

	snapshot, err := s.speed.Weather(r.Context(), lat, lon)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snapshot)
}
