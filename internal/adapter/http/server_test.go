package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	httpadapter "github.com/couchcryptid/safe-speed-service/internal/adapter/http"
	"github.com/couchcryptid/safe-speed-service/internal/config"
	"github.com/couchcryptid/safe-speed-service/internal/domain"
	"github.com/couchcryptid/safe-speed-service/internal/observability"
	"github.com/couchcryptid/safe-speed-service/internal/service"
	"github.com/couchcryptid/safe-speed-service/internal/store"
	"github.com/couchcryptid/safe-speed-service/internal/store/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- mocks ---

type mockWeather struct {
	snapshot domain.WeatherSnapshot
	err      error
}

func (m *mockWeather) FetchCurrent(_ context.Context, _, _ float64) (domain.WeatherSnapshot, error) {
	return m.snapshot, m.err
}

// --- fixture ---

type fixture struct {
	srv     *httpadapter.Server
	backend *memory.Store
	weather *mockWeather
	admin   string
	driver  string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	metrics := observability.NewMetricsForTesting()
	cfg := &config.Config{
		HistoryLimit: 500,
		SessionTTL:   time.Hour,
		DefaultLat:   45.5017,
		DefaultLon:   -73.5673,
	}

	f := &fixture{
		backend: memory.New(),
		weather: &mockWeather{snapshot: domain.WeatherSnapshot{
			TempC:             6,
			PrecipitationMm:   2,
			PrecipitationType: domain.PrecipitationRain,
			WindKph:           45,
			TimeISO:           "2024-04-26T15:00",
		}},
	}
	kv := store.NewKV(f.backend, metrics, logger)
	speed := service.NewSpeedService(kv, f.weather, nil, cfg, metrics, logger)
	auth := service.NewAuthService(kv, cfg, logger)
	f.srv = httpadapter.NewServer(":0", speed, auth, metrics, logger)

	f.admin = f.signUp(t, "admin@example.com", "admin")
	f.driver = f.signUp(t, "driver@example.com", "driver")
	return f
}

// signUp registers an account and returns a session token for it.
func (f *fixture) signUp(t *testing.T, email, role string) string {
	t.Helper()

	rec := f.do(t, http.MethodPost, "/api/v1/auth/register", "",
		map[string]string{"email": email, "password": "secret1", "role": role})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = f.do(t, http.MethodPost, "/api/v1/auth/login", "",
		map[string]string{"email": email, "password": "secret1"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var session service.Session
	decode(t, rec, &session)
	return session.Token
}

func (f *fixture) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, r)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.srv.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v), rec.Body.String())
}

type errorResponse struct {
	Error struct {
		Code    string            `json:"code"`
		Message string            `json:"message"`
		Fields  map[string]string `json:"fields"`
	} `json:"error"`
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body errorResponse
	decode(t, rec, &body)
	return body.Error.Code
}

var gravelNight = map[string]any{
	"baseSpeedLimit":        100,
	"surface":               "gravel",
	"dayPeriod":             "night",
	"enableExternalWeather": true,
}

// --- health ---

func TestHealthzReturns200(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/healthz", "", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	var body map[string]string
	decode(t, rec, &body)
	assert.Equal(t, "healthy", body["status"])
}

func TestReadyzFollowsStore(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/readyz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	require.NoError(t, f.backend.Close())
	rec = f.do(t, http.MethodGet, "/readyz", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var body map[string]string
	decode(t, rec, &body)
	assert.Equal(t, "not ready", body["status"])
	assert.Equal(t, store.ErrClosed.Error(), body["error"])
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/metrics", "", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

// --- auth ---

func TestMe(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/api/v1/me", f.driver, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var id domain.Identity
	decode(t, rec, &id)
	assert.Equal(t, "driver@example.com", id.Email)
	assert.Equal(t, domain.RoleDriver, id.Role)
}

func TestUnauthenticatedRequests(t *testing.T) {
	f := newFixture(t)

	for _, token := range []string{"", "bogus"} {
		rec := f.do(t, http.MethodGet, "/api/v1/config", token, nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, "unauthenticated", errorCode(t, rec))
	}
}

func TestRegisterErrors(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name     string
		body     map[string]string
		wantCode int
		wantErr  string
	}{
		{"bad email", map[string]string{"email": "nope", "password": "secret1"}, http.StatusBadRequest, "invalid_registration"},
		{"short password", map[string]string{"email": "x@example.com", "password": "123"}, http.StatusBadRequest, "invalid_registration"},
		{"duplicate", map[string]string{"email": "DRIVER@example.com", "password": "secret1"}, http.StatusConflict, "email_taken"},
		{"admin gated", map[string]string{"email": "boss@example.com", "password": "secret1", "role": "admin"}, http.StatusForbidden, "admin_signup_disabled"},
		{"unknown role", map[string]string{"email": "y@example.com", "password": "secret1", "role": "owner"}, http.StatusBadRequest, "invalid_role"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(t, http.MethodPost, "/api/v1/auth/register", "", tt.body)
			assert.Equal(t, tt.wantCode, rec.Code)
			assert.Equal(t, tt.wantErr, errorCode(t, rec))
		})
	}
}

func TestLoginWrongPassword(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/api/v1/auth/login", "",
		map[string]string{"email": "driver@example.com", "password": "wrong1"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "invalid_credentials", errorCode(t, rec))
}

func TestLogout(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/api/v1/auth/logout", f.driver, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/v1/me", f.driver, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMalformedBody(t *testing.T) {
	f := newFixture(t)

	req := httptest.NewRequest(http.MethodPut, "/api/v1/config", bytes.NewBufferString(`{"baseSpeedLimit":`))
	req.Header.Set("Authorization", "Bearer "+f.admin)
	rec := httptest.NewRecorder()
	f.srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_body", errorCode(t, rec))
}

// --- config ---

func TestConfigLifecycle(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/api/v1/config", f.driver, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "config_missing", errorCode(t, rec))

	rec = f.do(t, http.MethodPut, "/api/v1/config", f.admin, gravelNight)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = f.do(t, http.MethodGet, "/api/v1/config", f.driver, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var cfg domain.SpeedConfig
	decode(t, rec, &cfg)
	assert.Equal(t, domain.SurfaceGravel, cfg.Surface)
	assert.Equal(t, 100.0, cfg.BaseSpeedLimit)

	rec = f.do(t, http.MethodDelete, "/api/v1/config", f.admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &cfg)
	assert.Equal(t, domain.DefaultSpeedConfig(), cfg)
}

func TestPutConfig_DriverForbidden(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPut, "/api/v1/config", f.driver, gravelNight)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "forbidden", errorCode(t, rec))

	rec = f.do(t, http.MethodDelete, "/api/v1/config", f.driver, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestPutConfig_ValidationFields(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPut, "/api/v1/config", f.admin, map[string]any{
		"baseSpeedLimit": 0,
		"surface":        "ice",
		"dayPeriod":      "night",
	})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	var body errorResponse
	decode(t, rec, &body)
	assert.Equal(t, "validation_failed", body.Error.Code)
	assert.Equal(t, "Speed limit must be a number between 1 and 200 km/h", body.Error.Fields["baseSpeedLimit"])
	assert.Contains(t, body.Error.Fields, "surface")
	assert.NotContains(t, body.Error.Fields, "dayPeriod")
}

// --- speed ---

func TestEvaluate(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/api/v1/speed/evaluate", f.driver, map[string]any{
		"baseSpeedLimit": 100,
		"surface":        "gravel",
		"dayPeriod":      "night",
		"weather": map[string]any{
			"tempC": 6, "precipitationMm": 2, "precipitationType": "rain", "windKph": 45, "timeISO": "2024-04-26T15:00",
		},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var b domain.Breakdown
	decode(t, rec, &b)
	assert.Equal(t, 55.0, b.MaxSafeSpeed)
	require.NotNil(t, b.Wind)
	assert.Equal(t, 0.9, *b.Wind)
}

func TestEvaluate_UnknownSurface(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/api/v1/speed/evaluate", f.driver, map[string]any{
		"baseSpeedLimit": 100, "surface": "ice", "dayPeriod": "day",
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestRecalculate(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/api/v1/speed/recalculate", f.driver, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code, "no config yet")

	rec = f.do(t, http.MethodPut, "/api/v1/config", f.admin, gravelNight)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/v1/speed/recalculate", f.driver, service.RecalcRequest{UseExternalWeather: true})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var res service.RecalcResult
	decode(t, rec, &res)
	assert.Equal(t, 55.0, res.Entry.ComputedMax)
	assert.Equal(t, service.WeatherLive, res.WeatherSource)
	assert.True(t, res.Saved)

	// Empty body means no external weather.
	rec = f.do(t, http.MethodPost, "/api/v1/speed/recalculate", f.driver, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	decode(t, rec, &res)
	assert.Equal(t, 70.0, res.Entry.ComputedMax)
	assert.Equal(t, service.WeatherNone, res.WeatherSource)
}

func TestRecalculate_WeatherAPIErrorSurfaced(t *testing.T) {
	f := newFixture(t)
	require.Equal(t, http.StatusOK, f.do(t, http.MethodPut, "/api/v1/config", f.admin, gravelNight).Code)
	f.weather.err = &domain.WeatherAPIError{StatusCode: 400, Message: "bad coordinates"}

	rec := f.do(t, http.MethodPost, "/api/v1/speed/recalculate", f.driver, service.RecalcRequest{UseExternalWeather: true})
	require.Equal(t, http.StatusOK, rec.Code)

	var res service.RecalcResult
	decode(t, rec, &res)
	assert.Equal(t, "weather API error: status 400: bad coordinates", res.WeatherError)
	assert.Equal(t, 70.0, res.Entry.ComputedMax)
}

// --- history ---

func TestHistoryStatus(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/api/v1/history", f.driver, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var empty map[string]any
	decode(t, rec, &empty)
	assert.Equal(t, []any{}, empty["entries"])
	assert.NotContains(t, empty, "status")

	require.Equal(t, http.StatusOK, f.do(t, http.MethodPut, "/api/v1/config", f.admin, gravelNight).Code)
	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/api/v1/speed/recalculate", f.driver, nil).Code)

	tests := []struct {
		query      string
		wantStatus domain.SafetyStatus
	}{
		{"", domain.StatusSafe}, // default 45 ≤ 70
		{"?currentSpeed=70", domain.StatusSafe},
		{"?currentSpeed=71", domain.StatusCaution},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("query=%q", tt.query), func(t *testing.T) {
			rec := f.do(t, http.MethodGet, "/api/v1/history"+tt.query, f.driver, nil)
			require.Equal(t, http.StatusOK, rec.Code)

			var body struct {
				Entries []domain.SpeedHistoryEntry `json:"entries"`
				Status  domain.SafetyStatus        `json:"status"`
			}
			decode(t, rec, &body)
			require.Len(t, body.Entries, 1)
			assert.Equal(t, tt.wantStatus, body.Status)
		})
	}

	rec = f.do(t, http.MethodGet, "/api/v1/history?currentSpeed=fast", f.driver, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHistoryVerifyAndClear(t *testing.T) {
	f := newFixture(t)
	require.Equal(t, http.StatusOK, f.do(t, http.MethodPut, "/api/v1/config", f.admin, gravelNight).Code)
	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/api/v1/speed/recalculate", f.driver, nil).Code)

	rec := f.do(t, http.MethodGet, "/api/v1/history/verify", f.driver, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/v1/history/verify", f.admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var report service.VerifyReport
	decode(t, rec, &report)
	assert.Equal(t, service.VerifyReport{Total: 1, Mismatches: []service.Mismatch{}}, report)

	rec = f.do(t, http.MethodDelete, "/api/v1/history", f.driver, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/v1/history/verify", f.admin, nil)
	decode(t, rec, &report)
	assert.Equal(t, 0, report.Total)
}

func TestHistoryVerify_UnreadableHistory(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.backend.Set(context.Background(), store.KeyHistory, "{not json"))

	rec := f.do(t, http.MethodGet, "/api/v1/history/verify", f.admin, nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "store_unavailable", errorCode(t, rec))
}

// --- weather ---

func TestWeather(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/api/v1/weather?lat=45.5&lon=-73.5", f.driver, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var snapshot domain.WeatherSnapshot
	decode(t, rec, &snapshot)
	assert.Equal(t, domain.PrecipitationRain, snapshot.PrecipitationType)

	rec = f.do(t, http.MethodGet, "/api/v1/weather?lat=north&lon=-73.5", f.driver, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/v1/weather?lat=91&lon=0", f.driver, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_location", errorCode(t, rec))
}

func TestWeather_ErrorMapping(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
		wantErr  string
	}{
		{"offline", fmt.Errorf("%w: dial tcp: connection refused", domain.ErrWeatherUnavailable), http.StatusServiceUnavailable, "weather_unavailable"},
		{"api error", &domain.WeatherAPIError{StatusCode: 400, Message: "bad"}, http.StatusBadGateway, "weather_api_error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.weather.err = tt.err

			rec := f.do(t, http.MethodGet, "/api/v1/weather?lat=45.5&lon=-73.5", f.driver, nil)
			assert.Equal(t, tt.wantCode, rec.Code)
			assert.Equal(t, tt.wantErr, errorCode(t, rec))
		})
	}
}
