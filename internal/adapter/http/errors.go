package http

import (
	"errors"
	"net/http"

	"github.com/couchcryptid/safe-speed-service/internal/domain"
	"github.com/couchcryptid/safe-speed-service/internal/service"
	"github.com/couchcryptid/safe-speed-service/internal/store"
	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
)

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	sharedobs.WriteJSON(w, status, v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, errorBody{Error: errorDetail{Code: code, Message: msg}})
}

// writeServiceError maps service and domain errors onto status codes.
func (s *Server) writeServiceError(w http.ResponseWriter, err error) {
	var verrs domain.ValidationErrors
	if errors.As(err, &verrs) {
		writeJSON(w, http.StatusUnprocessableEntity, errorBody{Error: errorDetail{
			Code:    "validation_failed",
			Message: "speed config is invalid",
			Fields:  verrs,
		}})
		return
	}

	var apiErr *domain.WeatherAPIError
	switch {
	case errors.Is(err, service.ErrConfigMissing):
		writeError(w, http.StatusNotFound, "config_missing", err.Error())
	case errors.Is(err, service.ErrInvalidLocation):
		writeError(w, http.StatusBadRequest, "invalid_location", err.Error())
	case errors.Is(err, service.ErrInvalidEmail), errors.Is(err, service.ErrWeakPassword):
		writeError(w, http.StatusBadRequest, "invalid_registration", err.Error())
	case errors.Is(err, service.ErrEmailTaken):
		writeError(w, http.StatusConflict, "email_taken", err.Error())
	case errors.Is(err, service.ErrAdminSignupDisabled):
		writeError(w, http.StatusForbidden, "admin_signup_disabled", err.Error())
	case errors.Is(err, service.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, "invalid_credentials", err.Error())
	case errors.Is(err, service.ErrUnauthenticated):
		writeError(w, http.StatusUnauthorized, "unauthenticated", err.Error())
	case errors.Is(err, service.ErrWeatherDisabled):
		writeError(w, http.StatusServiceUnavailable, "weather_disabled", err.Error())
	case domain.IsTransientWeatherError(err):
		writeError(w, http.StatusServiceUnavailable, "weather_unavailable", err.Error())
	case errors.As(err, &apiErr):
		writeError(w, http.StatusBadGateway, "weather_api_error", apiErr.Error())
	case errors.Is(err, service.ErrStoreWrite), errors.Is(err, store.ErrUnavailable):
		writeError(w, http.StatusServiceUnavailable, "store_unavailable", err.Error())
	default:
		s.logger.Error("unhandled request error", "error", err)
		writeError(w, http.StatusInternalServerError, "internal", "internal server error")
	}
}
