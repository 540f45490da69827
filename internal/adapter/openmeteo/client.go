package openmeteo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/couchcryptid/safe-speed-service/internal/domain"
	"github.com/couchcryptid/safe-speed-service/internal/observability"
)

// DefaultBaseURL is the public Open-Meteo forecast endpoint.
const DefaultBaseURL = "https://api.open-meteo.com/v1/forecast"

// Client implements domain.WeatherProvider using the Open-Meteo forecast API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewClient creates an Open-Meteo client. An empty baseURL selects DefaultBaseURL.
func NewClient(baseURL string, timeout time.Duration, metrics *observability.Metrics, logger *slog.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		baseURL: baseURL,
		metrics: metrics,
		logger:  logger,
	}
}

// FetchCurrent returns current conditions at lat/lon.
func (c *Client) FetchCurrent(ctx context.Context, lat, lon float64) (domain.WeatherSnapshot, error) {
	params := url.Values{
		"latitude":           {strconv.FormatFloat(lat, 'f', -1, 64)},
		"longitude":          {strconv.FormatFloat(lon, 'f', -1, 64)},
		"current":            {"temperature_2m,precipitation,weather_code,wind_speed_10m"},
		"wind_speed_unit":    {"kmh"},
		"precipitation_unit": {"mm"},
		"timezone":           {"auto"},
	}

	start := time.Now()
	snapshot, err := c.doRequest(ctx, c.baseURL+"?"+params.Encode())
	c.metrics.WeatherAPIDuration.Observe(time.Since(start).Seconds())

	switch {
	case err == nil:
		c.metrics.WeatherRequests.WithLabelValues("success").Inc()
	case domain.IsTransientWeatherError(err):
		c.metrics.WeatherRequests.WithLabelValues("unavailable").Inc()
		c.logger.Warn("weather provider unavailable", "lat", lat, "lon", lon, "error", err)
	default:
		c.metrics.WeatherRequests.WithLabelValues("api_error").Inc()
		c.logger.Error("weather API error", "lat", lat, "lon", lon, "error", err)
	}
	return snapshot, err
}

func (c *Client) doRequest(ctx context.Context, fullURL string) (domain.WeatherSnapshot, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return domain.WeatherSnapshot{}, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.WeatherSnapshot{}, fmt.Errorf("%w: %w", domain.ErrWeatherUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if isTransientStatus(resp.StatusCode) {
			return domain.WeatherSnapshot{}, fmt.Errorf("%w: status %d", domain.ErrWeatherUnavailable, resp.StatusCode)
		}
		return domain.WeatherSnapshot{}, &domain.WeatherAPIError{
			StatusCode: resp.StatusCode,
			Message:    errorReason(body),
		}
	}

	var forecast response
	if err := json.NewDecoder(resp.Body).Decode(&forecast); err != nil {
		return domain.WeatherSnapshot{}, &domain.WeatherAPIError{Message: "decode response: " + err.Error()}
	}
	if forecast.Current == nil {
		return domain.WeatherSnapshot{}, &domain.WeatherAPIError{Message: "invalid response format: missing current weather data"}
	}

	return forecast.Current.snapshot(), nil
}

// isTransientStatus treats throttling and upstream outages as offline conditions.
func isTransientStatus(code int) bool {
	return code == http.StatusTooManyRequests || code == http.StatusRequestTimeout || code >= 500
}

func errorReason(body []byte) string {
	var e errorResponse
	if err := json.Unmarshal(body, &e); err == nil && e.Reason != "" {
		return e.Reason
	}
	if len(body) == 0 {
		return "empty response body"
	}
	return string(body)
}

// Open-Meteo API response types.

type response struct {
	Current *current `json:"current"`
}

type current struct {
	Time          string  `json:"time"`
	Temperature2m float64 `json:"temperature_2m"`
	Precipitation float64 `json:"precipitation"`
	WeatherCode   int     `json:"weather_code"`
	WindSpeed10m  float64 `json:"wind_speed_10m"` // km/h with wind_speed_unit=kmh
}

func (c current) snapshot() domain.WeatherSnapshot {
	return domain.WeatherSnapshot{
		TempC:             c.Temperature2m,
		PrecipitationMm:   c.Precipitation,
		PrecipitationType: domain.DerivePrecipitation(c.Precipitation, c.Temperature2m, c.WeatherCode),
		WindKph:           c.WindSpeed10m,
		TimeISO:           c.Time,
	}
}

type errorResponse struct {
	Error  bool   `json:"error"`
	Reason string `json:"reason"`
}
