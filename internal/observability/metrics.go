package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "safe_speed"

// Metrics holds the Prometheus counters, histograms, and gauges for the service.
type Metrics struct {
	// Speed rule metrics.
	Evaluations   *prometheus.CounterVec // labels: surface, day_period, weather={live,history,supplied,none}
	ComputedSpeed prometheus.Histogram

	// Weather provider metrics.
	WeatherRequests    *prometheus.CounterVec // labels: outcome={success,unavailable,api_error}
	WeatherCache       *prometheus.CounterVec // labels: result={hit,miss}
	WeatherAPIDuration prometheus.Histogram
	WeatherFallbacks   prometheus.Counter
	WeatherEnabled     prometheus.Gauge

	// History metrics.
	HistoryEntries   prometheus.Gauge
	HistoryPublished *prometheus.CounterVec // labels: outcome={success,error}

	StoreErrors *prometheus.CounterVec // labels: op={get,set,update,remove,encode,decode}

	// HTTP API metrics.
	HTTPRequests *prometheus.CounterVec   // labels: route, code
	HTTPDuration *prometheus.HistogramVec // labels: route
}

// NewMetrics creates and registers all service metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(m.collectors()...)
	return m
}

// NewMetricsForTesting creates Metrics without registering them, avoiding
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		Evaluations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "evaluations_total",
			Help:      "Speed rule evaluations by surface, day period, and weather source.",
		}, []string{"surface", "day_period", "weather"}),
		ComputedSpeed: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "computed_max_speed_kph",
			Help:      "Distribution of recommended maximum safe speeds.",
			Buckets:   []float64{20, 30, 40, 50, 60, 70, 80, 90, 100, 120, 150, 200},
		}),
		WeatherRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "weather_requests_total",
			Help:      "Weather provider requests by outcome.",
		}, []string{"outcome"}),
		WeatherCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "weather_cache_total",
			Help:      "Weather cache lookups by result.",
		}, []string{"result"}),
		WeatherAPIDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "weather_api_duration_seconds",
			Help:      "Open-Meteo API request duration in seconds.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}),
		WeatherFallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "weather_fallbacks_total",
			Help:      "Recalculations that used last-known weather from history.",
		}),
		WeatherEnabled: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "weather_enabled",
			Help:      "1 when the external weather provider is enabled, 0 otherwise.",
		}),
		HistoryEntries: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "history_entries",
			Help:      "Number of entries in the speed history after the last write.",
		}),
		HistoryPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "history_published_total",
			Help:      "History entries published to Kafka by outcome.",
		}, []string{"outcome"}),
		StoreErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_errors_total",
			Help:      "Key-value store failures swallowed by the storage facade.",
		}, []string{"op"}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "API requests by route pattern and status code.",
		}, []string{"route", "code"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "API request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.Evaluations,
		m.ComputedSpeed,
		m.WeatherRequests,
		m.WeatherCache,
		m.WeatherAPIDuration,
		m.WeatherFallbacks,
		m.WeatherEnabled,
		m.HistoryEntries,
		m.HistoryPublished,
		m.StoreErrors,
		m.HTTPRequests,
		m.HTTPDuration,
	}
}
