package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
)

// Store backends accepted by STORE_BACKEND.
const (
	StoreMemory   = "memory"
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// Key-value store.
	StoreBackend string
	SQLitePath   string
	PostgresDSN  string

	// Open-Meteo weather provider.
	WeatherEnabled   bool
	WeatherBaseURL   string
	WeatherTimeout   time.Duration
	WeatherCacheSize int
	WeatherCacheTTL  time.Duration

	// History publishing (feature-flagged via KAFKA_ENABLED / KAFKA_BROKERS).
	KafkaEnabled      bool
	KafkaBrokers      []string
	KafkaHistoryTopic string

	HistoryLimit int

	// Accounts and sessions.
	SessionTTL       time.Duration
	AdminEmail       string
	AdminPassword    string
	AllowAdminSignup bool

	// Fallback location when neither the request nor the stored config has one.
	DefaultLat float64
	DefaultLon float64
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	weatherTimeout, err := parsePositiveDuration("WEATHER_TIMEOUT", "5s")
	if err != nil {
		return nil, err
	}
	weatherCacheTTL, err := parsePositiveDuration("WEATHER_CACHE_TTL", "10m")
	if err != nil {
		return nil, err
	}
	sessionTTL, err := parsePositiveDuration("SESSION_TTL", "24h")
	if err != nil {
		return nil, err
	}

	historyLimit, err := parseNonNegativeInt("HISTORY_LIMIT", 500)
	if err != nil {
		return nil, err
	}

	defaultLat, err := parseFloat("DEFAULT_LAT", 45.5017)
	if err != nil {
		return nil, err
	}
	defaultLon, err := parseFloat("DEFAULT_LON", -73.5673)
	if err != nil {
		return nil, err
	}

	var brokers []string
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		brokers = sharedcfg.ParseBrokers(v)
	}
	kafkaEnabled := len(brokers) > 0
	if v := os.Getenv("KAFKA_ENABLED"); v != "" {
		kafkaEnabled = v == "true"
	}

	cfg := &Config{
		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		StoreBackend: strings.ToLower(sharedcfg.EnvOrDefault("STORE_BACKEND", StoreSQLite)),
		SQLitePath:   sharedcfg.EnvOrDefault("SQLITE_PATH", "./data/safespeed.db"),
		PostgresDSN:  os.Getenv("POSTGRES_DSN"),

		WeatherEnabled:   os.Getenv("WEATHER_ENABLED") != "false",
		WeatherBaseURL:   sharedcfg.EnvOrDefault("WEATHER_BASE_URL", "https://api.open-meteo.com/v1/forecast"),
		WeatherTimeout:   weatherTimeout,
		WeatherCacheSize: parseCacheSize(),
		WeatherCacheTTL:  weatherCacheTTL,

		KafkaEnabled:      kafkaEnabled,
		KafkaBrokers:      brokers,
		KafkaHistoryTopic: sharedcfg.EnvOrDefault("KAFKA_HISTORY_TOPIC", "speed-history"),

		HistoryLimit: historyLimit,

		SessionTTL:       sessionTTL,
		AdminEmail:       os.Getenv("ADMIN_EMAIL"),
		AdminPassword:    os.Getenv("ADMIN_PASSWORD"),
		AllowAdminSignup: os.Getenv("ALLOW_ADMIN_SIGNUP") == "true",

		DefaultLat: defaultLat,
		DefaultLon: defaultLon,
	}

	switch cfg.StoreBackend {
	case StoreMemory, StoreSQLite:
	case StorePostgres:
		if cfg.PostgresDSN == "" {
			return nil, errors.New("STORE_BACKEND is postgres but POSTGRES_DSN is not set")
		}
	default:
		return nil, fmt.Errorf("invalid STORE_BACKEND %q", cfg.StoreBackend)
	}
	if cfg.StoreBackend == StoreSQLite && cfg.SQLitePath == "" {
		return nil, errors.New("SQLITE_PATH is required")
	}
	if cfg.KafkaEnabled && len(cfg.KafkaBrokers) == 0 {
		return nil, errors.New("KAFKA_ENABLED is true but KAFKA_BROKERS is not set")
	}
	if cfg.KafkaEnabled && cfg.KafkaHistoryTopic == "" {
		return nil, errors.New("KAFKA_HISTORY_TOPIC is required")
	}
	if (cfg.AdminEmail == "") != (cfg.AdminPassword == "") {
		return nil, errors.New("ADMIN_EMAIL and ADMIN_PASSWORD must be set together")
	}
	if cfg.DefaultLat < -90 || cfg.DefaultLat > 90 {
		return nil, errors.New("invalid DEFAULT_LAT")
	}
	if cfg.DefaultLon < -180 || cfg.DefaultLon > 180 {
		return nil, errors.New("invalid DEFAULT_LON")
	}

	return cfg, nil
}

func parsePositiveDuration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(sharedcfg.EnvOrDefault(key, def))
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return d, nil
}

func parseNonNegativeInt(key string, def int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return n, nil
}

func parseFloat(key string, def float64) (float64, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return v, nil
}

func parseCacheSize() int {
	if s := os.Getenv("WEATHER_CACHE_SIZE"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			return n
		}
	}
	return 256
}
