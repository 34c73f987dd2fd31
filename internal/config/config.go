package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/parkpulse/parking-pricing/internal/parking"
	"github.com/parkpulse/parking-pricing/internal/signals"
)

type AppConfig struct {
	OpenWeatherAPIKey string
	HereAPIKey        string

	// BasePrice is the flat price every surcharge is computed against.
	BasePrice float64

	// ClusterTolerance is the degree distance for joining a cluster.
	ClusterTolerance float64

	// SignalTTL is how long a cached (jam factor, weather) pair stays fresh.
	SignalTTL time.Duration

	// SignalRefreshInterval controls the background cache pre-warm job.
	SignalRefreshInterval time.Duration

	// HTTPTimeout applies to outbound provider calls.
	HTTPTimeout time.Duration

	// Per-signal failure policies (fail or fallback).
	WeatherPolicy signals.FailurePolicy
	TrafficPolicy signals.FailurePolicy

	// LocalTimezone optionally pins quote timestamps to one IANA zone
	// instead of the longitude-derived offset.
	LocalTimezone *time.Location

	// Store selection: "memory" or "sqlite".
	StoreDriver string
	SQLitePath  string

	Port string
}

// Load reads configuration from environment with sensible defaults.
func Load() (*AppConfig, error) {
	if err := godotenv.Load(); err != nil {
		log.Printf("INFO: No .env file found or error loading it: %v", err)
	}
	cfg := &AppConfig{}

	cfg.OpenWeatherAPIKey = os.Getenv("OPENWEATHER_API_KEY")
	cfg.HereAPIKey = os.Getenv("HERE_API_KEY")

	cfg.BasePrice = getenvFloat("BASE_PRICE", parking.DefaultBasePrice)
	if cfg.BasePrice <= 0 {
		return nil, fmt.Errorf("BASE_PRICE must be positive")
	}

	cfg.ClusterTolerance = getenvFloat("CLUSTER_TOLERANCE", parking.DefaultClusterTolerance)
	if cfg.ClusterTolerance <= 0 {
		return nil, fmt.Errorf("CLUSTER_TOLERANCE must be positive")
	}

	ttl, err := getenvDuration("SIGNAL_TTL", signals.DefaultTTL)
	if err != nil {
		return nil, err
	}
	cfg.SignalTTL = ttl

	refresh, err := getenvDuration("SIGNAL_REFRESH_INTERVAL", 5*time.Minute)
	if err != nil {
		return nil, err
	}
	cfg.SignalRefreshInterval = refresh

	timeout, err := getenvDuration("HTTP_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, err
	}
	cfg.HTTPTimeout = timeout

	cfg.WeatherPolicy = signals.ParsePolicy(os.Getenv("WEATHER_FAILURE_POLICY"), signals.PolicyFail)
	cfg.TrafficPolicy = signals.ParsePolicy(os.Getenv("TRAFFIC_FAILURE_POLICY"), signals.PolicyFallback)

	if tz := os.Getenv("LOCAL_TIMEZONE"); tz != "" {
		loc, err := time.LoadLocation(tz)
		if err != nil {
			return nil, fmt.Errorf("invalid LOCAL_TIMEZONE: %w", err)
		}
		cfg.LocalTimezone = loc
	}

	cfg.StoreDriver = getenvDefault("STORE_DRIVER", "memory")
	if cfg.StoreDriver != "memory" && cfg.StoreDriver != "sqlite" {
		return nil, fmt.Errorf("invalid STORE_DRIVER %q: want memory or sqlite", cfg.StoreDriver)
	}
	cfg.SQLitePath = getenvDefault("SQLITE_PATH", "parking.db")

	cfg.Port = getenvDefault("PORT", "8080")

	return cfg, nil
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err == nil {
			return f
		}
	}
	return def
}

func getenvDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
