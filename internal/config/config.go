package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Version is the reported service version; overridden at build time.
var Version = "0.3.0"

// AppConfig is the process-wide configuration, loaded once at startup and
// passed by reference to the components that need it.
type AppConfig struct {
	OpenWeatherAPIKey string
	WeatherAPIKey     string
	GoogleAPIKey      string

	// Port the fiber app listens on.
	Port string

	// Production controls error-message detail on user-visible failures.
	Production bool

	// DemoMode serves deterministic synthetic data for sources with missing
	// credentials instead of failing them.
	DemoMode bool

	// HTTPTimeout bounds each outbound provider call.
	HTTPTimeout time.Duration

	// HourlySpan is the number of hourly points requested per source.
	HourlySpan int

	// MaxPages bounds the stitcher's request loop per source call.
	MaxPages int

	// PageDelay is the pause between sequential paginated requests.
	PageDelay time.Duration

	// Cache TTL classes: a short default and a longer weather-specific one.
	CacheDefaultTTL time.Duration
	CacheWeatherTTL time.Duration

	// TrackedLocations are location keys the background refresher keeps warm.
	TrackedLocations []string

	// RefreshInterval controls how often tracked locations are re-fetched.
	RefreshInterval time.Duration
}

// Load reads configuration from environment with sensible defaults.
func Load() (*AppConfig, error) {
	if err := godotenv.Load(); err != nil {
		log.Printf("INFO: No .env file found or error loading it: %v", err)
	}

	cfg := &AppConfig{}

	cfg.OpenWeatherAPIKey = os.Getenv("OPENWEATHER_API_KEY")
	cfg.WeatherAPIKey = os.Getenv("WEATHERAPI_API_KEY")
	cfg.GoogleAPIKey = os.Getenv("GOOGLE_API_KEY")

	cfg.Port = getenvDefault("PORT", "8080")
	cfg.Production = getenvDefault("APP_ENV", "development") == "production"
	cfg.DemoMode = getenvBool("DEMO_MODE", cfg.OpenWeatherAPIKey == "" && cfg.WeatherAPIKey == "")

	var err error
	if cfg.HTTPTimeout, err = getenvDuration("HTTP_TIMEOUT", "15s"); err != nil {
		return nil, err
	}

	cfg.HourlySpan = getenvInt("HOURLY_SPAN", 240)
	cfg.MaxPages = getenvInt("MAX_PAGES", 12)

	if cfg.PageDelay, err = getenvDuration("PAGE_DELAY", "500ms"); err != nil {
		return nil, err
	}
	if cfg.CacheDefaultTTL, err = getenvDuration("CACHE_DEFAULT_TTL", "15m"); err != nil {
		return nil, err
	}
	if cfg.CacheWeatherTTL, err = getenvDuration("CACHE_WEATHER_TTL", "30m"); err != nil {
		return nil, err
	}
	if cfg.RefreshInterval, err = getenvDuration("REFRESH_INTERVAL", "15m"); err != nil {
		return nil, err
	}

	if tracked := os.Getenv("TRACKED_LOCATIONS"); tracked != "" {
		for _, key := range strings.Split(tracked, ",") {
			if key = strings.TrimSpace(key); key != "" {
				cfg.TrackedLocations = append(cfg.TrackedLocations, key)
			}
		}
	}

	return cfg, nil
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		n, err := strconv.Atoi(v)
		if err == nil {
			return n
		}
	}
	return def
}

func getenvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return def
}

func getenvDuration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(getenvDefault(key, def))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
