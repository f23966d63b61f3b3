package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	httpapi "github.com/forecastlab/weather-compare/internal/api/http"
	"github.com/forecastlab/weather-compare/internal/cache"
	"github.com/forecastlab/weather-compare/internal/config"
	"github.com/forecastlab/weather-compare/internal/forecast"
	"github.com/forecastlab/weather-compare/internal/forecast/providers"
	"github.com/forecastlab/weather-compare/internal/geo"
	"github.com/forecastlab/weather-compare/internal/scheduler"
	"github.com/forecastlab/weather-compare/internal/stitch"
	"github.com/forecastlab/weather-compare/internal/units"
)

func main() {
	// Load configuration.
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	// Shared HTTP client for outbound provider calls.
	httpClient := &http.Client{
		Timeout: cfg.HTTPTimeout,
	}

	// Response cache with the two configured TTL classes.
	responseCache := cache.New(cfg.CacheDefaultTTL, cfg.CacheWeatherTTL)

	// Location resolver (opaque geocoding collaborator).
	resolver := geo.NewResolver(responseCache, cfg.GoogleAPIKey)

	// Unit normalizer and stitcher, constructed once and injected.
	normalizer := units.NewNormalizer()
	stitcher := stitch.NewStitcher(cfg.MaxPages, cfg.PageDelay)

	// Providers in fixed order; sources with missing credentials become demo
	// providers when demo mode is on, error slots otherwise.
	var provs []forecast.Provider

	if cfg.OpenWeatherAPIKey == "" && cfg.DemoMode {
		provs = append(provs, providers.NewDemoProvider("openweathermap", "OPENWEATHER_API_KEY not configured"))
	} else {
		provs = append(provs, providers.NewOpenWeatherProvider(httpClient, cfg.OpenWeatherAPIKey, normalizer))
	}

	if cfg.WeatherAPIKey == "" && cfg.DemoMode {
		provs = append(provs, providers.NewDemoProvider("weatherapi", "WEATHERAPI_API_KEY not configured"))
	} else {
		provs = append(provs, providers.NewWeatherAPIProvider(httpClient, cfg.WeatherAPIKey, normalizer))
	}

	// Open-Meteo needs no key; in demo mode it fills unrecoverable hours.
	openMeteo := providers.NewOpenMeteoProvider(httpClient, normalizer, stitcher)
	if cfg.DemoMode {
		openMeteo.EnableShortfallFill()
	}
	provs = append(provs, openMeteo)

	// Core service orchestrating providers and cache.
	service := forecast.NewService(responseCache, provs, cfg.HourlySpan, cfg.Production)

	// Background refresher keeping tracked locations warm.
	refresher := scheduler.New(cfg.TrackedLocations, cfg.RefreshInterval, service, resolver)
	if err := refresher.Start(); err != nil {
		log.Fatalf("failed to start refresher: %v", err)
	}
	defer refresher.Stop()

	// Basic app configuration
	app := fiber.New(fiber.Config{
		AppName:               "weather-compare",
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          60 * time.Second,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			// Centralized error response
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{
				"error":   true,
				"message": err.Error(),
			})
		},
	})

	// Global middleware
	app.Use(logger.New())
	app.Use(recover.New())

	// Basic health endpoint
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "ok",
			"service": "weather-compare",
		})
	})

	// API routes.
	httpapi.RegisterRoutes(app, httpapi.Deps{
		Service:  service,
		Resolver: resolver,
		DemoMode: cfg.DemoMode,
		Version:  config.Version,
	})

	go func() {
		if err := app.Listen(":" + cfg.Port); err != nil {
			log.Printf("fiber server stopped: %v", err)
		}
	}()

	// Wait for termination signal
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Printf("error during shutdown: %v", err)
	}

}
