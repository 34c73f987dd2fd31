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
	"github.com/joho/godotenv"

	httpapi "github.com/parkpulse/parking-pricing/internal/api/http"
	"github.com/parkpulse/parking-pricing/internal/config"
	"github.com/parkpulse/parking-pricing/internal/geo"
	"github.com/parkpulse/parking-pricing/internal/parking"
	"github.com/parkpulse/parking-pricing/internal/scheduler"
	"github.com/parkpulse/parking-pricing/internal/signals"
	"github.com/parkpulse/parking-pricing/internal/signals/providers"
	"github.com/parkpulse/parking-pricing/internal/store"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("INFO: No .env file found or error loading it: %v", err)
	}

	// Load configuration.
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	// Shared HTTP client for outbound provider calls.
	httpClient := &http.Client{
		Timeout: cfg.HTTPTimeout,
	}

	// Event log and group collection behind the store contracts.
	var (
		events parking.EventStore
		groups parking.GroupStore
	)
	switch cfg.StoreDriver {
	case "sqlite":
		s, err := store.NewSQLiteStore(cfg.SQLitePath)
		if err != nil {
			log.Fatalf("failed to open sqlite store: %v", err)
		}
		defer s.Close()
		events, groups = s, s
	default:
		s := store.NewMemoryStore()
		events, groups = s, s
	}

	// External signal providers and the TTL cache over them.
	weather := providers.NewOpenWeatherProvider(httpClient, cfg.OpenWeatherAPIKey)
	traffic := providers.NewHereTrafficProvider(cfg.HereAPIKey, cfg.HTTPTimeout)

	cache := signals.NewCache(weather, traffic,
		signals.WithTTL(cfg.SignalTTL),
		signals.WithPolicies(cfg.WeatherPolicy, cfg.TrafficPolicy),
	)

	// Local-hour resolution: fixed zone if configured, longitude offset otherwise.
	var locator parking.TimeLocator = geo.LongitudeLocator{}
	if cfg.LocalTimezone != nil {
		locator = geo.FixedZoneLocator{Location: cfg.LocalTimezone}
	}

	clusterer := parking.NewProximityClusterer(cfg.ClusterTolerance, parking.SystemClock)

	// Core pipeline orchestrating clustering, signals and pricing.
	service := parking.NewService(events, groups, clusterer, cache, locator, parking.SystemClock, cfg.BasePrice)

	// Background job that keeps signal cache entries warm.
	sched := scheduler.New(groups, cache, cfg.SignalRefreshInterval)
	if err := sched.Start(); err != nil {
		log.Fatalf("failed to start scheduler: %v", err)
	}
	defer sched.Stop()

	// Basic app configuration
	app := fiber.New(fiber.Config{
		AppName:               "parking-pricing",
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          10 * time.Second,
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
			"service": "parking-pricing",
		})
	})

	// API routes.
	httpapi.RegisterRoutes(app, service)

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
