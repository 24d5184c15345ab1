package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"golang.org/x/sync/errgroup"

	httpapi "github.com/i474232898/weather-heatmap/internal/api/http"
	"github.com/i474232898/weather-heatmap/internal/config"
	"github.com/i474232898/weather-heatmap/internal/geocode"
	"github.com/i474232898/weather-heatmap/internal/job"
	"github.com/i474232898/weather-heatmap/internal/pipeline"
	"github.com/i474232898/weather-heatmap/internal/scheduler"
	"github.com/i474232898/weather-heatmap/internal/store"
	"github.com/i474232898/weather-heatmap/internal/weather/providers"
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

	// The closed set of data sources, each with its own circuit breaker.
	openMeteo := providers.NewOpenMeteoProvider(httpClient, providers.Options{
		BaseURL:      cfg.OpenMeteoURL,
		RequestDelay: cfg.RequestDelay,
		MaxRetries:   cfg.ProviderMaxRetries,
	})
	brightSky := providers.NewBrightSkyProvider(httpClient, providers.Options{
		BaseURL:      cfg.BrightSkyURL,
		RequestDelay: cfg.RequestDelay,
		MaxRetries:   cfg.ProviderMaxRetries,
	})

	service := pipeline.NewService(cfg.WorkDir(), cfg.TileSize, openMeteo, brightSky)

	// In-memory job history with configured retention.
	jobs := store.NewMemoryStore(cfg.JobHistory, cfg.JobMaxAge)
	controller := job.NewController(service, jobs)

	// Scheduler that periodically regenerates the configured region.
	sched := scheduler.New(cfg.Refresh, cfg.RefreshInterval, controller)
	if err := sched.Start(); err != nil {
		log.Fatalf("failed to start scheduler: %v", err)
	}
	defer sched.Stop()

	app := fiber.New(fiber.Config{
		AppName:               "weather-heatmap",
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
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

	app.Use(logger.New())
	app.Use(recover.New())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "ok",
			"service": "weather-heatmap",
		})
	})

	httpapi.RegisterRoutes(app, httpapi.API{
		Service:    service,
		Controller: controller,
		Jobs:       jobs,
		Geocoder:   geocode.NewResolver(cfg.GeocoderAPIKey),
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Printf("INFO: listening on :%s, frames in %s", cfg.Port, cfg.WorkDir())
		return app.Listen(":" + cfg.Port)
	})
	g.Go(func() error {
		<-gctx.Done()

		if err := controller.Terminate(); err == nil {
			log.Println("INFO: running job terminated on shutdown")
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return app.ShutdownWithContext(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Printf("server stopped: %v", err)
	}
}
