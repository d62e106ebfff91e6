package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/rs/zerolog"

	"github.com/contentops/statevault/internal/config"
	"github.com/contentops/statevault/internal/database"
	"github.com/contentops/statevault/internal/handlers"
	"github.com/contentops/statevault/internal/models"
	"github.com/contentops/statevault/internal/services"
)

func main() {
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	// The audit table lives in the same database the engine backs up. An
	// unreachable database disables auditing but not the engine itself.
	db, err := database.Connect(cfg)
	if err != nil {
		log.Warn().Err(err).Msg("audit database unavailable, operation auditing disabled")
		db = nil
	} else if err := models.AutoMigrate(db); err != nil {
		log.Fatal().Err(err).Msg("failed to migrate audit table")
	}

	svc, err := services.NewBackupService(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize backup service")
	}

	if cfg.ScheduleEnabled {
		svc.StartScheduledBackups()
	}

	app := fiber.New(fiber.Config{
		AppName:      "statevault v1.4",
		ServerHeader: "statevault",
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{
				"success": false,
				"message": err.Error(),
			})
		},
	})

	app.Use(recover.New())
	app.Use(compress.New())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "healthy",
			"service": "statevault",
		})
	})

	backupHandler := handlers.NewBackupHandler(svc, db, log)
	backupHandler.Register(app.Group("/api/v1"))

	go func() {
		if err := app.Listen(fmt.Sprintf(":%d", cfg.APIPort)); err != nil {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()
	log.Info().Int("port", cfg.APIPort).Msg("statevault API listening")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down")
	svc.StopScheduledBackups()
	if err := app.Shutdown(); err != nil {
		log.Error().Err(err).Msg("server shutdown failed")
	}
}
