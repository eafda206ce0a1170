package cmd

import (
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mendersoftware/iot-manager/core/config"
	"github.com/mendersoftware/iot-manager/core/database"
	"github.com/mendersoftware/iot-manager/core/loader"
	"github.com/mendersoftware/iot-manager/core/logger"
	"github.com/mendersoftware/iot-manager/core/middleware/identity"
	"github.com/mendersoftware/iot-manager/core/middleware/rayid"

	"github.com/mendersoftware/iot-manager/feature/devices"
	"github.com/mendersoftware/iot-manager/feature/integrations"
)

// startCmd represents the start command
var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the management server",
	Long:  `Starts the HTTP server serving the integration and device inventory API.`,
	Run: func(cmd *cobra.Command, args []string) {
		// 1. Load Configuration
		cfg, err := config.LoadConfig(".")
		if err != nil {
			log.Fatalf("Failed to load configuration: %v", err)
		}

		// 2. Initialize Logger
		logg, err := logger.New(&cfg.Log)
		if err != nil {
			log.Fatalf("Failed to initialize logger: %v", err)
		}
		defer logg.Sync()
		zap.ReplaceGlobals(logg)

		// 3. Connect to Database
		db, err := database.Connect(cfg.Database)
		if err != nil {
			logg.Fatal("Failed to connect to database", zap.Error(err))
		}
		if err := db.AutoMigrate(&integrations.Integration{}); err != nil {
			logg.Fatal("Failed to migrate integrations table", zap.Error(err))
		}
		if err := database.VerifySchema(db, requiredSchema()); err != nil {
			logg.Fatal("Database schema check failed", zap.Error(err))
		}

		// 4. Initialize Fiber App
		app := fiber.New(fiber.Config{
			DisableStartupMessage: true, // We will log our own startup message
		})

		// 5. Initialize Feature Loader
		mgr := loader.NewManager()
		mgr.Register(integrations.NewFeature(db, logg))
		mgr.Register(devices.NewFeature(db, logg))

		// Middleware Registration
		// RayID must be first to trace everything
		app.Use(rayid.New())

		// Request logging with Zap + RayID
		app.Use(func(c *fiber.Ctx) error {
			l := logger.WithRayID(logg, c)
			l.Info("Request started",
				zap.String("method", c.Method()),
				zap.String("path", c.Path()),
				zap.String("ip", c.IP()),
			)
			err := c.Next()
			if err != nil {
				l.Error("Request error", zap.Error(err))
			}
			return err
		})

		// Liveness probe, outside the identity check
		app.Get("/health", func(c *fiber.Ctx) error {
			return c.SendStatus(fiber.StatusNoContent)
		})

		// Caller identity, required on everything below
		app.Use(identity.New(identity.Config{Secret: cfg.Server.JWTSecret}))

		// 6. Load Features
		api := app.Group("/api/management/v1")
		if err := mgr.LoadAll(api); err != nil {
			logg.Fatal("Failed to load features", zap.Error(err))
		}

		// 7. Start Server
		go func() {
			logg.Info("Starting server", zap.String("port", cfg.Server.Port))
			if err := app.Listen(":" + cfg.Server.Port); err != nil {
				logg.Fatal("Server failed to start", zap.Error(err))
			}
		}()

		// 8. Graceful Shutdown
		c := make(chan os.Signal, 1)
		signal.Notify(c, os.Interrupt, syscall.SIGTERM)
		<-c
		logg.Info("Shutting down server...")
		_ = app.Shutdown()
	},
}

func init() {
	RootCmd.AddCommand(startCmd)
}
