package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/boscod/trackwatch/config"
	"github.com/boscod/trackwatch/internal/database"
	"github.com/boscod/trackwatch/internal/handlers"
	"github.com/boscod/trackwatch/internal/logctx"
	"github.com/boscod/trackwatch/internal/middleware"
	"github.com/boscod/trackwatch/internal/rabbitmq"
	"github.com/boscod/trackwatch/internal/routes"
	"github.com/boscod/trackwatch/internal/services"
	"github.com/boscod/trackwatch/internal/storage"
	workers "github.com/boscod/trackwatch/internal/worker"
	"github.com/gofiber/fiber/v3"
	fiberlogger "github.com/gofiber/fiber/v3/middleware/logger"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
)

// Screenshots arrive base64 encoded inside ingest batches.
const bodyLimit = 64 << 20

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "trackwatch-server: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var envFile, addr string
	var migrateOnly bool

	flagSet := pflag.NewFlagSet("trackwatch-server", pflag.ContinueOnError)
	flagSet.StringVar(&envFile, "env-file", "", "load environment variables from this file instead of ./.env")
	flagSet.StringVar(&addr, "addr", "", "listen address (default :$PORT)")
	flagSet.BoolVar(&migrateOnly, "migrate-only", false, "create the schema, seed defaults and exit")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	cfg, err := config.Load(envFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := logctx.New(cfg.LogLevel, cfg.IsDevelopment())
	if err != nil {
		return err
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Connect(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	defaults, err := config.LoadDefaults(cfg.SettingsSeedFile)
	if err != nil {
		return err
	}
	if err := database.Migrate(ctx, db, defaults); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	if migrateOnly {
		logger.Info("schema is up to date")
		return nil
	}

	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	if cfg.EncryptScreenshots {
		store = storage.NewEncrypted(store, services.NewCryptoService(cfg.AppSecret))
	}

	// Initialize services
	jwtService := services.NewJWTService(cfg.JWTSecret, cfg.SessionExpiry)
	settingsService := services.NewSettingsService(db)
	alertService := services.NewAlertService(db,
		services.NewEmailService(cfg.SMTP),
		services.NewWhatsAppService(cfg.WhatsApp),
		services.AlertOptions{Emails: cfg.AlertEmails, WhatsAppPhone: cfg.AlertWhatsAppPhone})

	var publisher services.EventPublisher = services.NewDirectPublisher(alertService)
	workerDone := make(chan struct{})
	if cfg.RabbitMQURL != "" {
		client, err := rabbitmq.Dial(cfg.RabbitMQURL, logger)
		if err != nil {
			// Alerts still work in process without the broker.
			logger.Warn("RabbitMQ unavailable, delivering alerts in process", zap.Error(err))
			close(workerDone)
		} else {
			defer client.Close()
			publisher = client

			alertWorker := workers.NewAlertWorker(client, alertService, logger)
			go func() {
				defer close(workerDone)
				if err := alertWorker.StartWorker(ctx); err != nil {
					logger.Error("alert worker failed", zap.Error(err))
				}
			}()
		}
	} else {
		close(workerDone)
	}

	svc := routes.Services{
		JWT:      jwtService,
		Auth:     services.NewAuthService(db, jwtService),
		Users:    services.NewUserService(db),
		Ingest:   services.NewIngestService(db, settingsService, store, cfg.EncryptScreenshots, publisher),
		Devices:  services.NewDeviceService(db, publisher),
		Policy:   services.NewPolicyService(db),
		Catalog:  services.NewCatalogService(db),
		Settings: settingsService,
		Activity: services.NewActivityService(db, store),
		Alerts:   alertService,
	}

	app := fiber.New(fiber.Config{
		AppName:       "TrackWatch API",
		CaseSensitive: true,
		StrictRouting: false,
		ServerHeader:  "TrackWatch",
		BodyLimit:     bodyLimit,
		ErrorHandler:  handlers.ErrorHandler,
	})

	// Global middleware
	app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
		StackTraceHandler: func(c fiber.Ctx, e any) {
			logger.Error("panic recovered",
				zap.Any("panic", e),
				zap.String("method", c.Method()),
				zap.String("path", c.Path()),
				zap.ByteString("stack", debug.Stack()))
		},
	}))
	if cfg.IsDevelopment() {
		app.Use(fiberlogger.New(fiberlogger.Config{
			Format:     "[${time}] ${status} - ${method} ${path} (${latency})\n",
			TimeFormat: "2006-01-02 15:04:05",
		}))
	}
	app.Use(middleware.CORSMiddleware(cfg.AllowedOrigins))
	app.Use(middleware.RequestLogger(logger, cfg.RequestTimeout))

	routes.SetupRoutes(app, svc, routes.Options{SecureCookie: cfg.IsProduction()})

	// Graceful shutdown
	go func() {
		<-ctx.Done()
		logger.Info("shutting down server")
		if err := app.ShutdownWithTimeout(30 * time.Second); err != nil {
			logger.Warn("error shutting down", zap.Error(err))
		}
	}()

	if addr == "" {
		addr = ":" + cfg.Port
	}
	logger.Info("starting server",
		zap.String("addr", addr),
		zap.String("env", cfg.Env),
		zap.Strings("allowed_origins", cfg.AllowedOrigins),
		zap.Bool("rabbitmq", cfg.RabbitMQURL != ""),
		zap.Bool("minio", cfg.MinIO.Enabled()))

	if err := app.Listen(addr); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}

	stop()
	<-workerDone
	return nil
}

func openStore(ctx context.Context, cfg *config.Config) (storage.Store, error) {
	if cfg.MinIO.Enabled() {
		return storage.NewMinIO(ctx, cfg.MinIO.Endpoint, cfg.MinIO.AccessKey, cfg.MinIO.SecretKey, cfg.MinIO.Bucket, cfg.MinIO.UseSSL)
	}
	return storage.NewLocal(cfg.ScreenshotDir)
}
