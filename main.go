package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/storage"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/rs/zerolog"
	"github.com/streadway/amqp"
	"google.golang.org/api/option"

	"photoshare/internal/config"
	"photoshare/internal/guard"
	"photoshare/internal/handlers"
	"photoshare/internal/imagestore"
	"photoshare/internal/middleware"
	"photoshare/internal/objectstore"
	"photoshare/internal/repositories"
	"photoshare/internal/services"
	"photoshare/pkg/rabbitmq"
)

const userAgent = "photoshare"

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}
	log := newLogger(cfg.LogLevel)

	app, cleanup, err := NewApp(context.Background(), cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build app")
	}
	defer cleanup()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Info().Str("addr", cfg.AppPort).Str("storage", cfg.StorageBackend).Msg("starting server")
		if err := app.Listen(cfg.AppPort); err != nil {
			log.Fatal().Err(err).Msg("server failed to start")
		}
	}()

	<-quit
	log.Info().Msg("shutting down server")
	if err := app.Shutdown(); err != nil {
		log.Error().Err(err).Msg("error during Fiber shutdown")
	}
	log.Info().Msg("server gracefully stopped")
}

func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(os.Stdout).Level(lvl).With().Timestamp().Logger()
}

// openBackend connects to the storage backend named by cfg.StorageBackend.
func openBackend(ctx context.Context, cfg *config.Config) (objectstore.Backend, error) {
	switch cfg.StorageBackend {
	case config.BackendMemory:
		return objectstore.NewMemoryBackend(), nil
	case config.BackendSQL:
		return objectstore.OpenSQL(cfg.DatabaseDriver, cfg.DatabaseDSN)
	case config.BackendBadger:
		return objectstore.OpenBadger(cfg.BadgerDir)
	case config.BackendLocal:
		return objectstore.NewLocalBackend(cfg.LocalStoragePath)
	case config.BackendGCS:
		client, err := storage.NewClient(ctx, option.WithUserAgent(userAgent))
		if err != nil {
			return nil, fmt.Errorf("while creating GCS client: %w", err)
		}
		return objectstore.NewGCSBackend(client, cfg.GCSBucket, cfg.GCSProject), nil
	case config.BackendFirestore:
		client, err := firestore.NewClient(ctx, cfg.FirestoreProject, option.WithUserAgent(userAgent))
		if err != nil {
			return nil, fmt.Errorf("while creating Firestore client: %w", err)
		}
		return objectstore.NewFirestoreBackend(client), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.StorageBackend)
	}
}

// connectEvents returns nil when events are disabled or the broker is
// unreachable; photo mutations then run without publishing.
func connectEvents(cfg *config.Config, log zerolog.Logger) *rabbitmq.Client {
	if cfg.RabbitMQURL == "" {
		log.Info().Msg("RABBITMQ_URL not set, photo events disabled")
		return nil
	}
	mq, err := rabbitmq.NewClient(rabbitmq.Config{URL: cfg.RabbitMQURL}, log)
	if err != nil {
		log.Error().Err(err).Msg("failed to initialize RabbitMQ client, photo events disabled")
		return nil
	}

	eventLog := log.With().Str("component", "photo-events").Logger()
	err = mq.ConsumePhotoEvents(func(msg amqp.Delivery) error {
		eventLog.Info().Str("routing_key", msg.RoutingKey).RawJSON("event", msg.Body).Msg("received photo event")
		return nil
	})
	if err != nil {
		log.Error().Err(err).Msg("failed to start RabbitMQ consumer")
	}
	return mq
}

// NewApp wires storage, services and handlers into a Fiber app. The returned
// cleanup closes the storage backend and the broker connection.
func NewApp(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*fiber.App, func(), error) {
	backend, err := openBackend(ctx, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open %s storage: %w", cfg.StorageBackend, err)
	}
	store := objectstore.NewStore(backend, log)
	g := guard.New(store,
		guard.WithMaxAttempts(cfg.UpdateMaxAttempts),
		guard.WithBackoff(cfg.UpdateBackoff),
		guard.WithLogger(log),
	)

	mq := connectEvents(cfg, log)
	var publisher services.EventPublisher
	if mq != nil {
		publisher = mq
	}

	authService := services.NewAuthService(
		repositories.NewBlobUserRepository(g),
		services.NewBcryptHasher(),
		services.NewJWTIssuer(cfg.JWTSecret, cfg.TokenTTL),
		log,
	)
	photoService := services.NewPhotoService(repositories.NewBlobPhotoRepository(g), publisher, log)
	sink := imagestore.NewSink(store, cfg.PublicBaseURL)

	app := fiber.New(fiber.Config{
		AppName: "photoshare",
	})
	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
	}))

	handlers.NewHealthHandler(cfg.StorageBackend, mq != nil).RegisterRoutes(app)
	photoHandler := handlers.NewPhotoHandler(photoService, sink, log)
	photoHandler.RegisterImageRoutes(app)

	api := app.Group("/api")
	handlers.NewAuthHandler(authService, log).RegisterRoutes(api)
	photoHandler.RegisterRoutes(api, middleware.AuthRequired(authService))

	cleanup := func() {
		if mq != nil {
			if err := mq.Close(); err != nil {
				log.Error().Err(err).Msg("failed to close RabbitMQ client")
			}
		}
		if err := store.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close storage backend")
		}
	}
	return app, cleanup, nil
}
