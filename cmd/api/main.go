package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/ads-marketplace/faultline/internal/config"
	"github.com/ads-marketplace/faultline/internal/db"
	"github.com/ads-marketplace/faultline/internal/events"
	apphttp "github.com/ads-marketplace/faultline/internal/http"
	"github.com/ads-marketplace/faultline/internal/http/handlers"
	"github.com/ads-marketplace/faultline/internal/middleware"
	"github.com/ads-marketplace/faultline/internal/repositories"
	"github.com/ads-marketplace/faultline/internal/services"
	"github.com/ads-marketplace/faultline/migrations"
)

func main() {
	log, _ := zap.NewProduction()
	defer log.Sync()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("failed to load config", zap.Error(err))
	}
	if cfg.IsDevelopment() {
		if dev, err := zap.NewDevelopment(); err == nil {
			log = dev
		}
	}
	cfg.Validate(log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Database
	pool, err := db.NewPostgresPool(ctx, cfg.PostgresDSN, log)
	if err != nil {
		log.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer pool.Close()

	if err := db.RunMigrations(ctx, pool, migrations.FS, log); err != nil {
		log.Fatal("failed to run migrations", zap.Error(err))
	}

	// Redis
	rdb, err := db.NewRedisClient(ctx, cfg.RedisURL, log)
	if err != nil {
		log.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer rdb.Close()

	auditRepo := repositories.NewAuditRepo(pool)

	publisher := events.NewRedisPublisher(rdb)
	subscriber := events.NewRedisSubscriber(rdb, log)

	auditService := services.NewAuditService(auditRepo, publisher, log)

	healthHandler := handlers.NewHealthHandler(map[string]handlers.Pinger{
		"postgres": pool,
		"redis": handlers.PingFunc(func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}),
	})
	auditHandler := handlers.NewAuditHandler(auditService, log)
	stream := handlers.NewAuditStream(cfg, subscriber, log)

	if err := stream.Start(ctx); err != nil {
		log.Fatal("failed to subscribe to audit events", zap.Error(err))
	}

	app := fiber.New(fiber.Config{
		ErrorHandler: apphttp.ErrorHandler(log),
		BodyLimit:    1 << 20,
	})

	apphttp.SetupRouter(app, cfg, log, middleware.NewRedisCounter(rdb), healthHandler, auditHandler, stream)

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info("shutting down...")
		cancel()
		_ = app.Shutdown()
	}()

	addr := fmt.Sprintf(":%s", cfg.APIPort)
	log.Info("starting audit API", zap.String("addr", addr))
	if err := app.Listen(addr); err != nil {
		log.Fatal("server error", zap.Error(err))
	}
}
