package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/ads-marketplace/faultline/internal/alerts"
	"github.com/ads-marketplace/faultline/internal/config"
	"github.com/ads-marketplace/faultline/internal/db"
	"github.com/ads-marketplace/faultline/internal/events"
	"github.com/ads-marketplace/faultline/internal/logging"
)

// Alert bridge subscribes to recorded audit events in Redis and forwards
// critical ones to ALERT_WEBHOOK_URL.

func main() {
	log, _ := zap.NewProduction()
	defer log.Sync()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("failed to load config", zap.Error(err))
	}
	if cfg.AlertWebhookURL == "" {
		log.Fatal("ALERT_WEBHOOK_URL is not set")
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rdb, err := db.NewRedisClient(ctx, cfg.RedisURL, log)
	if err != nil {
		log.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer rdb.Close()

	forwarder := alerts.NewForwarder(cfg.AlertWebhookURL, cfg.AuditHTTPTimeout, logging.NewZap(log),
		alerts.WithRetry(cfg.RetryMaxAttempts, cfg.RetryBaseDelay),
		alerts.WithMinSeverity(cfg.AlertMinSeverity),
	)

	subscriber := events.NewRedisSubscriber(rdb, log)
	if err := subscriber.Subscribe(ctx, events.StreamAudit, forwarder.Handle(ctx)); err != nil {
		log.Fatal("failed to subscribe", zap.Error(err))
	}

	log.Info("alert-bridge started", zap.String("min_severity", cfg.AlertMinSeverity))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info("shutting down alert-bridge")
	cancel()
}
