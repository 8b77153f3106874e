package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/ads-marketplace/faultline/internal/config"
	"github.com/ads-marketplace/faultline/internal/db"
	"github.com/ads-marketplace/faultline/internal/logging"
	"github.com/ads-marketplace/faultline/internal/recovery"
	"github.com/ads-marketplace/faultline/internal/repositories"
)

const (
	pruneInterval  = time.Hour
	pruneBatchSize = 1000
)

func main() {
	log, _ := zap.NewProduction()
	defer log.Sync()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("failed to load config", zap.Error(err))
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := db.NewPostgresPool(ctx, cfg.PostgresDSN, log)
	if err != nil {
		log.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer pool.Close()

	auditRepo := repositories.NewAuditRepo(pool)
	rlog := logging.NewZap(log)

	log.Info("retention worker started", zap.Duration("retention", cfg.AuditRetention))

	pruneTicker := time.NewTicker(pruneInterval)
	defer pruneTicker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	runPrune(ctx, auditRepo, cfg, rlog, log)
	for {
		select {
		case <-pruneTicker.C:
			runPrune(ctx, auditRepo, cfg, rlog, log)
		case <-sigCh:
			log.Info("shutting down worker")
			cancel()
			return
		case <-ctx.Done():
			return
		}
	}
}

// runPrune deletes expired entries in batches until a short batch signals the end.
func runPrune(ctx context.Context, repo *repositories.AuditRepo, cfg *config.Config, rlog logging.Logger, log *zap.Logger) {
	if cfg.AuditRetention <= 0 {
		return
	}
	cutoff := time.Now().Add(-cfg.AuditRetention)

	var total int64
	for {
		n, err := recovery.RetryWithBackoff(ctx, func(ctx context.Context) (int64, error) {
			return repo.DeleteOlderThan(ctx, cutoff, pruneBatchSize)
		}, cfg.RetryMaxAttempts, cfg.RetryBaseDelay, recovery.WithRetryLogger(rlog, "audit_prune"))
		if err != nil {
			log.Error("failed to prune audit trail", zap.Time("cutoff", cutoff), zap.Error(err))
			return
		}
		total += n
		if n < pruneBatchSize {
			break
		}
	}
	if total > 0 {
		log.Info("audit trail pruned", zap.Int64("deleted", total), zap.Time("cutoff", cutoff))
	}
}
