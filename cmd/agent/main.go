package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os/signal"
	"runtime"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/ads-marketplace/faultline/internal/audit"
	"github.com/ads-marketplace/faultline/internal/config"
	"github.com/ads-marketplace/faultline/internal/errclass"
	"github.com/ads-marketplace/faultline/internal/logging"
	"github.com/ads-marketplace/faultline/internal/recovery"
	"github.com/ads-marketplace/faultline/internal/timerleak"
)

const heartbeatInterval = time.Minute

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	zlog := newLogger(cfg)
	defer zlog.Sync()
	log := logging.NewZap(zlog)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	detector := timerleak.NewDetector(log, cfg.TimerLeakThreshold, cfg.TimerCheckInterval)
	timers := detector.StartMonitoring()
	defer detector.StopMonitoring()

	client := audit.NewClient(cfg.AuditBaseURL, cfg.AuditToken, cfg.AuditHTTPTimeout)
	batcher := audit.NewBatcher(client, log,
		audit.WithBatchSize(cfg.AuditBatchSize),
		audit.WithFlushInterval(cfg.AuditFlushInterval),
	)
	auditor := audit.NewAuditor(client, log)

	probe := recovery.NewProbeSource(ctx, cfg.ProbeURL, cfg.ProbeInterval, log)
	monitor := recovery.NewNetworkMonitor(probe)

	unsubscribe := monitor.AddListener(func(online bool) {
		zlog.Info("connectivity changed", zap.Bool("online", online))
		batcher.Add(audit.NewEntry(audit.AdminAction{
			Action:   audit.ActionSystemNetwork,
			Metadata: map[string]any{"online": online, "probe_url": cfg.ProbeURL},
		}))
	})

	a := &agent{
		cfg:      cfg,
		log:      log,
		timers:   timers,
		detector: detector,
		monitor:  monitor,
		batcher:  batcher,
		http:     &http.Client{Timeout: cfg.AuditHTTPTimeout},
	}

	auditor.LogAdminAction(ctx, audit.AdminAction{
		Action:   audit.ActionSystemMaintenance,
		Metadata: map[string]any{"event": "agent_started", "online": monitor.IsOnline()},
	})
	a.scheduleHeartbeat(ctx, 0)

	zlog.Info("agent started",
		zap.String("audit_base_url", cfg.AuditBaseURL),
		zap.String("probe_url", cfg.ProbeURL),
		zap.Bool("online", monitor.IsOnline()),
	)

	<-ctx.Done()
	zlog.Info("shutting down agent")

	a.stopHeartbeat()
	unsubscribe()
	monitor.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := batcher.Close(shutdownCtx); err != nil {
		zlog.Warn("final audit flush failed", zap.Error(err))
	}
	auditor.LogAdminAction(shutdownCtx, audit.AdminAction{
		Action:   audit.ActionSystemMaintenance,
		Metadata: map[string]any{"event": "agent_stopped"},
	})
}

func newLogger(cfg *config.Config) *zap.Logger {
	var (
		log *zap.Logger
		err error
	)
	if cfg.IsDevelopment() {
		log, err = zap.NewDevelopment()
	} else {
		log, err = zap.NewProduction()
	}
	if err != nil {
		return zap.NewNop()
	}
	return log
}

type agent struct {
	cfg      *config.Config
	log      logging.Logger
	timers   timerleak.Timers
	detector *timerleak.Detector
	monitor  *recovery.NetworkMonitor
	batcher  *audit.Batcher
	http     *http.Client

	mu   sync.Mutex
	next timerleak.TimerID
}

// scheduleHeartbeat chains one-shot timers so no timer outlives a single period.
func (a *agent) scheduleHeartbeat(ctx context.Context, delay time.Duration) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if ctx.Err() != nil {
		return
	}
	a.next = a.timers.SetTimeout(delay, func() {
		if ctx.Err() != nil {
			return
		}
		a.heartbeat(ctx)
		a.scheduleHeartbeat(ctx, heartbeatInterval)
	})
}

func (a *agent) stopHeartbeat() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.timers.ClearTimeout(a.next)
}

func (a *agent) heartbeat(ctx context.Context) {
	status := recovery.WithFallback(ctx, "agent_status", a.log, a.snapshot, map[string]any{"status": "unknown"})

	start := time.Now()
	code, err := recovery.RetryWithBackoff(ctx, a.probeHealth, a.cfg.RetryMaxAttempts, a.cfg.RetryBaseDelay,
		recovery.WithRetryLogger(a.log, "health_probe"))
	status["probe_latency_ms"] = time.Since(start).Milliseconds()

	if err != nil {
		se := errclass.ClassifyError(err, map[string]any{"component": "agent"})
		status["error_category"] = string(se.Category)
		status["error_code"] = se.Code
	} else {
		status["probe_status"] = code
	}

	a.batcher.Add(audit.NewEntry(audit.AdminAction{
		Action:   audit.ActionSystemHealthCheck,
		Metadata: status,
		Err:      err,
	}))
}

func (a *agent) probeHealth(ctx context.Context) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.cfg.ProbeURL, nil)
	if err != nil {
		return 0, err
	}
	resp, err := a.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("health probe: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return resp.StatusCode, errclass.FromResponse(resp)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode, nil
}

func (a *agent) snapshot(context.Context) (map[string]any, error) {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	return map[string]any{
		"status":        "ok",
		"online":        a.monitor.IsOnline(),
		"pending_audit": a.batcher.Pending(),
		"active_timers": a.detector.ActiveTimersCount(),
		"goroutines":    runtime.NumGoroutine(),
		"heap_alloc_mb": mem.HeapAlloc / (1 << 20),
	}, nil
}
