package recovery

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/ads-marketplace/faultline/internal/logging"
)

// ProbeSource derives connectivity from periodic HEAD requests to a URL.
// Any HTTP response counts as online; only transport failures count as offline.
type ProbeSource struct {
	url        string
	interval   time.Duration
	httpClient *http.Client
	log        logging.Logger

	mu     sync.Mutex
	online bool
}

func NewProbeSource(ctx context.Context, url string, interval time.Duration, log logging.Logger) *ProbeSource {
	if log == nil {
		log = logging.Nop()
	}
	p := &ProbeSource{
		url:      url,
		interval: interval,
		httpClient: &http.Client{
			Timeout: 5 * time.Second,
		},
		log: log,
	}
	p.online = p.probe(ctx)
	return p
}

func (p *ProbeSource) Online() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.online
}

func (p *ProbeSource) Watch(onOnline, onOffline func()) (stop func()) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		defer close(done)
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				online := p.probe(ctx)
				if ctx.Err() != nil {
					return
				}
				p.mu.Lock()
				changed := online != p.online
				p.online = online
				p.mu.Unlock()
				if !changed {
					continue
				}
				if online {
					onOnline()
				} else {
					onOffline()
				}
			}
		}
	}()

	return func() {
		cancel()
		<-done
	}
}

func (p *ProbeSource) probe(ctx context.Context) bool {
	_, err := RetryWithBackoff(ctx, func(ctx context.Context) (int, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodHead, p.url, nil)
		if err != nil {
			return 0, err
		}
		resp, err := p.httpClient.Do(req)
		if err != nil {
			return 0, fmt.Errorf("probe %s: %w", p.url, err)
		}
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		return resp.StatusCode, nil
	}, 2, 200*time.Millisecond, WithRetryLogger(p.log, "connectivity_probe"))

	if err != nil {
		p.log.Debug("network", "probe failed", map[string]any{"url": p.url, "error": err})
		return false
	}
	return true
}
