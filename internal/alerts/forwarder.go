// Package alerts forwards critical audit events to an external webhook.
package alerts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ads-marketplace/faultline/internal/errclass"
	"github.com/ads-marketplace/faultline/internal/events"
	"github.com/ads-marketplace/faultline/internal/logging"
	"github.com/ads-marketplace/faultline/internal/recovery"
)

type Forwarder struct {
	url         string
	httpClient  *http.Client
	log         logging.Logger
	maxAttempts int
	baseDelay   time.Duration
	minSeverity string
}

type Option func(*Forwarder)

func WithRetry(maxAttempts int, baseDelay time.Duration) Option {
	return func(f *Forwarder) {
		f.maxAttempts = maxAttempts
		f.baseDelay = baseDelay
	}
}

// WithMinSeverity forwards events at or above severity ("high" or "critical").
func WithMinSeverity(severity string) Option {
	return func(f *Forwarder) { f.minSeverity = severity }
}

func NewForwarder(url string, timeout time.Duration, log logging.Logger, opts ...Option) *Forwarder {
	if log == nil {
		log = logging.Nop()
	}
	f := &Forwarder{
		url:         url,
		httpClient:  &http.Client{Timeout: timeout},
		log:         log,
		maxAttempts: recovery.DefaultMaxAttempts,
		baseDelay:   recovery.DefaultBaseDelay,
		minSeverity: "critical",
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Wants reports whether event should be forwarded.
func (f *Forwarder) Wants(event events.Event) bool {
	if event.Type != events.EventAuditRecorded {
		return false
	}
	sev, _ := event.Payload["severity"].(string)
	switch f.minSeverity {
	case "high":
		return sev == "high" || sev == "critical"
	default:
		return sev == "critical"
	}
}

// Handle is an events.Subscriber handler. Failures are logged and the event dropped.
func (f *Forwarder) Handle(ctx context.Context) func(events.Event) {
	return func(event events.Event) {
		if !f.Wants(event) {
			return
		}
		if err := f.Forward(ctx, event); err != nil {
			se := errclass.ClassifyError(err, nil)
			f.log.Warn("alerts", "failed to forward audit alert", map[string]any{
				"action":   event.Payload["action"],
				"category": string(se.Category),
				"error":    err,
			})
		}
	}
}

func (f *Forwarder) Forward(ctx context.Context, event events.Event) error {
	body, err := json.Marshal(alertBody(event))
	if err != nil {
		return err
	}
	_, err = recovery.RetryWithBackoff(ctx, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, f.post(ctx, body)
	}, f.maxAttempts, f.baseDelay, recovery.WithRetryLogger(f.log, "alert_webhook"))
	return err
}

func (f *Forwarder) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("alert webhook: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return errclass.FromResponse(resp)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func alertBody(event events.Event) map[string]any {
	action, _ := event.Payload["action"].(string)
	sev, _ := event.Payload["severity"].(string)
	return map[string]any{
		"text":    fmt.Sprintf("[%s] audit: %s", sev, action),
		"event":   event.Type,
		"payload": event.Payload,
	}
}
