package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ads-marketplace/faultline/internal/errclass"
	"github.com/ads-marketplace/faultline/internal/models"
)

const (
	EntryPath = "/api/v1/audit-trail"
	BatchPath = "/api/v1/audit-trail/batch"
)

// Transport delivers entries to the audit trail service.
type Transport interface {
	Send(ctx context.Context, entry models.AuditEntry) error
	SendBatch(ctx context.Context, entries []models.AuditEntry) error
}

// Client talks to the audit trail HTTP API.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

func NewClient(baseURL, token string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

func (c *Client) Send(ctx context.Context, entry models.AuditEntry) error {
	return c.post(ctx, EntryPath, entry)
}

func (c *Client) SendBatch(ctx context.Context, entries []models.AuditEntry) error {
	return c.post(ctx, BatchPath, models.AuditBatch{Entries: entries})
}

// post returns *errclass.HTTPError for non-2xx answers so callers can classify them.
func (c *Client) post(ctx context.Context, path string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal audit payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("audit service unavailable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return errclass.FromResponse(resp)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
