package handlers

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/ads-marketplace/faultline/internal/auth"
	"github.com/ads-marketplace/faultline/internal/config"
	"github.com/ads-marketplace/faultline/internal/events"
	"github.com/ads-marketplace/faultline/internal/middleware"
	"github.com/ads-marketplace/faultline/internal/rbac"
)

// AuditStream fans high priority audit events out to connected admins.
type AuditStream struct {
	cfg        *config.Config
	subscriber events.Subscriber
	log        *zap.Logger

	mu          sync.Mutex
	connections map[*websocket.Conn]string
}

func NewAuditStream(cfg *config.Config, subscriber events.Subscriber, log *zap.Logger) *AuditStream {
	return &AuditStream{
		cfg:         cfg,
		subscriber:  subscriber,
		log:         log,
		connections: make(map[*websocket.Conn]string),
	}
}

func (h *AuditStream) Start(ctx context.Context) error {
	return h.subscriber.Subscribe(ctx, events.StreamAudit, h.broadcast)
}

func (h *AuditStream) broadcast(event events.Event) {
	data, err := json.Marshal(event)
	if err != nil {
		return
	}

	// writes on a single conn must not interleave
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn, subject := range h.connections {
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			h.log.Debug("ws write failed", zap.String("subject", subject), zap.Error(err))
		}
	}
}

func (h *AuditStream) ConnectionCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.connections)
}

// WSUpgradeMiddleware checks for websocket upgrade
func WSUpgradeMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	}
}

func (h *AuditStream) HandleWS(conn *websocket.Conn) {
	tokenStr := conn.Query("token")
	if tokenStr == "" {
		h.reject(conn, "missing_token", "missing token")
		return
	}

	claims, err := auth.ParseJWT(h.cfg.JWTSecret, tokenStr)
	if err != nil {
		h.reject(conn, "invalid_token", "invalid token")
		return
	}
	if !middleware.Can(h.cfg, claims.Role, claims.Subject, rbac.PermStreamAudit) {
		h.reject(conn, "forbidden", "missing permission "+rbac.PermStreamAudit)
		return
	}

	h.mu.Lock()
	h.connections[conn] = claims.Subject
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		delete(h.connections, conn)
		h.mu.Unlock()
		conn.Close()
	}()

	// Read loop (keep alive / pings)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
}

func (h *AuditStream) reject(conn *websocket.Conn, code, message string) {
	body, _ := json.Marshal(map[string]any{"detail": map[string]string{"code": code, "message": message}})
	_ = conn.WriteMessage(websocket.TextMessage, body)
	conn.Close()
}
