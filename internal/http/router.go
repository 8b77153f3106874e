package http

import (
	"errors"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"

	"github.com/ads-marketplace/faultline/internal/config"
	"github.com/ads-marketplace/faultline/internal/http/dto"
	"github.com/ads-marketplace/faultline/internal/http/handlers"
	"github.com/ads-marketplace/faultline/internal/middleware"
	"github.com/ads-marketplace/faultline/internal/rbac"
)

// ErrorHandler renders errors that escape handlers in the detail shape.
func ErrorHandler(log *zap.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError
		var fe *fiber.Error
		if errors.As(err, &fe) {
			code = fe.Code
		}
		message := err.Error()
		if code >= fiber.StatusInternalServerError {
			log.Error("unhandled error", zap.String("path", c.Path()), zap.Error(err))
			message = "internal error"
		}
		resp := dto.Detail(errorCode(code), message)
		resp.RequestID = middleware.GetRequestID(c)
		return c.Status(code).JSON(resp)
	}
}

func errorCode(status int) string {
	switch status {
	case fiber.StatusNotFound:
		return "not_found"
	case fiber.StatusMethodNotAllowed:
		return "method_not_allowed"
	case fiber.StatusUpgradeRequired:
		return "upgrade_required"
	case fiber.StatusRequestEntityTooLarge:
		return "payload_too_large"
	}
	if status >= fiber.StatusInternalServerError {
		return "internal_error"
	}
	return "bad_request"
}

func SetupRouter(
	app *fiber.App,
	cfg *config.Config,
	log *zap.Logger,
	limiter middleware.Counter,
	healthHandler *handlers.HealthHandler,
	auditHandler *handlers.AuditHandler,
	stream *handlers.AuditStream,
) {
	// Global middleware
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins:  "*",
		AllowHeaders:  "Origin, Content-Type, Accept, Authorization, X-Request-ID",
		ExposeHeaders: "Retry-After, X-Request-ID",
	}))
	app.Use(middleware.RequestIDMiddleware())
	app.Use(middleware.LoggerMiddleware(log))

	app.Get("/health", healthHandler.Health)

	api := app.Group("/api/v1")
	api.Use(middleware.RateLimitMiddleware(limiter, cfg.RateLimitPerMinute, time.Minute, log))

	protected := api.Group("", middleware.AuthMiddleware(cfg, log))

	// Audit trail
	canWrite := middleware.RequirePermission(cfg, rbac.PermWriteAudit, log)
	protected.Post("/audit-trail", canWrite, auditHandler.CreateEntry)
	protected.Post("/audit-trail/batch", canWrite, auditHandler.CreateBatch)
	protected.Get("/audit-trail", middleware.RequirePermission(cfg, rbac.PermReadAudit, log), auditHandler.ListEntries)

	// WebSocket
	app.Use("/ws", handlers.WSUpgradeMiddleware())
	app.Get("/ws/audit", websocket.New(stream.HandleWS))
}
