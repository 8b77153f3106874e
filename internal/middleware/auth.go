package middleware

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/ads-marketplace/faultline/internal/auth"
	"github.com/ads-marketplace/faultline/internal/config"
	"github.com/ads-marketplace/faultline/internal/http/dto"
	"github.com/ads-marketplace/faultline/internal/rbac"
)

const (
	CtxSubject = "subject"
	CtxRole    = "role"
	CtxEmail   = "email"
)

// AuthMiddleware requires a bearer JWT. Error bodies carry a detail code the
// client auth parser understands.
func AuthMiddleware(cfg *config.Config, log *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get("Authorization")
		if authHeader == "" {
			return unauthorized(c, "missing_token", "missing authorization header")
		}

		tokenStr := strings.TrimPrefix(authHeader, "Bearer ")
		if tokenStr == authHeader {
			return unauthorized(c, "invalid_token", "invalid authorization format")
		}

		claims, err := auth.ParseJWT(cfg.JWTSecret, tokenStr)
		if err != nil {
			log.Debug("jwt parse error", zap.Error(err))
			if errors.Is(err, auth.ErrTokenExpired) {
				return unauthorized(c, "session_expired", "Your session has expired. Please log in again.")
			}
			return unauthorized(c, "invalid_token", "invalid token")
		}

		c.Locals(CtxSubject, claims.Subject)
		c.Locals(CtxRole, claims.Role)
		c.Locals(CtxEmail, claims.Email)
		return c.Next()
	}
}

func unauthorized(c *fiber.Ctx, code, message string) error {
	c.Set(fiber.HeaderWWWAuthenticate, "Bearer")
	return c.Status(fiber.StatusUnauthorized).JSON(dto.Detail(code, message))
}

func GetSubject(c *fiber.Ctx) string {
	s, _ := c.Locals(CtxSubject).(string)
	return s
}

func GetRole(c *fiber.Ctx) string {
	r, _ := c.Locals(CtxRole).(string)
	return r
}

func GetEmail(c *fiber.Ctx) string {
	e, _ := c.Locals(CtxEmail).(string)
	return e
}

// Can reports whether the caller's role grants perm. Subjects listed in
// ADMIN_SUBJECTS are granted everything.
func Can(cfg *config.Config, role, subject, perm string) bool {
	return rbac.HasPermission(role, perm) || cfg.IsAdmin(subject)
}

// RequirePermission must run after AuthMiddleware. Granted reads of stored
// entries are logged with the caller's subject.
func RequirePermission(cfg *config.Config, perm string, log *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		subject := GetSubject(c)
		if !Can(cfg, GetRole(c), subject, perm) {
			return c.Status(fiber.StatusForbidden).JSON(dto.Detail("forbidden", "missing permission "+perm))
		}
		if rbac.IsReadOperation(perm) {
			log.Info("audit trail read",
				zap.String("subject", subject),
				zap.String("permission", perm),
				zap.String("path", c.Path()),
				zap.String("request_id", GetRequestID(c)),
			)
		}
		return c.Next()
	}
}
