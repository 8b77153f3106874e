package handlers

import (
	"context"
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/ads-marketplace/faultline/internal/http/dto"
	"github.com/ads-marketplace/faultline/internal/middleware"
	"github.com/ads-marketplace/faultline/internal/models"
	"github.com/ads-marketplace/faultline/internal/repositories"
	"github.com/ads-marketplace/faultline/internal/services"
)

type AuditRecorder interface {
	Record(ctx context.Context, e models.AuditEntry) (models.AuditEntry, bool, error)
	RecordBatch(ctx context.Context, entries []models.AuditEntry) (services.IngestResult, error)
	List(ctx context.Context, f repositories.AuditFilter) ([]models.AuditEntry, error)
}

type AuditHandler struct {
	auditService AuditRecorder
	log          *zap.Logger
}

func NewAuditHandler(auditService AuditRecorder, log *zap.Logger) *AuditHandler {
	return &AuditHandler{auditService: auditService, log: log}
}

func (h *AuditHandler) CreateEntry(c *fiber.Ctx) error {
	var req models.AuditEntry
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.Detail("invalid_request", "invalid request body"))
	}

	entry, inserted, err := h.auditService.Record(c.UserContext(), req)
	if err != nil {
		return h.fail(c, err)
	}

	status := fiber.StatusCreated
	if !inserted {
		status = fiber.StatusOK
	}
	return c.Status(status).JSON(dto.SuccessResponse{OK: true, Data: entry})
}

func (h *AuditHandler) CreateBatch(c *fiber.Ctx) error {
	var req dto.AuditBatchRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.Detail("invalid_request", "invalid request body"))
	}

	res, err := h.auditService.RecordBatch(c.UserContext(), req.Entries)
	if err != nil {
		return h.fail(c, err)
	}

	h.log.Debug("audit batch ingested",
		zap.String("subject", middleware.GetSubject(c)),
		zap.Int("accepted", res.Accepted),
		zap.Int("duplicates", res.Duplicates),
	)
	return c.Status(fiber.StatusCreated).JSON(dto.SuccessResponse{OK: true, Data: dto.IngestResult{
		Accepted:   res.Accepted,
		Duplicates: res.Duplicates,
	}})
}

func (h *AuditHandler) ListEntries(c *fiber.Ctx) error {
	filter := repositories.AuditFilter{
		Action:   c.Query("action"),
		Severity: c.Query("severity"),
		Limit:    repositories.DefaultListLimit,
	}
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return h.fail(c, queryError("limit"))
		}
		filter.Limit = n
	}
	if v := c.Query("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return h.fail(c, queryError("offset"))
		}
		filter.Offset = n
	}

	entries, err := h.auditService.List(c.UserContext(), filter)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: entries})
}

func queryError(param string) error {
	return &services.ValidationError{Fields: []services.FieldError{
		{Loc: []any{"query", param}, Msg: "value is not a valid integer"},
	}}
}

func (h *AuditHandler) fail(c *fiber.Ctx, err error) error {
	var verr *services.ValidationError
	if errors.As(err, &verr) {
		issues := make([]dto.ValidationIssue, 0, len(verr.Fields))
		for _, f := range verr.Fields {
			issues = append(issues, dto.ValidationIssue{Loc: f.Loc, Msg: f.Msg, Type: "value_error"})
		}
		return c.Status(fiber.StatusUnprocessableEntity).JSON(dto.ErrorResponse{
			Detail:    issues,
			RequestID: middleware.GetRequestID(c),
		})
	}

	h.log.Error("audit request failed", zap.String("path", c.Path()), zap.Error(err))
	resp := dto.Detail("internal_error", "internal error")
	resp.RequestID = middleware.GetRequestID(c)
	return c.Status(fiber.StatusInternalServerError).JSON(resp)
}
