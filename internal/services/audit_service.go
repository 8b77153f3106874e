package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ads-marketplace/faultline/internal/audit"
	"github.com/ads-marketplace/faultline/internal/events"
	"github.com/ads-marketplace/faultline/internal/models"
	"github.com/ads-marketplace/faultline/internal/repositories"
)

const (
	MaxBatchEntries = 100
	maxActionLen    = 100
	maxMessageLen   = 2000
)

type AuditStore interface {
	Insert(ctx context.Context, e models.AuditEntry) (bool, error)
	InsertBatch(ctx context.Context, entries []models.AuditEntry) (int, error)
	List(ctx context.Context, f repositories.AuditFilter) ([]models.AuditEntry, error)
}

type FieldError struct {
	Loc []any
	Msg string
}

// ValidationError lists every problem found in a submission.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, fmt.Sprintf("%v: %s", f.Loc, f.Msg))
	}
	return "invalid audit entry: " + strings.Join(parts, "; ")
}

func (e *ValidationError) add(msg string, loc ...any) {
	e.Fields = append(e.Fields, FieldError{Loc: loc, Msg: msg})
}

type IngestResult struct {
	Accepted   int
	Duplicates int
}

// AuditService normalizes incoming entries before they are stored. Severity is
// always derived here; whatever the client sent is ignored.
type AuditService struct {
	store     AuditStore
	publisher events.Publisher
	log       *zap.Logger
	now       func() time.Time
}

func NewAuditService(store AuditStore, publisher events.Publisher, log *zap.Logger) *AuditService {
	return &AuditService{store: store, publisher: publisher, log: log, now: time.Now}
}

func (s *AuditService) Record(ctx context.Context, e models.AuditEntry) (models.AuditEntry, bool, error) {
	verr := &ValidationError{}
	e = s.normalize(e, verr, "body")
	if len(verr.Fields) > 0 {
		return e, false, verr
	}

	inserted, err := s.store.Insert(ctx, e)
	if err != nil {
		return e, false, err
	}
	if inserted {
		s.announce(ctx, e)
	}
	return e, inserted, nil
}

// RecordBatch stores all entries or none; one invalid entry rejects the batch.
func (s *AuditService) RecordBatch(ctx context.Context, entries []models.AuditEntry) (IngestResult, error) {
	verr := &ValidationError{}
	switch {
	case len(entries) == 0:
		verr.add("at least one entry is required", "body", "entries")
	case len(entries) > MaxBatchEntries:
		verr.add(fmt.Sprintf("at most %d entries per batch", MaxBatchEntries), "body", "entries")
	}
	if len(verr.Fields) > 0 {
		return IngestResult{}, verr
	}

	normalized := make([]models.AuditEntry, len(entries))
	for i, e := range entries {
		normalized[i] = s.normalize(e, verr, "body", "entries", i)
	}
	if len(verr.Fields) > 0 {
		return IngestResult{}, verr
	}

	inserted, err := s.store.InsertBatch(ctx, normalized)
	if err != nil {
		return IngestResult{}, err
	}
	for _, e := range normalized {
		s.announce(ctx, e)
	}
	return IngestResult{Accepted: inserted, Duplicates: len(normalized) - inserted}, nil
}

func (s *AuditService) List(ctx context.Context, f repositories.AuditFilter) ([]models.AuditEntry, error) {
	return s.store.List(ctx, f)
}

func (s *AuditService) normalize(e models.AuditEntry, verr *ValidationError, loc ...any) models.AuditEntry {
	at := func(field string) []any {
		return append(append([]any{}, loc...), field)
	}

	e.Action = strings.TrimSpace(e.Action)
	switch {
	case e.Action == "":
		verr.add("field required", at("action")...)
	case len(e.Action) > maxActionLen:
		verr.add("action is too long", at("action")...)
	}
	e.ErrorMessage = truncateUTF8(e.ErrorMessage, maxMessageLen)

	now := s.now().UTC()
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = now
	}
	e.Severity = string(audit.SeverityFor(audit.Action(e.Action)))
	e.Metadata = audit.SanitizeForAudit(e.Metadata)
	e.Changes = audit.SanitizeChanges(e.Changes)
	e.ReceivedAt = &now
	return e
}

// announce publishes high priority entries; publish failures are only logged.
func (s *AuditService) announce(ctx context.Context, e models.AuditEntry) {
	if s.publisher == nil || !audit.IsHighPriority(audit.Action(e.Action)) {
		return
	}
	err := s.publisher.Publish(ctx, events.StreamAudit, events.Event{
		Type: events.EventAuditRecorded,
		Payload: map[string]any{
			"id":             e.ID.String(),
			"action":         e.Action,
			"severity":       e.Severity,
			"user_id":        e.UserID,
			"target_user_id": e.TargetUserID,
			"success":        e.Success,
			"timestamp":      e.Timestamp,
		},
	})
	if err != nil {
		s.log.Warn("failed to publish audit event", zap.String("id", e.ID.String()), zap.Error(err))
	}
}

func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// truncateUTF8 cuts s to at most n bytes without splitting a rune.
func truncateUTF8(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
