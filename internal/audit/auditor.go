package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ads-marketplace/faultline/internal/logging"
	"github.com/ads-marketplace/faultline/internal/models"
)

type Actor struct {
	ID    string
	Email string
	Role  string
}

// AdminAction describes one action to record. A nil Err means success.
type AdminAction struct {
	Action      Action
	Actor       *Actor
	TargetID    string
	TargetEmail string
	Changes     map[string]models.Change
	Metadata    map[string]any
	Err         error
}

// NewEntry builds a wire entry with a fresh id, derived severity, sanitized
// metadata and a UTC timestamp.
func NewEntry(p AdminAction) models.AuditEntry {
	entry := models.AuditEntry{
		ID:              uuid.New(),
		Action:          string(p.Action),
		Severity:        string(SeverityFor(p.Action)),
		TargetUserID:    p.TargetID,
		TargetUserEmail: p.TargetEmail,
		Changes:         p.Changes,
		Metadata:        SanitizeForAudit(p.Metadata),
		Success:         p.Err == nil,
		Timestamp:       time.Now().UTC(),
	}
	if p.Actor != nil {
		entry.UserID = p.Actor.ID
		entry.UserEmail = p.Actor.Email
		entry.UserRole = p.Actor.Role
	}
	if p.Err != nil {
		entry.ErrorMessage = p.Err.Error()
	}
	return entry
}

// Auditor sends individual entries straight to the single-entry endpoint.
// It never uses the batcher, so a broken batch path cannot hold back
// security-critical events.
type Auditor struct {
	transport Transport
	log       logging.Logger
}

func NewAuditor(transport Transport, log logging.Logger) *Auditor {
	if log == nil {
		log = logging.Nop()
	}
	return &Auditor{transport: transport, log: log}
}

// LogAdminAction records p immediately. Delivery failures are logged, never returned.
func (a *Auditor) LogAdminAction(ctx context.Context, p AdminAction) {
	entry := NewEntry(p)

	fields := map[string]any{
		"id":       entry.ID.String(),
		"action":   entry.Action,
		"severity": entry.Severity,
		"success":  entry.Success,
	}
	if entry.UserID != "" {
		fields["user_id"] = entry.UserID
	}
	if entry.TargetUserID != "" {
		fields["target_user_id"] = entry.TargetUserID
	}
	if IsHighPriority(p.Action) {
		a.log.Warn("audit", "admin action", fields)
	} else {
		a.log.Info("audit", "admin action", fields)
	}

	if err := a.transport.Send(ctx, entry); err != nil {
		a.log.Error("audit", "failed to send audit entry", map[string]any{
			"id":     entry.ID.String(),
			"action": entry.Action,
			"error":  err,
		})
	}
}

func (a *Auditor) LogUserCreation(ctx context.Context, actor *Actor, userID, email string, data map[string]any) {
	a.LogAdminAction(ctx, AdminAction{
		Action:      ActionUserCreate,
		Actor:       actor,
		TargetID:    userID,
		TargetEmail: email,
		Metadata:    data,
	})
}

func (a *Auditor) LogUserUpdate(ctx context.Context, actor *Actor, userID, email string, oldData, newData map[string]any) {
	a.LogAdminAction(ctx, AdminAction{
		Action:      ActionUserUpdate,
		Actor:       actor,
		TargetID:    userID,
		TargetEmail: email,
		Changes:     FormatChanges(SanitizeForAudit(oldData), SanitizeForAudit(newData)),
	})
}

func (a *Auditor) LogUserDeletion(ctx context.Context, actor *Actor, userID, email string) {
	a.LogAdminAction(ctx, AdminAction{
		Action:      ActionUserDelete,
		Actor:       actor,
		TargetID:    userID,
		TargetEmail: email,
	})
}

// LogBulkOperation records a bulk action over userIDs. Only bulk_delete and
// bulk_update are accepted.
func (a *Auditor) LogBulkOperation(ctx context.Context, actor *Actor, action Action, userIDs []string, meta map[string]any) error {
	if action != ActionUserBulkDelete && action != ActionUserBulkUpdate && action != ActionDataBulkDelete {
		return fmt.Errorf("not a bulk action: %s", action)
	}
	md := make(map[string]any, len(meta)+2)
	for k, v := range meta {
		md[k] = v
	}
	md["user_ids"] = userIDs
	md["count"] = len(userIDs)
	a.LogAdminAction(ctx, AdminAction{Action: action, Actor: actor, Metadata: md})
	return nil
}

func (a *Auditor) LogRoleChange(ctx context.Context, actor *Actor, userID, email, oldRole, newRole string) {
	a.LogAdminAction(ctx, AdminAction{
		Action:      ActionUserRoleChange,
		Actor:       actor,
		TargetID:    userID,
		TargetEmail: email,
		Changes:     map[string]models.Change{"role": {Old: oldRole, New: newRole}},
	})
}

func (a *Auditor) LogConfigChange(ctx context.Context, actor *Actor, key string, oldValue, newValue any) {
	a.LogAdminAction(ctx, AdminAction{
		Action:   ActionSystemConfigChange,
		Actor:    actor,
		Changes:  FormatChanges(SanitizeForAudit(map[string]any{key: oldValue}), SanitizeForAudit(map[string]any{key: newValue})),
		Metadata: map[string]any{"setting": key},
	})
}

func (a *Auditor) LogUnauthorizedAccess(ctx context.Context, actor *Actor, resource, reason string) {
	a.LogAdminAction(ctx, AdminAction{
		Action:   ActionAuthUnauthorizedAccess,
		Actor:    actor,
		Metadata: map[string]any{"resource": resource, "reason": reason},
		Err:      fmt.Errorf("unauthorized access to %s", resource),
	})
}

func (a *Auditor) LogDataExport(ctx context.Context, actor *Actor, kind string, count int, filters map[string]any) {
	a.LogAdminAction(ctx, AdminAction{
		Action:   ActionDataExport,
		Actor:    actor,
		Metadata: map[string]any{"export_type": kind, "record_count": count, "filters": filters},
	})
}

// LogLoginFailure has no actor; the attempted email goes into metadata.
func (a *Auditor) LogLoginFailure(ctx context.Context, email, reason string, meta map[string]any) {
	md := make(map[string]any, len(meta)+2)
	for k, v := range meta {
		md[k] = v
	}
	md["email"] = email
	md["reason"] = reason
	a.LogAdminAction(ctx, AdminAction{
		Action:   ActionAuthLoginFailed,
		Metadata: md,
		Err:      fmt.Errorf("login failed: %s", reason),
	})
}

// WithAuditLog wraps fn so every call records an audit entry. The result and
// error of fn reach the caller unchanged.
func WithAuditLog[T any](
	a *Auditor,
	action Action,
	getUser func() *Actor,
	getMetadata func() map[string]any,
	fn func(ctx context.Context) (T, error),
) func(ctx context.Context) (T, error) {
	return func(ctx context.Context) (T, error) {
		res, err := fn(ctx)

		var actor *Actor
		if getUser != nil {
			actor = getUser()
		}
		md := map[string]any{}
		if getMetadata != nil {
			for k, v := range getMetadata() {
				md[k] = v
			}
		}
		if err == nil {
			md["result"] = res
		}
		a.LogAdminAction(ctx, AdminAction{Action: action, Actor: actor, Metadata: md, Err: err})

		return res, err
	}
}

// WithAuditLogArg is WithAuditLog for functions taking one argument.
func WithAuditLogArg[A, T any](
	a *Auditor,
	action Action,
	getUser func() *Actor,
	getMetadata func(arg A) map[string]any,
	fn func(ctx context.Context, arg A) (T, error),
) func(ctx context.Context, arg A) (T, error) {
	return func(ctx context.Context, arg A) (T, error) {
		var meta func() map[string]any
		if getMetadata != nil {
			meta = func() map[string]any { return getMetadata(arg) }
		}
		wrapped := WithAuditLog(a, action, getUser, meta, func(ctx context.Context) (T, error) {
			return fn(ctx, arg)
		})
		return wrapped(ctx)
	}
}
