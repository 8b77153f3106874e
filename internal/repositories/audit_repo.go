package repositories

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ads-marketplace/faultline/internal/models"
)

const (
	DefaultListLimit = 50
	MaxListLimit     = 500
)

type AuditFilter struct {
	Action   string
	Severity string
	Limit    int
	Offset   int
}

type AuditRepo struct {
	pool *pgxpool.Pool
}

func NewAuditRepo(pool *pgxpool.Pool) *AuditRepo {
	return &AuditRepo{pool: pool}
}

const insertAuditSQL = `
	INSERT INTO audit_trail (id, action, severity, user_id, user_email, user_role,
		target_user_id, target_user_email, changes, metadata, success, error_message, occurred_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	ON CONFLICT (id) DO NOTHING
`

func insertArgs(e models.AuditEntry) []any {
	return []any{
		e.ID, e.Action, e.Severity, e.UserID, e.UserEmail, e.UserRole,
		e.TargetUserID, e.TargetUserEmail, e.Changes, e.Metadata, e.Success, e.ErrorMessage, e.Timestamp,
	}
}

// Insert stores e and reports false when an entry with the same id already exists.
func (r *AuditRepo) Insert(ctx context.Context, e models.AuditEntry) (bool, error) {
	tag, err := r.pool.Exec(ctx, insertAuditSQL, insertArgs(e)...)
	if err != nil {
		return false, fmt.Errorf("insert audit entry: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// InsertBatch stores all entries in one transaction and returns how many were new.
func (r *AuditRepo) InsertBatch(ctx context.Context, entries []models.AuditEntry) (int, error) {
	if len(entries) == 0 {
		return 0, nil
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	batch := &pgx.Batch{}
	for _, e := range entries {
		batch.Queue(insertAuditSQL, insertArgs(e)...)
	}
	br := tx.SendBatch(ctx, batch)

	inserted := 0
	for i := range entries {
		tag, err := br.Exec()
		if err != nil {
			_ = br.Close()
			return 0, fmt.Errorf("insert audit entry %d: %w", i, err)
		}
		inserted += int(tag.RowsAffected())
	}
	if err := br.Close(); err != nil {
		return 0, err
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return inserted, nil
}

// List returns entries newest first.
func (r *AuditRepo) List(ctx context.Context, f AuditFilter) ([]models.AuditEntry, error) {
	f = f.normalized()

	query := `
		SELECT id, action, severity, user_id, user_email, user_role, target_user_id, target_user_email,
		       changes, metadata, success, error_message, occurred_at, received_at
		FROM audit_trail
	`
	args := []any{}
	argIdx := 1
	where := []string{}

	if f.Action != "" {
		where = append(where, fmt.Sprintf("action = $%d", argIdx))
		args = append(args, f.Action)
		argIdx++
	}
	if f.Severity != "" {
		where = append(where, fmt.Sprintf("severity = $%d", argIdx))
		args = append(args, f.Severity)
		argIdx++
	}
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += fmt.Sprintf(" ORDER BY received_at DESC, occurred_at DESC LIMIT $%d OFFSET $%d", argIdx, argIdx+1)
	args = append(args, f.Limit, f.Offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := []models.AuditEntry{}
	for rows.Next() {
		var (
			e          models.AuditEntry
			receivedAt time.Time
		)
		if err := rows.Scan(&e.ID, &e.Action, &e.Severity, &e.UserID, &e.UserEmail, &e.UserRole,
			&e.TargetUserID, &e.TargetUserEmail, &e.Changes, &e.Metadata, &e.Success, &e.ErrorMessage,
			&e.Timestamp, &receivedAt); err != nil {
			return nil, err
		}
		e.ReceivedAt = &receivedAt
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// DeleteOlderThan removes entries received before cutoff, at most limit rows
// per call so large backlogs are pruned in short transactions.
func (r *AuditRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time, limit int) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM audit_trail WHERE id IN (
			SELECT id FROM audit_trail WHERE received_at < $1 LIMIT $2
		)
	`, cutoff, limit)
	if err != nil {
		return 0, fmt.Errorf("prune audit trail: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (f AuditFilter) normalized() AuditFilter {
	if f.Limit <= 0 {
		f.Limit = DefaultListLimit
	}
	if f.Limit > MaxListLimit {
		f.Limit = MaxListLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return f
}
