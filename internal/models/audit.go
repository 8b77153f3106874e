package models

import (
	"time"

	"github.com/google/uuid"
)

// AuditEntry is one recorded administrative or security-relevant action.
// Actor and target fields are empty for anonymous attempts.
type AuditEntry struct {
	ID              uuid.UUID         `json:"id"`
	Action          string            `json:"action"`
	Severity        string            `json:"severity"`
	UserID          string            `json:"user_id,omitempty"`
	UserEmail       string            `json:"user_email,omitempty"`
	UserRole        string            `json:"user_role,omitempty"`
	TargetUserID    string            `json:"target_user_id,omitempty"`
	TargetUserEmail string            `json:"target_user_email,omitempty"`
	Changes         map[string]Change `json:"changes,omitempty"`
	Metadata        map[string]any    `json:"metadata,omitempty"`
	Success         bool              `json:"success"`
	ErrorMessage    string            `json:"error_message,omitempty"`
	Timestamp       time.Time         `json:"timestamp"`
	ReceivedAt      *time.Time        `json:"received_at,omitempty"`
}

type Change struct {
	Old any `json:"old"`
	New any `json:"new"`
}

// AuditBatch is the body of the batch endpoint.
type AuditBatch struct {
	Entries []AuditEntry `json:"entries"`
}
