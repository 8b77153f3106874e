package dto

import "github.com/ads-marketplace/faultline/internal/models"

const MaxBatchEntries = 100

type AuditBatchRequest struct {
	Entries []models.AuditEntry `json:"entries"`
}

type AuditListQuery struct {
	Limit  int    `query:"limit"`
	Offset int    `query:"offset"`
	Action string `query:"action"`
}
