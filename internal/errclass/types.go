package errclass

import "fmt"

type Category string

const (
	CategoryAuthentication Category = "authentication"
	CategoryAuthorization  Category = "authorization"
	CategoryValidation     Category = "validation"
	CategoryNetwork        Category = "network"
	CategoryServer         Category = "server"
	CategoryClient         Category = "client"
	CategoryRateLimit      Category = "rate_limit"
	CategoryNotFound       Category = "not_found"
	CategoryForm           Category = "form"
	CategoryFileUpload     Category = "file_upload"
	CategorySystem         Category = "system"
	CategoryUnknown        Category = "unknown"
)

type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

var severityRank = map[Severity]int{
	SeverityLow:      1,
	SeverityMedium:   2,
	SeverityHigh:     3,
	SeverityCritical: 4,
}

// ValidationError is a single field-level problem reported by the server.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// StructuredError is the normalized record produced for every failure.
// Context and OriginalError are diagnostic only and must not be rendered to users.
type StructuredError struct {
	Code             string            `json:"code"`
	Category         Category          `json:"category"`
	Severity         Severity          `json:"severity"`
	Message          string            `json:"message"`
	UserMessage      string            `json:"user_message"`
	Retryable        bool              `json:"retryable"`
	ValidationErrors []ValidationError `json:"validation_errors,omitempty"`
	Context          map[string]any    `json:"context,omitempty"`
	OriginalError    error             `json:"-"`
}

func (e StructuredError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e StructuredError) Unwrap() error {
	return e.OriginalError
}

// Escalate returns a copy with the given severity if it is higher than the current one.
func (e StructuredError) Escalate(s Severity) StructuredError {
	if severityRank[s] > severityRank[e.Severity] {
		e.Severity = s
	}
	return e
}
