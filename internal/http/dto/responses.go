package dto

// ErrorResponse is the body of every failed request. Detail is a string, an
// ErrorDetail or a list of ValidationIssue.
type ErrorResponse struct {
	Detail    any    `json:"detail"`
	RequestID string `json:"request_id,omitempty"`
}

type ErrorDetail struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	RetryAfter int    `json:"retry_after,omitempty"`
}

type ValidationIssue struct {
	Loc  []any  `json:"loc"`
	Msg  string `json:"msg"`
	Type string `json:"type"`
}

type SuccessResponse struct {
	OK   bool `json:"ok"`
	Data any  `json:"data,omitempty"`
}

type IngestResult struct {
	Accepted   int `json:"accepted"`
	Duplicates int `json:"duplicates"`
}

func Detail(code, message string) ErrorResponse {
	return ErrorResponse{Detail: ErrorDetail{Code: code, Message: message}}
}
