package errclass

import (
	"net/http"
	"strings"
	"time"
)

type codeRule struct {
	category Category
	severity Severity
}

// Keys are upper-cased; lookups are case-insensitive.
var codeRules = map[string]codeRule{
	"NETWORK_ERROR": {CategoryNetwork, SeverityMedium},
	"ERR_NETWORK":   {CategoryNetwork, SeverityMedium},
	"ECONNREFUSED":  {CategoryNetwork, SeverityMedium},
	"ECONNRESET":    {CategoryNetwork, SeverityMedium},
	"ECONNABORTED":  {CategoryNetwork, SeverityMedium},
	"ETIMEDOUT":     {CategoryNetwork, SeverityMedium},
	"ENOTFOUND":     {CategoryNetwork, SeverityMedium},

	"AUTH_FAILED":         {CategoryAuthentication, SeverityHigh},
	"INVALID_CREDENTIALS": {CategoryAuthentication, SeverityHigh},
	"SESSION_EXPIRED":     {CategoryAuthentication, SeverityHigh},
	"TOKEN_EXPIRED":       {CategoryAuthentication, SeverityHigh},
	"EMAIL_NOT_VERIFIED":  {CategoryValidation, SeverityMedium},

	"FORBIDDEN":          {CategoryAuthorization, SeverityHigh},
	"PERMISSION_DENIED":  {CategoryAuthorization, SeverityHigh},
	"ACCOUNT_LOCKED":     {CategoryAuthorization, SeverityHigh},
	"ACCOUNT_DISABLED":   {CategoryAuthorization, SeverityHigh},
	"ACCOUNT_SUSPENDED":  {CategoryAuthorization, SeverityHigh},
	"CSRF_TOKEN_INVALID": {CategoryAuthorization, SeverityHigh},
	"CSRF_TOKEN_MISSING": {CategoryAuthorization, SeverityHigh},

	"VALIDATION_FAILED": {CategoryValidation, SeverityMedium},
	"FORM_ERROR":        {CategoryForm, SeverityLow},
	"FILE_TOO_LARGE":    {CategoryFileUpload, SeverityMedium},
	"INVALID_FILE_TYPE": {CategoryFileUpload, SeverityMedium},
	"UPLOAD_FAILED":     {CategoryFileUpload, SeverityMedium},
	"RATE_LIMITED":      {CategoryRateLimit, SeverityMedium},
	"NOT_FOUND":         {CategoryNotFound, SeverityMedium},
	"SERVER_ERROR":      {CategoryServer, SeverityHigh},
	"INTERNAL_ERROR":    {CategoryServer, SeverityHigh},
	"SYSTEM_ERROR":      {CategorySystem, SeverityCritical},
}

// Codes handled by redirect rather than inline display.
var hiddenCodes = map[string]bool{
	"CSRF_TOKEN_INVALID": true,
	"CSRF_TOKEN_MISSING": true,
	"SESSION_EXPIRED":    true,
}

var retryableCategories = map[Category]bool{
	CategoryNetwork:   true,
	CategoryServer:    true,
	CategoryRateLimit: true,
	CategoryUnknown:   true,
}

var userMessages = map[Category]string{
	CategoryServer:  "Something went wrong on our end. Please try again later.",
	CategoryNetwork: "Unable to connect. Please check your internet connection and try again.",
	CategorySystem:  "A system error occurred. Please try again later.",
	CategoryUnknown: "An unexpected error occurred. Please try again.",
}

const maxUserMessage = 200

// ClassifyError maps any failure value to a StructuredError.
// The result depends only on v and ctx, apart from the timestamp added to Context
// when ctx does not carry one.
func ClassifyError(v any, ctx map[string]any) StructuredError {
	f := Normalize(v)

	e := StructuredError{
		Message:       messageOf(f),
		Context:       buildContext(ctx),
		OriginalError: f.Cause,
	}
	if e.OriginalError == nil {
		if err, ok := v.(error); ok {
			e.OriginalError = err
		}
	}

	code := strings.ToUpper(f.ExplicitCode())
	if rule, ok := codeRules[code]; ok {
		e.Code = code
		e.Category = rule.category
		e.Severity = rule.severity
	} else {
		switch {
		case f.Kind == KindNetwork:
			e.Code, e.Category, e.Severity = "NETWORK_ERROR", CategoryNetwork, SeverityMedium
		case f.Status > 0:
			e.Code, e.Category = statusCategory(f.Status)
			e.Severity = StatusSeverity(f.Status)
		default:
			e.Code, e.Category, e.Severity = "UNKNOWN_ERROR", CategoryUnknown, SeverityMedium
		}
	}

	e.Retryable = retryableCategories[e.Category] || f.Status == http.StatusRequestTimeout
	if e.Category == CategoryValidation {
		e.ValidationErrors = validationErrors(f)
	}
	e.UserMessage = userMessage(e.Category, e.Message)
	return e
}

// StatusCategory maps an HTTP status to its category.
func StatusCategory(status int) Category {
	_, c := statusCategory(status)
	return c
}

func statusCategory(status int) (string, Category) {
	switch {
	case status == http.StatusBadRequest, status == http.StatusUnprocessableEntity:
		return "VALIDATION_FAILED", CategoryValidation
	case status == http.StatusUnauthorized:
		return "AUTH_FAILED", CategoryAuthentication
	case status == http.StatusForbidden:
		return "FORBIDDEN", CategoryAuthorization
	case status == http.StatusNotFound:
		return "NOT_FOUND", CategoryNotFound
	case status == http.StatusTooManyRequests:
		return "RATE_LIMITED", CategoryRateLimit
	case status >= 500:
		return "SERVER_ERROR", CategoryServer
	case status >= 400:
		return "CLIENT_ERROR", CategoryClient
	}
	return "UNKNOWN_ERROR", CategoryUnknown
}

// StatusSeverity maps an HTTP status to its severity.
func StatusSeverity(status int) Severity {
	switch {
	case status >= 500, status == http.StatusUnauthorized, status == http.StatusForbidden:
		return SeverityHigh
	case status >= 400:
		return SeverityMedium
	}
	return SeverityLow
}

// ShouldAutoRetry reports whether the failed operation may be retried without asking the user.
func ShouldAutoRetry(e StructuredError) bool {
	if e.Severity == SeverityCritical {
		return false
	}
	return e.Category == CategoryNetwork || e.Category == CategoryServer
}

// ShouldShowToUser is false for codes handled by redirect instead of inline display.
func ShouldShowToUser(e StructuredError) bool {
	return !hiddenCodes[strings.ToUpper(e.Code)]
}

func buildContext(ctx map[string]any) map[string]any {
	out := make(map[string]any, len(ctx)+1)
	for k, v := range ctx {
		out[k] = v
	}
	if _, ok := out["timestamp"]; !ok {
		out["timestamp"] = time.Now().UTC().Format(time.RFC3339)
	}
	return out
}

func userMessage(c Category, msg string) string {
	if fixed, ok := userMessages[c]; ok {
		return fixed
	}
	msg = strings.Join(strings.Fields(msg), " ")
	if msg == "" || msg == fallbackMessage {
		return userMessages[CategoryUnknown]
	}
	if r := []rune(msg); len(r) > maxUserMessage {
		msg = string(r[:maxUserMessage-3]) + "..."
	}
	return msg
}
