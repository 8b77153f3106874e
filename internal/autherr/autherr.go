// Package autherr turns failed sign-in and session calls into actionable guidance.
package autherr

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/ads-marketplace/faultline/internal/errclass"
)

type Type string

const (
	TypeAuthentication Type = "authentication"
	TypeAuthorization  Type = "authorization"
	TypeValidation     Type = "validation"
	TypeRateLimit      Type = "rate_limit"
	TypeNetwork        Type = "network"
	TypeServer         Type = "server"
	TypeUnknown        Type = "unknown"
)

type Code string

const (
	CodeEmailNotVerified   Code = "email_not_verified"
	CodeInvalidCredentials Code = "invalid_credentials"
	CodeAccountLocked      Code = "account_locked"
	CodeRateLimited        Code = "rate_limited"
	CodeSessionExpired     Code = "session_expired"
	CodeAccountDisabled    Code = "account_disabled"
	CodeAccountSuspended   Code = "account_suspended"
)

type Action string

const (
	ActionRetry            Action = "retry"
	ActionWait             Action = "wait"
	ActionContactSupport   Action = "contact_support"
	ActionCheckCredentials Action = "check_credentials"
)

// Details is what the sign-in UI renders: Message plus Action.
type Details struct {
	Type      Type   `json:"type"`
	Code      Code   `json:"code,omitempty"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
	Action    Action `json:"action,omitempty"`
	Details   string `json:"details,omitempty"`
	Status    int    `json:"status,omitempty"`
}

type codeRule struct {
	typ       Type
	retryable bool
	action    Action
	message   string
}

var codeRules = map[Code]codeRule{
	CodeEmailNotVerified:   {TypeValidation, false, ActionContactSupport, "Please verify your email address before signing in."},
	CodeInvalidCredentials: {TypeAuthentication, true, ActionCheckCredentials, "Incorrect email or password."},
	CodeAccountLocked:      {TypeAuthorization, false, ActionContactSupport, "Your account has been locked due to too many failed sign-in attempts."},
	CodeRateLimited:        {TypeRateLimit, true, ActionWait, "Too many attempts. Please wait before trying again."},
	CodeSessionExpired:     {TypeAuthentication, true, ActionRetry, "Your session has expired. Please sign in again."},
	CodeAccountDisabled:    {TypeAuthorization, false, ActionContactSupport, "Your account has been disabled. Please contact support."},
	CodeAccountSuspended:   {TypeAuthorization, false, ActionContactSupport, "Your account has been suspended. Please contact support."},
}

const (
	msgUnknown = "An unexpected error occurred. Please try again."
	msgNetwork = "Unable to reach the server. Please check your connection and try again."
	msgServer  = "The server encountered an error. Please try again later."
)

// Parse maps a raw failure to auth guidance. An explicit code always beats the
// HTTP status and any wording of the message.
func Parse(v any) Details {
	f := errclass.Normalize(v)
	if f.Kind == errclass.KindEmpty {
		return Details{Type: TypeUnknown, Message: msgUnknown, Retryable: true, Action: ActionRetry}
	}

	if code, ok := explicitCode(f); ok {
		return fromCode(code, f)
	}
	return fromStatus(f)
}

func explicitCode(f errclass.Failure) (Code, bool) {
	for _, c := range []string{f.PayloadString("code"), f.PayloadString("detail", "code"), f.Code} {
		code := Code(strings.ToLower(c))
		if _, ok := codeRules[code]; ok {
			return code, true
		}
	}
	return "", false
}

func fromCode(code Code, f errclass.Failure) Details {
	rule := codeRules[code]
	d := Details{
		Type:      rule.typ,
		Code:      code,
		Message:   rule.message,
		Retryable: rule.retryable,
		Action:    rule.action,
		Status:    f.Status,
	}
	switch code {
	case CodeAccountLocked:
		if until := firstString(f, "locked_until"); until != "" {
			d.Details = "Account locked until " + until
		}
	case CodeRateLimited:
		if secs, ok := retryAfter(f); ok {
			d.Details = fmt.Sprintf("Please wait %d seconds before trying again", secs)
		}
	}
	return d
}

func fromStatus(f errclass.Failure) Details {
	payloadMsg := errclass.PayloadMessage(f)
	pick := func(def string) string {
		if payloadMsg != "" {
			return payloadMsg
		}
		return def
	}

	d := Details{Status: f.Status}
	switch {
	case f.Status == http.StatusBadRequest:
		d.Type, d.Action = TypeValidation, ActionCheckCredentials
		d.Message = pick("Invalid request. Please check your input.")
	case f.Status == http.StatusUnauthorized:
		d.Type, d.Action, d.Retryable = TypeAuthentication, ActionCheckCredentials, true
		d.Message = pick("Invalid email or password.")
		if n, ok := firstInt(f, "remaining_attempts"); ok {
			d.Details = fmt.Sprintf("You have %d attempts remaining", n)
		}
	case f.Status == http.StatusForbidden:
		d.Type, d.Action = TypeAuthorization, ActionContactSupport
		d.Message = pick("You do not have permission to perform this action.")
	case f.Status == http.StatusUnprocessableEntity:
		d.Type, d.Action = TypeValidation, ActionCheckCredentials
		d.Message = pick("Please check the information you entered.")
	case f.Status == http.StatusTooManyRequests:
		d.Type, d.Action, d.Retryable = TypeRateLimit, ActionWait, true
		d.Message = pick("Too many attempts. Please wait before trying again.")
		if secs, ok := retryAfter(f); ok {
			d.Details = fmt.Sprintf("Please wait %d seconds before trying again", secs)
		}
	case f.Status >= 500:
		d.Type, d.Action, d.Retryable = TypeServer, ActionRetry, true
		d.Message = msgServer
	case f.Kind == errclass.KindNetwork:
		d.Type, d.Action, d.Retryable = TypeNetwork, ActionRetry, true
		d.Message = msgNetwork
	default:
		d.Type, d.Action, d.Retryable = TypeUnknown, ActionRetry, true
		d.Message = errclass.ExtractErrorMessage(f)
	}
	return d
}

func firstString(f errclass.Failure, key string) string {
	if s := f.PayloadString("detail", key); s != "" {
		return s
	}
	return f.PayloadString(key)
}

func firstInt(f errclass.Failure, key string) (int, bool) {
	if n, ok := f.PayloadInt("detail", key); ok {
		return n, true
	}
	return f.PayloadInt(key)
}

func retryAfter(f errclass.Failure) (int, bool) {
	if n, ok := firstInt(f, "retry_after"); ok {
		return n, true
	}
	if f.Header != nil {
		if n, err := strconv.Atoi(strings.TrimSpace(f.Header.Get("Retry-After"))); err == nil {
			return n, true
		}
	}
	return 0, false
}

func IsEmailVerificationError(d Details) bool { return d.Code == CodeEmailNotVerified }
func IsCredentialError(d Details) bool        { return d.Code == CodeInvalidCredentials }
func IsAccountLockedError(d Details) bool     { return d.Code == CodeAccountLocked }
func IsRateLimitError(d Details) bool         { return d.Code == CodeRateLimited }
func IsSessionExpiredError(d Details) bool    { return d.Code == CodeSessionExpired }

func IsAccountDisabledError(d Details) bool {
	return d.Code == CodeAccountDisabled || d.Code == CodeAccountSuspended
}

var typeCategories = map[Type]errclass.Category{
	TypeAuthentication: errclass.CategoryAuthentication,
	TypeAuthorization:  errclass.CategoryAuthorization,
	TypeValidation:     errclass.CategoryValidation,
	TypeRateLimit:      errclass.CategoryRateLimit,
	TypeNetwork:        errclass.CategoryNetwork,
	TypeServer:         errclass.CategoryServer,
	TypeUnknown:        errclass.CategoryUnknown,
}

// ToStructured bridges auth guidance into the general error record.
func ToStructured(d Details) errclass.StructuredError {
	cat := typeCategories[d.Type]
	if cat == "" {
		cat = errclass.CategoryUnknown
	}
	sev := errclass.SeverityMedium
	switch {
	case d.Status > 0:
		sev = errclass.StatusSeverity(d.Status)
	case cat == errclass.CategoryAuthentication, cat == errclass.CategoryAuthorization, cat == errclass.CategoryServer:
		sev = errclass.SeverityHigh
	}
	code := strings.ToUpper(string(d.Code))
	if code == "" {
		code = strings.ToUpper(string(d.Type)) + "_ERROR"
	}
	ctx := map[string]any{"action": string(d.Action)}
	if d.Details != "" {
		ctx["details"] = d.Details
	}
	return errclass.StructuredError{
		Code:        code,
		Category:    cat,
		Severity:    sev,
		Message:     d.Message,
		UserMessage: d.Message,
		Retryable:   d.Retryable,
		Context:     ctx,
	}
}
