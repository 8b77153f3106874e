package autherr

import (
	"errors"
	"net/http"
	"reflect"
	"strings"
	"testing"

	"github.com/ads-marketplace/faultline/internal/errclass"
)

func response(status int, data map[string]any) map[string]any {
	return map[string]any{"response": map[string]any{"status": status, "data": data}}
}

func TestParseExplicitCodes(t *testing.T) {
	tests := []struct {
		code      Code
		typ       Type
		retryable bool
		action    Action
	}{
		{CodeEmailNotVerified, TypeValidation, false, ActionContactSupport},
		{CodeInvalidCredentials, TypeAuthentication, true, ActionCheckCredentials},
		{CodeAccountLocked, TypeAuthorization, false, ActionContactSupport},
		{CodeRateLimited, TypeRateLimit, true, ActionWait},
		{CodeSessionExpired, TypeAuthentication, true, ActionRetry},
		{CodeAccountDisabled, TypeAuthorization, false, ActionContactSupport},
		{CodeAccountSuspended, TypeAuthorization, false, ActionContactSupport},
	}

	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			// status deliberately disagrees with the code
			for _, in := range []any{
				response(500, map[string]any{"code": string(tt.code)}),
				response(500, map[string]any{"detail": map[string]any{"code": string(tt.code)}}),
			} {
				d := Parse(in)
				if d.Code != tt.code {
					t.Errorf("code = %q, want %q", d.Code, tt.code)
				}
				if d.Type != tt.typ || d.Retryable != tt.retryable || d.Action != tt.action {
					t.Errorf("got %+v", d)
				}
			}
		})
	}
}

func TestParseCodeBeatsEmailWording(t *testing.T) {
	in := response(401, map[string]any{
		"detail": map[string]any{
			"code":    "invalid_credentials",
			"message": "Incorrect email or password",
		},
	})
	d := Parse(in)
	if d.Code != CodeInvalidCredentials {
		t.Fatalf("code = %q, want invalid_credentials", d.Code)
	}
	if IsEmailVerificationError(d) {
		t.Error("credential error misclassified as email verification")
	}
	if !IsCredentialError(d) {
		t.Error("expected credential error")
	}
}

func TestParseCodeDetails(t *testing.T) {
	locked := Parse(response(403, map[string]any{
		"detail": map[string]any{"code": "account_locked", "locked_until": "2026-10-19T12:00:00Z"},
	}))
	if !strings.Contains(locked.Details, "2026-10-19T12:00:00Z") {
		t.Errorf("lockout timestamp missing: %q", locked.Details)
	}

	limited := Parse(response(429, map[string]any{
		"detail": map[string]any{"code": "rate_limited", "retry_after": 60},
	}))
	if !strings.Contains(limited.Details, "60 seconds") {
		t.Errorf("retry-after missing: %q", limited.Details)
	}
}

func TestParseStatusFallback(t *testing.T) {
	tests := []struct {
		name      string
		in        any
		typ       Type
		retryable bool
		action    Action
	}{
		{"400", response(400, nil), TypeValidation, false, ActionCheckCredentials},
		{"401", response(401, nil), TypeAuthentication, true, ActionCheckCredentials},
		{"403", response(403, nil), TypeAuthorization, false, ActionContactSupport},
		{"422", response(422, nil), TypeValidation, false, ActionCheckCredentials},
		{"429", response(429, nil), TypeRateLimit, true, ActionWait},
		{"500", response(500, nil), TypeServer, true, ActionRetry},
		{"503", &errclass.HTTPError{Status: 503}, TypeServer, true, ActionRetry},
		{"network code", map[string]any{"code": "NETWORK_ERROR"}, TypeNetwork, true, ActionRetry},
		{"fetch failure", errors.New("TypeError: Failed to fetch"), TypeNetwork, true, ActionRetry},
		{"connection refused", errors.New("dial tcp 127.0.0.1:80: connect: connection refused"), TypeNetwork, true, ActionRetry},
		{"nil", nil, TypeUnknown, true, ActionRetry},
		{"unknown code falls back", response(403, map[string]any{"code": "something_else"}), TypeAuthorization, false, ActionContactSupport},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := Parse(tt.in)
			if d.Type != tt.typ || d.Retryable != tt.retryable || d.Action != tt.action {
				t.Errorf("got %+v, want type=%s retryable=%v action=%s", d, tt.typ, tt.retryable, tt.action)
			}
			if d.Message == "" {
				t.Error("empty message")
			}
		})
	}
}

func TestParse401RemainingAttempts(t *testing.T) {
	d := Parse(response(401, map[string]any{
		"detail": map[string]any{"remaining_attempts": 2},
	}))
	if d.Type != TypeAuthentication {
		t.Errorf("type = %s", d.Type)
	}
	if !strings.Contains(d.Details, "2 attempts") {
		t.Errorf("details = %q", d.Details)
	}
}

func TestParse422JoinsMessages(t *testing.T) {
	d := Parse(response(422, map[string]any{
		"detail": []any{
			map[string]any{"loc": []any{"body", "email"}, "msg": "invalid email"},
			map[string]any{"loc": []any{"body", "password"}, "msg": "too short"},
		},
	}))
	if d.Message != "email: invalid email, password: too short" {
		t.Errorf("message = %q", d.Message)
	}
}

func TestParseRetryAfterHeader(t *testing.T) {
	h := http.Header{}
	h.Set("Retry-After", "15")
	d := Parse(&errclass.HTTPError{Status: 429, Header: h})
	if !strings.Contains(d.Details, "15 seconds") {
		t.Errorf("details = %q", d.Details)
	}
}

func TestParseIsPure(t *testing.T) {
	in := response(401, map[string]any{"detail": map[string]any{"remaining_attempts": 1}})
	if a, b := Parse(in), Parse(in); !reflect.DeepEqual(a, b) {
		t.Errorf("not deterministic: %+v vs %+v", a, b)
	}
}

func TestPredicatesUseCodeOnly(t *testing.T) {
	tests := []struct {
		name    string
		fn      func(Details) bool
		matches []Code
	}{
		{"email", IsEmailVerificationError, []Code{CodeEmailNotVerified}},
		{"credentials", IsCredentialError, []Code{CodeInvalidCredentials}},
		{"locked", IsAccountLockedError, []Code{CodeAccountLocked}},
		{"rate limit", IsRateLimitError, []Code{CodeRateLimited}},
		{"session", IsSessionExpiredError, []Code{CodeSessionExpired}},
		{"disabled", IsAccountDisabledError, []Code{CodeAccountDisabled, CodeAccountSuspended}},
	}
	all := []Code{
		CodeEmailNotVerified, CodeInvalidCredentials, CodeAccountLocked, CodeRateLimited,
		CodeSessionExpired, CodeAccountDisabled, CodeAccountSuspended, "",
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, c := range all {
				want := false
				for _, tc := range tt.matches {
					if tc == c {
						want = true
					}
				}
				// other fields must not influence the answer
				d := Details{Code: c, Type: TypeServer, Message: "email verification", Action: ActionWait}
				if got := tt.fn(d); got != want {
					t.Errorf("code %q: got %v, want %v", c, got, want)
				}
			}
		})
	}
}

func TestToStructured(t *testing.T) {
	se := ToStructured(Parse(response(401, map[string]any{"code": "session_expired"})))
	if se.Category != errclass.CategoryAuthentication || se.Severity != errclass.SeverityHigh {
		t.Errorf("got %+v", se)
	}
	if se.Code != "SESSION_EXPIRED" {
		t.Errorf("code = %s", se.Code)
	}
	if errclass.ShouldShowToUser(se) {
		t.Error("session expiry should be handled by redirect")
	}
}
