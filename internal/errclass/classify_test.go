package errclass

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"reflect"
	"strings"
	"testing"
)

func httpFailure(status int, data map[string]any) map[string]any {
	return map[string]any{
		"response": map[string]any{"status": status, "data": data},
	}
}

func TestClassifyErrorStatusTable(t *testing.T) {
	tests := []struct {
		status   int
		category Category
		severity Severity
	}{
		{400, CategoryValidation, SeverityMedium},
		{401, CategoryAuthentication, SeverityHigh},
		{403, CategoryAuthorization, SeverityHigh},
		{404, CategoryNotFound, SeverityMedium},
		{422, CategoryValidation, SeverityMedium},
		{429, CategoryRateLimit, SeverityMedium},
		{500, CategoryServer, SeverityHigh},
		{503, CategoryServer, SeverityHigh},
		{418, CategoryClient, SeverityMedium},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.status), func(t *testing.T) {
			e := ClassifyError(&HTTPError{Status: tt.status}, nil)
			if e.Category != tt.category {
				t.Errorf("category = %s, want %s", e.Category, tt.category)
			}
			if e.Severity != tt.severity {
				t.Errorf("severity = %s, want %s", e.Severity, tt.severity)
			}
		})
	}
}

func TestClassifyErrorIsPure(t *testing.T) {
	in := httpFailure(422, map[string]any{
		"detail": []any{
			map[string]any{"loc": []any{"body", "email"}, "msg": "invalid email", "type": "value_error"},
		},
	})
	ctx := map[string]any{"component": "LoginForm", "timestamp": "2026-01-01T00:00:00Z"}

	a := ClassifyError(in, ctx)
	b := ClassifyError(in, ctx)
	if !reflect.DeepEqual(a, b) {
		t.Fatalf("classification not deterministic:\n%+v\n%+v", a, b)
	}
}

func TestClassifyErrorShapes(t *testing.T) {
	tests := []struct {
		name      string
		in        any
		category  Category
		retryable bool
	}{
		{"nil", nil, CategoryUnknown, true},
		{"nested response", httpFailure(500, nil), CategoryServer, true},
		{"flat fetch shape", map[string]any{"status": 404, "data": map[string]any{"detail": "missing"}}, CategoryNotFound, false},
		{"network code", map[string]any{"code": "NETWORK_ERROR"}, CategoryNetwork, true},
		{"url error", &url.Error{Op: "Post", URL: "http://x", Err: errors.New("connection refused")}, CategoryNetwork, true},
		{"deadline", fmt.Errorf("call: %w", context.DeadlineExceeded), CategoryNetwork, true},
		{"plain error", errors.New("boom"), CategoryUnknown, true},
		{"explicit code wins", httpFailure(400, map[string]any{"code": "file_too_large"}), CategoryFileUpload, false},
		{"request timeout", &HTTPError{Status: 408}, CategoryClient, true},
		{"garbage", 42, CategoryUnknown, true},
		{"json bytes", []byte(`{"status":429,"data":{"detail":"slow down"}}`), CategoryRateLimit, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := ClassifyError(tt.in, nil)
			if e.Category != tt.category {
				t.Errorf("category = %s, want %s", e.Category, tt.category)
			}
			if e.Retryable != tt.retryable {
				t.Errorf("retryable = %v, want %v", e.Retryable, tt.retryable)
			}
			if e.Message == "" || e.UserMessage == "" {
				t.Errorf("empty message: %+v", e)
			}
		})
	}
}

func TestExtractErrorMessage(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want string
	}{
		{"string detail", httpFailure(400, map[string]any{"detail": "Email already registered"}), "Email already registered"},
		{"object detail message", httpFailure(400, map[string]any{"detail": map[string]any{"message": "Bad input"}}), "Bad input"},
		{"object detail msg", httpFailure(400, map[string]any{"detail": map[string]any{"msg": "Bad msg"}}), "Bad msg"},
		{
			"array detail",
			httpFailure(422, map[string]any{"detail": []any{
				map[string]any{"loc": []any{"body", "email"}, "msg": "invalid email"},
				map[string]any{"msg": "too short"},
			}}),
			"email: invalid email, Field: too short",
		},
		{"top level message", map[string]any{"message": "Request failed"}, "Request failed"},
		{"error value", errors.New("disk full"), "disk full"},
		{"nil", nil, fallbackMessage},
		{"object detail without message", httpFailure(400, map[string]any{"detail": map[string]any{"foo": "bar"}}), fallbackMessage},
		{"http error without payload", &HTTPError{Status: 400, Data: map[string]any{"detail": map[string]any{"foo": "bar"}}}, "request failed with status 400"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExtractErrorMessage(tt.in)
			if got != tt.want {
				t.Errorf("ExtractErrorMessage() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestExtractErrorMessageNeverLeaksObjects(t *testing.T) {
	details := []any{
		map[string]any{"nested": map[string]any{"a": 1}},
		map[string]any{},
		[]any{map[string]any{"loc": []any{"x"}}},
		"[object Object]",
		`{"raw":"json"}`,
	}
	for i, d := range details {
		got := ExtractErrorMessage(map[string]any{"data": map[string]any{"detail": d}, "status": 400})
		if strings.Contains(got, "[object") || strings.ContainsAny(got, "{}") {
			t.Errorf("case %d leaked serialized payload: %q", i, got)
		}
	}
}

func TestValidationErrorsOnlyForValidation(t *testing.T) {
	detail := []any{
		map[string]any{"loc": []any{"body", "password"}, "msg": "too short", "type": "min_length"},
	}
	e := ClassifyError(httpFailure(422, map[string]any{"detail": detail}), nil)
	if len(e.ValidationErrors) != 1 {
		t.Fatalf("expected 1 validation error, got %d", len(e.ValidationErrors))
	}
	ve := e.ValidationErrors[0]
	if ve.Field != "password" || ve.Message != "too short" || ve.Code != "min_length" {
		t.Errorf("unexpected validation error %+v", ve)
	}

	e = ClassifyError(httpFailure(500, map[string]any{"detail": detail}), nil)
	if e.ValidationErrors != nil {
		t.Errorf("server error must not carry validation errors")
	}
}

func TestShouldAutoRetry(t *testing.T) {
	tests := []struct {
		name string
		e    StructuredError
		want bool
	}{
		{"network", StructuredError{Category: CategoryNetwork, Severity: SeverityMedium}, true},
		{"server", StructuredError{Category: CategoryServer, Severity: SeverityHigh}, true},
		{"critical server", StructuredError{Category: CategoryServer, Severity: SeverityCritical}, false},
		{"client", StructuredError{Category: CategoryClient, Severity: SeverityMedium}, false},
		{"validation", StructuredError{Category: CategoryValidation, Severity: SeverityMedium}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ShouldAutoRetry(tt.e); got != tt.want {
				t.Errorf("ShouldAutoRetry() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestShouldShowToUser(t *testing.T) {
	csrf := ClassifyError(httpFailure(403, map[string]any{"code": "CSRF_TOKEN_INVALID"}), nil)
	if ShouldShowToUser(csrf) {
		t.Error("CSRF errors are handled by redirect")
	}
	expired := ClassifyError(map[string]any{"code": "session_expired"}, nil)
	if ShouldShowToUser(expired) {
		t.Error("session expiry is handled by redirect")
	}
	if !ShouldShowToUser(ClassifyError(&HTTPError{Status: 400}, nil)) {
		t.Error("validation errors should be shown")
	}
}

func TestUserMessageHidesServerDetails(t *testing.T) {
	e := ClassifyError(httpFailure(500, map[string]any{"detail": "pq: relation \"users\" does not exist"}), nil)
	if strings.Contains(e.UserMessage, "pq:") {
		t.Errorf("internal detail leaked to user: %q", e.UserMessage)
	}
	if !strings.Contains(e.Message, "pq:") {
		t.Errorf("diagnostic message lost: %q", e.Message)
	}
}

func TestEscalate(t *testing.T) {
	e := StructuredError{Severity: SeverityMedium}
	if got := e.Escalate(SeverityCritical).Severity; got != SeverityCritical {
		t.Errorf("escalate to critical = %s", got)
	}
	if got := e.Escalate(SeverityLow).Severity; got != SeverityMedium {
		t.Errorf("escalate must never lower severity, got %s", got)
	}
}

func TestContextTimestampAdded(t *testing.T) {
	e := ClassifyError(errors.New("x"), map[string]any{"component": "Dashboard"})
	if e.Context["component"] != "Dashboard" {
		t.Errorf("component missing from context")
	}
	if _, ok := e.Context["timestamp"]; !ok {
		t.Errorf("timestamp missing from context")
	}
}
