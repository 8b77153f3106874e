package errclass

import (
	"fmt"
	"strings"
)

const fallbackMessage = "An unexpected error occurred"

// ExtractErrorMessage returns the most specific human message carried by v.
// Precedence: payload detail, payload message, top-level message, fallback.
func ExtractErrorMessage(v any) string {
	return messageOf(Normalize(v))
}

// PayloadMessage returns the message found in the decoded payload only, or "".
func PayloadMessage(f Failure) string {
	return payloadMessage(f.Data)
}

func messageOf(f Failure) string {
	if msg := payloadMessage(f.Data); msg != "" {
		return msg
	}
	if f.Message != "" && !looksSerialized(f.Message) {
		return f.Message
	}
	return fallbackMessage
}

func payloadMessage(data map[string]any) string {
	if data == nil {
		return ""
	}
	if msg := detailMessage(data["detail"]); msg != "" {
		return msg
	}
	for _, key := range []string{"message", "error", "msg"} {
		if s := asString(data[key]); s != "" && !looksSerialized(s) {
			return s
		}
	}
	return ""
}

func detailMessage(detail any) string {
	switch d := detail.(type) {
	case string:
		s := strings.TrimSpace(d)
		if looksSerialized(s) {
			return ""
		}
		return s
	case map[string]any:
		for _, key := range []string{"message", "msg"} {
			if s := asString(d[key]); s != "" {
				return s
			}
		}
	case []any:
		parts := make([]string, 0, len(d))
		for _, item := range d {
			if s := validationItemMessage(item); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, ", ")
	}
	return ""
}

func validationItemMessage(item any) string {
	switch it := item.(type) {
	case string:
		return strings.TrimSpace(it)
	case map[string]any:
		msg := asString(it["msg"])
		if msg == "" {
			msg = asString(it["message"])
		}
		if msg == "" {
			return ""
		}
		if field := locField(it["loc"]); field != "" {
			return field + ": " + msg
		}
		return "Field: " + msg
	}
	return ""
}

// locField returns the last element of a location path such as ["body", "email"].
func locField(loc any) string {
	path, ok := loc.([]any)
	if !ok || len(path) == 0 {
		if s := asString(loc); s != "" {
			return s
		}
		return ""
	}
	switch last := path[len(path)-1].(type) {
	case string:
		return last
	case float64:
		return fmt.Sprintf("%d", int(last))
	case int:
		return fmt.Sprintf("%d", last)
	}
	return ""
}

func validationErrors(f Failure) []ValidationError {
	var out []ValidationError
	if items, ok := f.PayloadValue("detail").([]any); ok {
		for _, item := range items {
			m, ok := item.(map[string]any)
			if !ok {
				continue
			}
			msg := asString(m["msg"])
			if msg == "" {
				msg = asString(m["message"])
			}
			if msg == "" {
				continue
			}
			field := locField(m["loc"])
			if field == "" {
				field = "Field"
			}
			out = append(out, ValidationError{Field: field, Message: msg, Code: asString(m["type"])})
		}
	}
	return out
}

func looksSerialized(s string) bool {
	if strings.Contains(s, "[object") {
		return true
	}
	t := strings.TrimSpace(s)
	return strings.HasPrefix(t, "{") || strings.HasPrefix(t, "[{")
}
