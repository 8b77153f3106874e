package audit

import (
	"reflect"
	"strings"

	"github.com/ads-marketplace/faultline/internal/models"
)

const Redacted = "[REDACTED]"

var sensitiveKeyParts = []string{"password", "token", "secret", "key"}

// SanitizeForAudit returns a shallow copy with sensitive top-level values redacted.
// Nested maps are not inspected.
func SanitizeForAudit(data map[string]any) map[string]any {
	if data == nil {
		return nil
	}
	out := make(map[string]any, len(data))
	for k, v := range data {
		if isSensitiveKey(k) {
			out[k] = Redacted
			continue
		}
		out[k] = v
	}
	return out
}

func isSensitiveKey(k string) bool {
	lower := strings.ToLower(k)
	for _, part := range sensitiveKeyParts {
		if strings.Contains(lower, part) {
			return true
		}
	}
	return false
}

// FormatChanges lists every field whose value differs between oldData and newData.
// A field present on only one side counts as changed.
func FormatChanges(oldData, newData map[string]any) map[string]models.Change {
	changes := make(map[string]models.Change)
	for k, newVal := range newData {
		oldVal, ok := oldData[k]
		if !ok || !sameValue(oldVal, newVal) {
			changes[k] = models.Change{Old: oldVal, New: newVal}
		}
	}
	for k, oldVal := range oldData {
		if _, ok := newData[k]; !ok {
			changes[k] = models.Change{Old: oldVal, New: nil}
		}
	}
	return changes
}

func sameValue(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	ta, tb := reflect.TypeOf(a), reflect.TypeOf(b)
	if ta != tb {
		return false
	}
	if isBasicKind(ta.Kind()) {
		return a == b
	}
	// structs holding slices or maps behind interface fields would panic on ==
	return reflect.DeepEqual(a, b)
}

func isBasicKind(k reflect.Kind) bool {
	switch k {
	case reflect.Bool, reflect.String,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr,
		reflect.Float32, reflect.Float64, reflect.Complex64, reflect.Complex128:
		return true
	}
	return false
}

// SanitizeChanges redacts both sides of every change to a sensitive field.
func SanitizeChanges(changes map[string]models.Change) map[string]models.Change {
	if changes == nil {
		return nil
	}
	out := make(map[string]models.Change, len(changes))
	for k, c := range changes {
		if isSensitiveKey(k) {
			c = models.Change{Old: Redacted, New: Redacted}
		}
		out[k] = c
	}
	return out
}
