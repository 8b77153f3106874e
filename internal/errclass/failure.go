package errclass

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"syscall"
)

// Kind tags which input shape a Failure was normalized from.
type Kind int

const (
	KindEmpty Kind = iota
	KindHTTP
	KindNetwork
	KindError
	KindObject
)

// Failure is the single internal representation of any raw failure value.
type Failure struct {
	Kind    Kind
	Status  int
	Code    string // top-level code, e.g. {"code":"NETWORK_ERROR"}
	Message string // top-level message, never a serialized object
	Data    map[string]any
	Header  http.Header
	Cause   error
}

// HTTPError is a non-2xx response with its decoded payload.
type HTTPError struct {
	Status int
	Data   map[string]any
	Header http.Header
	Cause  error
}

func (e *HTTPError) Error() string {
	base := fmt.Sprintf("request failed with status %d", e.Status)
	if msg := payloadMessage(e.Data); msg != "" {
		return base + ": " + msg
	}
	return base
}

func (e *HTTPError) StatusCode() int { return e.Status }

func (e *HTTPError) Unwrap() error { return e.Cause }

type statusCoder interface {
	StatusCode() int
}

var networkCodes = map[string]bool{
	"NETWORK_ERROR": true,
	"ERR_NETWORK":   true,
	"ECONNREFUSED":  true,
	"ECONNRESET":    true,
	"ECONNABORTED":  true,
	"ETIMEDOUT":     true,
	"ENOTFOUND":     true,
}

// Normalize converts any supported failure shape into a Failure. It never panics.
func Normalize(v any) Failure {
	switch x := v.(type) {
	case nil:
		return Failure{Kind: KindEmpty}
	case Failure:
		return x
	case *Failure:
		if x == nil {
			return Failure{Kind: KindEmpty}
		}
		return *x
	case StructuredError:
		return Normalize(x.OriginalError)
	case *HTTPError:
		if x == nil {
			return Failure{Kind: KindEmpty}
		}
		return fromHTTPError(x, x)
	case map[string]any:
		return fromObject(x)
	case json.RawMessage:
		return fromJSON(x)
	case []byte:
		return fromJSON(x)
	case string:
		if strings.TrimSpace(x) == "" {
			return Failure{Kind: KindEmpty}
		}
		if looksNetwork(x) {
			return Failure{Kind: KindNetwork, Message: x}
		}
		return Failure{Kind: KindError, Message: x}
	case error:
		return fromError(x)
	default:
		return Failure{Kind: KindObject}
	}
}

func fromHTTPError(e *HTTPError, cause error) Failure {
	return Failure{
		Kind:    KindHTTP,
		Status:  e.Status,
		Message: fmt.Sprintf("request failed with status %d", e.Status),
		Data:    e.Data,
		Header:  e.Header,
		Cause:   cause,
	}
}

func fromError(err error) Failure {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) && httpErr != nil {
		return fromHTTPError(httpErr, err)
	}
	var se StructuredError
	if errors.As(err, &se) && se.OriginalError != nil {
		return Normalize(se.OriginalError)
	}
	if errors.Is(err, context.Canceled) {
		return Failure{Kind: KindError, Message: err.Error(), Cause: err}
	}
	if isNetworkError(err) {
		return Failure{Kind: KindNetwork, Message: err.Error(), Cause: err}
	}
	var sc statusCoder
	if errors.As(err, &sc) && sc.StatusCode() > 0 {
		return Failure{Kind: KindHTTP, Status: sc.StatusCode(), Message: err.Error(), Cause: err}
	}
	return Failure{Kind: KindError, Message: err.Error(), Cause: err}
}

func fromObject(m map[string]any) Failure {
	f := Failure{Kind: KindObject}
	f.Code = asString(m["code"])
	f.Message = asString(m["message"])

	src := m
	if resp, ok := m["response"].(map[string]any); ok {
		src = resp
	}
	f.Status = asInt(src["status"])
	switch d := src["data"].(type) {
	case map[string]any:
		f.Data = d
	case string:
		if strings.TrimSpace(d) != "" {
			f.Data = map[string]any{"detail": d}
		}
	case []any:
		f.Data = map[string]any{"detail": d}
	}
	if f.Data == nil && src["detail"] != nil {
		f.Data = map[string]any{"detail": src["detail"]}
	}

	switch {
	case f.Status > 0:
		f.Kind = KindHTTP
	case networkCodes[strings.ToUpper(f.Code)] || looksNetwork(f.Message):
		f.Kind = KindNetwork
	}
	return f
}

func fromJSON(b []byte) Failure {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return Failure{Kind: KindObject}
	}
	switch x := v.(type) {
	case map[string]any:
		return fromObject(x)
	case string:
		return Normalize(x)
	default:
		return Failure{Kind: KindObject}
	}
}

// ExplicitCode returns the first error code found in data.code, data.detail.code
// or the top-level code, in that order.
func (f Failure) ExplicitCode() string {
	if c := f.PayloadString("code"); c != "" {
		return c
	}
	if c := f.PayloadString("detail", "code"); c != "" {
		return c
	}
	return f.Code
}

// PayloadValue walks nested maps of the decoded payload.
func (f Failure) PayloadValue(path ...string) any {
	var cur any = f.Data
	for _, p := range path {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur = m[p]
	}
	return cur
}

func (f Failure) PayloadString(path ...string) string {
	return asString(f.PayloadValue(path...))
}

func (f Failure) PayloadInt(path ...string) (int, bool) {
	v := f.PayloadValue(path...)
	if v == nil {
		return 0, false
	}
	n := asInt(v)
	return n, n != 0 || isZeroNumber(v)
}

func isNetworkError(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ETIMEDOUT) {
		return true
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return looksNetwork(err.Error())
}

func looksNetwork(msg string) bool {
	m := strings.ToLower(msg)
	for _, s := range []string{
		"failed to fetch",
		"network error",
		"networkerror",
		"connection refused",
		"connection reset",
		"no such host",
		"i/o timeout",
		"tls handshake",
	} {
		if strings.Contains(m, s) {
			return true
		}
	}
	return false
}

func asString(v any) string {
	s, ok := v.(string)
	if !ok {
		return ""
	}
	return strings.TrimSpace(s)
}

func asInt(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int32:
		return int(n)
	case int64:
		return int(n)
	case float64:
		return int(n)
	case float32:
		return int(n)
	case json.Number:
		i, _ := n.Int64()
		return int(i)
	case string:
		i, _ := strconv.Atoi(strings.TrimSpace(n))
		return i
	}
	return 0
}

func isZeroNumber(v any) bool {
	switch n := v.(type) {
	case int, int32, int64, float32, float64:
		return asInt(n) == 0
	case string:
		return strings.TrimSpace(n) == "0"
	}
	return false
}
