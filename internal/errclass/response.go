package errclass

import (
	"bytes"
	"encoding/json"
	"io"
	"mime"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
)

const (
	maxErrorBody   = 1 << 20
	maxPlainDetail = 500
)

// FromResponse converts a non-2xx response into an *HTTPError, consuming the body.
// JSON payloads are decoded; HTML error pages contribute their title or heading.
func FromResponse(resp *http.Response) *HTTPError {
	e := &HTTPError{Status: resp.StatusCode, Header: resp.Header.Clone()}
	if resp.Body == nil {
		return e
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil {
		e.Cause = err
	}
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return e
	}

	mediaType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	switch {
	case mediaType == "text/html":
		if msg := htmlMessage(body); msg != "" {
			e.Data = map[string]any{"message": msg}
		}
	case strings.Contains(mediaType, "json") || body[0] == '{' || body[0] == '[':
		var v any
		if json.Unmarshal(body, &v) == nil {
			switch x := v.(type) {
			case map[string]any:
				e.Data = x
			case []any, string:
				e.Data = map[string]any{"detail": x}
			}
		}
	default:
		e.Data = map[string]any{"detail": clip(string(body), maxPlainDetail)}
	}
	return e
}

func htmlMessage(body []byte) string {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return ""
	}
	for _, sel := range []string{"title", "h1"} {
		if text := strings.Join(strings.Fields(doc.Find(sel).First().Text()), " "); text != "" {
			return text
		}
	}
	return ""
}

// clip shortens text to at most n bytes on a rune boundary and replaces
// invalid sequences.
func clip(text string, n int) string {
	if len(text) > n {
		for n > 0 && !utf8.RuneStart(text[n]) {
			n--
		}
		text = text[:n]
	}
	return strings.ToValidUTF8(text, "\uFFFD")
}
