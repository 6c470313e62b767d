// ABOUTME: Request validation for payload size, HTTP method, and content type.
// ABOUTME: Pure functions over the request; business validation stays with the tools.

package validate

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
)

// Validation errors. Handlers map these to HTTP status codes.
var (
	ErrPayloadTooLarge  = errors.New("request payload too large")
	ErrMethodNotAllowed = errors.New("method not allowed")
	ErrUnsupportedMedia = errors.New("unsupported media type")
	ErrEmptyBody        = errors.New("empty request body")
)

// TruncationMarker is appended to strings cut at the configured limit.
const TruncationMarker = "... [TRUNCATED]"

// MaxRawPayload caps raw/binary payload segments embedded in tool results.
const MaxRawPayload = 10 * 1024

// Limits carries the validation thresholds taken from the server config.
type Limits struct {
	MaxPayloadSize  int64
	MaxStringLength int
}

// Method rejects HTTP methods other than GET and POST on protected routes.
func Method(r *http.Request) error {
	switch r.Method {
	case http.MethodGet, http.MethodPost:
		return nil
	default:
		return fmt.Errorf("%w: %s", ErrMethodNotAllowed, r.Method)
	}
}

// ContentType rejects POST bodies that do not declare JSON.
// Requests without a body (Content-Length 0) are exempt.
func ContentType(r *http.Request) error {
	if r.Method != http.MethodPost || r.ContentLength == 0 {
		return nil
	}
	ct := r.Header.Get("Content-Type")
	if ct == "" {
		return fmt.Errorf("%w: missing Content-Type", ErrUnsupportedMedia)
	}
	mediaType, _, err := mime.ParseMediaType(ct)
	if err != nil || mediaType != "application/json" {
		return fmt.Errorf("%w: %s", ErrUnsupportedMedia, ct)
	}
	return nil
}

// Body reads the request body, enforcing the payload limit before any
// JSON parsing happens. The declared Content-Length is checked first so
// an oversized upload is refused without reading it; a LimitReader
// backstops clients that lie about the length.
func (l Limits) Body(r *http.Request) ([]byte, error) {
	if r.ContentLength > l.MaxPayloadSize {
		return nil, fmt.Errorf("%w: %d bytes exceeds limit of %d", ErrPayloadTooLarge, r.ContentLength, l.MaxPayloadSize)
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, l.MaxPayloadSize+1))
	if err != nil {
		return nil, fmt.Errorf("reading request body: %w", err)
	}
	if int64(len(body)) > l.MaxPayloadSize {
		return nil, fmt.Errorf("%w: body exceeds limit of %d", ErrPayloadTooLarge, l.MaxPayloadSize)
	}
	return body, nil
}

// TruncateString cuts s at the configured maximum, appending the
// truncation marker so clients can tell the value was shortened.
func (l Limits) TruncateString(s string) string {
	max := l.MaxStringLength
	if max <= 0 || len(s) <= max {
		return s
	}
	return s[:max] + TruncationMarker
}

// CapRaw enforces the fixed cap on raw payload segments. Oversized raw
// data is rejected outright rather than truncated.
func CapRaw(data []byte) ([]byte, error) {
	if len(data) > MaxRawPayload {
		return nil, fmt.Errorf("%w: raw payload of %d bytes exceeds %d", ErrPayloadTooLarge, len(data), MaxRawPayload)
	}
	return data, nil
}

// StatusFor maps a validation error to its HTTP status code.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, ErrPayloadTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, ErrMethodNotAllowed):
		return http.StatusMethodNotAllowed
	case errors.Is(err, ErrUnsupportedMedia):
		return http.StatusUnsupportedMediaType
	default:
		return http.StatusBadRequest
	}
}
