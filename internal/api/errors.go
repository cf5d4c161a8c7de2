package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/BTreeMap/PsychIntake/internal/models"
)

// maxErrorBody bounds how much of an error response is read.
const maxErrorBody = 64 * 1024

// StatusError is a non-2xx response from the backend.
type StatusError struct {
	Method     string
	Path       string
	StatusCode int
	// Detail is the backend's explanation, taken from a FastAPI style
	// {"detail": ...} body when present.
	Detail string
	// Err is a models sentinel for statuses with a client-wide meaning.
	Err error
}

func (e *StatusError) Error() string {
	msg := fmt.Sprintf("%s %s returned %d", e.Method, e.Path, e.StatusCode)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

func (e *StatusError) Unwrap() error { return e.Err }

// IsStatus reports whether err is a *StatusError with the given code.
func IsStatus(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == code
}

// Detail returns the backend detail carried by err, or "" if there is none.
func Detail(err error) string {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Detail
	}
	return ""
}

func newStatusError(method, path string, resp *http.Response) *StatusError {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &StatusError{
		Method:     method,
		Path:       path,
		StatusCode: resp.StatusCode,
		Detail:     parseDetail(body),
		Err:        sentinelFor(resp.StatusCode),
	}
}

func sentinelFor(code int) error {
	switch code {
	case http.StatusTooManyRequests:
		return models.ErrRateLimited
	case http.StatusUnauthorized:
		return models.ErrNotAuthenticated
	case http.StatusGone:
		return models.ErrSessionExpired
	default:
		return nil
	}
}

// parseDetail extracts a human-readable message from an error body. FastAPI
// validation errors arrive as a list of {loc, msg} objects.
func parseDetail(body []byte) string {
	text := strings.TrimSpace(string(body))
	if text == "" {
		return ""
	}
	if !gjson.Valid(text) {
		if len(text) > 200 {
			text = text[:200]
		}
		return text
	}
	root := gjson.Parse(text)
	for _, field := range []string{"detail", "message", "error"} {
		v := root.Get(field)
		switch {
		case !v.Exists() || v.Type == gjson.Null:
			continue
		case v.Type == gjson.String:
			return v.String()
		case v.IsArray():
			var msgs []string
			v.ForEach(func(_, item gjson.Result) bool {
				if m := item.Get("msg"); m.Exists() {
					msgs = append(msgs, m.String())
				} else if item.Type == gjson.String {
					msgs = append(msgs, item.String())
				}
				return true
			})
			if len(msgs) > 0 {
				return strings.Join(msgs, "; ")
			}
		case v.IsObject():
			if m := v.Get("message"); m.Exists() {
				return m.String()
			}
			return v.Raw
		}
	}
	return ""
}
