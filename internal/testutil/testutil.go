// Package testutil provides fakes and helpers shared by PsychIntake tests.
package testutil

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"testing"
)

// AssertHTTPStatus checks the HTTP status code and fails the test if it doesn't match.
func AssertHTTPStatus(t testing.TB, expected, actual int, context string) {
	t.Helper()
	if actual != expected {
		t.Errorf("%s: expected status %d, got %d", context, expected, actual)
	}
}

// MustMarshalJSON marshals v or fails the test.
func MustMarshalJSON(t testing.TB, v any) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("failed to marshal JSON: %v", err)
	}
	return data
}

// MustUnmarshalJSON unmarshals data into target or fails the test.
func MustUnmarshalJSON(t testing.TB, data []byte, target any) {
	t.Helper()
	if err := json.Unmarshal(data, target); err != nil {
		t.Fatalf("failed to unmarshal JSON: %v", err)
	}
}

var fallbackErrorResponse = []byte(`{"detail":"Internal server error"}`)

// WriteJSON writes response as JSON with the given status code. Marshalling
// happens before headers are written so a failure can still become a 500.
func WriteJSON(w http.ResponseWriter, statusCode int, response any) {
	data, err := json.Marshal(response)
	if err != nil {
		slog.Error("testutil.WriteJSON: failed to marshal response", "error", err)
		data = fallbackErrorResponse
		statusCode = http.StatusInternalServerError
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if _, err := w.Write(data); err != nil {
		slog.Error("testutil.WriteJSON: failed to write response", "error", err)
	}
}

// WriteDetail writes a FastAPI style {"detail": ...} error body.
func WriteDetail(w http.ResponseWriter, statusCode int, detail string) {
	WriteJSON(w, statusCode, map[string]string{"detail": detail})
}

// WriteEvents streams each payload as a "data: " line and flushes after each.
func WriteEvents(w http.ResponseWriter, payloads ...string) {
	flusher, _ := w.(http.Flusher)
	for _, p := range payloads {
		fmt.Fprintf(w, "data: %s\n\n", p)
		if flusher != nil {
			flusher.Flush()
		}
	}
}

// Content returns a stream payload carrying a content fragment.
func Content(text string) string {
	b, _ := json.Marshal(map[string]string{"content": text})
	return string(b)
}

// Options returns a stream payload carrying choices as label/value objects.
func Options(pairs ...string) string {
	opts := make([]map[string]string, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		opts = append(opts, map[string]string{"label": pairs[i], "value": pairs[i+1]})
	}
	b, _ := json.Marshal(map[string]any{"options": opts})
	return string(b)
}

// PDFReport returns a stream payload carrying a base64 report.
func PDFReport(b64 string) string {
	b, _ := json.Marshal(map[string]string{"pdf_report": b64})
	return string(b)
}

// Done is the terminal stream payload.
const Done = `{"done":true}`
