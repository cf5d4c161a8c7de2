package stream

import (
	"errors"
	"io"
	"strings"
	"testing"
)

func readAll(t *testing.T, body string) []Event {
	t.Helper()
	r := NewReader(io.NopCloser(strings.NewReader(body)))
	defer r.Close()
	var events []Event
	for {
		ev, err := r.Next()
		if errors.Is(err, io.EOF) {
			return events
		}
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		events = append(events, ev)
	}
}

func TestReaderDecodesEventsInOrder(t *testing.T) {
	body := "data: {\"content\":\"Hel\"}\n\n" +
		": keep-alive\n" +
		"data: {\"content\":\"lo\"}\n" +
		"data: {\"content\":\" there\",\"options\":[{\"label\":\"Yes\",\"value\":\"y\"},\"No\"]}\n" +
		"data: {\"done\":true}\n"

	events := readAll(t, body)
	if len(events) != 4 {
		t.Fatalf("got %d events, want 4", len(events))
	}
	var text strings.Builder
	for _, ev := range events[:3] {
		if !ev.HasContent {
			t.Errorf("event %q missing content", ev.Raw)
		}
		text.WriteString(ev.Content)
	}
	if text.String() != "Hello there" {
		t.Errorf("accumulated text = %q", text.String())
	}
	opts := events[2].Options
	if len(opts) != 2 || opts[0].Value != "y" || opts[0].Label != "Yes" || opts[1].Value != "No" || opts[1].Label != "No" {
		t.Errorf("options = %+v", opts)
	}
	if !events[3].Done || events[3].HasContent {
		t.Errorf("final event = %+v", events[3])
	}
}

func TestReaderSkipsMalformedLines(t *testing.T) {
	r := NewReader(io.NopCloser(strings.NewReader("data: {broken\ndata: [1,2]\ndata: {\"content\":\"ok\"}\n")))
	ev, err := r.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if ev.Content != "ok" {
		t.Errorf("Content = %q", ev.Content)
	}
	if r.Skipped() != 2 {
		t.Errorf("Skipped() = %d, want 2", r.Skipped())
	}
	if _, err := r.Next(); !errors.Is(err, io.EOF) {
		t.Errorf("expected EOF, got %v", err)
	}
}

func TestReaderHandlesMissingTrailingNewline(t *testing.T) {
	events := readAll(t, "data: {\"content\":\"a\"}\r\ndata: {\"done\":true}")
	if len(events) != 2 || events[0].Content != "a" || !events[1].Done {
		t.Errorf("events = %+v", events)
	}
}

func TestReaderAcceptsBareJSONLines(t *testing.T) {
	events := readAll(t, "{\"content\":\"x\"}\nevent: message\n")
	if len(events) != 1 || events[0].Content != "x" {
		t.Errorf("events = %+v", events)
	}
}

func TestParseEvent(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		check   func(Event) bool
	}{
		{"done sentinel", "[DONE]", func(e Event) bool { return e.Done }},
		{"pdf report", `{"pdf_report":"JVBERi0="}`, func(e Event) bool { return e.PDFReport == "JVBERi0=" && !e.HasContent }},
		{"report id", `{"content":"REPORT_ID:abc123"}`, func(e Event) bool { return e.Content == "REPORT_ID:abc123" }},
		{"null content", `{"content":null,"done":false}`, func(e Event) bool { return !e.HasContent && !e.Done }},
		{"empty content", `{"content":""}`, func(e Event) bool { return e.HasContent && e.Content == "" }},
		{"error", `{"error":"model unavailable"}`, func(e Event) bool { return e.Error == "model unavailable" }},
		{"numeric option", `{"options":[1,2]}`, func(e Event) bool { return len(e.Options) == 2 && e.Options[1].Value == "2" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := ParseEvent(tt.payload)
			if err != nil {
				t.Fatalf("ParseEvent: %v", err)
			}
			if !tt.check(ev) {
				t.Errorf("unexpected event %+v", ev)
			}
		})
	}
}

func TestParseEventRejectsNonObjects(t *testing.T) {
	for _, payload := range []string{`"text"`, `[1]`, `{`} {
		if _, err := ParseEvent(payload); !errors.Is(err, ErrMalformedEvent) {
			t.Errorf("ParseEvent(%s) err = %v", payload, err)
		}
	}
}
