// Package stream decodes the chunked event stream returned by the intake chat
// endpoint.
//
// The body is newline-delimited. Each line is a JSON object, optionally
// prefixed with "data: ". Blank lines and ":" comment lines are keep-alives.
package stream

import (
	"bufio"
	"errors"
	"io"
	"log/slog"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/BTreeMap/PsychIntake/internal/models"
)

// DonePayload is the conventional terminal payload of an event stream.
const DonePayload = "[DONE]"

// Event is one decoded stream event. Any combination of fields may be set.
type Event struct {
	// Content is an incremental text fragment; HasContent tells an absent
	// field apart from an empty one.
	Content    string
	HasContent bool
	Options    []models.Choice
	PDFReport  string
	Error      string
	Done       bool
	Raw        string
}

// Reader yields events from a response body in stream order.
type Reader struct {
	body    io.ReadCloser
	br      *bufio.Reader
	err     error
	skipped int
}

// NewReader reads events from body. Close releases the body.
func NewReader(body io.ReadCloser) *Reader {
	return &Reader{body: body, br: bufio.NewReaderSize(body, 64*1024)}
}

// Next returns the next event. It returns io.EOF once the body is exhausted.
// Malformed lines are logged and skipped.
func (r *Reader) Next() (Event, error) {
	for {
		if r.err != nil {
			return Event{}, r.err
		}
		line, err := r.br.ReadString('\n')
		if err != nil {
			if errors.Is(err, io.EOF) {
				r.err = io.EOF
			} else {
				r.err = err
			}
			if strings.TrimSpace(line) == "" {
				return Event{}, r.err
			}
		}
		ev, ok := r.decodeLine(line)
		if ok {
			return ev, nil
		}
	}
}

// Skipped returns the number of malformed lines discarded so far.
func (r *Reader) Skipped() int { return r.skipped }

// Close closes the underlying body.
func (r *Reader) Close() error {
	return r.body.Close()
}

func (r *Reader) decodeLine(line string) (Event, bool) {
	line = strings.TrimRight(line, "\r\n")
	trimmed := strings.TrimSpace(line)
	if trimmed == "" || strings.HasPrefix(trimmed, ":") {
		return Event{}, false
	}
	payload := trimmed
	if rest, ok := strings.CutPrefix(trimmed, "data:"); ok {
		payload = strings.TrimSpace(rest)
	} else if strings.HasPrefix(trimmed, "event:") || strings.HasPrefix(trimmed, "id:") || strings.HasPrefix(trimmed, "retry:") {
		return Event{}, false
	}
	if payload == "" {
		return Event{}, false
	}
	ev, err := ParseEvent(payload)
	if err != nil {
		r.skipped++
		slog.Warn("stream.Reader: skipping malformed event", "error", err, "length", len(payload))
		return Event{}, false
	}
	return ev, true
}

// ErrMalformedEvent is returned by ParseEvent for payloads that are not JSON objects.
var ErrMalformedEvent = errors.New("malformed stream event")

// ParseEvent decodes a single event payload without its "data: " prefix.
func ParseEvent(payload string) (Event, error) {
	if payload == DonePayload {
		return Event{Done: true, Raw: payload}, nil
	}
	if !gjson.Valid(payload) {
		return Event{}, ErrMalformedEvent
	}
	root := gjson.Parse(payload)
	if !root.IsObject() {
		return Event{}, ErrMalformedEvent
	}

	ev := Event{Raw: payload}
	if c := root.Get("content"); c.Exists() && c.Type != gjson.Null {
		ev.Content = c.String()
		ev.HasContent = true
	}
	if opts := root.Get("options"); opts.IsArray() {
		ev.Options = parseOptions(opts)
	}
	if pdf := root.Get("pdf_report"); pdf.Type == gjson.String {
		ev.PDFReport = pdf.String()
	}
	if e := root.Get("error"); e.Exists() && e.Type != gjson.Null {
		ev.Error = e.String()
	}
	ev.Done = root.Get("done").Bool()
	return ev, nil
}

func parseOptions(arr gjson.Result) []models.Choice {
	var choices []models.Choice
	arr.ForEach(func(_, item gjson.Result) bool {
		var c models.Choice
		switch {
		case item.IsObject():
			c.Label = item.Get("label").String()
			c.Value = item.Get("value").String()
		case item.Type == gjson.String || item.Type == gjson.Number:
			c.Label = item.String()
			c.Value = item.String()
		default:
			return true
		}
		if c.Value == "" {
			c.Value = c.Label
		}
		if c.Label == "" {
			c.Label = c.Value
		}
		if c.Value != "" {
			choices = append(choices, c)
		}
		return true
	})
	return choices
}
