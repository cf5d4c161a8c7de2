package main

import (
	"encoding/base64"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/BTreeMap/PsychIntake/internal/models"
)

// terminalRenderer prints transcript turns as they stream in.
type terminalRenderer struct {
	mu  sync.Mutex
	out io.Writer
}

func newTerminalRenderer(out io.Writer) *terminalRenderer {
	return &terminalRenderer{out: out}
}

func prefix(m models.ChatMessage) string {
	switch {
	case m.Kind == models.TurnNotice:
		return "! "
	case m.Kind == models.TurnError:
		return "error: "
	case m.Speaker == models.SpeakerPatient:
		return "you> "
	default:
		return "intake> "
	}
}

func (r *terminalRenderer) TurnStarted(m models.ChatMessage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if m.Kind == models.TurnDivider {
		fmt.Fprintf(r.out, "---- %s ----", m.Text)
		return
	}
	fmt.Fprint(r.out, prefix(m)+m.Text)
}

func (r *terminalRenderer) TurnUpdated(m models.ChatMessage, fragment string) {
	if fragment == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprint(r.out, fragment)
}

func (r *terminalRenderer) TurnFinalized(m models.ChatMessage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintln(r.out)
	r.writeExtras(m)
}

func (r *terminalRenderer) Reset(msgs []models.ChatMessage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintln(r.out)
	for _, m := range msgs {
		if m.Kind == models.TurnDivider {
			fmt.Fprintf(r.out, "---- %s ----\n", m.Text)
			continue
		}
		fmt.Fprintln(r.out, prefix(m)+m.Text)
		r.writeExtras(m)
	}
}

// writeExtras lists a turn's choices and notes an attached report.
func (r *terminalRenderer) writeExtras(m models.ChatMessage) {
	for i, c := range m.Choices {
		fmt.Fprintf(r.out, "  [%d] %s\n", i+1, c.Label)
	}
	if m.HasReport() {
		size := base64.StdEncoding.DecodedLen(len(m.AttachedReport))
		fmt.Fprintf(r.out, "  (report attached, about %d KB; run \"PsychIntake report\" to save it)\n", (size+1023)/1024)
	}
}

// choiceFor maps a typed number onto one of the last turn's choices.
func choiceFor(msgs []models.ChatMessage, input string) (models.Choice, bool) {
	if len(msgs) == 0 {
		return models.Choice{}, false
	}
	last := msgs[len(msgs)-1]
	if !last.HasChoices() {
		return models.Choice{}, false
	}
	n, err := strconv.Atoi(strings.TrimSpace(input))
	if err != nil || n < 1 || n > len(last.Choices) {
		return models.Choice{}, false
	}
	return last.Choices[n-1], true
}
