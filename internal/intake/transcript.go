package intake

import (
	"time"

	"github.com/BTreeMap/PsychIntake/internal/models"
)

// Transcript is the ordered list of displayed turns. Only the last turn can be
// in progress; every earlier turn is final. It is not safe for concurrent use;
// Session guards it with its own mutex.
type Transcript struct {
	msgs    []models.ChatMessage
	current int
	nextID  int
}

func newTranscript() *Transcript {
	return &Transcript{current: -1}
}

func (t *Transcript) build(speaker models.Speaker, kind models.TurnKind, text string, at time.Time) models.ChatMessage {
	t.nextID++
	return models.ChatMessage{
		ID:        t.nextID,
		Speaker:   speaker,
		Kind:      kind,
		Text:      text,
		CreatedAt: at,
	}
}

// Append adds a finished turn, finalizing any turn still in progress first.
func (t *Transcript) Append(speaker models.Speaker, kind models.TurnKind, text string, at time.Time) models.ChatMessage {
	t.Finalize()
	m := t.build(speaker, kind, text, at)
	t.msgs = append(t.msgs, m)
	return m
}

// Begin starts a new in-progress turn.
func (t *Transcript) Begin(speaker models.Speaker, text string, at time.Time) models.ChatMessage {
	t.Finalize()
	m := t.build(speaker, models.TurnMessage, text, at)
	t.msgs = append(t.msgs, m)
	t.current = len(t.msgs) - 1
	return m
}

// Current returns the in-progress turn.
func (t *Transcript) Current() (models.ChatMessage, bool) {
	if t.current < 0 {
		return models.ChatMessage{}, false
	}
	return t.msgs[t.current], true
}

// AppendToCurrent appends fragment to the in-progress turn's text.
func (t *Transcript) AppendToCurrent(fragment string) (models.ChatMessage, bool) {
	if t.current < 0 {
		return models.ChatMessage{}, false
	}
	t.msgs[t.current].Text += fragment
	return t.msgs[t.current], true
}

// SetChoices freezes choices onto the in-progress turn. Only the first set sticks.
func (t *Transcript) SetChoices(choices []models.Choice) (models.ChatMessage, bool) {
	if t.current < 0 || len(choices) == 0 || t.msgs[t.current].HasChoices() {
		return models.ChatMessage{}, false
	}
	t.msgs[t.current].Choices = append([]models.Choice(nil), choices...)
	return t.msgs[t.current], true
}

// AttachReport attaches a base64 document to the in-progress turn.
func (t *Transcript) AttachReport(b64 string) (models.ChatMessage, bool) {
	if t.current < 0 || b64 == "" {
		return models.ChatMessage{}, false
	}
	t.msgs[t.current].AttachedReport = b64
	return t.msgs[t.current], true
}

// Finalize ends the in-progress turn, if any, and returns it.
func (t *Transcript) Finalize() (models.ChatMessage, bool) {
	if t.current < 0 {
		return models.ChatMessage{}, false
	}
	m := t.msgs[t.current]
	t.current = -1
	return m, true
}

// Replace discards every turn and installs msgs, renumbering them.
func (t *Transcript) Replace(msgs []models.ChatMessage) {
	t.msgs = make([]models.ChatMessage, 0, len(msgs))
	t.current = -1
	t.nextID = 0
	for _, m := range msgs {
		t.nextID++
		m.ID = t.nextID
		t.msgs = append(t.msgs, m)
	}
}

// Messages returns a copy of every turn in order.
func (t *Transcript) Messages() []models.ChatMessage {
	out := make([]models.ChatMessage, len(t.msgs))
	copy(out, t.msgs)
	for i := range out {
		out[i].Choices = append([]models.Choice(nil), out[i].Choices...)
	}
	return out
}

// Len returns the number of turns.
func (t *Transcript) Len() int { return len(t.msgs) }

// Last returns the most recent turn.
func (t *Transcript) Last() (models.ChatMessage, bool) {
	if len(t.msgs) == 0 {
		return models.ChatMessage{}, false
	}
	return t.msgs[len(t.msgs)-1], true
}
