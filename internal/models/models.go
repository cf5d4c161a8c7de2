// Package models defines the core data structures for PsychIntake.
//
// It includes the transcript types rendered by the intake client, the session
// handle and paused-session record, identity data, and the wire types shared by
// the API client and the notification channel.
package models

import (
	"strings"
	"time"
)

// Speaker identifies who authored a transcript turn.
type Speaker string

const (
	// SpeakerAssistant marks turns produced by the intake assistant or the client itself.
	SpeakerAssistant Speaker = "assistant"
	// SpeakerPatient marks turns typed or chosen by the patient.
	SpeakerPatient Speaker = "patient"
)

// TurnKind selects the display treatment for a turn. It never changes ordering.
type TurnKind string

const (
	// TurnMessage is an ordinary conversational turn.
	TurnMessage TurnKind = "message"
	// TurnNotice is an assistant-styled warning such as a rate limit notice.
	TurnNotice TurnKind = "notice"
	// TurnDivider is the synthetic divider inserted after replayed history.
	TurnDivider TurnKind = "divider"
	// TurnError is a terminal setup failure that requires a reload.
	TurnError TurnKind = "error"
)

// FinishCommand is the command value that asks the backend to end the assessment
// and generate the report. It is sent but never echoed into the transcript.
const FinishCommand = ":finish"

// FinishDisplayText is the patient turn shown in place of FinishCommand.
const FinishDisplayText = "Complete Assessment"

// ReportIDPrefix marks a content fragment that carries a completed report id.
const ReportIDPrefix = "REPORT_ID:"

// Choice is one clickable option presented with an assistant turn.
type Choice struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// EchoText returns the patient turn text shown after the choice is picked.
func (c Choice) EchoText() string {
	if c.Label == "" || c.Label == c.Value {
		return c.Value
	}
	return c.Value + ": " + c.Label
}

// ChatMessage is one turn in the displayed transcript.
type ChatMessage struct {
	ID        int       `json:"id"`
	Speaker   Speaker   `json:"speaker"`
	Kind      TurnKind  `json:"kind"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
	// Choices replace free-text input for this turn when present.
	Choices []Choice `json:"choices,omitempty"`
	// AttachedReport is the base64-encoded document exactly as received.
	AttachedReport string `json:"attached_report,omitempty"`
	IsReplayed     bool   `json:"is_replayed,omitempty"`
}

// HasChoices reports whether the turn offers clickable options.
func (m ChatMessage) HasChoices() bool {
	return len(m.Choices) > 0
}

// HasReport reports whether a generated report is attached to the turn.
func (m ChatMessage) HasReport() bool {
	return m.AttachedReport != ""
}

// commandDisplay maps recognized command values to the patient turn shown instead.
var commandDisplay = map[string]string{
	FinishCommand: FinishDisplayText,
}

// CommandDisplay returns the transcript text for a recognized command value.
// ok is false for ordinary patient input, which is echoed verbatim.
func CommandDisplay(prompt string) (display string, ok bool) {
	display, ok = commandDisplay[strings.ToLower(strings.TrimSpace(prompt))]
	return display, ok
}

// IsReportIDSentinel reports whether content is a REPORT_ID fragment, even
// one with no id after the prefix. Such fragments are never displayed.
func IsReportIDSentinel(content string) bool {
	return strings.HasPrefix(strings.TrimSpace(content), ReportIDPrefix)
}

// ParseReportID extracts the report id from a REPORT_ID sentinel fragment.
func ParseReportID(content string) (string, bool) {
	trimmed := strings.TrimSpace(content)
	if !strings.HasPrefix(trimmed, ReportIDPrefix) {
		return "", false
	}
	id := strings.TrimSpace(strings.TrimPrefix(trimmed, ReportIDPrefix))
	if id == "" {
		return "", false
	}
	return id, true
}
