package models

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Timestamp accepts RFC 3339 times as well as the zone-less ISO times the
// backend emits, which are taken as UTC.
type Timestamp struct {
	time.Time
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

// ParseTimestamp parses s with the layouts the backend is known to use.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

func (t *Timestamp) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		t.Time = time.Time{}
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("timestamp must be a string: %w", err)
	}
	if s == "" {
		t.Time = time.Time{}
		return nil
	}
	parsed, err := ParseTimestamp(s)
	if err != nil {
		return err
	}
	t.Time = parsed
	return nil
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.UTC().Format(time.RFC3339Nano))
}

// FlexID holds an identifier the backend may send as a number or a string.
type FlexID string

func (id *FlexID) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*id = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = FlexID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("id must be a string or number: %w", err)
	}
	*id = FlexID(n.String())
	return nil
}

func (id FlexID) String() string { return string(id) }

// Int returns the id as an integer when it is numeric.
func (id FlexID) Int() (int64, bool) {
	n, err := strconv.ParseInt(string(id), 10, 64)
	return n, err == nil
}

// StartSessionRequest opens a new intake conversation.
type StartSessionRequest struct {
	PatientID string `json:"patient_id"`
	UserName  string `json:"user_name,omitempty"`
}

type StartSessionResponse struct {
	SessionToken string `json:"session_token"`
}

// ChatRequest sends one prompt. An empty prompt requests the greeting.
type ChatRequest struct {
	SessionToken string `json:"session_token"`
	Prompt       string `json:"prompt"`
}

type PauseRequest struct {
	SessionToken string `json:"session_token"`
}

type PauseResponse struct {
	ResumeToken        string    `json:"resume_token"`
	ExpiresAt          Timestamp `json:"expires_at"`
	CompletedScreeners []string  `json:"completed_screeners"`
	Message            string    `json:"message,omitempty"`
}

type ResumeRequest struct {
	ResumeToken string `json:"resume_token"`
	UserName    string `json:"user_name,omitempty"`
}

// HistoryEntry is one turn of conversation history replayed on resume.
type HistoryEntry struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp Timestamp `json:"timestamp"`
}

// Speaker maps the backend role onto a transcript speaker.
func (h HistoryEntry) Speaker() Speaker {
	switch strings.ToLower(h.Role) {
	case "user", "patient", "human":
		return SpeakerPatient
	default:
		return SpeakerAssistant
	}
}

type ResumeResponse struct {
	SessionToken        string         `json:"session_token"`
	ConversationHistory []HistoryEntry `json:"conversation_history"`
	CompletedScreeners  []string       `json:"completed_screeners"`
	WelcomeMessage      string         `json:"welcome_message,omitempty"`
}

type DiscardRequest struct {
	SessionToken string `json:"session_token"`
}

type TransferRequest struct {
	SessionToken string `json:"session_token"`
	NewUserID    string `json:"new_user_id"`
	UserName     string `json:"user_name,omitempty"`
}

type RegisterRequest struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Phone     string `json:"phone,omitempty"`
	State     string `json:"state,omitempty"`
	Role      Role   `json:"role"`
}

// NewRegisterRequest builds the patient registration body from a signup form.
func NewRegisterRequest(s Signup) RegisterRequest {
	first, last := SplitName(s.FullName)
	return RegisterRequest{
		Email:     strings.TrimSpace(s.Email),
		Password:  s.Password,
		FirstName: first,
		LastName:  last,
		Phone:     strings.TrimSpace(s.Phone),
		State:     strings.TrimSpace(s.State),
		Role:      RolePatient,
	}
}

type RegisterResponse struct {
	ID    FlexID `json:"id"`
	Email string `json:"email"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type,omitempty"`
}

// MeResponse is the profile returned for the bearer token.
type MeResponse struct {
	ID        FlexID `json:"id"`
	Email     string `json:"email"`
	Role      Role   `json:"role"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	Name      string `json:"name,omitempty"`
}

// FullName prefers first and last name, falling back to name.
func (m MeResponse) FullName() string {
	if joined := JoinName(m.FirstName, m.LastName); joined != "" {
		return joined
	}
	return strings.TrimSpace(m.Name)
}

// Identity converts the profile into cached identity fields.
func (m MeResponse) Identity() Identity {
	return Identity{
		UserID: m.ID.String(),
		Name:   m.FullName(),
		Email:  m.Email,
		Role:   m.Role,
	}
}
