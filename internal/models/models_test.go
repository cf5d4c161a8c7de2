package models

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func TestCommandDisplay(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantCmd bool
	}{
		{":finish", FinishDisplayText, true},
		{"  :FINISH ", FinishDisplayText, true},
		{":)", "", false},
		{"hello", "", false},
	}
	for _, tt := range tests {
		got, ok := CommandDisplay(tt.in)
		if ok != tt.wantCmd || got != tt.want {
			t.Errorf("CommandDisplay(%q) = (%q, %v), want (%q, %v)", tt.in, got, ok, tt.want, tt.wantCmd)
		}
	}
}

func TestParseReportID(t *testing.T) {
	if id, ok := ParseReportID("REPORT_ID:abc123"); !ok || id != "abc123" {
		t.Errorf("ParseReportID = (%q, %v), want abc123", id, ok)
	}
	if _, ok := ParseReportID("REPORT_ID:"); ok {
		t.Error("expected empty id to be rejected")
	}
	if _, ok := ParseReportID("Your REPORT_ID:abc"); ok {
		t.Error("expected non-prefixed content to be rejected")
	}
}

func TestIsReportIDSentinel(t *testing.T) {
	tests := []struct {
		content string
		want    bool
	}{
		{"REPORT_ID:abc123", true},
		{"REPORT_ID:", true},
		{"  REPORT_ID: ", true},
		{"Your REPORT_ID:abc", false},
		{"report_id:abc", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := IsReportIDSentinel(tt.content); got != tt.want {
			t.Errorf("IsReportIDSentinel(%q) = %v, want %v", tt.content, got, tt.want)
		}
	}
}

func TestChoiceEchoText(t *testing.T) {
	if got := (Choice{Label: "Often", Value: "2"}).EchoText(); got != "2: Often" {
		t.Errorf("EchoText = %q", got)
	}
	if got := (Choice{Label: "Yes", Value: "Yes"}).EchoText(); got != "Yes" {
		t.Errorf("EchoText = %q", got)
	}
}

func TestDisplayIDFor(t *testing.T) {
	if got := DisplayIDFor("abcdefghijkl"); got != "abcdefgh" {
		t.Errorf("DisplayIDFor = %q", got)
	}
	if got := DisplayIDFor("abc"); got != "abc" {
		t.Errorf("DisplayIDFor short = %q", got)
	}
	h := NewSessionHandle("0123456789", StateActive)
	if h.DisplayID != "01234567" || h.State != StateActive {
		t.Errorf("unexpected handle %+v", h)
	}
}

func TestPausedSessionRecordExpired(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	rec := PausedSessionRecord{SessionToken: "s", ResumeToken: "r", ExpiresAt: now.Add(time.Hour)}
	if rec.Expired(now) {
		t.Error("record should not be expired")
	}
	if rec.Remaining(now) != time.Hour {
		t.Errorf("Remaining = %v", rec.Remaining(now))
	}
	if !rec.Expired(now.Add(time.Hour)) {
		t.Error("record should be expired at its expiry instant")
	}
	if err := rec.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
	if err := (PausedSessionRecord{SessionToken: "s"}).Validate(); !errors.Is(err, ErrMissingResumeToken) {
		t.Errorf("Validate = %v, want ErrMissingResumeToken", err)
	}
}

func TestSignupValidate(t *testing.T) {
	valid := Signup{FullName: "Ada Lovelace", Email: "ada@example.com", Password: "longenough", State: "CA"}
	tests := []struct {
		name   string
		mutate func(*Signup)
		want   error
	}{
		{"valid", func(*Signup) {}, nil},
		{"no name", func(s *Signup) { s.FullName = " " }, ErrEmptyName},
		{"no email", func(s *Signup) { s.Email = "" }, ErrEmptyEmail},
		{"bad email", func(s *Signup) { s.Email = "ada@" }, ErrInvalidEmail},
		{"no state", func(s *Signup) { s.State = "" }, ErrEmptyState},
		{"no password", func(s *Signup) { s.Password = "" }, ErrEmptyPassword},
		{"short password", func(s *Signup) { s.Password = "short" }, ErrPasswordTooShort},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := valid
			tt.mutate(&s)
			if err := s.Validate(); !errors.Is(err, tt.want) {
				t.Errorf("Validate() = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestNewRegisterRequest(t *testing.T) {
	req := NewRegisterRequest(Signup{FullName: "Mary Ann Evans", Email: " m@example.com ", Password: "p", State: "NY"})
	if req.FirstName != "Mary" || req.LastName != "Ann Evans" {
		t.Errorf("name split = %q / %q", req.FirstName, req.LastName)
	}
	if req.Email != "m@example.com" || req.Role != RolePatient {
		t.Errorf("unexpected request %+v", req)
	}
}

func TestTimestampUnmarshal(t *testing.T) {
	tests := []struct {
		in   string
		want time.Time
	}{
		{`"2025-03-01T12:00:00Z"`, time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)},
		{`"2025-03-01T12:00:00.5"`, time.Date(2025, 3, 1, 12, 0, 0, 500000000, time.UTC)},
		{`"2025-03-01T14:00:00+02:00"`, time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)},
		{`null`, time.Time{}},
	}
	for _, tt := range tests {
		var ts Timestamp
		if err := json.Unmarshal([]byte(tt.in), &ts); err != nil {
			t.Fatalf("Unmarshal(%s): %v", tt.in, err)
		}
		if !ts.Equal(tt.want) {
			t.Errorf("Unmarshal(%s) = %v, want %v", tt.in, ts.Time, tt.want)
		}
	}
	var bad Timestamp
	if err := json.Unmarshal([]byte(`"yesterday"`), &bad); err == nil {
		t.Error("expected error for unparseable timestamp")
	}
}

func TestFlexIDUnmarshal(t *testing.T) {
	var body struct {
		A FlexID `json:"a"`
		B FlexID `json:"b"`
	}
	if err := json.Unmarshal([]byte(`{"a": 42, "b": "u-7"}`), &body); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if body.A != "42" || body.B != "u-7" {
		t.Errorf("got %q %q", body.A, body.B)
	}
	if n, ok := body.A.Int(); !ok || n != 42 {
		t.Errorf("Int() = %d, %v", n, ok)
	}
}

func TestMeResponseFullName(t *testing.T) {
	if got := (MeResponse{FirstName: "Ada", LastName: "Lovelace"}).FullName(); got != "Ada Lovelace" {
		t.Errorf("FullName = %q", got)
	}
	if got := (MeResponse{Name: "Ada"}).FullName(); got != "Ada" {
		t.Errorf("FullName fallback = %q", got)
	}
}

func TestHistoryEntrySpeaker(t *testing.T) {
	if (HistoryEntry{Role: "user"}).Speaker() != SpeakerPatient {
		t.Error("user role should map to patient")
	}
	if (HistoryEntry{Role: "assistant"}).Speaker() != SpeakerAssistant {
		t.Error("assistant role should map to assistant")
	}
}

func TestNewMarkReadMessage(t *testing.T) {
	msg := NewMarkReadMessage("n1")
	b, err := json.Marshal(msg)
	if err != nil {
		t.Fatal(err)
	}
	var decoded struct {
		Type string `json:"type"`
		Data struct {
			NotificationID string `json:"notification_id"`
		} `json:"data"`
	}
	if err := json.Unmarshal(b, &decoded); err != nil {
		t.Fatal(err)
	}
	if decoded.Type != MsgMarkNotificationRead || decoded.Data.NotificationID != "n1" {
		t.Errorf("unexpected message %s", b)
	}
}
