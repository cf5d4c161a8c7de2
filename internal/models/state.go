package models

import (
	"errors"
	"time"
)

// LifecycleState is the single authoritative state of an intake session.
type LifecycleState string

const (
	StateInitializing LifecycleState = "initializing"
	StateActive       LifecycleState = "active"
	StatePaused       LifecycleState = "paused"
	StateFinished     LifecycleState = "finished"
)

// IsValidLifecycleState checks if the given state is known.
func IsValidLifecycleState(s LifecycleState) bool {
	switch s {
	case StateInitializing, StateActive, StatePaused, StateFinished:
		return true
	default:
		return false
	}
}

// DisplayIDLength is the number of leading token characters shown to the user.
const DisplayIDLength = 8

// SessionHandle identifies a conversation with the backend.
type SessionHandle struct {
	SessionToken string         `json:"session_token"`
	DisplayID    string         `json:"display_id"`
	State        LifecycleState `json:"state"`
}

// NewSessionHandle builds a handle for token in the given state.
func NewSessionHandle(token string, state LifecycleState) SessionHandle {
	return SessionHandle{
		SessionToken: token,
		DisplayID:    DisplayIDFor(token),
		State:        state,
	}
}

// DisplayIDFor returns the short human-visible prefix of a session token.
func DisplayIDFor(token string) string {
	if len(token) <= DisplayIDLength {
		return token
	}
	return token[:DisplayIDLength]
}

var (
	ErrMissingSessionToken = errors.New("paused session record is missing its session token")
	ErrMissingResumeToken  = errors.New("paused session record is missing its resume token")
	ErrMissingExpiry       = errors.New("paused session record is missing its expiry")
)

// PausedSessionRecord is the locally cached form of a suspended session. It is
// the only cross-reload continuity mechanism for anonymous patients.
type PausedSessionRecord struct {
	SessionToken       string    `json:"session_token"`
	ResumeToken        string    `json:"resume_token"`
	ExpiresAt          time.Time `json:"expires_at"`
	PausedAt           time.Time `json:"paused_at"`
	CompletedScreeners []string  `json:"completed_screeners,omitempty"`
}

// Expired reports whether the record can no longer be resumed at now.
func (r PausedSessionRecord) Expired(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}

// Remaining returns how long the record stays resumable after now.
func (r PausedSessionRecord) Remaining(now time.Time) time.Duration {
	if r.Expired(now) {
		return 0
	}
	return r.ExpiresAt.Sub(now)
}

// Validate checks the fields every usable record must carry.
func (r PausedSessionRecord) Validate() error {
	if r.SessionToken == "" {
		return ErrMissingSessionToken
	}
	if r.ResumeToken == "" {
		return ErrMissingResumeToken
	}
	if r.ExpiresAt.IsZero() {
		return ErrMissingExpiry
	}
	return nil
}

// ReportRef points at the last report completed on this device.
type ReportRef struct {
	ID   string    `json:"id"`
	Date time.Time `json:"date"`
}
