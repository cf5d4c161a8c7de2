// Package intake is the intake session client: it bootstraps, streams, pauses,
// resumes and links a patient's intake conversation against the backend.
//
// A Session owns its transcript and session handle for its whole life. All
// network failures are turned into transcript turns; the errors returned for
// them are *ReportedError so callers know the patient has already been told.
package intake

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/BTreeMap/PsychIntake/internal/models"
	"github.com/BTreeMap/PsychIntake/internal/retry"
	"github.com/BTreeMap/PsychIntake/internal/store"
	"github.com/BTreeMap/PsychIntake/internal/stream"
)

// API is the part of the backend client a Session uses.
type API interface {
	StartSession(ctx context.Context, req models.StartSessionRequest) (models.StartSessionResponse, error)
	Chat(ctx context.Context, req models.ChatRequest) (*stream.Reader, error)
	Pause(ctx context.Context, sessionToken string) (models.PauseResponse, error)
	Resume(ctx context.Context, req models.ResumeRequest) (models.ResumeResponse, error)
	DiscardSession(ctx context.Context, sessionToken string) error
	TransferSession(ctx context.Context, req models.TransferRequest) error
	Register(ctx context.Context, req models.RegisterRequest) (models.RegisterResponse, error)
	Login(ctx context.Context, email, password string) (models.LoginResponse, error)
}

// DefaultResumeWindow is assumed when the backend pauses a session without
// saying when it expires.
const DefaultResumeWindow = 24 * time.Hour

// DefaultReportRetryPolicy allows three report retries with growing delays.
func DefaultReportRetryPolicy() retry.Policy {
	return retry.Policy{MaxAttempts: 3, Delay: retry.Exponential{Base: time.Second, Max: 8 * time.Second}}
}

// Deps are the collaborators of a Session.
type Deps struct {
	API   API
	Store *store.SessionStore
	// Clock defaults to time.Now.
	Clock    func() time.Time
	Renderer Renderer
	// RetryPolicy gates RetryReport. A zero policy means DefaultReportRetryPolicy.
	RetryPolicy  retry.Policy
	ResumeWindow time.Duration
}

// Patient-facing texts.
const (
	msgStartFailed    = "We couldn't start your intake session. Please reload and try again."
	msgRateLimited    = "You're responding quickly. Please wait a moment before sending your next message; your progress is saved."
	msgSendFailed     = "Sorry, something went wrong sending your message. Please try again."
	msgPauseFailed    = "We couldn't pause your session"
	msgPaused         = "Your progress has been saved."
	msgResumeExpired  = "This paused session has expired. Please start a new assessment."
	msgResumeNotFound = "We couldn't find that session. It may have been resumed elsewhere or removed. Please refresh or start fresh."
	msgResumeFailed   = "We couldn't resume your session. Please start a new assessment."
	timeLayout        = "Jan 2, 2006 3:04 PM"
)

// ReportedError wraps a failure whose explanation is already in the transcript.
type ReportedError struct {
	Err error
}

func (e *ReportedError) Error() string { return e.Err.Error() }

func (e *ReportedError) Unwrap() error { return e.Err }

// IsReported reports whether err has already been shown to the patient.
func IsReported(err error) bool {
	var re *ReportedError
	return errors.As(err, &re)
}

func reported(err error) error {
	return &ReportedError{Err: err}
}

// Session is one patient's intake conversation.
type Session struct {
	api          API
	store        *store.SessionStore
	clock        func() time.Time
	renderer     Renderer
	policy       retry.Policy
	resumeWindow time.Duration

	mu            sync.Mutex
	life          lifecycle
	handle        models.SessionHandle
	transcript    *Transcript
	auth          *models.AuthSession
	userName      string
	screeners     []string
	lastReportID  string
	reportFailed  bool
	reportRetries *retry.Counter
}

// NewSession creates a session in the initializing state.
func NewSession(d Deps) (*Session, error) {
	if d.API == nil {
		return nil, fmt.Errorf("intake: API is required")
	}
	if d.Store == nil {
		return nil, fmt.Errorf("intake: Store is required")
	}
	if d.Clock == nil {
		d.Clock = time.Now
	}
	if d.Renderer == nil {
		d.Renderer = NopRenderer{}
	}
	if d.RetryPolicy.MaxAttempts == 0 {
		d.RetryPolicy = DefaultReportRetryPolicy()
	}
	if err := d.RetryPolicy.Validate(); err != nil {
		return nil, fmt.Errorf("intake: %w", err)
	}
	if d.ResumeWindow <= 0 {
		d.ResumeWindow = DefaultResumeWindow
	}
	return &Session{
		api:           d.API,
		store:         d.Store,
		clock:         d.Clock,
		renderer:      d.Renderer,
		policy:        d.RetryPolicy,
		resumeWindow:  d.ResumeWindow,
		life:          newLifecycle(),
		transcript:    newTranscript(),
		reportRetries: retry.NewCounter(d.RetryPolicy),
	}, nil
}

// State returns the lifecycle state.
func (s *Session) State() models.LifecycleState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.life.state
}

// Busy reports whether a request is in flight.
func (s *Session) Busy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.life.busy
}

// Handle returns the current session handle.
func (s *Session) Handle() models.SessionHandle {
	s.mu.Lock()
	defer s.mu.Unlock()
	h := s.handle
	h.State = s.life.state
	return h
}

// Messages returns a copy of the transcript.
func (s *Session) Messages() []models.ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transcript.Messages()
}

// CompletedScreeners returns the screeners the backend reported as done.
func (s *Session) CompletedScreeners() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.screeners...)
}

// ReportRetryAvailable reports whether the last response said report
// generation failed and a retry is still allowed.
func (s *Session) ReportRetryAvailable() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reportFailed && !s.reportRetries.Exhausted()
}

// LastReportID returns the id of the report completed in this session, if any.
func (s *Session) LastReportID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastReportID
}

// Identity returns the signed-in identity, if any.
func (s *Session) Identity() (models.Identity, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.auth.Authenticated() {
		return models.Identity{}, false
	}
	return s.auth.Identity, true
}

// loadIdentity reads the cached token, identity and display name.
func (s *Session) loadIdentity(ctx context.Context) {
	auth, err := s.store.AuthSession(ctx)
	if err != nil {
		slog.Warn("Session.loadIdentity: failed to read auth session", "error", err)
	}
	name, err := s.store.UserName(ctx)
	if err != nil {
		slog.Warn("Session.loadIdentity: failed to read user name", "error", err)
	}
	s.mu.Lock()
	s.auth = auth
	s.userName = name
	s.mu.Unlock()
	slog.Debug("Session.loadIdentity: loaded", "authenticated", auth.Authenticated(), "user_name_set", name != "")
}

// renderOp is a renderer call recorded under the lock and replayed after it.
type renderOp func(Renderer)

func (s *Session) flush(ops []renderOp) {
	for _, op := range ops {
		op(s.renderer)
	}
}

func finalized(m models.ChatMessage) renderOp {
	return func(r Renderer) { r.TurnFinalized(m) }
}

// appendTurnLocked appends a complete turn. s.mu must be held.
func (s *Session) appendTurnLocked(speaker models.Speaker, kind models.TurnKind, text string) []renderOp {
	var ops []renderOp
	if m, ok := s.transcript.Finalize(); ok {
		ops = append(ops, finalized(m))
	}
	m := s.transcript.Append(speaker, kind, text, s.clock())
	ops = append(ops, func(r Renderer) {
		r.TurnStarted(m)
		r.TurnFinalized(m)
	})
	return ops
}

// say appends a complete assistant turn and renders it.
func (s *Session) say(kind models.TurnKind, text string) {
	s.mu.Lock()
	ops := s.appendTurnLocked(models.SpeakerAssistant, kind, text)
	s.mu.Unlock()
	s.flush(ops)
}

// endWith clears the busy substate and appends an assistant turn in one step.
func (s *Session) endWith(kind models.TurnKind, text string) {
	s.mu.Lock()
	s.life.end()
	ops := s.appendTurnLocked(models.SpeakerAssistant, kind, text)
	s.mu.Unlock()
	s.flush(ops)
}

func (s *Session) endRequest() {
	s.mu.Lock()
	s.life.end()
	s.mu.Unlock()
}
