package intake

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/BTreeMap/PsychIntake/internal/models"
)

// ResumeDecision is the patient's answer when a paused session is found.
type ResumeDecision int

const (
	DecisionContinue ResumeDecision = iota
	DecisionStartFresh
)

// Chooser asks the patient whether to continue rec or start fresh.
type Chooser func(ctx context.Context, rec models.PausedSessionRecord) (ResumeDecision, error)

// BootstrapOptions control how Bootstrap enters the conversation.
type BootstrapOptions struct {
	// AutoResume resumes a cached paused session without asking.
	AutoResume bool
	// ResumeToken resumes a session paused on another device.
	ResumeToken string
	// Chooser is asked when a paused session exists and AutoResume is off.
	// A nil Chooser continues the paused session.
	Chooser Chooser
}

// Bootstrap enters the conversation exactly one way: resume a paused
// session, or start a new one and fetch the greeting.
func (s *Session) Bootstrap(ctx context.Context, opts BootstrapOptions) error {
	s.loadIdentity(ctx)

	if opts.ResumeToken != "" {
		slog.Info("Session.Bootstrap: resuming with supplied token")
		return s.Resume(ctx, opts.ResumeToken)
	}

	rec, err := s.store.PausedSession(ctx, s.clock())
	if err != nil {
		slog.Warn("Session.Bootstrap: failed to read paused session, starting fresh", "error", err)
		rec = nil
	}
	if rec == nil {
		return s.Start(ctx)
	}

	decision := DecisionContinue
	if !opts.AutoResume && opts.Chooser != nil {
		decision, err = opts.Chooser(ctx, *rec)
		if err != nil {
			return fmt.Errorf("choose how to continue: %w", err)
		}
	}
	if decision == DecisionStartFresh {
		s.discard(ctx, rec)
		return s.Start(ctx)
	}
	slog.Info("Session.Bootstrap: resuming cached session", "session", models.DisplayIDFor(rec.SessionToken), "auto", opts.AutoResume)
	return s.Resume(ctx, rec.ResumeToken)
}

// discard drops the local record and asks the backend to drop the session.
// The backend call is best effort.
func (s *Session) discard(ctx context.Context, rec *models.PausedSessionRecord) {
	if err := s.store.ClearPausedSession(ctx); err != nil {
		slog.Error("Session.discard: failed to clear paused session", "error", err)
	}
	if err := s.api.DiscardSession(ctx, rec.SessionToken); err != nil {
		slog.Warn("Session.discard: backend discard failed", "error", err, "session", models.DisplayIDFor(rec.SessionToken))
		return
	}
	slog.Info("Session.discard: discarded paused session", "session", models.DisplayIDFor(rec.SessionToken))
}

// Start opens a new conversation and streams the greeting. A failure leaves
// a terminal error turn; it is not retried.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if err := s.life.begin(models.StateInitializing); err != nil {
		s.mu.Unlock()
		return err
	}
	auth := s.auth
	name := s.userName
	s.mu.Unlock()

	var token string
	patientID, err := s.patientID(ctx, auth)
	if err == nil {
		var resp models.StartSessionResponse
		resp, err = s.api.StartSession(ctx, models.StartSessionRequest{PatientID: patientID, UserName: name})
		token = resp.SessionToken
	}
	if err != nil {
		slog.Error("Session.Start: failed to start session", "error", err)
		s.endWith(models.TurnError, msgStartFailed)
		return reported(fmt.Errorf("start session: %w", err))
	}

	s.mu.Lock()
	s.handle = models.NewSessionHandle(token, models.StateActive)
	err = s.life.transition(models.StateActive)
	s.reportFailed = false
	s.reportRetries.Reset()
	s.mu.Unlock()
	if err != nil {
		s.endRequest()
		return err
	}
	slog.Info("Session.Start: session started", "session", models.DisplayIDFor(token), "authenticated", auth.Authenticated())

	defer s.endRequest()
	return s.runCycle(ctx, token, "")
}

func (s *Session) patientID(ctx context.Context, auth *models.AuthSession) (string, error) {
	if auth.Authenticated() && auth.Identity.UserID != "" {
		return auth.Identity.UserID, nil
	}
	id, err := s.store.TempUserID(ctx)
	if err != nil {
		return "", fmt.Errorf("load anonymous id: %w", err)
	}
	return id, nil
}
