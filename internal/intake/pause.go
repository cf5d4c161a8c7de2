package intake

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/BTreeMap/PsychIntake/internal/api"
	"github.com/BTreeMap/PsychIntake/internal/models"
)

// PauseResult is what the patient needs to resume later, possibly on
// another device.
type PauseResult struct {
	SessionToken       string
	ResumeToken        string
	ExpiresAt          time.Time
	CompletedScreeners []string
}

// Pause suspends the conversation. It is refused while a reply is streaming.
// On failure the backend's explanation is added as a turn and nothing else
// changes.
func (s *Session) Pause(ctx context.Context) (*PauseResult, error) {
	s.mu.Lock()
	if err := s.life.begin(models.StateActive); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	token := s.handle.SessionToken
	s.mu.Unlock()

	resp, err := s.api.Pause(ctx, token)
	if err != nil {
		slog.Error("Session.Pause: pause failed", "error", err, "session", models.DisplayIDFor(token))
		detail := api.Detail(err)
		if detail == "" {
			detail = "please try again"
		}
		s.endWith(models.TurnNotice, fmt.Sprintf("%s: %s.", msgPauseFailed, detail))
		return nil, reported(fmt.Errorf("pause session: %w", err))
	}

	now := s.clock()
	expires := resp.ExpiresAt.Time
	if expires.IsZero() {
		expires = now.Add(s.resumeWindow)
	}
	rec := models.PausedSessionRecord{
		SessionToken:       token,
		ResumeToken:        resp.ResumeToken,
		ExpiresAt:          expires,
		PausedAt:           now,
		CompletedScreeners: resp.CompletedScreeners,
	}
	if err := s.store.SavePausedSession(ctx, rec); err != nil {
		// The backend has paused the session; the resume token is still
		// returned to the caller for display.
		slog.Error("Session.Pause: failed to cache paused session", "error", err)
	}

	text := resp.Message
	if text == "" {
		text = msgPaused
	}
	text += " You can resume until " + expires.Local().Format(timeLayout) + "."

	s.mu.Lock()
	s.screeners = append([]string(nil), resp.CompletedScreeners...)
	s.life.end()
	if err := s.life.transition(models.StatePaused); err != nil {
		slog.Error("Session.Pause: unexpected transition failure", "error", err)
	}
	ops := s.appendTurnLocked(models.SpeakerAssistant, models.TurnMessage, text)
	s.mu.Unlock()
	s.flush(ops)

	slog.Info("Session.Pause: session paused", "session", models.DisplayIDFor(token), "expires_at", expires, "screeners", len(resp.CompletedScreeners))
	return &PauseResult{
		SessionToken:       token,
		ResumeToken:        resp.ResumeToken,
		ExpiresAt:          expires,
		CompletedScreeners: rec.CompletedScreeners,
	}, nil
}

// Resume reactivates a paused session. An empty resumeToken means the cached
// record's token. Whatever the outcome, the cached record is gone afterwards:
// a failed resume never leaves a token behind that the client still trusts.
func (s *Session) Resume(ctx context.Context, resumeToken string) error {
	if resumeToken == "" {
		rec, err := s.store.PausedSession(ctx, s.clock())
		if err != nil {
			return fmt.Errorf("read paused session: %w", err)
		}
		if rec == nil {
			return models.ErrNoSession
		}
		resumeToken = rec.ResumeToken
	}

	s.mu.Lock()
	if err := s.life.begin(models.StateInitializing, models.StatePaused); err != nil {
		s.mu.Unlock()
		return err
	}
	name := s.userName
	s.mu.Unlock()

	resp, err := s.api.Resume(ctx, models.ResumeRequest{ResumeToken: resumeToken, UserName: name})
	if cerr := s.store.ClearPausedSession(ctx); cerr != nil {
		slog.Error("Session.Resume: failed to clear paused session", "error", cerr)
	}
	if err != nil {
		return s.resumeFailed(err)
	}

	now := s.clock()
	msgs := make([]models.ChatMessage, 0, len(resp.ConversationHistory)+2)
	for _, h := range resp.ConversationHistory {
		at := h.Timestamp.Time
		if at.IsZero() {
			at = now
		}
		msgs = append(msgs, models.ChatMessage{
			Speaker:    h.Speaker(),
			Kind:       models.TurnMessage,
			Text:       h.Content,
			CreatedAt:  at,
			IsReplayed: true,
		})
	}
	msgs = append(msgs, models.ChatMessage{
		Speaker:   models.SpeakerAssistant,
		Kind:      models.TurnDivider,
		Text:      "Session resumed " + now.Local().Format(timeLayout),
		CreatedAt: now,
	})
	if resp.WelcomeMessage != "" {
		msgs = append(msgs, models.ChatMessage{
			Speaker:   models.SpeakerAssistant,
			Kind:      models.TurnMessage,
			Text:      resp.WelcomeMessage,
			CreatedAt: now,
		})
	}

	s.mu.Lock()
	s.transcript.Replace(msgs)
	s.handle = models.NewSessionHandle(resp.SessionToken, models.StateActive)
	s.screeners = append([]string(nil), resp.CompletedScreeners...)
	s.reportFailed = false
	s.reportRetries.Reset()
	s.life.end()
	err = s.life.transition(models.StateActive)
	snapshot := s.transcript.Messages()
	s.mu.Unlock()
	if err != nil {
		return err
	}
	s.renderer.Reset(snapshot)

	slog.Info("Session.Resume: session resumed", "session", models.DisplayIDFor(resp.SessionToken), "history", len(resp.ConversationHistory), "screeners", len(resp.CompletedScreeners))
	return nil
}

func (s *Session) resumeFailed(err error) error {
	var text string
	switch {
	case api.IsStatus(err, http.StatusGone):
		text = msgResumeExpired
		err = fmt.Errorf("resume session: %w", err)
	case api.IsStatus(err, http.StatusNotFound):
		text = msgResumeNotFound
		err = fmt.Errorf("resume session: %w: %w", models.ErrSessionNotFound, err)
	default:
		text = msgResumeFailed
		err = fmt.Errorf("resume session: %w", err)
	}
	slog.Warn("Session.Resume: resume failed", "error", err)

	// The paused session is unusable now; only a fresh Start is left.
	s.mu.Lock()
	s.life.end()
	if terr := s.life.transition(models.StateInitializing); terr != nil {
		slog.Error("Session.Resume: unexpected transition failure", "error", terr)
	}
	s.handle = models.SessionHandle{}
	s.screeners = nil
	ops := s.appendTurnLocked(models.SpeakerAssistant, models.TurnNotice, text)
	s.mu.Unlock()
	s.flush(ops)
	return reported(err)
}
