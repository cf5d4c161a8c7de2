package intake

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/BTreeMap/PsychIntake/internal/api"
	"github.com/BTreeMap/PsychIntake/internal/models"
	"github.com/BTreeMap/PsychIntake/internal/stream"
)

// Send sends one patient utterance and renders the streamed reply. A second
// Send while a reply is streaming fails with models.ErrBusy and sends nothing.
// Command values are sent as is but echoed with their display text.
func (s *Session) Send(ctx context.Context, prompt string) error {
	text := strings.TrimSpace(prompt)
	if text == "" {
		return models.ErrEmptyPrompt
	}
	echo := text
	if display, ok := models.CommandDisplay(text); ok {
		echo = display
		text = strings.ToLower(text)
	}
	return s.send(ctx, text, echo)
}

// Finish asks the backend to complete the assessment and generate the report.
func (s *Session) Finish(ctx context.Context) error {
	return s.Send(ctx, models.FinishCommand)
}

// Choose answers the current turn's options with c.
func (s *Session) Choose(ctx context.Context, c models.Choice) error {
	if strings.TrimSpace(c.Value) == "" {
		return models.ErrEmptyPrompt
	}
	return s.send(ctx, c.Value, c.EchoText())
}

// RetryReport re-sends the finish command after a failed report generation.
// Nothing is added to the transcript for the request itself.
func (s *Session) RetryReport(ctx context.Context) error {
	s.mu.Lock()
	if !s.reportFailed {
		s.mu.Unlock()
		return fmt.Errorf("%w: no failed report to retry", models.ErrInvalidTransition)
	}
	if err := s.life.begin(models.StateActive); err != nil {
		s.mu.Unlock()
		return err
	}
	attempt, delay, ok := s.reportRetries.Next()
	if !ok {
		s.life.end()
		s.mu.Unlock()
		return models.ErrRetryExhausted
	}
	s.reportFailed = false
	token := s.handle.SessionToken
	s.mu.Unlock()
	defer s.endRequest()

	slog.Info("Session.RetryReport: retrying report generation", "attempt", attempt, "max_attempts", s.policy.MaxAttempts, "delay", delay)
	if delay > 0 {
		t := time.NewTimer(delay)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			s.mu.Lock()
			s.reportFailed = true
			s.mu.Unlock()
			return ctx.Err()
		}
	}
	return s.runCycle(ctx, token, models.FinishCommand)
}

func (s *Session) send(ctx context.Context, prompt, echo string) error {
	s.mu.Lock()
	if err := s.life.begin(models.StateActive); err != nil {
		s.mu.Unlock()
		return err
	}
	token := s.handle.SessionToken
	ops := s.appendTurnLocked(models.SpeakerPatient, models.TurnMessage, echo)
	s.mu.Unlock()
	s.flush(ops)

	defer s.endRequest()
	return s.runCycle(ctx, token, prompt)
}

// cycle is the state of one streamed reply.
type cycle struct {
	started bool
	text    strings.Builder
}

// runCycle performs one chat request and applies its events in stream
// order. The caller holds the busy substate.
func (s *Session) runCycle(ctx context.Context, token, prompt string) error {
	start := time.Now()
	r, err := s.api.Chat(ctx, models.ChatRequest{SessionToken: token, Prompt: prompt})
	if err != nil {
		return s.sendFailed(err)
	}
	defer r.Close()

	c := &cycle{}
	for {
		ev, err := r.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			s.closeCycle(ctx, c)
			return s.sendFailed(err)
		}
		s.apply(ctx, c, ev)
		if ev.Done {
			break
		}
	}
	s.closeCycle(ctx, c)
	slog.Debug("Session.runCycle: reply complete", "elapsed", time.Since(start), "chars", c.text.Len(), "skipped_lines", r.Skipped())
	return nil
}

// ensureTurnLocked makes sure the cycle has an in-progress assistant turn.
func (s *Session) ensureTurnLocked(c *cycle) []renderOp {
	if c.started {
		return nil
	}
	var ops []renderOp
	if m, ok := s.transcript.Finalize(); ok {
		ops = append(ops, finalized(m))
	}
	m := s.transcript.Begin(models.SpeakerAssistant, "", s.clock())
	c.started = true
	return append(ops, func(r Renderer) { r.TurnStarted(m) })
}

func (s *Session) apply(ctx context.Context, c *cycle, ev stream.Event) {
	if ev.HasContent {
		switch {
		case models.IsReportIDSentinel(ev.Content):
			if id, ok := models.ParseReportID(ev.Content); ok {
				s.captureReport(ctx, id)
			} else {
				slog.Warn("Session.apply: report id sentinel without an id")
			}
		case ev.Content != "":
			s.appendContent(c, ev.Content)
		}
	}

	var ops []renderOp
	s.mu.Lock()
	if len(ev.Options) > 0 {
		ops = append(ops, s.ensureTurnLocked(c)...)
		if m, ok := s.transcript.SetChoices(ev.Options); ok {
			ops = append(ops, func(r Renderer) { r.TurnUpdated(m, "") })
		}
	}
	if ev.PDFReport != "" {
		ops = append(ops, s.ensureTurnLocked(c)...)
		if m, ok := s.transcript.AttachReport(ev.PDFReport); ok {
			ops = append(ops, func(r Renderer) { r.TurnUpdated(m, "") })
		}
	}
	if ev.Error != "" {
		slog.Warn("Session.apply: backend reported an error in the stream", "error", ev.Error)
		ops = append(ops, s.appendTurnLocked(models.SpeakerAssistant, models.TurnNotice, ev.Error)...)
		c.started = false
	}
	s.mu.Unlock()
	s.flush(ops)
}

func (s *Session) appendContent(c *cycle, fragment string) {
	s.mu.Lock()
	var ops []renderOp
	if !c.started {
		if m, ok := s.transcript.Finalize(); ok {
			ops = append(ops, finalized(m))
		}
		m := s.transcript.Begin(models.SpeakerAssistant, fragment, s.clock())
		c.started = true
		ops = append(ops, func(r Renderer) { r.TurnStarted(m) })
	} else if m, ok := s.transcript.AppendToCurrent(fragment); ok {
		ops = append(ops, func(r Renderer) { r.TurnUpdated(m, fragment) })
	}
	c.text.WriteString(fragment)
	s.mu.Unlock()
	s.flush(ops)
}

// captureReport keeps a completed report id. Anonymous patients have no
// server-side report list, so theirs is also saved to the store.
func (s *Session) captureReport(ctx context.Context, id string) {
	s.mu.Lock()
	s.lastReportID = id
	anonymous := !s.auth.Authenticated()
	s.mu.Unlock()

	slog.Info("Session.captureReport: report id received", "report_id", id, "anonymous", anonymous)
	if !anonymous {
		return
	}
	if err := s.store.SaveLastReport(ctx, id, s.clock()); err != nil {
		slog.Error("Session.captureReport: failed to save report id", "error", err, "report_id", id)
	}
}

// closeCycle finalizes the reply and acts on its outcome.
func (s *Session) closeCycle(ctx context.Context, c *cycle) {
	outcome := ClassifyOutcome(c.text.String())

	s.mu.Lock()
	var ops []renderOp
	if c.started {
		if m, ok := s.transcript.Finalize(); ok {
			ops = append(ops, finalized(m))
		}
		c.started = false
	}
	finished := false
	switch outcome {
	case OutcomeComplete:
		if err := s.life.transition(models.StateFinished); err != nil {
			slog.Warn("Session.closeCycle: cannot finish", "error", err)
		} else {
			finished = true
		}
		s.reportFailed = false
	case OutcomeReportFailed:
		s.reportFailed = true
	}
	s.mu.Unlock()
	s.flush(ops)

	if outcome != OutcomeNone {
		slog.Info("Session.closeCycle: assessment outcome", "outcome", outcome)
	}
	if finished {
		if err := s.store.ClearPausedSession(ctx); err != nil {
			slog.Error("Session.closeCycle: failed to clear paused session", "error", err)
		}
	}
}

// sendFailed turns a chat failure into a notice. Nothing else changes.
func (s *Session) sendFailed(err error) error {
	text := msgSendFailed
	if errors.Is(err, models.ErrRateLimited) {
		slog.Warn("Session.Send: rate limited", "error", err)
		text = msgRateLimited
	} else {
		slog.Error("Session.Send: chat request failed", "error", err)
		if d := api.Detail(err); d != "" {
			text = fmt.Sprintf("%s (%s)", msgSendFailed, d)
		}
	}
	s.say(models.TurnNotice, text)
	return reported(fmt.Errorf("send message: %w", err))
}
