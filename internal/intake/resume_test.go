package intake

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/BTreeMap/PsychIntake/internal/models"
	"github.com/BTreeMap/PsychIntake/internal/testutil"
)

func replayHistory(fb *testutil.FakeBackend) {
	at := models.Timestamp{Time: time.Date(2026, 3, 2, 14, 0, 0, 0, time.UTC)}
	fb.ResumeReply = models.ResumeResponse{
		SessionToken: "sess_resumed_9999",
		ConversationHistory: []models.HistoryEntry{
			{Role: "assistant", Content: "How have you been sleeping?", Timestamp: at},
			{Role: "user", Content: "Not great", Timestamp: at},
			{Role: "assistant", Content: "How long has that been going on?"},
		},
		CompletedScreeners: []string{"phq9", "gad7"},
		WelcomeMessage:     "Welcome back! Let's pick up where we left off.",
	}
}

// A paused session survives a reload of the client and comes back with its
// history, a divider and the welcome message.
func TestPauseThenResumeAfterReload(t *testing.T) {
	h := newHarness(t)
	h.bootstrap(BootstrapOptions{})
	if err := h.session.Send(context.Background(), "I feel anxious"); err != nil {
		t.Fatal(err)
	}

	res, err := h.session.Pause(context.Background())
	if err != nil {
		t.Fatalf("Pause: %v", err)
	}
	if h.session.State() != models.StatePaused {
		t.Fatalf("state = %s, want paused", h.session.State())
	}
	if !strings.HasPrefix(res.ResumeToken, "res_") || res.SessionToken != h.session.Handle().SessionToken {
		t.Errorf("pause result = %+v", res)
	}
	last := lastTurn(t, h.session)
	if !strings.Contains(last.Text, "progress has been saved") || !strings.Contains(last.Text, "resume until") {
		t.Errorf("pause confirmation = %q", last.Text)
	}
	if err := h.session.Send(context.Background(), "still there?"); !errors.Is(err, models.ErrInvalidTransition) {
		t.Errorf("Send while paused = %v", err)
	}
	rec, err := h.store.PausedSession(context.Background(), time.Now())
	if err != nil || rec == nil || rec.ResumeToken != res.ResumeToken {
		t.Fatalf("cached record = %+v, %v", rec, err)
	}

	// Reload.
	replayHistory(h.fb)
	h.session = h.newSession()
	h.bootstrap(BootstrapOptions{AutoResume: true})

	if h.fb.Count(testutil.PathStart) != 1 {
		t.Error("resume must not start a new session")
	}
	var req models.ResumeRequest
	testutil.MustUnmarshalJSON(t, h.fb.LastBody(testutil.PathResume), &req)
	if req.ResumeToken != res.ResumeToken {
		t.Errorf("resume token sent = %q, want %q", req.ResumeToken, res.ResumeToken)
	}
	if h.hasPausedRecord() {
		t.Error("paused record survived a successful resume")
	}

	msgs := h.session.Messages()
	if len(msgs) != 5 {
		t.Fatalf("transcript = %+v", msgs)
	}
	for i := 0; i < 3; i++ {
		if !msgs[i].IsReplayed || msgs[i].Kind != models.TurnMessage {
			t.Errorf("turn %d = %+v", i, msgs[i])
		}
	}
	if msgs[1].Speaker != models.SpeakerPatient || msgs[0].Speaker != models.SpeakerAssistant {
		t.Errorf("speakers = %s, %s", msgs[0].Speaker, msgs[1].Speaker)
	}
	if msgs[2].CreatedAt.IsZero() {
		t.Error("missing history timestamp not defaulted")
	}
	if msgs[3].Kind != models.TurnDivider || !strings.HasPrefix(msgs[3].Text, "Session resumed ") {
		t.Errorf("divider = %+v", msgs[3])
	}
	if msgs[4].Text != h.fb.ResumeReply.WelcomeMessage || msgs[4].IsReplayed {
		t.Errorf("welcome = %+v", msgs[4])
	}
	for i := 1; i < len(msgs); i++ {
		if msgs[i].ID <= msgs[i-1].ID {
			t.Errorf("ids not increasing: %d then %d", msgs[i-1].ID, msgs[i].ID)
		}
	}

	if h.session.State() != models.StateActive || h.session.Handle().SessionToken != "sess_resumed_9999" {
		t.Errorf("state = %s handle = %+v", h.session.State(), h.session.Handle())
	}
	if got := h.session.CompletedScreeners(); len(got) != 2 {
		t.Errorf("screeners = %v", got)
	}
	h.render.mu.Lock()
	resets := len(h.render.resets)
	h.render.mu.Unlock()
	if resets != 1 {
		t.Errorf("renderer resets = %d, want 1", resets)
	}

	if err := h.session.Send(context.Background(), "About a month"); err != nil {
		t.Fatalf("Send after resume: %v", err)
	}
	var chat models.ChatRequest
	testutil.MustUnmarshalJSON(t, h.fb.LastBody(testutil.PathChat), &chat)
	if chat.SessionToken != "sess_resumed_9999" {
		t.Errorf("chat used token %q", chat.SessionToken)
	}
}

func TestResumeInPlace(t *testing.T) {
	h := newHarness(t)
	h.bootstrap(BootstrapOptions{})
	if _, err := h.session.Pause(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := h.session.Resume(context.Background(), ""); err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if h.session.State() != models.StateActive {
		t.Errorf("state = %s", h.session.State())
	}
	if countKind(h.session.Messages(), models.TurnDivider) != 1 {
		t.Error("resume divider missing")
	}
}

func TestResumeWithoutRecord(t *testing.T) {
	h := newHarness(t)
	if err := h.session.Resume(context.Background(), ""); !errors.Is(err, models.ErrNoSession) {
		t.Errorf("Resume = %v, want ErrNoSession", err)
	}
	if h.fb.Count(testutil.PathResume) != 0 {
		t.Error("resume request sent without a token")
	}
}

// An expired record is removed without contacting the resume endpoint.
func TestExpiredRecordStartsFresh(t *testing.T) {
	h := newHarness(t)
	h.seedPaused(-time.Minute)
	h.bootstrap(BootstrapOptions{AutoResume: true})

	if h.fb.Count(testutil.PathResume) != 0 {
		t.Error("expired record was resumed")
	}
	if h.fb.Count(testutil.PathStart) != 1 || h.session.State() != models.StateActive {
		t.Errorf("start=%d state=%s", h.fb.Count(testutil.PathStart), h.session.State())
	}
	if h.hasPausedRecord() {
		t.Error("expired record not removed")
	}
}

// Every failed resume clears the record and leaves the session unstarted.
func TestResumeFailsClosed(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		sentinel error
		message  string
	}{
		{"expired", http.StatusGone, nil, msgResumeExpired},
		{"not found", http.StatusNotFound, models.ErrSessionNotFound, msgResumeNotFound},
		{"server error", http.StatusInternalServerError, nil, msgResumeFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.seedPaused(time.Hour)
			h.fb.Fail(testutil.PathResume, tt.status, "nope")

			err := h.session.Bootstrap(context.Background(), BootstrapOptions{AutoResume: true})
			if !IsReported(err) {
				t.Fatalf("Bootstrap = %v, want reported error", err)
			}
			if tt.sentinel != nil && !errors.Is(err, tt.sentinel) {
				t.Errorf("error %v does not wrap %v", err, tt.sentinel)
			}
			if h.hasPausedRecord() {
				t.Error("record survived a failed resume")
			}
			last := lastTurn(t, h.session)
			if last.Kind != models.TurnNotice || last.Text != tt.message {
				t.Errorf("notice = %+v", last)
			}
			if h.session.State() != models.StateInitializing || h.session.Busy() {
				t.Errorf("state = %s busy = %v", h.session.State(), h.session.Busy())
			}
			if h.fb.Count(testutil.PathStart) != 0 {
				t.Error("failed resume started a session on its own")
			}

			// The patient can still start over.
			if err := h.session.Start(context.Background()); err != nil {
				t.Fatalf("Start after failed resume: %v", err)
			}
			if h.session.State() != models.StateActive {
				t.Errorf("state after Start = %s", h.session.State())
			}
		})
	}
}

// A pause followed by a failed in-place resume must not strand the patient.
func TestFailedResumeAfterPauseAllowsStart(t *testing.T) {
	for _, status := range []int{http.StatusGone, http.StatusNotFound, http.StatusInternalServerError} {
		t.Run(http.StatusText(status), func(t *testing.T) {
			h := newHarness(t)
			h.bootstrap(BootstrapOptions{})
			if _, err := h.session.Pause(context.Background()); err != nil {
				t.Fatalf("Pause: %v", err)
			}
			h.fb.Fail(testutil.PathResume, status, "nope")

			if err := h.session.Resume(context.Background(), ""); !IsReported(err) {
				t.Fatalf("Resume = %v, want reported error", err)
			}
			if h.session.State() != models.StateInitializing || h.session.Busy() {
				t.Errorf("state = %s busy = %v, want initializing and idle", h.session.State(), h.session.Busy())
			}
			if tok := h.session.Handle().SessionToken; tok != "" {
				t.Errorf("handle still holds %q", tok)
			}
			if h.hasPausedRecord() {
				t.Error("record survived a failed resume")
			}
			if err := h.session.Resume(context.Background(), ""); !errors.Is(err, models.ErrNoSession) {
				t.Errorf("second Resume = %v, want ErrNoSession", err)
			}

			if err := h.session.Start(context.Background()); err != nil {
				t.Fatalf("Start after failed resume: %v", err)
			}
			if h.session.State() != models.StateActive {
				t.Errorf("state after Start = %s", h.session.State())
			}
			if got := h.fb.Count(testutil.PathStart); got != 2 {
				t.Errorf("start requests = %d, want 2", got)
			}
			if err := h.session.Send(context.Background(), "hello again"); err != nil {
				t.Errorf("Send after restart: %v", err)
			}
		})
	}
}

func TestChooserStartFresh(t *testing.T) {
	h := newHarness(t)
	rec := h.seedPaused(time.Hour)
	var asked models.PausedSessionRecord
	h.bootstrap(BootstrapOptions{Chooser: func(_ context.Context, r models.PausedSessionRecord) (ResumeDecision, error) {
		asked = r
		return DecisionStartFresh, nil
	}})

	if asked.ResumeToken != rec.ResumeToken {
		t.Errorf("chooser saw %+v", asked)
	}
	var discard models.DiscardRequest
	testutil.MustUnmarshalJSON(t, h.fb.LastBody(testutil.PathDiscard), &discard)
	if discard.SessionToken != rec.SessionToken {
		t.Errorf("discarded %q, want %q", discard.SessionToken, rec.SessionToken)
	}
	if h.fb.Count(testutil.PathResume) != 0 || h.fb.Count(testutil.PathStart) != 1 {
		t.Errorf("resume=%d start=%d", h.fb.Count(testutil.PathResume), h.fb.Count(testutil.PathStart))
	}
	if h.hasPausedRecord() {
		t.Error("record kept after starting fresh")
	}
}

func TestChooserDiscardFailureStillStarts(t *testing.T) {
	h := newHarness(t)
	h.seedPaused(time.Hour)
	h.fb.Fail(testutil.PathDiscard, http.StatusInternalServerError, "boom")
	h.bootstrap(BootstrapOptions{Chooser: func(context.Context, models.PausedSessionRecord) (ResumeDecision, error) {
		return DecisionStartFresh, nil
	}})
	if h.session.State() != models.StateActive || h.hasPausedRecord() {
		t.Errorf("state = %s record = %v", h.session.State(), h.hasPausedRecord())
	}
}

func TestChooserContinue(t *testing.T) {
	h := newHarness(t)
	h.seedPaused(time.Hour)
	h.bootstrap(BootstrapOptions{Chooser: func(context.Context, models.PausedSessionRecord) (ResumeDecision, error) {
		return DecisionContinue, nil
	}})
	var req models.ResumeRequest
	testutil.MustUnmarshalJSON(t, h.fb.LastBody(testutil.PathResume), &req)
	if req.ResumeToken != "res_cached" {
		t.Errorf("resume token = %q", req.ResumeToken)
	}
}

func TestChooserError(t *testing.T) {
	h := newHarness(t)
	h.seedPaused(time.Hour)
	boom := errors.New("stdin closed")
	err := h.session.Bootstrap(context.Background(), BootstrapOptions{Chooser: func(context.Context, models.PausedSessionRecord) (ResumeDecision, error) {
		return DecisionContinue, boom
	}})
	if !errors.Is(err, boom) {
		t.Errorf("Bootstrap = %v", err)
	}
	if h.fb.Count(testutil.PathResume)+h.fb.Count(testutil.PathStart) != 0 {
		t.Error("requests sent after the chooser failed")
	}
}

// A token from another device takes precedence over the cached record.
func TestExplicitResumeToken(t *testing.T) {
	h := newHarness(t)
	h.seedPaused(time.Hour)
	h.bootstrap(BootstrapOptions{ResumeToken: "res_other_device"})

	var req models.ResumeRequest
	testutil.MustUnmarshalJSON(t, h.fb.LastBody(testutil.PathResume), &req)
	if req.ResumeToken != "res_other_device" {
		t.Errorf("resume token = %q", req.ResumeToken)
	}
	if h.session.State() != models.StateActive {
		t.Errorf("state = %s", h.session.State())
	}
}
