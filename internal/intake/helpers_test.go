package intake

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/BTreeMap/PsychIntake/internal/api"
	"github.com/BTreeMap/PsychIntake/internal/models"
	"github.com/BTreeMap/PsychIntake/internal/retry"
	"github.com/BTreeMap/PsychIntake/internal/store"
	"github.com/BTreeMap/PsychIntake/internal/testutil"
)

// recorder is a Renderer that keeps every call.
type recorder struct {
	mu        sync.Mutex
	started   []models.ChatMessage
	updated   []string
	finalized []models.ChatMessage
	resets    [][]models.ChatMessage
}

func (r *recorder) TurnStarted(m models.ChatMessage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started = append(r.started, m)
}

func (r *recorder) TurnUpdated(m models.ChatMessage, fragment string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updated = append(r.updated, fragment)
}

func (r *recorder) TurnFinalized(m models.ChatMessage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.finalized = append(r.finalized, m)
}

func (r *recorder) Reset(msgs []models.ChatMessage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resets = append(r.resets, msgs)
}

type harness struct {
	t       *testing.T
	fb      *testutil.FakeBackend
	store   *store.SessionStore
	mem     *store.InMemoryStore
	client  *api.Client
	render  *recorder
	session *Session
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	fb := testutil.NewFakeBackend(t)
	mem := store.NewInMemoryStore()
	st := store.NewSessionStore(mem)
	client := api.NewClient(
		api.WithBaseURL(fb.URL()),
		api.WithTokenSource(st),
		api.WithTimeout(2*time.Second),
	)
	h := &harness{t: t, fb: fb, store: st, mem: mem, client: client}
	h.session = h.newSession()
	return h
}

// newSession builds a fresh Session over the same backend and store, as a
// reload of the client would.
func (h *harness) newSession() *Session {
	h.t.Helper()
	h.render = &recorder{}
	s, err := NewSession(Deps{
		API:         h.client,
		Store:       h.store,
		Renderer:    h.render,
		RetryPolicy: retry.Policy{MaxAttempts: 2},
	})
	if err != nil {
		h.t.Fatalf("NewSession: %v", err)
	}
	return s
}

func (h *harness) bootstrap(opts BootstrapOptions) {
	h.t.Helper()
	if err := h.session.Bootstrap(context.Background(), opts); err != nil {
		h.t.Fatalf("Bootstrap: %v", err)
	}
}

func (h *harness) seedPaused(expiresIn time.Duration) models.PausedSessionRecord {
	h.t.Helper()
	now := time.Now()
	rec := models.PausedSessionRecord{
		SessionToken:       "sess_paused_1234",
		ResumeToken:        "res_cached",
		ExpiresAt:          now.Add(expiresIn),
		PausedAt:           now.Add(-time.Minute),
		CompletedScreeners: []string{"phq9"},
	}
	raw, err := json.Marshal(rec)
	if err != nil {
		h.t.Fatal(err)
	}
	// Written directly so already-expired records can be seeded.
	if err := h.mem.Set(context.Background(), store.KeyPausedSession, string(raw)); err != nil {
		h.t.Fatal(err)
	}
	return rec
}

func (h *harness) hasPausedRecord() bool {
	_, ok, _ := h.mem.Get(context.Background(), store.KeyPausedSession)
	return ok
}

func (h *harness) lastChatPrompt() string {
	var req models.ChatRequest
	testutil.MustUnmarshalJSON(h.t, h.fb.LastBody(testutil.PathChat), &req)
	return req.Prompt
}

func lastTurn(t *testing.T, s *Session) models.ChatMessage {
	t.Helper()
	msgs := s.Messages()
	if len(msgs) == 0 {
		t.Fatal("transcript is empty")
	}
	return msgs[len(msgs)-1]
}

func countKind(msgs []models.ChatMessage, kind models.TurnKind) int {
	n := 0
	for _, m := range msgs {
		if m.Kind == kind {
			n++
		}
	}
	return n
}
