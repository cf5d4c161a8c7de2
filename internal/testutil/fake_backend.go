package testutil

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/BTreeMap/PsychIntake/internal/models"
	"github.com/BTreeMap/PsychIntake/internal/util"
)

// Backend paths served by FakeBackend.
const (
	PathStart         = "/api/v1/intake/start"
	PathChat          = "/api/v1/intake/chat"
	PathPause         = "/api/v1/intake/pause"
	PathResume        = "/api/v1/intake/resume"
	PathDiscard       = "/api/v1/intake/discard"
	PathTransfer      = "/api/v1/intake/transfer-session"
	PathRegister      = "/api/v1/auth/register"
	PathLogin         = "/api/v1/auth/login"
	PathMe            = "/api/v1/auth/me"
	PathNotifications = "/api/v1/provider/notifications"
	PathReadAll       = "/api/v1/provider/notifications/read-all"
	PathReportPrefix  = "/api/v1/reports/"
)

// GreetingText is what the default chat handler answers to an empty prompt.
const GreetingText = "Hello, I'm here to help with your intake."

type failure struct {
	status int
	detail string
}

// FakeBackend is an in-process stand-in for the intake platform API.
// Handlers can be replaced per path; every request is counted and its body kept.
type FakeBackend struct {
	Server *httptest.Server

	mu        sync.Mutex
	counts    map[string]int
	bodies    map[string][]byte
	headers   map[string]http.Header
	failures  map[string]failure
	overrides map[string]http.HandlerFunc

	// ChatReply returns the stream payloads for a chat request.
	ChatReply func(req models.ChatRequest) []string
	// ResumeReply is returned by the resume endpoint.
	ResumeReply models.ResumeResponse
	// PauseTTL is added to the current time to form expires_at.
	PauseTTL      time.Duration
	Me            models.MeResponse
	Notifications []models.NotificationMessage
	ReportBody    []byte
}

// NewFakeBackend starts a FakeBackend. It is closed by t.Cleanup when t is non-nil.
func NewFakeBackend(t interface{ Cleanup(func()) }) *FakeBackend {
	fb := &FakeBackend{
		counts:     make(map[string]int),
		bodies:     make(map[string][]byte),
		headers:    make(map[string]http.Header),
		failures:   make(map[string]failure),
		overrides:  make(map[string]http.HandlerFunc),
		PauseTTL:   24 * time.Hour,
		Me:         models.MeResponse{ID: "42", Email: "patient@example.com", Role: models.RolePatient, FirstName: "Test", LastName: "Patient"},
		ReportBody: []byte("%PDF-1.4 fake"),
	}
	fb.ChatReply = func(req models.ChatRequest) []string {
		if req.Prompt == "" {
			return []string{Content(GreetingText), Done}
		}
		return []string{Content("You said: " + req.Prompt), Done}
	}
	fb.Server = httptest.NewServer(http.HandlerFunc(fb.serve))
	if t != nil {
		t.Cleanup(fb.Server.Close)
	}
	return fb
}

// URL returns the server's base URL.
func (fb *FakeBackend) URL() string { return fb.Server.URL }

// Fail makes path answer with status and a detail body until cleared.
func (fb *FakeBackend) Fail(path string, status int, detail string) {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	fb.failures[path] = failure{status: status, detail: detail}
}

// Recover clears a failure set by Fail.
func (fb *FakeBackend) Recover(path string) {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	delete(fb.failures, path)
}

// Handle replaces the handler for path.
func (fb *FakeBackend) Handle(path string, h http.HandlerFunc) {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	fb.overrides[path] = h
}

// Count returns how many requests path has received.
func (fb *FakeBackend) Count(path string) int {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	return fb.counts[path]
}

// LastBody returns the most recent request body sent to path.
func (fb *FakeBackend) LastBody(path string) []byte {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	return fb.bodies[path]
}

// LastHeader returns the headers of the most recent request to path.
func (fb *FakeBackend) LastHeader(path string) http.Header {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	return fb.headers[path]
}

func routeOf(path string) string {
	if strings.HasPrefix(path, PathReportPrefix) {
		return PathReportPrefix
	}
	return path
}

func (fb *FakeBackend) serve(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	route := routeOf(r.URL.Path)

	fb.mu.Lock()
	fb.counts[route]++
	fb.bodies[route] = body
	fb.headers[route] = r.Header.Clone()
	fail, failing := fb.failures[route]
	override := fb.overrides[route]
	fb.mu.Unlock()

	if failing {
		WriteDetail(w, fail.status, fail.detail)
		return
	}
	if override != nil {
		r.Body = io.NopCloser(bytes.NewReader(body))
		override(w, r)
		return
	}

	switch route {
	case PathStart:
		WriteJSON(w, http.StatusOK, models.StartSessionResponse{SessionToken: util.GenerateRandomID("sess_", 24)})
	case PathChat:
		var req models.ChatRequest
		if err := json.Unmarshal(body, &req); err != nil {
			WriteDetail(w, http.StatusUnprocessableEntity, "invalid body")
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		WriteEvents(w, fb.ChatReply(req)...)
	case PathPause:
		WriteJSON(w, http.StatusOK, map[string]any{
			"resume_token":        util.GenerateRandomID("res_", 24),
			"expires_at":          time.Now().Add(fb.PauseTTL).UTC().Format(time.RFC3339),
			"completed_screeners": []string{"phq9"},
		})
	case PathResume:
		reply := fb.ResumeReply
		if reply.SessionToken == "" {
			reply.SessionToken = util.GenerateRandomID("sess_", 24)
		}
		WriteJSON(w, http.StatusOK, reply)
	case PathDiscard, PathTransfer, PathReadAll:
		WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	case PathRegister:
		var req models.RegisterRequest
		_ = json.Unmarshal(body, &req)
		WriteJSON(w, http.StatusCreated, map[string]any{"id": 42, "email": req.Email})
	case PathLogin:
		WriteJSON(w, http.StatusOK, models.LoginResponse{AccessToken: "tok_" + util.GenerateRandomHex(16), TokenType: "bearer"})
	case PathMe:
		WriteJSON(w, http.StatusOK, fb.Me)
	case PathNotifications:
		WriteJSON(w, http.StatusOK, fb.Notifications)
	case PathReportPrefix:
		w.Header().Set("Content-Type", "application/pdf")
		w.WriteHeader(http.StatusOK)
		w.Write(fb.ReportBody)
	default:
		WriteDetail(w, http.StatusNotFound, "Not Found")
	}
}
