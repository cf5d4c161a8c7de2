package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/BTreeMap/PsychIntake/internal/models"
	"github.com/BTreeMap/PsychIntake/internal/stream"
)

// Intake endpoint paths.
const (
	PathIntakeStart    = "/api/v1/intake/start"
	PathIntakeChat     = "/api/v1/intake/chat"
	PathIntakePause    = "/api/v1/intake/pause"
	PathIntakeResume   = "/api/v1/intake/resume"
	PathIntakeDiscard  = "/api/v1/intake/discard"
	PathIntakeTransfer = "/api/v1/intake/transfer-session"
)

var errMissingSessionToken = errors.New("backend returned no session token")

// StartSession opens a new intake conversation.
func (c *Client) StartSession(ctx context.Context, req models.StartSessionRequest) (models.StartSessionResponse, error) {
	var out models.StartSessionResponse
	if err := c.doJSON(ctx, http.MethodPost, PathIntakeStart, req, &out); err != nil {
		return out, err
	}
	if out.SessionToken == "" {
		return out, errMissingSessionToken
	}
	return out, nil
}

// Chat sends one prompt and returns a reader over the streamed reply. The
// caller must Close the reader. The stream is bounded only by ctx.
func (c *Client) Chat(ctx context.Context, req models.ChatRequest) (*stream.Reader, error) {
	httpReq, err := c.newRequest(ctx, http.MethodPost, PathIntakeChat, req)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Accept", "text/event-stream")
	resp, err := c.do(httpReq)
	if err != nil {
		return nil, err
	}
	return stream.NewReader(resp.Body), nil
}

// Pause suspends the session and returns its resume capability.
func (c *Client) Pause(ctx context.Context, sessionToken string) (models.PauseResponse, error) {
	var out models.PauseResponse
	if err := c.doJSON(ctx, http.MethodPost, PathIntakePause, models.PauseRequest{SessionToken: sessionToken}, &out); err != nil {
		return out, err
	}
	if out.ResumeToken == "" {
		return out, fmt.Errorf("backend returned no resume token")
	}
	return out, nil
}

// Resume reactivates a paused session and returns its history.
func (c *Client) Resume(ctx context.Context, req models.ResumeRequest) (models.ResumeResponse, error) {
	var out models.ResumeResponse
	if err := c.doJSON(ctx, http.MethodPost, PathIntakeResume, req, &out); err != nil {
		return out, err
	}
	if out.SessionToken == "" {
		return out, errMissingSessionToken
	}
	return out, nil
}

// DiscardSession asks the backend to drop a session the patient chose not to continue.
func (c *Client) DiscardSession(ctx context.Context, sessionToken string) error {
	return c.doJSON(ctx, http.MethodPost, PathIntakeDiscard, models.DiscardRequest{SessionToken: sessionToken}, nil)
}

// TransferSession moves an anonymous session to a newly created account.
func (c *Client) TransferSession(ctx context.Context, req models.TransferRequest) error {
	return c.doJSON(ctx, http.MethodPost, PathIntakeTransfer, req, nil)
}
