package intake

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/BTreeMap/PsychIntake/internal/models"
)

// LinkStep names a step of account linking.
type LinkStep string

const (
	StepValidate LinkStep = "validate"
	StepRegister LinkStep = "register"
	StepLogin    LinkStep = "login"
	StepPersist  LinkStep = "persist"
)

// LinkError reports the step at which account linking stopped. Steps before
// it have taken effect and are not undone.
type LinkError struct {
	Step LinkStep
	Err  error
}

func (e *LinkError) Error() string {
	switch e.Step {
	case StepValidate:
		return e.Err.Error()
	case StepRegister:
		return "could not create your account: " + e.Err.Error()
	case StepLogin:
		return "your account was created but signing in failed: " + e.Err.Error()
	default:
		return "signed in but could not save your session: " + e.Err.Error()
	}
}

func (e *LinkError) Unwrap() error { return e.Err }

// LinkResult describes a completed account link.
type LinkResult struct {
	Identity models.Identity
	// Transferred is false when no session was open or the transfer failed.
	Transferred bool
}

// LinkAccount turns the anonymous patient into a registered one without
// losing the conversation: register, log in, persist the token, then move
// the open session to the new account. Each step runs only if the previous
// one succeeded. A failed transfer is logged and does not fail the link.
func (s *Session) LinkAccount(ctx context.Context, form models.Signup) (*LinkResult, error) {
	if err := form.Validate(); err != nil {
		return nil, &LinkError{Step: StepValidate, Err: err}
	}
	s.mu.Lock()
	if s.life.busy {
		s.mu.Unlock()
		return nil, models.ErrBusy
	}
	if s.auth.Authenticated() {
		email := s.auth.Identity.Email
		s.mu.Unlock()
		return nil, fmt.Errorf("already signed in as %s", email)
	}
	s.mu.Unlock()

	reg, err := s.api.Register(ctx, models.NewRegisterRequest(form))
	if err != nil {
		slog.Error("Session.LinkAccount: registration failed", "error", err)
		return nil, &LinkError{Step: StepRegister, Err: err}
	}
	email := strings.TrimSpace(form.Email)
	login, err := s.api.Login(ctx, email, form.Password)
	if err != nil {
		slog.Error("Session.LinkAccount: login after registration failed", "error", err, "user_id", reg.ID)
		return nil, &LinkError{Step: StepLogin, Err: err}
	}

	name := strings.Join(strings.Fields(form.FullName), " ")
	if reg.Email != "" {
		email = reg.Email
	}
	auth := models.AuthSession{
		AccessToken: login.AccessToken,
		Identity: models.Identity{
			UserID: reg.ID.String(),
			Name:   name,
			Email:  email,
			Role:   models.RolePatient,
		},
	}
	if err := s.store.SaveAuthSession(ctx, auth); err != nil {
		slog.Error("Session.LinkAccount: failed to persist auth session", "error", err)
		return nil, &LinkError{Step: StepPersist, Err: err}
	}

	s.mu.Lock()
	s.auth = &auth
	s.userName = name
	token := s.handle.SessionToken
	open := token != "" && (s.life.state == models.StateActive || s.life.state == models.StatePaused)
	s.mu.Unlock()

	transferred := false
	if open {
		err := s.api.TransferSession(ctx, models.TransferRequest{
			SessionToken: token,
			NewUserID:    auth.Identity.UserID,
			UserName:     name,
		})
		if err != nil {
			slog.Warn("Session.LinkAccount: session transfer failed, account kept", "error", err, "session", models.DisplayIDFor(token), "user_id", auth.Identity.UserID)
		} else {
			transferred = true
		}
	}

	first, _ := models.SplitName(name)
	text := fmt.Sprintf("Thanks, %s! Your account has been created and you're now signed in.", first)
	if transferred {
		text += " This conversation is now saved to your account."
	}
	s.say(models.TurnMessage, text)

	slog.Info("Session.LinkAccount: account linked", "user_id", auth.Identity.UserID, "transferred", transferred)
	return &LinkResult{Identity: auth.Identity, Transferred: transferred}, nil
}
