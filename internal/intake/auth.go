package intake

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/BTreeMap/PsychIntake/internal/models"
	"github.com/BTreeMap/PsychIntake/internal/store"
)

// AuthAPI is the part of the backend client used to sign in.
type AuthAPI interface {
	Login(ctx context.Context, email, password string) (models.LoginResponse, error)
	Me(ctx context.Context) (models.MeResponse, error)
}

// SignIn logs in and caches the token and profile in st. a must read its
// bearer token from st, so the profile request carries the new token.
func SignIn(ctx context.Context, a AuthAPI, st *store.SessionStore, email, password string) (models.Identity, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return models.Identity{}, models.ErrEmptyEmail
	}
	if password == "" {
		return models.Identity{}, models.ErrEmptyPassword
	}

	login, err := a.Login(ctx, email, password)
	if err != nil {
		slog.Warn("intake.SignIn: login failed", "error", err)
		return models.Identity{}, fmt.Errorf("sign in: %w", err)
	}
	if err := st.SaveAuthSession(ctx, models.AuthSession{AccessToken: login.AccessToken}); err != nil {
		return models.Identity{}, fmt.Errorf("store access token: %w", err)
	}

	me, err := a.Me(ctx)
	if err != nil {
		slog.Error("intake.SignIn: failed to load profile", "error", err)
		if cerr := st.ClearAuthSession(ctx); cerr != nil {
			slog.Error("intake.SignIn: failed to clear partial sign-in", "error", cerr)
		}
		return models.Identity{}, fmt.Errorf("load profile: %w", err)
	}
	id := me.Identity()
	if id.Email == "" {
		id.Email = email
	}
	if err := st.SaveAuthSession(ctx, models.AuthSession{AccessToken: login.AccessToken, Identity: id}); err != nil {
		return models.Identity{}, fmt.Errorf("store identity: %w", err)
	}
	slog.Info("intake.SignIn: signed in", "user_id", id.UserID, "role", id.Role)
	return id, nil
}

// SignOut forgets the cached token and identity.
func SignOut(ctx context.Context, st *store.SessionStore) error {
	if err := st.ClearAuthSession(ctx); err != nil {
		return fmt.Errorf("sign out: %w", err)
	}
	slog.Info("intake.SignOut: signed out")
	return nil
}
