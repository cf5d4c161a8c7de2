package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/BTreeMap/PsychIntake/internal/models"
	"github.com/BTreeMap/PsychIntake/internal/util"
)

// SessionStore is the typed view over a Backend shared by every intake flow.
// Each operation reads or replaces whole values; there are no cross-key
// transactions.
type SessionStore struct {
	backend Backend
	newID   func() string
}

// NewSessionStore wraps backend.
func NewSessionStore(backend Backend) *SessionStore {
	return &SessionStore{backend: backend, newID: util.NewAnonymousID}
}

// Close closes the underlying backend.
func (s *SessionStore) Close() error { return s.backend.Close() }

// PausedSession returns the cached paused-session record, or nil if there is
// none usable at now. Expired and unreadable records are removed.
func (s *SessionStore) PausedSession(ctx context.Context, now time.Time) (*models.PausedSessionRecord, error) {
	raw, ok, err := s.backend.Get(ctx, KeyPausedSession)
	if err != nil || !ok {
		return nil, err
	}
	var rec models.PausedSessionRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		slog.Warn("SessionStore.PausedSession: discarding unreadable record", "error", err)
		return nil, s.ClearPausedSession(ctx)
	}
	if err := rec.Validate(); err != nil {
		slog.Warn("SessionStore.PausedSession: discarding incomplete record", "error", err)
		return nil, s.ClearPausedSession(ctx)
	}
	if rec.Expired(now) {
		slog.Info("SessionStore.PausedSession: discarding expired record", "expires_at", rec.ExpiresAt)
		return nil, s.ClearPausedSession(ctx)
	}
	return &rec, nil
}

// SavePausedSession replaces any existing record. Backends that support it
// expire the value at the record's expiry.
func (s *SessionStore) SavePausedSession(ctx context.Context, rec models.PausedSessionRecord) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	b, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode paused session: %w", err)
	}
	if eb, ok := s.backend.(ExpiringBackend); ok {
		ttl := time.Until(rec.ExpiresAt)
		if ttl > 0 {
			return eb.SetWithTTL(ctx, KeyPausedSession, string(b), ttl)
		}
	}
	return s.backend.Set(ctx, KeyPausedSession, string(b))
}

// ClearPausedSession removes the paused-session record.
func (s *SessionStore) ClearPausedSession(ctx context.Context) error {
	return s.backend.Delete(ctx, KeyPausedSession)
}

// AuthSession returns the cached bearer token and identity, or nil when signed out.
func (s *SessionStore) AuthSession(ctx context.Context) (*models.AuthSession, error) {
	token, ok, err := s.backend.Get(ctx, KeyAccessToken)
	if err != nil || !ok || token == "" {
		return nil, err
	}
	auth := &models.AuthSession{AccessToken: token}
	fields := []struct {
		key Key
		dst *string
	}{
		{KeyUserID, &auth.Identity.UserID},
		{KeyUserName, &auth.Identity.Name},
		{KeyUserEmail, &auth.Identity.Email},
	}
	for _, f := range fields {
		v, _, err := s.backend.Get(ctx, f.key)
		if err != nil {
			return nil, err
		}
		*f.dst = v
	}
	role, _, err := s.backend.Get(ctx, KeyUserRole)
	if err != nil {
		return nil, err
	}
	auth.Identity.Role = models.Role(role)
	return auth, nil
}

// AccessToken returns the bearer token, or "" when signed out.
func (s *SessionStore) AccessToken(ctx context.Context) (string, error) {
	token, _, err := s.backend.Get(ctx, KeyAccessToken)
	return token, err
}

// SaveAuthSession stores the token and every identity field. Empty fields are
// removed so a stale value from an earlier account never survives.
func (s *SessionStore) SaveAuthSession(ctx context.Context, auth models.AuthSession) error {
	values := []struct {
		key   Key
		value string
	}{
		{KeyAccessToken, auth.AccessToken},
		{KeyUserID, auth.Identity.UserID},
		{KeyUserName, auth.Identity.Name},
		{KeyUserEmail, auth.Identity.Email},
		{KeyUserRole, string(auth.Identity.Role)},
	}
	for _, v := range values {
		var err error
		if v.value == "" {
			err = s.backend.Delete(ctx, v.key)
		} else {
			err = s.backend.Set(ctx, v.key, v.value)
		}
		if err != nil {
			return err
		}
	}
	slog.Debug("SessionStore.SaveAuthSession: stored identity", "user_id", auth.Identity.UserID, "token_set", auth.AccessToken != "")
	return nil
}

// ClearAuthSession removes the token and identity fields.
func (s *SessionStore) ClearAuthSession(ctx context.Context) error {
	for _, k := range []Key{KeyAccessToken, KeyUserID, KeyUserName, KeyUserEmail, KeyUserRole} {
		if err := s.backend.Delete(ctx, k); err != nil {
			return err
		}
	}
	return nil
}

// UserName returns the cached display name.
func (s *SessionStore) UserName(ctx context.Context) (string, error) {
	name, _, err := s.backend.Get(ctx, KeyUserName)
	return name, err
}

// SaveUserName caches the display name sent when starting or resuming.
func (s *SessionStore) SaveUserName(ctx context.Context, name string) error {
	return s.backend.Set(ctx, KeyUserName, name)
}

// LastReport returns the last report completed anonymously on this device.
func (s *SessionStore) LastReport(ctx context.Context) (*models.ReportRef, error) {
	id, ok, err := s.backend.Get(ctx, KeyLastReportID)
	if err != nil || !ok || id == "" {
		return nil, err
	}
	ref := &models.ReportRef{ID: id}
	date, ok, err := s.backend.Get(ctx, KeyLastReportDate)
	if err != nil {
		return nil, err
	}
	if ok {
		if t, perr := time.Parse(time.RFC3339Nano, date); perr == nil {
			ref.Date = t
		}
	}
	return ref, nil
}

// SaveLastReport records id and the time it was produced.
func (s *SessionStore) SaveLastReport(ctx context.Context, id string, date time.Time) error {
	if err := s.backend.Set(ctx, KeyLastReportID, id); err != nil {
		return err
	}
	return s.backend.Set(ctx, KeyLastReportDate, date.UTC().Format(time.RFC3339Nano))
}

// TempUserID returns the cached anonymous patient id, generating and caching
// one on first use.
func (s *SessionStore) TempUserID(ctx context.Context) (string, error) {
	id, ok, err := s.backend.Get(ctx, KeyTempUserID)
	if err != nil {
		return "", err
	}
	if ok && id != "" {
		return id, nil
	}
	id = s.newID()
	if err := s.backend.Set(ctx, KeyTempUserID, id); err != nil {
		return "", err
	}
	slog.Debug("SessionStore.TempUserID: generated anonymous id")
	return id, nil
}
