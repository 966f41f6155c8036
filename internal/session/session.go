// Package session holds the authenticated user context of the client and
// persists it between runs.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/gradpush/extrapoints/internal/fieldmap"
	"github.com/gradpush/extrapoints/internal/models"
	"github.com/gradpush/extrapoints/internal/storage"
	"github.com/gradpush/extrapoints/pkg/client"
)

var (
	// ErrNotAuthenticated is returned when an operation needs a logged-in user
	ErrNotAuthenticated = errors.New("not authenticated")

	// ErrSessionInvalid is returned when the backend no longer accepts the session
	ErrSessionInvalid = errors.New("session invalid")
)

// Snapshot keys in the KV store
const (
	KeyUser  = "session:user"
	KeyToken = "session:token"
)

// DefaultAvatar is shown for users without an avatar
const DefaultAvatar = "/images/default-avatar.jpg"

// Mode selects how the backend authenticates requests
type Mode string

const (
	ModeToken   Mode = "token"
	ModeSession Mode = "session"
	ModeBoth    Mode = "both"
)

// API is the part of the portal client the session talks to
type API interface {
	Login(ctx context.Context, creds models.Credentials) (*client.LoginResult, error)
	Register(ctx context.Context, reg models.Registration) (string, error)
	ResetPassword(ctx context.Context, reset models.PasswordReset) (string, error)
	SessionCheck(ctx context.Context) (*client.SessionStatus, error)
	Logout(ctx context.Context) error
	CurrentUser(ctx context.Context, username string) (*models.User, error)
	SetToken(token string)
	HasSessionCookies() bool
	ClearCookies()
	Origin() string
}

// Session is the authenticated user context. The client trusts the role
// claimed by the backend and enforces nothing itself.
type Session struct {
	api    API
	kv     storage.KV
	mode   Mode
	logger *slog.Logger

	mu    sync.RWMutex
	user  *models.User
	token string
}

// Option configures a Session
type Option func(*Session)

// WithMode selects the authentication mode
func WithMode(mode Mode) Option {
	return func(s *Session) {
		if mode != "" {
			s.mode = mode
		}
	}
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Session) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New creates an unauthenticated session persisted in kv
func New(api API, kv storage.KV, opts ...Option) *Session {
	s := &Session{
		api:    api,
		kv:     kv,
		mode:   ModeBoth,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Login authenticates and stores the returned profile and token
func (s *Session) Login(ctx context.Context, creds models.Credentials) (*models.User, error) {
	result, err := s.api.Login(ctx, creds)
	if err != nil {
		s.logger.Warn("login failed", "username", creds.Username, "error", err)
		return nil, err
	}

	token := result.Token
	if s.mode == ModeSession {
		token = ""
	}
	if s.mode == ModeToken && token == "" {
		return nil, fmt.Errorf("%w: login response has no token", client.ErrDecode)
	}

	user := result.User
	s.set(&user, token)
	if err := s.persist(ctx); err != nil {
		s.logger.Error("failed to persist session", "error", err)
	}

	s.logger.Info("logged in", "username", user.Username, "role", user.Role)
	out := user
	return &out, nil
}

// Register creates an account. The session is not changed.
func (s *Session) Register(ctx context.Context, reg models.Registration) (string, error) {
	return s.api.Register(ctx, reg)
}

// ResetPassword sets a new password. The session is not changed.
func (s *Session) ResetPassword(ctx context.Context, reset models.PasswordReset) (string, error) {
	return s.api.ResetPassword(ctx, reset)
}

// Logout notifies the backend and then clears the local session even
// when the backend call fails. Only a failure to clear the snapshot is
// returned.
func (s *Session) Logout(ctx context.Context) error {
	if err := s.api.Logout(ctx); err != nil {
		s.logger.Warn("backend logout failed", "error", err)
	}
	if err := s.clear(ctx); err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}
	s.logger.Info("logged out")
	return nil
}

// Initialize restores the persisted session and validates it against the
// backend before trusting it. A rejected session is cleared. When the
// backend cannot be reached the snapshot is kept for the next attempt,
// the session stays unauthenticated and the error is returned.
func (s *Session) Initialize(ctx context.Context) error {
	var user models.User
	err := storage.GetJSON(ctx, s.kv, KeyUser, &user)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		s.logger.Warn("discarding unreadable session snapshot", "error", err)
		return s.clear(ctx)
	}

	var token string
	if s.mode != ModeSession {
		raw, err := s.kv.Get(ctx, KeyToken)
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("failed to load token: %w", err)
		}
		token = string(raw)
		if s.mode == ModeToken && token == "" {
			return s.clear(ctx)
		}
	}
	s.api.SetToken(token)

	validated, err := s.validate(ctx, user.Username)
	if err != nil {
		var re *client.RequestError
		if errors.Is(err, ErrSessionInvalid) || (errors.As(err, &re) && re.Kind == client.KindHTTP) {
			s.logger.Info("stored session rejected", "username", user.Username, "error", err)
			return s.clear(ctx)
		}
		s.api.SetToken("")
		return fmt.Errorf("failed to validate session: %w", err)
	}
	profile := *validated
	if profile.Username == "" {
		profile.Username = user.Username
	}

	s.set(&profile, token)
	if err := s.persist(ctx); err != nil {
		s.logger.Error("failed to persist session", "error", err)
	}
	s.logger.Info("session restored", "username", profile.Username, "role", profile.Role)
	return nil
}

// validate asks session-check and falls back to fetching the profile on
// backends without that endpoint
func (s *Session) validate(ctx context.Context, username string) (*models.User, error) {
	status, err := s.api.SessionCheck(ctx)
	switch {
	case err == nil && denied(status):
		return nil, ErrSessionInvalid
	case err == nil && status.User != nil:
		return status.User, nil
	case err != nil && client.StatusCode(err) != http.StatusNotFound:
		return nil, err
	}
	return s.api.CurrentUser(ctx, username)
}

// GetCurrentUser refreshes the profile from the backend. On failure the
// cached profile is returned together with the error. A rejected session
// is cleared and reported as ErrSessionInvalid.
func (s *Session) GetCurrentUser(ctx context.Context) (*models.User, error) {
	cached := s.User()
	if cached == nil {
		return nil, ErrNotAuthenticated
	}

	user, err := s.api.CurrentUser(ctx, cached.Username)
	if err != nil {
		if client.IsUnauthorized(err) {
			if clearErr := s.clear(ctx); clearErr != nil {
				s.logger.Error("failed to clear session", "error", clearErr)
			}
			return nil, fmt.Errorf("%w: %w", ErrSessionInvalid, err)
		}
		return cached, err
	}

	profile := *user
	s.mu.Lock()
	s.user = &profile
	s.mu.Unlock()
	if err := s.persist(ctx); err != nil {
		s.logger.Error("failed to persist session", "error", err)
	}
	return user, nil
}

// UpdateUserInfo merges the set fields of patch into the local profile
// and persists it. The backend is not called.
func (s *Session) UpdateUserInfo(ctx context.Context, patch models.User) error {
	s.mu.Lock()
	if s.user == nil {
		s.mu.Unlock()
		return ErrNotAuthenticated
	}
	merged, err := mergeUser(*s.user, patch)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	s.user = &merged
	s.mu.Unlock()

	return s.persist(ctx)
}

// User returns a copy of the profile, or nil when logged out
func (s *Session) User() *models.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return nil
	}
	out := *s.user
	return &out
}

// Token returns the bearer token, empty for cookie sessions
func (s *Session) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// Role returns the backend's role claim for the user
func (s *Session) Role() models.Role {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return ""
	}
	return s.user.Role
}

// DisplayName returns the user's name, falling back to the username
func (s *Session) DisplayName() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.user.DisplayName()
}

// AvatarURL resolves the avatar against the API origin
func (s *Session) AvatarURL() string {
	s.mu.RLock()
	avatar := ""
	if s.user != nil {
		avatar = strings.TrimSpace(s.user.Avatar)
	}
	s.mu.RUnlock()

	switch {
	case avatar == "":
		return DefaultAvatar
	case strings.HasPrefix(avatar, "http://"),
		strings.HasPrefix(avatar, "https://"),
		strings.HasPrefix(avatar, "data:"):
		return avatar
	}
	return strings.TrimRight(s.api.Origin(), "/") + "/" + strings.TrimLeft(avatar, "/")
}

// IsAuthenticated reports whether both a profile and credentials are held
func (s *Session) IsAuthenticated() bool {
	s.mu.RLock()
	user, token := s.user, s.token
	s.mu.RUnlock()

	if user == nil {
		return false
	}
	switch s.mode {
	case ModeToken:
		return token != ""
	case ModeSession:
		return true
	default:
		return token != "" || s.api.HasSessionCookies()
	}
}

func (s *Session) set(user *models.User, token string) {
	s.mu.Lock()
	s.user = user
	s.token = token
	s.mu.Unlock()
	s.api.SetToken(token)
}

func (s *Session) persist(ctx context.Context) error {
	s.mu.RLock()
	user, token := s.user, s.token
	s.mu.RUnlock()
	if user == nil {
		return nil
	}

	if err := storage.SetJSON(ctx, s.kv, KeyUser, user); err != nil {
		return err
	}
	if token == "" {
		return s.kv.Delete(ctx, KeyToken)
	}
	return s.kv.Set(ctx, KeyToken, []byte(token))
}

func (s *Session) clear(ctx context.Context) error {
	s.mu.Lock()
	s.user = nil
	s.token = ""
	s.mu.Unlock()

	s.api.SetToken("")
	s.api.ClearCookies()

	return errors.Join(
		s.kv.Delete(ctx, KeyUser),
		s.kv.Delete(ctx, KeyToken),
	)
}

func denied(status *client.SessionStatus) bool {
	return (status.Valid != nil && !*status.Valid) ||
		(status.Authenticated != nil && !*status.Authenticated)
}

// mergeUser overlays the non-empty fields of patch onto base
func mergeUser(base, patch models.User) (models.User, error) {
	record, err := fieldmap.Encode(base)
	if err != nil {
		return base, err
	}
	changes, err := fieldmap.Encode(patch)
	if err != nil {
		return base, err
	}
	for k, v := range changes {
		if v == "" {
			continue
		}
		record[k] = v
	}
	var out models.User
	if err := fieldmap.Decode(record, &out); err != nil {
		return base, err
	}
	return out, nil
}
