package session

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gradpush/extrapoints/internal/models"
	"github.com/gradpush/extrapoints/internal/storage"
	"github.com/gradpush/extrapoints/pkg/client"
)

type fakeAPI struct {
	mu sync.Mutex

	loginResult *client.LoginResult
	loginErr    error
	status      *client.SessionStatus
	statusErr   error
	current     *models.User
	currentErr  error
	logoutErr   error

	token        string
	cookies      bool
	logoutCalls  int
	cookieClears int
}

func (f *fakeAPI) Login(ctx context.Context, creds models.Credentials) (*client.LoginResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.loginErr != nil {
		return nil, f.loginErr
	}
	f.cookies = true
	out := *f.loginResult
	return &out, nil
}

func (f *fakeAPI) Register(ctx context.Context, reg models.Registration) (string, error) {
	return "registered " + reg.Username, nil
}

func (f *fakeAPI) ResetPassword(ctx context.Context, reset models.PasswordReset) (string, error) {
	return "reset " + reset.Username, nil
}

func (f *fakeAPI) SessionCheck(ctx context.Context) (*client.SessionStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status, f.statusErr
}

func (f *fakeAPI) Logout(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logoutCalls++
	return f.logoutErr
}

func (f *fakeAPI) CurrentUser(ctx context.Context, username string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.currentErr != nil {
		return nil, f.currentErr
	}
	out := *f.current
	return &out, nil
}

func (f *fakeAPI) SetToken(token string) {
	f.mu.Lock()
	f.token = token
	f.mu.Unlock()
}

func (f *fakeAPI) HasSessionCookies() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cookies
}

func (f *fakeAPI) ClearCookies() {
	f.mu.Lock()
	f.cookies = false
	f.cookieClears++
	f.mu.Unlock()
}

func (f *fakeAPI) Origin() string {
	return "http://localhost:5001"
}

func boolPtr(v bool) *bool {
	return &v
}

func httpError(status int) error {
	return &client.RequestError{Kind: client.KindHTTP, StatusCode: status, Message: http.StatusText(status)}
}

var teacher = models.User{Username: "teacherA", Name: "王老师", Role: models.RoleTeacher}

func loggedIn(t *testing.T, api *fakeAPI, kv storage.KV, opts ...Option) *Session {
	t.Helper()
	api.loginResult = &client.LoginResult{User: teacher, Token: "jwt-token"}
	s := New(api, kv, opts...)
	_, err := s.Login(context.Background(), models.Credentials{Username: "teacherA", Password: "secret"})
	require.NoError(t, err)
	return s
}

func TestLoginStoresProfileAndToken(t *testing.T) {
	api := &fakeAPI{}
	kv := storage.NewMemoryStore()
	s := loggedIn(t, api, kv)

	assert.True(t, s.IsAuthenticated())
	assert.Equal(t, models.RoleTeacher, s.Role())
	assert.Equal(t, "王老师", s.DisplayName())
	assert.Equal(t, "jwt-token", s.Token())
	assert.Equal(t, "jwt-token", api.token)

	var stored models.User
	require.NoError(t, storage.GetJSON(context.Background(), kv, KeyUser, &stored))
	assert.Equal(t, "teacherA", stored.Username)
	token, err := kv.Get(context.Background(), KeyToken)
	require.NoError(t, err)
	assert.Equal(t, "jwt-token", string(token))
}

func TestLoginFailureKeepsState(t *testing.T) {
	api := &fakeAPI{loginErr: httpError(http.StatusUnauthorized)}
	s := New(api, storage.NewMemoryStore())

	user, err := s.Login(context.Background(), models.Credentials{Username: "a", Password: "b"})

	assert.Nil(t, user)
	assert.True(t, client.IsUnauthorized(err))
	assert.False(t, s.IsAuthenticated())
}

func TestLoginSessionModeIgnoresToken(t *testing.T) {
	api := &fakeAPI{}
	s := loggedIn(t, api, storage.NewMemoryStore(), WithMode(ModeSession))

	assert.Empty(t, s.Token())
	assert.True(t, s.IsAuthenticated())
}

func TestLoginTokenModeRequiresToken(t *testing.T) {
	api := &fakeAPI{loginResult: &client.LoginResult{User: teacher}}
	s := New(api, storage.NewMemoryStore(), WithMode(ModeToken))

	_, err := s.Login(context.Background(), models.Credentials{Username: "teacherA", Password: "secret"})

	assert.ErrorIs(t, err, client.ErrDecode)
	assert.False(t, s.IsAuthenticated())
}

func TestLogoutClearsEvenWhenBackendFails(t *testing.T) {
	api := &fakeAPI{}
	kv := storage.NewMemoryStore()
	s := loggedIn(t, api, kv)
	api.logoutErr = errors.New("connection refused")

	require.NoError(t, s.Logout(context.Background()))

	assert.Equal(t, 1, api.logoutCalls)
	assert.Equal(t, 1, api.cookieClears)
	assert.False(t, s.IsAuthenticated())
	assert.Nil(t, s.User())
	assert.Empty(t, api.token)
	_, err := kv.Get(context.Background(), KeyUser)
	assert.ErrorIs(t, err, storage.ErrNotFound)
	_, err = kv.Get(context.Background(), KeyToken)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestInitializeWithoutSnapshot(t *testing.T) {
	s := New(&fakeAPI{}, storage.NewMemoryStore())
	require.NoError(t, s.Initialize(context.Background()))
	assert.False(t, s.IsAuthenticated())
}

func TestInitializeValidatesSnapshot(t *testing.T) {
	kv := storage.NewMemoryStore()
	loggedIn(t, &fakeAPI{}, kv)

	refreshed := teacher
	refreshed.Avatar = "/uploads/avatar.png"
	api := &fakeAPI{status: &client.SessionStatus{Valid: boolPtr(true), User: &refreshed}}
	s := New(api, kv)

	require.NoError(t, s.Initialize(context.Background()))

	assert.True(t, s.IsAuthenticated())
	assert.Equal(t, "jwt-token", api.token)
	assert.Equal(t, "http://localhost:5001/uploads/avatar.png", s.AvatarURL())
}

func TestInitializeClearsRejectedSession(t *testing.T) {
	tests := []struct {
		name      string
		status    *client.SessionStatus
		statusErr error
	}{
		{name: "invalid flag", status: &client.SessionStatus{Valid: boolPtr(false)}},
		{name: "not authenticated", status: &client.SessionStatus{Authenticated: boolPtr(false), User: &teacher}},
		{name: "unauthorized", statusErr: httpError(http.StatusUnauthorized)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kv := storage.NewMemoryStore()
			loggedIn(t, &fakeAPI{}, kv)

			api := &fakeAPI{status: tt.status, statusErr: tt.statusErr}
			s := New(api, kv)

			require.NoError(t, s.Initialize(context.Background()))

			assert.False(t, s.IsAuthenticated())
			assert.Nil(t, s.User())
			_, err := kv.Get(context.Background(), KeyUser)
			assert.ErrorIs(t, err, storage.ErrNotFound)
		})
	}
}

func TestInitializeKeepsSnapshotWhenOffline(t *testing.T) {
	kv := storage.NewMemoryStore()
	loggedIn(t, &fakeAPI{}, kv)

	offline := &client.RequestError{Kind: client.KindNetwork, Message: "connection refused"}
	api := &fakeAPI{statusErr: offline}
	s := New(api, kv)

	err := s.Initialize(context.Background())

	assert.ErrorIs(t, err, client.ErrNetwork)
	assert.False(t, s.IsAuthenticated())
	_, getErr := kv.Get(context.Background(), KeyUser)
	assert.NoError(t, getErr)
}

func TestInitializeFallsBackToCurrentUser(t *testing.T) {
	kv := storage.NewMemoryStore()
	loggedIn(t, &fakeAPI{}, kv)

	current := teacher
	current.Email = "teacher@example.com"
	api := &fakeAPI{statusErr: httpError(http.StatusNotFound), current: &current}
	s := New(api, kv)

	require.NoError(t, s.Initialize(context.Background()))
	require.True(t, s.IsAuthenticated())
	assert.Equal(t, "teacher@example.com", s.User().Email)
}

func TestGetCurrentUser(t *testing.T) {
	s := New(&fakeAPI{}, storage.NewMemoryStore())
	_, err := s.GetCurrentUser(context.Background())
	assert.ErrorIs(t, err, ErrNotAuthenticated)

	api := &fakeAPI{}
	s = loggedIn(t, api, storage.NewMemoryStore())

	fresh := teacher
	fresh.Phone = "123"
	api.current = &fresh
	user, err := s.GetCurrentUser(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "123", user.Phone)

	api.currentErr = &client.RequestError{Kind: client.KindTimeout, Message: "timeout"}
	user, err = s.GetCurrentUser(context.Background())
	assert.ErrorIs(t, err, client.ErrTimeout)
	require.NotNil(t, user)
	assert.Equal(t, "123", user.Phone)

	api.currentErr = httpError(http.StatusUnauthorized)
	user, err = s.GetCurrentUser(context.Background())
	assert.Nil(t, user)
	assert.ErrorIs(t, err, ErrSessionInvalid)
	assert.False(t, s.IsAuthenticated())
}

func TestUpdateUserInfo(t *testing.T) {
	kv := storage.NewMemoryStore()
	s := New(&fakeAPI{}, kv)
	assert.ErrorIs(t, s.UpdateUserInfo(context.Background(), models.User{Name: "x"}), ErrNotAuthenticated)

	s = loggedIn(t, &fakeAPI{}, kv)
	require.NoError(t, s.UpdateUserInfo(context.Background(), models.User{Email: "new@example.com"}))

	user := s.User()
	assert.Equal(t, "new@example.com", user.Email)
	assert.Equal(t, "teacherA", user.Username)
	assert.Equal(t, models.RoleTeacher, user.Role)

	var stored models.User
	require.NoError(t, storage.GetJSON(context.Background(), kv, KeyUser, &stored))
	assert.Equal(t, "new@example.com", stored.Email)
}

func TestAvatarURL(t *testing.T) {
	s := New(&fakeAPI{}, storage.NewMemoryStore())
	assert.Equal(t, DefaultAvatar, s.AvatarURL())

	kv := storage.NewMemoryStore()
	s = loggedIn(t, &fakeAPI{}, kv)
	assert.Equal(t, DefaultAvatar, s.AvatarURL())

	require.NoError(t, s.UpdateUserInfo(context.Background(), models.User{Avatar: "https://cdn.example.com/a.png"}))
	assert.Equal(t, "https://cdn.example.com/a.png", s.AvatarURL())

	require.NoError(t, s.UpdateUserInfo(context.Background(), models.User{Avatar: "uploads/b.png"}))
	assert.Equal(t, "http://localhost:5001/uploads/b.png", s.AvatarURL())
}

func TestRegisterAndReset(t *testing.T) {
	s := New(&fakeAPI{}, storage.NewMemoryStore())

	msg, err := s.Register(context.Background(), models.Registration{Username: "new"})
	require.NoError(t, err)
	assert.Equal(t, "registered new", msg)

	msg, err = s.ResetPassword(context.Background(), models.PasswordReset{Username: "new"})
	require.NoError(t, err)
	assert.Equal(t, "reset new", msg)
	assert.False(t, s.IsAuthenticated())
}
