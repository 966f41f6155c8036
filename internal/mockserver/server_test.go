package mockserver

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gradpush/extrapoints/internal/config"
	"github.com/gradpush/extrapoints/internal/models"
	"github.com/gradpush/extrapoints/internal/storage"
	"github.com/gradpush/extrapoints/pkg/client"
)

var testUsers = []config.SeedUser{
	{Username: "admin", Password: "admin123", Name: "管理员", Role: "admin"},
	{Username: "teacher", Password: "teacher123", Name: "王老师", Role: "teacher"},
	{Username: "student", Password: "student123", Name: "张三", Role: "student", StudentID: "2021001"},
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	cfg := config.ServerConfig{
		JWTSecret: "test-secret",
		TokenTTL:  time.Hour,
		Users:     testUsers,
	}
	srv, err := New(context.Background(), cfg, storage.NewMemoryStore(), discardLogger())
	require.NoError(t, err)

	ts := httptest.NewServer(srv.Router())
	t.Cleanup(func() {
		srv.Close()
		ts.Close()
	})
	return srv, ts
}

func newClient(ts *httptest.Server, opts ...client.Option) *client.Client {
	opts = append([]client.Option{client.WithLogger(discardLogger())}, opts...)
	return client.NewClient(ts.URL+"/api", opts...)
}

// loginAs returns a client carrying the bearer token of username
func loginAs(t *testing.T, ts *httptest.Server, username, password string) *client.Client {
	t.Helper()
	c := newClient(ts)
	result, err := c.Login(context.Background(), models.Credentials{Username: username, Password: password})
	require.NoError(t, err)
	require.NotEmpty(t, result.Token)
	c.SetToken(result.Token)
	return c
}

func TestHealth(t *testing.T) {
	_, ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	require.NoError(t, newClient(ts).Health(context.Background()))
}

func TestNewSeedsOnce(t *testing.T) {
	kv := storage.NewMemoryStore()
	cfg := config.ServerConfig{JWTSecret: "s", TokenTTL: time.Hour, Users: testUsers[:1]}

	_, err := New(context.Background(), cfg, kv, discardLogger())
	require.NoError(t, err)
	second, err := New(context.Background(), cfg, kv, discardLogger())
	require.NoError(t, err)

	ctx := context.Background()
	faculties, err := second.faculties.list(ctx, nil)
	require.NoError(t, err)
	assert.Len(t, faculties, len(defaultOrganization))

	rules, err := second.rules.list(ctx, nil)
	require.NoError(t, err)
	assert.Len(t, rules, len(defaultRules))

	users, err := second.users.list(ctx, "")
	require.NoError(t, err)
	assert.Len(t, users, 1)
}

func TestCollectionIDs(t *testing.T) {
	ctx := context.Background()
	c := newCollection(storage.NewMemoryStore(), "mock:faculties", func(f *models.Faculty) *models.ID { return &f.ID })

	first, err := c.create(ctx, models.Faculty{Name: "a"})
	require.NoError(t, err)
	second, err := c.create(ctx, models.Faculty{Name: "b"})
	require.NoError(t, err)
	assert.Equal(t, models.ID("1"), first)
	assert.Equal(t, models.ID("2"), second)

	require.NoError(t, c.delete(ctx, first))
	third, err := c.create(ctx, models.Faculty{Name: "c"})
	require.NoError(t, err)
	assert.Equal(t, models.ID("3"), third)

	require.NoError(t, c.replace(ctx, second, models.Faculty{Name: "B"}))
	got, err := c.get(ctx, second)
	require.NoError(t, err)
	assert.Equal(t, "B", got.Name)
	assert.Equal(t, second, got.ID)

	_, err = c.get(ctx, first)
	assert.ErrorIs(t, err, errNotFound)
	assert.ErrorIs(t, c.delete(ctx, first), errNotFound)
}

func TestSortByID(t *testing.T) {
	users := []models.User{{ID: "10"}, {ID: "b"}, {ID: "2"}, {ID: "a"}}
	sortByID(users, func(u models.User) models.ID { return u.ID })

	var got []models.ID
	for _, u := range users {
		got = append(got, u.ID)
	}
	assert.Equal(t, []models.ID{"2", "10", "a", "b"}, got)
}

func TestTokenIssuer(t *testing.T) {
	issuer := newTokenIssuer("secret", time.Hour)
	token, expires, err := issuer.issue(models.User{Username: "student", Role: models.RoleStudent, StudentID: "2021001"})
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expires, time.Minute)

	c, err := issuer.parse(token)
	require.NoError(t, err)
	assert.Equal(t, "student", c.Username)
	assert.Equal(t, models.RoleStudent, c.Role)
	assert.Equal(t, "2021001", c.StudentID)

	_, err = newTokenIssuer("other", time.Hour).parse(token)
	assert.Error(t, err)

	expired := newTokenIssuer("secret", time.Nanosecond)
	stale, _, err := expired.issue(models.User{Username: "student"})
	require.NoError(t, err)
	time.Sleep(time.Millisecond)
	_, err = issuer.parse(stale)
	assert.Error(t, err)
}

func TestCaptchaStore(t *testing.T) {
	store := newCaptchaStore(time.Minute)
	id, code, err := store.issue()
	require.NoError(t, err)
	assert.Len(t, code, 4)

	assert.False(t, store.verify(id, "????"))
	// a failed attempt consumes the challenge
	assert.False(t, store.verify(id, code))

	id, code, err = store.issue()
	require.NoError(t, err)
	assert.True(t, store.verify(id, " "+code+" "))
	assert.False(t, store.verify("unknown", code))
}

func TestMaskToken(t *testing.T) {
	assert.Equal(t, "***", maskToken("short"))
	assert.Equal(t, "abcdefgh...", maskToken("abcdefghijkl"))
}
