package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func exerciseKV(t *testing.T, kv KV) {
	t.Helper()
	ctx := context.Background()

	_, err := kv.Get(ctx, "auth:user")
	assert.True(t, errors.Is(err, ErrNotFound))

	require.NoError(t, kv.Set(ctx, "auth:user", []byte(`{"username":"s1"}`)))
	require.NoError(t, kv.Set(ctx, "auth:token", []byte(`"tok"`)))
	require.NoError(t, kv.Set(ctx, "mock:applications", []byte(`[]`)))

	value, err := kv.Get(ctx, "auth:user")
	require.NoError(t, err)
	assert.JSONEq(t, `{"username":"s1"}`, string(value))

	keys, err := kv.Keys(ctx, "auth:")
	require.NoError(t, err)
	assert.Equal(t, []string{"auth:token", "auth:user"}, keys)

	require.NoError(t, kv.Delete(ctx, "auth:user"))
	require.NoError(t, kv.Delete(ctx, "auth:user"))
	_, err = kv.Get(ctx, "auth:user")
	assert.True(t, errors.Is(err, ErrNotFound))

	type profile struct {
		Username string `json:"username"`
	}
	require.NoError(t, SetJSON(ctx, kv, "auth:user", profile{Username: "t1"}))
	var got profile
	require.NoError(t, GetJSON(ctx, kv, "auth:user", &got))
	assert.Equal(t, "t1", got.Username)
}

func TestMemoryStore(t *testing.T) {
	exerciseKV(t, NewMemoryStore())
}

func TestMemoryStoreCopiesValues(t *testing.T) {
	kv := NewMemoryStore()
	value := []byte("abc")
	require.NoError(t, kv.Set(context.Background(), "k", value))
	value[0] = 'x'

	got, err := kv.Get(context.Background(), "k")
	require.NoError(t, err)
	assert.Equal(t, "abc", string(got))
}

func TestFileStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "state.json")
	kv, err := NewFileStore(path)
	require.NoError(t, err)
	exerciseKV(t, kv)
}

func TestFileStorePersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	ctx := context.Background()

	first, err := NewFileStore(path)
	require.NoError(t, err)
	require.NoError(t, first.Set(ctx, "auth:token", []byte(`"tok"`)))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	second, err := NewFileStore(path)
	require.NoError(t, err)
	value, err := second.Get(ctx, "auth:token")
	require.NoError(t, err)
	assert.Equal(t, `"tok"`, string(value))
}

func TestFileStoreRejectsCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	_, err := NewFileStore(path)
	assert.Error(t, err)
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	kv, err := Open(ctx, Config{Driver: DriverMemory})
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, kv)

	kv, err = Open(ctx, Config{Path: filepath.Join(t.TempDir(), "s.json")})
	require.NoError(t, err)
	assert.IsType(t, &FileStore{}, kv)

	_, err = Open(ctx, Config{Driver: "etcd"})
	assert.Error(t, err)
}

func TestRenderMigration(t *testing.T) {
	sql := "CREATE TABLE {{table}} (k TEXT);\nCREATE INDEX {{index:updated_at}} ON {{table}} (updated_at);"

	out := renderMigration(sql, "client state")

	assert.Equal(t,
		"CREATE TABLE \"client state\" (k TEXT);\nCREATE INDEX \"client state_updated_at_idx\" ON \"client state\" (updated_at);",
		out)
}

func TestLikePrefix(t *testing.T) {
	assert.Equal(t, `auth\_%`, likePrefix("auth_"))
	assert.Equal(t, `100\%%`, likePrefix("100%"))
	assert.Equal(t, "%", likePrefix(""))
}

func TestRedisStore(t *testing.T) {
	addr := os.Getenv("EXTRAPOINTS_TEST_REDIS")
	if addr == "" {
		t.Skip("EXTRAPOINTS_TEST_REDIS not set")
	}
	kv, err := NewRedisStore(context.Background(), RedisConfig{Address: addr, Prefix: "extrapoints-test:" + t.Name() + ":"})
	require.NoError(t, err)
	defer kv.Close()

	for _, key := range []string{"auth:user", "auth:token", "mock:applications"} {
		require.NoError(t, kv.Delete(context.Background(), key))
	}
	exerciseKV(t, kv)
}

func TestPostgresStore(t *testing.T) {
	dsn := os.Getenv("EXTRAPOINTS_TEST_POSTGRES")
	if dsn == "" {
		t.Skip("EXTRAPOINTS_TEST_POSTGRES not set")
	}
	kv, err := NewPostgresStore(context.Background(), PostgresConfig{DSN: dsn, Table: "extrapoints_state_test"})
	require.NoError(t, err)
	defer kv.Close()

	for _, key := range []string{"auth:user", "auth:token", "mock:applications"} {
		require.NoError(t, kv.Delete(context.Background(), key))
	}
	exerciseKV(t, kv)
}
