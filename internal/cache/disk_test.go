package cache

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiskStore_PutGet(t *testing.T) {
	ctx := context.Background()
	store, err := NewDiskStore(t.TempDir())
	require.NoError(t, err)

	_, ok, err := store.Get(ctx, "/api/v1/sessions/2024/Monaco/R")
	require.NoError(t, err)
	assert.False(t, ok, "expected miss on empty store")

	body := []byte(`{"laps":[]}`)
	require.NoError(t, store.Put(ctx, "/api/v1/sessions/2024/Monaco/R", body))

	got, ok, err := store.Get(ctx, "/api/v1/sessions/2024/Monaco/R")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, body, got)

	// overwrite
	require.NoError(t, store.Put(ctx, "/api/v1/sessions/2024/Monaco/R", []byte(`{}`)))
	got, _, err = store.Get(ctx, "/api/v1/sessions/2024/Monaco/R")
	require.NoError(t, err)
	assert.Equal(t, []byte(`{}`), got)
}

func TestDiskStore_Clear(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store, err := NewDiskStore(dir)
	require.NoError(t, err)

	// unrelated files survive a clear
	unrelated := filepath.Join(dir, "README")
	require.NoError(t, os.WriteFile(unrelated, []byte("keep"), 0o644))

	require.NoError(t, store.Put(ctx, "a", []byte("1")))
	require.NoError(t, store.Put(ctx, "b", []byte("2")))
	require.NoError(t, store.Clear(ctx))

	for _, key := range []string{"a", "b"} {
		_, ok, err := store.Get(ctx, key)
		require.NoError(t, err)
		assert.False(t, ok, "key %q should be gone", key)
	}
	assert.FileExists(t, unrelated)
}

func TestDiskStore_Delete(t *testing.T) {
	ctx := context.Background()
	store, err := NewDiskStore(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, store.Put(ctx, "a", []byte("1")))
	require.NoError(t, store.Put(ctx, "b", []byte("2")))
	require.NoError(t, store.Delete(ctx, "a"))

	_, ok, err := store.Get(ctx, "a")
	require.NoError(t, err)
	assert.False(t, ok)
	_, ok, err = store.Get(ctx, "b")
	require.NoError(t, err)
	assert.True(t, ok, "other entries are kept")

	assert.NoError(t, store.Delete(ctx, "never-written"))
}

func TestDiskStore_HealthCheck(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "cache")
	store, err := NewDiskStore(dir)
	require.NoError(t, err)
	assert.NoError(t, store.HealthCheck(context.Background()))

	require.NoError(t, os.RemoveAll(dir))
	assert.Error(t, store.HealthCheck(context.Background()))
}

func TestNew(t *testing.T) {
	ctx := context.Background()

	store, err := New(ctx, Config{Backend: BackendNone}, nil)
	require.NoError(t, err)
	assert.IsType(t, NoopStore{}, store)

	store, err = New(ctx, Config{Backend: BackendDisk, Dir: t.TempDir()}, nil)
	require.NoError(t, err)
	assert.IsType(t, &DiskStore{}, store)

	_, err = New(ctx, Config{Backend: BackendPostgres}, nil)
	assert.Error(t, err)

	_, err = New(ctx, Config{Backend: "redis"}, nil)
	assert.ErrorIs(t, err, ErrUnknownBackend)
}

func TestNoopStore(t *testing.T) {
	ctx := context.Background()
	var store Store = NoopStore{}

	require.NoError(t, store.Put(ctx, "k", []byte("v")))
	_, ok, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, store.Delete(ctx, "k"))
}
