package storage

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStorage(t *testing.T) {
	ctx := context.Background()
	store, err := NewLocalStorage(LocalConfig{BasePath: t.TempDir()})
	require.NoError(t, err)

	key := "rooms/r1/01HX/photo.png"
	body := "not really a png"
	require.NoError(t, store.Write(ctx, key, strings.NewReader(body), int64(len(body)), "image/png"))

	exists, err := store.Exists(ctx, key)
	require.NoError(t, err)
	assert.True(t, exists)

	rc, err := store.Read(ctx, key)
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, rc.Close())
	require.NoError(t, err)
	assert.Equal(t, body, string(data))

	require.NoError(t, store.Delete(ctx, key))
	require.NoError(t, store.Delete(ctx, key))

	exists, err = store.Exists(ctx, key)
	require.NoError(t, err)
	assert.False(t, exists)

	_, err = store.Read(ctx, key)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLocalStorage_KeysStayInsideBase(t *testing.T) {
	ctx := context.Background()
	store, err := NewLocalStorage(LocalConfig{BasePath: t.TempDir()})
	require.NoError(t, err)

	// Traversal segments are cleaned against the root, never above it.
	require.NoError(t, store.Write(ctx, "../../escape.txt", strings.NewReader("x"), 1, "text/plain"))
	exists, err := store.Exists(ctx, "escape.txt")
	require.NoError(t, err)
	assert.True(t, exists)

	_, err = store.Read(ctx, "")
	assert.Error(t, err)
	_, err = store.Read(ctx, "/")
	assert.Error(t, err)
}

func TestNew_UnknownDriver(t *testing.T) {
	_, err := New(context.Background(), Config{Driver: "floppy"})
	assert.Error(t, err)
}
