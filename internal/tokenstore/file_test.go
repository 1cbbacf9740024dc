package tokenstore_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/captorfm/gqlbroker/internal/token"
	"github.com/captorfm/gqlbroker/internal/tokenstore"
)

func newFileStore(t *testing.T) *tokenstore.FileStore {
	t.Helper()
	store, err := tokenstore.NewFileStore(filepath.Join(t.TempDir(), "nested", ".captor_streamlit"))
	require.NoError(t, err)
	return store
}

func TestFileStoreWriteThenLoad(t *testing.T) {
	ctx := context.Background()
	store := newFileStore(t)

	err := store.Put(ctx, token.Token{
		Raw:      "jwt-token",
		Claims:   map[string]any{"aud": "prod"},
		Audience: "prod",
	})
	require.NoError(t, err)

	got, err := store.Load(ctx, "prod")
	require.NoError(t, err)
	assert.Equal(t, "jwt-token", got.Raw)
	assert.Equal(t, "prod", got.Audience)
}

func TestFileStoreMergeKeepsOtherAudiences(t *testing.T) {
	ctx := context.Background()
	store := newFileStore(t)

	require.NoError(t, store.Put(ctx, token.Token{Raw: "prod-1", Claims: map[string]any{"aud": "prod"}, Audience: "prod"}))
	before, err := store.Load(ctx, "prod")
	require.NoError(t, err)

	require.NoError(t, store.Put(ctx, token.Token{Raw: "test-1", Claims: map[string]any{"aud": "test"}, Audience: "test"}))

	after, err := store.Load(ctx, "prod")
	require.NoError(t, err)
	assert.Equal(t, before, after)

	testTok, err := store.Load(ctx, "test")
	require.NoError(t, err)
	assert.Equal(t, "test-1", testTok.Raw)

	// Rewriting an audience replaces only that entry.
	require.NoError(t, store.Put(ctx, token.Token{Raw: "test-2", Claims: map[string]any{"aud": "test"}, Audience: "test"}))
	all, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "prod-1", all[0].Raw)
	assert.Equal(t, "test-2", all[1].Raw)
}

func TestFileStoreLoadAbsent(t *testing.T) {
	ctx := context.Background()
	store := newFileStore(t)

	_, err := store.Load(ctx, "prod")
	assert.ErrorIs(t, err, tokenstore.ErrNotFound, "missing file")

	require.NoError(t, store.Put(ctx, token.Token{Raw: "x", Claims: map[string]any{"aud": "prod"}, Audience: "prod"}))
	_, err = store.Load(ctx, "test")
	assert.ErrorIs(t, err, tokenstore.ErrNotFound, "missing audience")

	list, err := newFileStore(t).List(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestFileStoreDocumentLayout(t *testing.T) {
	ctx := context.Background()
	store := newFileStore(t)

	require.NoError(t, store.Put(ctx, token.Token{Raw: "jwt-token", Claims: map[string]any{"aud": "prod"}, Audience: "prod"}))

	info, err := os.Stat(store.Path())
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	data, err := os.ReadFile(store.Path())
	require.NoError(t, err)
	assert.JSONEq(t, `{"tokens": {"prod": {"token": "jwt-token", "decoded": {"aud": "prod"}}}}`, string(data))
}

func TestFileStoreReadsExistingDocument(t *testing.T) {
	ctx := context.Background()
	store := newFileStore(t)

	exp := time.Now().Add(time.Hour).Unix()
	doc := map[string]any{
		"tokens": map[string]any{
			"test": map[string]any{"token": "t", "decoded": map[string]any{"aud": "test", "exp": exp}},
		},
	}
	data, err := json.Marshal(doc)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(store.Path(), data, 0600))

	got, err := store.Load(ctx, "test")
	require.NoError(t, err)
	require.NotNil(t, got.Expiry)
	assert.Equal(t, exp, got.Expiry.Unix())
	assert.True(t, got.ValidAt(time.Now()))
}

func TestFileStoreRejectsInsecurePermissions(t *testing.T) {
	ctx := context.Background()
	store := newFileStore(t)

	require.NoError(t, os.WriteFile(store.Path(), []byte(`{"tokens": {}}`), 0644))
	require.NoError(t, os.Chmod(store.Path(), 0644))

	_, err := store.Load(ctx, "prod")
	require.Error(t, err)
	assert.NotErrorIs(t, err, tokenstore.ErrNotFound)
	assert.ErrorContains(t, err, "chmod 600 "+store.Path())

	err = store.Put(ctx, token.Token{Raw: "x", Audience: "prod"})
	assert.ErrorContains(t, err, "chmod 600")
}

func TestFileStoreMalformedDocument(t *testing.T) {
	ctx := context.Background()
	store := newFileStore(t)

	require.NoError(t, os.WriteFile(store.Path(), []byte("not json"), 0600))

	_, err := store.Load(ctx, "prod")
	require.Error(t, err)
	assert.NotErrorIs(t, err, tokenstore.ErrNotFound)
}

func TestSaveFilesUnderDecodedAudience(t *testing.T) {
	ctx := context.Background()
	store := newFileStore(t)

	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"aud": "test"}).SignedString([]byte("k"))
	require.NoError(t, err)

	tok, err := tokenstore.Save(ctx, store, raw)
	require.NoError(t, err)
	assert.Equal(t, "test", tok.Audience)

	got, err := store.Load(ctx, "test")
	require.NoError(t, err)
	assert.Equal(t, raw, got.Raw)

	_, err = tokenstore.Save(ctx, store, "not-a-jwt")
	assert.Error(t, err)
}

func TestNewFileStoreRequiresPath(t *testing.T) {
	_, err := tokenstore.NewFileStore("")
	assert.Error(t, err)
}

func TestFileStoreHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newFileStore(t).Load(ctx, "prod")
	assert.ErrorIs(t, err, context.Canceled)
}
