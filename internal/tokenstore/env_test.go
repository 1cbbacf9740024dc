package tokenstore_test

import (
	"context"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/captorfm/gqlbroker/internal/token"
	"github.com/captorfm/gqlbroker/internal/tokenstore"
)

func TestEnvStore(t *testing.T) {
	ctx := context.Background()
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"aud": "prod"}).SignedString([]byte("k"))
	require.NoError(t, err)
	t.Setenv("CAPTOR_TEST_TOKEN", raw)

	store, err := tokenstore.NewEnvStore("CAPTOR_TEST_TOKEN")
	require.NoError(t, err)

	got, err := store.Load(ctx, "prod")
	require.NoError(t, err)
	assert.Equal(t, raw, got.Raw)

	_, err = store.Load(ctx, "test")
	assert.ErrorIs(t, err, tokenstore.ErrNotFound)

	err = store.Put(ctx, token.Token{Raw: "x", Audience: "prod"})
	assert.ErrorIs(t, err, tokenstore.ErrReadOnly)

	all, err := store.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestNewEnvStoreValidation(t *testing.T) {
	_, err := tokenstore.NewEnvStore("")
	assert.Error(t, err)

	_, err = tokenstore.NewEnvStore("CAPTOR_TEST_TOKEN_THAT_IS_NOT_SET")
	assert.Error(t, err)
}

func TestIsReadOnly(t *testing.T) {
	t.Setenv("CAPTOR_TOKEN", "")
	env, err := tokenstore.NewEnvStore("CAPTOR_TOKEN")
	require.NoError(t, err)
	assert.True(t, tokenstore.IsReadOnly(env))

	file, err := tokenstore.NewFileStore(t.TempDir() + "/tokens")
	require.NoError(t, err)
	assert.False(t, tokenstore.IsReadOnly(file))
}
