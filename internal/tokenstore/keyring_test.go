package tokenstore_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"

	"github.com/captorfm/gqlbroker/internal/token"
	"github.com/captorfm/gqlbroker/internal/tokenstore"
)

func TestKeyringStore(t *testing.T) {
	keyring.MockInit()
	ctx := context.Background()

	store, err := tokenstore.NewKeyringStore("captor-test", "alice")
	require.NoError(t, err)

	_, err = store.Load(ctx, "prod")
	assert.ErrorIs(t, err, tokenstore.ErrNotFound)

	require.NoError(t, store.Put(ctx, token.Token{Raw: "p", Claims: map[string]any{"aud": "prod"}, Audience: "prod"}))
	require.NoError(t, store.Put(ctx, token.Token{Raw: "t", Claims: map[string]any{"aud": "test"}, Audience: "test"}))

	prod, err := store.Load(ctx, "prod")
	require.NoError(t, err)
	assert.Equal(t, "p", prod.Raw)

	all, err := store.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestNewKeyringStoreValidation(t *testing.T) {
	_, err := tokenstore.NewKeyringStore("", "alice")
	assert.Error(t, err)
	_, err = tokenstore.NewKeyringStore("svc", "")
	assert.Error(t, err)
}
