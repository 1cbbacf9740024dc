package session_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/captorfm/gqlbroker/internal/session"
	"github.com/captorfm/gqlbroker/internal/token"
)

func TestSession(t *testing.T) {
	s := session.New()
	assert.Nil(t, s.Token())
	assert.Empty(t, s.AccessToken())

	s.Set(token.Token{Raw: "tok", Audience: "prod"})
	require.NotNil(t, s.Token())
	assert.Equal(t, "tok", s.AccessToken())

	// Mutating the returned copy must not leak into the session.
	got := s.Token()
	got.Raw = "changed"
	assert.Equal(t, "tok", s.AccessToken())

	s.Clear()
	assert.Nil(t, s.Token())
}
