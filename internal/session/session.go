// Package session holds the per-user token state that is passed explicitly
// to broker and GraphQL operations.
package session

import (
	"sync"

	"github.com/captorfm/gqlbroker/internal/token"
)

// Session is the in-memory token cache of one user session.
// The zero value is an empty, logged-out session.
type Session struct {
	mu  sync.RWMutex
	tok *token.Token
}

// New returns an empty session.
func New() *Session {
	return &Session{}
}

// Token returns a copy of the session token, or nil when logged out.
func (s *Session) Token() *token.Token {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.tok == nil {
		return nil
	}
	t := *s.tok
	return &t
}

// AccessToken returns the raw bearer token, or an empty string.
func (s *Session) AccessToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.tok == nil {
		return ""
	}
	return s.tok.Raw
}

// Set replaces the session token.
func (s *Session) Set(t token.Token) {
	s.mu.Lock()
	s.tok = &t
	s.mu.Unlock()
}

// Clear drops the session token. Persisted tokens are left untouched.
func (s *Session) Clear() {
	s.mu.Lock()
	s.tok = nil
	s.mu.Unlock()
}
