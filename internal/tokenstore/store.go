package tokenstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/captorfm/gqlbroker/internal/token"
)

// ErrNotFound is returned by Load when no token is stored for the audience.
// Callers treat it as "not logged in".
var ErrNotFound = errors.New("no stored token")

// ErrReadOnly is returned by Put on backends that cannot be written.
var ErrReadOnly = errors.New("token storage is read-only")

// IsReadOnly reports whether store rejects every Put. Backends opt in with
// a ReadOnly() bool method.
func IsReadOnly(store TokenStore) bool {
	ro, ok := store.(interface{ ReadOnly() bool })
	return ok && ro.ReadOnly()
}

// TokenStore reads and writes tokens to persistent storage.
type TokenStore interface {
	// Load returns the token stored for audience, or ErrNotFound.
	Load(ctx context.Context, audience string) (token.Token, error)

	// Put stores tok under tok.Audience, leaving other audiences intact.
	Put(ctx context.Context, tok token.Token) error

	// List returns all stored tokens ordered by audience.
	List(ctx context.Context) ([]token.Token, error)
}

// Save decodes raw and stores it under the audience named by its own claims.
func Save(ctx context.Context, store TokenStore, raw string) (token.Token, error) {
	tok, err := token.Parse(raw)
	if err != nil {
		return token.Token{}, err
	}
	if err := store.Put(ctx, tok); err != nil {
		return token.Token{}, err
	}
	return tok, nil
}

// document is the persisted layout:
//
//	{"tokens": {"prod": {"decoded": {...}, "token": "..."}}}
type document struct {
	Tokens map[string]entry `json:"tokens"`
}

type entry struct {
	Decoded map[string]any `json:"decoded"`
	Token   string         `json:"token"`
}

func parseDocument(data []byte) (*document, error) {
	doc := &document{}
	if err := json.Unmarshal(data, doc); err != nil {
		return nil, fmt.Errorf("parsing token document: %w", err)
	}
	if doc.Tokens == nil {
		doc.Tokens = make(map[string]entry)
	}
	return doc, nil
}

func newDocument() *document {
	return &document{Tokens: make(map[string]entry)}
}

func (d *document) put(tok token.Token) error {
	if tok.Audience == "" {
		return token.ErrMissingAudience
	}
	d.Tokens[tok.Audience] = entry{Decoded: tok.Claims, Token: tok.Raw}
	return nil
}

func (d *document) get(audience string) (token.Token, bool) {
	e, ok := d.Tokens[audience]
	if !ok || e.Token == "" {
		return token.Token{}, false
	}
	return e.toToken(audience), true
}

func (d *document) list() []token.Token {
	audiences := make([]string, 0, len(d.Tokens))
	for aud := range d.Tokens {
		audiences = append(audiences, aud)
	}
	sort.Strings(audiences)

	out := make([]token.Token, 0, len(audiences))
	for _, aud := range audiences {
		if tok, ok := d.get(aud); ok {
			out = append(out, tok)
		}
	}
	return out
}

func (d *document) marshal() ([]byte, error) {
	return json.MarshalIndent(d, "", "  ")
}

// toToken rebuilds a Token from a stored entry. The bucket key wins over the
// decoded aud claim; claims that cannot be interpreted only lose the expiry.
func (e entry) toToken(audience string) token.Token {
	if tok, err := token.FromClaims(e.Token, e.Decoded); err == nil {
		tok.Audience = audience
		return tok
	}
	return token.Token{Raw: e.Token, Claims: e.Decoded, Audience: audience}
}
