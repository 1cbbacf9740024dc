package tokenstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"

	"github.com/captorfm/gqlbroker/internal/token"
)

// KeyringStore keeps the token document as one secret in the OS-native
// credential storage (macOS Keychain, Windows Credential Manager, Linux Secret Service).
type KeyringStore struct {
	service string
	user    string
}

// Compile-time check to ensure KeyringStore implements TokenStore
var _ TokenStore = (*KeyringStore)(nil)

// NewKeyringStore creates a KeyringStore using the given service and user identifiers.
func NewKeyringStore(service, user string) (*KeyringStore, error) {
	if service == "" {
		return nil, fmt.Errorf("service cannot be empty")
	}
	if user == "" {
		return nil, fmt.Errorf("user cannot be empty")
	}

	return &KeyringStore{
		service: service,
		user:    user,
	}, nil
}

// Load returns the token stored for audience, or ErrNotFound.
func (k *KeyringStore) Load(ctx context.Context, audience string) (token.Token, error) {
	doc, err := k.read(ctx)
	if err != nil {
		return token.Token{}, err
	}

	tok, ok := doc.get(audience)
	if !ok {
		return token.Token{}, fmt.Errorf("%w for audience %q in keyring", ErrNotFound, audience)
	}
	return tok, nil
}

// List returns every stored token.
func (k *KeyringStore) List(ctx context.Context) ([]token.Token, error) {
	doc, err := k.read(ctx)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return doc.list(), nil
}

// Put merges tok into the stored document, overwriting only its audience.
func (k *KeyringStore) Put(ctx context.Context, tok token.Token) error {
	doc, err := k.read(ctx)
	switch {
	case errors.Is(err, ErrNotFound):
		doc = newDocument()
	case err != nil:
		return err
	}

	if err := doc.put(tok); err != nil {
		return err
	}

	data, err := doc.marshal()
	if err != nil {
		return fmt.Errorf("encoding token document: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	return keyring.Set(k.service, k.user, string(data))
}

func (k *KeyringStore) read(ctx context.Context) (*document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	secret, err := keyring.Get(k.service, k.user)
	if errors.Is(err, keyring.ErrNotFound) {
		return nil, fmt.Errorf("%w: no keyring entry for service %s, user %s", ErrNotFound, k.service, k.user)
	}
	if err != nil {
		return nil, err
	}
	if secret == "" {
		return newDocument(), nil
	}

	return parseDocument([]byte(secret))
}
