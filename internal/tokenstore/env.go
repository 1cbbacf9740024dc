package tokenstore

import (
	"context"
	"fmt"
	"os"

	"github.com/captorfm/gqlbroker/internal/token"
)

// EnvStore provides read-only access to a single token held in an environment variable.
// The token is served for the audience named by its own claims.
type EnvStore struct {
	envKey string
}

// Compile-time check to ensure EnvStore implements TokenStore
var _ TokenStore = (*EnvStore)(nil)

// NewEnvStore creates an EnvStore for the given environment variable.
// Returns error if the variable name is empty or not set in the environment.
func NewEnvStore(envKey string) (*EnvStore, error) {
	if envKey == "" {
		return nil, fmt.Errorf("environment key cannot be empty")
	}

	if _, exists := os.LookupEnv(envKey); !exists {
		return nil, fmt.Errorf("environment variable %s not set", envKey)
	}

	return &EnvStore{
		envKey: envKey,
	}, nil
}

// Load decodes the token from the environment variable and returns it when
// its audience matches. An empty variable or another audience yields ErrNotFound.
func (e *EnvStore) Load(ctx context.Context, audience string) (token.Token, error) {
	if err := ctx.Err(); err != nil {
		return token.Token{}, err
	}

	raw := os.Getenv(e.envKey)
	if raw == "" {
		return token.Token{}, fmt.Errorf("%w: environment variable %s is empty", ErrNotFound, e.envKey)
	}

	tok, err := token.Parse(raw)
	if err != nil {
		return token.Token{}, fmt.Errorf("environment variable %s: %w", e.envKey, err)
	}
	if tok.Audience != audience {
		return token.Token{}, fmt.Errorf("%w for audience %q in %s (token is for %q)", ErrNotFound, audience, e.envKey, tok.Audience)
	}
	return tok, nil
}

// List returns the single environment token, if any.
func (e *EnvStore) List(ctx context.Context) ([]token.Token, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	raw := os.Getenv(e.envKey)
	if raw == "" {
		return nil, nil
	}
	tok, err := token.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("environment variable %s: %w", e.envKey, err)
	}
	return []token.Token{tok}, nil
}

// ReadOnly always reports true.
func (e *EnvStore) ReadOnly() bool {
	return true
}

// Put is not supported for environment variables (they are read-only).
func (e *EnvStore) Put(ctx context.Context, _ token.Token) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return fmt.Errorf("environment variable %s: %w", e.envKey, ErrReadOnly)
}
