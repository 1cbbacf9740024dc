// Package broker obtains, persists and supplies bearer tokens for the Captor
// GraphQL API.
//
// Tokens come from three places, tried in this order by Resolve:
//   - the caller's Session
//   - the persistent token store
//   - an interactive browser login caught by a loopback listener
//
// ExchangeCredentials is a fourth, explicit path trading a username and
// password for a token. Its result lives in the session only and is never
// written to the store.
package broker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/captorfm/gqlbroker/internal/session"
	"github.com/captorfm/gqlbroker/internal/token"
	"github.com/captorfm/gqlbroker/internal/tokenstore"
)

// Exchanger trades user credentials for a token.
type Exchanger interface {
	Exchange(ctx context.Context, username, password, audience string) (token.Token, error)
}

// Config holds the broker's environment settings.
type Config struct {
	// BaseHost is the apex domain of the Captor services, e.g. "captor.se".
	BaseHost string

	// Port of the loopback listener. 0 picks a free port.
	Port int

	// CallbackTimeout bounds the wait for the browser callback. 0 waits
	// until the context is cancelled.
	CallbackTimeout time.Duration

	// ConnectivityAddress is dialled before an interactive login.
	ConnectivityAddress string
	ConnectivityTimeout time.Duration
}

// Option configures a Broker.
type Option func(*Broker)

// WithBrowserOpener replaces the function that opens the authorization URL.
func WithBrowserOpener(open func(url string) error) Option {
	return func(b *Broker) {
		b.openBrowser = open
	}
}

// WithConnectivityCheck replaces the reachability check run before an
// interactive login.
func WithConnectivityCheck(check func(ctx context.Context) error) Option {
	return func(b *Broker) {
		b.checkConnectivity = check
	}
}

// WithTokenDecoder replaces the decoder applied to tokens received from the
// browser callback.
func WithTokenDecoder(decode func(raw string) (token.Token, error)) Option {
	return func(b *Broker) {
		b.decode = decode
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(b *Broker) {
		b.logger = logger
	}
}

// WithClock sets the time source used by IsValid and Resolve.
func WithClock(now func() time.Time) Option {
	return func(b *Broker) {
		b.now = now
	}
}

// Broker is the TokenBroker. It holds no per-user state; every operation
// takes the caller's Session.
type Broker struct {
	cfg       Config
	store     tokenstore.TokenStore
	exchanger Exchanger

	openBrowser       func(url string) error
	checkConnectivity func(ctx context.Context) error
	decode            func(raw string) (token.Token, error)
	logger            *slog.Logger
	now               func() time.Time
}

// New creates a Broker.
func New(cfg Config, store tokenstore.TokenStore, exchanger Exchanger, opts ...Option) (*Broker, error) {
	if store == nil {
		return nil, fmt.Errorf("missing token store")
	}
	if exchanger == nil {
		return nil, fmt.Errorf("missing credential exchanger")
	}
	if cfg.BaseHost == "" {
		return nil, fmt.Errorf("missing base host")
	}

	b := &Broker{
		cfg:         cfg,
		store:       store,
		exchanger:   exchanger,
		openBrowser: openBrowser,
		decode:      token.Parse,
		logger:      slog.Default(),
		now:         time.Now,
	}
	b.checkConnectivity = b.dialConnectivity

	for _, opt := range opts {
		opt(b)
	}

	return b, nil
}

// LoadToken returns the stored token for audience. found is false, with a
// nil error, when the store or the audience entry does not exist.
func (b *Broker) LoadToken(ctx context.Context, audience string) (tok token.Token, found bool, err error) {
	tok, err = b.store.Load(ctx, audience)
	if errors.Is(err, tokenstore.ErrNotFound) {
		return token.Token{}, false, nil
	}
	if err != nil {
		return token.Token{}, false, fmt.Errorf("loading token: %w", err)
	}
	return tok, true, nil
}

// IsValid reports whether t is present and, if it has an expiry, not yet
// expired. No clock-skew margin is applied.
func (b *Broker) IsValid(t *token.Token) bool {
	return t.ValidAt(b.now())
}

// Resolve returns a valid token for audience, trying the session, then the
// store, then an interactive login. The session is updated with the result.
func (b *Broker) Resolve(ctx context.Context, sess *session.Session, audience string) (token.Token, error) {
	if !token.SupportedAudience(audience) {
		return token.Token{}, fmt.Errorf("%w: %q", ErrUnsupportedAudience, audience)
	}

	if t := sess.Token(); b.IsValid(t) && t.Audience == audience {
		return *t, nil
	}

	stored, found, err := b.LoadToken(ctx, audience)
	if err != nil {
		return token.Token{}, err
	}
	if found && b.IsValid(&stored) {
		sess.Set(stored)
		return stored, nil
	}
	if found {
		b.logger.InfoContext(ctx, "stored token expired, starting interactive login", "audience", audience)
	}

	return b.StartInteractiveLogin(ctx, sess, audience)
}

// Logout drops the session token. The persisted token is kept.
func (b *Broker) Logout(sess *session.Session) {
	sess.Clear()
}
