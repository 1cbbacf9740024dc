package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/samber/lo"

	"github.com/captorfm/gqlbroker/internal/broker"
	"github.com/captorfm/gqlbroker/internal/graphql"
	"github.com/captorfm/gqlbroker/internal/session"
	"github.com/captorfm/gqlbroker/internal/token"
	"github.com/captorfm/gqlbroker/internal/tokensource"
	"github.com/captorfm/gqlbroker/internal/tokenstore"
)

// Option configures an App.
type Option func(*options)

type options struct {
	transport     http.RoundTripper
	store         tokenstore.TokenStore
	brokerOptions []broker.Option
}

// WithTransport sets the base transport for the credential exchange and
// GraphQL requests.
func WithTransport(transport http.RoundTripper) Option {
	return func(o *options) {
		o.transport = transport
	}
}

// WithTokenStore replaces the store built from the auth configuration.
func WithTokenStore(store tokenstore.TokenStore) Option {
	return func(o *options) {
		o.store = store
	}
}

// WithBrokerOptions passes options through to broker.New.
func WithBrokerOptions(opts ...broker.Option) Option {
	return func(o *options) {
		o.brokerOptions = append(o.brokerOptions, opts...)
	}
}

// App wires the token store, broker and GraphQL client for one user session.
type App struct {
	cfg     *Config
	store   tokenstore.TokenStore
	broker  *broker.Broker
	graphql *graphql.Client
	session *session.Session
}

// New creates a new App instance.
func New(cfg *Config, opts ...Option) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	o := &options{transport: http.DefaultTransport}
	for _, opt := range opts {
		opt(o)
	}

	store := o.store
	if store == nil {
		var err error
		store, err = cfg.Auth.NewTokenStore()
		if err != nil {
			return nil, fmt.Errorf("failed to create token store: %w", err)
		}
	}

	exchanger := tokensource.NewPasswordExchanger(
		tokensource.Endpoint(cfg.TokenURL),
		tokensource.WithTransport(o.transport),
		tokensource.WithTimeout(cfg.TokenTimeout),
	)

	brokerOpts := append([]broker.Option{broker.WithLogger(slog.Default())}, o.brokerOptions...)
	b, err := broker.New(cfg.BrokerConfig(), store, exchanger, brokerOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create broker: %w", err)
	}

	client, err := graphql.New(cfg.GraphQLURL(), graphql.WithTransport(o.transport))
	if err != nil {
		return nil, fmt.Errorf("failed to create graphql client: %w", err)
	}

	return &App{
		cfg:     cfg,
		store:   store,
		broker:  b,
		graphql: client,
		session: session.New(),
	}, nil
}

// Session returns the session shared by all operations of this App.
func (a *App) Session() *session.Session {
	return a.session
}

// Token returns a valid token for the configured environment, logging in
// interactively when neither the session nor the store holds one.
func (a *App) Token(ctx context.Context) (token.Token, error) {
	return a.broker.Resolve(ctx, a.session, a.cfg.Environment)
}

// Login always runs the interactive browser login.
func (a *App) Login(ctx context.Context) (token.Token, error) {
	return a.broker.StartInteractiveLogin(ctx, a.session, a.cfg.Environment)
}

// LoginWithPassword runs the credential exchange. The token is not persisted.
func (a *App) LoginWithPassword(ctx context.Context, username, password string) (token.Token, error) {
	return a.broker.ExchangeCredentials(ctx, a.session, username, password, a.cfg.Environment)
}

// Query resolves a token and runs req against the configured endpoint. A 401
// answer logs the session out so the next call resolves the token again.
func (a *App) Query(ctx context.Context, req graphql.Request) (graphql.Result, error) {
	if _, err := a.Token(ctx); err != nil {
		return graphql.Result{}, err
	}

	result, err := a.graphql.Query(ctx, a.session, req, a.cfg.GraphQL.Timeout)
	var failed *graphql.RequestFailedError
	if errors.As(err, &failed) && failed.StatusCode == http.StatusUnauthorized {
		slog.WarnContext(ctx, "token rejected by the API, clearing session", "audience", a.cfg.Environment)
		a.broker.Logout(a.session)
	}
	return result, err
}

// TokenStatus summarizes one stored token.
type TokenStatus struct {
	Audience        string
	Subject         string
	UserDisplayName string
	Expiry          *time.Time
	Valid           bool
}

// Status lists the stored tokens, ordered by audience.
func (a *App) Status(ctx context.Context) ([]TokenStatus, error) {
	stored, err := a.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing stored tokens: %w", err)
	}

	return lo.Map(stored, func(t token.Token, _ int) TokenStatus {
		return TokenStatus{
			Audience:        t.Audience,
			Subject:         t.Subject(),
			UserDisplayName: t.UserDisplayName,
			Expiry:          t.Expiry,
			Valid:           a.broker.IsValid(&t),
		}
	}), nil
}
