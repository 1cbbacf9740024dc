package broker

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/oauth2"

	"github.com/captorfm/gqlbroker/internal/session"
	"github.com/captorfm/gqlbroker/internal/token"
)

// ErrMissingCredentials is returned when username or password is empty.
var ErrMissingCredentials = errors.New("username and password are required")

// ExchangeCredentials trades username and password for a token valid for
// audience and keeps it in the session. Unlike StartInteractiveLogin the
// token is not persisted.
func (b *Broker) ExchangeCredentials(ctx context.Context, sess *session.Session, username, password, audience string) (token.Token, error) {
	if !token.SupportedAudience(audience) {
		return token.Token{}, fmt.Errorf("%w: %q", ErrUnsupportedAudience, audience)
	}
	if username == "" || password == "" {
		return token.Token{}, ErrMissingCredentials
	}

	tok, err := b.exchanger.Exchange(ctx, username, password, audience)
	if err != nil {
		return token.Token{}, authenticationFailed(err)
	}

	sess.Set(tok)
	b.logger.DebugContext(ctx, "credential exchange succeeded, token kept in session only",
		"audience", audience, "user_id", tok.UserID)

	return tok, nil
}

func authenticationFailed(err error) *AuthenticationFailedError {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) && retrieveErr.Response != nil {
		return &AuthenticationFailedError{
			Status: retrieveErr.Response.StatusCode,
			Body:   string(retrieveErr.Body),
			Err:    err,
		}
	}
	return &AuthenticationFailedError{Err: err}
}
