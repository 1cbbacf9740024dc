package broker

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/browser"
	"golang.org/x/sync/errgroup"

	"github.com/captorfm/gqlbroker/internal/loopback"
	"github.com/captorfm/gqlbroker/internal/session"
	"github.com/captorfm/gqlbroker/internal/token"
	"github.com/captorfm/gqlbroker/internal/tokenstore"
)

const shutdownTimeout = 5 * time.Second

// EnvironmentPrefix returns the host prefix of an audience: "" for prod,
// "test" for test.
func EnvironmentPrefix(audience string) string {
	if audience == token.AudienceProd {
		return ""
	}
	return audience
}

// AuthURL builds the portal URL that issues a token and redirects the browser
// to redirectURI.
func AuthURL(audience, baseHost, redirectURI string) string {
	params := url.Values{"redirect_uri": {redirectURI}}
	return fmt.Sprintf("https://%sportal.%s/token?%s", EnvironmentPrefix(audience), baseHost, params.Encode())
}

// StartInteractiveLogin opens the portal in the default browser and blocks
// until the loopback listener receives the token, the callback timeout
// expires or ctx is cancelled. The listener goroutine has exited when this
// returns.
//
// The token is stored under the audience found in its own claims. When that
// differs from the requested audience a warning is logged and the token is
// still returned; callers can compare Token.Audience.
//
// A read-only store fails with tokenstore.ErrReadOnly before any network or
// browser activity.
func (b *Broker) StartInteractiveLogin(ctx context.Context, sess *session.Session, audience string) (token.Token, error) {
	if !token.SupportedAudience(audience) {
		return token.Token{}, fmt.Errorf("%w: %q", ErrUnsupportedAudience, audience)
	}
	if tokenstore.IsReadOnly(b.store) {
		return token.Token{}, fmt.Errorf("not logged in for %q and interactive login cannot persist a token: %w",
			audience, tokenstore.ErrReadOnly)
	}

	if err := b.checkConnectivity(ctx); err != nil {
		return token.Token{}, fmt.Errorf("%w: %w", ErrNoConnectivity, err)
	}

	logger := b.logger.With("login_id", uuid.NewString(), "audience", audience)

	srv := loopback.New(logger)
	if err := srv.Listen(ctx, b.cfg.Port); err != nil {
		return token.Token{}, fmt.Errorf("starting callback listener: %w", err)
	}

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(srv.Serve)

	authURL := AuthURL(audience, b.cfg.BaseHost, srv.RedirectURI())
	logger.InfoContext(ctx, "waiting for browser login", "redirect_uri", srv.RedirectURI())

	var raw string
	waitErr := b.openBrowser(authURL)
	if waitErr != nil {
		waitErr = fmt.Errorf("opening browser: %w", waitErr)
	} else {
		raw, waitErr = b.awaitCallback(ctx, gCtx, srv)
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	shutdownErr := srv.Shutdown(shutdownCtx)

	// Join the listener goroutine before returning.
	serveErr := g.Wait()

	if waitErr != nil {
		return token.Token{}, errors.Join(waitErr, serveErr, shutdownErr)
	}
	if shutdownErr != nil {
		logger.WarnContext(ctx, "callback listener shutdown failed", "error", shutdownErr)
	}

	tok, err := b.decode(raw)
	if err != nil {
		return token.Token{}, fmt.Errorf("decoding callback token: %w", err)
	}
	if tok.Audience != audience {
		logger.WarnContext(ctx, "token audience differs from requested audience, storing under token audience",
			"token_audience", tok.Audience)
	}

	if err := b.store.Put(ctx, tok); err != nil {
		return token.Token{}, fmt.Errorf("persisting token: %w", err)
	}
	sess.Set(tok)

	logger.InfoContext(ctx, "login complete", "stored_audience", tok.Audience)
	return tok, nil
}

// awaitCallback blocks on the handoff channel. gCtx is cancelled when the
// listener fails or ctx is done.
func (b *Broker) awaitCallback(ctx, gCtx context.Context, srv *loopback.Server) (string, error) {
	var timeout <-chan time.Time
	if b.cfg.CallbackTimeout > 0 {
		timer := time.NewTimer(b.cfg.CallbackTimeout)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case raw := <-srv.Token():
		return raw, nil
	case <-timeout:
		return "", fmt.Errorf("%w after %s", ErrLoginTimeout, b.cfg.CallbackTimeout)
	case <-gCtx.Done():
		if err := ctx.Err(); err != nil {
			return "", err
		}
		return "", errors.New("callback listener stopped before a token arrived")
	}
}

// dialConnectivity checks that a well-known external host is reachable.
func (b *Broker) dialConnectivity(ctx context.Context) error {
	address := b.cfg.ConnectivityAddress
	if address == "" {
		address = "8.8.8.8:53"
	}
	timeout := b.cfg.ConnectivityTimeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}

	dialer := &net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return err
	}
	return conn.Close()
}

// openBrowser opens url in the default browser. Browser output goes to
// stderr so stdout stays usable for command output.
func openBrowser(url string) error {
	browser.Stdout = os.Stderr
	return browser.OpenURL(url)
}
