// Package loopback runs the short-lived local HTTP listener that catches the
// browser redirect at the end of an interactive login.
package loopback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/captorfm/gqlbroker/internal/observability/middleware"
)

// CallbackPath is the path the auth portal redirects to.
const CallbackPath = "/token"

// closePage tells the user the token arrived and closes the tab after 2s.
const closePage = `<!DOCTYPE html>
<html lang="en-US">
  <head>
    <script>
      setTimeout(function () {
        window.close();
      }, 2000);
    </script>
  </head>
  <body>
    <p>Writing token to local machine</p>
  </body>
</html>
`

// Server accepts exactly one token callback and hands it to the waiting caller.
type Server struct {
	handler  http.Handler
	handoff  chan string
	received atomic.Bool

	listener net.Listener
	server   *http.Server
}

// Compile-time check that Server implements http.Handler
var _ http.Handler = (*Server)(nil)

// New creates a callback server. Nothing listens until Listen is called.
func New(logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		// Capacity 1: the single send never blocks and happens-before the receive.
		handoff: make(chan string, 1),
	}

	mux := http.NewServeMux()
	mux.Handle("GET "+CallbackPath, middleware.Chain(http.HandlerFunc(s.handleCallback),
		middleware.Logging(logger),
		middleware.Recovery,
	))
	s.handler = mux

	return s
}

// ServeHTTP implements http.Handler interface
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// Token returns the channel carrying the one callback value.
func (s *Server) Token() <-chan string {
	return s.handoff
}

// Listen binds the loopback port synchronously so port-in-use errors surface
// before the browser is opened. Port 0 picks a free port.
func (s *Server) Listen(ctx context.Context, port int) error {
	listener, err := net.Listen("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(port)))
	if err != nil {
		return fmt.Errorf("failed to listen on port %d: %w", port, err)
	}
	s.listener = listener

	s.server = &http.Server{
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       30 * time.Second,
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}
	return nil
}

// Port returns the bound port, or 0 before Listen.
func (s *Server) Port() int {
	if s.listener == nil {
		return 0
	}
	return s.listener.Addr().(*net.TCPAddr).Port
}

// RedirectURI is the URL the auth portal must redirect the browser to.
func (s *Server) RedirectURI() string {
	return fmt.Sprintf("http://localhost:%d%s", s.Port(), CallbackPath)
}

// Serve handles requests until Shutdown. It returns nil after a graceful shutdown,
// including when Shutdown ran before Serve.
func (s *Server) Serve() error {
	if s.server == nil {
		return errors.New("loopback server is not listening")
	}

	err := s.server.Serve(s.listener)
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown performs graceful shutdown of the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}

	if err := s.server.Shutdown(ctx); err != nil {
		// Graceful shutdown failed - force close
		_ = s.server.Close()
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}

	return nil
}

func (s *Server) handleCallback(w http.ResponseWriter, r *http.Request) {
	// "GET /token" also routes HEAD here.
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
		return
	}

	query := r.URL.Query()
	value := query.Get("token")
	if value == "" {
		value = query.Get("api_key")
	}
	if value == "" {
		http.Error(w, "missing token or api_key parameter", http.StatusBadRequest)
		return
	}

	if !s.received.CompareAndSwap(false, true) {
		http.Error(w, "token already received", http.StatusConflict)
		return
	}
	s.handoff <- value

	w.Header().Set("Content-Type", "text/html; charset=UTF-8")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte(closePage)); err != nil {
		slog.ErrorContext(r.Context(), "failed to write callback page", "error", err)
	}
}
