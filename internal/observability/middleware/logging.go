// Package middleware contains HTTP middlewares shared by local listeners.
package middleware

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/httplog/v3"
)

// Logging logs HTTP requests with method, path, status, and duration.
// The query string is stripped before logging because callbacks carry tokens in it.
func Logging(logger *slog.Logger) func(http.Handler) http.Handler {
	requestLogger := httplog.RequestLogger(logger, &httplog.Options{
		Schema: httplog.SchemaECS.Concise(true),

		// Explicitly prevent logging headers/body to avoid leaking sensitive data
		LogRequestHeaders:  []string{"Content-Type", "Origin"},
		LogResponseHeaders: []string{},
		LogRequestBody:     nil,
		LogResponseBody:    nil,

		RecoverPanics: false, // use dedicated middleware, panics are logged regardless
	})

	return func(next http.Handler) http.Handler {
		inner := requestLogger(restoreQuery(next))
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.RawQuery == "" {
				inner.ServeHTTP(w, r)
				return
			}
			redacted := r.Clone(context.WithValue(r.Context(), rawQueryKey{}, r.URL.RawQuery))
			redacted.URL.RawQuery = ""
			redacted.RequestURI = redacted.URL.Path
			inner.ServeHTTP(w, redacted)
		})
	}
}

type rawQueryKey struct{}

// restoreQuery puts back the query string hidden from the request logger.
func restoreQuery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if q, ok := r.Context().Value(rawQueryKey{}).(string); ok {
			r = r.Clone(r.Context())
			r.URL.RawQuery = q
			r.RequestURI = r.URL.RequestURI()
		}
		next.ServeHTTP(w, r)
	})
}

// Recovery recovers from panics in HTTP handlers and returns HTTP 500 to the client.
func Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if recover() != nil {
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				// Logging of panics is handled in Logging middleware
			}
		}()

		next.ServeHTTP(w, r)
	})
}

// Chain applies middlewares to a handler in the order they appear.
// The first middleware in the slice is the outermost (executes first).
func Chain(h http.Handler, middlewares ...func(http.Handler) http.Handler) http.Handler {
	for i := len(middlewares) - 1; i >= 0; i-- {
		h = middlewares[i](h)
	}
	return h
}
