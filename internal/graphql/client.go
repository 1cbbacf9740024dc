// Package graphql issues single authenticated GraphQL POST requests.
//
// There is no retry, pagination or schema validation: data and errors are
// returned verbatim and the caller decides what a non-empty errors field
// means.
package graphql

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/tidwall/gjson"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/oauth2"

	"github.com/captorfm/gqlbroker/internal/session"
)

// DefaultTimeout is used when Query is called with a zero timeout.
const DefaultTimeout = 10 * time.Second

// ErrMissingCredential is returned when the session holds no token. No
// request is sent.
var ErrMissingCredential = errors.New("authentication token is missing, please log in")

// RequestFailedError reports a transport failure or a non-2xx answer.
// StatusCode is 0 for transport failures.
type RequestFailedError struct {
	StatusCode int
	Body       string
	Err        error
}

func (e *RequestFailedError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("graphql request failed: %v", e.Err)
	}
	return fmt.Sprintf("graphql request failed: %v: %s", e.Err, e.Body)
}

func (e *RequestFailedError) Unwrap() error {
	return e.Err
}

// Request is the JSON body of a GraphQL POST.
type Request struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

// Result holds the top-level data and errors fields exactly as received.
// A field that is absent or null is nil.
type Result struct {
	Data   json.RawMessage
	Errors json.RawMessage
}

// HasErrors reports whether the server returned an errors field.
func (r Result) HasErrors() bool {
	return len(r.Errors) > 0
}

// Option configures a Client.
type Option func(*Client)

// WithTransport sets the base transport under the bearer-token transport.
// If not provided, http.DefaultTransport is used.
func WithTransport(transport http.RoundTripper) Option {
	return func(c *Client) {
		c.base = transport
	}
}

// Client posts queries to one GraphQL endpoint.
type Client struct {
	endpoint string
	base     http.RoundTripper
	tracer   trace.Tracer
}

// New creates a Client for the given endpoint URL.
func New(endpoint string, opts ...Option) (*Client, error) {
	if endpoint == "" {
		return nil, fmt.Errorf("graphql endpoint cannot be empty")
	}

	c := &Client{
		endpoint: endpoint,
		base:     http.DefaultTransport,
		tracer:   otel.Tracer("github.com/captorfm/gqlbroker/internal/graphql"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Query sends req authorized with the session token. timeout bounds the whole
// exchange; zero means DefaultTimeout.
func (c *Client) Query(ctx context.Context, sess *session.Session, req Request, timeout time.Duration) (Result, error) {
	accessToken := sess.AccessToken()
	if accessToken == "" {
		return Result{}, ErrMissingCredential
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	ctx, span := c.tracer.Start(ctx, "graphql.query", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	result, err := c.do(ctx, accessToken, req, timeout)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "graphql request failed")
		return Result{}, err
	}
	span.SetAttributes(attribute.Bool("graphql.has_errors", result.HasErrors()))
	return result, nil
}

func (c *Client) do(ctx context.Context, accessToken string, req Request, timeout time.Duration) (Result, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return Result{}, fmt.Errorf("encoding graphql request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return Result{}, fmt.Errorf("creating graphql request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	// Setting Accept-Encoding explicitly turns off transparent decompression.
	httpReq.Header.Set("Accept-Encoding", "gzip")

	httpClient := &http.Client{
		Timeout: timeout,
		Transport: &oauth2.Transport{
			Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken, TokenType: "Bearer"}),
			Base:   c.base,
		},
	}

	resp, err := httpClient.Do(httpReq)
	if err != nil {
		return Result{}, &RequestFailedError{Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	payload, err := readBody(resp)
	if err != nil {
		return Result{}, &RequestFailedError{StatusCode: resp.StatusCode, Err: err}
	}

	trace.SpanFromContext(ctx).SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return Result{}, &RequestFailedError{
			StatusCode: resp.StatusCode,
			Body:       string(payload),
			Err:        fmt.Errorf("unexpected status %s", resp.Status),
		}
	}

	if !gjson.ValidBytes(payload) {
		return Result{}, fmt.Errorf("decoding graphql response: invalid JSON")
	}

	return Result{
		Data:   rawField(payload, "data"),
		Errors: rawField(payload, "errors"),
	}, nil
}

func readBody(resp *http.Response) ([]byte, error) {
	if resp.Header.Get("Content-Encoding") != "gzip" {
		return io.ReadAll(resp.Body)
	}

	zr, err := gzip.NewReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("opening gzip body: %w", err)
	}
	defer func() { _ = zr.Close() }()
	return io.ReadAll(zr)
}

func rawField(payload []byte, path string) json.RawMessage {
	field := gjson.GetBytes(payload, path)
	if !field.Exists() || field.Type == gjson.Null {
		return nil
	}
	return json.RawMessage(field.Raw)
}
