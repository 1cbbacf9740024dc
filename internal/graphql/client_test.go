package graphql

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/jarcoal/httpmock"
	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/captorfm/gqlbroker/internal/session"
	"github.com/captorfm/gqlbroker/internal/token"
)

func loggedIn(raw string) *session.Session {
	sess := session.New()
	sess.Set(token.Token{Raw: raw, Audience: token.AudienceProd})
	return sess
}

func TestQuerySendsAuthorizedRequest(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer tok-123", r.Header.Get("Authorization"))
		assert.Equal(t, "gzip", r.Header.Get("Accept-Encoding"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"data":{"userInfo":{"name":"Ada"}}}`)
	}))
	defer srv.Close()

	client, err := New(srv.URL)
	require.NoError(t, err)

	result, err := client.Query(context.Background(), loggedIn("tok-123"), Request{Query: "{ userInfo { name } }"}, 0)
	require.NoError(t, err)

	assert.JSONEq(t, `{"userInfo":{"name":"Ada"}}`, string(result.Data))
	assert.Nil(t, result.Errors)
	assert.False(t, result.HasErrors())

	assert.Equal(t, "{ userInfo { name } }", body["query"])
	_, hasVariables := body["variables"]
	assert.False(t, hasVariables, "empty variables must be omitted")
}

func TestQueryIncludesVariables(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		_, _ = io.WriteString(w, `{"data":null,"errors":[{"message":"no such fund"}]}`)
	}))
	defer srv.Close()

	client, err := New(srv.URL)
	require.NoError(t, err)

	req := Request{
		Query:     "query($id: ID!) { fund(id: $id) { name } }",
		Variables: map[string]any{"id": "42"},
	}
	result, err := client.Query(context.Background(), loggedIn("tok"), req, 0)
	require.NoError(t, err)

	assert.Equal(t, map[string]any{"id": "42"}, body["variables"])
	assert.Nil(t, result.Data)
	assert.True(t, result.HasErrors())
	assert.JSONEq(t, `[{"message":"no such fund"}]`, string(result.Errors))
}

func TestQueryDecodesGzipResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var buf bytes.Buffer
		zw := gzip.NewWriter(&buf)
		_, _ = io.WriteString(zw, `{"data":{"ok":true}}`)
		assert.NoError(t, zw.Close())

		w.Header().Set("Content-Encoding", "gzip")
		_, _ = w.Write(buf.Bytes())
	}))
	defer srv.Close()

	client, err := New(srv.URL)
	require.NoError(t, err)

	result, err := client.Query(context.Background(), loggedIn("tok"), Request{Query: "{ ok }"}, 0)
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true}`, string(result.Data))
}

func TestQueryWithoutTokenSendsNothing(t *testing.T) {
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder(http.MethodPost, "https://api.captor.se/graphql",
		httpmock.NewStringResponder(http.StatusOK, `{"data":{}}`))

	client, err := New("https://api.captor.se/graphql", WithTransport(transport))
	require.NoError(t, err)

	_, err = client.Query(context.Background(), session.New(), Request{Query: "{ ok }"}, 0)
	assert.ErrorIs(t, err, ErrMissingCredential)
	assert.Zero(t, transport.GetTotalCallCount())
}

func TestQueryTransportFailure(t *testing.T) {
	boom := errors.New("connection reset")
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder(http.MethodPost, "https://api.captor.se/graphql",
		httpmock.NewErrorResponder(boom))

	client, err := New("https://api.captor.se/graphql", WithTransport(transport))
	require.NoError(t, err)

	_, err = client.Query(context.Background(), loggedIn("tok"), Request{Query: "{ ok }"}, 0)

	var failed *RequestFailedError
	require.ErrorAs(t, err, &failed)
	assert.Zero(t, failed.StatusCode)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, transport.GetTotalCallCount())
}

func TestQueryNonSuccessStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "token expired", http.StatusUnauthorized)
	}))
	defer srv.Close()

	client, err := New(srv.URL)
	require.NoError(t, err)

	_, err = client.Query(context.Background(), loggedIn("tok"), Request{Query: "{ ok }"}, 0)

	var failed *RequestFailedError
	require.ErrorAs(t, err, &failed)
	assert.Equal(t, http.StatusUnauthorized, failed.StatusCode)
	assert.Contains(t, failed.Body, "token expired")
}

func TestQueryInvalidJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "<html>maintenance</html>")
	}))
	defer srv.Close()

	client, err := New(srv.URL)
	require.NoError(t, err)

	_, err = client.Query(context.Background(), loggedIn("tok"), Request{Query: "{ ok }"}, 0)
	require.Error(t, err)

	var failed *RequestFailedError
	assert.False(t, errors.As(err, &failed))
}

func TestNewRequiresEndpoint(t *testing.T) {
	_, err := New("")
	assert.Error(t, err)
}
