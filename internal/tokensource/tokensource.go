package tokensource

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/oauth2"

	"github.com/captorfm/gqlbroker/internal/token"
)

// Endpoint returns the OAuth2 endpoint for the given token URL.
// Client credentials travel in the form body, never in a Basic auth header.
func Endpoint(tokenURL string) oauth2.Endpoint {
	return oauth2.Endpoint{
		TokenURL:  tokenURL,
		AuthStyle: oauth2.AuthStyleInParams,
	}
}

// Option configures a PasswordExchanger.
type Option func(*exchangerConfig)

// exchangerConfig holds configuration for NewPasswordExchanger.
type exchangerConfig struct {
	baseTransport http.RoundTripper
	timeout       time.Duration
}

// WithTransport sets a custom base transport for exchange requests.
// If not provided, http.DefaultTransport is used.
func WithTransport(transport http.RoundTripper) Option {
	return func(c *exchangerConfig) {
		c.baseTransport = transport
	}
}

// WithTimeout bounds a single exchange request. Defaults to 10 seconds.
func WithTimeout(d time.Duration) Option {
	return func(c *exchangerConfig) {
		c.timeout = d
	}
}

// PasswordExchanger trades a username and password for an access token.
type PasswordExchanger struct {
	endpoint   oauth2.Endpoint
	httpClient *http.Client
}

// NewPasswordExchanger creates a PasswordExchanger for the given endpoint.
func NewPasswordExchanger(endpoint oauth2.Endpoint, opts ...Option) *PasswordExchanger {
	cfg := &exchangerConfig{
		baseTransport: http.DefaultTransport,
		timeout:       10 * time.Second,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	return &PasswordExchanger{
		endpoint: endpoint,
		httpClient: &http.Client{
			Timeout:   cfg.timeout,
			Transport: cfg.baseTransport,
		},
	}
}

// Exchange posts the credentials with client_id set to audience and returns
// the granted token. Errors are returned unchanged from oauth2: a non-2xx
// answer surfaces as *oauth2.RetrieveError carrying status and body.
func (e *PasswordExchanger) Exchange(ctx context.Context, username, password, audience string) (token.Token, error) {
	oauth2Config := &oauth2.Config{
		ClientID: audience,
		Endpoint: e.endpoint,
	}

	// oauth2 package injects custom HTTP clients via context (oauth2.HTTPClient key).
	ctx = context.WithValue(ctx, oauth2.HTTPClient, e.httpClient)

	granted, err := oauth2Config.PasswordCredentialsToken(ctx, username, password)
	if err != nil {
		return token.Token{}, err
	}

	return grantToToken(granted, audience), nil
}

// grantToToken maps the token endpoint answer onto a Token. The endpoint
// reports expiry as an absolute "exp" epoch; expires_in is used as fallback.
func grantToToken(granted *oauth2.Token, audience string) token.Token {
	tok := token.Token{
		Raw:             granted.AccessToken,
		Audience:        audience,
		UserDisplayName: extraString(granted, "user_display_name"),
		UserID:          extraString(granted, "user_id"),
	}

	// Claims are informational only; opaque access tokens are fine.
	if parsed, err := token.Parse(granted.AccessToken); err == nil {
		tok.Claims = parsed.Claims
	}

	if exp, ok := extraEpoch(granted, "exp"); ok {
		tok.Expiry = &exp
	} else if !granted.Expiry.IsZero() {
		expiry := granted.Expiry
		tok.Expiry = &expiry
	}

	return tok
}

func extraString(t *oauth2.Token, key string) string {
	switch v := t.Extra(key).(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return ""
	}
}

func extraEpoch(t *oauth2.Token, key string) (time.Time, bool) {
	var seconds float64
	switch v := t.Extra(key).(type) {
	case float64:
		seconds = v
	case string:
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return time.Time{}, false
		}
		seconds = f
	default:
		return time.Time{}, false
	}
	sec := int64(seconds)
	nsec := int64((seconds - float64(sec)) * float64(time.Second))
	return time.Unix(sec, nsec), true
}

