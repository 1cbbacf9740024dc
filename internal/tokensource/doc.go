// Package tokensource exchanges user credentials for an access token at the
// Captor auth service.
//
// The token endpoint takes a form-encoded password grant where the client
// identifier is the target audience ("prod" or "test"):
//
//	ex := tokensource.NewPasswordExchanger(tokensource.Endpoint("https://auth.captor.se/token"))
//	tok, err := ex.Exchange(ctx, "alice", "secret", "prod")
//
// # Custom Base Transport
//
// Configure a custom base transport for exchange requests (e.g., for proxies or tests):
//
//	ex := tokensource.NewPasswordExchanger(
//		endpoint,
//		tokensource.WithTransport(customTransport),
//	)
package tokensource
