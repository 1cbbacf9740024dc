// Package token models bearer tokens handed out by the Captor auth services.
//
// Claims are decoded without verifying the signature. They are only used to
// pick the storage bucket and to read the expiry; the API server validates
// the signature on every request.
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Supported audiences.
const (
	AudienceProd = "prod"
	AudienceTest = "test"
)

// ErrMissingAudience is returned when a token carries no aud claim.
var ErrMissingAudience = errors.New("token has no audience claim")

// Token is a bearer token together with its unverified claims.
type Token struct {
	Raw      string
	Claims   map[string]any
	Audience string

	// Expiry is nil when the token carries no expiry.
	Expiry *time.Time

	// Set by the credential exchange flow only.
	UserDisplayName string
	UserID          string
}

// SupportedAudience reports whether aud is one of the two backend environments.
func SupportedAudience(aud string) bool {
	return aud == AudienceProd || aud == AudienceTest
}

// Parse decodes the payload of a signed token without verifying it.
func Parse(raw string) (Token, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		return Token{}, fmt.Errorf("decoding token: %w", err)
	}
	return FromClaims(raw, claims)
}

// FromClaims builds a Token from already decoded claims.
func FromClaims(raw string, claims map[string]any) (Token, error) {
	mc := jwt.MapClaims(claims)

	aud, err := mc.GetAudience()
	if err != nil {
		return Token{}, fmt.Errorf("reading aud claim: %w", err)
	}
	if len(aud) == 0 || aud[0] == "" {
		return Token{}, ErrMissingAudience
	}

	t := Token{
		Raw:      raw,
		Claims:   claims,
		Audience: aud[0],
	}

	exp, err := mc.GetExpirationTime()
	if err != nil {
		return Token{}, fmt.Errorf("reading exp claim: %w", err)
	}
	if exp != nil {
		expiry := exp.Time
		t.Expiry = &expiry
	}

	return t, nil
}

// Subject returns the sub claim, or an empty string.
func (t Token) Subject() string {
	sub, _ := jwt.MapClaims(t.Claims).GetSubject()
	return sub
}

// ValidAt reports whether the token is usable at the given instant:
// non-empty and either without expiry or strictly before it.
func (t *Token) ValidAt(now time.Time) bool {
	if t == nil || t.Raw == "" {
		return false
	}
	if t.Expiry == nil {
		return true
	}
	return now.Before(*t.Expiry)
}
