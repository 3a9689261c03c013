// Package auth attaches bearer credentials to API requests.
//
// Two providers exist: StaticKey sends a configured API key as the bearer
// token, ExchangedToken trades a client id and secret for an access token on
// first use and caches it. Both satisfy Provider, so the API client never
// needs to know which one it holds beyond the route set it selects.
package auth

import (
	"context"
	"net/http"
)

// Mode identifies how a provider obtains its bearer token.
type Mode int

const (
	// ModeStaticKey sends a fixed API key.
	ModeStaticKey Mode = iota
	// ModeExchangedToken exchanges client credentials for a token.
	ModeExchangedToken
)

func (m Mode) String() string {
	switch m {
	case ModeStaticKey:
		return "api_key"
	case ModeExchangedToken:
		return "client_credentials"
	default:
		return "unknown"
	}
}

// Provider supplies the Authorization header for API requests.
type Provider interface {
	// EnsureAuthenticated makes a bearer token available. It is idempotent.
	EnsureAuthenticated(ctx context.Context) error
	// Authorize sets the Authorization header on req, authenticating first
	// if needed.
	Authorize(ctx context.Context, req *http.Request) error
	// Invalidate drops any cached token so the next call authenticates again.
	Invalidate()
	Mode() Mode
}

const (
	headerAuthorization = "Authorization"
	bearerPrefix        = "Bearer "
)

func setBearer(req *http.Request, token string) {
	req.Header.Set(headerAuthorization, bearerPrefix+token)
}
