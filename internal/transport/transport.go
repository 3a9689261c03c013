// Package transport builds the HTTP client shared by every call the API
// client makes, including the token exchange.
//
// Requests pass through a chain of middlewares, each a wrapper around an
// http.RoundTripper:
//
//	httpClient := transport.NewHTTPClient(30*time.Second,
//	    middleware.RequestID(),
//	    middleware.RateLimiter(limiter),
//	    middleware.Logging(logger),
//	    metrics.Middleware(),
//	)
//
// The first middleware is the outermost one.
package transport

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultTimeout bounds a single request when no timeout is configured.
const DefaultTimeout = 30 * time.Second

// RoundTripperFunc adapts a function to http.RoundTripper.
type RoundTripperFunc func(*http.Request) (*http.Response, error)

// RoundTrip implements http.RoundTripper.
func (f RoundTripperFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

// Middleware wraps a RoundTripper with additional behaviour.
type Middleware func(next http.RoundTripper) http.RoundTripper

// Chain wraps base with the middlewares so that the first one runs first.
func Chain(base http.RoundTripper, middlewares ...Middleware) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	chain := base
	for i := len(middlewares) - 1; i >= 0; i-- {
		chain = middlewares[i](chain)
	}
	return chain
}

// NewHTTPClient returns a client whose transport runs the given middlewares.
// Connection reuse is handled by the default transport underneath.
func NewHTTPClient(timeout time.Duration, middlewares ...Middleware) *http.Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: Chain(http.DefaultTransport, middlewares...),
	}
}

// ParseBaseURL validates raw as an absolute http(s) URL and makes sure the
// path ends in a slash so relative routes resolve beneath it.
func ParseBaseURL(raw string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("transport: empty base url")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("transport: invalid base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("transport: unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("transport: base url %q has no host", raw)
	}
	if !strings.HasSuffix(u.Path, "/") {
		u.Path += "/"
	}
	return u, nil
}

// ResolveURL joins a relative route onto a base returned by ParseBaseURL.
func ResolveURL(base *url.URL, route string) string {
	ref := &url.URL{Path: strings.TrimLeft(route, "/")}
	return base.ResolveReference(ref).String()
}
