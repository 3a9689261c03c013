// Package api is the client for the realtime telemetry API.
//
// A Client lists the measurement catalog and runs single-block value
// queries. Authentication is delegated to an auth.Provider, which also
// decides the route set: API-key clients use the unversioned routes,
// client-credential clients the v1 routes.
//
// Example usage:
//
//	creds, _ := auth.NewStaticKey(os.Getenv("POWERP_API_KEY"))
//	client, err := api.NewClient("https://tenant.powerp.app/rt-api/api/", creds)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	measurements, err := client.ListMeasurements(ctx)
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/sirupsen/logrus"

	"github.com/tejusbharadwaj/rtclient/internal/auth"
	apierrors "github.com/tejusbharadwaj/rtclient/internal/errors"
	"github.com/tejusbharadwaj/rtclient/internal/transport"
)

type routes struct {
	measurements string
	query        string
}

var routeSets = map[auth.Mode]routes{
	auth.ModeStaticKey:      {measurements: "measurements", query: "Query"},
	auth.ModeExchangedToken: {measurements: "v1/measurements", query: "v1/Query"},
}

// Client talks to the telemetry API. Calls are issued one at a time by the
// caller; the client itself holds no per-call state.
type Client struct {
	baseURL    *url.URL
	routes     routes
	creds      auth.Provider
	httpClient *http.Client
	logger     logrus.FieldLogger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the HTTP client. It should be the same client the
// credential provider uses, so both share middlewares and connections.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithLogger sets the logger.
func WithLogger(logger logrus.FieldLogger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// NewClient returns a client for the API rooted at baseURL.
func NewClient(baseURL string, creds auth.Provider, opts ...Option) (*Client, error) {
	base, err := transport.ParseBaseURL(baseURL)
	if err != nil {
		return nil, apierrors.Wrap(apierrors.ErrCodeInvalidArgument, "api: base url", err)
	}
	if creds == nil {
		return nil, apierrors.New(apierrors.ErrCodeInvalidArgument, "api: nil credential provider")
	}
	rs, ok := routeSets[creds.Mode()]
	if !ok {
		return nil, apierrors.New(apierrors.ErrCodeInvalidArgument, fmt.Sprintf("api: unsupported auth mode %s", creds.Mode()))
	}

	c := &Client{
		baseURL: base,
		routes:  rs,
		creds:   creds,
		logger:  logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.httpClient == nil {
		c.httpClient = transport.NewHTTPClient(transport.DefaultTimeout)
	}
	return c, nil
}

// BaseURL returns the normalized API root.
func (c *Client) BaseURL() *url.URL {
	u := *c.baseURL
	return &u
}

// EnsureAuthenticated authenticates ahead of the first data call. Data calls
// do this themselves, so calling it is optional.
func (c *Client) EnsureAuthenticated(ctx context.Context) error {
	return c.creds.EnsureAuthenticated(ctx)
}

// do sends a JSON request and returns the body of a 2xx response.
func (c *Client) do(ctx context.Context, method, route string, body any) ([]byte, error) {
	var reqBody io.Reader = http.NoBody
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, apierrors.Wrap(apierrors.ErrCodeInternal, "api: encode request", err)
		}
		reqBody = bytes.NewReader(payload)
	}

	endpoint := transport.ResolveURL(c.baseURL, route)
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reqBody)
	if err != nil {
		return nil, apierrors.Wrap(apierrors.ErrCodeInvalidArgument, "api: build request", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	// Authentication always completes before the data request is sent.
	if err := c.creds.Authorize(ctx, req); err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, apierrors.WrapWithContext(apierrors.ErrCodeTransport, "api: request failed", err,
			map[string]any{"route": route})
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apierrors.WrapWithContext(apierrors.ErrCodeTransport, "api: read response", err,
			map[string]any{"route": route})
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if resp.StatusCode == http.StatusUnauthorized {
			c.creds.Invalidate()
		}
		return nil, apierrors.NewWithContext(
			apierrors.ErrCodeTransport,
			fmt.Sprintf("api: %s %s returned %s", method, route, resp.Status),
			map[string]any{
				apierrors.ContextStatus: resp.StatusCode,
				"route":                 route,
			},
		)
	}
	return data, nil
}

// decodeList decodes a JSON array body. An empty body or null yields an
// empty slice.
func decodeList[T any](data []byte, what string) ([]T, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return []T{}, nil
	}
	var out []T
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, apierrors.Wrap(apierrors.ErrCodeDecode, "api: unexpected "+what+" response", err)
	}
	if out == nil {
		out = []T{}
	}
	return out, nil
}
