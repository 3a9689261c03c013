package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	apierrors "github.com/tejusbharadwaj/rtclient/internal/errors"
	"github.com/tejusbharadwaj/rtclient/internal/models"
	"github.com/tejusbharadwaj/rtclient/internal/transport"
)

// TokenRoute is the token exchange endpoint, relative to the API base URL.
const TokenRoute = "v1/auth/token"

// ExchangeTimeout bounds a single token exchange, independent of the
// contexts of the callers waiting on it.
const ExchangeTimeout = 30 * time.Second

// RefreshSkew is how long before the advertised expiry a token is replaced.
// Tokens with short lifetimes use half their lifetime instead.
const RefreshSkew = 30 * time.Second

// tokenState is either unauthenticated (zero value) or holds a token.
// A zero expiresAt means the token does not expire.
type tokenState struct {
	authenticated bool
	accessToken   string
	expiresAt     time.Time
}

func (s tokenState) valid(now time.Time) bool {
	if !s.authenticated {
		return false
	}
	return s.expiresAt.IsZero() || now.Before(s.expiresAt)
}

// ExchangedToken exchanges a client id and secret for a bearer token on first
// use and reuses it until it is about to expire or is invalidated. It is safe
// for concurrent use; concurrent callers share a single exchange.
type ExchangedToken struct {
	clientID        string
	clientSecret    string
	tokenURL        string
	httpClient      *http.Client
	logger          logrus.FieldLogger
	now             func() time.Time
	exchangeTimeout time.Duration

	mu    sync.RWMutex
	state tokenState
	group singleflight.Group
}

// Option configures an ExchangedToken.
type Option func(*ExchangedToken)

// WithLogger sets the logger used for exchange events.
func WithLogger(logger logrus.FieldLogger) Option {
	return func(p *ExchangedToken) {
		p.logger = logger
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(p *ExchangedToken) {
		p.now = now
	}
}

// NewExchangedToken returns a provider that exchanges credentials at
// base + TokenRoute using httpClient.
func NewExchangedToken(base *url.URL, clientID, clientSecret string, httpClient *http.Client, opts ...Option) (*ExchangedToken, error) {
	if base == nil {
		return nil, apierrors.New(apierrors.ErrCodeInvalidArgument, "auth: nil base url")
	}
	if clientID == "" || clientSecret == "" {
		return nil, apierrors.New(apierrors.ErrCodeInvalidArgument, "auth: client id and secret are required")
	}
	if httpClient == nil {
		httpClient = transport.NewHTTPClient(transport.DefaultTimeout)
	}

	p := &ExchangedToken{
		clientID:        clientID,
		clientSecret:    clientSecret,
		tokenURL:        transport.ResolveURL(base, TokenRoute),
		httpClient:      httpClient,
		logger:          logrus.StandardLogger(),
		now:             time.Now,
		exchangeTimeout: ExchangeTimeout,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

func (p *ExchangedToken) Mode() Mode { return ModeExchangedToken }

// EnsureAuthenticated returns immediately when a valid token is cached and
// otherwise performs exactly one token exchange.
func (p *ExchangedToken) EnsureAuthenticated(ctx context.Context) error {
	_, err := p.token(ctx)
	return err
}

func (p *ExchangedToken) Authorize(ctx context.Context, req *http.Request) error {
	token, err := p.token(ctx)
	if err != nil {
		return err
	}
	setBearer(req, token)
	return nil
}

// Invalidate returns the provider to the unauthenticated state.
func (p *ExchangedToken) Invalidate() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state = tokenState{}
}

// Authenticated reports whether a valid token is cached.
func (p *ExchangedToken) Authenticated() bool {
	_, ok := p.cached()
	return ok
}

func (p *ExchangedToken) cached() (string, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.state.valid(p.now()) {
		return p.state.accessToken, true
	}
	return "", false
}

// token returns the cached token or joins the exchange in flight. The
// exchange runs detached from any one caller's context, so a caller that
// gives up does not fail the others waiting on it.
func (p *ExchangedToken) token(ctx context.Context) (string, error) {
	if token, ok := p.cached(); ok {
		return token, nil
	}

	ch := p.group.DoChan("token", func() (interface{}, error) {
		// Another caller may have finished an exchange since the check above.
		if token, ok := p.cached(); ok {
			return token, nil
		}

		exchangeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.exchangeTimeout)
		defer cancel()

		obtainedAt := p.now()
		tok, err := p.exchange(exchangeCtx)
		if err != nil {
			return "", err
		}

		state := tokenState{
			authenticated: true,
			accessToken:   tok.AccessToken,
		}
		if tok.ExpiresIn > 0 {
			lifetime := time.Duration(tok.ExpiresIn) * time.Second
			skew := RefreshSkew
			if skew > lifetime/2 {
				skew = lifetime / 2
			}
			state.expiresAt = obtainedAt.Add(lifetime - skew)
		}

		p.mu.Lock()
		p.state = state
		p.mu.Unlock()

		p.logger.WithFields(logrus.Fields{
			"token_type": tok.TokenType,
			"expires_in": tok.ExpiresIn,
		}).Debug("Obtained access token")

		return tok.AccessToken, nil
	})

	select {
	case <-ctx.Done():
		return "", apierrors.Wrap(apierrors.ErrCodeAuthentication, "auth: gave up waiting for token", ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}

func (p *ExchangedToken) exchange(ctx context.Context) (models.AuthToken, error) {
	payload, err := json.Marshal(models.TokenRequest{
		ClientID:     p.clientID,
		ClientSecret: p.clientSecret,
	})
	if err != nil {
		return models.AuthToken{}, apierrors.Wrap(apierrors.ErrCodeInternal, "auth: encode token request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.tokenURL, bytes.NewReader(payload))
	if err != nil {
		return models.AuthToken{}, apierrors.Wrap(apierrors.ErrCodeAuthentication, "auth: build token request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return models.AuthToken{}, apierrors.Wrap(apierrors.ErrCodeAuthentication, "auth: token exchange failed",
			apierrors.Wrap(apierrors.ErrCodeTransport, "request failed", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return models.AuthToken{}, apierrors.Wrap(apierrors.ErrCodeAuthentication, "auth: token exchange failed",
			apierrors.Wrap(apierrors.ErrCodeTransport, "read response", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return models.AuthToken{}, apierrors.NewWithContext(
			apierrors.ErrCodeAuthentication,
			fmt.Sprintf("auth: token endpoint returned %s", resp.Status),
			map[string]any{apierrors.ContextStatus: resp.StatusCode},
		)
	}

	var tok models.AuthToken
	if err := json.Unmarshal(body, &tok); err != nil {
		return models.AuthToken{}, apierrors.Wrap(apierrors.ErrCodeAuthentication, "auth: token exchange failed",
			apierrors.Wrap(apierrors.ErrCodeDecode, "unexpected token response", err))
	}
	if tok.AccessToken == "" {
		return models.AuthToken{}, apierrors.New(apierrors.ErrCodeAuthentication, "auth: token response has no access token")
	}
	return tok, nil
}

var _ Provider = (*ExchangedToken)(nil)
