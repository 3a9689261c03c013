package middleware

import (
	"fmt"
	"net/http"

	"golang.org/x/time/rate"

	"github.com/tejusbharadwaj/rtclient/internal/transport"
)

// NewLimiter returns a limiter allowing rps requests per second with the
// given burst. A non-positive rps disables limiting.
func NewLimiter(rps float64, burst int) *rate.Limiter {
	if rps <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(rps), burst)
}

// RateLimiter delays requests so the client stays under the limiter's rate.
// It waits rather than failing; the wait honours the request context.
func RateLimiter(limiter *rate.Limiter) transport.Middleware {
	return func(next http.RoundTripper) http.RoundTripper {
		return transport.RoundTripperFunc(func(req *http.Request) (*http.Response, error) {
			if err := limiter.Wait(req.Context()); err != nil {
				return nil, fmt.Errorf("rate limit wait: %w", err)
			}
			return next.RoundTrip(req)
		})
	}
}
