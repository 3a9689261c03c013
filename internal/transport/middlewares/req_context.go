package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/tejusbharadwaj/rtclient/internal/transport"
)

type contextKey string

const requestIDKey contextKey = "requestID"

// RequestIDHeader carries the per-request correlation id.
const RequestIDHeader = "X-Request-ID"

// RequestID tags every outgoing request with a fresh id, both as a header
// and on the request context so later middlewares can log it.
func RequestID() transport.Middleware {
	return func(next http.RoundTripper) http.RoundTripper {
		return transport.RoundTripperFunc(func(req *http.Request) (*http.Response, error) {
			id := req.Header.Get(RequestIDHeader)
			if id == "" {
				id = generateRequestID()
			}
			ctx := context.WithValue(req.Context(), requestIDKey, id)
			out := req.Clone(ctx)
			out.Header.Set(RequestIDHeader, id)
			return next.RoundTrip(out)
		})
	}
}

// RequestIDFromContext returns the id set by RequestID, if any.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

func generateRequestID() string {
	return uuid.NewString()
}
