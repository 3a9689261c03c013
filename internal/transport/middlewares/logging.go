package middleware

import (
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/tejusbharadwaj/rtclient/internal/transport"
)

// Logging records one entry per request. Failed requests and non-2xx
// responses are logged at warn level, everything else at debug.
func Logging(logger logrus.FieldLogger) transport.Middleware {
	return func(next http.RoundTripper) http.RoundTripper {
		return transport.RoundTripperFunc(func(req *http.Request) (*http.Response, error) {
			start := time.Now()

			resp, err := next.RoundTrip(req)

			entry := logger.WithFields(logrus.Fields{
				"request_id": RequestIDFromContext(req.Context()),
				"method":     req.Method,
				"path":       req.URL.Path,
				"duration":   time.Since(start).String(),
			})
			switch {
			case err != nil:
				entry.WithError(err).Warn("request failed")
			case resp.StatusCode >= 300:
				entry.WithField("status", resp.StatusCode).Warn("unexpected response status")
			default:
				entry.WithField("status", resp.StatusCode).Debug("request completed")
			}

			return resp, err
		})
	}
}
