package middleware

import (
	"net/http"
	"path"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/tejusbharadwaj/rtclient/internal/transport"
)

const metricPrefix = "rtclient_"

// Metrics holds the per-request collectors.
type Metrics struct {
	Requests *prometheus.CounterVec
	Latency  *prometheus.HistogramVec
}

// NewMetrics creates the request collectors and registers them on reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		Requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "requests_total",
				Help: "Total API requests by operation and status code",
			},
			[]string{"operation", "code"},
		),
		Latency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "request_duration_seconds",
				Help:    "API request latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
	if reg != nil {
		if err := reg.Register(m.Requests); err != nil {
			return nil, err
		}
		if err := reg.Register(m.Latency); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Middleware observes each request. The operation label is the last path
// segment, e.g. "measurements", "Query" or "token".
func (m *Metrics) Middleware() transport.Middleware {
	return func(next http.RoundTripper) http.RoundTripper {
		return transport.RoundTripperFunc(func(req *http.Request) (*http.Response, error) {
			start := time.Now()

			resp, err := next.RoundTrip(req)

			operation := path.Base(req.URL.Path)
			code := "error"
			if err == nil {
				code = strconv.Itoa(resp.StatusCode)
			}
			m.Requests.WithLabelValues(operation, code).Inc()
			m.Latency.WithLabelValues(operation).Observe(time.Since(start).Seconds())

			return resp, err
		})
	}
}
