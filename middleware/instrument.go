package middleware

import (
	"strconv"
	"strings"
	"time"

	goGate "github.com/MrEthical07/goGate"
	"github.com/prometheus/client_golang/prometheus"
)

// unmatchedRoute labels requests that resolved to no route, keeping label
// cardinality bounded by the registry.
const unmatchedRoute = "unmatched"

// Metrics holds the collectors registered by [NewMetrics].
type Metrics struct {
	inFlight prometheus.Gauge
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewMetrics registers the HTTP collectors on reg. A nil reg uses
// prometheus.DefaultRegisterer.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gogate_http_in_flight_requests",
			Help: "In-flight HTTP requests.",
		}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gogate_http_requests_total",
			Help: "Total number of HTTP requests.",
		}, []string{"method", "route", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gogate_http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}
	for _, c := range []prometheus.Collector{m.inFlight, m.requests, m.duration} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Instrument returns a step that records every request in m.
func Instrument(m *Metrics) goGate.Descriptor {
	return goGate.Pre("instrument", OrderInstrument, func(rc *goGate.RequestContext) error {
		m.inFlight.Inc()
		method := strings.ToUpper(rc.Request.Method)
		rc.AfterResponse(func(status int, elapsed time.Duration) {
			m.inFlight.Dec()
			route := unmatchedRoute
			if mapped, ok := rc.Mapping(); ok {
				route = mapped.Path
			}
			code := strconv.Itoa(status)
			m.requests.WithLabelValues(method, route, code).Inc()
			m.duration.WithLabelValues(method, route, code).Observe(elapsed.Seconds())
		})
		return nil
	})
}
