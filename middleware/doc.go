// Package middleware provides optional pipeline steps for goGate.
//
// Each constructor returns a [goGate.Descriptor] that is added with
// Builder.WithDescriptor:
//
//   - [Instrument] records Prometheus request counters, latency and in-flight
//     requests.
//   - [RequestLogger] writes one zerolog event per completed request.
//   - [NewThrottle] limits requests per client IP with a token bucket.
//
// The steps run before route resolution, so they see every request including
// those that end in 404 or 405.
//
// # Architecture boundaries
//
// This package only composes the public goGate API. It never authenticates,
// authorizes or reads the route registry; the mapped route is read from the
// request context after the response completes.
package middleware

// Default orders. Library steps start at goGate.OrderResolveRoute.
const (
	OrderInstrument    = 10
	OrderRequestLogger = 20
	OrderThrottle      = 50
)
