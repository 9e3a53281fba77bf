package goGate

import (
	"net/http"
	"time"

	"github.com/MrEthical07/goGate/appstate"
	"github.com/MrEthical07/goGate/internal/audit"
	"github.com/MrEthical07/goGate/internal/flows"
	"github.com/MrEthical07/goGate/internal/rate"
	"github.com/MrEthical07/goGate/jwt"
	"github.com/MrEthical07/goGate/logging"
	"github.com/MrEthical07/goGate/password"
	"github.com/MrEthical07/goGate/permission"
	"github.com/rs/zerolog"
)

// Engine is the built request gate: token issue and verification, refresh
// rotation, role authorization and the app-state gate, served through an
// assembled [Pipeline].
//
// Engine instances are built by [Builder] and are immutable afterwards.
type Engine struct {
	config      Config
	jwt         *jwt.Manager
	cookies     *cookieCodec
	refresh     RefreshTokenStore
	credentials CredentialStore
	hasher      *password.Argon2
	perms       *permission.Engine
	gate        *appstate.Gate
	routes      *RouteRegistry
	pipeline    *Pipeline
	limiter     *rate.Limiter
	flows       flows.Deps
	validator   Validator
	audit       *audit.Dispatcher
	metrics     *Metrics
	log         zerolog.Logger
	now         func() time.Time
}

// ServeHTTP runs the request through the assembled pipeline.
func (e *Engine) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	e.pipeline.ServeHTTP(w, r)
}

// Routes returns the frozen route registry.
func (e *Engine) Routes() *RouteRegistry {
	return e.routes
}

func (e *Engine) Pipeline() *Pipeline {
	return e.pipeline
}

// Config returns a copy of the configuration the Engine was built with.
func (e *Engine) Config() Config {
	return cloneConfig(e.config)
}

// Close flushes pending audit events.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped reports audit events discarded due to backpressure.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot describes the metricssnapshot operation and its observable behavior.
//
// MetricsSnapshot returns empty maps when metrics are disabled.
// MetricsSnapshot does not mutate shared global state and can be used concurrently.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

// RoleCacheLen reports the number of principals held in the role cache.
func (e *Engine) RoleCacheLen() int {
	if e == nil || e.perms == nil {
		return 0
	}
	return e.perms.CacheLen()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) warn(msg string, err error) {
	e.log.Warn().Err(err).Msg(msg)
}

// renderError writes err as an ErrorResponse. 5xx errors are logged with
// their cause.
func (e *Engine) renderError(rc *RequestContext, err error) {
	resp := NewErrorResponse(err, rc.TraceID, e.config.Environment != EnvironmentProduction, e.now())
	if resp.Status >= http.StatusInternalServerError {
		logging.Ctx(rc.Request.Context()).Error().Err(err).
			Str("use_case", rc.UseCase).
			Str("code", resp.Code).
			Msg("goGate: request failed")
	}
	WriteErrorResponse(rc.Writer, resp)
}

func (e *Engine) observeRequest(rc *RequestContext, status int, elapsed time.Duration) {
	e.metrics.Observe(MetricRequestLatency, elapsed)
	logging.Ctx(rc.Request.Context()).Debug().
		Str("method", rc.Request.Method).
		Str("use_case", rc.UseCase).
		Int("status", status).
		Dur("elapsed", elapsed).
		Msg("request complete")
}
