package internaldefs

import (
	goGate "github.com/MrEthical07/goGate"
)

// CounterDef names one counter in every exporter.
type CounterDef struct {
	ID   goGate.MetricID
	Name string
	Help string
}

// HistogramDef names one latency histogram in every exporter.
type HistogramDef struct {
	ID   goGate.MetricID
	Name string
	Help string
}

var CounterDefs = []CounterDef{
	{ID: goGate.MetricAccessIssued, Name: "gogate_access_issued_total", Help: "Access tokens issued."},
	{ID: goGate.MetricAccessVerifyFailure, Name: "gogate_access_verify_failure_total", Help: "Bearer tokens rejected by authentication."},
	{ID: goGate.MetricLogin, Name: "gogate_login_total", Help: "Token pairs issued by login."},
	{ID: goGate.MetricRefreshSuccess, Name: "gogate_refresh_success_total", Help: "Successful refresh rotations."},
	{ID: goGate.MetricRefreshFailure, Name: "gogate_refresh_failure_total", Help: "Failed refresh attempts of any cause."},
	{ID: goGate.MetricRefreshMismatch, Name: "gogate_refresh_mismatch_total", Help: "Refresh tokens absent from the store or differing from the stored value."},
	{ID: goGate.MetricRefreshCSRFRejected, Name: "gogate_refresh_csrf_rejected_total", Help: "Refresh attempts rejected for a CSRF mismatch."},
	{ID: goGate.MetricRefreshRateLimited, Name: "gogate_refresh_rate_limited_total", Help: "Refresh attempts rejected by the per-token throttle."},
	{ID: goGate.MetricLogout, Name: "gogate_logout_total", Help: "Single refresh-token revocations."},
	{ID: goGate.MetricLogoutAll, Name: "gogate_logout_all_total", Help: "Principal-wide refresh-token revocations."},
	{ID: goGate.MetricPasswordChanged, Name: "gogate_password_changed_total", Help: "Successful password changes."},
	{ID: goGate.MetricPasswordReset, Name: "gogate_password_reset_total", Help: "Successful password resets."},
	{ID: goGate.MetricPasswordFailure, Name: "gogate_password_failure_total", Help: "Failed password change or reset attempts."},
	{ID: goGate.MetricAuthzGranted, Name: "gogate_authz_granted_total", Help: "Granted authorization decisions."},
	{ID: goGate.MetricAuthzDenied, Name: "gogate_authz_denied_total", Help: "Denied authorization decisions."},
	{ID: goGate.MetricRoleCacheHit, Name: "gogate_role_cache_hit_total", Help: "Role lookups served from cache."},
	{ID: goGate.MetricRoleCacheMiss, Name: "gogate_role_cache_miss_total", Help: "Role lookups fetched from the role store."},
	{ID: goGate.MetricAppStateBlocked, Name: "gogate_app_state_blocked_total", Help: "Requests blocked by the application state gate."},
	{ID: goGate.MetricAppStateScheduled, Name: "gogate_app_state_scheduled_total", Help: "Application state schedule writes."},
	{ID: goGate.MetricRouteNotFound, Name: "gogate_route_not_found_total", Help: "Requests for unregistered paths."},
}

var HistogramDefs = []HistogramDef{
	{ID: goGate.MetricRequestLatency, Name: "gogate_request_latency_seconds", Help: "Pipeline latency from context build to response."},
}

// HistogramBounds are the upper bounds in seconds matching the in-process
// millisecond buckets.
var HistogramBounds = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5}

// HistogramBoundSuffix names one OTel gauge per bucket, ending with +Inf.
var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// NormalizeBuckets pads or truncates raw to the fixed bucket count.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	copy(out[:], raw)
	return out
}

// CumulativeBuckets converts per-bucket counts into running totals, as both
// exposition formats expect.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i, v := range raw {
		running += v
		out[i] = running
	}
	return out
}
