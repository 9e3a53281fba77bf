// Package goGate is the request-processing core of an HTTP backend: every
// request passes an assembled pipeline that resolves its route, authenticates
// a short-lived access token, authorizes the principal's roles against the
// route and checks the scheduled application state before the handler runs.
//
// Build an [Engine] with [Builder]; the Engine is an http.Handler and also
// exposes the token operations directly (Login, Refresh, Logout,
// ChangePassword, ResetPassword).
//
// # Architecture boundaries
//
// goGate is the public surface: [Engine], [Builder], [Config], [RequestContext],
// [RouteRegistry], [Pipeline] and the [Error] taxonomy. Token signing lives in
// jwt, refresh records in session, roles in permission, the schedule in
// appstate. Flow orchestration, audit dispatch, throttling and caching live
// under internal/. Subpackages never import goGate; the root maps their errors
// into [*Error].
//
// # Refresh rotation
//
// A refresh credential is stored under a random token id. Each successful
// refresh overwrites the record at the same id with a new token, a new CSRF
// token and a new expiry, so a previously issued refresh token stops matching
// the moment it is rotated. Concurrent rotations of one id are last-write-wins.
package goGate
