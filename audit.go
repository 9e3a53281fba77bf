package goGate

import (
	"context"

	"github.com/MrEthical07/goGate/internal/audit"
	"github.com/MrEthical07/goGate/logging"
)

// AuditEvent is one security-relevant fact emitted by the Engine.
type AuditEvent = audit.Event

// AuditSink receives audit events from the dispatcher goroutine.
type AuditSink = audit.Sink

type (
	NoOpSink       = audit.NoOpSink
	ChannelSink    = audit.ChannelSink
	JSONWriterSink = audit.JSONWriterSink
	LogSink        = audit.LogSink
)

var (
	NewChannelSink    = audit.NewChannelSink
	NewJSONWriterSink = audit.NewJSONWriterSink
)

// Audit event types.
const (
	AuditLogin                = "login"
	AuditRefreshSuccess       = "refresh_success"
	AuditRefreshFailure       = "refresh_failure"
	AuditLogout               = "logout"
	AuditLogoutAll            = "logout_all"
	AuditPasswordChanged      = "password_changed"
	AuditPasswordReset        = "password_reset"
	AuditAuthorizationGranted = "authorization_granted"
	AuditAuthorizationDenied  = "authorization_denied"
	AuditAppStateScheduled    = "app_state_scheduled"
	AuditAppStateBlocked      = "app_state_blocked"
)

func (e *Engine) emitAudit(ctx context.Context, ev AuditEvent) {
	if e.audit == nil {
		return
	}
	ev.Timestamp = e.now().UTC()
	if ev.IP == "" {
		ev.IP = clientIPFromContext(ctx)
	}
	if ev.TraceID == "" {
		ev.TraceID = logging.RequestIDFromContext(ctx)
	}
	e.audit.Emit(ctx, ev)
}

func (e *Engine) auditError(ctx context.Context, typ string, principalID, tokenID string, err error) {
	ev := AuditEvent{Type: typ, PrincipalID: principalID, TokenID: tokenID, Success: err == nil}
	if err != nil {
		ev.Error = errorCode(err)
	}
	e.emitAudit(ctx, ev)
}

func errorCode(err error) string {
	if ge := classify(err); ge != nil {
		return ge.Code
	}
	return ""
}

func newAuditDispatcher(cfg AuditConfig, sink AuditSink) *audit.Dispatcher {
	return audit.NewDispatcher(audit.Config{
		Enabled:    cfg.Enabled,
		BufferSize: cfg.BufferSize,
		DropIfFull: cfg.DropIfFull,
		Retain:     cfg.RetainTypes,
		OnDrop: func(ev audit.Event) {
			logging.Warn().Str("event", ev.Type).Msg("goGate: audit event dropped")
		},
	}, sink)
}
