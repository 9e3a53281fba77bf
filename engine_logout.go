package goGate

import (
	"context"

	"github.com/MrEthical07/goGate/internal/flows"
)

// Logout revokes the refresh credential in cookieValue, or every credential
// of its principal when global is set. The token is read without
// verification, so an expired but well-formed cookie still logs out. An empty
// or undecodable cookie is a successful no-op.
func (e *Engine) Logout(ctx context.Context, cookieValue string, global bool) error {
	res := flows.RunLogout(ctx, cookieValue, global, e.flows.Logout)
	if res.Skipped {
		return nil
	}

	typ, metric := AuditLogout, MetricLogout
	if global {
		typ, metric = AuditLogoutAll, MetricLogoutAll
	}
	if res.Err != nil {
		err := newError(ErrInternal, res.Err, nil)
		e.auditError(ctx, typ, res.PrincipalID, res.TokenID, err)
		return err
	}

	e.metricInc(metric)
	e.emitAudit(ctx, AuditEvent{
		Type:        typ,
		PrincipalID: res.PrincipalID,
		TokenID:     res.TokenID,
		Success:     true,
	})
	return nil
}

// RevokeAll deletes every refresh credential of principalID.
func (e *Engine) RevokeAll(ctx context.Context, principalID string) error {
	if err := flows.RunRevokeAll(ctx, principalID, e.flows.Logout); err != nil {
		return newError(ErrInternal, err, nil)
	}
	e.metricInc(MetricLogoutAll)
	e.emitAudit(ctx, AuditEvent{Type: AuditLogoutAll, PrincipalID: principalID, Success: true})
	return nil
}

func (e *Engine) logoutRoute(global bool) HandlerFunc {
	return func(rc *RequestContext) (any, error) {
		r := rc.Request
		// the cookie is cleared even when revocation fails
		e.clearRefreshCookie(rc.Writer)
		if err := e.Logout(r.Context(), e.refreshCookieValue(r), global); err != nil {
			e.warn("goGate: logout revocation failed", err)
			return nil, err
		}
		return map[string]bool{"loggedOut": true}, nil
	}
}
