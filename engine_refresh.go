package goGate

import (
	"context"
	"net/http"

	"github.com/MrEthical07/goGate/internal/flows"
)

// IssueRefreshToken signs a refresh token for p under a fresh random id. The
// token is not persisted; use Login to issue and store a full grant.
func (e *Engine) IssueRefreshToken(p Principal) (RefreshToken, error) {
	if p.ID == "" {
		return RefreshToken{}, newError(ErrInvalidPrincipal, nil, nil)
	}
	id, err := e.flows.Login.NewTokenID()
	if err != nil {
		return RefreshToken{}, newError(ErrInternal, err, nil)
	}
	value, exp, err := e.jwt.CreateRefresh(id, p)
	if err != nil {
		return RefreshToken{}, newError(ErrInternal, err, nil)
	}
	return RefreshToken{Value: value, ID: id, ExpiresAt: exp}, nil
}

// Login describes the login operation and its observable behavior.
//
// Login issues an access token, a refresh token under a new id and a new CSRF
// token for an already verified principal, and persists the refresh record.
// Credential checks happen before Login and are the caller's concern.
func (e *Engine) Login(ctx context.Context, p Principal) (*Grant, error) {
	res := flows.RunLogin(ctx, p, e.flows.Login)
	switch res.Failure {
	case flows.LoginFailureNone:
	case flows.LoginFailureInvalidPrincipal:
		return nil, newError(ErrInvalidPrincipal, nil, nil)
	default:
		return nil, newError(ErrInternal, res.Err, nil)
	}

	e.metricInc(MetricLogin)
	e.metricInc(MetricAccessIssued)
	e.emitAudit(ctx, AuditEvent{
		Type:        AuditLogin,
		PrincipalID: p.ID,
		TokenID:     res.Grant.TokenID,
		Success:     true,
	})
	return grantFromFlow(res.Grant), nil
}

// SignIn runs Login and sets the refresh cookie and CSRF header on w. It
// writes nothing else, so the caller still owns the response body.
func (e *Engine) SignIn(w http.ResponseWriter, r *http.Request, p Principal) (*Grant, error) {
	g, err := e.Login(r.Context(), p)
	if err != nil {
		return nil, err
	}
	e.setRefreshCookie(w, g)
	return g, nil
}

// Refresh describes the refresh operation and its observable behavior.
//
// Refresh validates the sealed refresh cookie and CSRF header and rotates the
// credential in place: the same token id receives a new refresh token, a new
// CSRF token and a new expiry. Checks run in a fixed order and the first
// failure decides the error: missing cookie, missing CSRF header, invalid
// token, throttle, stored value mismatch, CSRF mismatch.
func (e *Engine) Refresh(ctx context.Context, cookieValue, csrfHeader string) (*Grant, error) {
	res := flows.RunRefresh(ctx, cookieValue, csrfHeader, e.flows.Refresh)
	if res.Failure != flows.RefreshFailureNone {
		err := e.refreshError(res)
		e.auditError(ctx, AuditRefreshFailure, res.PrincipalID, res.TokenID, err)
		return nil, err
	}

	e.metricInc(MetricRefreshSuccess)
	e.metricInc(MetricAccessIssued)
	e.emitAudit(ctx, AuditEvent{
		Type:        AuditRefreshSuccess,
		PrincipalID: res.PrincipalID,
		TokenID:     res.TokenID,
		Success:     true,
	})
	return grantFromFlow(res.Grant), nil
}

func (e *Engine) refreshError(res flows.RefreshResult) error {
	e.metricInc(MetricRefreshFailure)

	switch res.Failure {
	case flows.RefreshFailureMissingToken:
		return newError(ErrInvalidRefreshToken, nil, nil)
	case flows.RefreshFailureMissingCSRF:
		return newError(ErrMissingCsrfToken, nil, nil)
	case flows.RefreshFailureDecode:
		return newError(ErrInvalidRefreshToken, res.Err, nil)
	case flows.RefreshFailureRateLimited:
		e.metricInc(MetricRefreshRateLimited)
		return newError(ErrRefreshRateLimited, res.Err, nil)
	case flows.RefreshFailureMismatch:
		e.metricInc(MetricRefreshMismatch)
		return newError(ErrRefreshTokenMismatch, res.Err, nil)
	case flows.RefreshFailureCSRF:
		e.metricInc(MetricRefreshCSRFRejected)
		return newError(ErrInvalidCsrfToken, nil, nil)
	default:
		return newError(ErrInternal, res.Err, nil)
	}
}

type tokenResponse struct {
	AccessToken string    `json:"accessToken"`
	Principal   Principal `json:"principal"`
}

// refreshRoute is the default POST /auth/refresh handler.
func (e *Engine) refreshRoute(rc *RequestContext) (any, error) {
	r := rc.Request
	g, err := e.Refresh(r.Context(), e.refreshCookieValue(r), r.Header.Get(e.config.Refresh.CSRFHeader))
	if err != nil {
		return nil, err
	}
	e.setRefreshCookie(rc.Writer, g)
	return tokenResponse{AccessToken: g.AccessToken, Principal: g.Principal}, nil
}
