package goGate

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/MrEthical07/goGate/jwt"
	"github.com/MrEthical07/goGate/permission"
)

// IssueAccessToken signs an access token for p. A non-positive ttl uses
// JWT.AccessTTL.
func (e *Engine) IssueAccessToken(p Principal, ttl time.Duration) (string, error) {
	if p.ID == "" {
		return "", newError(ErrInvalidPrincipal, nil, nil)
	}
	token, _, err := e.jwt.CreateAccess(p, ttl)
	if err != nil {
		return "", newError(ErrInternal, err, nil)
	}
	e.metricInc(MetricAccessIssued)
	return token, nil
}

// VerifyAccessToken checks the signature, expiry and purpose of token.
func (e *Engine) VerifyAccessToken(token string) (*Session, error) {
	claims, err := e.jwt.ParseAccess(token)
	if err != nil {
		e.metricInc(MetricAccessVerifyFailure)
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, newError(ErrAccessTokenExpired, err, nil)
		}
		return nil, newError(ErrInvalidAccessToken, err, nil)
	}
	if claims.Principal == nil || claims.Principal.ID == "" {
		e.metricInc(MetricAccessVerifyFailure)
		return nil, newError(ErrInvalidAccessToken, nil, nil)
	}

	s := &Session{Principal: *claims.Principal}
	if claims.IssuedAt != nil {
		s.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		s.ExpiresAt = claims.ExpiresAt.Time
	}
	return s, nil
}

// Authenticate describes the authenticate operation and its observable behavior.
//
// Authenticate parses an Authorization header value of the form
// "Bearer <token>" and verifies the token. A missing header, a different
// scheme, an invalid token and an expired token each fail with their own
// AuthenticationFailure code.
func (e *Engine) Authenticate(header string) (*Session, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		e.metricInc(MetricAccessVerifyFailure)
		return nil, newError(ErrMissingAuthorization, nil, nil)
	}
	scheme, token, ok := strings.Cut(header, " ")
	token = strings.TrimSpace(token)
	if !ok || !strings.EqualFold(scheme, "Bearer") || token == "" {
		e.metricInc(MetricAccessVerifyFailure)
		return nil, newError(ErrInvalidAuthScheme, nil, nil)
	}
	return e.VerifyAccessToken(token)
}

// Authorize decides whether principalID may run useCase. The decision is
// returned on grant and denial alike; a denial is not an error. A use case
// without role requirements fails with ErrUseCaseNotConfigured.
func (e *Engine) Authorize(ctx context.Context, useCase, principalID string) (AuthorizationDecision, error) {
	d, err := e.perms.Authorize(ctx, NormalizePath(useCase), principalID)
	if err != nil {
		if errors.Is(err, permission.ErrUseCaseNotConfigured) {
			return d, newError(ErrUseCaseNotConfigured, err, map[string]any{"useCase": d.UseCase})
		}
		return d, newError(ErrInternal, err, nil)
	}
	if d.Authorized {
		e.metricInc(MetricAuthzGranted)
	} else {
		e.metricInc(MetricAuthzDenied)
	}
	e.emitAudit(ctx, AuditEvent{
		Type:        authzEventType(d.Authorized),
		PrincipalID: principalID,
		UseCase:     d.UseCase,
		Success:     d.Authorized,
	})
	return d, nil
}

func authzEventType(granted bool) string {
	if granted {
		return AuditAuthorizationGranted
	}
	return AuditAuthorizationDenied
}

// Roles returns the roles of principalID through the role cache.
func (e *Engine) Roles(ctx context.Context, principalID string) ([]string, error) {
	roles, err := e.perms.Roles(ctx, principalID)
	if err != nil {
		return nil, newError(ErrInternal, err, nil)
	}
	return roles, nil
}

// GrantRole assigns role through the role store and drops the cached roles.
func (e *Engine) GrantRole(ctx context.Context, principalID, role string) error {
	if err := e.perms.Grant(ctx, principalID, role); err != nil {
		return roleWriteError(err)
	}
	return nil
}

// RevokeRole removes role through the role store and drops the cached roles.
func (e *Engine) RevokeRole(ctx context.Context, principalID, role string) error {
	if err := e.perms.Revoke(ctx, principalID, role); err != nil {
		return roleWriteError(err)
	}
	return nil
}

// InvalidateRoles drops the cached roles of principalID.
func (e *Engine) InvalidateRoles(principalID string) {
	e.perms.Invalidate(principalID)
}

func roleWriteError(err error) error {
	switch {
	case errors.Is(err, permission.ErrUnknownRole):
		e := newError(ErrValidation, err, nil)
		e.Message = err.Error()
		return e
	case errors.Is(err, permission.ErrReadOnlyStore):
		return newError(ErrConfiguration, err, nil)
	}
	return newError(ErrInternal, err, nil)
}
