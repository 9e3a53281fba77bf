package goGate

import (
	"context"
	"errors"

	"github.com/MrEthical07/goGate/internal/flows"
	"github.com/MrEthical07/goGate/internal/rate"
)

// IssueResetToken signs a password reset token for identity, the principal
// id, valid for JWT.ResetTTL.
func (e *Engine) IssueResetToken(identity string) (string, error) {
	if identity == "" {
		return "", newError(ErrInvalidPrincipal, nil, nil)
	}
	token, err := e.jwt.CreateSubject(identity, 0)
	if err != nil {
		return "", newError(ErrInternal, err, nil)
	}
	return token, nil
}

// VerifyResetToken returns the identity signed into token.
func (e *Engine) VerifyResetToken(token string) (string, error) {
	identity, err := e.jwt.ParseSubject(token)
	if err != nil {
		return "", newError(ErrInvalidResetToken, err, nil)
	}
	return identity, nil
}

func (e *Engine) parseResetToken(token string) (flows.ResetToken, error) {
	claims, err := e.jwt.ParseReset(token)
	if err != nil {
		return flows.ResetToken{}, err
	}
	return flows.ResetToken{
		Identity:  claims.Subject,
		TokenID:   claims.ID,
		Remaining: claims.ExpiresAt.Sub(e.now()) + e.config.JWT.Leeway,
	}, nil
}

// HashPassword hashes plaintext with the configured Argon2id parameters.
func (e *Engine) HashPassword(plaintext string) (string, error) {
	hash, err := e.hasher.Hash(plaintext)
	if err != nil {
		return "", classify(err)
	}
	return hash, nil
}

// ChangePassword describes the changepassword operation and its observable behavior.
//
// ChangePassword verifies current against the stored hash, stores the hash of
// next and revokes every refresh credential of principalID, including the
// caller's own. It requires a CredentialStore.
func (e *Engine) ChangePassword(ctx context.Context, principalID, current, next string) error {
	if e.credentials == nil {
		return newError(ErrCredentialsNotConfigured, nil, nil)
	}
	res := flows.RunChangePassword(ctx, principalID, current, next, e.flows.Password)
	return e.passwordOutcome(ctx, AuditPasswordChanged, MetricPasswordChanged, res)
}

// ResetPassword redeems resetToken for a new password and revokes every
// refresh credential of its principal. Each token redeems once; a replay
// fails with ErrInvalidResetToken. Without Redis the spent set is local to
// this Engine.
func (e *Engine) ResetPassword(ctx context.Context, resetToken, next string) error {
	if e.credentials == nil {
		return newError(ErrCredentialsNotConfigured, nil, nil)
	}
	res := flows.RunResetPassword(ctx, resetToken, next, e.flows.Password)
	return e.passwordOutcome(ctx, AuditPasswordReset, MetricPasswordReset, res)
}

func (e *Engine) passwordOutcome(ctx context.Context, typ string, success MetricID, res flows.PasswordResult) error {
	var err error
	switch res.Failure {
	case flows.PasswordFailureNone:
		e.metricInc(success)
		e.emitAudit(ctx, AuditEvent{Type: typ, PrincipalID: res.PrincipalID, Success: true})
		return nil
	case flows.PasswordFailureInvalidToken:
		err = newError(ErrInvalidResetToken, res.Err, nil)
	case flows.PasswordFailureRateLimited:
		err = newError(ErrPasswordResetRateLimited, res.Err, nil)
	case flows.PasswordFailureUnknownPrincipal, flows.PasswordFailureWrongPassword:
		err = newError(ErrInvalidCredentials, res.Err, nil)
	case flows.PasswordFailurePolicy:
		err = classify(res.Err)
	case flows.PasswordFailureRevoke:
		// the new hash is stored; only the purge failed
		e.warn("goGate: refresh purge after password change failed", res.Err)
		err = newError(ErrInternal, res.Err, nil)
	default:
		err = newError(ErrInternal, res.Err, nil)
	}
	e.metricInc(MetricPasswordFailure)
	e.auditError(ctx, typ, res.PrincipalID, "", err)
	return err
}

func isResetRateLimited(err error) bool {
	return errors.Is(err, rate.ErrRateLimited)
}

type changePasswordInput struct {
	Current string `json:"current" validate:"required"`
	Next    string `json:"next" validate:"required"`
}

type resetPasswordInput struct {
	Token string `json:"token" validate:"required"`
	Next  string `json:"next" validate:"required"`
}

func (e *Engine) changePasswordRoute(rc *RequestContext) (any, error) {
	p, ok := rc.Principal()
	if !ok {
		return nil, newError(ErrMissingAuthorization, nil, nil)
	}
	var in changePasswordInput
	if err := rc.Bind(&in); err != nil {
		return nil, err
	}
	if err := e.ChangePassword(rc.Request.Context(), p.ID, in.Current, in.Next); err != nil {
		return nil, err
	}
	e.clearRefreshCookie(rc.Writer)
	return map[string]bool{"passwordChanged": true}, nil
}

func (e *Engine) resetPasswordRoute(rc *RequestContext) (any, error) {
	var in resetPasswordInput
	if err := rc.Bind(&in); err != nil {
		return nil, err
	}
	if err := e.ResetPassword(rc.Request.Context(), in.Token, in.Next); err != nil {
		return nil, err
	}
	return map[string]bool{"passwordReset": true}, nil
}
