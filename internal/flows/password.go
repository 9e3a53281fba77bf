package flows

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/goGate/internal/rate"
)

// PasswordFailureKind classifies password change and reset failures.
type PasswordFailureKind int

const (
	PasswordFailureNone PasswordFailureKind = iota
	PasswordFailureInvalidToken
	PasswordFailureRateLimited
	PasswordFailureUnknownPrincipal
	PasswordFailureWrongPassword
	PasswordFailurePolicy
	PasswordFailureStore
	PasswordFailureRevoke
)

// ErrCredentialNotFound is returned by a CredentialStore for unknown ids.
var ErrCredentialNotFound = errors.New("credential not found")

// CredentialStore reads and writes password hashes.
type CredentialStore interface {
	PasswordHash(ctx context.Context, principalID string) (string, error)
	UpdatePasswordHash(ctx context.Context, principalID, hash string) error
}

type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(password, encodedHash string) (bool, error)
}

// ResetToken is a verified password reset token.
type ResetToken struct {
	Identity string
	TokenID  string
	// Remaining is how long the token would still verify.
	Remaining time.Duration
}

// PasswordDeps captures password flow dependencies.
type PasswordDeps struct {
	Credentials     CredentialStore
	Hasher          PasswordHasher
	Store           RefreshTokenStore
	ParseResetToken func(token string) (ResetToken, error)
	CheckReset      func(ctx context.Context, identity string) error
	IsRateLimited   func(error) bool
	// SpendReset marks a reset token id as used. It fails with
	// rate.ErrAlreadySpent on the second call for the same id.
	SpendReset func(ctx context.Context, tokenID string, ttl time.Duration) error
}

type PasswordResult struct {
	Failure     PasswordFailureKind
	Err         error
	PrincipalID string
}

// RunChangePassword verifies current against the stored hash, stores the hash
// of next and revokes every refresh credential of the principal.
func RunChangePassword(ctx context.Context, principalID, current, next string, deps PasswordDeps) PasswordResult {
	stored, err := deps.Credentials.PasswordHash(ctx, principalID)
	if err != nil {
		if errors.Is(err, ErrCredentialNotFound) {
			return PasswordResult{Failure: PasswordFailureUnknownPrincipal, Err: err, PrincipalID: principalID}
		}
		return PasswordResult{Failure: PasswordFailureStore, Err: err, PrincipalID: principalID}
	}

	ok, err := deps.Hasher.Verify(current, stored)
	if err != nil || !ok {
		return PasswordResult{Failure: PasswordFailureWrongPassword, Err: err, PrincipalID: principalID}
	}

	return replacePassword(ctx, principalID, next, deps)
}

// RunResetPassword redeems a reset token for a new password. The token is
// spent after the new password passes policy and before its hash is written,
// so a failed write still consumes it.
func RunResetPassword(ctx context.Context, resetToken, next string, deps PasswordDeps) PasswordResult {
	token, err := deps.ParseResetToken(resetToken)
	if err != nil || token.Identity == "" {
		return PasswordResult{Failure: PasswordFailureInvalidToken, Err: err}
	}
	principalID := token.Identity

	if deps.CheckReset != nil {
		if err := deps.CheckReset(ctx, principalID); err != nil {
			if deps.IsRateLimited != nil && deps.IsRateLimited(err) {
				return PasswordResult{Failure: PasswordFailureRateLimited, Err: err, PrincipalID: principalID}
			}
			return PasswordResult{Failure: PasswordFailureStore, Err: err, PrincipalID: principalID}
		}
	}

	if _, err := deps.Credentials.PasswordHash(ctx, principalID); err != nil {
		if errors.Is(err, ErrCredentialNotFound) {
			return PasswordResult{Failure: PasswordFailureInvalidToken, Err: err, PrincipalID: principalID}
		}
		return PasswordResult{Failure: PasswordFailureStore, Err: err, PrincipalID: principalID}
	}

	hash, err := deps.Hasher.Hash(next)
	if err != nil {
		return PasswordResult{Failure: PasswordFailurePolicy, Err: err, PrincipalID: principalID}
	}

	if deps.SpendReset != nil {
		if err := deps.SpendReset(ctx, token.TokenID, token.Remaining); err != nil {
			if errors.Is(err, rate.ErrAlreadySpent) {
				return PasswordResult{Failure: PasswordFailureInvalidToken, Err: err, PrincipalID: principalID}
			}
			return PasswordResult{Failure: PasswordFailureStore, Err: err, PrincipalID: principalID}
		}
	}

	return storePassword(ctx, principalID, hash, deps)
}

func replacePassword(ctx context.Context, principalID, next string, deps PasswordDeps) PasswordResult {
	hash, err := deps.Hasher.Hash(next)
	if err != nil {
		return PasswordResult{Failure: PasswordFailurePolicy, Err: err, PrincipalID: principalID}
	}
	return storePassword(ctx, principalID, hash, deps)
}

func storePassword(ctx context.Context, principalID, hash string, deps PasswordDeps) PasswordResult {
	ctx = persistCtx(ctx)
	if err := deps.Credentials.UpdatePasswordHash(ctx, principalID, hash); err != nil {
		return PasswordResult{Failure: PasswordFailureStore, Err: err, PrincipalID: principalID}
	}
	if err := deps.Store.DeleteByPrincipal(ctx, principalID); err != nil {
		return PasswordResult{Failure: PasswordFailureRevoke, Err: err, PrincipalID: principalID}
	}
	return PasswordResult{PrincipalID: principalID}
}
