package flows

import (
	"context"
	"crypto/subtle"
	"errors"

	"github.com/MrEthical07/goGate/internal/rate"
	"github.com/MrEthical07/goGate/session"
)

// RefreshFailureKind classifies refresh flow failures for root-level mapping.
type RefreshFailureKind int

const (
	RefreshFailureNone RefreshFailureKind = iota
	RefreshFailureMissingToken
	RefreshFailureMissingCSRF
	RefreshFailureDecode
	RefreshFailureRateLimited
	RefreshFailureMismatch
	RefreshFailureCSRF
	RefreshFailureStore
	RefreshFailureIssue
)

// RefreshResult carries either the rotated grant or failure metadata.
type RefreshResult struct {
	Failure     RefreshFailureKind
	Err         error
	TokenID     string
	PrincipalID string
	Grant       *Grant
}

type RefreshThrottle interface {
	CheckRefresh(ctx context.Context, tokenID string) error
}

// RefreshDeps captures refresh flow dependencies.
type RefreshDeps struct {
	Tokens   TokenSigner
	Cookies  CookieCodec
	Store    RefreshTokenStore
	Throttle RefreshThrottle
	NewCSRF  func() (string, error)
	Warn     func(msg string, err error)
}

// RunRefresh validates a presented refresh cookie and CSRF token and rotates
// the credential in place under the same token id.
//
// Check order: cookie present, CSRF present, cookie and JWT valid, throttle,
// stored value matches, stored CSRF matches. The first failing check decides
// the result.
func RunRefresh(ctx context.Context, cookieValue, csrfHeader string, deps RefreshDeps) RefreshResult {
	if cookieValue == "" {
		return RefreshResult{Failure: RefreshFailureMissingToken}
	}
	if csrfHeader == "" {
		return RefreshResult{Failure: RefreshFailureMissingCSRF}
	}

	token, err := deps.Cookies.Decode(cookieValue)
	if err != nil {
		return RefreshResult{Failure: RefreshFailureDecode, Err: err}
	}
	claims, err := deps.Tokens.ParseRefresh(token)
	if err != nil {
		return RefreshResult{Failure: RefreshFailureDecode, Err: err}
	}
	tokenID := claims.ID
	principalID := claims.Principal.ID

	if deps.Throttle != nil {
		if err := deps.Throttle.CheckRefresh(ctx, tokenID); err != nil {
			if errors.Is(err, rate.ErrRateLimited) {
				return RefreshResult{
					Failure:     RefreshFailureRateLimited,
					Err:         err,
					TokenID:     tokenID,
					PrincipalID: principalID,
				}
			}
			// a throttle outage must not lock users out
			if deps.Warn != nil {
				deps.Warn("goGate: refresh throttle unavailable", err)
			}
		}
	}

	rec, err := deps.Store.FindByID(ctx, tokenID)
	if err != nil {
		if errors.Is(err, session.ErrRecordNotFound) {
			return RefreshResult{
				Failure:     RefreshFailureMismatch,
				Err:         err,
				TokenID:     tokenID,
				PrincipalID: principalID,
			}
		}
		return RefreshResult{
			Failure:     RefreshFailureStore,
			Err:         err,
			TokenID:     tokenID,
			PrincipalID: principalID,
		}
	}

	if !constantTimeEqual(rec.Value, token) {
		return RefreshResult{
			Failure:     RefreshFailureMismatch,
			TokenID:     tokenID,
			PrincipalID: principalID,
		}
	}
	if !constantTimeEqual(rec.CSRF, csrfHeader) {
		return RefreshResult{
			Failure:     RefreshFailureCSRF,
			TokenID:     tokenID,
			PrincipalID: principalID,
		}
	}

	grant, err := mint(tokenID, *claims.Principal, deps.Tokens, deps.Cookies, deps.NewCSRF)
	if err != nil {
		return RefreshResult{
			Failure:     RefreshFailureIssue,
			Err:         err,
			TokenID:     tokenID,
			PrincipalID: principalID,
		}
	}

	if err := deps.Store.UpsertByID(persistCtx(ctx), grant.record()); err != nil {
		return RefreshResult{
			Failure:     RefreshFailureStore,
			Err:         err,
			TokenID:     tokenID,
			PrincipalID: principalID,
		}
	}

	return RefreshResult{
		TokenID:     tokenID,
		PrincipalID: principalID,
		Grant:       grant,
	}
}

func constantTimeEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
