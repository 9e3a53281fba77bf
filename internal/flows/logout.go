package flows

import (
	"context"
)

// LogoutDeps captures logout flow dependencies.
type LogoutDeps struct {
	Tokens  TokenSigner
	Cookies CookieCodec
	Store   RefreshTokenStore
}

type LogoutResult struct {
	// Skipped is set when the cookie was empty or undecodable.
	Skipped     bool
	TokenID     string
	PrincipalID string
	Err         error
}

// RunLogout revokes the refresh credential named by cookieValue, or every
// credential of its principal when global is set. The token is decoded without
// verification so a nearly expired cookie can still log out.
func RunLogout(ctx context.Context, cookieValue string, global bool, deps LogoutDeps) LogoutResult {
	if cookieValue == "" {
		return LogoutResult{Skipped: true}
	}
	token, err := deps.Cookies.Decode(cookieValue)
	if err != nil {
		return LogoutResult{Skipped: true}
	}
	claims, err := deps.Tokens.DecodeUnverified(token)
	if err != nil || claims.ID == "" {
		return LogoutResult{Skipped: true}
	}

	res := LogoutResult{TokenID: claims.ID}
	if claims.Principal != nil {
		res.PrincipalID = claims.Principal.ID
	}

	ctx = persistCtx(ctx)
	if global && res.PrincipalID != "" {
		res.Err = deps.Store.DeleteByPrincipal(ctx, res.PrincipalID)
		return res
	}
	res.Err = deps.Store.DeleteByID(ctx, claims.ID)
	return res
}

// RunRevokeAll deletes every refresh record of principalID.
func RunRevokeAll(ctx context.Context, principalID string, deps LogoutDeps) error {
	return deps.Store.DeleteByPrincipal(persistCtx(ctx), principalID)
}
