package flows

import (
	"context"

	"github.com/MrEthical07/goGate/internal"
	"github.com/MrEthical07/goGate/session"
)

// LoginFailureKind classifies login failures.
type LoginFailureKind int

const (
	LoginFailureNone LoginFailureKind = iota
	LoginFailureInvalidPrincipal
	LoginFailureIssue
	LoginFailureStore
)

type LoginResult struct {
	Failure LoginFailureKind
	Err     error
	Grant   *Grant
}

// LoginDeps captures login dependencies.
type LoginDeps struct {
	Tokens     TokenSigner
	Cookies    CookieCodec
	Store      RefreshTokenStore
	NewTokenID func() (string, error)
	NewCSRF    func() (string, error)
}

// RunLogin mints an access token and a new refresh credential for an already
// authenticated principal and persists the refresh record.
func RunLogin(ctx context.Context, p Principal, deps LoginDeps) LoginResult {
	if p.ID == "" {
		return LoginResult{Failure: LoginFailureInvalidPrincipal}
	}

	newID := deps.NewTokenID
	if newID == nil {
		newID = newTokenID
	}
	tokenID, err := newID()
	if err != nil {
		return LoginResult{Failure: LoginFailureIssue, Err: err}
	}

	grant, err := mint(tokenID, p, deps.Tokens, deps.Cookies, deps.NewCSRF)
	if err != nil {
		return LoginResult{Failure: LoginFailureIssue, Err: err}
	}

	if err := deps.Store.UpsertByID(persistCtx(ctx), grant.record()); err != nil {
		return LoginResult{Failure: LoginFailureStore, Err: err}
	}
	return LoginResult{Grant: grant}
}

func newTokenID() (string, error) {
	id, err := internal.NewTokenID()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// mint signs the access and refresh tokens for tokenID and draws a new CSRF
// token. The refresh JWT is kept raw in the grant's record and sealed in
// RefreshToken.
func mint(tokenID string, p Principal, tokens TokenSigner, cookies CookieCodec, newCSRF func() (string, error)) (*Grant, error) {
	access, accessExp, err := tokens.CreateAccess(p, 0)
	if err != nil {
		return nil, err
	}
	refresh, refreshExp, err := tokens.CreateRefresh(tokenID, p)
	if err != nil {
		return nil, err
	}
	sealed, err := cookies.Encode(refresh)
	if err != nil {
		return nil, err
	}
	if newCSRF == nil {
		newCSRF = internal.NewCSRFToken
	}
	csrf, err := newCSRF()
	if err != nil {
		return nil, err
	}

	return &Grant{
		AccessToken:      access,
		AccessExpiresAt:  accessExp,
		RefreshToken:     sealed,
		RefreshExpiresAt: refreshExp,
		TokenID:          tokenID,
		CSRFToken:        csrf,
		Principal:        p,
		rawRefresh:       refresh,
	}, nil
}

func (g *Grant) record() *session.Record {
	return &session.Record{
		ID:          g.TokenID,
		Value:       g.rawRefresh,
		CSRF:        g.CSRFToken,
		PrincipalID: g.Principal.ID,
		Attributes:  g.Principal.Attributes,
		ExpiresAt:   g.RefreshExpiresAt,
	}
}
