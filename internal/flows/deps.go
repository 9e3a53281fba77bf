package flows

import (
	"context"
	"time"

	"github.com/MrEthical07/goGate/jwt"
	"github.com/MrEthical07/goGate/session"
)

// RefreshTokenStore persists refresh records keyed by token id.
type RefreshTokenStore interface {
	FindByID(ctx context.Context, id string) (*session.Record, error)
	UpsertByID(ctx context.Context, rec *session.Record) error
	DeleteByID(ctx context.Context, id string) error
	DeleteByPrincipal(ctx context.Context, principalID string) error
}

// TokenSigner is the subset of [jwt.Manager] the flows need.
type TokenSigner interface {
	CreateAccess(p jwt.Principal, ttl time.Duration) (string, time.Time, error)
	CreateRefresh(tokenID string, p jwt.Principal) (string, time.Time, error)
	ParseRefresh(token string) (*jwt.Claims, error)
	DecodeUnverified(token string) (*jwt.Claims, error)
}

// CookieCodec seals the refresh JWT into the cookie value and back.
type CookieCodec interface {
	Encode(token string) (string, error)
	Decode(value string) (string, error)
}

// Deps groups flow dependency sets. The root engine builds this once.
type Deps struct {
	Login    LoginDeps
	Refresh  RefreshDeps
	Logout   LogoutDeps
	Password PasswordDeps
}

// Grant is a freshly minted token set.
type Grant struct {
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
	TokenID          string
	CSRFToken        string
	Principal        jwt.Principal

	rawRefresh string
}

// Principal is the identity snapshot carried in tokens.
type Principal = jwt.Principal

// persistCtx detaches store writes from client cancellation.
func persistCtx(ctx context.Context) context.Context {
	return context.WithoutCancel(ctx)
}
