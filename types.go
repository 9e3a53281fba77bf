package goGate

import (
	"time"

	"github.com/MrEthical07/goGate/appstate"
	"github.com/MrEthical07/goGate/internal/flows"
	"github.com/MrEthical07/goGate/jwt"
	"github.com/MrEthical07/goGate/permission"
	"github.com/MrEthical07/goGate/validation"
)

// Principal is the identity snapshot carried by access and refresh tokens.
type Principal = jwt.Principal

// AuthorizationDecision is the outcome of the authorize step, returned on
// grant and denial alike.
type AuthorizationDecision = permission.Decision

// RefreshTokenStore persists refresh-token records keyed by token id.
// Implementations: session.RedisStore, session.PostgresStore,
// session.MemoryStore.
type RefreshTokenStore = flows.RefreshTokenStore

// CredentialStore reads and writes password hashes for the password routes.
type CredentialStore = flows.CredentialStore

// ErrCredentialNotFound must be returned by a CredentialStore for unknown
// principals.
var ErrCredentialNotFound = flows.ErrCredentialNotFound

// RoleStore lists the roles held by a principal.
type RoleStore = permission.RoleStore

// AppStateStore persists the application state schedule.
type AppStateStore = appstate.Store

// Validator is the request validation collaborator.
type Validator = validation.Validator

const (
	// RolePublic in a route's roles skips authentication and authorization.
	RolePublic = permission.RolePublic
	// RoleAuthenticated grants any authenticated principal.
	RoleAuthenticated = permission.RoleAuthenticated
)

// Session is the verified access token attached to a request.
type Session struct {
	Principal Principal
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Grant is a minted token set. The refresh token and CSRF token travel in the
// cookie and response header, so they are left out of JSON bodies.
type Grant struct {
	AccessToken      string    `json:"accessToken"`
	AccessExpiresAt  time.Time `json:"accessExpiresAt"`
	RefreshToken     string    `json:"-"`
	RefreshExpiresAt time.Time `json:"-"`
	CSRFToken        string    `json:"-"`
	Principal        Principal `json:"principal"`
}

// RefreshToken is a signed refresh JWT with its id and expiry.
type RefreshToken struct {
	Value     string
	ID        string
	ExpiresAt time.Time
}

func grantFromFlow(g *flows.Grant) *Grant {
	if g == nil {
		return nil
	}
	return &Grant{
		AccessToken:      g.AccessToken,
		AccessExpiresAt:  g.AccessExpiresAt,
		RefreshToken:     g.RefreshToken,
		RefreshExpiresAt: g.RefreshExpiresAt,
		CSRFToken:        g.CSRFToken,
		Principal:        g.Principal,
	}
}
