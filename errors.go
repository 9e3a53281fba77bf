package goGate

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/MrEthical07/goGate/appstate"
	"github.com/MrEthical07/goGate/password"
	"github.com/MrEthical07/goGate/permission"
	"github.com/MrEthical07/goGate/validation"
)

// ErrorKind groups errors by how the pipeline reports them.
type ErrorKind uint8

const (
	KindInternal ErrorKind = iota
	KindConfiguration
	KindAuthentication
	KindAuthorization
	KindRefreshFlow
	KindAppStateBlocked
	KindValidation
	KindNotFound
	KindMethodNotAllowed
	KindRateLimited
)

var kindNames = [...]string{
	KindInternal:         "Internal",
	KindConfiguration:    "ConfigurationError",
	KindAuthentication:   "AuthenticationFailure",
	KindAuthorization:    "AuthorizationFailure",
	KindRefreshFlow:      "RefreshFlowFailure",
	KindAppStateBlocked:  "AppStateBlocked",
	KindValidation:       "ValidationFailure",
	KindNotFound:         "NotFound",
	KindMethodNotAllowed: "MethodNotAllowed",
	KindRateLimited:      "RateLimited",
}

func (k ErrorKind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "Unknown"
}

// Status maps the kind to an HTTP status code.
func (k ErrorKind) Status() int {
	switch k {
	case KindAuthentication, KindRefreshFlow:
		return http.StatusUnauthorized
	case KindAuthorization:
		return http.StatusForbidden
	case KindAppStateBlocked:
		return http.StatusServiceUnavailable
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindMethodNotAllowed:
		return http.StatusMethodNotAllowed
	case KindRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

var (
	// ErrMissingAuthorization is returned when a protected route has no Authorization header.
	ErrMissingAuthorization = errors.New("authorization header is required")
	// ErrInvalidAuthScheme is returned for Authorization headers not using Bearer.
	ErrInvalidAuthScheme = errors.New("authorization scheme must be Bearer")
	// ErrInvalidAccessToken is returned for malformed, unsigned or wrongly typed access tokens.
	ErrInvalidAccessToken = errors.New("invalid access token")
	// ErrAccessTokenExpired is returned for access tokens past their exp.
	ErrAccessTokenExpired = errors.New("access token expired")

	// ErrInvalidRefreshToken is returned when the refresh cookie is absent or does not verify.
	ErrInvalidRefreshToken = errors.New("invalid refresh token")
	// ErrMissingCsrfToken is returned when a refresh request carries no CSRF header.
	ErrMissingCsrfToken = errors.New("csrf token is required")
	// ErrRefreshTokenMismatch is returned when the presented refresh token is not the one on record.
	ErrRefreshTokenMismatch = errors.New("refresh token does not match")
	// ErrInvalidCsrfToken is returned when the CSRF header differs from the one bound to the token.
	ErrInvalidCsrfToken = errors.New("invalid csrf token")
	// ErrRefreshRateLimited is returned when one refresh token is used too often.
	ErrRefreshRateLimited = errors.New("refresh rate limited")

	// ErrForbidden is returned when the principal holds none of the required roles.
	ErrForbidden = errors.New("forbidden")
	// ErrAppStateBlocked is returned when the current app state does not allow the route.
	ErrAppStateBlocked = errors.New("application state does not allow this request")

	ErrRouteNotFound    = errors.New("route not found")
	ErrMethodNotAllowed = errors.New("method not allowed")

	// ErrValidation is returned for malformed or schema-violating input.
	ErrValidation = errors.New("validation failed")

	// ErrConfiguration is wrapped by every startup configuration error.
	ErrConfiguration = errors.New("configuration error")
	// ErrUseCaseNotConfigured is returned when a use case has no role requirement.
	ErrUseCaseNotConfigured = errors.New("use case roles are not configured")

	// ErrInvalidPrincipal is returned when signing in a principal without id.
	ErrInvalidPrincipal = errors.New("principal id is required")
	// ErrInvalidCredentials is returned when the current password does not verify.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrPasswordPolicy is returned for new passwords outside the policy.
	ErrPasswordPolicy = errors.New("password policy violation")
	// ErrInvalidResetToken is returned for reset tokens that fail to verify.
	ErrInvalidResetToken = errors.New("invalid reset token")
	// ErrPasswordResetRateLimited is returned when one identity resets too often.
	ErrPasswordResetRateLimited = errors.New("password reset rate limited")
	// ErrCredentialsNotConfigured is returned by password operations without a CredentialStore.
	ErrCredentialsNotConfigured = errors.New("credential store not configured")

	// ErrRateLimited is returned by request throttles outside the refresh and
	// reset flows.
	ErrRateLimited = errors.New("too many requests")

	ErrInternal = errors.New("internal error")
)

type sentinelInfo struct {
	kind ErrorKind
	code string
}

var sentinelTable = map[error]sentinelInfo{
	ErrMissingAuthorization:     {KindAuthentication, "MISSING_AUTHORIZATION"},
	ErrInvalidAuthScheme:        {KindAuthentication, "INVALID_AUTH_SCHEME"},
	ErrInvalidAccessToken:       {KindAuthentication, "INVALID_ACCESS_TOKEN"},
	ErrAccessTokenExpired:       {KindAuthentication, "ACCESS_TOKEN_EXPIRED"},
	ErrInvalidRefreshToken:      {KindRefreshFlow, "INVALID_REFRESH_TOKEN"},
	ErrMissingCsrfToken:         {KindRefreshFlow, "MISSING_CSRF_TOKEN"},
	ErrRefreshTokenMismatch:     {KindRefreshFlow, "REFRESH_TOKEN_MISMATCH"},
	ErrInvalidCsrfToken:         {KindRefreshFlow, "INVALID_CSRF_TOKEN"},
	ErrRefreshRateLimited:       {KindRateLimited, "REFRESH_RATE_LIMITED"},
	ErrForbidden:                {KindAuthorization, "FORBIDDEN"},
	ErrAppStateBlocked:          {KindAppStateBlocked, "APP_STATE_BLOCKED"},
	ErrRouteNotFound:            {KindNotFound, "ROUTE_NOT_FOUND"},
	ErrMethodNotAllowed:         {KindMethodNotAllowed, "METHOD_NOT_ALLOWED"},
	ErrValidation:               {KindValidation, "VALIDATION_FAILED"},
	ErrConfiguration:            {KindConfiguration, "CONFIGURATION_ERROR"},
	ErrUseCaseNotConfigured:     {KindConfiguration, "USE_CASE_NOT_CONFIGURED"},
	ErrInvalidPrincipal:         {KindValidation, "INVALID_PRINCIPAL"},
	ErrInvalidCredentials:       {KindAuthentication, "INVALID_CREDENTIALS"},
	ErrPasswordPolicy:           {KindValidation, "PASSWORD_POLICY"},
	ErrInvalidResetToken:        {KindAuthentication, "INVALID_RESET_TOKEN"},
	ErrPasswordResetRateLimited: {KindRateLimited, "PASSWORD_RESET_RATE_LIMITED"},
	ErrCredentialsNotConfigured: {KindConfiguration, "CREDENTIALS_NOT_CONFIGURED"},
	ErrRateLimited:              {KindRateLimited, "RATE_LIMITED"},
	ErrInternal:                 {KindInternal, "INTERNAL_ERROR"},
}

// Error is the single error type surfaced by the pipeline and the Engine.
//
// Err holds the package sentinel, so errors.Is(err, ErrRefreshTokenMismatch)
// works on any returned *Error. Cause, when set, is the underlying failure and
// is only shown in non-production traces.
type Error struct {
	Kind    ErrorKind
	Code    string
	Message string
	Params  map[string]any
	Err     error
	Cause   error

	stack []byte
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

// Unwrap exposes both the sentinel and the cause.
func (e *Error) Unwrap() []error {
	out := make([]error, 0, 2)
	if e.Err != nil {
		out = append(out, e.Err)
	}
	if e.Cause != nil {
		out = append(out, e.Cause)
	}
	return out
}

// Status is the HTTP status for the error's kind.
func (e *Error) Status() int {
	return e.Kind.Status()
}

// newError wraps sentinel with its registered kind and code.
func newError(sentinel error, cause error, params map[string]any) *Error {
	info, ok := sentinelTable[sentinel]
	if !ok {
		info = sentinelTable[ErrInternal]
	}
	return &Error{
		Kind:    info.kind,
		Code:    info.code,
		Message: sentinel.Error(),
		Params:  params,
		Err:     sentinel,
		Cause:   cause,
	}
}

func configError(format string, args ...any) *Error {
	e := newError(ErrConfiguration, nil, nil)
	e.Message = fmt.Sprintf(format, args...)
	return e
}

// classify converts any error into *Error. Subpackage errors keep their
// meaning; anything unknown becomes ErrInternal with the original as cause.
func classify(err error) *Error {
	if err == nil {
		return nil
	}

	var gerr *Error
	if errors.As(err, &gerr) {
		return gerr
	}

	var blocked *appstate.BlockedError
	if errors.As(err, &blocked) {
		return blockedError(blocked)
	}

	var verr *validation.Error
	if errors.As(err, &verr) {
		return validationError(verr)
	}

	switch {
	case errors.Is(err, permission.ErrUseCaseNotConfigured):
		return newError(ErrUseCaseNotConfigured, err, nil)
	case errors.Is(err, appstate.ErrInvalidEntry):
		e := newError(ErrValidation, err, nil)
		e.Message = err.Error()
		return e
	case errors.Is(err, password.ErrPasswordPolicy):
		return newError(ErrPasswordPolicy, err, nil)
	}

	for sentinel := range sentinelTable {
		if err == sentinel {
			return newError(sentinel, nil, nil)
		}
		if errors.Is(err, sentinel) {
			return newError(sentinel, err, nil)
		}
	}
	return newError(ErrInternal, err, nil)
}

func blockedError(b *appstate.BlockedError) *Error {
	allowed := make([]string, 0, len(b.Allowed))
	for _, s := range b.Allowed {
		allowed = append(allowed, string(s))
	}
	return newError(ErrAppStateBlocked, b, map[string]any{
		"deniedState":   b.Denied,
		"allowedStates": allowed,
		"path":          b.Path,
	})
}

func validationError(v *validation.Error) *Error {
	e := newError(ErrValidation, v, map[string]any{"fields": v.Fields})
	if v.UseCase != "" {
		e.Params["useCase"] = v.UseCase
	}
	return e
}
