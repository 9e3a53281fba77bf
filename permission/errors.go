package permission

import "errors"

var (
	// ErrUseCaseNotConfigured is returned when no role requirement exists for
	// a use case.
	ErrUseCaseNotConfigured = errors.New("use case has no role requirement")
	// ErrUnknownRole is returned by writers for role names the store does not
	// know.
	ErrUnknownRole = errors.New("unknown role")
	// ErrReadOnlyStore is returned by Grant and Revoke when the store cannot
	// write.
	ErrReadOnlyStore = errors.New("role store is read-only")
	// ErrStoreUnavailable wraps backend failures.
	ErrStoreUnavailable = errors.New("role store unavailable")
)
