package session

import (
	"errors"
	"time"
)

var (
	// ErrRecordNotFound is returned when no live record exists for an id.
	ErrRecordNotFound = errors.New("refresh record not found")
	// ErrStoreUnavailable wraps backend failures.
	ErrStoreUnavailable = errors.New("refresh store unavailable")
	// ErrRecordInvalid is returned for records missing required fields.
	ErrRecordInvalid = errors.New("refresh record invalid")
)

// Record is one persisted refresh credential. Rotation overwrites Value, CSRF
// and ExpiresAt under the same ID.
type Record struct {
	ID          string
	Value       string
	CSRF        string
	PrincipalID string
	Attributes  map[string]string
	ExpiresAt   time.Time
}

// Expired reports whether the record is no longer usable at now.
func (r *Record) Expired(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}

func validateRecord(r *Record) error {
	if r == nil || r.ID == "" || r.Value == "" || r.CSRF == "" || r.PrincipalID == "" || r.ExpiresAt.IsZero() {
		return ErrRecordInvalid
	}
	return nil
}
