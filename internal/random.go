package internal

import (
	"crypto/rand"
	"encoding/base64"
)

const (
	tokenIDSize   = 16
	csrfTokenSize = 32
)

// TokenID is the primary key of a persisted refresh-token record.
type TokenID [tokenIDSize]byte

// NewTokenID returns 128 bits from crypto/rand.
func NewTokenID() (TokenID, error) {
	var id TokenID
	_, err := rand.Read(id[:])
	return id, err
}

func (t TokenID) String() string {
	// base64url, no padding, compact
	return base64.RawURLEncoding.EncodeToString(t[:])
}

// NewCSRFToken returns a 256 bit random value bound to a refresh record.
func NewCSRFToken() (string, error) {
	var raw [csrfTokenSize]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw[:]), nil
}
