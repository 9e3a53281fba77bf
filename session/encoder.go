package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
)

const (
	// CurrentSchemaVersion is written by Encode.
	CurrentSchemaVersion = 1
)

var errUnsupportedSchema = errors.New("unsupported refresh record schema version")

type wireRecord struct {
	Version     int               `json:"v"`
	ID          string            `json:"id"`
	Value       string            `json:"value"`
	CSRF        string            `json:"csrf"`
	PrincipalID string            `json:"principal_id"`
	Attributes  map[string]string `json:"attributes,omitempty"`
	ExpiresAt   int64             `json:"exp"`
}

// Encode serializes r for key-value stores.
func Encode(r *Record) ([]byte, error) {
	if err := validateRecord(r); err != nil {
		return nil, err
	}
	return json.Marshal(wireRecord{
		Version:     CurrentSchemaVersion,
		ID:          r.ID,
		Value:       r.Value,
		CSRF:        r.CSRF,
		PrincipalID: r.PrincipalID,
		Attributes:  r.Attributes,
		ExpiresAt:   r.ExpiresAt.Unix(),
	})
}

// Decode parses data produced by Encode.
func Decode(data []byte) (*Record, error) {
	var w wireRecord
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRecordInvalid, err)
	}
	if w.Version != CurrentSchemaVersion {
		return nil, fmt.Errorf("%w: %d", errUnsupportedSchema, w.Version)
	}
	r := &Record{
		ID:          w.ID,
		Value:       w.Value,
		CSRF:        w.CSRF,
		PrincipalID: w.PrincipalID,
		Attributes:  w.Attributes,
		ExpiresAt:   time.Unix(w.ExpiresAt, 0),
	}
	if err := validateRecord(r); err != nil {
		return nil, err
	}
	return r, nil
}
