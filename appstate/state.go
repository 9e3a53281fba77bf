package appstate

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// State is an application lifecycle state.
type State string

const (
	StateInitial       State = "INITIAL"
	StateActive        State = "ACTIVE"
	StateInMaintenance State = "IN_MAINTENANCE"
	StateSuspended     State = "SUSPENDED"
)

// DefaultReason explains a resolved state that came from no entry.
const DefaultReason = "no schedule entry is in effect"

var (
	// ErrInvalidEntry is returned for entries with an unknown state or a zero
	// effective time.
	ErrInvalidEntry = errors.New("invalid schedule entry")
	// ErrStoreUnavailable wraps schedule backend failures.
	ErrStoreUnavailable = errors.New("schedule store unavailable")
)

// AllStates lists every known state in lifecycle order.
func AllStates() []State {
	return []State{StateInitial, StateActive, StateInMaintenance, StateSuspended}
}

// Valid reports whether s is a known state.
func (s State) Valid() bool {
	switch s {
	case StateInitial, StateActive, StateInMaintenance, StateSuspended:
		return true
	}
	return false
}

// ParseState accepts a state name in any case.
func ParseState(v string) (State, error) {
	s := State(strings.ToUpper(strings.TrimSpace(v)))
	if !s.Valid() {
		return "", fmt.Errorf("%w: unknown state %q", ErrInvalidEntry, v)
	}
	return s, nil
}

// Entry schedules State from EffectiveFrom on.
type Entry struct {
	State         State     `json:"state"`
	EffectiveFrom time.Time `json:"effectiveFrom"`
	Reason        string    `json:"reason,omitempty"`
}

// Validate checks the state and the instant.
func (e Entry) Validate() error {
	if !e.State.Valid() {
		return fmt.Errorf("%w: unknown state %q", ErrInvalidEntry, e.State)
	}
	if e.EffectiveFrom.IsZero() {
		return fmt.Errorf("%w: effective time is required", ErrInvalidEntry)
	}
	return nil
}

// Current is the state in effect at some instant.
type Current struct {
	State         State     `json:"appState"`
	EffectiveFrom time.Time `json:"effectiveFrom,omitempty"`
	Reason        string    `json:"reason"`
	IsDefault     bool      `json:"isDefault"`
}

// BlockedError reports a request denied by the current state.
type BlockedError struct {
	Denied  Current
	Allowed []State
	Path    string
}

func (e *BlockedError) Error() string {
	return fmt.Sprintf("app state %s does not allow %s", e.Denied.State, e.Path)
}

// resolve picks the entry with the greatest EffectiveFrom not after now.
// entries must be sorted ascending.
func resolve(entries []Entry, now time.Time) Current {
	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]
		if !e.EffectiveFrom.After(now) {
			return Current{
				State:         e.State,
				EffectiveFrom: e.EffectiveFrom,
				Reason:        e.Reason,
			}
		}
	}
	return Current{State: StateInitial, Reason: DefaultReason, IsDefault: true}
}
