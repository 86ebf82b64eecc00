package session

import "errors"

var (
	// ErrDuplicateTracking is returned when a session id is already tracked.
	ErrDuplicateTracking = errors.New("session: already tracked")

	// ErrNotTracked is returned when an operation references an unknown id.
	ErrNotTracked = errors.New("session: not tracked")

	// ErrInvalidTransition is returned when a state change violates the
	// lifecycle state machine.
	ErrInvalidTransition = errors.New("session: invalid state transition")

	// ErrInvalidState is returned when an operation requires a state the
	// session is not in (e.g. starting a clock for a non-active session).
	ErrInvalidState = errors.New("session: invalid state for operation")

	// ErrInvalidSessionID is returned for non-positive session ids, before
	// any network call is made.
	ErrInvalidSessionID = errors.New("session: invalid session id")

	// ErrInvalidDuration is returned for durations outside the accepted
	// range (extensions must be 5..240 minutes, planned durations >= 0).
	ErrInvalidDuration = errors.New("session: invalid duration")
)
