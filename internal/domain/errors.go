package domain

import (
	"errors"
	"fmt"
)

// Error taxonomy. Pairing and configuration errors are programming or
// configuration mistakes and fail loudly; transition and claim errors are
// expected user-facing conditions returned as values.

var (
	// ErrInvalidPairing is returned when two items of the same polarity (or a
	// malformed pair) are given to the engine. Never retried.
	ErrInvalidPairing = errors.New("invalid pairing: items must have opposite polarity")

	// ErrInvalidStateTransition is returned when a lifecycle move is not
	// permitted from the current status. Surfaced as a conflict.
	ErrInvalidStateTransition = errors.New("invalid state transition")

	// ErrNotParticipant is returned when the acting user owns neither item of
	// the match being transitioned.
	ErrNotParticipant = errors.New("actor is not a participant in this match")

	// ErrDuplicateClaim is returned when a match already has an active claim.
	ErrDuplicateClaim = errors.New("an active claim already exists for this match")

	// ErrClaimVerificationFailed covers code mismatch, claim expiry and
	// attempt lockout.
	ErrClaimVerificationFailed = errors.New("claim verification failed")

	// ErrNotFound is returned for unknown item, match or claim identities.
	ErrNotFound = errors.New("not found")

	// ErrTimeout marks a deadline-exceeded repository or publish call as
	// retryable at the adapter boundary.
	ErrTimeout = errors.New("operation timed out")
)

// ConfigurationError is fatal at construction time: weights that do not sum
// to 1.0, inverted thresholds, and similar never-partially-applied mistakes.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %s", e.Reason)
}
