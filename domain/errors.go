package domain

import "errors"

// Failure taxonomy for inbound processing. Handlers wrap these with
// context; callers match with errors.Is to pick a response code.
var (
	// ErrNotFound means a referenced actor or object could not be resolved.
	ErrNotFound = errors.New("not found")

	// ErrDomainMismatch means an object's self-declared identifier lives on
	// a different domain than the actor asserting it. Anti-spoofing check,
	// the activity is dropped and the event is logged.
	ErrDomainMismatch = errors.New("domain mismatch")

	// ErrUpstreamUnavailable means a remote fetch failed at the transport
	// level. Surfaced as a server error, never retried here.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")

	// ErrVerificationFailed means an activity failed a structural or
	// semantic check before dispatch.
	ErrVerificationFailed = errors.New("verification failed")
)
