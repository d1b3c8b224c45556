package voting

import (
	"errors"
	"fmt"
)

// Error taxonomy of the voting protocols. Every error returned by Service
// wraps exactly one of these, so callers classify them with errors.Is.
var (
	// ErrValidation is a malformed or missing input.
	ErrValidation = errors.New("validation error")
	// ErrUnauthorized is a missing identity, or a signature or proof that
	// does not verify.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrForbidden is an authenticated but ineligible caller, or an action
	// already performed (already voted, signature already issued).
	ErrForbidden = errors.New("forbidden")
	// ErrNotFound is a missing poll, group, member or identity.
	ErrNotFound = errors.New("not found")
	// ErrInvalidState is an operation not allowed by the poll or group state.
	ErrInvalidState = errors.New("invalid state")
	// ErrConflict is a uniqueness violation.
	ErrConflict = errors.New("conflict")
	// ErrCryptoFailure is a signature or proof verification failure. It is
	// always returned together with ErrUnauthorized.
	ErrCryptoFailure = errors.New("verification failed")
	// ErrUnsupported is a capability that is not implemented.
	ErrUnsupported = errors.New("unsupported")
)

// errInvalidCrypto is returned when a blind signature or proof does not
// verify.
var errInvalidCrypto = fmt.Errorf("%w: %w", ErrUnauthorized, ErrCryptoFailure)
