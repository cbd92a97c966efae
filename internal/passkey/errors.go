package passkey

import (
	"errors"
	"fmt"
)

// Sentinel errors for ceremony operations. Handlers branch on these with
// errors.Is rather than matching message strings.
var (
	// ErrUnauthorized is returned when registration is attempted without an
	// authenticated session while credentials already exist.
	ErrUnauthorized = errors.New("unauthorized: login to register new devices")

	// ErrNoCredentials is returned when login is attempted with zero
	// registered devices.
	ErrNoCredentials = errors.New("no devices registered")

	// ErrNoPendingChallenge is returned when a finish call finds no live
	// challenge for the session: none was issued, it was already consumed,
	// or it expired.
	ErrNoPendingChallenge = errors.New("no pending challenge")

	// ErrWrongChallengeKind is returned when a finish call is presented with
	// a challenge issued for the other ceremony track.
	ErrWrongChallengeKind = errors.New("challenge kind mismatch")

	// ErrUnknownCredential is returned when the credential id claimed at
	// login is not registered.
	ErrUnknownCredential = errors.New("unknown device")

	// ErrDuplicateCredentialID is returned when registration collides with
	// an already stored credential id.
	ErrDuplicateCredentialID = errors.New("credential id already registered")
)

// VerificationError reports a rejection by the authenticator verifier: a bad
// signature, a challenge mismatch, a missing user-verification flag, and so
// on. The reason is safe to show to the caller.
type VerificationError struct {
	Reason string
	Err    error
}

func (e *VerificationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("verification failed: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("verification failed: %s", e.Reason)
}

func (e *VerificationError) Unwrap() error {
	return e.Err
}
