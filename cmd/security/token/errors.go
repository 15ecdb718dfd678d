package token

import "errors"

// Public, stable errors for callers.
var (
	// ErrMalformedToken is returned when the token does not split into exactly
	// three non-empty dot-separated parts.
	ErrMalformedToken = errors.New("malformed token")

	// ErrBadSignature is returned when the recomputed MAC does not match the
	// supplied signature segment.
	ErrBadSignature = errors.New("bad token signature")

	// ErrUnparsablePayload is returned when the payload segment decodes but is
	// not a well-formed claims document.
	ErrUnparsablePayload = errors.New("unparsable token payload")

	// ErrExpired is returned when the token expiry is strictly in the past.
	ErrExpired = errors.New("token expired")

	// ErrMissingSubject is returned when the payload carries no subject user id.
	ErrMissingSubject = errors.New("token missing subject")

	// ErrSecretMissing is returned when the session secret env var is unset.
	ErrSecretMissing = errors.New("session secret missing")

	// ErrSecretTooShort is returned when the session secret is below the minimum size.
	ErrSecretTooShort = errors.New("session secret too short")
)
