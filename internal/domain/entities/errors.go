package entities

import (
	"errors"
	"fmt"
)

var (
	// ErrRepositoryUnavailable means no configured repository could answer a request after retries
	ErrRepositoryUnavailable = errors.New("repository unavailable")

	// ErrNotFound means every configured repository answered that the resource does not exist
	ErrNotFound = errors.New("not found")

	// ErrChecksumMismatch means a downloaded artifact did not match its published digest
	ErrChecksumMismatch = errors.New("checksum mismatch")

	// ErrSignatureInvalid means a detached signature did not verify against the keyring
	ErrSignatureInvalid = errors.New("signature invalid")

	// ErrMetadataUnavailable means the version listing for a coordinate could not be obtained
	ErrMetadataUnavailable = errors.New("metadata unavailable")

	// ErrParseFailure is wrapped by every ParseError
	ErrParseFailure = errors.New("parse failure")

	// ErrInvalidRange means a version range is malformed (e.g. min > max)
	ErrInvalidRange = errors.New("invalid version range")

	// ErrInvalidModule means an instrumentation module manifest is not usable
	ErrInvalidModule = errors.New("invalid instrumentation module")
)

// ParseError describes why a raw version or range string could not be parsed
type ParseError struct {
	Input  string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("cannot parse %q: %s", e.Input, e.Reason)
}

// Unwrap lets errors.Is(err, ErrParseFailure) match
func (e *ParseError) Unwrap() error {
	return ErrParseFailure
}
