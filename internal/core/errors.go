package core

import (
	"errors"
	"fmt"
)

var (
	// ErrLocked is returned when a catalog is marked as being published.
	// Callers should retry shortly rather than report a failure.
	ErrLocked = errors.New("catalog locked")

	// ErrDuplicateID is returned when two listings share an identity.
	ErrDuplicateID = errors.New("duplicate listing id")

	// ErrInvalidIdentifier is returned for malformed identity tokens.
	ErrInvalidIdentifier = errors.New("invalid identifier")

	// ErrMissingKey is wrapped by MissingKeyError.
	ErrMissingKey = errors.New("missing required key")
)

// MissingKeyError reports a listing without one of its required keys.
type MissingKeyError struct {
	Key  string
	Line int // first line of the listing block, 0 if unknown
}

func (e *MissingKeyError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("listing at line %d: missing required key %q", e.Line, e.Key)
	}
	return fmt.Sprintf("listing: missing required key %q", e.Key)
}

func (e *MissingKeyError) Unwrap() error {
	return ErrMissingKey
}

// ParseError wraps a structural error with the line it was found on.
type ParseError struct {
	Line int
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("catalog line %d: %v", e.Line, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// WarningKind classifies a policy warning.
type WarningKind string

const (
	WarnIncompatible    WarningKind = "incompatible"
	WarnMissingRequired WarningKind = "missing-requirement"
	WarnBadRequirement  WarningKind = "bad-requirement"
	WarnBadReplacement  WarningKind = "bad-replacement"
)

// Warning is a policy problem that does not stop the current operation.
type Warning struct {
	Kind    WarningKind
	Listing string // display name of the listing that caused it
	Token   string
}

func (w Warning) String() string {
	switch w.Kind {
	case WarnIncompatible:
		return fmt.Sprintf("%s: not compatible with this host", w.Listing)
	case WarnMissingRequired:
		return fmt.Sprintf("%s: required bundle %q is not in the catalog", w.Listing, w.Token)
	case WarnBadRequirement:
		return fmt.Sprintf("%s: malformed requirement %q", w.Listing, w.Token)
	case WarnBadReplacement:
		return fmt.Sprintf("%s: malformed replacement %q", w.Listing, w.Token)
	default:
		return fmt.Sprintf("%s: %s %q", w.Listing, w.Kind, w.Token)
	}
}
