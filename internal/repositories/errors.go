package repositories

import (
	"errors"
	"fmt"
)

// ErrorKind categorises persistence failures for translation at service boundaries.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindNotFound
	KindConflict
	KindStale
	KindUnavailable
)

// Error wraps low-level persistence failures with the categorisation used by
// services. Raw driver errors never cross the repository boundary uncategorised.
type Error struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("repository: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("repository: %s: %s", e.Op, e.kindLabel())
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) kindLabel() string {
	switch e.Kind {
	case KindNotFound:
		return "not found"
	case KindConflict:
		return "conflict"
	case KindStale:
		return "stale state"
	case KindUnavailable:
		return "unavailable"
	default:
		return "unknown error"
	}
}

// IsNotFound reports whether the record was absent.
func (e *Error) IsNotFound() bool { return e.Kind == KindNotFound }

// IsConflict reports whether a uniqueness or concurrent-write conflict occurred.
func (e *Error) IsConflict() bool { return e.Kind == KindConflict }

// IsStale reports whether a conditional write matched zero rows because the
// expected current state no longer holds.
func (e *Error) IsStale() bool { return e.Kind == KindStale }

// IsUnavailable reports whether the backing store could not be reached.
func (e *Error) IsUnavailable() bool { return e.Kind == KindUnavailable }

// NotFound constructs a KindNotFound error for the given operation.
func NotFound(op string) *Error { return &Error{Kind: KindNotFound, Op: op} }

// Stale constructs a KindStale error for the given operation.
func Stale(op string) *Error { return &Error{Kind: KindStale, Op: op} }

// Conflict constructs a KindConflict error wrapping the driver error.
func Conflict(op string, err error) *Error { return &Error{Kind: KindConflict, Op: op, Err: err} }

// Unavailable constructs a KindUnavailable error wrapping the driver error.
func Unavailable(op string, err error) *Error { return &Error{Kind: KindUnavailable, Op: op, Err: err} }

// Wrap constructs a KindUnknown error wrapping the driver error.
func Wrap(op string, err error) *Error { return &Error{Kind: KindUnknown, Op: op, Err: err} }

func kindOf(err error, kind ErrorKind) bool {
	var repoErr *Error
	return errors.As(err, &repoErr) && repoErr.Kind == kind
}

// IsNotFound reports whether err carries KindNotFound.
func IsNotFound(err error) bool { return kindOf(err, KindNotFound) }

// IsConflict reports whether err carries KindConflict.
func IsConflict(err error) bool { return kindOf(err, KindConflict) }

// IsStale reports whether err carries KindStale.
func IsStale(err error) bool { return kindOf(err, KindStale) }

// IsUnavailable reports whether err carries KindUnavailable.
func IsUnavailable(err error) bool { return kindOf(err, KindUnavailable) }
