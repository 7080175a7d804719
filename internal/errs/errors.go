package errs

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Kind represents the category of an error.
type Kind string

const (
	// KindStorageUnavailable is returned when a backing store call fails
	KindStorageUnavailable Kind = "storage_unavailable"
	// KindPartialWrite is returned when the graph write of a dual-store
	// operation succeeded but the vector write did not
	KindPartialWrite Kind = "partial_write"
	// KindDuplicateMapping marks an attempt to map an already mapped pair
	KindDuplicateMapping Kind = "duplicate_mapping"
	// KindNotFound is returned when an id does not resolve
	KindNotFound Kind = "not_found"
	// KindValidation carries validator problems
	KindValidation Kind = "validation"
	// KindVectorUnavailable is returned when an operation needs the vector index
	KindVectorUnavailable Kind = "vector_unavailable"
	// KindInvalidArgument is returned for unsupported option values
	KindInvalidArgument Kind = "invalid_argument"
	// KindConfig represents configuration errors
	KindConfig Kind = "config"
)

// Error is the base error type with common fields.
type Error struct {
	Kind      Kind
	Op        string
	Message   string
	Timestamp time.Time
	Err       error // Wrapped error

	// Problems holds validator output for KindValidation.
	Problems []string
	// Compensated reports, for KindPartialWrite, whether the graph write was undone.
	Compensated bool
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s]", e.Kind)
	if e.Op != "" {
		fmt.Fprintf(&b, " %s:", e.Op)
	}
	fmt.Fprintf(&b, " %s", e.Message)
	if len(e.Problems) > 0 {
		fmt.Fprintf(&b, " (%s)", strings.Join(e.Problems, "; "))
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

// Unwrap returns the wrapped error for error unwrapping
func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a new error of the given kind.
func New(kind Kind, op, message string, err error) *Error {
	return &Error{
		Kind:      kind,
		Op:        op,
		Message:   message,
		Timestamp: time.Now(),
		Err:       err,
	}
}

func Storage(op string, err error) *Error {
	return New(KindStorageUnavailable, op, "backing store call failed", err)
}

func NotFound(op, what, id string) *Error {
	return New(KindNotFound, op, fmt.Sprintf("%s not found: %s", what, id), nil)
}

func Validation(op string, problems []string) *Error {
	e := New(KindValidation, op, "validation failed", nil)
	e.Problems = problems
	return e
}

func InvalidArgument(op, format string, args ...any) *Error {
	return New(KindInvalidArgument, op, fmt.Sprintf(format, args...), nil)
}

func PartialWrite(op string, compensated bool, err error) *Error {
	e := New(KindPartialWrite, op, "graph write persisted but vector write failed", err)
	e.Compensated = compensated
	return e
}

func Config(message string, err error) *Error {
	return New(KindConfig, "config", message, err)
}

// KindOf returns the kind of the first *Error in err's chain, or "".
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

func IsNotFound(err error) bool {
	return Is(err, KindNotFound)
}

// BatchResult maps item ids to their outcome; a nil error means success.
type BatchResult map[string]error

// Succeeded returns the ids that completed without error.
func (r BatchResult) Succeeded() []string {
	var ids []string
	for id, err := range r {
		if err == nil {
			ids = append(ids, id)
		}
	}
	return ids
}

func (r BatchResult) Failed() map[string]error {
	out := make(map[string]error)
	for id, err := range r {
		if err != nil {
			out[id] = err
		}
	}
	return out
}

// Err joins all item errors, or returns nil when every item succeeded.
func (r BatchResult) Err() error {
	var errList []error
	for id, err := range r {
		if err != nil {
			errList = append(errList, fmt.Errorf("%s: %w", id, err))
		}
	}
	return errors.Join(errList...)
}
