// Package fault defines the error taxonomy shared by the dispatch engine.
// Business-rule failures (NotFound, Conflict, Incomplete, InvariantViolation)
// are terminal for the triggering call; Upstream failures may be retried by
// the caller with bounded backoff.
package fault

import (
	"errors"
	"fmt"
)

// Kind classifies an engine error.
type Kind int

const (
	// NotFound means a referenced bin, route or vehicle does not exist.
	NotFound Kind = iota
	// Conflict means a transition was attempted from the wrong state or an
	// exclusivity invariant would be violated.
	Conflict
	// Incomplete means a route completion was attempted with pending stops.
	Incomplete
	// InvariantViolation means the operation would break a data-model
	// invariant, such as a load exceeding the vehicle maximum.
	InvariantViolation
	// Upstream means a persistence or telemetry I/O failure.
	Upstream
)

// String returns a human-readable representation of the kind.
func (k Kind) String() string {
	switch k {
	case NotFound:
		return "not_found"
	case Conflict:
		return "conflict"
	case Incomplete:
		return "incomplete"
	case InvariantViolation:
		return "invariant_violation"
	case Upstream:
		return "upstream"
	default:
		return "unknown"
	}
}

// Error carries enough context to render a specific message: the entity, its
// identifier, the attempted operation and the state it was found in.
type Error struct {
	Kind   Kind
	Entity string // "bin", "route", "vehicle"
	ID     string
	Op     string // attempted operation or transition
	State  string // current state, when relevant
	Err    error  // wrapped cause, for Upstream
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s %s: %s %s", e.Entity, e.ID, e.Op, e.Kind)
	if e.State != "" {
		msg += fmt.Sprintf(" (state %s)", e.State)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// New creates a fault error.
func New(kind Kind, entity, id, op string) *Error {
	return &Error{Kind: kind, Entity: entity, ID: id, Op: op}
}

// WithState attaches the current entity state.
func (e *Error) WithState(state string) *Error {
	e.State = state
	return e
}

// Wrap creates an Upstream fault around an I/O error.
func Wrap(entity, id, op string, err error) *Error {
	return &Error{Kind: Upstream, Entity: entity, ID: id, Op: op, Err: err}
}

// KindOf extracts the kind from err, or Upstream for unclassified errors.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return Upstream
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, k Kind) bool {
	var fe *Error
	return errors.As(err, &fe) && fe.Kind == k
}
