package node

import (
	"fmt"

	"github.com/go-errors/errors"
)

// Kinds of node failures. Callers match them with errors.Is.
var (
	ErrNotFound        = errors.New("not found")
	ErrNodeUnavailable = errors.New("node unavailable")
	ErrInvalidRequest  = errors.New("invalid request")
)

// Error is returned by every Node operation that fails.
type Error struct {
	// Op is the node operation that failed, e.g. "AddInvoice".
	Op string
	// Kind is one of ErrNotFound, ErrNodeUnavailable or ErrInvalidRequest.
	Kind error
	Err  error
}

// Error returns the raw reason, it is shown to operators as is.
func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", e.Op, e.Kind)
	}

	return e.Err.Error()
}

func (e *Error) Unwrap() []error {
	return []error{e.Kind, e.Err}
}

func notFound(op string, format string, args ...interface{}) error {
	return &Error{Op: op, Kind: ErrNotFound, Err: errors.Errorf(format, args...)}
}

func unavailable(op string, format string, args ...interface{}) error {
	return &Error{Op: op, Kind: ErrNodeUnavailable, Err: errors.Errorf(format, args...)}
}

func invalidRequest(op string, format string, args ...interface{}) error {
	return &Error{Op: op, Kind: ErrInvalidRequest, Err: errors.Errorf(format, args...)}
}
