// Package errors defines the sentinel errors shared by the importer, the
// import manager and the resource readers, plus ImportError which tags a
// failure with the kind of problem and the operation that produced it.
package errors

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrEmptyURI         = errors.New("empty schema uri")
	ErrImportProblem    = errors.New("import problem")
	ErrUnresolvedRef    = errors.New("unresolved reference")
	ErrNoFetcher        = errors.New("no external fetcher configured")
	ErrReferenceCycle   = errors.New("reference cycle")
	ErrResourceNotFound = errors.New("resource not found")
	ErrInvalidInput     = errors.New("invalid input")
	ErrTimeout          = errors.New("operation timed out")
	ErrInternal         = errors.New("internal error")
)

// Kind classifies an ImportError.
type Kind int

const (
	KindUnknown Kind = iota
	// KindImportProblem is a structural or type error found while building
	// the model. It aborts the current import.
	KindImportProblem
	// KindLoad is a document-level failure: unreadable or malformed input.
	KindLoad
	// KindReference is a reference that could not be resolved. Never fatal.
	KindReference
)

func (k Kind) String() string {
	switch k {
	case KindImportProblem:
		return "import_problem"
	case KindLoad:
		return "load"
	case KindReference:
		return "reference"
	default:
		return "unknown"
	}
}

type ImportError struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *ImportError) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
}

func (e *ImportError) Unwrap() error {
	return e.Err
}

// ImportProblem builds a KindImportProblem error wrapping ErrImportProblem.
func ImportProblem(op string, format string, args ...any) *ImportError {
	return &ImportError{
		Kind: KindImportProblem,
		Op:   op,
		Err:  fmt.Errorf("%w: %s", ErrImportProblem, fmt.Sprintf(format, args...)),
	}
}

func Load(op string, err error) *ImportError {
	return &ImportError{Kind: KindLoad, Op: op, Err: err}
}

func Reference(ref string, err error) *ImportError {
	return &ImportError{Kind: KindReference, Op: ref, Err: err}
}

// KindOf returns the kind of the first ImportError in err's chain.
func KindOf(err error) Kind {
	var ie *ImportError
	if errors.As(err, &ie) {
		return ie.Kind
	}
	return KindUnknown
}

// Is, As and New re-export the standard helpers so callers importing this
// package under the name errors keep access to them.
func Is(err, target error) bool { return errors.Is(err, target) }

func As(err error, target any) bool { return errors.As(err, target) }

func New(text string) error { return errors.New(text) }

func HTTPStatusCode(err error) int {
	switch {
	case errors.Is(err, ErrEmptyURI), errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrResourceNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrImportProblem), errors.Is(err, ErrReferenceCycle):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	if KindOf(err) == KindLoad {
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}
