package content

import (
	"errors"
	"fmt"
)

// Error classes surfaced by Retrieve.
var (
	// ErrContentUnavailable covers an unknown book, a missing source URL, a
	// failed upstream fetch and a malformed or empty archive.
	ErrContentUnavailable = errors.New("content unavailable")

	// ErrEncoding is returned when a document does not decode from, or
	// encode back into, its declared charset.
	ErrEncoding = errors.New("content encoding error")
)

// ErrorClass categorizes retrieval failures.
type ErrorClass string

const (
	// ErrorClassUnavailable indicates the content cannot be obtained.
	ErrorClassUnavailable ErrorClass = "unavailable"

	// ErrorClassEncoding indicates a charset conversion failure.
	ErrorClassEncoding ErrorClass = "encoding"

	// ErrorClassInternal indicates a fault in a collaborator, such as the
	// catalog store.
	ErrorClassInternal ErrorClass = "internal"
)

// RetrievalError describes a failed retrieval with its context.
type RetrievalError struct {
	Class   ErrorClass
	BookID  int
	Variant Variant
	Err     error
}

// Error implements the error interface.
func (e *RetrievalError) Error() string {
	return fmt.Sprintf("retrieve %s %d: %s: %v", e.Variant, e.BookID, e.Class, e.Err)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *RetrievalError) Unwrap() error {
	return e.Err
}

// Is matches the sentinel of the error's class.
func (e *RetrievalError) Is(target error) bool {
	switch e.Class {
	case ErrorClassUnavailable:
		return target == ErrContentUnavailable
	case ErrorClassEncoding:
		return target == ErrEncoding
	default:
		return false
	}
}

// Classify returns the class of err, or "" if err did not come from Retrieve.
func Classify(err error) ErrorClass {
	var re *RetrievalError
	if errors.As(err, &re) {
		return re.Class
	}
	return ""
}
