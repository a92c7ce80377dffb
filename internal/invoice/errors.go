package invoice

import (
	"errors"
	"fmt"
)

// Common extraction errors
var (
	// ErrNoPages is returned when an invoice range holds no analyzed pages.
	ErrNoPages = errors.New("invoice range has no pages")

	// ErrStructural is returned when a geometric invariant was violated while
	// building lines or evidence. It indicates a bug upstream, not messy input.
	ErrStructural = errors.New("structural extraction failure")
)

// ExtractionError wraps errors with the operation and page range they belong to.
type ExtractionError struct {
	// Op is the operation that failed (e.g., "Extract", "ParseLines").
	Op string

	// Err is the underlying error.
	Err error

	// Details provides additional context about the failure.
	Details string

	// PageStart and PageEnd bound the invoice range, 1-based inclusive.
	PageStart int
	PageEnd   int
}

// Error implements the error interface.
func (e *ExtractionError) Error() string {
	if e.PageStart > 0 {
		if e.Details != "" {
			return fmt.Sprintf("invoice: %s failed (pages %d-%d): %s: %v", e.Op, e.PageStart, e.PageEnd, e.Details, e.Err)
		}
		return fmt.Sprintf("invoice: %s failed (pages %d-%d): %v", e.Op, e.PageStart, e.PageEnd, e.Err)
	}
	if e.Details != "" {
		return fmt.Sprintf("invoice: %s failed: %s: %v", e.Op, e.Details, e.Err)
	}
	return fmt.Sprintf("invoice: %s failed: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for error unwrapping.
func (e *ExtractionError) Unwrap() error {
	return e.Err
}

// Is implements error matching for Go 1.13+ error handling.
func (e *ExtractionError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewExtractionError creates a new ExtractionError with the specified operation and underlying error.
func NewExtractionError(op string, err error, details string) *ExtractionError {
	return &ExtractionError{
		Op:      op,
		Err:     err,
		Details: details,
	}
}
