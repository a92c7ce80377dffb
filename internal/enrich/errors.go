package enrich

import (
	"errors"
	"fmt"
)

// Common enrichment errors
var (
	// ErrUnknownProvider is returned when ENRICH_PROVIDER names no known provider.
	ErrUnknownProvider = errors.New("unknown enrichment provider")

	// ErrMissingCredentials is returned when a provider has no API key or credentials.
	ErrMissingCredentials = errors.New("enrichment credentials not found")

	// ErrInvalidConfiguration is returned when required provider settings are missing.
	ErrInvalidConfiguration = errors.New("invalid enrichment configuration")

	// ErrNoResponse is returned when the provider answered with nothing usable.
	ErrNoResponse = errors.New("no usable response from provider")

	// ErrDocumentTooLarge is returned when the PDF exceeds the provider limit.
	ErrDocumentTooLarge = errors.New("document exceeds provider size limit")

	// ErrInvalidPDF is returned when the file does not look like a PDF.
	ErrInvalidPDF = errors.New("invalid PDF format")

	// ErrProviderFailed is returned when the provider call itself failed.
	ErrProviderFailed = errors.New("enrichment provider call failed")
)

// EnrichError wraps errors with the operation that failed.
type EnrichError struct {
	Op      string
	Err     error
	Details string
}

func (e *EnrichError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("enrich: %s failed: %s: %v", e.Op, e.Details, e.Err)
	}
	return fmt.Sprintf("enrich: %s failed: %v", e.Op, e.Err)
}

func (e *EnrichError) Unwrap() error {
	return e.Err
}

func (e *EnrichError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

func NewEnrichError(op string, err error, details string) *EnrichError {
	return &EnrichError{
		Op:      op,
		Err:     err,
		Details: details,
	}
}

// WrapEnrichError wraps an error as an EnrichError if it isn't already one.
func WrapEnrichError(op string, err error, details string) error {
	if err == nil {
		return nil
	}

	var enrichErr *EnrichError
	if errors.As(err, &enrichErr) {
		return err
	}

	return NewEnrichError(op, err, details)
}
