package ocr

import (
	"errors"
	"fmt"
)

// Common OCR processing errors
var (
	// ErrPDFTooLarge is returned when the PDF exceeds the Vision upload limit.
	ErrPDFTooLarge = errors.New("PDF file size exceeds the maximum limit (20MB)")

	// ErrInvalidPDF is returned when the data does not start with a PDF header.
	ErrInvalidPDF = errors.New("invalid or corrupted PDF document")

	// ErrOCRFailed is returned when the engine fails to process a page.
	ErrOCRFailed = errors.New("OCR processing failed")

	// ErrMissingCredentials is returned when neither GOOGLE_APPLICATION_CREDENTIALS
	// nor GOOGLE_CREDENTIALS is configured and no default credentials exist.
	ErrMissingCredentials = errors.New("missing Google Cloud credentials: set GOOGLE_APPLICATION_CREDENTIALS or GOOGLE_CREDENTIALS environment variable")

	// ErrNoPageImage is returned when a page carries no embedded image to render.
	ErrNoPageImage = errors.New("page has no embedded image")

	// ErrPageOutOfRange is returned for page numbers outside the document.
	ErrPageOutOfRange = errors.New("page number out of range")

	// ErrOCRNotEnabled is returned by the Tesseract engine when the binary was
	// built without the "ocr" tag.
	ErrOCRNotEnabled = errors.New("tesseract support not enabled; rebuild with -tags ocr")

	// ErrUnknownEngine is returned by New for an unrecognized engine name.
	ErrUnknownEngine = errors.New("unknown OCR engine")
)

// OCRError wraps errors with the operation that failed.
type OCRError struct {
	Op      string
	Err     error
	Details string
}

func (e *OCRError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("ocr: %s failed: %s: %v", e.Op, e.Details, e.Err)
	}
	return fmt.Sprintf("ocr: %s failed: %v", e.Op, e.Err)
}

func (e *OCRError) Unwrap() error {
	return e.Err
}

func (e *OCRError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

func NewOCRError(op string, err error, details string) *OCRError {
	return &OCRError{
		Op:      op,
		Err:     err,
		Details: details,
	}
}

// WrapOCRError wraps err as an OCRError unless it already is one.
func WrapOCRError(op string, err error, details string) error {
	if err == nil {
		return nil
	}

	var ocrErr *OCRError
	if errors.As(err, &ocrErr) {
		return err
	}

	return NewOCRError(op, err, details)
}
