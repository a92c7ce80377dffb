// Package pdftext reads the native text layer of PDF pages as positioned
// words and loads the page table of a document.
//
// Two backends are available:
//   - tabula (default): github.com/tsawler/tabula text fragments
//   - ledongthuc: github.com/ledongthuc/pdf glyph runs
//
// Both report runs in PDF user space (origin bottom-left, baseline y).
// MergeRuns converts them into words in points with a top-left origin.
package pdftext

import (
	"errors"
	"fmt"
	"strings"

	"invoicelayout/pkg/models"
)

// Backend names accepted by Open.
const (
	BackendTabula     = "tabula"
	BackendLedongthuc = "ledongthuc"
)

var (
	ErrUnknownBackend = errors.New("unknown PDF backend")
	ErrPageOutOfRange = errors.New("page number out of range")
	ErrNoPages        = errors.New("document has no pages")
)

// Document is an open PDF. Implementations serialize access to the
// underlying reader, so methods may be called from several goroutines.
type Document interface {
	PageCount() int
	// PageSize returns the page size in points.
	PageSize(page int) (width, height float64, err error)
	// Words returns the native words of a 1-based page, unordered.
	Words(page int) ([]models.NativeWord, error)
	Close() error
}

// Opener opens documents with one backend.
type Opener func(path string) (Document, error)

// NewOpener returns the opener for backend. An empty name selects tabula.
func NewOpener(backend string) (Opener, error) {
	switch strings.ToLower(backend) {
	case "", BackendTabula:
		return OpenTabula, nil
	case BackendLedongthuc:
		return OpenLedongthuc, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, backend)
	}
}

// Load builds the page table of doc. Page tokens are filled in later by
// the tokenizer.
func Load(doc Document, path string) (*models.Document, error) {
	count := doc.PageCount()
	if count == 0 {
		return nil, fmt.Errorf("%s: %w", path, ErrNoPages)
	}

	pages := make([]models.Page, 0, count)
	for n := 1; n <= count; n++ {
		width, height, err := doc.PageSize(n)
		if err != nil {
			return nil, fmt.Errorf("%s page %d: %w", path, n, err)
		}
		page, err := models.NewPage(n, path, width, height)
		if err != nil {
			return nil, err
		}
		pages = append(pages, page)
	}
	return models.NewDocument(path, pages)
}

func checkPage(page, count int) error {
	if page < 1 || page > count {
		return fmt.Errorf("%w: %d of %d", ErrPageOutOfRange, page, count)
	}
	return nil
}
