// Package ocr provides the OCR path of the pipeline: engines that turn one
// PDF page into positioned words, a renderer for engines that need pixels,
// the text-quality scorer and the routing decision that gates OCR.
//
// Engines:
//   - vision: Google Cloud Vision DOCUMENT_TEXT_DETECTION on the PDF page itself
//   - tesseract: local Tesseract over a rendered page image (build tag "ocr")
//
// Required Environment Variables (vision):
//   - GOOGLE_APPLICATION_CREDENTIALS: Path to service account JSON file, OR
//   - GOOGLE_CREDENTIALS: Inline JSON credentials string
//
// Cloud Vision API Limitations:
//   - Maximum file size: 20MB for synchronous processing
//   - Pages are annotated one request at a time, so the 5-page limit of
//     synchronous file annotation never applies
package ocr

import (
	"context"
	"fmt"
	"strings"

	"invoicelayout/pkg/models"
)

// Engine names accepted by New.
const (
	EngineNone      = "none"
	EngineVision    = "vision"
	EngineTesseract = "tesseract"
)

// PageRequest identifies one page to recognize.
type PageRequest struct {
	Path   string  // source PDF
	Page   int     // 1-based
	Width  float64 // page size in points
	Height float64
}

// Engine recognizes the words on one page. Returned word boxes are in the
// pixel space described by OCRPage.ImageWidth and ImageHeight.
type Engine interface {
	Recognize(ctx context.Context, req PageRequest) (*models.OCRPage, error)
	Close() error
}

// RenderedPage is a page image written to disk.
type RenderedPage struct {
	Path   string
	Width  int // pixels
	Height int
}

// Renderer produces a page image for engines that work on pixels.
type Renderer interface {
	Render(ctx context.Context, req PageRequest) (*RenderedPage, error)
}

// Options selects and configures an engine.
type Options struct {
	Engine   string
	Language string // tesseract language, e.g. "swe+eng"
	DPI      int
	TempDir  string
}

// New builds the engine named in opts. EngineNone returns a nil engine and
// no error; the pipeline then keeps native text for every page.
func New(ctx context.Context, opts Options) (Engine, error) {
	const op = "New"

	switch strings.ToLower(opts.Engine) {
	case "", EngineNone:
		return nil, nil
	case EngineVision:
		engine, err := NewVisionEngine(ctx)
		if err != nil {
			return nil, err
		}
		return engine, nil
	case EngineTesseract:
		engine, err := NewTesseractEngine(NewEmbeddedImageRenderer(opts.DPI, opts.TempDir), opts.Language)
		if err != nil {
			return nil, err
		}
		return engine, nil
	default:
		return nil, NewOCRError(op, ErrUnknownEngine, fmt.Sprintf("engine %q", opts.Engine))
	}
}
