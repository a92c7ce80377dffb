//go:build !ocr

package ocr

import (
	"context"

	"invoicelayout/pkg/models"
)

// TesseractEngine is the stub used when the "ocr" build tag is not set.
// Rebuild with -tags ocr, with Tesseract installed, to enable it.
type TesseractEngine struct{}

func NewTesseractEngine(renderer Renderer, language string) (*TesseractEngine, error) {
	return nil, NewOCRError("NewTesseractEngine", ErrOCRNotEnabled, "")
}

func (t *TesseractEngine) Recognize(ctx context.Context, req PageRequest) (*models.OCRPage, error) {
	return nil, NewOCRError("Recognize", ErrOCRNotEnabled, "")
}

// Close is a no-op; safe on a nil engine.
func (t *TesseractEngine) Close() error {
	return nil
}
