//go:build ocr

package ocr

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/otiai10/gosseract/v2"
	"github.com/rs/zerolog"

	"invoicelayout/internal/logger"
	"invoicelayout/pkg/models"
)

// TesseractEngine recognizes rendered page images with a local Tesseract.
// The gosseract client is not safe for concurrent use, so recognition is
// serialized; rendering still runs in parallel.
type TesseractEngine struct {
	renderer Renderer
	log      zerolog.Logger

	mu     sync.Mutex
	client *gosseract.Client
}

func NewTesseractEngine(renderer Renderer, language string) (*TesseractEngine, error) {
	const op = "NewTesseractEngine"

	client := gosseract.NewClient()
	if language != "" {
		if err := client.SetLanguage(strings.Split(language, "+")...); err != nil {
			client.Close()
			return nil, WrapOCRError(op, err, fmt.Sprintf("language %q", language))
		}
	}
	if err := client.SetPageSegMode(gosseract.PSM_AUTO); err != nil {
		client.Close()
		return nil, WrapOCRError(op, err, "page segmentation mode")
	}

	return &TesseractEngine{
		renderer: renderer,
		client:   client,
		log:      logger.WithComponent("ocr.tesseract"),
	}, nil
}

// Recognize renders the page and returns its word boxes in image pixels.
// The rendered image is kept and referenced from the result.
func (t *TesseractEngine) Recognize(ctx context.Context, req PageRequest) (*models.OCRPage, error) {
	const op = "Recognize"

	rendered, err := t.renderer.Render(ctx, req)
	if err != nil {
		return nil, WrapOCRError(op, err, "")
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.client.SetImage(rendered.Path); err != nil {
		os.Remove(rendered.Path)
		return nil, NewOCRError(op, ErrOCRFailed, fmt.Sprintf("set image: %v", err))
	}
	boxes, err := t.client.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil {
		os.Remove(rendered.Path)
		return nil, NewOCRError(op, ErrOCRFailed, err.Error())
	}

	out := &models.OCRPage{
		ImageWidth:  float64(rendered.Width),
		ImageHeight: float64(rendered.Height),
		ImagePath:   rendered.Path,
	}
	for _, b := range boxes {
		text := strings.TrimSpace(b.Word)
		if text == "" {
			continue
		}
		out.Words = append(out.Words, models.OCRWord{
			Text:       text,
			Left:       float64(b.Box.Min.X),
			Top:        float64(b.Box.Min.Y),
			Width:      float64(b.Box.Dx()),
			Height:     float64(b.Box.Dy()),
			Confidence: b.Confidence,
		})
	}

	t.log.Debug().
		Str("file", req.Path).
		Int("page", req.Page).
		Int("words", len(out.Words)).
		Msg("Tesseract page recognized")
	return out, nil
}

// Close releases Tesseract resources.
func (t *TesseractEngine) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.client != nil {
		return t.client.Close()
	}
	return nil
}
