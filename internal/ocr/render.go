package ocr

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"math"
	"os"

	"github.com/disintegration/imaging"
	"github.com/rs/zerolog"
	"github.com/tsawler/tabula/reader"

	"invoicelayout/internal/logger"
)

// DefaultDPI is the resolution page images are normalized to.
const DefaultDPI = 300

// EmbeddedImageRenderer renders scanned pages by extracting the largest
// embedded image of the page, the scan itself, and scaling it to the target
// DPI. Pages drawn only with vector content have no image to extract and
// return ErrNoPageImage.
type EmbeddedImageRenderer struct {
	dpi     int
	tempDir string
	log     zerolog.Logger
}

func NewEmbeddedImageRenderer(dpi int, tempDir string) *EmbeddedImageRenderer {
	if dpi <= 0 {
		dpi = DefaultDPI
	}
	return &EmbeddedImageRenderer{
		dpi:     dpi,
		tempDir: tempDir,
		log:     logger.WithComponent("ocr.render"),
	}
}

// Render writes a preprocessed PNG of the page to a temp file. The caller
// owns the file.
func (r *EmbeddedImageRenderer) Render(ctx context.Context, req PageRequest) (*RenderedPage, error) {
	const op = "Render"
	if err := ctx.Err(); err != nil {
		return nil, WrapOCRError(op, err, "")
	}

	src, err := r.pageImage(req)
	if err != nil {
		return nil, WrapOCRError(op, err, fmt.Sprintf("%s page %d", req.Path, req.Page))
	}
	img := Preprocess(src, targetWidth(req.Width, r.dpi))

	f, err := os.CreateTemp(r.tempDir, "invoice-page-*.png")
	if err != nil {
		return nil, WrapOCRError(op, err, "failed to create temp image")
	}
	defer f.Close()
	if err := imaging.Encode(f, img, imaging.PNG); err != nil {
		os.Remove(f.Name())
		return nil, WrapOCRError(op, err, "failed to encode page image")
	}

	bounds := img.Bounds()
	r.log.Debug().
		Str("file", req.Path).
		Int("page", req.Page).
		Int("width", bounds.Dx()).
		Int("height", bounds.Dy()).
		Msg("Page rendered")
	return &RenderedPage{Path: f.Name(), Width: bounds.Dx(), Height: bounds.Dy()}, nil
}

func (r *EmbeddedImageRenderer) pageImage(req PageRequest) (image.Image, error) {
	rd, err := reader.Open(req.Path)
	if err != nil {
		return nil, err
	}
	defer rd.Close()

	count, err := rd.PageCount()
	if err != nil {
		return nil, err
	}
	if req.Page < 1 || req.Page > count {
		return nil, ErrPageOutOfRange
	}
	page, err := rd.GetPage(req.Page - 1)
	if err != nil {
		return nil, err
	}
	images, err := rd.ExtractPageImages(page)
	if err != nil {
		return nil, err
	}

	best := -1
	for i, img := range images {
		if best < 0 || img.Width*img.Height > images[best].Width*images[best].Height {
			best = i
		}
	}
	if best < 0 {
		return nil, ErrNoPageImage
	}
	data, err := images[best].ToPNG()
	if err != nil {
		return nil, err
	}
	return imaging.Decode(bytes.NewReader(data))
}

// Preprocess prepares a scan for OCR: grayscale, contrast, sharpening and a
// resize to width pixels when width is positive.
func Preprocess(src image.Image, width int) image.Image {
	img := imaging.Grayscale(src)
	img = imaging.AdjustContrast(img, 20)
	img = imaging.Sharpen(img, 1.0)
	if width > 0 && img.Bounds().Dx() != width {
		img = imaging.Resize(img, width, 0, imaging.Lanczos)
	}
	return img
}

func targetWidth(pointsWidth float64, dpi int) int {
	if pointsWidth <= 0 {
		return 0
	}
	return int(math.Round(pointsWidth / 72 * float64(dpi)))
}
