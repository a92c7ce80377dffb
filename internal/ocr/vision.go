package ocr

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	vision "cloud.google.com/go/vision/v2/apiv1"
	"cloud.google.com/go/vision/v2/apiv1/visionpb"
	"github.com/googleapis/gax-go/v2"
	"github.com/rs/zerolog"
	"google.golang.org/api/option"

	"invoicelayout/internal/logger"
	"invoicelayout/pkg/models"
)

// MaxFileSizeBytes is the maximum file size for synchronous processing (20MB)
const MaxFileSizeBytes = 20 * 1024 * 1024

type fileAnnotator interface {
	BatchAnnotateFiles(ctx context.Context, req *visionpb.BatchAnnotateFilesRequest, opts ...gax.CallOption) (*visionpb.BatchAnnotateFilesResponse, error)
	Close() error
}

// VisionEngine annotates single PDF pages with Google Cloud Vision. Word
// boxes come back in page points, so ImageWidth and ImageHeight equal the
// page size and the tokenizer scale is 1.
type VisionEngine struct {
	client fileAnnotator
	log    zerolog.Logger

	mu      sync.Mutex
	path    string
	content []byte
}

// NewVisionEngine creates a Vision client with credentials from the
// environment: GOOGLE_CREDENTIALS first, then GOOGLE_APPLICATION_CREDENTIALS,
// then application default credentials.
func NewVisionEngine(ctx context.Context) (*VisionEngine, error) {
	const op = "NewVisionEngine"

	var client *vision.ImageAnnotatorClient
	var err error

	if credJSON := os.Getenv("GOOGLE_CREDENTIALS"); credJSON != "" {
		client, err = vision.NewImageAnnotatorClient(ctx, option.WithCredentialsJSON([]byte(credJSON)))
		if err != nil {
			return nil, WrapOCRError(op, err, "failed to create client with GOOGLE_CREDENTIALS")
		}
	} else if credFile := os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"); credFile != "" {
		client, err = vision.NewImageAnnotatorClient(ctx, option.WithCredentialsFile(credFile))
		if err != nil {
			return nil, WrapOCRError(op, err, "failed to create client with GOOGLE_APPLICATION_CREDENTIALS")
		}
	} else {
		client, err = vision.NewImageAnnotatorClient(ctx)
		if err != nil {
			return nil, WrapOCRError(op, ErrMissingCredentials, "no credentials found in environment")
		}
	}

	return newVisionEngine(client), nil
}

func newVisionEngine(client fileAnnotator) *VisionEngine {
	return &VisionEngine{
		client: client,
		log:    logger.WithComponent("ocr.vision"),
	}
}

// Recognize runs document text detection on one page of the PDF.
func (v *VisionEngine) Recognize(ctx context.Context, req PageRequest) (*models.OCRPage, error) {
	const op = "Recognize"
	start := time.Now()

	content, err := v.load(req.Path)
	if err != nil {
		return nil, WrapOCRError(op, err, req.Path)
	}

	resp, err := v.client.BatchAnnotateFiles(ctx, &visionpb.BatchAnnotateFilesRequest{
		Requests: []*visionpb.AnnotateFileRequest{
			{
				InputConfig: &visionpb.InputConfig{
					Content:  content,
					MimeType: "application/pdf",
				},
				Features: []*visionpb.Feature{
					{Type: visionpb.Feature_DOCUMENT_TEXT_DETECTION},
				},
				Pages: []int32{int32(req.Page)},
			},
		},
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, WrapOCRError(op, ctx.Err(), fmt.Sprintf("page %d", req.Page))
		}
		return nil, NewOCRError(op, ErrOCRFailed, fmt.Sprintf("Vision API call failed: %v", err))
	}
	if len(resp.Responses) == 0 {
		return nil, NewOCRError(op, ErrOCRFailed, "no response from Vision API")
	}
	fileResp := resp.Responses[0]
	if fileResp.Error != nil {
		return nil, NewOCRError(op, ErrOCRFailed, fmt.Sprintf("Vision API error: %s", fileResp.Error.Message))
	}
	if len(fileResp.Responses) == 0 {
		return &models.OCRPage{ImageWidth: req.Width, ImageHeight: req.Height}, nil
	}
	pageResp := fileResp.Responses[0]
	if pageResp.Error != nil {
		return nil, NewOCRError(op, ErrOCRFailed, fmt.Sprintf("page %d: %s", req.Page, pageResp.Error.Message))
	}

	result := visionWords(pageResp.FullTextAnnotation, req.Width, req.Height)
	v.log.Debug().
		Str("file", req.Path).
		Int("page", req.Page).
		Int("words", len(result.Words)).
		Dur("duration", time.Since(start)).
		Msg("Vision page annotated")
	return result, nil
}

func (v *VisionEngine) load(path string) ([]byte, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.path == path && v.content != nil {
		return v.content, nil
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.Size() > MaxFileSizeBytes {
		return nil, fmt.Errorf("%w: file size %d bytes", ErrPDFTooLarge, info.Size())
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if len(content) < 4 || string(content[:4]) != "%PDF" {
		return nil, fmt.Errorf("%w: missing PDF header", ErrInvalidPDF)
	}
	v.path, v.content = path, content
	return content, nil
}

// Close closes the underlying Vision client.
func (v *VisionEngine) Close() error {
	if v.client != nil {
		return v.client.Close()
	}
	return nil
}

// visionWords flattens the annotation into word boxes in page points. PDF
// input yields normalized vertices; pixel vertices are scaled by the
// annotated page size.
func visionWords(annotation *visionpb.TextAnnotation, width, height float64) *models.OCRPage {
	out := &models.OCRPage{ImageWidth: width, ImageHeight: height}
	if annotation == nil {
		return out
	}
	for _, page := range annotation.Pages {
		scaleX, scaleY := 1.0, 1.0
		if page.Width > 0 && page.Height > 0 {
			scaleX, scaleY = width/float64(page.Width), height/float64(page.Height)
		}
		for _, block := range page.Blocks {
			for _, paragraph := range block.Paragraphs {
				for _, word := range paragraph.Words {
					if w, ok := visionWord(word, width, height, scaleX, scaleY); ok {
						out.Words = append(out.Words, w)
					}
				}
			}
		}
	}
	return out
}

func visionWord(word *visionpb.Word, width, height, scaleX, scaleY float64) (models.OCRWord, bool) {
	var sb strings.Builder
	for _, s := range word.Symbols {
		sb.WriteString(s.Text)
	}
	text := strings.TrimSpace(sb.String())
	if text == "" || word.BoundingBox == nil {
		return models.OCRWord{}, false
	}

	var xs, ys []float64
	if nv := word.BoundingBox.NormalizedVertices; len(nv) > 0 {
		for _, p := range nv {
			xs = append(xs, float64(p.X)*width)
			ys = append(ys, float64(p.Y)*height)
		}
	} else {
		for _, p := range word.BoundingBox.Vertices {
			xs = append(xs, float64(p.X)*scaleX)
			ys = append(ys, float64(p.Y)*scaleY)
		}
	}
	if len(xs) == 0 {
		return models.OCRWord{}, false
	}
	left, right := minMax(xs)
	top, bottom := minMax(ys)

	return models.OCRWord{
		Text:       text,
		Left:       left,
		Top:        top,
		Width:      right - left,
		Height:     bottom - top,
		Confidence: float64(word.Confidence) * 100,
	}, true
}

func minMax(values []float64) (lo, hi float64) {
	lo, hi = values[0], values[0]
	for _, v := range values[1:] {
		lo, hi = min(lo, v), max(hi, v)
	}
	return lo, hi
}
