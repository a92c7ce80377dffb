package ocr

import (
	"context"
	"errors"
	"image"
	"os"
	"path/filepath"
	"testing"

	"cloud.google.com/go/vision/v2/apiv1/visionpb"
	"github.com/googleapis/gax-go/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAnnotator struct {
	resp   *visionpb.BatchAnnotateFilesResponse
	err    error
	pages  []int32
	calls  int
	closed bool
}

func (f *fakeAnnotator) BatchAnnotateFiles(ctx context.Context, req *visionpb.BatchAnnotateFilesRequest, opts ...gax.CallOption) (*visionpb.BatchAnnotateFilesResponse, error) {
	f.calls++
	f.pages = append(f.pages, req.Requests[0].Pages...)
	return f.resp, f.err
}

func (f *fakeAnnotator) Close() error {
	f.closed = true
	return nil
}

func writePDF(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scan.pdf")
	require.NoError(t, os.WriteFile(path, []byte("%PDF-1.4\n%fake\n"), 0o600))
	return path
}

func word(text string, conf float32, poly *visionpb.BoundingPoly) *visionpb.Word {
	var symbols []*visionpb.Symbol
	for _, r := range text {
		symbols = append(symbols, &visionpb.Symbol{Text: string(r)})
	}
	return &visionpb.Word{Symbols: symbols, Confidence: conf, BoundingBox: poly}
}

func annotation(width, height int32, words ...*visionpb.Word) *visionpb.TextAnnotation {
	return &visionpb.TextAnnotation{
		Pages: []*visionpb.Page{{
			Width:  width,
			Height: height,
			Blocks: []*visionpb.Block{{
				Paragraphs: []*visionpb.Paragraph{{Words: words}},
			}},
		}},
	}
}

func TestVisionEngine_RecognizeNormalizedVertices(t *testing.T) {
	poly := &visionpb.BoundingPoly{NormalizedVertices: []*visionpb.NormalizedVertex{
		{X: 0.1, Y: 0.1}, {X: 0.2, Y: 0.1}, {X: 0.2, Y: 0.12}, {X: 0.1, Y: 0.12},
	}}
	fake := &fakeAnnotator{resp: &visionpb.BatchAnnotateFilesResponse{
		Responses: []*visionpb.AnnotateFileResponse{{
			Responses: []*visionpb.AnnotateImageResponse{{
				FullTextAnnotation: annotation(0, 0, word("Faktura", 0.98, poly)),
			}},
		}},
	}}
	engine := newVisionEngine(fake)
	path := writePDF(t)

	page, err := engine.Recognize(context.Background(), PageRequest{Path: path, Page: 2, Width: 595, Height: 842})
	require.NoError(t, err)
	assert.Equal(t, []int32{2}, fake.pages)
	assert.Equal(t, 595.0, page.ImageWidth)
	require.Len(t, page.Words, 1)

	w := page.Words[0]
	assert.Equal(t, "Faktura", w.Text)
	assert.InDelta(t, 59.5, w.Left, 1e-3)
	assert.InDelta(t, 84.2, w.Top, 1e-3)
	assert.InDelta(t, 59.5, w.Width, 1e-3)
	assert.InDelta(t, 16.84, w.Height, 1e-3)
	assert.InDelta(t, 98, w.Confidence, 1e-3)

	// the file is read once per document
	_, err = engine.Recognize(context.Background(), PageRequest{Path: path, Page: 3, Width: 595, Height: 842})
	require.NoError(t, err)
	assert.Equal(t, 2, fake.calls)

	require.NoError(t, engine.Close())
	assert.True(t, fake.closed)
}

func TestVisionWords_PixelVerticesAreScaled(t *testing.T) {
	poly := &visionpb.BoundingPoly{Vertices: []*visionpb.Vertex{
		{X: 100, Y: 200}, {X: 300, Y: 200}, {X: 300, Y: 240}, {X: 100, Y: 240},
	}}
	page := visionWords(annotation(1000, 2000, word("1 250,00", 0.5, poly), word("", 0.9, poly)), 595, 842)

	require.Len(t, page.Words, 1)
	w := page.Words[0]
	assert.InDelta(t, 59.5, w.Left, 1e-9)
	assert.InDelta(t, 119, w.Width, 1e-9)
	assert.InDelta(t, 84.2, w.Top, 1e-9)
	assert.InDelta(t, 16.84, w.Height, 1e-9)
}

func TestVisionEngine_Failures(t *testing.T) {
	engine := newVisionEngine(&fakeAnnotator{err: errors.New("unavailable")})

	_, err := engine.Recognize(context.Background(), PageRequest{Path: writePDF(t), Page: 1, Width: 595, Height: 842})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrOCRFailed)

	notPDF := filepath.Join(t.TempDir(), "note.txt")
	require.NoError(t, os.WriteFile(notPDF, []byte("hello"), 0o600))
	_, err = engine.Recognize(context.Background(), PageRequest{Path: notPDF, Page: 1, Width: 595, Height: 842})
	assert.ErrorIs(t, err, ErrInvalidPDF)

	var ocrErr *OCRError
	require.ErrorAs(t, err, &ocrErr)
	assert.Equal(t, "Recognize", ocrErr.Op)
}

func TestNew(t *testing.T) {
	engine, err := New(context.Background(), Options{Engine: "none"})
	require.NoError(t, err)
	assert.Nil(t, engine)

	_, err = New(context.Background(), Options{Engine: "abbyy"})
	assert.ErrorIs(t, err, ErrUnknownEngine)
}

func TestQualityScore(t *testing.T) {
	assert.Zero(t, QualityScore("   "))

	clean := QualityScore("Faktura 10023 Fakturadatum 2024-03-15 Summa 1 250,00 Moms 312,50 Att betala 1 562,50")
	garbage := QualityScore("#~~ ^^| ¦¦ ¬¬¬ ÿÿÿ ~~~~ |||| ^^^")
	assert.Greater(t, clean, 0.9)
	assert.Less(t, garbage, 0.5)
	assert.LessOrEqual(t, clean, 1.0)
}

func TestOCRQualityScore_BlendsMedianConfidence(t *testing.T) {
	text := "Faktura 10023 Summa 1 250,00"
	base := QualityScore(text)

	assert.InDelta(t, 0.7*base+0.3*0.8, OCRQualityScore(text, []float64{70, 90, 80}), 1e-9)
	assert.InDelta(t, 0.7*base, OCRQualityScore(text, nil), 1e-9)
}

func TestRouter_Route(t *testing.T) {
	router, err := NewRouter(DefaultRoutingConfig())
	require.NoError(t, err)

	invoiceText := "Faktura 10023 Fakturadatum 2024-03-15 Summa 1 250,00 Moms 312,50 Att betala 1 562,50"
	plainText := "Artikel 1 kostar 10,00 och artikel 2 kostar 20,00 styck idag"
	noAmounts := "Villkor och bestämmelser gäller enligt avtal som tecknats mellan parterna"

	tests := []struct {
		name    string
		text    string
		quality float64
		native  bool
		reasons []Reason
	}{
		{"empty", "  ", 0, false, []Reason{ReasonEmptyText}},
		{"good text", invoiceText, 0.9, true, nil},
		{"low quality rescued by anchor", invoiceText, 0.2, true, []Reason{ReasonLowQuality, ReasonOverride}},
		{"low quality without anchor", noAmounts, 0.2, false, []Reason{ReasonMissingRequired, ReasonLowQuality, ReasonNoOptional}},
		{"too short", "Summa 10,00", 0.9, false, []Reason{ReasonTooFewChars, ReasonTooFewWords}},
		{"no optional anchor is informational", plainText, 0.8, true, []Reason{ReasonNoOptional}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := router.Route(tt.text, tt.quality)
			assert.Equal(t, tt.native, d.UseNative)
			assert.Equal(t, tt.reasons, d.Reasons)
		})
	}
}

func TestRouter_OverrideDisabled(t *testing.T) {
	config := DefaultRoutingConfig()
	config.AllowOverride = false
	router, err := NewRouter(config)
	require.NoError(t, err)

	d := router.Route("Faktura 10023 Fakturadatum 2024-03-15 Summa 1 250,00 Moms 312,50", 0.2)
	assert.False(t, d.UseNative)
	assert.True(t, d.Has(ReasonLowQuality))
	assert.Equal(t, "ocr (low_quality)", d.String())
}

func TestNewRouter_RejectsBadPattern(t *testing.T) {
	_, err := NewRouter(RoutingConfig{RequiredAnchors: []string{"("}})
	require.Error(t, err)
}

func TestPreprocess_ScalesToTargetWidth(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 100, 50))
	img := Preprocess(src, 200)
	assert.Equal(t, 200, img.Bounds().Dx())
	assert.Equal(t, 100, img.Bounds().Dy())

	assert.Equal(t, 2479, targetWidth(595, 300))
	assert.Zero(t, targetWidth(0, 300))
}

func TestEmbeddedImageRenderer_Errors(t *testing.T) {
	r := NewEmbeddedImageRenderer(0, t.TempDir())

	_, err := r.Render(context.Background(), PageRequest{Path: filepath.Join(t.TempDir(), "missing.pdf"), Page: 1})
	require.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = r.Render(ctx, PageRequest{Path: "x.pdf", Page: 1})
	assert.ErrorIs(t, err, context.Canceled)
}
