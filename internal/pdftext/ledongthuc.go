package pdftext

import (
	"fmt"
	"os"
	"sync"

	"github.com/ledongthuc/pdf"
	"github.com/rs/zerolog"

	"invoicelayout/internal/logger"
	"invoicelayout/pkg/models"
)

// maxInheritDepth bounds the walk up the page tree for inherited keys.
const maxInheritDepth = 16

type ledongthucDocument struct {
	mu   sync.Mutex
	file *os.File
	r    *pdf.Reader
	log  zerolog.Logger
}

// OpenLedongthuc opens path with github.com/ledongthuc/pdf.
func OpenLedongthuc(path string) (Document, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return &ledongthucDocument{
		file: f,
		r:    r,
		log:  logger.WithDocument("pdftext.ledongthuc", path),
	}, nil
}

func (d *ledongthucDocument) PageCount() int { return d.r.NumPage() }

func (d *ledongthucDocument) PageSize(page int) (width, height float64, err error) {
	if err := checkPage(page, d.r.NumPage()); err != nil {
		return 0, 0, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("malformed page %d: %v", page, r)
		}
	}()

	p := d.r.Page(page)
	if p.V.IsNull() {
		return 0, 0, fmt.Errorf("invalid page %d", page)
	}
	box := inherited(p.V, "MediaBox")
	if box.IsNull() || box.Len() < 4 {
		return 0, 0, fmt.Errorf("page %d has no MediaBox", page)
	}
	return box.Index(2).Float64() - box.Index(0).Float64(), box.Index(3).Float64() - box.Index(1).Float64(), nil
}

// Words reads the glyph runs of a page. The library panics on some
// malformed content streams; that is reported as an error for the page.
func (d *ledongthucDocument) Words(page int) (words []models.NativeWord, err error) {
	_, height, err := d.PageSize(page)
	if err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	defer func() {
		if r := recover(); r != nil {
			words, err = nil, fmt.Errorf("malformed content on page %d: %v", page, r)
		}
	}()

	content := d.r.Page(page).Content()
	runs := make([]Run, 0, len(content.Text))
	for _, t := range content.Text {
		runs = append(runs, Run{
			Text:     t.S,
			X:        t.X,
			Baseline: t.Y,
			Width:    t.W,
			FontName: t.Font,
			FontSize: t.FontSize,
		})
	}

	words = MergeRuns(runs, height)
	d.log.Debug().Int("page", page).Int("glyphs", len(runs)).Int("words", len(words)).Msg("Native text read")
	return words, nil
}

func (d *ledongthucDocument) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.file.Close()
}

func inherited(v pdf.Value, key string) pdf.Value {
	for i := 0; i < maxInheritDepth && !v.IsNull(); i++ {
		if val := v.Key(key); !val.IsNull() {
			return val
		}
		v = v.Key("Parent")
	}
	return pdf.Value{}
}
