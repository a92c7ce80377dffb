package pdftext

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"github.com/tsawler/tabula/reader"
	"github.com/tsawler/tabula/text"

	"invoicelayout/internal/logger"
	"invoicelayout/pkg/models"
)

type tabulaDocument struct {
	mu    sync.Mutex
	r     *reader.Reader
	count int
	log   zerolog.Logger
}

// OpenTabula opens path with the tabula reader.
func OpenTabula(path string) (Document, error) {
	r, err := reader.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	count, err := r.PageCount()
	if err != nil {
		r.Close()
		return nil, fmt.Errorf("page count %s: %w", path, err)
	}
	return &tabulaDocument{
		r:     r,
		count: count,
		log:   logger.WithDocument("pdftext.tabula", path),
	}, nil
}

func (d *tabulaDocument) PageCount() int { return d.count }

func (d *tabulaDocument) PageSize(page int) (float64, float64, error) {
	if err := checkPage(page, d.count); err != nil {
		return 0, 0, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	p, err := d.r.GetPage(page - 1)
	if err != nil {
		return 0, 0, err
	}
	width, err := p.Width()
	if err != nil {
		return 0, 0, err
	}
	height, err := p.Height()
	if err != nil {
		return 0, 0, err
	}
	return width, height, nil
}

func (d *tabulaDocument) Words(page int) ([]models.NativeWord, error) {
	if err := checkPage(page, d.count); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	p, err := d.r.GetPage(page - 1)
	if err != nil {
		return nil, err
	}
	height, err := p.Height()
	if err != nil {
		return nil, err
	}
	fragments, err := d.r.ExtractTextFragments(p)
	if err != nil {
		return nil, fmt.Errorf("text fragments: %w", err)
	}

	words := MergeRuns(fragmentRuns(fragments), height)
	d.log.Debug().Int("page", page).Int("fragments", len(fragments)).Int("words", len(words)).Msg("Native text read")
	return words, nil
}

func (d *tabulaDocument) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.r.Close()
}

func fragmentRuns(fragments []text.TextFragment) []Run {
	runs := make([]Run, 0, len(fragments))
	for _, f := range fragments {
		size := f.FontSize
		if size <= 0 {
			size = f.Height
		}
		runs = append(runs, Run{
			Text:     f.Text,
			X:        f.X,
			Baseline: f.Y,
			Width:    f.Width,
			FontName: f.FontName,
			FontSize: size,
		})
	}
	return runs
}
