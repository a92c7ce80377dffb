// Package pipeline runs invoice extraction over whole PDF files.
//
// For each document the pages are read concurrently: native text is
// tokenized, the routing decision picks native text or OCR, and the page is
// grouped into rows and zones. The analyzed pages are then merged in page
// order, split into virtual invoices by the boundary detector and each
// range is extracted and validated on its own. Invoices that end in REVIEW
// can be passed to an enricher for the non-critical header fields.
//
// A Pipeline holds no mutable state after New and may be shared between
// goroutines.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"invoicelayout/internal/boundary"
	"invoicelayout/internal/enrich"
	"invoicelayout/internal/fields"
	"invoicelayout/internal/invoice"
	"invoicelayout/internal/layout"
	"invoicelayout/internal/lineitems"
	"invoicelayout/internal/logger"
	"invoicelayout/internal/ocr"
	"invoicelayout/internal/pdftext"
	"invoicelayout/pkg/models"
)

// ErrUnreadable is returned when a file cannot be opened or has no valid
// page table. Nothing can be extracted from it.
var ErrUnreadable = errors.New("document unreadable")

// DocumentResult is everything extracted from one PDF.
type DocumentResult struct {
	Document *models.Document             `json:"document"`
	Pages    []PageResult                 `json:"pages"`
	Layouts  []layout.PageLayout          `json:"-"`
	Ranges   []boundary.Range             `json:"ranges"`
	Invoices []models.VirtualInvoiceResult `json:"invoices"`
	Duration time.Duration                `json:"duration"`
}

// Option customizes a Pipeline.
type Option func(*Pipeline)

// WithOCR sets the engine used for pages whose native text is rejected.
// Without one those pages keep their native tokens.
func WithOCR(engine ocr.Engine) Option {
	return func(p *Pipeline) { p.ocr = engine }
}

// WithOpener selects the native text backend.
func WithOpener(open pdftext.Opener) Option {
	return func(p *Pipeline) { p.open = open }
}

// WithEnricher sets the fallback for empty header fields of REVIEW invoices.
func WithEnricher(e enrich.Enricher) Option {
	return func(p *Pipeline) { p.enricher = e }
}

type Pipeline struct {
	config    Config
	open      pdftext.Opener
	ocr       ocr.Engine
	enricher  enrich.Enricher
	router    *ocr.Router
	analyzer  *layout.Analyzer
	boundary  *boundary.Detector
	extractor invoice.Processor
	log       zerolog.Logger
}

// New wires the extraction stages for config.
func New(config Config, opts ...Option) (*Pipeline, error) {
	router, err := ocr.NewRouter(config.Routing)
	if err != nil {
		return nil, fmt.Errorf("routing config: %w", err)
	}
	analyzer := layout.NewAnalyzer(config.Layout)
	fieldExtractor := fields.NewExtractor(config.Fields)

	p := &Pipeline{
		config:   config,
		open:     pdftext.OpenTabula,
		router:   router,
		analyzer: analyzer,
		boundary: boundary.NewDetector(config.Boundary, fieldExtractor),
		extractor: invoice.NewExtractor(
			lineitems.NewParser(config.LineItems, analyzer.Columns),
			fieldExtractor,
			invoice.NewValidator(config.Validator),
		),
		log: logger.WithComponent("pipeline"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Process extracts every virtual invoice of the PDF at path. Unreadable
// files and cancellation are errors. Anything else, including structural
// failures inside one invoice, is reported in the returned records.
func (p *Pipeline) Process(ctx context.Context, path string) (*DocumentResult, error) {
	start := time.Now()
	log := logger.WithDocument("pipeline", path)

	doc, err := p.open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnreadable, err)
	}
	defer doc.Close()

	loaded, err := pdftext.Load(doc, path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnreadable, err)
	}

	outcomes, err := p.readPages(ctx, doc, loaded.Pages)
	if err != nil {
		return nil, err
	}

	res := &DocumentResult{
		Document: loaded,
		Pages:    make([]PageResult, len(outcomes)),
		Layouts:  make([]layout.PageLayout, len(outcomes)),
	}
	for i, out := range outcomes {
		res.Pages[i] = out.result
		res.Layouts[i] = out.layout
		loaded.Pages[i] = out.layout.Page
	}

	res.Ranges = p.boundary.Detect(res.Layouts)
	for i, r := range res.Ranges {
		inv, err := p.buildInvoice(ctx, loaded, outcomes, r, i+1)
		if err != nil {
			return nil, err
		}
		res.Invoices = append(res.Invoices, inv)
	}
	res.Duration = time.Since(start)

	log.Info().
		Int("pages", loaded.PageCount).
		Int("invoices", len(res.Invoices)).
		Dur("duration", res.Duration).
		Msg("Document processed")
	return res, nil
}

// readPages analyzes pages concurrently. Results are stored by page
// position, so the merged order never depends on scheduling.
func (p *Pipeline) readPages(ctx context.Context, doc pdftext.Document, pages []models.Page) ([]pageOutcome, error) {
	outcomes := make([]pageOutcome, len(pages))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.config.pageWorkers())
	for i, page := range pages {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			out := p.readPage(gctx, doc, page)
			var pageErr *pageError
			if out.err != nil && !errors.As(out.err, &pageErr) {
				return out.err
			}
			outcomes[i] = out
			p.log.Debug().
				Int("page", page.Number).
				Str("source", string(out.result.Source)).
				Str("routing", out.result.Routing).
				Int("tokens", out.result.Tokens).
				Msg("Page analyzed")
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return outcomes, nil
}

func (p *Pipeline) buildInvoice(ctx context.Context, doc *models.Document, outcomes []pageOutcome, r boundary.Range, index int) (models.VirtualInvoiceResult, error) {
	res := models.VirtualInvoiceResult{
		ID:         InvoiceID(doc.Filepath, index, r),
		SourceFile: doc.Filename,
		Index:      index,
		PageStart:  r.Start,
		PageEnd:    r.End,
		Lines:      []models.InvoiceLine{},
	}

	span := outcomes[r.Start-1 : r.End]
	res.TextSource = textSource(span)
	res.Notes = append(res.Notes, fmt.Sprintf("text source: %s", res.TextSource))

	layouts := make([]layout.PageLayout, 0, len(span))
	var failed error
	for _, out := range span {
		for _, note := range out.result.Notes {
			res.Notes = append(res.Notes, fmt.Sprintf("page %d: %s", out.result.Page, note))
		}
		if out.err != nil && failed == nil {
			failed = out.err
		}
		layouts = append(layouts, out.layout)
	}
	if failed != nil {
		res.Status = models.StatusFailed
		res.Error = failed.Error()
		return res, nil
	}

	ext, err := p.extractor.Extract(layouts)
	if err != nil {
		res.Status = models.StatusFailed
		res.Error = err.Error()
		p.log.Error().Err(err).Str("file", doc.Filename).Int("index", index).Msg("Invoice extraction failed")
		return res, nil
	}

	header, validation := ext.Header, ext.Validation
	res.Status = validation.Status
	res.Header = &header
	res.Validation = &validation
	res.Attempts = ext.Attempts
	res.Notes = append(res.Notes, ext.Notes...)
	if len(ext.Lines) > 0 {
		res.Lines = ext.Lines
	}

	if res.Status == models.StatusReview && p.config.Enrich && p.enricher != nil {
		notes, err := p.enrichHeader(ctx, doc.Filepath, layouts, r, res.Header)
		if err != nil {
			return res, err
		}
		res.Notes = append(res.Notes, notes...)
	}
	return res, nil
}

// enrichHeader asks the enricher for the empty non-critical fields. A
// provider failure is a note; cancellation is returned.
func (p *Pipeline) enrichHeader(ctx context.Context, path string, layouts []layout.PageLayout, r boundary.Range, h *models.InvoiceHeader) ([]string, error) {
	req := enrich.Request{
		Path:      path,
		PageStart: r.Start,
		PageEnd:   r.End,
		Text:      rangeText(layouts),
		Header:    *h,
	}
	if len(req.Missing()) == 0 {
		return nil, nil
	}
	found, err := p.enricher.Enrich(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		p.log.Warn().Err(err).Str("provider", p.enricher.Name()).Msg("Enrichment failed")
		return []string{fmt.Sprintf("enrichment by %s failed: %v", p.enricher.Name(), err)}, nil
	}
	return enrich.Apply(p.enricher.Name(), h, found), nil
}

// InvoiceID derives a stable id from the absolute file path, the position
// of the invoice in the file and its page range. Files with the same name
// in different folders get different ids.
func InvoiceID(path string, index int, r boundary.Range) string {
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	name := fmt.Sprintf("invoicelayout:%s#%d:%d-%d", path, index, r.Start, r.End)
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(name)).String()
}

func textSource(span []pageOutcome) models.TextSource {
	var source models.TextSource
	for _, out := range span {
		s := out.result.Source
		switch {
		case s == models.SourceNone:
		case source == models.SourceNone:
			source = s
		case source != s:
			return models.SourceMixed
		}
	}
	return source
}

func rangeText(layouts []layout.PageLayout) string {
	var b strings.Builder
	for _, pl := range layouts {
		for _, row := range pl.Rows {
			b.WriteString(row.Text)
			b.WriteByte('\n')
		}
	}
	return b.String()
}
