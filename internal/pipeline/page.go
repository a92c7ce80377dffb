package pipeline

import (
	"context"
	"fmt"
	"strings"

	"invoicelayout/internal/layout"
	"invoicelayout/internal/ocr"
	"invoicelayout/internal/pdftext"
	"invoicelayout/pkg/models"
)

// PageResult records how one page was read.
type PageResult struct {
	Page    int               `json:"page"`
	Source  models.TextSource `json:"source"`
	Tokens  int               `json:"tokens"`
	Rows    int               `json:"rows"`
	Quality float64           `json:"quality"`
	Routing string            `json:"routing"`
	Notes   []string          `json:"notes,omitempty"`
	Error   string            `json:"error,omitempty"` // structural failure
}

type pageOutcome struct {
	layout layout.PageLayout
	result PageResult
	err    error
}

// readPage tokenizes and analyzes one page. Text-source failures become
// notes and leave the page with whatever tokens could be read. Only
// structural errors and cancellation are returned.
func (p *Pipeline) readPage(ctx context.Context, doc pdftext.Document, page models.Page) pageOutcome {
	res := PageResult{Page: page.Number}

	words, err := doc.Words(page.Number)
	if err != nil {
		res.Notes = append(res.Notes, fmt.Sprintf("native text unavailable: %v", err))
		words = nil
	}

	native := page
	tokens, err := p.analyzer.Tokenizer.TokenizeNative(&native, words)
	if err != nil {
		return p.failedPage(page, res, err)
	}
	text := tokenText(tokens)
	decision := p.router.Route(text, ocr.QualityScore(text))
	res.Routing = decision.String()
	res.Quality = decision.Quality

	chosen := native
	if !decision.UseNative {
		ocrPage, quality, note, err := p.recognize(ctx, page)
		switch {
		case err != nil:
			return pageOutcome{err: err}
		case note != "":
			res.Notes = append(res.Notes, note)
		default:
			chosen = ocrPage
			res.Quality = quality
		}
	}

	pl, err := p.analyzer.Analyze(chosen)
	if err != nil {
		return p.failedPage(page, res, err)
	}
	res.Source = chosen.Source
	res.Tokens = len(chosen.Tokens)
	res.Rows = len(pl.Rows)
	return pageOutcome{layout: pl, result: res}
}

// recognize runs the OCR engine over a page. A missing engine or a failed
// recognition is reported as a note; only cancellation is an error.
func (p *Pipeline) recognize(ctx context.Context, page models.Page) (models.Page, float64, string, error) {
	if p.ocr == nil {
		return models.Page{}, 0, "ocr needed but no engine configured; native text kept", nil
	}
	result, err := p.ocr.Recognize(ctx, ocr.PageRequest{
		Path:   page.DocumentPath,
		Page:   page.Number,
		Width:  page.Width,
		Height: page.Height,
	})
	if err != nil {
		if ctx.Err() != nil {
			return models.Page{}, 0, "", ctx.Err()
		}
		return models.Page{}, 0, fmt.Sprintf("ocr failed: %v; native text kept", err), nil
	}

	scanned := page
	tokens, err := p.analyzer.Tokenizer.TokenizeOCR(&scanned, result)
	if err != nil {
		return models.Page{}, 0, fmt.Sprintf("ocr words rejected: %v; native text kept", err), nil
	}
	confidences := make([]float64, 0, len(tokens))
	for _, t := range tokens {
		if t.Confidence != nil {
			confidences = append(confidences, *t.Confidence)
		}
	}
	return scanned, ocr.OCRQualityScore(tokenText(tokens), confidences), "", nil
}

func (p *Pipeline) failedPage(page models.Page, res PageResult, err error) pageOutcome {
	res.Error = err.Error()
	p.log.Error().Err(err).Int("page", page.Number).Msg("Page failed structurally")
	return pageOutcome{
		layout: layout.PageLayout{Page: page, Index: layout.NewTokenIndex(nil)},
		result: res,
		err:    &pageError{page: page.Number, err: err},
	}
}

// pageError marks a structural failure of one page. It is recorded on the
// invoice range holding the page instead of aborting the document.
type pageError struct {
	page int
	err  error
}

func (e *pageError) Error() string { return fmt.Sprintf("page %d: %v", e.page, e.err) }
func (e *pageError) Unwrap() error { return e.err }

func tokenText(tokens []models.Token) string {
	parts := make([]string, len(tokens))
	for i, t := range tokens {
		parts[i] = t.Text
	}
	return strings.Join(parts, " ")
}
