// Package boundary splits a multi-invoice PDF into page ranges, one per
// virtual invoice.
package boundary

import (
	"regexp"

	"github.com/rs/zerolog"

	"invoicelayout/internal/amount"
	"invoicelayout/internal/fields"
	"invoicelayout/internal/layout"
	"invoicelayout/internal/logger"
	"invoicelayout/pkg/models"
)

var (
	titlePattern = regexp.MustCompile(`(?i)(?:^|[^\p{L}])(faktura|invoice|rechnung|lasku)`)
	datePattern  = regexp.MustCompile(`\b(?:\d{4}-\d{2}-\d{2}|\d{1,2}[./]\d{1,2}[./]\d{2,4})\b`)
)

type Config struct {
	StrongScore     float64 `toml:"strong_score"`     // invoice-number score that starts an invoice alone
	WeakCorroborate float64 `toml:"weak_corroborate"` // candidate score that backs a title keyword
}

func DefaultConfig() Config {
	return Config{
		StrongScore:     0.95,
		WeakCorroborate: 0.6,
	}
}

// Range is an inclusive span of 1-based page numbers.
type Range struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Signal is the start-of-invoice evidence found on one page.
type Signal struct {
	Page   int     `json:"page"`
	Start  bool    `json:"start"`
	Strong bool    `json:"strong"`
	Number string  `json:"number,omitempty"`
	Score  float64 `json:"score"`
}

// Detector finds the pages where a new invoice begins.
type Detector struct {
	config Config
	fields *fields.Extractor
	log    zerolog.Logger
}

func NewDetector(config Config, extractor *fields.Extractor) *Detector {
	return &Detector{
		config: config,
		fields: extractor,
		log:    logger.WithComponent("boundary"),
	}
}

// Detect groups pages into invoice ranges. The first page always opens a
// range. A later page opens a new one only when it carries start evidence,
// the open range had evidence of its own, and the invoice numbers differ.
// With no evidence anywhere the whole document is one invoice.
func (d *Detector) Detect(pages []layout.PageLayout) []Range {
	if len(pages) == 0 {
		return nil
	}

	first := d.Signal(pages[0])
	current := Range{Start: pages[0].Page.Number, End: pages[0].Page.Number}
	openNumber, openSignal := first.Number, first.Start
	var ranges []Range

	for _, page := range pages[1:] {
		sig := d.Signal(page)
		if sig.Start && openSignal && sig.Number != openNumber {
			ranges = append(ranges, current)
			current = Range{Start: page.Page.Number, End: page.Page.Number}
			openNumber = sig.Number
			d.log.Debug().
				Int("page", page.Page.Number).
				Str("number", sig.Number).
				Bool("strong", sig.Strong).
				Msg("Invoice boundary")
			continue
		}
		current.End = page.Page.Number
		if sig.Start && !openSignal {
			openNumber, openSignal = sig.Number, true
		}
	}
	ranges = append(ranges, current)

	d.log.Debug().Int("pages", len(pages)).Int("invoices", len(ranges)).Msg("Boundary detection done")
	return ranges
}

// Signal inspects the header zone of one page. A candidate at or above the
// strong score starts an invoice by itself. A title keyword with an
// identifier on the same row starts one only when backed by a decent
// candidate score or a date or amount on that row.
func (d *Detector) Signal(page layout.PageLayout) Signal {
	sig := Signal{Page: page.Page.Number}
	cands := d.fields.InvoiceNumberCandidates([]layout.PageLayout{page}, fields.StrategyNone)
	if len(cands) == 0 {
		return sig
	}
	best := cands[0]
	sig.Score = best.Score

	if best.Score >= d.config.StrongScore {
		sig.Start, sig.Strong, sig.Number = true, true, best.Value
		return sig
	}

	for _, c := range cands {
		if c.Factors.Format == 0 || !titlePattern.MatchString(c.Row.Text) {
			continue
		}
		if c.Score >= d.config.WeakCorroborate || corroborated(c.Row) {
			sig.Start, sig.Number = true, c.Value
			return sig
		}
	}
	return sig
}

func corroborated(row models.Row) bool {
	return datePattern.MatchString(row.Text) || len(amount.Find(row.Text)) > 0
}
