// Package invoice turns the analyzed pages of one invoice range into a
// validated invoice: line items, header fields and a status.
//
// The extractor runs synchronously over the pages of a range, in page
// order, because wrap detection and total scoring both look at neighbouring
// rows. Per-page work that can run in parallel happens before, in the
// pipeline.
//
// Status values:
//   - OK: both critical fields pass the hard gate and the lines sum to the total
//   - PARTIAL: hard gate passed, the lines disagree with the total
//   - REVIEW: hard gate failed, total missing, or no lines
//   - FAILED: a structural error prevented building the record
package invoice

import (
	"github.com/rs/zerolog"

	"invoicelayout/internal/amount"
	"invoicelayout/internal/fields"
	"invoicelayout/internal/layout"
	"invoicelayout/internal/lineitems"
	"invoicelayout/internal/logger"
	"invoicelayout/pkg/models"
)

// Processor extracts one invoice from its analyzed pages.
type Processor interface {
	Extract(pages []layout.PageLayout) (*Extraction, error)
}

// Extraction is everything read from one invoice range.
type Extraction struct {
	Header     models.InvoiceHeader
	Lines      []models.InvoiceLine
	Validation models.ValidationResult
	Attempts   int
	Notes      []string
}

// Extractor is the default Processor.
type Extractor struct {
	lines     *lineitems.Parser
	fields    *fields.Extractor
	validator *Validator
	log       zerolog.Logger
}

func NewExtractor(lines *lineitems.Parser, fields *fields.Extractor, validator *Validator) *Extractor {
	return &Extractor{
		lines:     lines,
		fields:    fields,
		validator: validator,
		log:       logger.WithComponent("invoice"),
	}
}

// Extract parses lines, reads the header and validates the result. Only
// structural errors are returned; uncertainty ends up in the status.
func (x *Extractor) Extract(pages []layout.PageLayout) (*Extraction, error) {
	const op = "Extract"
	if len(pages) == 0 {
		return nil, NewExtractionError(op, ErrNoPages, "")
	}
	first, last := pages[0].Page.Number, pages[len(pages)-1].Page.Number

	zones, err := itemZones(pages)
	if err != nil {
		return nil, x.structural(op, err, first, last)
	}
	lines, err := x.lines.Parse(zones)
	if err != nil {
		return nil, x.structural(op, err, first, last)
	}

	totals := make([]float64, len(lines))
	for i, l := range lines {
		totals[i] = l.TotalAmount
	}
	res := x.fields.Extract(fields.Input{
		Pages:    pages,
		LinesSum: amount.Sum(totals),
		HasLines: len(lines) > 0,
	})

	validation := x.validator.Validate(res.Header, lines)

	x.log.Info().
		Int("page_start", first).
		Int("page_end", last).
		Str("invoice_number", res.Header.InvoiceNumber).
		Int("lines", len(lines)).
		Int("attempts", res.Attempts).
		Str("status", string(validation.Status)).
		Msg("Invoice extracted")

	return &Extraction{
		Header:     res.Header,
		Lines:      lines,
		Validation: validation,
		Attempts:   res.Attempts,
		Notes:      res.Notes,
	}, nil
}

func (x *Extractor) structural(op string, err error, first, last int) error {
	e := NewExtractionError(op, ErrStructural, err.Error())
	e.PageStart, e.PageEnd = first, last
	return e
}

// itemZones collects one zone per page: the items segment followed by the
// footer rows printed before the first summary row, since long tables
// often run past the footer boundary.
func itemZones(pages []layout.PageLayout) ([]lineitems.Zone, error) {
	var zones []lineitems.Zone
	for _, page := range pages {
		var rows []models.Row
		if seg, ok := page.Segment(models.SegmentItems); ok {
			rows = append(rows, seg.Rows...)
		}
		if seg, ok := page.Segment(models.SegmentFooter); ok {
			for _, r := range seg.Rows {
				if lineitems.IsSummaryRow(r.Text) {
					break
				}
				rows = append(rows, r)
			}
		}
		if len(rows) == 0 {
			continue
		}
		seg, err := models.NewSegment(models.SegmentItems, rows, page.Page.Number)
		if err != nil {
			return nil, err
		}
		zone := lineitems.Zone{Segment: seg, PageWidth: page.Page.Width}
		if header, ok := page.Segment(models.SegmentHeader); ok {
			zone.HeaderRows = header.Rows
		}
		zones = append(zones, zone)
	}
	return zones, nil
}
