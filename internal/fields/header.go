package fields

import (
	"regexp"
	"strings"
	"time"

	"invoicelayout/internal/layout"
	"invoicelayout/pkg/models"
)

var (
	dateLabels      = []string{"fakturadatum", "invoice date", "rechnungsdatum", "datum", "date", "dated", "päiväys"}
	vendorLabels    = []string{"leverantör", "säljare", "seller", "supplier", "from", "vendor", "lieferant", "verkäufer"}
	customerLabels  = []string{"faktureringsadress", "faktureras till", "bill to", "invoice to", "kundnamn", "kund", "customer", "köpare", "buyer", "rechnungsempfänger", "kunde"}
	referenceLabels = []string{"er referens", "your reference", "ert ordernr", "ordernummer", "order no", "po number", "purchase order", "bestellnummer", "referens", "reference", "ref"}

	datePattern = regexp.MustCompile(`\b(\d{4}-\d{2}-\d{2}|\d{1,2}[./]\d{1,2}[./]\d{4}|\d{4}\.\d{2}\.\d{2})\b`)

	// day first where day and month are ambiguous
	dateLayouts = []string{"2006-01-02", "2.1.2006", "02.01.2006", "2/1/2006", "02/01/2006", "2006.01.02"}
)

// maxLabelGap is the horizontal gap, in points, that ends a labelled value.
const maxLabelGap = 40

// headerFields fills the non-critical fields from the first page.
func (e *Extractor) headerFields(first layout.PageLayout, h *models.InvoiceHeader) {
	rows := first.Rows
	if seg, ok := first.Segment(models.SegmentHeader); ok {
		rows = seg.Rows
	}

	h.InvoiceDate = findDate(first, rows)
	h.Vendor = labelledValue(first, rows, vendorLabels)
	if h.Vendor == "" {
		h.Vendor = letterhead(rows)
	}
	h.Customer = labelledValue(first, rows, customerLabels)
	h.Reference = labelledValue(first, rows, referenceLabels)
}

// findDate prefers a labelled date and falls back to the first date in the
// header rows.
func findDate(page layout.PageLayout, rows []models.Row) *time.Time {
	if v := labelledValue(page, rows, dateLabels); v != "" {
		if d, ok := parseDate(v); ok {
			return &d
		}
	}
	for _, row := range rows {
		if d, ok := parseDate(row.Text); ok {
			return &d
		}
	}
	return nil
}

func parseDate(text string) (time.Time, bool) {
	m := datePattern.FindString(text)
	if m == "" {
		return time.Time{}, false
	}
	for _, format := range dateLayouts {
		if d, err := time.Parse(format, m); err == nil {
			return d, true
		}
	}
	return time.Time{}, false
}

// labelledValue returns the text printed after the first matching label in
// rows, next to it on a neighbouring baseline, or directly below it.
func labelledValue(page layout.PageLayout, rows []models.Row, labels []string) string {
	for _, row := range rows {
		lowered := lowerRow(row)
		hits := findKeywords(lowered.text, labels)
		for _, hit := range hits {
			// the label must be a whole word
			if hit.end < len(lowered.text) && isLetter(firstRune(lowered.text[hit.end:])) {
				continue
			}
			k := lowered.tokenAt(hit.end - 1)
			if k < 0 {
				continue
			}
			if v := valueRightOf(row.Tokens[k+1:], row.Tokens[k]); v != "" {
				return v
			}
			if page.Index == nil {
				continue
			}
			// a value set on a slightly different baseline can land in its own row
			if right := page.Index.RightOf(row.Tokens[k], maxLabelGap); len(right) > 0 {
				if v := valueFrom(page, right[0]); v != "" {
					return v
				}
			}
			below := page.Index.Below(row.Tokens[k], 2*row.Tokens[k].Height)
			if len(below) > 0 {
				if v := valueFrom(page, below[0]); v != "" {
					return v
				}
			}
		}
	}
	return ""
}

// valueRightOf joins the tokens after label until the first wide gap.
func valueRightOf(tokens []models.Token, label models.Token) string {
	var parts []string
	prevRight := label.Right()
	for _, t := range tokens {
		if t.X-prevRight > maxLabelGap {
			break
		}
		parts = append(parts, t.Text)
		prevRight = t.Right()
	}
	return strings.TrimSpace(strings.Trim(strings.Join(parts, " "), ":"))
}

// valueFrom reads the run of tokens starting at start on its own row.
func valueFrom(page layout.PageLayout, start models.Token) string {
	for _, row := range page.Rows {
		for i, t := range row.Tokens {
			if t.X == start.X && t.Y == start.Y && t.Text == start.Text {
				return strings.TrimSpace(start.Text + " " + valueRightOf(row.Tokens[i+1:], start))
			}
		}
	}
	return ""
}

// letterhead is the first header row made of words only.
func letterhead(rows []models.Row) string {
	for _, row := range rows {
		if hasDigit(row.Text) {
			continue
		}
		lower := strings.ToLower(row.Text)
		labelled := false
		for _, labels := range [][]string{numberKeywordsGeneric, customerLabels, referenceLabels, dateLabels} {
			if len(findKeywords(lower, labels)) > 0 {
				labelled = true
				break
			}
		}
		if labelled {
			continue
		}
		if strings.IndexFunc(row.Text, isLetter) < 0 {
			continue
		}
		return row.Text
	}
	return ""
}

func firstRune(s string) rune {
	for _, r := range s {
		return r
	}
	return 0
}
