package lineitems

import (
	"regexp"

	"invoicelayout/internal/amount"
	"invoicelayout/internal/layout"
	"invoicelayout/pkg/models"
)

// newItemPatterns mark a row as the start of a new entry rather than a
// continuation of the previous description.
var newItemPatterns = []*regexp.Regexp{
	// article code
	regexp.MustCompile(`^(?:[A-Z]{1,4}[-.]?)?\d{3,}[\w\-./]*(?:\s|$)`),
	// dates
	regexp.MustCompile(`^\d{4}-\d{2}-\d{2}\b`),
	regexp.MustCompile(`^\d{1,2}[./]\d{1,2}[./]\d{2,4}\b`),
	// personal identity number
	regexp.MustCompile(`^(?:19|20)?\d{6}[-+]\d{4}\b`),
	// account code
	regexp.MustCompile(`^\d{4}\s`),
}

// WrapDetector finds the continuation rows of a product row.
type WrapDetector struct {
	config Config
}

func NewWrapDetector(config Config) *WrapDetector {
	return &WrapDetector{config: config}
}

// StartsNewItem reports whether text opens a new entry.
func (w *WrapDetector) StartsNewItem(text string) bool {
	for _, p := range newItemPatterns {
		if p.MatchString(text) {
			return true
		}
	}
	return false
}

// LineHeight is the median vertical pitch between consecutive rows on the
// same page, or the configured fallback with fewer than two rows.
func (w *WrapDetector) LineHeight(rows []models.Row) float64 {
	var pitches []float64
	for i := 1; i < len(rows); i++ {
		if rows[i].Page != rows[i-1].Page {
			continue
		}
		if d := rows[i].Y - rows[i-1].Y; d > 0 {
			pitches = append(pitches, d)
		}
	}
	if len(pitches) == 0 {
		return w.config.FallbackLineHeight
	}
	return layout.Median(pitches)
}

// Collect returns the leading rows of following that continue anchor's
// description. It stops at the first row that starts a new item, sits too
// far below, carries an amount, or is not aligned with the description.
func (w *WrapDetector) Collect(following []models.Row, anchor models.Row, anchorX, pageWidth, lineHeight float64) []models.Row {
	maxGap := w.config.WrapGapFactor * lineHeight
	prev := anchor
	var out []models.Row
	for _, r := range following {
		if r.Page != anchor.Page ||
			w.StartsNewItem(r.Text) ||
			r.Y-prev.Y > maxGap ||
			len(amount.Find(r.Text)) > 0 ||
			IsSummaryRow(r.Text) ||
			!w.aligned(r.XMin, anchorX, pageWidth) {
			break
		}
		out = append(out, r)
		prev = r
	}
	return out
}

func (w *WrapDetector) aligned(x, anchorX, pageWidth float64) bool {
	dx := x - anchorX
	return dx >= -w.config.WrapLeftTolerance*pageWidth && dx <= w.config.WrapRightIndent*pageWidth
}
