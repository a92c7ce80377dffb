package fields

import (
	"regexp"
	"sort"
	"strings"

	"invoicelayout/internal/amount"
	"invoicelayout/internal/layout"
	"invoicelayout/pkg/models"
)

var (
	idPattern = regexp.MustCompile(`^[\p{L}\d][\p{L}\d\-/._]*$`)

	rejectedFormats = []*regexp.Regexp{
		regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`),
		regexp.MustCompile(`^\d{1,2}[./-]\d{1,2}[./-]\d{2,4}$`),
		regexp.MustCompile(`^(?:19|20)?\d{6}-\d{4}$`), // organisation or personal number
		regexp.MustCompile(`^[A-Z]{2}\d{10,12}$`),    // VAT registration number
		regexp.MustCompile(`^\d{1,3}(?:[.,]\d{1,2})?%$`),
	}
)

// NumberFactors is the per-factor breakdown of an invoice-number score,
// each in [0,1] before weighting.
type NumberFactors struct {
	Position   float64 `json:"position"`
	Keyword    float64 `json:"keyword"`
	Format     float64 `json:"format"`
	Uniqueness float64 `json:"uniqueness"`
	Confidence float64 `json:"confidence"`
}

// NumberCandidate is one scored reading of the invoice number.
type NumberCandidate struct {
	Value   string        `json:"value"`
	Score   float64       `json:"score"`
	Factors NumberFactors `json:"factors"`
	Row     models.Row    `json:"-"`
	Token   models.Token  `json:"-"`
}

// InvoiceNumberCandidates scores every identifier-like token in the search
// rows, best first.
func (e *Extractor) InvoiceNumberCandidates(pages []layout.PageLayout, strategy Strategy) []NumberCandidate {
	var out []NumberCandidate
	for i, page := range pages {
		for _, row := range e.numberSearchRows(page, i == 0, strategy) {
			out = append(out, e.scoreNumberRow(page, row, strategy)...)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		if out[i].Row.Page != out[j].Row.Page {
			return out[i].Row.Page < out[j].Row.Page
		}
		if out[i].Row.Index != out[j].Row.Index {
			return out[i].Row.Index < out[j].Row.Index
		}
		return out[i].Token.X < out[j].Token.X
	})
	return out
}

func (e *Extractor) numberSearchRows(page layout.PageLayout, first bool, strategy Strategy) []models.Row {
	switch {
	case strategy == StrategyBroaderSearch && first:
		return page.Rows
	case strategy != StrategyBroaderSearch && !first:
		return nil
	}
	seg, ok := page.Segment(models.SegmentHeader)
	if !ok {
		return nil
	}
	return seg.Rows
}

func (e *Extractor) scoreNumberRow(page layout.PageLayout, row models.Row, strategy Strategy) []NumberCandidate {
	lowered := lowerRow(row)
	keywords := numberKeywords
	if strategy == StrategyExtendedPatterns {
		keywords = append(append([]string{}, numberKeywords...), numberKeywordsExtended...)
	}
	specific := findKeywords(lowered.text, keywords)
	generic := findKeywords(lowered.text, numberKeywordsGeneric)

	position := positionFactor(page.SegmentOf(row))
	w := e.config.InvoiceNumber

	var out []NumberCandidate
	for i, tok := range row.Tokens {
		value, ok := e.cleanIdentifier(tok.Text, strategy)
		if !ok {
			continue
		}
		f := NumberFactors{
			Position:   position,
			Format:     e.formatFactor(value, strategy),
			Uniqueness: uniqueness(page, value),
			Confidence: confidenceFactor(tok),
		}
		// value may be glued to its label, as in "Nr:12345"
		start := lowered.spans[i][0]
		if at := strings.LastIndex(lowered.text[start:lowered.spans[i][1]], strings.ToLower(value)); at > 0 {
			start += at
		}
		switch {
		case labelledBy(lowered, specific, start):
			f.Keyword = 1
		case labelledBy(lowered, generic, start):
			f.Keyword = e.config.GenericKeywordFactor
		default:
			f.Keyword = e.adjacentKeyword(page, row, tok, keywords, strategy)
		}
		if strategy == StrategyConservative && f.Keyword < 1 {
			continue
		}

		score := w.Position*f.Position + w.Keyword*f.Keyword + w.Format*f.Format +
			w.Uniqueness*f.Uniqueness + w.Confidence*f.Confidence
		out = append(out, NumberCandidate{
			Value:   value,
			Score:   clamp01(score),
			Factors: f,
			Row:     row,
			Token:   tok,
		})
	}
	return out
}

// labelledBy reports whether the nearest keyword before start labels the
// token there: nothing between them but punctuation and at most two words
// without digits.
func labelledBy(row loweredRow, hits []keywordHit, start int) bool {
	nearest := -1
	for i, h := range hits {
		if h.end <= start {
			nearest = i
		}
	}
	if nearest < 0 {
		return false
	}
	gap := row.text[hits[nearest].end:start]
	if hasDigit(gap) {
		return false
	}
	return len(strings.Fields(strings.Trim(gap, " :#.-/"))) <= 2
}

// adjacentKeyword scores a keyword printed directly above the token in the
// previous row.
func (e *Extractor) adjacentKeyword(page layout.PageLayout, row models.Row, tok models.Token, keywords []string, strategy Strategy) float64 {
	if page.Index == nil || row.Index == 0 || row.Index > len(page.Rows) {
		return 0
	}
	above := page.Rows[row.Index-1]
	if row.Y-above.Y > 3*row.Height() {
		return 0
	}
	lowered := lowerRow(above)
	for _, hit := range findKeywords(lowered.text, keywords) {
		if hasDigit(lowered.text[hit.end:]) {
			continue
		}
		k := lowered.tokenAt(hit.start)
		if k < 0 {
			continue
		}
		label := above.Tokens[k]
		box := models.BBox{label.X - 20, label.Bottom(), label.Right() + 20, tok.Bottom()}
		for _, found := range page.Index.Search(box) {
			if found.X == tok.X && found.Y == tok.Y && found.Text == tok.Text {
				if strategy == StrategyAggressive {
					return min(1, 1.5*e.config.AdjacentRowFactor)
				}
				return e.config.AdjacentRowFactor
			}
		}
	}
	return 0
}

// cleanIdentifier strips label glue and punctuation from a token and
// reports whether what is left can be an invoice number.
func (e *Extractor) cleanIdentifier(text string, strategy Strategy) (string, bool) {
	if i := strings.LastIndex(text, ":"); i >= 0 {
		text = text[i+1:]
	}
	text = strings.TrimLeft(text, "#№(")
	text = strings.TrimRight(text, ".,;:)")
	if text == "" || !hasDigit(text) || !idPattern.MatchString(text) {
		return "", false
	}
	if len(amount.Find(text)) > 0 {
		return "", false
	}
	maxLen := e.config.MaxNumberLength
	if strategy == StrategyExtendedPatterns {
		maxLen += 5
	}
	if len(text) > maxLen {
		return "", false
	}
	return text, true
}

func (e *Extractor) formatFactor(value string, strategy Strategy) float64 {
	minLen := e.config.MinNumberLength
	if strategy == StrategyExtendedPatterns || strategy == StrategyAggressive {
		minLen--
	}
	if len(value) < minLen {
		return 0
	}
	for _, p := range rejectedFormats {
		if p.MatchString(value) {
			return 0
		}
	}
	digits := 0
	for _, r := range value {
		if r >= '0' && r <= '9' {
			digits++
		}
	}
	if float64(digits)/float64(len([]rune(value))) >= 0.5 {
		return 1
	}
	return 0.7
}

func positionFactor(kind models.SegmentType) float64 {
	switch kind {
	case models.SegmentHeader:
		return 1
	case models.SegmentItems:
		return 0.4
	}
	return 0.1
}

// uniqueness is 1 when the value occurs once on the page.
func uniqueness(page layout.PageLayout, value string) float64 {
	n := 0
	for _, t := range page.Page.Tokens {
		if strings.Contains(t.Text, value) {
			n++
		}
	}
	if n <= 1 {
		return 1
	}
	return 0.5
}

func confidenceFactor(tok models.Token) float64 {
	if tok.Confidence == nil {
		return 1
	}
	return clamp01(*tok.Confidence / 100)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
