package fields

import (
	"math"
	"sort"

	"invoicelayout/internal/amount"
	"invoicelayout/internal/layout"
	"invoicelayout/internal/lineitems"
	"invoicelayout/pkg/models"
)

// TotalFactors is the per-factor breakdown of a total-amount score.
type TotalFactors struct {
	Keyword  float64 `json:"keyword"`
	Position float64 `json:"position"`
	Math     float64 `json:"math"`
	Largest  float64 `json:"largest"`
	Tier     float64 `json:"tier_adjustment"`
}

// AmountCandidate is one scored reading of the invoice total.
type AmountCandidate struct {
	Value     float64        `json:"value"`
	Score     float64        `json:"score"`
	Tier      string         `json:"tier"`
	Validated bool           `json:"validated"`
	Factors   TotalFactors   `json:"factors"`
	Row       models.Row     `json:"-"`
	Tokens    []models.Token `json:"-"`
	Text      string         `json:"text"`
}

// Summary reduces the candidate to its exported record form.
func (c AmountCandidate) Summary() models.TotalCandidate {
	return models.TotalCandidate{
		Value:       c.Value,
		Score:       c.Score,
		KeywordTier: c.Tier,
		Validated:   c.Validated,
		Page:        c.Row.Page,
		RowIndex:    c.Row.Index,
		RowText:     c.Row.Text,
	}
}

// TotalCandidates scores every positive amount in the summary and footer
// rows of the invoice, best first. linesSum takes part only when hasLines.
func (e *Extractor) TotalCandidates(pages []layout.PageLayout, linesSum float64, hasLines bool, strategy Strategy) []AmountCandidate {
	extended := strategy == StrategyExtendedPatterns

	var out []AmountCandidate
	for _, page := range pages {
		for _, row := range e.totalSearchRows(page, strategy) {
			out = append(out, e.rowAmounts(page, row, extended, strategy)...)
		}
	}
	if strategy == StrategyConservative {
		kept := out[:0]
		for _, c := range out {
			if tier(c.Tier) != tierNone {
				kept = append(kept, c)
			}
		}
		out = kept
	}
	if len(out) == 0 {
		return nil
	}

	largest := 0.0
	for _, c := range out {
		largest = math.Max(largest, c.Value)
	}

	w := e.config.Total
	for i := range out {
		c := &out[i]
		c.Factors.Math, c.Validated = e.mathFactor(c.Value, linesSum, hasLines, strategy)
		if c.Value == largest {
			c.Factors.Largest = 1
		}
		switch tier(c.Tier) {
		case tierInclusive:
			c.Factors.Tier = e.config.InclusiveBoost
		case tierExclusive:
			c.Factors.Tier = -e.config.ExclusivePenalty
		}
		c.Score = clamp01(w.Keyword*c.Factors.Keyword + w.Position*c.Factors.Position +
			w.Math*c.Factors.Math + w.Largest*c.Factors.Largest + c.Factors.Tier)
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}

// SelectTotal picks the winner among candidates within the close-score
// margin of the best: an inclusive-tier candidate first, then one that
// agrees with the line sum, then the higher score.
func (e *Extractor) SelectTotal(candidates []AmountCandidate) (AmountCandidate, bool) {
	if len(candidates) == 0 {
		return AmountCandidate{}, false
	}
	best := candidates[0]
	top := best.Score
	for _, c := range candidates[1:] {
		if top-c.Score > e.config.CloseScoreMargin {
			break
		}
		if preferTotal(c, best) {
			best = c
		}
	}
	return best, true
}

func preferTotal(a, b AmountCandidate) bool {
	ai, bi := tier(a.Tier) == tierInclusive, tier(b.Tier) == tierInclusive
	if ai != bi {
		return ai
	}
	if a.Validated != b.Validated {
		return a.Validated
	}
	return a.Score > b.Score
}

func (e *Extractor) totalSearchRows(page layout.PageLayout, strategy Strategy) []models.Row {
	if strategy == StrategyBroaderSearch {
		return page.Rows
	}
	var rows []models.Row
	for _, row := range page.Rows {
		if page.SegmentOf(row) == models.SegmentFooter || lineitems.IsSummaryRow(row.Text) {
			rows = append(rows, row)
		}
	}
	return rows
}

// rowAmounts reads every positive amount of a row with the label printed
// before it, or the label on the row above when the amount stands alone.
func (e *Extractor) rowAmounts(page layout.PageLayout, row models.Row, extended bool, strategy Strategy) []AmountCandidate {
	matches := amount.Find(row.Text)
	var out []AmountCandidate
	labelFrom := 0
	for _, m := range matches {
		label := row.Text[labelFrom:m.Start]
		labelFrom = m.End
		v := m.Float()
		if v <= 0 {
			continue
		}
		t := classifyLabel(label, extended)
		if t == tierNone {
			t = e.labelAbove(page, row, extended, strategy)
		}
		tokens := spanTokens(row, m.Start, m.End)
		if len(tokens) == 0 {
			continue
		}

		c := AmountCandidate{
			Value:  amount.Round2(v),
			Tier:   string(t),
			Row:    row,
			Tokens: tokens,
			Text:   m.Text,
		}
		c.Factors.Keyword = keywordStrength(t)
		c.Factors.Position = e.totalPosition(page, row, tokens[len(tokens)-1])
		out = append(out, c)
	}
	return out
}

// labelAbove classifies the nearest rows above that carry no amount. The
// aggressive strategy looks two rows up instead of one.
func (e *Extractor) labelAbove(page layout.PageLayout, row models.Row, extended bool, strategy Strategy) tier {
	reach := 1
	if strategy == StrategyAggressive {
		reach = 2
	}
	for i := 1; i <= reach; i++ {
		idx := row.Index - i
		if idx < 0 || idx >= len(page.Rows) {
			break
		}
		above := page.Rows[idx]
		if len(amount.Find(above.Text)) > 0 {
			break
		}
		if t := classifyLabel(above.Text, extended); t != tierNone {
			return t
		}
	}
	return tierNone
}

func (e *Extractor) totalPosition(page layout.PageLayout, row models.Row, last models.Token) float64 {
	score := 0.0
	switch {
	case page.SegmentOf(row) == models.SegmentFooter:
		score += 0.5
	case lineitems.IsSummaryRow(row.Text):
		score += 0.25
	}
	if page.Page.Width > 0 && last.Right() >= e.config.RightAlignedRatio*page.Page.Width {
		score += 0.5
	}
	return score
}

// mathFactor rates agreement with the line sum, either directly or after
// adding one of the configured VAT rates. Near misses earn partial credit.
func (e *Extractor) mathFactor(value, linesSum float64, hasLines bool, strategy Strategy) (float64, bool) {
	if !hasLines || linesSum <= 0 {
		return 0, false
	}
	tolerance := math.Max(e.config.MathTolerance, e.config.MathTolerancePct*value)
	targets := []float64{linesSum}
	for _, rate := range e.config.VATRates {
		targets = append(targets, linesSum*(1+rate/100))
	}

	closest := math.Inf(1)
	for _, target := range targets {
		diff := math.Abs(value - target)
		if diff <= tolerance {
			return 1, true
		}
		closest = math.Min(closest, diff/value)
	}

	window := e.config.PartialCreditRange
	if strategy == StrategyAggressive {
		window *= 2
	}
	if window <= 0 || closest >= window {
		return 0, false
	}
	return 0.5 * (1 - closest/window), false
}
