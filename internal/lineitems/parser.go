package lineitems

import (
	"math"
	"regexp"
	"sort"
	"strings"
	"unicode"

	"github.com/rs/zerolog"

	"invoicelayout/internal/amount"
	"invoicelayout/internal/layout"
	"invoicelayout/internal/logger"
	"invoicelayout/pkg/models"
)

var (
	summaryPattern = regexp.MustCompile(`(?i)(?:^|[^\p{L}])(` +
		`summa|totalt?|att betala|delsumma|subtotal|sub-total|` +
		`moms|mervärdesskatt|vat|mwst|ust|netto|brutto|` +
		`öresutjämning|öresavrundning|avrundning|rounding|` +
		`amount due|balance due|gesamtbetrag|zwischensumme|rechnungsbetrag|endbetrag` +
		`)(?:$|[^\p{L}])`)

	// Swedish compounds put the summary word last: totalbelopp, slutsumma.
	compoundSummaryPattern = regexp.MustCompile(`(?i)\p{L}(?:summa|belopp)(?:$|[^\p{L}])`)

	footerCodePattern = regexp.MustCompile(`^[A-Za-z]{0,4}[\s:.\-]*\d[\d\s\-./]*$`)

	vatRatePattern = regexp.MustCompile(`(?:^|\s)(\d{1,2}(?:[.,]\d{1,2})?)\s?%`)
)

// IsSummaryRow reports whether text reads like a subtotal, tax or total line.
func IsSummaryRow(text string) bool {
	return summaryPattern.MatchString(text) || compoundSummaryPattern.MatchString(text)
}

// Zone is one items segment together with the context needed to parse it.
type Zone struct {
	Segment    models.Segment
	PageWidth  float64
	HeaderRows []models.Row // header zone rows of the same page
}

// Parser turns item rows into invoice lines.
type Parser struct {
	config  Config
	columns *layout.ColumnDetector
	wraps   *WrapDetector
	units   map[string]bool
	log     zerolog.Logger
}

func NewParser(config Config, columns *layout.ColumnDetector) *Parser {
	units := make(map[string]bool, len(config.UnitCodes)+len(config.ProblematicUnits))
	for _, u := range config.UnitCodes {
		units[strings.ToLower(u)] = true
	}
	for _, u := range config.ProblematicUnits {
		units[strings.ToLower(u)] = true
	}
	return &Parser{
		config:  config,
		columns: columns,
		wraps:   NewWrapDetector(config),
		units:   units,
		log:     logger.WithComponent("lineitems"),
	}
}

// Parse reads lines from the zones in order and numbers them 1..n.
func (p *Parser) Parse(zones []Zone) ([]models.InvoiceLine, error) {
	var lines []models.InvoiceLine
	for _, zone := range zones {
		zoneLines, err := p.parseZone(zone, len(lines))
		if err != nil {
			return nil, err
		}
		lines = append(lines, zoneLines...)
	}
	return Resequence(lines), nil
}

// Resequence returns copies of lines numbered 1..n in slice order.
func Resequence(lines []models.InvoiceLine) []models.InvoiceLine {
	out := make([]models.InvoiceLine, len(lines))
	for i, l := range lines {
		out[i] = l.WithLineNumber(i + 1)
	}
	return out
}

func (p *Parser) parseZone(zone Zone, offset int) ([]models.InvoiceLine, error) {
	rows := zone.Segment.Rows
	cols := p.tableColumns(zone)
	median := medianLineTotal(rows)
	lineHeight := p.wraps.LineHeight(rows)

	var lines []models.InvoiceLine
	for i := 0; i < len(rows); i++ {
		row := rows[i]
		if IsSummaryRow(row.Text) || p.isFooterCode(row, median) {
			continue
		}
		parsed, ok := p.parseRow(row, cols)
		if !ok {
			continue
		}

		line, err := models.NewInvoiceLine([]models.Row{row}, zone.Segment.Ref(), parsed.description, parsed.total, offset+len(lines)+1)
		if err != nil {
			return nil, err
		}
		line.Quantity = parsed.quantity
		line.Unit = parsed.unit
		line.UnitPrice = parsed.unitPrice
		line.Discount = parsed.discount
		line.VATRate = parsed.vat

		if wrapped := p.wraps.Collect(rows[i+1:], row, parsed.anchorX, zone.PageWidth, lineHeight); len(wrapped) > 0 {
			line = line.WithContinuation(wrapped, foldDescription(parsed.description, wrapped))
			i += len(wrapped)
		}
		lines = append(lines, line)
	}

	p.log.Debug().
		Int("page", zone.Segment.Page).
		Int("rows", len(rows)).
		Int("lines", len(lines)).
		Bool("column_mapped", cols != nil).
		Msg("Parsed items zone")
	return lines, nil
}

// tableColumns detects columns and maps them to fields when a table header
// row can be found in the items zone or at the bottom of the header zone.
func (p *Parser) tableColumns(zone Zone) *layout.ColumnLayout {
	if p.config.Mode == ModePositional || p.columns == nil {
		return nil
	}
	var header *models.Row
	for i := range zone.Segment.Rows {
		r := zone.Segment.Rows[i]
		if layout.HeaderMatches(r) >= 2 && len(amount.Find(r.Text)) == 0 {
			header = &r
			break
		}
	}
	if header == nil {
		for i := len(zone.HeaderRows) - 1; i >= 0; i-- {
			if layout.HeaderMatches(zone.HeaderRows[i]) >= 2 {
				r := zone.HeaderRows[i]
				header = &r
				break
			}
		}
	}
	if header == nil {
		return nil
	}

	tokens := append([]models.Token{}, header.Tokens...)
	for _, r := range zone.Segment.Rows {
		if r.Index != header.Index || r.Page != header.Page {
			tokens = append(tokens, r.Tokens...)
		}
	}
	cols := p.columns.Detect(tokens, zone.PageWidth)
	cols.Mapping = p.columns.MapHeader(*header, cols)
	if cols.Mapping == nil {
		return nil
	}
	return &cols
}

type rowParse struct {
	description string
	anchorX     float64
	total       float64
	discount    *float64
	quantity    *float64
	unitPrice   *float64
	unit        string
	vat         *float64
}

type numeric struct {
	value    float64
	start    int
	end      int
	isAmount bool
}

type span struct{ start, end int }

func (p *Parser) parseRow(row models.Row, cols *layout.ColumnLayout) (rowParse, bool) {
	matches := amount.Find(row.Text)
	totalIdx := -1
	for j, m := range matches {
		if m.Value.IsPositive() {
			totalIdx = j
		}
	}
	if totalIdx < 0 {
		return rowParse{}, false
	}
	total := matches[totalIdx]
	out := rowParse{total: total.Float(), anchorX: row.XMin}

	cut := total.Start
	for _, m := range matches[:totalIdx] {
		if m.Negative {
			d := m.Float()
			out.discount = &d
			cut = min(cut, m.Start)
		}
	}

	spans := tokenSpans(row)
	nums := p.numbersBefore(row, spans, matches[:totalIdx], total)
	if len(nums) > 0 {
		cut = min(cut, nums[0].start)
	}

	switch {
	case len(nums) >= 2:
		q, u := nums[0].value, nums[len(nums)-1].value
		out.quantity, out.unitPrice = &q, &u
	case len(nums) == 1:
		v := nums[0].value
		if !nums[0].isAmount && v == math.Trunc(v) && v < p.config.SmallQuantityMax {
			out.quantity = &v
		} else {
			out.unitPrice = &v
		}
	}
	if out.quantity != nil {
		out.unit = p.unitAfter(row, spans, nums[0].end)
	}
	if m := vatRatePattern.FindStringSubmatch(row.Text); m != nil {
		if rate, ok := amount.ParseFloat(m[1]); ok {
			out.vat = &rate
		}
	}

	out.description = strings.TrimSpace(row.Text[:cut])
	if out.description == "" {
		out.description = strings.TrimSpace(row.Text[total.End:])
	}

	if cols != nil {
		p.applyColumns(row, spans, total, cols, &out)
	}
	return out, true
}

// numbersBefore lists the numbers left of the total that can stand for
// quantity or unit price, in reading order.
func (p *Parser) numbersBefore(row models.Row, spans []span, matches []amount.Match, total amount.Match) []numeric {
	var nums []numeric
	for _, m := range matches {
		if m.Negative {
			continue
		}
		if m.SpaceGrouped() {
			if lead, rest, ok := m.Split(); ok && lead == math.Trunc(lead) && amount.Within(lead*rest.Float(), total.Float(), 0.01) {
				nums = append(nums,
					numeric{value: lead, start: m.Start, end: rest.Start - 1},
					numeric{value: rest.Float(), start: rest.Start, end: rest.End, isAmount: true})
				continue
			}
		}
		nums = append(nums, numeric{value: m.Float(), start: m.Start, end: m.End, isAmount: true})
	}

	for k, tok := range row.Tokens {
		s := spans[k]
		if s.end > total.Start {
			break
		}
		if overlapsAny(s, matches) || !amount.IsNumber(tok.Text) {
			continue
		}
		if k+1 < len(row.Tokens) && strings.HasPrefix(row.Tokens[k+1].Text, "%") {
			continue
		}
		if k == 0 && digitCount(tok.Text) >= 4 {
			continue // leading article code
		}
		if v, ok := amount.ParseFloat(tok.Text); ok {
			nums = append(nums, numeric{value: v, start: s.start, end: s.end})
		}
	}
	sort.SliceStable(nums, func(i, j int) bool { return nums[i].start < nums[j].start })
	return nums
}

func (p *Parser) unitAfter(row models.Row, spans []span, end int) string {
	for k, s := range spans {
		if s.start > end && k < len(row.Tokens) {
			if unit := normalizeUnit(row.Tokens[k].Text); p.units[unit] {
				return unit
			}
			return ""
		}
	}
	return ""
}

// applyColumns overrides positional guesses with values read from mapped
// table columns, keeping the positional total.
func (p *Parser) applyColumns(row models.Row, spans []span, total amount.Match, cols *layout.ColumnLayout, out *rowParse) {
	groups := make(map[layout.ColumnField][]models.Token)
	for k, tok := range row.Tokens {
		if spans[k].start >= total.Start && spans[k].end <= total.End {
			continue
		}
		if field, ok := cols.FieldAt(cols.Assign(tok.CenterX())); ok {
			groups[field] = append(groups[field], tok)
		}
	}

	if toks := groups[layout.ColumnDescription]; len(toks) > 0 {
		out.description = joinTokens(toks, " ")
		out.anchorX = toks[0].X
	}
	if toks := groups[layout.ColumnQuantity]; len(toks) > 0 {
		if q, ok := amount.ParseFloat(toks[0].Text); ok {
			out.quantity = &q
		}
		if len(toks) > 1 {
			if unit := normalizeUnit(toks[1].Text); p.units[unit] {
				out.unit = unit
			}
		}
	}
	if toks := groups[layout.ColumnUnit]; len(toks) > 0 {
		out.unit = normalizeUnit(toks[0].Text)
	}
	if toks := groups[layout.ColumnUnitPrice]; len(toks) > 0 {
		if u, ok := amount.ParseFloat(joinTokens(toks, "")); ok && u >= 0 {
			out.unitPrice = &u
		}
	}
	if toks := groups[layout.ColumnVAT]; len(toks) > 0 {
		if v, ok := amount.ParseFloat(strings.TrimSuffix(joinTokens(toks, ""), "%")); ok {
			out.vat = &v
		}
	}
}

// isFooterCode catches short code-like rows that carry one amount far above
// the typical line total, such as a bank giro number next to the grand total.
func (p *Parser) isFooterCode(row models.Row, median float64) bool {
	matches := amount.Find(row.Text)
	if len(matches) != 1 || !matches[0].Value.IsPositive() || median <= 0 {
		return false
	}
	lead := strings.TrimSpace(row.Text[:matches[0].Start])
	if lead == "" || len(lead) >= p.config.FooterCodeMaxLength || !footerCodePattern.MatchString(lead) {
		return false
	}
	return matches[0].Float() > p.config.FooterAmountFactor*median
}

func medianLineTotal(rows []models.Row) float64 {
	var totals []float64
	for _, r := range rows {
		if IsSummaryRow(r.Text) {
			continue
		}
		matches := amount.Find(r.Text)
		for j := len(matches) - 1; j >= 0; j-- {
			if matches[j].Value.IsPositive() {
				totals = append(totals, matches[j].Float())
				break
			}
		}
	}
	return layout.Median(totals)
}

func foldDescription(description string, wrapped []models.Row) string {
	parts := []string{description}
	for _, r := range wrapped {
		parts = append(parts, r.Text)
	}
	return strings.TrimSpace(strings.Join(parts, " "))
}

func tokenSpans(row models.Row) []span {
	spans := make([]span, len(row.Tokens))
	pos := 0
	for i, t := range row.Tokens {
		spans[i] = span{start: pos, end: pos + len(t.Text)}
		pos = spans[i].end + 1
	}
	return spans
}

func overlapsAny(s span, matches []amount.Match) bool {
	for _, m := range matches {
		if s.start < m.End && m.Start < s.end {
			return true
		}
	}
	return false
}

func normalizeUnit(s string) string {
	return strings.ToLower(strings.TrimRight(strings.TrimSpace(s), ":,"))
}

func joinTokens(tokens []models.Token, sep string) string {
	parts := make([]string, len(tokens))
	for i, t := range tokens {
		parts[i] = t.Text
	}
	return strings.Join(parts, sep)
}

func digitCount(s string) int {
	n := 0
	for _, r := range s {
		if unicode.IsDigit(r) {
			n++
		}
	}
	return n
}
