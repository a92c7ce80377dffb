package layout

import (
	"sort"
	"strings"
	"unicode"

	"invoicelayout/pkg/models"
)

// ColumnConfig tunes gap-based column detection.
type ColumnConfig struct {
	MinGap        float64 `toml:"min_gap"`        // points between token centres
	MaxGaps       int     `toml:"max_gaps"`       // above this, the threshold is raised
	GapEscalation float64 `toml:"gap_escalation"` // multiplier on the median gap
}

func DefaultColumnConfig() ColumnConfig {
	return ColumnConfig{MinGap: 20, MaxGaps: 10, GapEscalation: 1.5}
}

// ColumnField is the semantic role a table column plays.
type ColumnField string

const (
	ColumnDescription ColumnField = "description"
	ColumnQuantity    ColumnField = "quantity"
	ColumnUnit        ColumnField = "unit"
	ColumnUnitPrice   ColumnField = "unit_price"
	ColumnVAT         ColumnField = "vat_percent"
	ColumnNet         ColumnField = "netto"
)

// columnKeywords are matched against header tokens in this field order;
// the first field to claim a token keeps it.
var columnKeywords = []struct {
	field    ColumnField
	keywords []string
}{
	{ColumnUnitPrice, []string{"à-pris", "a-pris", "á-pris", "apris", "à", "pris", "price", "einzelpreis", "stückpreis"}},
	{ColumnQuantity, []string{"antal", "ant", "qty", "quantity", "kvantitet", "menge", "anzahl"}},
	{ColumnUnit, []string{"enhet", "enh", "unit", "einheit", "me"}},
	{ColumnVAT, []string{"moms%", "moms", "vat%", "vat", "mwst", "ust"}},
	{ColumnNet, []string{"belopp", "summa", "netto", "amount", "total", "gesamt", "betrag"}},
	{ColumnDescription, []string{"beskrivning", "benämning", "artikel", "description", "text", "produkt", "bezeichnung", "item", "specifikation"}},
}

// ColumnLayout describes the detected columns of a zone.
type ColumnLayout struct {
	Centers  []float64           `json:"centers"`
	Dividers []float64           `json:"dividers"`
	Mapping  map[ColumnField]int `json:"mapping,omitempty"`
}

// FieldAt returns the semantic field of column idx, if mapped.
func (c ColumnLayout) FieldAt(idx int) (ColumnField, bool) {
	for field, col := range c.Mapping {
		if col == idx {
			return field, true
		}
	}
	return "", false
}

// Assign returns the index of the column centre nearest to x. Ties go to
// the left column.
func (c ColumnLayout) Assign(x float64) int {
	best, bestDist := 0, -1.0
	for i, center := range c.Centers {
		d := x - center
		if d < 0 {
			d = -d
		}
		if bestDist < 0 || d < bestDist {
			best, bestDist = i, d
		}
	}
	return best
}

type ColumnDetector struct {
	config ColumnConfig
}

func NewColumnDetector(config ColumnConfig) *ColumnDetector {
	return &ColumnDetector{config: config}
}

// Detect finds column boundaries from gaps between sorted token centres.
// Columns are bounded by the page edges and the midpoints of wide gaps.
func (d *ColumnDetector) Detect(tokens []models.Token, pageWidth float64) ColumnLayout {
	if len(tokens) == 0 {
		return ColumnLayout{}
	}
	centers := make([]float64, len(tokens))
	for i, t := range tokens {
		centers[i] = t.CenterX()
	}
	sort.Float64s(centers)

	type gap struct{ size, mid float64 }
	var gaps []gap
	for i := 1; i < len(centers); i++ {
		if size := centers[i] - centers[i-1]; size > d.config.MinGap {
			gaps = append(gaps, gap{size: size, mid: (centers[i] + centers[i-1]) / 2})
		}
	}

	if len(gaps) > d.config.MaxGaps {
		sizes := make([]float64, len(gaps))
		for i, g := range gaps {
			sizes[i] = g.size
		}
		threshold := d.config.GapEscalation * Median(sizes)
		kept := gaps[:0]
		for _, g := range gaps {
			if g.size > threshold {
				kept = append(kept, g)
			}
		}
		gaps = kept
	}

	if len(gaps) == 0 {
		return ColumnLayout{Centers: []float64{Median(centers)}}
	}

	dividers := make([]float64, len(gaps))
	for i, g := range gaps {
		dividers[i] = g.mid
	}
	bounds := append([]float64{0}, dividers...)
	bounds = append(bounds, pageWidth)
	cols := make([]float64, 0, len(bounds)-1)
	for i := 1; i < len(bounds); i++ {
		cols = append(cols, (bounds[i-1]+bounds[i])/2)
	}
	return ColumnLayout{Centers: cols, Dividers: dividers}
}

// MapHeader assigns semantic fields to columns using the keywords found in
// a table header row. It returns nil when no field matches.
func (d *ColumnDetector) MapHeader(header models.Row, columns ColumnLayout) map[ColumnField]int {
	if len(columns.Centers) == 0 {
		return nil
	}
	claimed := make(map[int]bool)
	mapping := make(map[ColumnField]int)
	for _, entry := range columnKeywords {
		for i, tok := range header.Tokens {
			if claimed[i] || !matchesKeyword(tok.Text, entry.keywords) {
				continue
			}
			claimed[i] = true
			mapping[entry.field] = columns.Assign(tok.CenterX())
			break
		}
	}
	if len(mapping) == 0 {
		return nil
	}
	return mapping
}

// HeaderMatches counts how many column fields a row's tokens name.
func HeaderMatches(row models.Row) int {
	n := 0
	for _, entry := range columnKeywords {
		for _, tok := range row.Tokens {
			if matchesKeyword(tok.Text, entry.keywords) {
				n++
				break
			}
		}
	}
	return n
}

func matchesKeyword(text string, keywords []string) bool {
	word := strings.ToLower(strings.TrimFunc(text, func(r rune) bool {
		return unicode.IsPunct(r) && r != '%' && r != '-'
	}))
	for _, kw := range keywords {
		if word == kw {
			return true
		}
	}
	return false
}
