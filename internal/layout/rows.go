package layout

import (
	"math"
	"sort"

	"invoicelayout/pkg/models"
)

// RowConfig bounds the vertical tolerance used to merge tokens into a row.
type RowConfig struct {
	MaxTolerance    float64 `toml:"max_tolerance"`     // points
	PageHeightRatio float64 `toml:"page_height_ratio"` // fraction of page height
}

func DefaultRowConfig() RowConfig {
	return RowConfig{MaxTolerance: 5, PageHeightRatio: 0.02}
}

type RowGrouper struct {
	config RowConfig
}

func NewRowGrouper(config RowConfig) *RowGrouper {
	return &RowGrouper{config: config}
}

// Tolerance returns the row tolerance for a page of the given height.
func (g *RowGrouper) Tolerance(pageHeight float64) float64 {
	return math.Min(g.config.MaxTolerance, g.config.PageHeightRatio*pageHeight)
}

// Group clusters tokens by (y, x). A token joins the running row while its y
// stays within tolerance of the row's first token.
func (g *RowGrouper) Group(tokens []models.Token, page models.Page) ([]models.Row, error) {
	if len(tokens) == 0 {
		return nil, nil
	}
	tolerance := g.Tolerance(page.Height)

	sorted := make([]models.Token, len(tokens))
	copy(sorted, tokens)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Y != sorted[j].Y {
			return sorted[i].Y < sorted[j].Y
		}
		return sorted[i].X < sorted[j].X
	})

	var rows []models.Row
	current := []models.Token{sorted[0]}
	refY := sorted[0].Y
	for _, tok := range sorted[1:] {
		if math.Abs(tok.Y-refY) <= tolerance {
			current = append(current, tok)
			continue
		}
		row, err := models.NewRow(current, page.Number, len(rows))
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
		current = []models.Token{tok}
		refY = tok.Y
	}
	row, err := models.NewRow(current, page.Number, len(rows))
	if err != nil {
		return nil, err
	}
	return append(rows, row), nil
}
