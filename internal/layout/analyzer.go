package layout

import (
	"invoicelayout/pkg/models"
)

// PageLayout is the geometric structure of one page.
type PageLayout struct {
	Page     models.Page      `json:"page"`
	Rows     []models.Row     `json:"rows"`
	Segments []models.Segment `json:"segments"`
	Index    *TokenIndex      `json:"-"`
}

// Segment returns the first segment of the given type, if present.
func (p PageLayout) Segment(kind models.SegmentType) (models.Segment, bool) {
	for _, s := range p.Segments {
		if s.Type == kind {
			return s, true
		}
	}
	return models.Segment{}, false
}

// SegmentOf reports which zone a row was placed in.
func (p PageLayout) SegmentOf(row models.Row) models.SegmentType {
	for _, s := range p.Segments {
		for _, r := range s.Rows {
			if r.Index == row.Index {
				return s.Type
			}
		}
	}
	return models.SegmentItems
}

// Config bundles the tunables of the geometric chain.
type Config struct {
	Tokenizer TokenizerConfig `toml:"tokenizer"`
	Rows      RowConfig       `toml:"rows"`
	Segments  SegmentConfig   `toml:"segments"`
	Columns   ColumnConfig    `toml:"columns"`
}

func DefaultConfig() Config {
	return Config{
		Tokenizer: DefaultTokenizerConfig(),
		Rows:      DefaultRowConfig(),
		Segments:  DefaultSegmentConfig(),
		Columns:   DefaultColumnConfig(),
	}
}

// Analyzer runs row grouping and segmentation over a tokenized page.
type Analyzer struct {
	Tokenizer *Tokenizer
	Rows      *RowGrouper
	Segments  *SegmentIdentifier
	Columns   *ColumnDetector
}

func NewAnalyzer(config Config) *Analyzer {
	return &Analyzer{
		Tokenizer: NewTokenizer(config.Tokenizer),
		Rows:      NewRowGrouper(config.Rows),
		Segments:  NewSegmentIdentifier(config.Segments),
		Columns:   NewColumnDetector(config.Columns),
	}
}

// Analyze groups the page's tokens into rows and zones.
func (a *Analyzer) Analyze(page models.Page) (PageLayout, error) {
	rows, err := a.Rows.Group(page.Tokens, page)
	if err != nil {
		return PageLayout{}, err
	}
	segments, err := a.Segments.Identify(rows, page)
	if err != nil {
		return PageLayout{}, err
	}
	return PageLayout{
		Page:     page,
		Rows:     rows,
		Segments: segments,
		Index:    NewTokenIndex(page.Tokens),
	}, nil
}
