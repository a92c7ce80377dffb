// Package layout turns positioned words into the geometric structure of an
// invoice page.
//
// The chain runs in four steps, each a pure function of its input:
//
//   - Tokenizer normalizes native or OCR words into models.Token values in
//     page points and appends them to the page in reading order.
//   - RowGrouper clusters tokens into rows by vertical proximity.
//   - SegmentIdentifier splits rows into header, items and footer zones.
//   - ColumnDetector finds column boundaries inside a zone.
//
// TokenIndex offers rtree lookups over tokens for neighbourhood queries
// such as "what sits right of this label".
package layout

import (
	"math"
	"sort"
	"strings"

	"golang.org/x/text/unicode/norm"

	"invoicelayout/pkg/models"
)

// TokenizerConfig controls provisional line clustering for reading order.
type TokenizerConfig struct {
	LineToleranceFactor float64 `toml:"line_tolerance_factor"` // multiplied by the median token height
	MinLineTolerance    float64 `toml:"min_line_tolerance"`
	MaxLineTolerance    float64 `toml:"max_line_tolerance"`
}

func DefaultTokenizerConfig() TokenizerConfig {
	return TokenizerConfig{
		LineToleranceFactor: 0.5,
		MinLineTolerance:    2,
		MaxLineTolerance:    15,
	}
}

// Tokenizer converts words from either text source into page tokens.
type Tokenizer struct {
	config TokenizerConfig
}

func NewTokenizer(config TokenizerConfig) *Tokenizer {
	return &Tokenizer{config: config}
}

// TokenizeNative converts embedded text words, already in points, into
// tokens and appends them to the page in reading order.
func (t *Tokenizer) TokenizeNative(page *models.Page, words []models.NativeWord) ([]models.Token, error) {
	tokens := make([]models.Token, 0, len(words))
	for _, w := range words {
		text := normalizeText(w.Text)
		width, height := w.Right-w.Left, w.Bottom-w.Top
		if text == "" || width <= 0 || height <= 0 {
			continue
		}
		tok, err := models.NewToken(text, w.Left, w.Top, width, height, page.Number)
		if err != nil {
			return nil, err
		}
		tok.Font = w.Font
		tokens = append(tokens, tok)
	}
	return t.finish(page, tokens, models.SourceNative), nil
}

// TokenizeOCR rescales OCR word boxes from image pixels to page points and
// appends them to the page in reading order.
func (t *Tokenizer) TokenizeOCR(page *models.Page, result *models.OCRPage) ([]models.Token, error) {
	if result == nil || result.ImageWidth <= 0 || result.ImageHeight <= 0 {
		return t.finish(page, nil, models.SourceOCR), nil
	}
	scaleX := page.Width / result.ImageWidth
	scaleY := page.Height / result.ImageHeight

	tokens := make([]models.Token, 0, len(result.Words))
	for _, w := range result.Words {
		text := normalizeText(w.Text)
		if text == "" || w.Width <= 0 || w.Height <= 0 {
			continue
		}
		tok, err := models.NewToken(text, w.Left*scaleX, w.Top*scaleY, w.Width*scaleX, w.Height*scaleY, page.Number)
		if err != nil {
			return nil, err
		}
		conf := w.Confidence
		tok.Confidence = &conf
		tokens = append(tokens, tok)
	}
	if result.ImagePath != "" {
		page.ImagePath = result.ImagePath
	}
	return t.finish(page, tokens, models.SourceOCR), nil
}

func (t *Tokenizer) finish(page *models.Page, tokens []models.Token, source models.TextSource) []models.Token {
	ordered := t.readingOrder(tokens)
	page.Tokens = append(page.Tokens, ordered...)
	page.Source = source
	return ordered
}

// readingOrder clusters tokens into provisional lines, top to bottom, then
// orders each line left to right.
func (t *Tokenizer) readingOrder(tokens []models.Token) []models.Token {
	if len(tokens) < 2 {
		return tokens
	}
	tolerance := t.lineTolerance(tokens)

	sorted := make([]models.Token, len(tokens))
	copy(sorted, tokens)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Y < sorted[j].Y })

	ordered := make([]models.Token, 0, len(sorted))
	var line []models.Token
	lineY := sorted[0].Y
	flush := func() {
		sort.SliceStable(line, func(i, j int) bool { return line[i].X < line[j].X })
		ordered = append(ordered, line...)
		line = line[:0]
	}
	for _, tok := range sorted {
		if len(line) > 0 && tok.Y-lineY > tolerance {
			flush()
		}
		if len(line) == 0 {
			lineY = tok.Y
		}
		line = append(line, tok)
	}
	flush()
	return ordered
}

func (t *Tokenizer) lineTolerance(tokens []models.Token) float64 {
	heights := make([]float64, len(tokens))
	for i, tok := range tokens {
		heights[i] = tok.Height
	}
	tol := t.config.LineToleranceFactor * Median(heights)
	return math.Max(t.config.MinLineTolerance, math.Min(t.config.MaxLineTolerance, tol))
}

func normalizeText(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}

// Median returns the median of values, or 0 for an empty slice.
func Median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}
