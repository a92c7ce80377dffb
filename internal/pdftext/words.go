package pdftext

import (
	"math"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"invoicelayout/pkg/models"
)

// Run is a piece of text drawn in one show operation: a glyph, a word
// fragment or a phrase. Coordinates are PDF user space.
type Run struct {
	Text     string
	X        float64 // left edge
	Baseline float64 // y, origin at page bottom
	Width    float64
	FontName string
	FontSize float64
}

const (
	// Glyph box above and below the baseline, as a share of the font size.
	ascent  = 0.8
	descent = 0.2

	// Runs closer than this share of the font size join into one word.
	joinGap = 0.15
	// Runs whose baselines differ by less than this share share a line.
	baselineTolerance = 0.3

	fallbackFontSize = 10
)

type piece struct {
	text        string
	left, right float64
	baseline    float64
	size        float64
	font        string
	spaceBefore bool
	spaceAfter  bool
}

// MergeRuns splits runs at whitespace, joins pieces that touch on the same
// baseline and converts the result to top-left page coordinates.
func MergeRuns(runs []Run, pageHeight float64) []models.NativeWord {
	pieces := splitRuns(runs)
	if len(pieces) == 0 {
		return nil
	}

	var words []models.NativeWord
	for _, line := range lines(pieces) {
		cur := line[0]
		for _, p := range line[1:] {
			if joins(cur, p) {
				cur.text += p.text
				cur.right = math.Max(cur.right, p.right)
				cur.spaceAfter = p.spaceAfter
				continue
			}
			words = append(words, toWord(cur, pageHeight))
			cur = p
		}
		words = append(words, toWord(cur, pageHeight))
	}
	return words
}

// lines clusters pieces by baseline, top of the page first, and orders
// each line left to right.
func lines(pieces []piece) [][]piece {
	sort.SliceStable(pieces, func(i, j int) bool { return pieces[i].baseline > pieces[j].baseline })

	var out [][]piece
	start := 0
	for i := 1; i <= len(pieces); i++ {
		if i < len(pieces) && pieces[start].baseline-pieces[i].baseline <= baselineTolerance*pieces[start].size {
			continue
		}
		line := pieces[start:i]
		sort.SliceStable(line, func(a, b int) bool { return line[a].left < line[b].left })
		out = append(out, line)
		start = i
	}
	return out
}

func splitRuns(runs []Run) []piece {
	var pieces []piece
	for _, r := range runs {
		total := utf8.RuneCountInString(r.Text)
		if total == 0 || strings.TrimSpace(r.Text) == "" {
			continue
		}
		size := r.FontSize
		if size <= 0 {
			size = fallbackFontSize
		}
		charWidth := r.Width / float64(total)

		idx, start := 0, -1
		var sb strings.Builder
		flush := func(end int, spaceAfter bool) {
			if start < 0 {
				return
			}
			pieces = append(pieces, piece{
				text:        sb.String(),
				left:        r.X + float64(start)*charWidth,
				right:       r.X + float64(end)*charWidth,
				baseline:    r.Baseline,
				size:        size,
				font:        r.FontName,
				spaceBefore: start > 0,
				spaceAfter:  spaceAfter,
			})
			sb.Reset()
			start = -1
		}
		for _, c := range r.Text {
			if unicode.IsSpace(c) {
				flush(idx, true)
			} else {
				if start < 0 {
					start = idx
				}
				sb.WriteRune(c)
			}
			idx++
		}
		flush(idx, false)
	}
	return pieces
}

func joins(a, b piece) bool {
	if a.spaceAfter || b.spaceBefore {
		return false
	}
	size := math.Max(a.size, b.size)
	gap := b.left - a.right
	return gap <= joinGap*size && gap > -size
}

func toWord(p piece, pageHeight float64) models.NativeWord {
	w := models.NativeWord{
		Text:   p.text,
		Left:   p.left,
		Right:  p.right,
		Top:    pageHeight - p.baseline - ascent*p.size,
		Bottom: pageHeight - p.baseline + descent*p.size,
	}
	if p.font != "" {
		w.Font = &models.Font{Name: p.font, Size: p.size}
	}
	return w
}
