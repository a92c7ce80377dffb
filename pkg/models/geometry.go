package models

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
)

// ErrInvalidGeometry is the sentinel wrapped by every GeometryError.
var ErrInvalidGeometry = errors.New("invalid geometry")

// GeometryError reports a structural invariant violation while building a
// token, row or segment. It is not recoverable; callers propagate it.
type GeometryError struct {
	Kind    string // "token", "row", "segment", "page", "line", "trace"
	Message string
}

func (e *GeometryError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Kind, e.Message)
}

func (e *GeometryError) Unwrap() error {
	return ErrInvalidGeometry
}

func geometryErrorf(kind, format string, args ...any) error {
	return &GeometryError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// BBox is an axis-aligned box in page points: x0, y0, x1, y1 with a top-left origin.
type BBox [4]float64

// Union returns the smallest box covering both b and o.
func (b BBox) Union(o BBox) BBox {
	return BBox{
		math.Min(b[0], o[0]),
		math.Min(b[1], o[1]),
		math.Max(b[2], o[2]),
		math.Max(b[3], o[3]),
	}
}

// Font describes the font a native text run was set in.
type Font struct {
	Name string  `json:"name"`
	Size float64 `json:"size"`
}

// Token is a single positioned word on a page.
type Token struct {
	Text       string   `json:"text"`
	X          float64  `json:"x"` // left edge, points
	Y          float64  `json:"y"` // top edge, points, origin at page top
	Width      float64  `json:"width"`
	Height     float64  `json:"height"`
	Page       int      `json:"page"`                 // 1-based page number
	Font       *Font    `json:"font,omitempty"`       // native text only
	Confidence *float64 `json:"confidence,omitempty"` // OCR only, 0-100
}

// NewToken builds a token and rejects negative dimensions.
func NewToken(text string, x, y, width, height float64, page int) (Token, error) {
	if width < 0 || height < 0 {
		return Token{}, geometryErrorf("token", "negative size %.2fx%.2f for %q", width, height, text)
	}
	if math.IsNaN(x) || math.IsNaN(y) || math.IsNaN(width) || math.IsNaN(height) {
		return Token{}, geometryErrorf("token", "NaN coordinate for %q", text)
	}
	if page < 1 {
		return Token{}, geometryErrorf("token", "page number %d out of range", page)
	}
	return Token{Text: text, X: x, Y: y, Width: width, Height: height, Page: page}, nil
}

func (t Token) Right() float64   { return t.X + t.Width }
func (t Token) Bottom() float64  { return t.Y + t.Height }
func (t Token) CenterX() float64 { return t.X + t.Width/2 }
func (t Token) CenterY() float64 { return t.Y + t.Height/2 }

func (t Token) BBox() BBox {
	return BBox{t.X, t.Y, t.Right(), t.Bottom()}
}

// Row is a horizontal band of tokens sharing a baseline.
type Row struct {
	Tokens []Token `json:"tokens"`
	Y      float64 `json:"y"` // mean token top
	XMin   float64 `json:"x_min"`
	XMax   float64 `json:"x_max"`
	Text   string  `json:"text"`
	Page   int     `json:"page"`
	Index  int     `json:"index"` // position within the page, top to bottom
}

// NewRow sorts a copy of tokens left to right and derives the row geometry.
func NewRow(tokens []Token, page, index int) (Row, error) {
	if len(tokens) == 0 {
		return Row{}, geometryErrorf("row", "row %d on page %d has no tokens", index, page)
	}
	sorted := make([]Token, len(tokens))
	copy(sorted, tokens)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].X < sorted[j].X })

	var sumY float64
	xMin, xMax := math.Inf(1), math.Inf(-1)
	texts := make([]string, 0, len(sorted))
	for _, t := range sorted {
		if t.Page != page {
			return Row{}, geometryErrorf("row", "token %q belongs to page %d, row is on page %d", t.Text, t.Page, page)
		}
		sumY += t.Y
		xMin = math.Min(xMin, t.X)
		xMax = math.Max(xMax, t.Right())
		texts = append(texts, t.Text)
	}
	if xMin > xMax {
		return Row{}, geometryErrorf("row", "x_min %.2f exceeds x_max %.2f", xMin, xMax)
	}

	return Row{
		Tokens: sorted,
		Y:      sumY / float64(len(sorted)),
		XMin:   xMin,
		XMax:   xMax,
		Text:   strings.Join(texts, " "),
		Page:   page,
		Index:  index,
	}, nil
}

// Height is the vertical extent of the row's tokens.
func (r Row) Height() float64 {
	top, bottom := math.Inf(1), math.Inf(-1)
	for _, t := range r.Tokens {
		top = math.Min(top, t.Y)
		bottom = math.Max(bottom, t.Bottom())
	}
	if top > bottom {
		return 0
	}
	return bottom - top
}

func (r Row) BBox() BBox {
	box := r.Tokens[0].BBox()
	for _, t := range r.Tokens[1:] {
		box = box.Union(t.BBox())
	}
	return box
}

// SegmentType names a vertical zone of a page.
type SegmentType string

const (
	SegmentHeader SegmentType = "header"
	SegmentItems  SegmentType = "items"
	SegmentFooter SegmentType = "footer"
)

// Segment is a contiguous vertical zone of rows.
type Segment struct {
	Type SegmentType `json:"type"`
	Rows []Row       `json:"rows"`
	YMin float64     `json:"y_min"`
	YMax float64     `json:"y_max"`
	Page int         `json:"page"`
}

// NewSegment derives the y-range from its rows; rows must be non-empty.
func NewSegment(kind SegmentType, rows []Row, page int) (Segment, error) {
	switch kind {
	case SegmentHeader, SegmentItems, SegmentFooter:
	default:
		return Segment{}, geometryErrorf("segment", "unknown segment type %q", kind)
	}
	if len(rows) == 0 {
		return Segment{}, geometryErrorf("segment", "%s segment on page %d has no rows", kind, page)
	}
	yMin, yMax := math.Inf(1), math.Inf(-1)
	for _, r := range rows {
		yMin = math.Min(yMin, r.Y)
		yMax = math.Max(yMax, r.Y)
	}
	return Segment{Type: kind, Rows: rows, YMin: yMin, YMax: yMax, Page: page}, nil
}

// Ref returns a non-owning reference to the segment.
func (s Segment) Ref() SegmentRef {
	return SegmentRef{Page: s.Page, Type: s.Type}
}

// SegmentRef points back at the segment a record was read from.
type SegmentRef struct {
	Page int         `json:"page"`
	Type SegmentType `json:"type"`
}
