package models

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustToken(t *testing.T, text string, x, y, w, h float64) Token {
	t.Helper()
	tok, err := NewToken(text, x, y, w, h, 1)
	require.NoError(t, err)
	return tok
}

func TestNewToken_RejectsNegativeSize(t *testing.T) {
	_, err := NewToken("x", 0, 0, -1, 10, 1)
	require.Error(t, err)

	var geomErr *GeometryError
	assert.True(t, errors.As(err, &geomErr))
	assert.Equal(t, "token", geomErr.Kind)
	assert.ErrorIs(t, err, ErrInvalidGeometry)
}

func TestNewRow_SortsTokensLeftToRight(t *testing.T) {
	tokens := []Token{
		mustToken(t, "world", 100, 10, 40, 10),
		mustToken(t, "hello", 20, 12, 40, 10),
	}

	row, err := NewRow(tokens, 1, 0)
	require.NoError(t, err)

	assert.Equal(t, "hello world", row.Text)
	assert.Equal(t, 20.0, row.XMin)
	assert.Equal(t, 140.0, row.XMax)
	assert.InDelta(t, 11.0, row.Y, 1e-9)
	// caller's slice is left untouched
	assert.Equal(t, "world", tokens[0].Text)
}

func TestNewRow_Empty(t *testing.T) {
	_, err := NewRow(nil, 1, 0)
	assert.ErrorIs(t, err, ErrInvalidGeometry)
}

func TestNewRow_MixedPages(t *testing.T) {
	a := mustToken(t, "a", 0, 0, 5, 5)
	b := a
	b.Page = 2
	_, err := NewRow([]Token{a, b}, 1, 0)
	assert.ErrorIs(t, err, ErrInvalidGeometry)
}

func TestNewSegment(t *testing.T) {
	r1, err := NewRow([]Token{mustToken(t, "a", 0, 100, 5, 5)}, 1, 0)
	require.NoError(t, err)
	r2, err := NewRow([]Token{mustToken(t, "b", 0, 140, 5, 5)}, 1, 1)
	require.NoError(t, err)

	seg, err := NewSegment(SegmentItems, []Row{r1, r2}, 1)
	require.NoError(t, err)
	assert.Equal(t, 100.0, seg.YMin)
	assert.Equal(t, 140.0, seg.YMax)

	_, err = NewSegment(SegmentItems, nil, 1)
	assert.ErrorIs(t, err, ErrInvalidGeometry)

	_, err = NewSegment("sidebar", []Row{r1}, 1)
	assert.ErrorIs(t, err, ErrInvalidGeometry)
}

func TestNewInvoiceLine_RequiresPositiveTotal(t *testing.T) {
	row, err := NewRow([]Token{mustToken(t, "a", 0, 0, 5, 5)}, 1, 0)
	require.NoError(t, err)

	_, err = NewInvoiceLine([]Row{row}, SegmentRef{Page: 1, Type: SegmentItems}, "a", 0, 1)
	assert.ErrorIs(t, err, ErrInvalidGeometry)

	line, err := NewInvoiceLine([]Row{row}, SegmentRef{Page: 1, Type: SegmentItems}, "a", 10, 1)
	require.NoError(t, err)

	wrapped := line.WithContinuation([]Row{row}, "a b")
	assert.Len(t, line.Rows, 1)
	assert.Len(t, wrapped.Rows, 2)
	assert.Equal(t, "a b", wrapped.Description)
}

func TestNewTraceability(t *testing.T) {
	long := strings.Repeat("å", 200)
	tok := mustToken(t, long, 10, 20, 30, 10)
	row, err := NewRow([]Token{tok}, 1, 3)
	require.NoError(t, err)

	tr, err := NewTraceability(FieldTotal, "100.00", 0.97, row, []Token{tok})
	require.NoError(t, err)
	assert.Equal(t, BBox{10, 20, 40, 30}, tr.Evidence.BBox)
	assert.Equal(t, 3, tr.Evidence.RowIndex)
	assert.Equal(t, MaxExcerptLength, len([]rune(tr.Evidence.TextExcerpt)))

	_, err = NewTraceability(FieldTotal, "100.00", 1.2, row, []Token{tok})
	assert.Error(t, err)
}

func TestMeetsHardGate(t *testing.T) {
	h := InvoiceHeader{InvoiceNumberConfidence: 0.95, TotalConfidence: 0.96}
	assert.True(t, h.MeetsHardGate())
	h.TotalConfidence = 0.94
	assert.False(t, h.MeetsHardGate())
}
