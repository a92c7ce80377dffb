package lineitems

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"invoicelayout/internal/layout"
	"invoicelayout/pkg/models"
)

type word struct {
	text string
	x    float64
}

// rowAt builds a row of 10pt high tokens, 6pt per byte of text.
func rowAt(t *testing.T, index int, y float64, words ...word) models.Row {
	t.Helper()
	tokens := make([]models.Token, 0, len(words))
	for _, w := range words {
		tok, err := models.NewToken(w.text, w.x, y, float64(6*len(w.text)), 10, 1)
		require.NoError(t, err)
		tokens = append(tokens, tok)
	}
	row, err := models.NewRow(tokens, 1, index)
	require.NoError(t, err)
	return row
}

func itemsZone(t *testing.T, rows ...models.Row) Zone {
	t.Helper()
	seg, err := models.NewSegment(models.SegmentItems, rows, 1)
	require.NoError(t, err)
	return Zone{Segment: seg, PageWidth: 595}
}

func newParser() *Parser {
	return NewParser(DefaultConfig(), layout.NewColumnDetector(layout.DefaultColumnConfig()))
}

func TestParse_QuantityUnitPriceTotal(t *testing.T) {
	row := rowAt(t, 0, 300,
		word{"Produkt", 40}, word{"5", 300}, word{"st", 320}, word{"150,00", 400}, word{"300,00", 500})

	lines, err := newParser().Parse([]Zone{itemsZone(t, row)})
	require.NoError(t, err)
	require.Len(t, lines, 1)

	line := lines[0]
	assert.Equal(t, "Produkt", line.Description)
	require.NotNil(t, line.Quantity)
	assert.Equal(t, 5.0, *line.Quantity)
	assert.Equal(t, "st", line.Unit)
	require.NotNil(t, line.UnitPrice)
	assert.Equal(t, 150.0, *line.UnitPrice)
	assert.Equal(t, 300.0, line.TotalAmount)
	assert.Equal(t, 1, line.LineNumber)
}

func TestParse_NoAmountsYieldsNoLines(t *testing.T) {
	rows := []models.Row{
		rowAt(t, 0, 300, word{"Leveransadress", 40}),
		rowAt(t, 1, 314, word{"Storgatan", 40}, word{"12", 120}),
		rowAt(t, 2, 328, word{"Kundnummer", 40}, word{"12345", 120}),
	}
	lines, err := newParser().Parse([]Zone{itemsZone(t, rows...)})
	require.NoError(t, err)
	assert.Empty(t, lines)
}

func TestParse_SkipsSummaryRows(t *testing.T) {
	rows := []models.Row{
		rowAt(t, 0, 300, word{"Konsult", 40}, word{"1", 300}, word{"500,00", 400}, word{"500,00", 500}),
		rowAt(t, 1, 314, word{"Summa", 40}, word{"500,00", 500}),
		rowAt(t, 2, 328, word{"Moms", 40}, word{"25%", 300}, word{"125,00", 500}),
	}
	lines, err := newParser().Parse([]Zone{itemsZone(t, rows...)})
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.Equal(t, "Konsult", lines[0].Description)
}

func TestParse_SkipsCompoundSummaryLabels(t *testing.T) {
	for _, label := range []string{"Totalbelopp", "Slutsumma", "Fakturabelopp", "Nettosumma"} {
		t.Run(label, func(t *testing.T) {
			rows := []models.Row{
				rowAt(t, 0, 300, word{"Konsult", 40}, word{"10", 300}, word{"h", 320},
					word{"950,00", 400}, word{"9", 494}, word{"500,00", 506}),
				rowAt(t, 1, 314, word{label, 40}, word{"11", 494}, word{"875,00", 506}),
			}
			lines, err := newParser().Parse([]Zone{itemsZone(t, rows...)})
			require.NoError(t, err)
			require.Len(t, lines, 1)
			assert.Equal(t, "Konsult", lines[0].Description)
			assert.Equal(t, 9500.0, lines[0].TotalAmount)
		})
	}
}

func TestParse_SkipsCodeRowWithOutsizedAmount(t *testing.T) {
	rows := []models.Row{
		rowAt(t, 0, 300, word{"Skruv", 40}, word{"100,00", 500}),
		rowAt(t, 1, 314, word{"Mutter", 40}, word{"120,00", 500}),
		rowAt(t, 2, 328, word{"Bricka", 40}, word{"110,00", 500}),
		rowAt(t, 3, 342, word{"5050-1234", 40}, word{"99", 480}, word{"000,00", 500}),
	}
	lines, err := newParser().Parse([]Zone{itemsZone(t, rows...)})
	require.NoError(t, err)
	require.Len(t, lines, 3)
	for _, l := range lines {
		assert.Less(t, l.TotalAmount, 1000.0)
	}
}

func TestParse_DiscountAndVAT(t *testing.T) {
	row := rowAt(t, 0, 300,
		word{"Kampanj", 40}, word{"2", 250}, word{"st", 270}, word{"100,00", 300},
		word{"-50,00", 360}, word{"25%", 420}, word{"150,00", 500})

	lines, err := newParser().Parse([]Zone{itemsZone(t, row)})
	require.NoError(t, err)
	require.Len(t, lines, 1)

	line := lines[0]
	require.NotNil(t, line.Discount)
	assert.Equal(t, -50.0, *line.Discount)
	require.NotNil(t, line.VATRate)
	assert.Equal(t, 25.0, *line.VATRate)
	assert.Equal(t, 150.0, line.TotalAmount)
	assert.Equal(t, 2.0, *line.Quantity)
	assert.Equal(t, 100.0, *line.UnitPrice)
}

func TestParse_SpaceGroupedQuantityIsSplit(t *testing.T) {
	row := rowAt(t, 0, 300, word{"Skruv", 40}, word{"2", 300}, word{"150,00", 320}, word{"300,00", 500})

	lines, err := newParser().Parse([]Zone{itemsZone(t, row)})
	require.NoError(t, err)
	require.Len(t, lines, 1)
	require.NotNil(t, lines[0].Quantity)
	assert.Equal(t, 2.0, *lines[0].Quantity)
	assert.Equal(t, 150.0, *lines[0].UnitPrice)
}

func TestParse_WrappedDescription(t *testing.T) {
	rows := []models.Row{
		rowAt(t, 0, 300, word{"Konsulttjänster", 40}, word{"10", 250}, word{"h", 270},
			word{"850,00", 350}, word{"8", 450}, word{"500,00", 460}),
		rowAt(t, 1, 314, word{"avser", 42}, word{"mars", 80}, word{"2024", 110}),
		rowAt(t, 2, 328, word{"Resor", 40}, word{"1", 250}, word{"st", 270},
			word{"1", 350}, word{"200,00", 360}, word{"1", 450}, word{"200,00", 460}),
	}

	lines, err := newParser().Parse([]Zone{itemsZone(t, rows...)})
	require.NoError(t, err)
	require.Len(t, lines, 2)

	assert.Equal(t, "Konsulttjänster avser mars 2024", lines[0].Description)
	assert.Len(t, lines[0].Rows, 2)
	assert.Equal(t, 8500.0, lines[0].TotalAmount)
	assert.Equal(t, 10.0, *lines[0].Quantity)
	assert.Equal(t, "h", lines[0].Unit)

	assert.Equal(t, "Resor", lines[1].Description)
	assert.Equal(t, 1200.0, lines[1].TotalAmount)
	assert.Equal(t, 2, lines[1].LineNumber)
}

func TestParse_WrapStopsAtNewItemAndMisalignment(t *testing.T) {
	rows := []models.Row{
		rowAt(t, 0, 300, word{"Kabel", 40}, word{"100,00", 500}),
		rowAt(t, 1, 314, word{"12345", 40}, word{"Skarvdon", 80}),
		rowAt(t, 2, 328, word{"Lampa", 40}, word{"80,00", 500}),
		rowAt(t, 3, 342, word{"högerställd", 300}),
	}
	lines, err := newParser().Parse([]Zone{itemsZone(t, rows...)})
	require.NoError(t, err)
	require.Len(t, lines, 2)
	assert.Equal(t, "Kabel", lines[0].Description)
	assert.Len(t, lines[0].Rows, 1)
	assert.Equal(t, "Lampa", lines[1].Description)
	assert.Len(t, lines[1].Rows, 1)
}

func TestParse_WrapFoldingIsDeterministic(t *testing.T) {
	rows := []models.Row{
		rowAt(t, 0, 300, word{"Bord", 40}, word{"1", 300}, word{"st", 320}, word{"900,00", 500}),
		rowAt(t, 1, 314, word{"ek,", 45}, word{"oljad", 70}),
	}
	p := newParser()
	first, err := p.Parse([]Zone{itemsZone(t, rows...)})
	require.NoError(t, err)
	second, err := p.Parse([]Zone{itemsZone(t, rows...)})
	require.NoError(t, err)
	require.Len(t, first, 1)
	assert.Equal(t, "Bord ek, oljad", first[0].Description)
	assert.Equal(t, first[0].Description, second[0].Description)
}

func TestParse_ColumnMappedTable(t *testing.T) {
	header := rowAt(t, 0, 300,
		word{"Beskrivning", 27}, word{"Antal", 165}, word{"Enhet", 285}, word{"À-pris", 399}, word{"Belopp", 522})
	product := rowAt(t, 1, 315,
		word{"Frakt", 30}, word{"zon", 52}, word{"2", 70}, word{"1", 177}, word{"st", 294}, word{"45,00", 405}, word{"45,00", 525})

	zone := itemsZone(t, header, product)
	zone.PageWidth = 600
	lines, err := newParser().Parse([]Zone{zone})
	require.NoError(t, err)
	require.Len(t, lines, 1)

	line := lines[0]
	assert.Equal(t, "Frakt zon 2", line.Description)
	require.NotNil(t, line.Quantity)
	assert.Equal(t, 1.0, *line.Quantity)
	assert.Equal(t, "st", line.Unit)
	require.NotNil(t, line.UnitPrice)
	assert.Equal(t, 45.0, *line.UnitPrice)
}

func TestParse_PositionalModeIgnoresTableHeader(t *testing.T) {
	header := rowAt(t, 0, 300,
		word{"Beskrivning", 27}, word{"Antal", 165}, word{"Enhet", 285}, word{"À-pris", 399}, word{"Belopp", 522})
	product := rowAt(t, 1, 315,
		word{"Frakt", 30}, word{"zon", 52}, word{"2", 70}, word{"1", 177}, word{"st", 294}, word{"45,00", 405}, word{"45,00", 525})

	config := DefaultConfig()
	config.Mode = ModePositional
	p := NewParser(config, layout.NewColumnDetector(layout.DefaultColumnConfig()))
	lines, err := p.Parse([]Zone{itemsZone(t, header, product)})
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.Equal(t, 2.0, *lines[0].Quantity)
}

func TestParse_NumbersAcrossZones(t *testing.T) {
	z1 := itemsZone(t, rowAt(t, 0, 300, word{"A", 40}, word{"10,00", 500}))
	seg2, err := models.NewSegment(models.SegmentItems, []models.Row{rowAtPage(t, 2, 0, 300, word{"B", 40}, word{"20,00", 500})}, 2)
	require.NoError(t, err)

	lines, err := newParser().Parse([]Zone{z1, {Segment: seg2, PageWidth: 595}})
	require.NoError(t, err)
	require.Len(t, lines, 2)
	assert.Equal(t, 1, lines[0].LineNumber)
	assert.Equal(t, 2, lines[1].LineNumber)
	assert.Equal(t, 2, lines[1].Segment.Page)
}

func TestIsSummaryRow(t *testing.T) {
	assert.True(t, IsSummaryRow("Summa exkl. moms"))
	assert.True(t, IsSummaryRow("Öresutjämning 0,12"))
	assert.True(t, IsSummaryRow("Att betala 1 796,88"))
	assert.True(t, IsSummaryRow("Totalbelopp 11 875,00"))
	assert.True(t, IsSummaryRow("Slutsumma: 11 875,00"))
	assert.True(t, IsSummaryRow("Fakturabelopp"))
	assert.True(t, IsSummaryRow("Nettosumma 9 500,00"))
	assert.False(t, IsSummaryRow("Summer tires"))
	assert.False(t, IsSummaryRow("Beloppsgräns 500,00"))
	assert.False(t, IsSummaryRow("Momsfri tjänst"))
}

func rowAtPage(t *testing.T, page, index int, y float64, words ...word) models.Row {
	t.Helper()
	tokens := make([]models.Token, 0, len(words))
	for _, w := range words {
		tok, err := models.NewToken(w.text, w.x, y, float64(6*len(w.text)), 10, page)
		require.NoError(t, err)
		tokens = append(tokens, tok)
	}
	row, err := models.NewRow(tokens, page, index)
	require.NoError(t, err)
	return row
}
