package invoice

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"invoicelayout/internal/fields"
	"invoicelayout/internal/layout"
	"invoicelayout/internal/lineitems"
	"invoicelayout/pkg/models"
)

func ptr(v float64) *float64 { return &v }

func line(t *testing.T, n int, total float64) models.InvoiceLine {
	t.Helper()
	tok, err := models.NewToken("x", 10, float64(300+15*n), 10, 10, 1)
	require.NoError(t, err)
	row, err := models.NewRow([]models.Token{tok}, 1, n)
	require.NoError(t, err)
	l, err := models.NewInvoiceLine([]models.Row{row}, models.SegmentRef{Page: 1, Type: models.SegmentItems}, "x", total, n)
	require.NoError(t, err)
	return l
}

func TestStatus_IsPureFunctionOfItsInputs(t *testing.T) {
	tests := []struct {
		name     string
		gate     bool
		hasTotal bool
		hasLines bool
		diff     float64
		want     models.Status
	}{
		{"all good", true, true, true, 0.5, models.StatusOK},
		{"diff at tolerance", true, true, true, -1.0, models.StatusOK},
		{"diff beyond tolerance", true, true, true, 1.5, models.StatusPartial},
		{"gate failed", false, true, true, 0, models.StatusReview},
		{"no total", true, false, true, 0, models.StatusReview},
		{"no lines", true, true, false, 0, models.StatusReview},
		{"nothing", false, false, false, 99, models.StatusReview},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Status(tt.gate, tt.hasTotal, tt.hasLines, tt.diff, 1.0))
		})
	}
}

func TestValidate_InvoiceNumberAloneFailsHardGate(t *testing.T) {
	v := NewValidator(DefaultValidatorConfig())
	header := models.InvoiceHeader{
		InvoiceNumber:           "INV-7",
		InvoiceNumberConfidence: 0.90,
		TotalConfidence:         0.97,
		TotalAmount:             ptr(300),
	}
	res := v.Validate(header, []models.InvoiceLine{line(t, 1, 300)})

	assert.Equal(t, models.StatusReview, res.Status)
	assert.False(t, res.HardGatePassed)
	require.NotNil(t, res.Diff)
	assert.Zero(t, *res.Diff)
	assert.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0], "invoice number confidence 0.90")
}

func TestValidate_MissingTotalIsAlwaysReview(t *testing.T) {
	v := NewValidator(DefaultValidatorConfig())
	header := models.InvoiceHeader{InvoiceNumberConfidence: 1, TotalConfidence: 1}
	res := v.Validate(header, []models.InvoiceLine{line(t, 1, 100)})

	assert.Equal(t, models.StatusReview, res.Status)
	assert.Nil(t, res.Diff)
	assert.Equal(t, 1.0, res.Tolerance)
	assert.Contains(t, res.Errors, "total amount not found")
}

func TestValidate_ToleranceScalesWithTotal(t *testing.T) {
	v := NewValidator(DefaultValidatorConfig())
	header := models.InvoiceHeader{InvoiceNumberConfidence: 1, TotalConfidence: 1, TotalAmount: ptr(10000)}

	res := v.Validate(header, []models.InvoiceLine{line(t, 1, 6000), line(t, 2, 3960)})
	assert.Equal(t, 50.0, res.Tolerance)
	assert.Equal(t, 40.0, *res.Diff)
	assert.Equal(t, models.StatusOK, res.Status)

	res = v.Validate(header, []models.InvoiceLine{line(t, 1, 6000), line(t, 2, 3900)})
	assert.Equal(t, models.StatusPartial, res.Status)
	assert.NotEmpty(t, res.Warnings)
}

func TestValidate_VATDifferenceIsExplained(t *testing.T) {
	v := NewValidator(DefaultValidatorConfig())
	header := models.InvoiceHeader{InvoiceNumberConfidence: 1, TotalConfidence: 1, TotalAmount: ptr(1796.88)}
	res := v.Validate(header, []models.InvoiceLine{line(t, 1, 1437.50)})

	assert.Equal(t, models.StatusPartial, res.Status)
	require.Len(t, res.Warnings, 2)
	assert.Contains(t, res.Warnings[1], "25% VAT")
}

func TestValidate_LineArithmeticWarnings(t *testing.T) {
	v := NewValidator(DefaultValidatorConfig())

	ok := line(t, 1, 150)
	ok.Quantity, ok.UnitPrice, ok.Discount = ptr(2), ptr(100), ptr(-50)

	off := line(t, 2, 250)
	off.Quantity, off.UnitPrice = ptr(2), ptr(100)

	suspect := line(t, 3, 25)
	suspect.Quantity, suspect.UnitPrice, suspect.Unit = ptr(25), ptr(100), "%"

	header := models.InvoiceHeader{InvoiceNumberConfidence: 1, TotalConfidence: 1, TotalAmount: ptr(425)}
	res := v.Validate(header, []models.InvoiceLine{ok, off, suspect})

	assert.Equal(t, models.StatusOK, res.Status)
	require.Len(t, res.Warnings, 2)
	assert.Equal(t, "line 2: 2 x 100.00 = 200.00, printed total 250.00", res.Warnings[0])
	assert.Contains(t, res.Warnings[1], "line 3: SUSPECT unit \"%\"")
}

type placed struct {
	text string
	x, y float64
}

func analyzePage(t *testing.T, number int, words ...placed) layout.PageLayout {
	t.Helper()
	page, err := models.NewPage(number, "test.pdf", 595, 842)
	require.NoError(t, err)
	for _, w := range words {
		tok, err := models.NewToken(w.text, w.x, w.y, float64(6*len(w.text)), 10, number)
		require.NoError(t, err)
		page.Tokens = append(page.Tokens, tok)
	}
	pl, err := layout.NewAnalyzer(layout.DefaultConfig()).Analyze(page)
	require.NoError(t, err)
	return pl
}

func newExtractor() *Extractor {
	return NewExtractor(
		lineitems.NewParser(lineitems.DefaultConfig(), layout.NewColumnDetector(layout.DefaultColumnConfig())),
		fields.NewExtractor(fields.DefaultConfig()),
		NewValidator(DefaultValidatorConfig()),
	)
}

func TestExtract_SinglePageInvoice(t *testing.T) {
	page := analyzePage(t, 1,
		placed{"ACME", 40, 40}, placed{"AB", 75, 40},
		placed{"Fakturanummer", 40, 100}, placed{"INV-1001", 150, 100},
		placed{"Produkt", 40, 300}, placed{"5", 300, 300}, placed{"st", 320, 300},
		placed{"150,00", 400, 300}, placed{"300,00", 500, 300},
		placed{"Lampa", 40, 315}, placed{"1", 300, 315}, placed{"st", 320, 315},
		placed{"75,00", 400, 315}, placed{"75,00", 500, 315},
		placed{"Summa", 40, 700}, placed{"375,00", 500, 700},
		placed{"Att", 40, 715}, placed{"betala", 62, 715}, placed{"375,00", 500, 715},
	)

	ext, err := newExtractor().Extract([]layout.PageLayout{page})
	require.NoError(t, err)

	require.Len(t, ext.Lines, 2)
	assert.Equal(t, "Produkt", ext.Lines[0].Description)
	assert.Equal(t, 2, ext.Lines[1].LineNumber)

	assert.Equal(t, "INV-1001", ext.Header.InvoiceNumber)
	require.NotNil(t, ext.Header.TotalAmount)
	assert.Equal(t, 375.0, *ext.Header.TotalAmount)
	assert.Equal(t, "ACME AB", ext.Header.Vendor)

	assert.Equal(t, models.StatusOK, ext.Validation.Status)
	assert.Equal(t, 375.0, ext.Validation.LinesSum)
	assert.Equal(t, 1, ext.Attempts)
}

func TestExtract_ItemsRunningIntoFooter(t *testing.T) {
	page := analyzePage(t, 1,
		placed{"Fakturanummer", 40, 100}, placed{"INV-2002", 150, 100},
		placed{"Skruv", 40, 600}, placed{"100,00", 500, 600},
		placed{"Att", 40, 700}, placed{"betala", 62, 700}, placed{"100,00", 500, 700},
	)
	ext, err := newExtractor().Extract([]layout.PageLayout{page})
	require.NoError(t, err)
	require.Len(t, ext.Lines, 1)
	assert.Equal(t, "Skruv", ext.Lines[0].Description)
}

func TestExtract_CompoundTotalLabelIsNotALine(t *testing.T) {
	page := analyzePage(t, 1,
		placed{"Fakturanummer", 40, 100}, placed{"INV-3003", 150, 100},
		placed{"Skruv", 40, 600}, placed{"100,00", 500, 600},
		placed{"Totalbelopp", 40, 700}, placed{"100,00", 500, 700},
	)
	ext, err := newExtractor().Extract([]layout.PageLayout{page})
	require.NoError(t, err)
	require.Len(t, ext.Lines, 1)
	assert.Equal(t, "Skruv", ext.Lines[0].Description)
	assert.Equal(t, 100.0, ext.Validation.LinesSum)
}

func TestExtract_NoPages(t *testing.T) {
	_, err := newExtractor().Extract(nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNoPages))

	var extractionErr *ExtractionError
	require.ErrorAs(t, err, &extractionErr)
	assert.Equal(t, "Extract", extractionErr.Op)
}
