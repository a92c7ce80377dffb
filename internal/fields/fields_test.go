package fields

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"invoicelayout/internal/layout"
	"invoicelayout/pkg/models"
)

type placed struct {
	text string
	x, y float64
}

// analyzePage lays words out on an A4 page, 6pt per byte and 10pt high.
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

func summaryFooter() []placed {
	return []placed{
		{"Summa", 40, 700}, {"exkl.", 80, 700}, {"moms", 115, 700}, {"1", 480, 700}, {"437,50", 490, 700},
		{"Moms", 40, 715}, {"25%", 80, 715}, {"359,38", 490, 715},
		{"Att", 40, 730}, {"betala", 62, 730}, {"1", 480, 730}, {"796,88", 490, 730},
	}
}

func swedishInvoice(t *testing.T) layout.PageLayout {
	words := []placed{
		{"ACME", 40, 40}, {"AB", 75, 40},
		{"Fakturanummer", 40, 100}, {"12345", 150, 100},
		{"Fakturadatum", 40, 115}, {"2024-03-15", 150, 115},
		{"Kund:", 40, 130}, {"Beta", 75, 130}, {"AB", 102, 130},
		{"Er", 40, 145}, {"referens:", 58, 145}, {"Anna", 118, 145},
		{"Tjänst", 40, 300}, {"1", 480, 300}, {"437,50", 490, 300},
	}
	return analyzePage(t, 1, append(words, summaryFooter()...)...)
}

func TestExtract_InclusiveTotalBeatsExclusive(t *testing.T) {
	e := NewExtractor(DefaultConfig())
	res := e.Extract(Input{Pages: []layout.PageLayout{swedishInvoice(t)}, LinesSum: 1437.50, HasLines: true})

	h := res.Header
	require.NotNil(t, h.TotalAmount)
	assert.Equal(t, 1796.88, *h.TotalAmount)
	assert.InDelta(t, 1.0, h.TotalConfidence, 1e-9)
	require.NotNil(t, h.TotalTrace)
	assert.Equal(t, "Att betala 1 796,88", h.TotalTrace.Evidence.TextExcerpt)
	assert.Len(t, h.TotalTrace.Evidence.Tokens, 2)

	assert.Equal(t, "12345", h.InvoiceNumber)
	assert.InDelta(t, 1.0, h.InvoiceNumberConfidence, 1e-9)
	assert.True(t, h.MeetsHardGate())
	assert.Equal(t, 1, res.Attempts)
	assert.Empty(t, res.Notes)

	var exclusive models.TotalCandidate
	for _, c := range h.TotalCandidates {
		if c.KeywordTier == string(tierExclusive) {
			exclusive = c
		}
	}
	assert.Equal(t, 1437.50, exclusive.Value)
	assert.True(t, exclusive.Validated)
	assert.Less(t, exclusive.Score, h.TotalConfidence)
}

func TestExtract_HeaderFields(t *testing.T) {
	e := NewExtractor(DefaultConfig())
	res := e.Extract(Input{Pages: []layout.PageLayout{swedishInvoice(t)}, LinesSum: 1437.50, HasLines: true})

	h := res.Header
	assert.Equal(t, "ACME AB", h.Vendor)
	assert.Equal(t, "Beta AB", h.Customer)
	assert.Equal(t, "Anna", h.Reference)
	require.NotNil(t, h.InvoiceDate)
	assert.Equal(t, "2024-03-15", h.InvoiceDate.Format("2006-01-02"))
	assert.Equal(t, models.SegmentRef{Page: 1, Type: models.SegmentHeader}, h.Segment)
}

func TestExtract_WithoutLinesSpendsWholeBudget(t *testing.T) {
	e := NewExtractor(DefaultConfig())
	res := e.Extract(Input{Pages: []layout.PageLayout{swedishInvoice(t)}})

	require.NotNil(t, res.Header.TotalAmount)
	assert.Equal(t, 1796.88, *res.Header.TotalAmount)
	// keyword, position, largest and the inclusive boost, no math
	assert.InDelta(t, 0.80, res.Header.TotalConfidence, 1e-9)
	assert.Equal(t, 5, res.Attempts)
	assert.Len(t, res.Notes, 4)
	assert.False(t, res.Header.MeetsHardGate())
}

func TestExtract_RetryPicksUpAdjacentLabel(t *testing.T) {
	words := []placed{
		{"Fakturanummer", 40, 100},
		{"98765", 40, 115},
		{"Tjänst", 40, 300}, {"1", 480, 300}, {"437,50", 490, 300},
	}
	page := analyzePage(t, 1, append(words, summaryFooter()...)...)
	in := Input{Pages: []layout.PageLayout{page}, LinesSum: 1437.50, HasLines: true}
	e := NewExtractor(DefaultConfig())

	first := e.ExtractWith(in, StrategyNone)
	assert.Equal(t, "98765", first.InvoiceNumber)
	assert.InDelta(t, 0.86, first.InvoiceNumberConfidence, 1e-9)

	res := e.Extract(in)
	assert.Equal(t, 2, res.Attempts)
	assert.Equal(t, "98765", res.Header.InvoiceNumber)
	assert.GreaterOrEqual(t, res.Header.InvoiceNumberConfidence, 0.95)
	assert.Len(t, res.Notes, 1)

	conservative := e.ExtractWith(in, StrategyConservative)
	assert.Empty(t, conservative.InvoiceNumber)
	assert.Zero(t, conservative.InvoiceNumberConfidence)
}

func TestExtract_MaxAttemptsCapsRetries(t *testing.T) {
	config := DefaultConfig()
	config.MaxAttempts = 2
	res := NewExtractor(config).Extract(Input{Pages: []layout.PageLayout{swedishInvoice(t)}})
	assert.Equal(t, 2, res.Attempts)
}

func TestInvoiceNumberCandidates_RejectsDates(t *testing.T) {
	page := analyzePage(t, 1,
		placed{"Fakturadatum", 40, 100}, placed{"2024-03-15", 150, 100},
		placed{"Faktura", 40, 130}, placed{"A-2291", 100, 130},
	)
	e := NewExtractor(DefaultConfig())
	cands := e.InvoiceNumberCandidates([]layout.PageLayout{page}, StrategyNone)
	require.Len(t, cands, 2)

	assert.Equal(t, "A-2291", cands[0].Value)
	assert.Equal(t, 0.7, cands[0].Factors.Keyword)
	assert.Equal(t, 1.0, cands[0].Factors.Format)
	assert.Less(t, cands[0].Score, 0.95)

	assert.Equal(t, "2024-03-15", cands[1].Value)
	assert.Zero(t, cands[1].Factors.Format)
}

func TestInvoiceNumberCandidates_GluedLabel(t *testing.T) {
	page := analyzePage(t, 1, placed{"Fakturanr:4711", 40, 100})
	cands := NewExtractor(DefaultConfig()).InvoiceNumberCandidates([]layout.PageLayout{page}, StrategyNone)
	require.Len(t, cands, 1)
	assert.Equal(t, "4711", cands[0].Value)
	assert.Equal(t, 1.0, cands[0].Factors.Keyword)
}

func TestInvoiceNumberCandidates_RepeatedValueIsLessUnique(t *testing.T) {
	page := analyzePage(t, 1,
		placed{"Fakturanummer", 40, 100}, placed{"5001", 150, 100},
		placed{"Kundnummer", 40, 115}, placed{"5001", 150, 115},
	)
	cands := NewExtractor(DefaultConfig()).InvoiceNumberCandidates([]layout.PageLayout{page}, StrategyNone)
	require.NotEmpty(t, cands)
	assert.Equal(t, 0.5, cands[0].Factors.Uniqueness)
}

func TestTotalCandidates_LabelOnRowAbove(t *testing.T) {
	page := analyzePage(t, 1,
		placed{"Att", 400, 700}, placed{"betala", 422, 700},
		placed{"250,00", 490, 715},
	)
	cands := NewExtractor(DefaultConfig()).TotalCandidates([]layout.PageLayout{page}, 0, false, StrategyNone)
	require.Len(t, cands, 1)
	assert.Equal(t, string(tierInclusive), cands[0].Tier)
	assert.Equal(t, 250.0, cands[0].Value)
}

func TestSelectTotal_PrefersInclusiveWithinMargin(t *testing.T) {
	e := NewExtractor(DefaultConfig())
	winner, ok := e.SelectTotal([]AmountCandidate{
		{Value: 100, Score: 0.80, Tier: string(tierGeneric), Validated: true},
		{Value: 125, Score: 0.77, Tier: string(tierInclusive)},
		{Value: 90, Score: 0.60, Tier: string(tierInclusive)},
	})
	require.True(t, ok)
	assert.Equal(t, 125.0, winner.Value)

	_, ok = e.SelectTotal(nil)
	assert.False(t, ok)
}

func TestMathFactor(t *testing.T) {
	config := DefaultConfig()
	config.VATRates = nil
	e := NewExtractor(config)

	f, ok := e.mathFactor(1000.4, 1000, true, StrategyNone)
	assert.Equal(t, 1.0, f)
	assert.True(t, ok)

	f, ok = e.mathFactor(1050, 1000, true, StrategyNone)
	assert.False(t, ok)
	assert.Greater(t, f, 0.0)
	assert.Less(t, f, 0.5)

	f, _ = e.mathFactor(2000, 1000, true, StrategyNone)
	assert.Zero(t, f)

	f, _ = e.mathFactor(1000, 0, false, StrategyNone)
	assert.Zero(t, f)
}

func TestParseStrategy(t *testing.T) {
	s, ok := ParseStrategy("broader_search")
	assert.True(t, ok)
	assert.Equal(t, StrategyBroaderSearch, s)

	s, ok = ParseStrategy("")
	assert.True(t, ok)
	assert.Equal(t, StrategyNone, s)

	_, ok = ParseStrategy("guess")
	assert.False(t, ok)
}

func TestLabelledValue_ValueOnNeighbouringBaseline(t *testing.T) {
	page, err := models.NewPage(1, "test.pdf", 595, 842)
	require.NoError(t, err)
	label, err := models.NewToken("Referens", 40, 145, 48, 10, 1)
	require.NoError(t, err)
	value, err := models.NewToken("PO-77", 100, 148, 30, 10, 1)
	require.NoError(t, err)

	labelRow, err := models.NewRow([]models.Token{label}, 1, 0)
	require.NoError(t, err)
	valueRow, err := models.NewRow([]models.Token{value}, 1, 1)
	require.NoError(t, err)

	pl := layout.PageLayout{
		Page:  page,
		Rows:  []models.Row{labelRow, valueRow},
		Index: layout.NewTokenIndex([]models.Token{label, value}),
	}
	assert.Equal(t, "PO-77", labelledValue(pl, []models.Row{labelRow}, referenceLabels))

	pl.Index = nil
	assert.Empty(t, labelledValue(pl, []models.Row{labelRow}, referenceLabels))
}
