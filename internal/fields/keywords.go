package fields

import (
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"invoicelayout/pkg/models"
)

var (
	numberKeywords = []string{
		"fakturanummer", "fakturanr", "faktura nr", "faktura-nr", "fakt.nr", "fakt nr",
		"invoice number", "invoice no", "invoice nr", "invoice #", "inv. no", "inv no",
		"rechnungsnummer", "rechnungs-nr", "rechnung nr", "rechnungsnr",
		"laskun numero", "fakturanumero",
	}
	numberKeywordsExtended = []string{
		"ocr-nummer", "ocr nr", "ocr", "referensnummer", "dokumentnummer",
		"document no", "document number", "belegnummer", "beleg-nr",
		"bill no", "bill number", "kvittonummer", "receipt no", "receipt number",
	}
	// a bare document title; weaker than a labelled number
	numberKeywordsGeneric = []string{"faktura", "invoice", "rechnung", "lasku"}
)

type tier string

const (
	tierInclusive tier = "vat_inclusive"
	tierGeneric   tier = "generic"
	tierExclusive tier = "vat_exclusive"
	tierVAT       tier = "vat"
	tierNone      tier = "none"
)

// Tiers are checked in this order, so "summa exkl. moms" lands in the
// exclusive tier and "summa att betala" in the inclusive one.
var totalTiers = []struct {
	tier     tier
	keywords []string
	extended []string
}{
	{tierExclusive, []string{
		"exkl", "excl", "exclusive", "exklusive", "ohne mwst", "netto", "net amount",
		"subtotal", "sub-total", "delsumma", "zwischensumme", "before tax", "före moms",
	}, nil},
	{tierInclusive, []string{
		"att betala", "inkl", "incl", "inclusive", "including vat", "amount due",
		"total due", "balance due", "to pay", "zu zahlen", "gesamtbetrag", "brutto",
		"totalbelopp", "payable",
	}, []string{
		"slutsumma", "fakturabelopp", "grand total", "endbetrag", "rechnungsbetrag",
		"invoice total", "total amount", "maksettava",
	}},
	{tierVAT, []string{
		"moms", "vat", "mwst", "ust", "mervärdesskatt", "tax",
		"öresutjämning", "öresavrundning", "avrundning", "rounding",
	}, nil},
	{tierGeneric, []string{
		"totalt", "total", "summa", "belopp", "gesamt", "sum", "amount",
	}, []string{"summe", "yhteensä"}},
}

func keywordStrength(t tier) float64 {
	switch t {
	case tierInclusive:
		return 1.0
	case tierGeneric:
		return 0.7
	case tierExclusive:
		return 0.3
	case tierVAT:
		return 0.1
	}
	return 0
}

// classifyLabel returns the first tier whose keywords occur in label.
func classifyLabel(label string, extended bool) tier {
	lower := strings.ToLower(label)
	for _, t := range totalTiers {
		if len(findKeywords(lower, t.keywords)) > 0 {
			return t.tier
		}
		if extended && len(findKeywords(lower, t.extended)) > 0 {
			return t.tier
		}
	}
	return tierNone
}

type keywordHit struct {
	start, end int
}

// findKeywords returns every occurrence of the keywords in lower that starts
// at a word boundary, ordered by position.
func findKeywords(lower string, keywords []string) []keywordHit {
	var hits []keywordHit
	for _, kw := range keywords {
		from := 0
		for {
			i := strings.Index(lower[from:], kw)
			if i < 0 {
				break
			}
			start := from + i
			if start == 0 || !isLetter(lastRune(lower[:start])) {
				hits = append(hits, keywordHit{start: start, end: start + len(kw)})
			}
			from = start + len(kw)
		}
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].start < hits[j].start })
	return hits
}

// loweredRow is a row's text in lower case with the byte span of each token.
type loweredRow struct {
	text  string
	spans [][2]int
}

func lowerRow(row models.Row) loweredRow {
	parts := make([]string, len(row.Tokens))
	spans := make([][2]int, len(row.Tokens))
	pos := 0
	for i, t := range row.Tokens {
		parts[i] = strings.ToLower(t.Text)
		spans[i] = [2]int{pos, pos + len(parts[i])}
		pos = spans[i][1] + 1
	}
	return loweredRow{text: strings.Join(parts, " "), spans: spans}
}

// tokenAt returns the index of the token covering byte offset pos.
func (l loweredRow) tokenAt(pos int) int {
	for i, s := range l.spans {
		if pos >= s[0] && pos < s[1] {
			return i
		}
	}
	return -1
}

// spanTokens returns the tokens of row overlapping the byte range
// [start, end) of row.Text.
func spanTokens(row models.Row, start, end int) []models.Token {
	var out []models.Token
	pos := 0
	for _, t := range row.Tokens {
		tEnd := pos + len(t.Text)
		if pos < end && start < tEnd {
			out = append(out, t)
		}
		pos = tEnd + 1
	}
	return out
}

func isLetter(r rune) bool {
	return unicode.IsLetter(r)
}

func lastRune(s string) rune {
	r, _ := utf8.DecodeLastRuneInString(s)
	return r
}

func hasDigit(s string) bool {
	for _, r := range s {
		if unicode.IsDigit(r) {
			return true
		}
	}
	return false
}
