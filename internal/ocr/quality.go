package ocr

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"invoicelayout/internal/layout"
)

// Weights of the text-quality blend.
const (
	weightNonEmpty = 0.15
	weightClean    = 0.25
	weightAlnum    = 0.20
	weightLength   = 0.15
	weightKeywords = 0.25

	// OCR text blends in the median word confidence.
	ocrTextWeight       = 0.7
	ocrConfidenceWeight = 0.3
)

var qualityKeywords = []string{
	"faktura", "invoice", "rechnung", "lasku", "kvitto", "receipt",
	"summa", "total", "moms", "vat", "mwst", "att betala", "belopp",
	"datum", "date", "förfallo", "due", "org", "iban", "bankgiro",
}

// QualityScore rates how trustworthy a page's text looks, in [0, 1].
func QualityScore(text string) float64 {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return 0
	}

	var total, clean, visible, alnum int
	for _, r := range trimmed {
		total++
		if isCleanRune(r) {
			clean++
		}
		if unicode.IsSpace(r) {
			continue
		}
		visible++
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			alnum++
		}
	}

	score := weightNonEmpty
	score += weightClean * ratio(clean, total)
	score += weightAlnum * ratio(alnum, visible)
	score += weightLength * plausibleLengths(strings.Fields(trimmed))
	score += weightKeywords * keywordPresence(strings.ToLower(trimmed))
	return clamp(score)
}

// OCRQualityScore blends QualityScore with the median OCR word confidence
// (0-100). Without confidences the confidence term counts as zero.
func OCRQualityScore(text string, confidences []float64) float64 {
	median := 0.0
	if len(confidences) > 0 {
		median = layout.Median(confidences) / 100
	}
	return clamp(ocrTextWeight*QualityScore(text) + ocrConfidenceWeight*clamp(median))
}

func isCleanRune(r rune) bool {
	if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) {
		return true
	}
	return strings.ContainsRune(".,:;-/()%+&#'\"€$£@*=_", r)
}

// plausibleLengths is the share of words between 2 and 20 runes long;
// single letters and digits count half.
func plausibleLengths(words []string) float64 {
	if len(words) == 0 {
		return 0
	}
	var sum float64
	for _, w := range words {
		n := utf8.RuneCountInString(w)
		switch {
		case n >= 2 && n <= 20:
			sum++
		case n == 1:
			r, _ := utf8.DecodeRuneInString(w)
			if unicode.IsLetter(r) || unicode.IsDigit(r) {
				sum += 0.5
			}
		}
	}
	return sum / float64(len(words))
}

// keywordPresence saturates at two distinct invoice keywords.
func keywordPresence(lower string) float64 {
	hits := 0
	for _, kw := range qualityKeywords {
		if strings.Contains(lower, kw) {
			hits++
			if hits == 2 {
				return 1
			}
		}
	}
	return float64(hits) / 2
}

func ratio(n, d int) float64 {
	if d == 0 {
		return 0
	}
	return float64(n) / float64(d)
}

func clamp(v float64) float64 {
	return max(0, min(1, v))
}
