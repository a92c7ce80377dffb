package ocr_test

import (
	"fmt"
	"log"

	"invoicelayout/internal/ocr"
)

// ExampleRouter_Route shows how the native text layer of a page is judged
// before OCR is considered.
func ExampleRouter_Route() {
	router, err := ocr.NewRouter(ocr.DefaultRoutingConfig())
	if err != nil {
		log.Fatal(err)
	}

	text := "Faktura 10023 Fakturadatum 2024-03-15 Summa 1 250,00 Moms 312,50 Att betala 1 562,50"
	fmt.Println(router.Route(text, ocr.QualityScore(text)))

	// a scanned page with only a stamp in its text layer
	fmt.Println(router.Route("KOPIA", ocr.QualityScore("KOPIA")))
	// Output:
	// native
	// ocr (too_few_chars,missing_required_anchor,too_few_words,no_optional_anchor)
}
