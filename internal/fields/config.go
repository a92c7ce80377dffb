// Package fields extracts the header fields of a virtual invoice and scores
// how much each critical value can be trusted.
//
// Invoice number and total amount are the two critical fields. Each is
// chosen from a scored candidate list, and the winning candidate carries a
// Traceability record pointing at the tokens it was read from. Extraction
// is retried under named strategy variants until both fields reach the
// target confidence or the attempt budget runs out.
//
// Vendor, customer, reference and invoice date are read from labelled
// header rows without scoring; they never affect status.
package fields

// Strategy names a variant of the extraction rules.
type Strategy string

const (
	StrategyNone             Strategy = "none"
	StrategyAggressive       Strategy = "aggressive"
	StrategyConservative     Strategy = "conservative"
	StrategyExtendedPatterns Strategy = "extended_patterns"
	StrategyBroaderSearch    Strategy = "broader_search"
)

// ParseStrategy maps a profile string to a Strategy.
func ParseStrategy(s string) (Strategy, bool) {
	switch Strategy(s) {
	case StrategyNone, StrategyAggressive, StrategyConservative, StrategyExtendedPatterns, StrategyBroaderSearch:
		return Strategy(s), true
	case "":
		return StrategyNone, true
	}
	return "", false
}

// InvoiceNumberWeights are the factor weights of an invoice-number candidate.
type InvoiceNumberWeights struct {
	Position   float64 `toml:"position"`
	Keyword    float64 `toml:"keyword"`
	Format     float64 `toml:"format"`
	Uniqueness float64 `toml:"uniqueness"`
	Confidence float64 `toml:"confidence"`
}

// TotalWeights are the factor weights of a total-amount candidate.
type TotalWeights struct {
	Keyword  float64 `toml:"keyword"`
	Position float64 `toml:"position"`
	Math     float64 `toml:"math"`
	Largest  float64 `toml:"largest"`
}

type Config struct {
	TargetConfidence float64    `toml:"target_confidence"`
	MaxAttempts      int        `toml:"max_attempts"`
	Strategies       []Strategy `toml:"strategies"`

	InvoiceNumber        InvoiceNumberWeights `toml:"invoice_number_weights"`
	AdjacentRowFactor    float64              `toml:"adjacent_row_factor"`
	GenericKeywordFactor float64              `toml:"generic_keyword_factor"`
	MinNumberLength      int                  `toml:"min_number_length"`
	MaxNumberLength      int                  `toml:"max_number_length"`

	Total              TotalWeights `toml:"total_weights"`
	InclusiveBoost     float64      `toml:"inclusive_boost"`
	ExclusivePenalty   float64      `toml:"exclusive_penalty"`
	CloseScoreMargin   float64      `toml:"close_score_margin"`
	MathTolerance      float64      `toml:"math_tolerance"`
	MathTolerancePct   float64      `toml:"math_tolerance_pct"`
	PartialCreditRange float64      `toml:"partial_credit_range"`
	VATRates           []float64    `toml:"vat_rates"`
	RightAlignedRatio  float64      `toml:"right_aligned_ratio"`
}

func DefaultConfig() Config {
	return Config{
		TargetConfidence: 0.95,
		MaxAttempts:      5,
		Strategies: []Strategy{
			StrategyNone,
			StrategyAggressive,
			StrategyExtendedPatterns,
			StrategyBroaderSearch,
			StrategyConservative,
		},
		InvoiceNumber: InvoiceNumberWeights{
			Position:   0.30,
			Keyword:    0.35,
			Format:     0.20,
			Uniqueness: 0.10,
			Confidence: 0.05,
		},
		AdjacentRowFactor:    0.6,
		GenericKeywordFactor: 0.7,
		MinNumberLength:      3,
		MaxNumberLength:      25,
		Total: TotalWeights{
			Keyword:  0.35,
			Position: 0.20,
			Math:     0.35,
			Largest:  0.10,
		},
		InclusiveBoost:     0.15,
		ExclusivePenalty:   0.10,
		CloseScoreMargin:   0.05,
		MathTolerance:      1.0,
		MathTolerancePct:   0.005,
		PartialCreditRange: 0.10,
		VATRates:           []float64{25, 12, 6, 19, 7},
		RightAlignedRatio:  0.6,
	}
}
