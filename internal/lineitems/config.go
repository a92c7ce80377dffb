// Package lineitems reads product rows out of the items zone of an invoice.
//
// A row is a product row when it carries a positive amount; the right-most
// positive amount is the line total. Quantity and unit price are inferred
// from the numbers left of the total, or read from mapped table columns
// when a recognizable table header exists. Description rows that wrap onto
// following lines are folded back into their product row.
package lineitems

// Table parser modes.
const (
	ModeAuto       = "auto"       // use column mapping when a table header is found
	ModeColumns    = "columns"    // same as auto; kept for profile readability
	ModePositional = "positional" // never use column mapping
)

// Config holds the line-item thresholds.
type Config struct {
	Mode string `toml:"mode"`

	WrapGapFactor      float64 `toml:"wrap_gap_factor"`      // times the median line height
	FallbackLineHeight float64 `toml:"fallback_line_height"` // points, when fewer than two rows exist
	WrapLeftTolerance  float64 `toml:"wrap_left_tolerance"`  // fraction of page width, either side
	WrapRightIndent    float64 `toml:"wrap_right_indent"`    // fraction of page width, further right

	SmallQuantityMax float64 `toml:"small_quantity_max"` // a lone integer below this is a quantity

	FooterCodeMaxLength int     `toml:"footer_code_max_length"` // characters before the amount
	FooterAmountFactor  float64 `toml:"footer_amount_factor"`   // times the median line total

	UnitCodes        []string `toml:"unit_codes"`
	ProblematicUnits []string `toml:"problematic_units"`
}

func DefaultConfig() Config {
	return Config{
		Mode:                ModeAuto,
		WrapGapFactor:       1.5,
		FallbackLineHeight:  15,
		WrapLeftTolerance:   0.02,
		WrapRightIndent:     0.05,
		SmallQuantityMax:    1000,
		FooterCodeMaxLength: 50,
		FooterAmountFactor:  5,
		UnitCodes: []string{
			"st", "st.", "stk", "styck", "pcs", "pc", "ea", "each",
			"h", "tim", "timmar", "hrs", "hr", "std",
			"kg", "g", "m", "m2", "m²", "m3", "m³", "l", "liter", "km",
			"dag", "dagar", "day", "days", "mån", "month",
			"paket", "pkt", "förp", "set", "par", "rulle", "ask",
		},
		ProblematicUnits: []string{"%", "kr", "sek", "eur"},
	}
}
