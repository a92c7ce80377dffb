package invoice

import (
	"fmt"
	"math"
	"strings"

	"github.com/rs/zerolog"

	"invoicelayout/internal/amount"
	"invoicelayout/internal/logger"
	"invoicelayout/pkg/models"
)

// ValidatorConfig holds the reconciliation tolerances.
type ValidatorConfig struct {
	Tolerance        float64   `toml:"tolerance"`         // currency units
	TolerancePct     float64   `toml:"tolerance_pct"`     // fraction of the total
	LineTolerance    float64   `toml:"line_tolerance"`    // quantity x unit price vs line total
	HardGate         float64   `toml:"hard_gate"`         // per critical field
	ProblematicUnits []string  `toml:"problematic_units"` // units that usually mean a misread column
	VATRates         []float64 `toml:"vat_rates"`         // percent, used to explain a difference
}

func DefaultValidatorConfig() ValidatorConfig {
	return ValidatorConfig{
		Tolerance:        1.0,
		TolerancePct:     0.005,
		LineTolerance:    0.01,
		HardGate:         models.HardGateThreshold,
		ProblematicUnits: []string{"%", "kr", "sek", "eur"},
		VATRates:         []float64{25, 12, 6, 19, 7},
	}
}

// Validator reconciles the extracted total with the summed lines.
type Validator struct {
	config      ValidatorConfig
	problematic map[string]bool
	log         zerolog.Logger
}

func NewValidator(config ValidatorConfig) *Validator {
	problematic := make(map[string]bool, len(config.ProblematicUnits))
	for _, u := range config.ProblematicUnits {
		problematic[strings.ToLower(u)] = true
	}
	return &Validator{
		config:      config,
		problematic: problematic,
		log:         logger.WithComponent("validator"),
	}
}

// Status decides the invoice status from the four facts that matter, in
// order: hard gate, total presence, line presence, then the difference
// against the tolerance.
func Status(hardGate, hasTotal, hasLines bool, diff, tolerance float64) models.Status {
	switch {
	case !hardGate, !hasTotal, !hasLines:
		return models.StatusReview
	case math.Abs(diff) <= tolerance:
		return models.StatusOK
	default:
		return models.StatusPartial
	}
}

// Tolerance is the allowed difference for a given total.
func (v *Validator) Tolerance(total float64) float64 {
	return math.Max(v.config.Tolerance, v.config.TolerancePct*math.Abs(total))
}

// Validate computes the ValidationResult once for a header and its lines.
func (v *Validator) Validate(header models.InvoiceHeader, lines []models.InvoiceLine) models.ValidationResult {
	totals := make([]float64, len(lines))
	for i, l := range lines {
		totals[i] = l.TotalAmount
	}
	sum := amount.Sum(totals)

	gate := header.InvoiceNumberConfidence >= v.config.HardGate && header.TotalConfidence >= v.config.HardGate
	result := models.ValidationResult{
		LinesSum:                sum,
		Tolerance:               v.config.Tolerance,
		HardGatePassed:          gate,
		InvoiceNumberConfidence: header.InvoiceNumberConfidence,
		TotalConfidence:         header.TotalConfidence,
	}

	var diff float64
	if header.TotalAmount != nil {
		diff = amount.Round2(*header.TotalAmount - sum)
		result.Diff = &diff
		result.Tolerance = v.Tolerance(*header.TotalAmount)
	}

	if !gate {
		result.Errors = append(result.Errors, v.gateMessages(header)...)
	}
	if header.TotalAmount == nil {
		result.Errors = append(result.Errors, "total amount not found")
	}
	if len(lines) == 0 {
		result.Errors = append(result.Errors, "no line items found")
	}
	if result.Diff != nil && len(lines) > 0 && math.Abs(diff) > result.Tolerance {
		result.Warnings = append(result.Warnings, fmt.Sprintf(
			"lines sum %.2f differs from total %.2f by %.2f (tolerance %.2f)",
			sum, *header.TotalAmount, diff, result.Tolerance))
		if rate, ok := v.vatExplains(sum, *header.TotalAmount, result.Tolerance); ok {
			result.Warnings = append(result.Warnings, fmt.Sprintf(
				"total matches lines sum plus %g%% VAT; lines are likely net amounts", rate))
		}
	}
	result.Warnings = append(result.Warnings, v.lineWarnings(lines)...)

	result.Status = Status(gate, header.TotalAmount != nil, len(lines) > 0, diff, result.Tolerance)

	v.log.Debug().
		Str("status", string(result.Status)).
		Float64("lines_sum", sum).
		Float64("diff", diff).
		Float64("tolerance", result.Tolerance).
		Bool("hard_gate", gate).
		Int("warnings", len(result.Warnings)).
		Msg("Invoice validated")

	return result
}

func (v *Validator) gateMessages(h models.InvoiceHeader) []string {
	var out []string
	if h.InvoiceNumberConfidence < v.config.HardGate {
		out = append(out, fmt.Sprintf("invoice number confidence %.2f below %.2f", h.InvoiceNumberConfidence, v.config.HardGate))
	}
	if h.TotalConfidence < v.config.HardGate {
		out = append(out, fmt.Sprintf("total confidence %.2f below %.2f", h.TotalConfidence, v.config.HardGate))
	}
	return out
}

// lineWarnings checks each line on its own: quantity times unit price, plus
// any discount, should give the line total.
func (v *Validator) lineWarnings(lines []models.InvoiceLine) []string {
	var out []string
	for _, l := range lines {
		if l.Quantity == nil || l.UnitPrice == nil {
			continue
		}
		expected := *l.Quantity * *l.UnitPrice
		if l.Discount != nil {
			expected += *l.Discount
		}
		if math.Abs(expected-l.TotalAmount) <= v.config.LineTolerance {
			continue
		}
		detail := fmt.Sprintf("%g x %.2f = %.2f, printed total %.2f", *l.Quantity, *l.UnitPrice, expected, l.TotalAmount)
		if v.problematic[strings.ToLower(l.Unit)] {
			out = append(out, fmt.Sprintf("line %d: SUSPECT unit %q, quantity or price likely read from the wrong column: %s",
				l.LineNumber, l.Unit, detail))
			continue
		}
		out = append(out, fmt.Sprintf("line %d: %s", l.LineNumber, detail))
	}
	return out
}

// vatExplains reports the VAT rate that turns sum into total, if any.
func (v *Validator) vatExplains(sum, total, tolerance float64) (float64, bool) {
	for _, rate := range v.config.VATRates {
		if math.Abs(sum*(1+rate/100)-total) <= tolerance {
			return rate, true
		}
	}
	return 0, false
}
