package models

import (
	"time"
	"unicode/utf8"
)

// Status is the outcome of validating one virtual invoice.
type Status string

const (
	StatusOK      Status = "OK"      // lines sum matches total within tolerance
	StatusPartial Status = "PARTIAL" // hard gate passed, sums disagree
	StatusReview  Status = "REVIEW"  // needs a human
	StatusFailed  Status = "FAILED"  // structural failure, no header or lines
)

// HardGateThreshold is the minimum confidence both critical fields need.
const HardGateThreshold = 0.95

// MaxExcerptLength caps evidence text excerpts, in characters.
const MaxExcerptLength = 120

type FieldKind string

const (
	FieldInvoiceNumber FieldKind = "invoice_no"
	FieldTotal         FieldKind = "total"
)

// Evidence locates the tokens a field value was read from.
type Evidence struct {
	Page        int     `json:"page"`
	BBox        BBox    `json:"bbox"`
	RowIndex    int     `json:"row_index"`
	TextExcerpt string  `json:"text_excerpt"`
	Tokens      []Token `json:"tokens"`
}

// Traceability ties an extracted critical value to its evidence.
type Traceability struct {
	Field      FieldKind `json:"field"`
	Value      string    `json:"value"`
	Confidence float64   `json:"confidence"`
	Evidence   Evidence  `json:"evidence"`
}

// NewTraceability builds the evidence bundle for a field. The excerpt is
// truncated to MaxExcerptLength characters and the box is the union of the
// evidence tokens.
func NewTraceability(field FieldKind, value string, confidence float64, row Row, tokens []Token) (Traceability, error) {
	if confidence < 0 || confidence > 1 {
		return Traceability{}, geometryErrorf("trace", "confidence %.3f for %s outside [0,1]", confidence, field)
	}
	if len(tokens) == 0 {
		return Traceability{}, geometryErrorf("trace", "no evidence tokens for %s", field)
	}
	box := tokens[0].BBox()
	for _, t := range tokens[1:] {
		box = box.Union(t.BBox())
	}
	evidenceTokens := make([]Token, len(tokens))
	copy(evidenceTokens, tokens)

	return Traceability{
		Field:      field,
		Value:      value,
		Confidence: confidence,
		Evidence: Evidence{
			Page:        row.Page,
			BBox:        box,
			RowIndex:    row.Index,
			TextExcerpt: truncateRunes(row.Text, MaxExcerptLength),
			Tokens:      evidenceTokens,
		},
	}, nil
}

func truncateRunes(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return string(runes[:limit])
}

// TotalCandidate is one scored reading of the invoice total.
type TotalCandidate struct {
	Value       float64 `json:"value"`
	Score       float64 `json:"score"`
	KeywordTier string  `json:"keyword_tier"`
	Validated   bool    `json:"validated"` // agreed with the line-item sum
	Page        int     `json:"page"`
	RowIndex    int     `json:"row_index"`
	RowText     string  `json:"row_text"`
}

// InvoiceHeader holds the extracted header fields of one virtual invoice.
type InvoiceHeader struct {
	Segment SegmentRef `json:"segment"`

	InvoiceNumber           string        `json:"invoice_number,omitempty"`
	InvoiceNumberConfidence float64       `json:"invoice_number_confidence"`
	InvoiceNumberTrace      *Traceability `json:"invoice_number_trace,omitempty"`

	InvoiceDate *time.Time `json:"invoice_date,omitempty"`
	Vendor      string     `json:"vendor,omitempty"`
	Customer    string     `json:"customer,omitempty"`
	Reference   string     `json:"reference,omitempty"`

	TotalAmount     *float64         `json:"total_amount,omitempty"`
	TotalConfidence float64          `json:"total_confidence"`
	TotalTrace      *Traceability    `json:"total_trace,omitempty"`
	TotalCandidates []TotalCandidate `json:"total_candidates,omitempty"`
}

// MeetsHardGate reports whether both critical fields are confident enough.
func (h InvoiceHeader) MeetsHardGate() bool {
	return h.InvoiceNumberConfidence >= HardGateThreshold && h.TotalConfidence >= HardGateThreshold
}

// InvoiceLine is one product row, plus any wrapped continuation rows.
type InvoiceLine struct {
	Rows        []Row      `json:"-"`
	Segment     SegmentRef `json:"segment"`
	Description string     `json:"description"`
	Quantity    *float64   `json:"quantity,omitempty"`
	Unit        string     `json:"unit,omitempty"`
	UnitPrice   *float64   `json:"unit_price,omitempty"`
	Discount    *float64   `json:"discount,omitempty"` // signed, negative as printed
	TotalAmount float64    `json:"total_amount"`
	VATRate     *float64   `json:"vat_rate,omitempty"`
	LineNumber  int        `json:"line_number"`
}

// NewInvoiceLine requires at least one row and a positive total.
func NewInvoiceLine(rows []Row, ref SegmentRef, description string, total float64, lineNumber int) (InvoiceLine, error) {
	if len(rows) == 0 {
		return InvoiceLine{}, geometryErrorf("line", "line %d has no rows", lineNumber)
	}
	if total <= 0 {
		return InvoiceLine{}, geometryErrorf("line", "line %d has non-positive total %.2f", lineNumber, total)
	}
	if lineNumber < 1 {
		return InvoiceLine{}, geometryErrorf("line", "line number %d out of range", lineNumber)
	}
	owned := make([]Row, len(rows))
	copy(owned, rows)
	return InvoiceLine{
		Rows:        owned,
		Segment:     ref,
		Description: description,
		TotalAmount: total,
		LineNumber:  lineNumber,
	}, nil
}

// WithContinuation returns a copy of the line with wrapped rows appended and
// their text folded into the description.
func (l InvoiceLine) WithContinuation(rows []Row, description string) InvoiceLine {
	out := l
	out.Rows = make([]Row, 0, len(l.Rows)+len(rows))
	out.Rows = append(out.Rows, l.Rows...)
	out.Rows = append(out.Rows, rows...)
	out.Description = description
	return out
}

// WithLineNumber returns a copy of the line renumbered.
func (l InvoiceLine) WithLineNumber(n int) InvoiceLine {
	out := l
	out.LineNumber = n
	return out
}

// ValidationResult is the outcome of checking lines against the total.
type ValidationResult struct {
	Status                  Status   `json:"status"`
	LinesSum                float64  `json:"lines_sum"`
	Diff                    *float64 `json:"diff,omitempty"` // total - lines_sum, absent without a total
	Tolerance               float64  `json:"tolerance"`
	HardGatePassed          bool     `json:"hard_gate_passed"`
	InvoiceNumberConfidence float64  `json:"invoice_number_confidence"`
	TotalConfidence         float64  `json:"total_confidence"`
	Errors                  []string `json:"errors,omitempty"`
	Warnings                []string `json:"warnings,omitempty"`
}

// VirtualInvoiceResult is the per-invoice output record.
type VirtualInvoiceResult struct {
	ID         string            `json:"id"`
	SourceFile string            `json:"source_file"`
	Index      int               `json:"index"` // 1-based within the source file
	PageStart  int               `json:"page_start"`
	PageEnd    int               `json:"page_end"`
	Status     Status            `json:"status"`
	Header     *InvoiceHeader    `json:"header,omitempty"`
	Lines      []InvoiceLine     `json:"lines"`
	Validation *ValidationResult `json:"validation,omitempty"`
	Error      string            `json:"error,omitempty"`
	TextSource TextSource        `json:"text_source,omitempty"`
	Notes      []string          `json:"notes,omitempty"`
	Attempts   int               `json:"attempts,omitempty"`
}
