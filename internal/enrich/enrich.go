// Package enrich fills header fields the layout extractor left empty by
// asking an external service about the invoice.
//
// Enrichment only runs for invoices in REVIEW. It may fill vendor,
// customer, invoice date and reference. Invoice number and total are
// reported as suggestions in the notes and never applied, so the hard gate
// and the status stay a function of the layout evidence alone.
//
// Providers:
//   - openai: chat completion over the text of the invoice range
//   - documentai: Google Document AI invoice processor over the PDF pages
package enrich

import (
	"context"
	"fmt"
	"strings"
	"time"

	"invoicelayout/pkg/models"
)

// Provider names accepted by New.
const (
	ProviderNone       = "none"
	ProviderOpenAI     = "openai"
	ProviderDocumentAI = "documentai"
)

// Field names used in requests and notes.
const (
	FieldVendor      = "vendor"
	FieldCustomer    = "customer"
	FieldInvoiceDate = "invoice_date"
	FieldReference   = "reference"
)

// Request describes one virtual invoice to enrich.
type Request struct {
	Path      string
	PageStart int
	PageEnd   int
	Text      string // row text of the range, page by page
	Header    models.InvoiceHeader
}

// Missing lists the fillable fields absent from the header.
func (r Request) Missing() []string {
	var missing []string
	if r.Header.Vendor == "" {
		missing = append(missing, FieldVendor)
	}
	if r.Header.Customer == "" {
		missing = append(missing, FieldCustomer)
	}
	if r.Header.InvoiceDate == nil {
		missing = append(missing, FieldInvoiceDate)
	}
	if r.Header.Reference == "" {
		missing = append(missing, FieldReference)
	}
	return missing
}

// Fields is what a provider read. Empty strings mean not found.
type Fields struct {
	Vendor      string
	Customer    string
	InvoiceDate string
	Reference   string

	InvoiceNumber string
	Total         string

	Confidence map[string]float64
}

// Enricher is an external source of header fields.
type Enricher interface {
	Name() string
	Enrich(ctx context.Context, req Request) (*Fields, error)
	Close() error
}

// Options selects and configures a provider.
type Options struct {
	Provider string

	OpenAIAPIKey string
	OpenAIModel  string
	MaxRetries   int

	ProjectID   string
	Location    string
	ProcessorID string
}

// New builds the configured enricher. It returns nil, nil when enrichment
// is disabled.
func New(ctx context.Context, opts Options) (Enricher, error) {
	const op = "New"

	switch strings.ToLower(opts.Provider) {
	case "", ProviderNone:
		return nil, nil
	case ProviderOpenAI:
		e, err := NewOpenAIEnricher(opts.OpenAIAPIKey, OpenAIConfig{
			Model:      opts.OpenAIModel,
			MaxRetries: opts.MaxRetries,
		})
		if err != nil {
			return nil, err
		}
		return e, nil
	case ProviderDocumentAI:
		e, err := NewDocumentAIEnricher(ctx, DocumentAIConfig{
			ProjectID:   opts.ProjectID,
			Location:    opts.Location,
			ProcessorID: opts.ProcessorID,
		})
		if err != nil {
			return nil, err
		}
		return e, nil
	default:
		return nil, NewEnrichError(op, ErrUnknownProvider, opts.Provider)
	}
}

// Apply copies found values into the empty fields of h and returns one note
// per change or suggestion.
func Apply(provider string, h *models.InvoiceHeader, f *Fields) []string {
	if h == nil || f == nil {
		return nil
	}
	var notes []string
	filled := func(field, value string) {
		note := fmt.Sprintf("%s filled by %s: %s", field, provider, value)
		if c, ok := f.Confidence[field]; ok {
			note = fmt.Sprintf("%s (confidence %.2f)", note, c)
		}
		notes = append(notes, note)
	}

	if h.Vendor == "" && strings.TrimSpace(f.Vendor) != "" {
		h.Vendor = strings.TrimSpace(f.Vendor)
		filled(FieldVendor, h.Vendor)
	}
	if h.Customer == "" && strings.TrimSpace(f.Customer) != "" {
		h.Customer = strings.TrimSpace(f.Customer)
		filled(FieldCustomer, h.Customer)
	}
	if h.InvoiceDate == nil && f.InvoiceDate != "" {
		if d, ok := ParseDate(f.InvoiceDate); ok {
			h.InvoiceDate = &d
			filled(FieldInvoiceDate, d.Format("2006-01-02"))
		}
	}
	if h.Reference == "" && strings.TrimSpace(f.Reference) != "" {
		h.Reference = strings.TrimSpace(f.Reference)
		filled(FieldReference, h.Reference)
	}

	if f.InvoiceNumber != "" && f.InvoiceNumber != h.InvoiceNumber {
		notes = append(notes, fmt.Sprintf("%s suggests invoice number %s (not applied)", provider, f.InvoiceNumber))
	}
	if f.Total != "" {
		notes = append(notes, fmt.Sprintf("%s suggests total %s (not applied)", provider, f.Total))
	}
	return notes
}

var dateLayouts = []string{
	"2006-01-02",
	"02.01.2006",
	"2.1.2006",
	"02/01/2006",
	"2006/01/02",
	"02-01-2006",
	"January 2, 2006",
	"Jan 2, 2006",
	"2 January 2006",
	"2 Jan 2006",
}

// ParseDate reads the date formats providers return, ISO first.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if d, err := time.Parse(layout, s); err == nil {
			return d, true
		}
	}
	return time.Time{}, false
}
