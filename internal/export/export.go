// Package export writes extracted invoices as JSON documents or XLSX
// workbooks.
package export

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"

	"invoicelayout/pkg/models"
)

const (
	InvoiceSheet = "Invoices"
	LineSheet    = "Lines"
)

var invoiceHeaders = []string{
	"ID",
	"File",
	"Invoice",
	"Pages",
	"Status",
	"Invoice Number",
	"Number Confidence",
	"Invoice Date",
	"Vendor",
	"Customer",
	"Reference",
	"Total",
	"Total Confidence",
	"Lines Sum",
	"Difference",
	"Text Source",
	"Notes",
}

var lineHeaders = []string{
	"Invoice ID",
	"Line",
	"Description",
	"Quantity",
	"Unit",
	"Unit Price",
	"Discount",
	"VAT %",
	"Total",
	"Page",
}

// WriteJSON writes the results as an indented JSON array.
func WriteJSON(w io.Writer, results []models.VirtualInvoiceResult) error {
	if results == nil {
		results = []models.VirtualInvoiceResult{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(results); err != nil {
		return fmt.Errorf("json encode: %w", err)
	}
	return nil
}

// WriteXLSX writes one row per invoice to the Invoices sheet and one row
// per line item to the Lines sheet.
func WriteXLSX(w io.Writer, results []models.VirtualInvoiceResult) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", InvoiceSheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	if _, err := f.NewSheet(LineSheet); err != nil {
		return fmt.Errorf("new sheet: %w", err)
	}

	if err := writeRow(f, InvoiceSheet, 1, toAny(invoiceHeaders)); err != nil {
		return err
	}
	if err := writeRow(f, LineSheet, 1, toAny(lineHeaders)); err != nil {
		return err
	}

	lineRow := 2
	for i, r := range results {
		if err := writeRow(f, InvoiceSheet, i+2, InvoiceValues(r)); err != nil {
			return err
		}
		for _, l := range r.Lines {
			if err := writeRow(f, LineSheet, lineRow, lineValues(r.ID, l)); err != nil {
				return err
			}
			lineRow++
		}
	}

	if err := styleHeader(f, InvoiceSheet, len(invoiceHeaders)); err != nil {
		return err
	}
	if err := styleHeader(f, LineSheet, len(lineHeaders)); err != nil {
		return err
	}

	_ = f.SetColWidth(InvoiceSheet, "A", "A", 38) // id
	_ = f.SetColWidth(InvoiceSheet, "B", "B", 28) // file
	_ = f.SetColWidth(InvoiceSheet, "F", "F", 18)
	_ = f.SetColWidth(InvoiceSheet, "I", "J", 28)
	_ = f.SetColWidth(InvoiceSheet, "Q", "Q", 60) // notes
	_ = f.SetColWidth(LineSheet, "A", "A", 38)
	_ = f.SetColWidth(LineSheet, "C", "C", 48) // description

	if err := f.Write(w); err != nil {
		return fmt.Errorf("xlsx write: %w", err)
	}
	return nil
}

// InvoiceValues flattens one result into the invoice sheet columns. Absent
// values are empty strings so that the cell stays blank.
func InvoiceValues(r models.VirtualInvoiceResult) []any {
	pages := fmt.Sprintf("%d-%d", r.PageStart, r.PageEnd)
	if r.PageStart == r.PageEnd {
		pages = fmt.Sprintf("%d", r.PageStart)
	}

	notes := r.Notes
	if r.Error != "" {
		notes = append([]string{"error: " + r.Error}, notes...)
	}

	values := []any{r.ID, r.SourceFile, r.Index, pages, string(r.Status)}

	h := r.Header
	if h == nil {
		h = &models.InvoiceHeader{}
	}
	date := ""
	if h.InvoiceDate != nil {
		date = h.InvoiceDate.Format("2006-01-02")
	}
	values = append(values,
		h.InvoiceNumber,
		h.InvoiceNumberConfidence,
		date,
		h.Vendor,
		h.Customer,
		h.Reference,
		optional(h.TotalAmount),
		h.TotalConfidence,
	)

	if v := r.Validation; v != nil {
		values = append(values, v.LinesSum, optional(v.Diff))
	} else {
		values = append(values, "", "")
	}
	return append(values, string(r.TextSource), strings.Join(notes, "; "))
}

func lineValues(id string, l models.InvoiceLine) []any {
	return []any{
		id,
		l.LineNumber,
		l.Description,
		optional(l.Quantity),
		l.Unit,
		optional(l.UnitPrice),
		optional(l.Discount),
		optional(l.VATRate),
		l.TotalAmount,
		l.Segment.Page,
	}
}

func optional(v *float64) any {
	if v == nil {
		return ""
	}
	return *v
}

func toAny(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}

func writeRow(f *excelize.File, sheet string, row int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		return fmt.Errorf("write %s row %d: %w", sheet, row, err)
	}
	return nil
}

func styleHeader(f *excelize.File, sheet string, columns int) error {
	style, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"E6E6E6"}},
	})
	if err != nil {
		return fmt.Errorf("header style: %w", err)
	}
	last, err := excelize.CoordinatesToCellName(columns, 1)
	if err != nil {
		return err
	}
	return f.SetCellStyle(sheet, "A1", last, style)
}
