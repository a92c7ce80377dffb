package sheets

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"invoicelayout/pkg/models"
)

func TestExtractSpreadsheetID(t *testing.T) {
	id, err := extractSpreadsheetID("https://docs.google.com/spreadsheets/d/1AbC-d_9/edit#gid=0")
	require.NoError(t, err)
	assert.Equal(t, "1AbC-d_9", id)

	_, err = extractSpreadsheetID("https://example.com/not-a-sheet")
	assert.Error(t, err)
}

func TestToRows(t *testing.T) {
	total, diff := 375.0, 0.0
	date := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	now := time.Date(2024, 3, 2, 10, 30, 0, 0, time.UTC)

	rows := ToRows([]models.VirtualInvoiceResult{
		{
			SourceFile: "a.pdf",
			Index:      1,
			PageStart:  1,
			PageEnd:    2,
			Status:     models.StatusOK,
			Header: &models.InvoiceHeader{
				InvoiceNumber: "INV-1001",
				InvoiceDate:   &date,
				Vendor:        "Acme AB",
				TotalAmount:   &total,
			},
			Validation: &models.ValidationResult{LinesSum: 375, Diff: &diff},
			Notes:      []string{"text source: native"},
		},
		{
			SourceFile: "a.pdf",
			Index:      2,
			PageStart:  3,
			PageEnd:    3,
			Status:     models.StatusFailed,
			Error:      "page 3: bad geometry",
		},
	}, now)

	require.Len(t, rows, 2)
	assert.Equal(t, []interface{}{
		"a.pdf", 1, "1-2", "OK", "INV-1001", "2024-03-01",
		"Acme AB", "", "", 375.0, 375.0, 0.0,
		"text source: native", "2024-03-02 10:30:00",
	}, rows[0].Values())

	failed := rows[1]
	assert.Equal(t, "3", failed.Pages)
	assert.Equal(t, "", failed.Total)
	assert.Equal(t, "error: page 3: bad geometry", failed.Notes)
	assert.Len(t, failed.Values(), len(Headers))
}
