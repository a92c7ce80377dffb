package sheets

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"invoicelayout/internal/logger"
	"invoicelayout/pkg/models"
)

// Headers are the column titles written to an empty worksheet.
var Headers = []string{
	"File", "Invoice", "Pages", "Status", "Invoice Number", "Invoice Date",
	"Vendor", "Customer", "Reference", "Total", "Lines Sum", "Difference",
	"Notes", "Processed",
}

// lastColumn is the column letter of the final header.
const lastColumn = "N"

// Service appends extraction results to a Google Sheet
type Service struct {
	sheetsService *sheets.Service
	spreadsheetID string
	log           zerolog.Logger
}

// Row is one virtual invoice as written to the sheet
type Row struct {
	Filename      string
	Index         int
	Pages         string
	Status        string
	InvoiceNumber string
	Date          string
	Vendor        string
	Customer      string
	Reference     string
	Total         any
	LinesSum      any
	Difference    any
	Notes         string
	ProcessedAt   string
}

// NewSheetsService creates a new Google Sheets service
func NewSheetsService(ctx context.Context, sheetURL string) (*Service, error) {
	const op = "NewSheetsService"

	log := logger.WithComponent("sheets")

	spreadsheetID, err := extractSpreadsheetID(sheetURL)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to extract spreadsheet ID: %w", op, err)
	}

	log.Debug().Str("spreadsheet_id", spreadsheetID).Msg("Extracted spreadsheet ID")

	var creds []byte
	if credsFile := os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"); credsFile != "" {
		creds, err = os.ReadFile(credsFile)
		if err != nil {
			return nil, fmt.Errorf("%s: failed to read credentials file: %w", op, err)
		}
	} else if credsJSON := os.Getenv("GOOGLE_CREDENTIALS"); credsJSON != "" {
		creds = []byte(credsJSON)
	} else {
		return nil, fmt.Errorf("%s: neither GOOGLE_APPLICATION_CREDENTIALS nor GOOGLE_CREDENTIALS is set", op)
	}

	config, err := google.JWTConfigFromJSON(creds, sheets.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to parse credentials: %w", op, err)
	}

	sheetsService, err := sheets.NewService(ctx, option.WithHTTPClient(config.Client(ctx)))
	if err != nil {
		return nil, fmt.Errorf("%s: failed to create sheets service: %w", op, err)
	}

	return &Service{
		sheetsService: sheetsService,
		spreadsheetID: spreadsheetID,
		log:           log,
	}, nil
}

var spreadsheetIDPattern = regexp.MustCompile(`/spreadsheets/d/([a-zA-Z0-9-_]+)`)

// extractSpreadsheetID extracts the spreadsheet ID from a Google Sheets URL
func extractSpreadsheetID(url string) (string, error) {
	matches := spreadsheetIDPattern.FindStringSubmatch(url)
	if len(matches) < 2 {
		return "", fmt.Errorf("invalid Google Sheets URL format")
	}
	return matches[1], nil
}

// WriteResults appends one row per invoice to the named worksheet,
// creating it with a header row when needed.
func (s *Service) WriteResults(ctx context.Context, results []models.VirtualInvoiceResult, sheetName string) error {
	const op = "WriteResults"

	if len(results) == 0 {
		return nil
	}

	s.log.Info().
		Str("sheet", sheetName).
		Int("rows", len(results)).
		Msg("Writing results to Google Sheet")

	if err := s.ensureSheetWithHeaders(ctx, sheetName); err != nil {
		return fmt.Errorf("%s: failed to ensure sheet exists: %w", op, err)
	}

	values := make([][]interface{}, 0, len(results))
	for _, row := range ToRows(results, time.Now()) {
		values = append(values, row.Values())
	}

	_, err := s.sheetsService.Spreadsheets.Values.Append(
		s.spreadsheetID,
		sheetName+"!A:"+lastColumn,
		&sheets.ValueRange{Values: values},
	).ValueInputOption("USER_ENTERED").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("%s: failed to append values to sheet: %w", op, err)
	}

	s.log.Info().
		Int("rows_written", len(values)).
		Msg("Successfully wrote results to Google Sheet")
	return nil
}

// ToRows converts results to sheet rows stamped with processedAt.
func ToRows(results []models.VirtualInvoiceResult, processedAt time.Time) []Row {
	stamp := processedAt.Format("2006-01-02 15:04:05")
	rows := make([]Row, 0, len(results))

	for _, r := range results {
		row := Row{
			Filename:    r.SourceFile,
			Index:       r.Index,
			Pages:       fmt.Sprintf("%d-%d", r.PageStart, r.PageEnd),
			Status:      string(r.Status),
			Total:       "",
			LinesSum:    "",
			Difference:  "",
			ProcessedAt: stamp,
		}
		if r.PageStart == r.PageEnd {
			row.Pages = fmt.Sprintf("%d", r.PageStart)
		}

		notes := r.Notes
		if r.Error != "" {
			notes = append([]string{"error: " + r.Error}, notes...)
		}
		row.Notes = strings.Join(notes, "; ")

		if h := r.Header; h != nil {
			row.InvoiceNumber = h.InvoiceNumber
			row.Vendor = h.Vendor
			row.Customer = h.Customer
			row.Reference = h.Reference
			if h.InvoiceDate != nil {
				row.Date = h.InvoiceDate.Format("2006-01-02")
			}
			if h.TotalAmount != nil {
				row.Total = *h.TotalAmount
			}
		}
		if v := r.Validation; v != nil {
			row.LinesSum = v.LinesSum
			if v.Diff != nil {
				row.Difference = *v.Diff
			}
		}
		rows = append(rows, row)
	}
	return rows
}

// Values returns the row in header order.
func (r Row) Values() []interface{} {
	return []interface{}{
		r.Filename,      // A
		r.Index,         // B
		r.Pages,         // C
		r.Status,        // D
		r.InvoiceNumber, // E
		r.Date,          // F
		r.Vendor,        // G
		r.Customer,      // H
		r.Reference,     // I
		r.Total,         // J
		r.LinesSum,      // K
		r.Difference,    // L
		r.Notes,         // M
		r.ProcessedAt,   // N
	}
}

// ensureSheetWithHeaders ensures the sheet exists and has proper headers
func (s *Service) ensureSheetWithHeaders(ctx context.Context, sheetName string) error {
	const op = "ensureSheetWithHeaders"

	spreadsheet, err := s.sheetsService.Spreadsheets.Get(s.spreadsheetID).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("%s: failed to get spreadsheet: %w", op, err)
	}

	var sheetExists bool
	var sheetID int64
	for _, sheet := range spreadsheet.Sheets {
		if sheet.Properties.Title == sheetName {
			sheetExists = true
			sheetID = sheet.Properties.SheetId
			break
		}
	}

	if !sheetExists {
		s.log.Info().Str("sheet", sheetName).Msg("Creating new sheet")

		batchUpdateReq := &sheets.BatchUpdateSpreadsheetRequest{
			Requests: []*sheets.Request{
				{AddSheet: &sheets.AddSheetRequest{Properties: &sheets.SheetProperties{Title: sheetName}}},
			},
		}
		resp, err := s.sheetsService.Spreadsheets.BatchUpdate(s.spreadsheetID, batchUpdateReq).Context(ctx).Do()
		if err != nil {
			return fmt.Errorf("%s: failed to create sheet: %w", op, err)
		}
		sheetID = resp.Replies[0].AddSheet.Properties.SheetId
	}

	headerRange := fmt.Sprintf("%s!A1:%s1", sheetName, lastColumn)
	resp, err := s.sheetsService.Spreadsheets.Values.Get(s.spreadsheetID, headerRange).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("%s: failed to get headers: %w", op, err)
	}
	if len(resp.Values) > 0 && len(resp.Values[0]) > 0 {
		return nil
	}

	s.log.Info().Str("sheet", sheetName).Msg("Adding headers to sheet")

	header := make([]interface{}, len(Headers))
	for i, h := range Headers {
		header[i] = h
	}
	_, err = s.sheetsService.Spreadsheets.Values.Update(
		s.spreadsheetID,
		headerRange,
		&sheets.ValueRange{Values: [][]interface{}{header}},
	).ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("%s: failed to add headers: %w", op, err)
	}

	if err := s.formatHeaders(ctx, sheetID); err != nil {
		s.log.Warn().Err(err).Msg("Failed to format headers, continuing anyway")
	}
	return nil
}

// formatHeaders makes the header row bold and resizes the columns
func (s *Service) formatHeaders(ctx context.Context, sheetID int64) error {
	const op = "formatHeaders"

	columns := int64(len(Headers))
	requests := []*sheets.Request{
		{
			RepeatCell: &sheets.RepeatCellRequest{
				Range: &sheets.GridRange{
					SheetId:          sheetID,
					StartRowIndex:    0,
					EndRowIndex:      1,
					StartColumnIndex: 0,
					EndColumnIndex:   columns,
				},
				Cell: &sheets.CellData{
					UserEnteredFormat: &sheets.CellFormat{
						TextFormat:      &sheets.TextFormat{Bold: true},
						BackgroundColor: &sheets.Color{Red: 0.9, Green: 0.9, Blue: 0.9},
					},
				},
				Fields: "userEnteredFormat(textFormat,backgroundColor)",
			},
		},
		{
			AutoResizeDimensions: &sheets.AutoResizeDimensionsRequest{
				Dimensions: &sheets.DimensionRange{
					SheetId:    sheetID,
					Dimension:  "COLUMNS",
					StartIndex: 0,
					EndIndex:   columns,
				},
			},
		},
	}

	batchUpdateReq := &sheets.BatchUpdateSpreadsheetRequest{Requests: requests}
	if _, err := s.sheetsService.Spreadsheets.BatchUpdate(s.spreadsheetID, batchUpdateReq).Context(ctx).Do(); err != nil {
		return fmt.Errorf("%s: failed to format headers: %w", op, err)
	}
	return nil
}
