package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"invoicelayout/internal/logger"
	"invoicelayout/internal/pipeline"
)

var extractCmd = &cobra.Command{
	Use:   "extract [pdf-file]",
	Short: "Extract every invoice in one PDF",
	Long: `Process one PDF file and print its invoices as JSON.

A file may hold several invoices; each is reported with its page range,
header fields, line items and validation status (OK, PARTIAL, REVIEW or
FAILED). Evidence for the invoice number and total (page, box and the
source row) is included.

Optional environment variables:
  PDF_BACKEND     - tabula (default) or ledongthuc
  OCR_ENGINE      - none (default), vision or tesseract
  ENRICH_PROVIDER - none (default), openai or documentai
  PROFILE_PATH    - TOML file overriding extraction thresholds`,
	Example: `  # Print invoices as JSON
  invoicelayout extract invoice.pdf

  # Save JSON and an XLSX report
  invoicelayout extract invoice.pdf -o invoice.json --xlsx invoice.xlsx

  # Store the result and append it to the Google Sheet
  invoicelayout extract invoice.pdf --db --sheet`,
	Args: cobra.ExactArgs(1),
	RunE: runExtract,
}

func init() {
	rootCmd.AddCommand(extractCmd)

	addOutputFlags(extractCmd)
	extractCmd.Flags().Int("timeout", 300, "Processing timeout in seconds")
}

func runExtract(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("extract")

	timeoutSecs, _ := cmd.Flags().GetInt("timeout")
	out := readOutputFlags(cmd)
	out.stdout = true
	pdfPath := args[0]

	if err := validatePDFPath(pdfPath); err != nil {
		log.Error().Err(err).Str("file", pdfPath).Msg("Invalid input file")
		return err
	}

	ctx, cancel := signalContext(time.Duration(timeoutSecs)*time.Second, log)
	defer cancel()

	a, err := newApp(ctx, log)
	if err != nil {
		return err
	}
	defer a.Close()

	res, err := a.pipeline.Process(ctx, pdfPath)
	if err != nil {
		return handleProcessError(err)
	}

	for _, inv := range res.Invoices {
		event := log.Info().
			Int("invoice", inv.Index).
			Str("status", string(inv.Status)).
			Int("page_start", inv.PageStart).
			Int("page_end", inv.PageEnd)
		if inv.Header != nil {
			event = event.Str("invoice_number", inv.Header.InvoiceNumber).
				Str("total", formatAmount(inv.Header.TotalAmount))
		}
		event.Msg("Invoice extracted")
	}

	return a.write(ctx, out, []*pipeline.DocumentResult{res})
}

// validatePDFPath rejects paths that cannot be a readable PDF file.
func validatePDFPath(pdfPath string) error {
	info, err := os.Stat(pdfPath)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("PDF file not found: %s", pdfPath)
		}
		if os.IsPermission(err) {
			return fmt.Errorf("permission denied accessing PDF file: %s", pdfPath)
		}
		return fmt.Errorf("error accessing PDF file: %w", err)
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("path is not a regular file: %s", pdfPath)
	}
	if info.Size() == 0 {
		return fmt.Errorf("PDF file is empty: %s", pdfPath)
	}
	if !strings.HasSuffix(strings.ToLower(pdfPath), ".pdf") {
		logger.WithComponent("extract").Warn().Str("file", pdfPath).Msg("File does not have .pdf extension")
	}
	return nil
}

// handleProcessError turns pipeline errors into user-facing messages.
func handleProcessError(err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("processing timed out. Try increasing --timeout")
	case errors.Is(err, context.Canceled):
		return fmt.Errorf("processing was canceled")
	case errors.Is(err, pipeline.ErrUnreadable):
		return fmt.Errorf("the PDF could not be read: %w", err)
	default:
		return fmt.Errorf("processing failed: %w", err)
	}
}
