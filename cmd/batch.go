package cmd

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"invoicelayout/internal/inbox"
	"invoicelayout/internal/logger"
	"invoicelayout/internal/pipeline"
	"invoicelayout/pkg/models"
)

var batchCmd = &cobra.Command{
	Use:   "batch [folder-path]",
	Short: "Extract invoices from every PDF in a folder",
	Long: `Process all PDF files below a folder with a pool of workers and write the
extracted invoices to the selected outputs.

Files are processed in parallel (BATCH_WORKERS, default 4) and pages of
each file in parallel (PAGE_WORKERS, default 4). Output keeps the order of
the files on disk. A file that cannot be read is reported and skipped.`,
	Example: `  # Extract everything into one XLSX report
  invoicelayout batch ./invoices --xlsx report.xlsx

  # Store results and append them to the Google Sheet
  invoicelayout batch ./invoices --db --sheet

  # Use 8 workers and write JSON
  invoicelayout batch ./invoices --workers 8 -o invoices.json`,
	Args: cobra.ExactArgs(1),
	RunE: runBatch,
}

func init() {
	rootCmd.AddCommand(batchCmd)

	addOutputFlags(batchCmd)
	batchCmd.Flags().Int("workers", 0, "Number of files processed in parallel (default BATCH_WORKERS)")
	batchCmd.Flags().Int("timeout", 30*60, "Processing timeout in seconds")
	batchCmd.Flags().Bool("verbose", false, "Show every invoice of every file")
}

func runBatch(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("batch")

	folderPath := args[0]
	workers, _ := cmd.Flags().GetInt("workers")
	timeoutSecs, _ := cmd.Flags().GetInt("timeout")
	verbose, _ := cmd.Flags().GetBool("verbose")
	out := readOutputFlags(cmd)

	folderInfo, err := os.Stat(folderPath)
	if err != nil {
		return fmt.Errorf("folder not found: %s", folderPath)
	}
	if !folderInfo.IsDir() {
		return fmt.Errorf("path is not a directory: %s", folderPath)
	}

	ctx, cancel := signalContext(time.Duration(timeoutSecs)*time.Second, log)
	defer cancel()

	a, err := newApp(ctx, log)
	if err != nil {
		return err
	}
	defer a.Close()

	if workers <= 0 {
		workers = a.config.BatchWorkers
	}

	pdfFiles, err := findPDFFiles(folderPath)
	if err != nil {
		return fmt.Errorf("failed to find PDF files: %w", err)
	}

	fmt.Println(strings.Repeat("=", 80))
	fmt.Println("                         INVOICE BATCH")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Folder:  %s\n", folderPath)
	fmt.Printf("Profile: %s\n", a.profile.Name)
	fmt.Println()

	if len(pdfFiles) == 0 {
		fmt.Println("No PDF files found in folder.")
		return nil
	}

	log.Info().
		Str("folder", folderPath).
		Int("files", len(pdfFiles)).
		Int("workers", workers).
		Msg("Starting batch processing")

	fmt.Printf("Processing %d PDFs with %d workers...\n\n", len(pdfFiles), workers)

	results := a.pipeline.Batch(ctx, pdfFiles, workers, func(done, total int, r pipeline.BatchResult) {
		printBatchProgress(done, total, r, verbose)
	})

	summary := summarize(results)
	var docs []*pipeline.DocumentResult
	for _, r := range results {
		if r.Result != nil {
			docs = append(docs, r.Result)
		}
	}

	fmt.Println()
	fmt.Println(strings.Repeat("=", 50))
	fmt.Println("                 RESULT")
	fmt.Println(strings.Repeat("=", 50))
	fmt.Printf("Files:    %d (%d unreadable)\n", len(results), summary.unreadable)
	fmt.Printf("Invoices: %d\n", summary.invoices)
	for _, status := range []models.Status{models.StatusOK, models.StatusPartial, models.StatusReview, models.StatusFailed} {
		if n := summary.byStatus[status]; n > 0 {
			fmt.Printf("  %s %-8s %d\n", statusIcon(status), status, n)
		}
	}
	fmt.Println()

	if err := a.write(ctx, out, docs); err != nil {
		return err
	}
	if out.sheet {
		fmt.Printf("Sheet: %s (%d rows)\n", a.config.GoogleSheetWorksheet, summary.invoices)
	}

	log.Info().
		Int("files", len(results)).
		Int("unreadable", summary.unreadable).
		Int("invoices", summary.invoices).
		Int("ok", summary.byStatus[models.StatusOK]).
		Int("review", summary.byStatus[models.StatusReview]).
		Msg("Batch processing completed")

	return ctx.Err()
}

type batchSummary struct {
	unreadable int
	invoices   int
	byStatus   map[models.Status]int
}

func summarize(results []pipeline.BatchResult) batchSummary {
	s := batchSummary{byStatus: map[models.Status]int{}}
	for _, r := range results {
		if r.Err != nil {
			s.unreadable++
			continue
		}
		for _, inv := range r.Result.Invoices {
			s.invoices++
			s.byStatus[inv.Status]++
		}
	}
	return s
}

func printBatchProgress(done, total int, r pipeline.BatchResult, verbose bool) {
	fmt.Printf("[%d/%d] %s", done, total, r.Filename)
	if r.Err != nil {
		fmt.Printf(" - %s (%s)\n", statusIcon(models.StatusFailed), r.Err.Error())
		return
	}

	counts := map[models.Status]int{}
	for _, inv := range r.Result.Invoices {
		counts[inv.Status]++
	}
	fmt.Printf(" - %d invoice(s)", len(r.Result.Invoices))
	for _, status := range []models.Status{models.StatusOK, models.StatusPartial, models.StatusReview, models.StatusFailed} {
		if n := counts[status]; n > 0 {
			fmt.Printf(" %s%d", statusIcon(status), n)
		}
	}
	fmt.Println()

	if !verbose {
		return
	}
	for _, inv := range r.Result.Invoices {
		number, total := "-", "-"
		if inv.Header != nil {
			if inv.Header.InvoiceNumber != "" {
				number = inv.Header.InvoiceNumber
			}
			total = formatAmount(inv.Header.TotalAmount)
		}
		fmt.Printf("      #%d p.%d-%d %s %-20s %12s\n", inv.Index, inv.PageStart, inv.PageEnd, statusIcon(inv.Status), number, total)
	}
}

// findPDFFiles lists the PDF files below folderPath in lexical order.
func findPDFFiles(folderPath string) ([]string, error) {
	var pdfFiles []string

	err := filepath.WalkDir(folderPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && inbox.IsPDF(path) {
			pdfFiles = append(pdfFiles, path)
		}
		return nil
	})

	return pdfFiles, err
}
