package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"invoicelayout/internal/config"
	"invoicelayout/internal/enrich"
	"invoicelayout/internal/export"
	"invoicelayout/internal/ocr"
	"invoicelayout/internal/pdftext"
	"invoicelayout/internal/pipeline"
	"invoicelayout/internal/sheets"
	"invoicelayout/internal/store"
	"invoicelayout/pkg/models"
)

// app is the pipeline and its collaborators built from the environment.
type app struct {
	config   *config.Config
	profile  config.Profile
	pipeline *pipeline.Pipeline
	closers  []func() error
	log      zerolog.Logger
}

func newApp(ctx context.Context, log zerolog.Logger) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	profile, err := cfg.Profile()
	if err != nil {
		return nil, err
	}

	opener, err := pdftext.NewOpener(cfg.PDFBackend)
	if err != nil {
		return nil, err
	}
	a := &app{config: cfg, profile: profile, log: log}
	opts := []pipeline.Option{pipeline.WithOpener(opener)}

	engine, err := ocr.New(ctx, cfg.OCROptions())
	if err != nil {
		return nil, fmt.Errorf("failed to create OCR engine: %w", err)
	}
	if engine != nil {
		opts = append(opts, pipeline.WithOCR(engine))
		a.closers = append(a.closers, engine.Close)
	}

	enricher, err := enrich.New(ctx, cfg.EnrichOptions())
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to create enricher: %w", err)
	}
	if enricher != nil {
		opts = append(opts, pipeline.WithEnricher(enricher))
		a.closers = append(a.closers, enricher.Close)
	}

	a.pipeline, err = pipeline.New(profile.Pipeline, opts...)
	if err != nil {
		a.Close()
		return nil, err
	}

	log.Debug().
		Str("profile", profile.Name).
		Str("backend", cfg.PDFBackend).
		Str("ocr", cfg.OCREngine).
		Str("enrich", cfg.EnrichProvider).
		Msg("Pipeline ready")
	return a, nil
}

func (a *app) Close() {
	for _, c := range a.closers {
		if err := c(); err != nil {
			a.log.Warn().Err(err).Msg("Failed to close collaborator")
		}
	}
}

// outputs are the sinks selected on the command line.
type outputs struct {
	jsonPath string
	stdout   bool // JSON to stdout when no path is given
	xlsxPath string
	sheet    bool
	db       bool
}

func addOutputFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("json", "o", "", "Write invoices as JSON to this file")
	cmd.Flags().String("xlsx", "", "Write an XLSX report to this file")
	cmd.Flags().Bool("sheet", false, "Append invoices to GOOGLE_SHEET_URL")
	cmd.Flags().Bool("db", false, "Store results in the SQLite database under RESULT_DB_DIR")
}

func readOutputFlags(cmd *cobra.Command) outputs {
	var out outputs
	out.jsonPath, _ = cmd.Flags().GetString("json")
	out.xlsxPath, _ = cmd.Flags().GetString("xlsx")
	out.sheet, _ = cmd.Flags().GetBool("sheet")
	out.db, _ = cmd.Flags().GetBool("db")
	return out
}

// write sends the invoices of docs to every selected sink.
func (a *app) write(ctx context.Context, out outputs, docs []*pipeline.DocumentResult) error {
	var invoices []models.VirtualInvoiceResult
	for _, d := range docs {
		invoices = append(invoices, d.Invoices...)
	}

	if out.jsonPath != "" {
		if err := writeFile(out.jsonPath, func(f *os.File) error { return export.WriteJSON(f, invoices) }); err != nil {
			return err
		}
		a.log.Info().Str("output_file", out.jsonPath).Int("invoices", len(invoices)).Msg("JSON written")
	} else if out.stdout {
		if err := export.WriteJSON(os.Stdout, invoices); err != nil {
			return err
		}
	}

	if out.xlsxPath != "" {
		if err := writeFile(out.xlsxPath, func(f *os.File) error { return export.WriteXLSX(f, invoices) }); err != nil {
			return err
		}
		a.log.Info().Str("output_file", out.xlsxPath).Int("invoices", len(invoices)).Msg("XLSX report written")
	}

	if out.db {
		s, err := store.Open(a.config.ResultDBDir)
		if err != nil {
			return fmt.Errorf("failed to open result store: %w", err)
		}
		defer s.Close()
		for _, d := range docs {
			doc := store.Document{
				Path:      d.Document.Filepath,
				Filename:  d.Document.Filename,
				PageCount: d.Document.PageCount,
				Duration:  d.Duration,
			}
			if err := s.Save(ctx, doc, d.Invoices); err != nil {
				return fmt.Errorf("failed to store %s: %w", doc.Filename, err)
			}
		}
		a.log.Info().Str("db", s.Path()).Int("documents", len(docs)).Msg("Results stored")
	}

	if out.sheet {
		if a.config.GoogleSheetURL == "" {
			return fmt.Errorf("GOOGLE_SHEET_URL environment variable is required for --sheet")
		}
		svc, err := sheets.NewSheetsService(ctx, a.config.GoogleSheetURL)
		if err != nil {
			return fmt.Errorf("failed to create Google Sheets service: %w", err)
		}
		if err := svc.WriteResults(ctx, invoices, a.config.GoogleSheetWorksheet); err != nil {
			return fmt.Errorf("failed to write to Google Sheet: %w", err)
		}
	}
	return nil
}

func writeFile(path string, write func(*os.File) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	if err := write(f); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return f.Close()
}

// signalContext is cancelled on SIGINT/SIGTERM and, when timeout is
// positive, after timeout.
func signalContext(timeout time.Duration, log zerolog.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	if timeout > 0 {
		var timeoutCancel context.CancelFunc
		ctx, timeoutCancel = context.WithTimeout(ctx, timeout)
		parent := cancel
		cancel = func() {
			timeoutCancel()
			parent()
		}
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		defer signal.Stop(sigChan)
		select {
		case sig := <-sigChan:
			log.Info().
				Str("signal", sig.String()).
				Msg("Received interrupt signal, canceling")
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, cancel
}

func statusIcon(status models.Status) string {
	switch status {
	case models.StatusOK:
		return "✅"
	case models.StatusPartial:
		return "⚠️"
	case models.StatusReview:
		return "🔍"
	case models.StatusFailed:
		return "❌"
	default:
		return "❓"
	}
}

func formatAmount(v *float64) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%.2f", *v)
}
