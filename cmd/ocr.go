package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"invoicelayout/internal/config"
	"invoicelayout/internal/layout"
	"invoicelayout/internal/logger"
	"invoicelayout/internal/ocr"
	"invoicelayout/internal/pdftext"
	"invoicelayout/pkg/models"
)

var ocrCmd = &cobra.Command{
	Use:   "ocr [pdf-file]",
	Short: "Compare the native text layer of each page with OCR output",
	Long: `Read each page twice, once from the PDF text layer and once with the
configured OCR engine, and print both texts with their quality scores and
the routing decision the extractor would take.

Use it to check whether a supplier's PDFs carry a usable text layer and to
tune the routing thresholds of a profile.

Required environment variables:
  OCR_ENGINE - vision or tesseract
  GOOGLE_APPLICATION_CREDENTIALS or GOOGLE_CREDENTIALS - for vision`,
	Example: `  # Compare every page
  invoicelayout ocr scan.pdf

  # Only page 1, as JSON into a file
  invoicelayout ocr scan.pdf --pages 1 --json -o page1.json`,
	Args: cobra.ExactArgs(1),
	RunE: runOCR,
}

// OCROutput is one page as printed with --json.
type OCROutput struct {
	Page          int      `json:"page"`
	NativeText    string   `json:"native_text"`
	NativeQuality float64  `json:"native_quality"`
	UseNative     bool     `json:"use_native"`
	Reasons       []string `json:"reasons,omitempty"`
	OCRText       string   `json:"ocr_text,omitempty"`
	OCRQuality    float64  `json:"ocr_quality"`
	OCRWords      int      `json:"ocr_words"`
	Error         string   `json:"error,omitempty"`
}

func init() {
	rootCmd.AddCommand(ocrCmd)

	ocrCmd.Flags().StringP("output", "o", "", "Output file path (default: stdout)")
	ocrCmd.Flags().IntSlice("pages", nil, "Only these pages (1-based)")
	ocrCmd.Flags().Bool("json", false, "Output as JSON")
	ocrCmd.Flags().Int("timeout", 300, "Processing timeout in seconds")
}

func runOCR(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("ocr")

	outputPath, _ := cmd.Flags().GetString("output")
	pages, _ := cmd.Flags().GetIntSlice("pages")
	jsonOutput, _ := cmd.Flags().GetBool("json")
	timeoutSecs, _ := cmd.Flags().GetInt("timeout")
	pdfPath := args[0]

	if err := validatePDFPath(pdfPath); err != nil {
		return err
	}

	ctx, cancel := signalContext(time.Duration(timeoutSecs)*time.Second, log)
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	profile, err := cfg.Profile()
	if err != nil {
		return err
	}

	engine, err := ocr.New(ctx, cfg.OCROptions())
	if err != nil {
		return handleOCRError(err, log)
	}
	if engine == nil {
		return fmt.Errorf("OCR_ENGINE is %q; set it to vision or tesseract", cfg.OCREngine)
	}
	defer engine.Close()

	router, err := ocr.NewRouter(profile.Pipeline.Routing)
	if err != nil {
		return err
	}
	tokenizer := layout.NewTokenizer(profile.Pipeline.Layout.Tokenizer)

	open, err := pdftext.NewOpener(cfg.PDFBackend)
	if err != nil {
		return err
	}
	doc, err := open(pdfPath)
	if err != nil {
		return fmt.Errorf("failed to open PDF file: %w", err)
	}
	defer doc.Close()
	loaded, err := pdftext.Load(doc, pdfPath)
	if err != nil {
		return fmt.Errorf("failed to read page table: %w", err)
	}

	selected := map[int]bool{}
	for _, p := range pages {
		selected[p] = true
	}

	var results []OCROutput
	for _, page := range loaded.Pages {
		if len(selected) > 0 && !selected[page.Number] {
			continue
		}
		if err := ctx.Err(); err != nil {
			return handleOCRError(err, log)
		}
		results = append(results, comparePage(ctx, doc, engine, router, tokenizer, page, log))
	}

	var rendered []byte
	if jsonOutput {
		rendered, err = json.MarshalIndent(results, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to create JSON output: %w", err)
		}
		rendered = append(rendered, '\n')
	} else {
		rendered = []byte(formatOCRText(results))
	}

	if outputPath == "" {
		_, err = os.Stdout.Write(rendered)
		return err
	}
	if err := os.WriteFile(outputPath, rendered, 0o644); err != nil {
		return fmt.Errorf("failed to write output file: %w", err)
	}
	log.Info().Str("output_file", outputPath).Int("pages", len(results)).Msg("OCR comparison written")
	return nil
}

func comparePage(ctx context.Context, doc pdftext.Document, engine ocr.Engine, router *ocr.Router, tokenizer *layout.Tokenizer, page models.Page, log zerolog.Logger) OCROutput {
	out := OCROutput{Page: page.Number}

	native := page
	if words, err := doc.Words(page.Number); err != nil {
		out.Error = fmt.Sprintf("native text unavailable: %v", err)
	} else if tokens, err := tokenizer.TokenizeNative(&native, words); err == nil {
		out.NativeText = joinTokens(tokens)
	}
	out.NativeQuality = ocr.QualityScore(out.NativeText)
	decision := router.Route(out.NativeText, out.NativeQuality)
	out.UseNative = decision.UseNative
	for _, r := range decision.Reasons {
		out.Reasons = append(out.Reasons, string(r))
	}

	result, err := engine.Recognize(ctx, ocr.PageRequest{
		Path:   page.DocumentPath,
		Page:   page.Number,
		Width:  page.Width,
		Height: page.Height,
	})
	if err != nil {
		log.Warn().Err(err).Int("page", page.Number).Msg("OCR failed")
		if out.Error != "" {
			out.Error += "; "
		}
		out.Error += "ocr failed: " + err.Error()
		return out
	}

	scanned := page
	tokens, err := tokenizer.TokenizeOCR(&scanned, result)
	if err != nil {
		out.Error = "ocr words rejected: " + err.Error()
		return out
	}
	confidences := make([]float64, 0, len(tokens))
	for _, t := range tokens {
		if t.Confidence != nil {
			confidences = append(confidences, *t.Confidence)
		}
	}
	out.OCRText = joinTokens(tokens)
	out.OCRWords = len(tokens)
	out.OCRQuality = ocr.OCRQualityScore(out.OCRText, confidences)
	return out
}

func joinTokens(tokens []models.Token) string {
	texts := make([]string, len(tokens))
	for i, t := range tokens {
		texts[i] = t.Text
	}
	return strings.Join(texts, " ")
}

func formatOCRText(results []OCROutput) string {
	var b strings.Builder
	for _, r := range results {
		verdict := "ocr"
		if r.UseNative {
			verdict = "native"
		}
		fmt.Fprintf(&b, "=== Page %d: native %.2f, ocr %.2f (%d words), routing -> %s", r.Page, r.NativeQuality, r.OCRQuality, r.OCRWords, verdict)
		if len(r.Reasons) > 0 {
			fmt.Fprintf(&b, " [%s]", strings.Join(r.Reasons, ", "))
		}
		b.WriteString("\n")
		if r.Error != "" {
			fmt.Fprintf(&b, "error: %s\n", r.Error)
		}
		fmt.Fprintf(&b, "--- native\n%s\n--- ocr\n%s\n\n", r.NativeText, r.OCRText)
	}
	return b.String()
}

// handleOCRError provides user-friendly error messages for OCR failures
func handleOCRError(err error, log zerolog.Logger) error {
	log.Error().Err(err).Msg("OCR processing failed")

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("OCR processing timed out. Try increasing --timeout or selecting fewer --pages")
	case errors.Is(err, context.Canceled):
		return fmt.Errorf("OCR processing was canceled")
	case errors.Is(err, ocr.ErrMissingCredentials):
		return fmt.Errorf("missing Google Cloud credentials. Please set one of:\n" +
			"  GOOGLE_APPLICATION_CREDENTIALS=/path/to/service-account-key.json\n" +
			"  GOOGLE_CREDENTIALS='<json-credentials>'\n" +
			"Original error: %w", err)
	case errors.Is(err, ocr.ErrUnknownEngine):
		return fmt.Errorf("unknown OCR_ENGINE: %w", err)
	default:
		return fmt.Errorf("OCR processing failed: %w", err)
	}
}
