package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"invoicelayout/internal/layout"
	"invoicelayout/internal/logger"
	"invoicelayout/internal/pipeline"
	"invoicelayout/pkg/models"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect [pdf-file]",
	Short: "Show the rows, zones and columns found on each page",
	Long: `Print the page structure the extractor works from: how each page was read
(native text or OCR, quality score and routing reasons), every row with the
zone it was placed in, the columns detected in the item zone and the
invoice ranges found in the file.

Use it to tune a profile (PROFILE_PATH) for a supplier whose invoices end
up in REVIEW.`,
	Example: `  # Show the layout of every page
  invoicelayout inspect invoice.pdf

  # Only pages 2 and 3, as JSON
  invoicelayout inspect invoice.pdf --pages 2,3 --json`,
	Args: cobra.ExactArgs(1),
	RunE: runInspect,
}

func init() {
	rootCmd.AddCommand(inspectCmd)

	inspectCmd.Flags().IntSlice("pages", nil, "Only show these pages (1-based)")
	inspectCmd.Flags().Bool("json", false, "Print the page layouts as JSON")
	inspectCmd.Flags().Bool("tokens", false, "Print token boxes under each row")
}

// pageInspection is the JSON form of one inspected page.
type pageInspection struct {
	Read     pipeline.PageResult `json:"read"`
	Rows     []rowInspection     `json:"rows"`
	Columns  layout.ColumnLayout `json:"columns"`
	Segments []segmentSpan       `json:"segments"`
}

type rowInspection struct {
	Index   int                `json:"index"`
	Segment models.SegmentType `json:"segment"`
	Y       float64            `json:"y"`
	XMin    float64            `json:"x_min"`
	XMax    float64            `json:"x_max"`
	Text    string             `json:"text"`
	Tokens  []models.Token     `json:"tokens,omitempty"`
}

type segmentSpan struct {
	Type models.SegmentType `json:"type"`
	YMin float64            `json:"y_min"`
	YMax float64            `json:"y_max"`
	Rows int                `json:"rows"`
}

func runInspect(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("inspect")

	pages, _ := cmd.Flags().GetIntSlice("pages")
	asJSON, _ := cmd.Flags().GetBool("json")
	withTokens, _ := cmd.Flags().GetBool("tokens")
	pdfPath := args[0]

	if err := validatePDFPath(pdfPath); err != nil {
		return err
	}

	ctx, cancel := signalContext(5*time.Minute, log)
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

	analyzer := layout.NewAnalyzer(a.profile.Pipeline.Layout)
	selected := map[int]bool{}
	for _, p := range pages {
		selected[p] = true
	}

	var inspections []pageInspection
	for i, pl := range res.Layouts {
		if len(selected) > 0 && !selected[pl.Page.Number] {
			continue
		}
		inspections = append(inspections, inspectPage(analyzer, pl, res.Pages[i], withTokens))
	}

	if asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(struct {
			File     string                        `json:"file"`
			Pages    []pageInspection              `json:"pages"`
			Ranges   any                           `json:"ranges"`
			Invoices []models.VirtualInvoiceResult `json:"invoices"`
		}{res.Document.Filename, inspections, res.Ranges, res.Invoices})
	}

	fmt.Printf("%s: %d page(s), profile %s\n", res.Document.Filename, res.Document.PageCount, a.profile.Name)
	for _, p := range inspections {
		printInspection(p)
	}

	fmt.Println()
	fmt.Println("Invoices:")
	for _, inv := range res.Invoices {
		number := "-"
		if inv.Header != nil && inv.Header.InvoiceNumber != "" {
			number = inv.Header.InvoiceNumber
		}
		fmt.Printf("  #%d pages %d-%d %s %s %s\n", inv.Index, inv.PageStart, inv.PageEnd, statusIcon(inv.Status), inv.Status, number)
	}
	return nil
}

func inspectPage(analyzer *layout.Analyzer, pl layout.PageLayout, read pipeline.PageResult, withTokens bool) pageInspection {
	p := pageInspection{Read: read}

	for _, s := range pl.Segments {
		p.Segments = append(p.Segments, segmentSpan{Type: s.Type, YMin: s.YMin, YMax: s.YMax, Rows: len(s.Rows)})
	}

	for _, row := range pl.Rows {
		ri := rowInspection{
			Index:   row.Index,
			Segment: pl.SegmentOf(row),
			Y:       row.Y,
			XMin:    row.XMin,
			XMax:    row.XMax,
			Text:    row.Text,
		}
		if withTokens {
			ri.Tokens = row.Tokens
		}
		p.Rows = append(p.Rows, ri)
	}

	if items, ok := pl.Segment(models.SegmentItems); ok {
		candidates := append([]models.Row{}, items.Rows...)
		if head, ok := pl.Segment(models.SegmentHeader); ok {
			for i := len(head.Rows) - 1; i >= 0; i-- {
				candidates = append(candidates, head.Rows[i])
			}
		}
		var header *models.Row
		for i := range candidates {
			if layout.HeaderMatches(candidates[i]) >= 2 {
				header = &candidates[i]
				break
			}
		}

		var tokens []models.Token
		if header != nil {
			tokens = append(tokens, header.Tokens...)
		}
		for _, row := range items.Rows {
			if header == nil || row.Index != header.Index {
				tokens = append(tokens, row.Tokens...)
			}
		}
		p.Columns = analyzer.Columns.Detect(tokens, pl.Page.Width)
		if header != nil {
			p.Columns.Mapping = analyzer.Columns.MapHeader(*header, p.Columns)
		}
	}
	return p
}

func printInspection(p pageInspection) {
	r := p.Read
	fmt.Println()
	fmt.Println(strings.Repeat("-", 80))
	fmt.Printf("Page %d  source=%s tokens=%d rows=%d quality=%.2f routing=%s\n",
		r.Page, r.Source, r.Tokens, r.Rows, r.Quality, r.Routing)
	for _, n := range r.Notes {
		fmt.Printf("  note: %s\n", n)
	}
	if r.Error != "" {
		fmt.Printf("  error: %s\n", r.Error)
	}
	for _, s := range p.Segments {
		fmt.Printf("  zone %-6s y=%.1f..%.1f rows=%d\n", s.Type, s.YMin, s.YMax, s.Rows)
	}
	fmt.Println(strings.Repeat("-", 80))

	for _, row := range p.Rows {
		fmt.Printf("%3d %-6s y=%6.1f x=%6.1f..%6.1f  %s\n", row.Index, row.Segment, row.Y, row.XMin, row.XMax, row.Text)
		for _, t := range row.Tokens {
			fmt.Printf("      [%6.1f %6.1f %5.1f %5.1f] %s\n", t.X, t.Y, t.Width, t.Height, t.Text)
		}
	}

	if len(p.Columns.Centers) > 0 {
		centers := make([]string, len(p.Columns.Centers))
		for i, c := range p.Columns.Centers {
			centers[i] = fmt.Sprintf("%.1f", c)
		}
		fmt.Printf("columns: %s\n", strings.Join(centers, " "))

		fields := make([]string, 0, len(p.Columns.Mapping))
		for field, idx := range p.Columns.Mapping {
			fields = append(fields, fmt.Sprintf("%s=%d", field, idx))
		}
		sort.Strings(fields)
		if len(fields) > 0 {
			fmt.Printf("mapping: %s\n", strings.Join(fields, " "))
		}
	}
}
