package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"invoicelayout/internal/inbox"
	"invoicelayout/internal/logger"
	"invoicelayout/internal/pipeline"
)

var watchCmd = &cobra.Command{
	Use:   "watch [folder-path]",
	Short: "Extract invoices from PDFs as they arrive in a folder",
	Long: `Watch a folder (and its subfolders) and process every PDF file that is
created or changed there. A file is processed once it has not changed for
the debounce period.

Each document is written to the selected outputs as soon as it is done:
--out-dir receives one JSON file per PDF, --db stores the result and
--sheet appends its invoices to GOOGLE_SHEET_URL. Stop with Ctrl+C.`,
	Example: `  # Store every new invoice in the result database
  invoicelayout watch ./inbox --db

  # Also process the files already in the folder and write JSON next to them
  invoicelayout watch ./inbox --existing --out-dir ./out`,
	Args: cobra.ExactArgs(1),
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)

	watchCmd.Flags().String("out-dir", "", "Write <name>.json for each processed PDF into this folder")
	watchCmd.Flags().Bool("sheet", false, "Append invoices to GOOGLE_SHEET_URL")
	watchCmd.Flags().Bool("db", false, "Store results in the SQLite database under RESULT_DB_DIR")
	watchCmd.Flags().Bool("existing", false, "Process PDFs already in the folder")
	watchCmd.Flags().Duration("debounce", inbox.DefaultDebounce, "Quiet period before a changed file is processed")
}

func runWatch(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("watch")

	dir := args[0]
	outDir, _ := cmd.Flags().GetString("out-dir")
	existing, _ := cmd.Flags().GetBool("existing")
	debounce, _ := cmd.Flags().GetDuration("debounce")
	out := outputs{}
	out.sheet, _ = cmd.Flags().GetBool("sheet")
	out.db, _ = cmd.Flags().GetBool("db")

	if outDir != "" {
		if err := os.MkdirAll(outDir, 0o755); err != nil {
			return fmt.Errorf("failed to create output folder: %w", err)
		}
	}

	ctx, cancel := signalContext(0, log)
	defer cancel()

	a, err := newApp(ctx, log)
	if err != nil {
		return err
	}
	defer a.Close()

	w, err := inbox.New(inbox.Config{Dir: dir, InitialScan: existing, Debounce: debounce})
	if err != nil {
		return err
	}
	paths, errs, err := w.Run(ctx)
	if err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	fmt.Printf("Watching %s (Ctrl+C to stop)\n", dir)

	processed := 0
	for {
		select {
		case path, ok := <-paths:
			if !ok {
				log.Info().Int("processed", processed).Msg("Watch stopped")
				return nil
			}
			if err := watchOne(ctx, a, path, outDir, out); err != nil {
				fmt.Printf("%s %s (%s)\n", statusIcon(""), filepath.Base(path), err)
				log.Warn().Err(err).Str("file", path).Msg("Failed to process file")
				continue
			}
			processed++
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			log.Warn().Err(err).Msg("Watcher reported an error")
		}
	}
}

func watchOne(ctx context.Context, a *app, path, outDir string, out outputs) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	res, err := a.pipeline.Process(ctx, path)
	if err != nil {
		return handleProcessError(err)
	}

	if outDir != "" {
		name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)) + ".json"
		out.jsonPath = filepath.Join(outDir, name)
	}
	if err := a.write(ctx, out, []*pipeline.DocumentResult{res}); err != nil {
		return err
	}

	printBatchProgress(1, 1, pipeline.BatchResult{Path: path, Filename: filepath.Base(path), Result: res}, true)
	return nil
}
