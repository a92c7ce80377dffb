package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"invoicelayout/internal/logger"
)

var version = "1.0.0"

var rootCmd = &cobra.Command{
	Use:   "invoicelayout",
	Short: "Extract invoices from PDF files by page layout",
	Long: `invoicelayout reads the text layer of PDF invoices (or OCR output for
scanned pages), groups words into rows and zones, and extracts the invoice
number, total and line items of every invoice in a file.

Each invoice is validated: the line items must add up to the total and both
critical fields must be read with high confidence, otherwise the invoice is
marked for review.`,
	Version: version,
	Run: func(cmd *cobra.Command, args []string) {
		log := logger.WithComponent("root")
		log.Info().
			Str("version", version).
			Msg("invoicelayout executed")

		fmt.Println("Use --help to see available commands and options.")
	},
}

func Execute() {
	log := logger.WithComponent("cmd")

	if err := rootCmd.Execute(); err != nil {
		log.Error().
			Err(err).
			Msg("Command execution failed")
		fmt.Fprintf(os.Stderr, "Error executing command: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.Flags().BoolP("version", "v", false, "Print version information")
}
