package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "importer",
	Short: "Bulk import products into a tenant catalog",
	Long: `importer previews and runs a product import from a CSV, XLSX or JSON file
without going through the review UI.

Examples:
  # Preview only
  importer run --file products.csv --tenant 6f1c... --dry-run

  # Update every duplicate and import from a bucket
  importer run --gcs gs://catalog-imports/acme/products.csv --tenant 6f1c... --default-action update`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.AddCommand(newRunCmd())
}

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
