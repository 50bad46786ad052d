package commands

import (
	"github.com/spf13/cobra"
)

var (
	// Global flags
	productsFile string
	pricesFile   string
	verbose      bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "notes",
	Short: "Structured note lifecycle engine",
	Long: `Structured note lifecycle engine

Evaluates phoenix, reverse convertible and participation notes against
cached market data, records lifecycle events and serves the reports.

Products come from Postgres (DATABASE_URL) or a YAML file (--products).
Prices come from PRICE_SOURCE or a YAML file (--prices).

Usage:
  go run ./cmd/notes [command]

Examples:
  go run ./cmd/notes api
  go run ./cmd/notes evaluate PHX-1 --date 2024-08-01
  go run ./cmd/notes schedule PHX-1 --products products.yaml
  go run ./cmd/notes scheduler start`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&productsFile, "products", "", "product definitions YAML (default: Postgres)")
	rootCmd.PersistentFlags().StringVar(&pricesFile, "prices", "", "price records YAML (default: PRICE_SOURCE)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
}
