package commands

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/notes/backend/internal/contracts"
	"github.com/wonny/notes/backend/internal/evaluation"
)

// evaluateCmd represents the evaluate command
var evaluateCmd = &cobra.Command{
	Use:   "evaluate [product_id...]",
	Short: "상품 평가 리포트 출력",
	Long: `Evaluates products on a date and prints the report.

Without arguments every active product is evaluated as one batch.
Newly detected events are recorded in the event log.

Example:
  go run ./cmd/notes evaluate PHX-1 --date 2024-08-01
  go run ./cmd/notes evaluate --products notes.yaml --prices prices.yaml --output text`,
	RunE: runEvaluate,
}

var (
	evalDate   string
	evalOutput string
)

func init() {
	rootCmd.AddCommand(evaluateCmd)

	evaluateCmd.Flags().StringVar(&evalDate, "date", "", "evaluation date YYYY-MM-DD (default today)")
	evaluateCmd.Flags().StringVarP(&evalOutput, "output", "o", "json", "output format (json|text)")
}

// parseDateFlag parses an optional date flag; empty means today
func parseDateFlag(value string) (time.Time, error) {
	if value == "" {
		return contracts.Day(time.Now()), nil
	}
	d, err := contracts.ParseDate(value)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, expected YYYY-MM-DD", value)
	}
	return d, nil
}

func runEvaluate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	date, err := parseDateFlag(evalDate)
	if err != nil {
		return err
	}
	if evalOutput != "json" && evalOutput != "text" {
		return fmt.Errorf("unknown output format %q", evalOutput)
	}

	d, err := bootstrap(ctx, os.Stderr)
	if err != nil {
		return err
	}
	defer d.Close()
	if err := d.requireProducts(); err != nil {
		return err
	}

	var list []contracts.Product
	if len(args) == 0 {
		if list, err = d.products.ListActive(ctx); err != nil {
			return fmt.Errorf("list products: %w", err)
		}
	} else {
		for _, id := range args {
			p, err := d.products.Get(ctx, id)
			if err != nil {
				return fmt.Errorf("product %s: %w", id, err)
			}
			list = append(list, *p)
		}
	}

	outcomes := d.evaluator(nil).EvaluateAll(ctx, list, date)

	out := cmd.OutOrStdout()
	if evalOutput == "json" {
		if len(args) == 1 {
			if outcomes[0].Report == nil {
				return fmt.Errorf("evaluate %s: %s", args[0], outcomes[0].Error)
			}
			return printJSON(out, outcomes[0].Report)
		}
		return printJSON(out, outcomes)
	}

	failed := 0
	for _, o := range outcomes {
		if o.Report == nil {
			failed++
			fmt.Fprintf(out, "❌ %s: %s\n", o.ProductID, o.Error)
			continue
		}
		printReport(out, o.Report)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d products failed", failed, len(outcomes))
	}
	return nil
}

// summarize counts failures and new events of a batch
func summarize(outcomes []evaluation.Outcome) (failed, newEvents int) {
	for _, o := range outcomes {
		if o.Error != "" {
			failed++
		}
		if o.Report != nil {
			newEvents += o.Report.NewEvents
		}
	}
	return failed, newEvents
}
