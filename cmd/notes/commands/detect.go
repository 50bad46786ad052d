package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// detectCmd represents the detect command
var detectCmd = &cobra.Command{
	Use:   "detect",
	Short: "이벤트 감지 1회 실행",
	Long: `Runs event detection once over every active product and prints
the newly recorded events. This is what the event_detection job does on
its schedule.

Example:
  go run ./cmd/notes detect
  go run ./cmd/notes detect --date 2024-08-01`,
	RunE: runDetect,
}

var detectDate string

func init() {
	rootCmd.AddCommand(detectCmd)
	detectCmd.Flags().StringVar(&detectDate, "date", "", "evaluation date YYYY-MM-DD (default today)")
}

func runDetect(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	date, err := parseDateFlag(detectDate)
	if err != nil {
		return err
	}

	d, err := bootstrap(ctx, os.Stderr)
	if err != nil {
		return err
	}
	defer d.Close()
	if err := d.requireProducts(); err != nil {
		return err
	}

	list, err := d.products.ListActive(ctx)
	if err != nil {
		return fmt.Errorf("list products: %w", err)
	}

	outcomes := d.evaluator(nil).EvaluateAll(ctx, list, date)
	out := cmd.OutOrStdout()

	printHeader(out, "Event detection "+date.Format("2006-01-02"))
	for _, o := range outcomes {
		if o.Report == nil {
			fmt.Fprintf(out, "  ❌ %s: %s\n", o.ProductID, o.Error)
			continue
		}
		for _, e := range o.Report.Events {
			if e.Fresh {
				fmt.Fprintf(out, "  %-12s %s  %s\n", o.ProductID, e.DateDisplay, e.Message)
			}
		}
	}

	failed, newEvents := summarize(outcomes)
	fmt.Fprintln(out, singleLine)
	printKeyValue(out, "Products", fmt.Sprintf("%d", len(outcomes)))
	printKeyValue(out, "New events", fmt.Sprintf("%d", newEvents))
	printKeyValue(out, "Failed", fmt.Sprintf("%d", failed))
	fmt.Fprintln(out, doubleLine)
	return nil
}
