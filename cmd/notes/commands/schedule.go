package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/wonny/notes/backend/internal/calendar"
	"github.com/wonny/notes/backend/internal/schedule"
)

// scheduleCmd represents the schedule command
var scheduleCmd = &cobra.Command{
	Use:   "schedule [product_id]",
	Short: "관측 일정 출력",
	Long: `Generates the observation schedule of a product on the market
holiday calendar.

Example:
  go run ./cmd/notes schedule PHX-1 --products notes.yaml`,
	Args: cobra.ExactArgs(1),
	RunE: runSchedule,
}

var scheduleOutput string

func init() {
	rootCmd.AddCommand(scheduleCmd)
	scheduleCmd.Flags().StringVarP(&scheduleOutput, "output", "o", "text", "output format (json|text)")
}

func runSchedule(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	d, err := bootstrap(ctx, os.Stderr)
	if err != nil {
		return err
	}
	defer d.Close()
	if err := d.requireProducts(); err != nil {
		return err
	}

	p, err := d.products.Get(ctx, args[0])
	if err != nil {
		return fmt.Errorf("product %s: %w", args[0], err)
	}

	params, ok := schedule.ForProduct(*p, d.cfg.Engine.PaymentLagDays)
	if !ok {
		return fmt.Errorf("product %s has no periodic observations", p.ID)
	}
	entries, err := schedule.Generate(params, calendar.Load(ctx, d.holidays))
	if err != nil {
		return fmt.Errorf("generate schedule: %w", err)
	}

	if scheduleOutput == "json" {
		return printJSON(cmd.OutOrStdout(), entries)
	}
	printSchedule(cmd.OutOrStdout(), p.ID, entries)
	return nil
}
