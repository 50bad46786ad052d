package commands

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/notes/backend/internal/calendar"
)

// statusCmd represents the status command
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "시스템 상태 확인",
	Long: `Checks the configured stores and prints a summary: database pool,
Redis, product count and holiday calendar size.

Example:
  go run ./cmd/notes status`,
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	d, err := bootstrap(cmd.Context(), os.Stderr)
	if err != nil {
		return err
	}
	defer d.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
	defer cancel()

	out := cmd.OutOrStdout()
	printHeader(out, "Notes status")
	printKeyValue(out, "Env", d.cfg.Env)
	printKeyValue(out, "Price source", priceSource(d))

	if d.db != nil {
		health, err := d.db.HealthCheck(ctx)
		if err != nil {
			printKeyValue(out, "Database", "❌ "+err.Error())
		} else {
			printKeyValue(out, "Database", fmt.Sprintf("✅ %s (%d/%d conns)", health.ResponseTime.Round(time.Millisecond), health.TotalConns, health.MaxConns))
		}
	} else {
		printKeyValue(out, "Database", "not configured")
	}

	if d.rdb.Enabled() {
		printKeyValue(out, "Redis", "✅ enabled")
	} else {
		printKeyValue(out, "Redis", "disabled")
	}

	if d.products != nil {
		list, err := d.products.ListActive(ctx)
		if err != nil {
			printKeyValue(out, "Products", "❌ "+err.Error())
		} else {
			printKeyValue(out, "Products", fmt.Sprintf("%d active", len(list)))
		}
	} else {
		printKeyValue(out, "Products", "no source")
	}

	cal := calendar.Load(ctx, d.holidays)
	printKeyValue(out, "Holidays", fmt.Sprintf("%d dates", cal.HolidayCount()))
	fmt.Fprintln(out, doubleLine)
	return nil
}

func priceSource(d *deps) string {
	if pricesFile != "" {
		return "file " + pricesFile
	}
	return d.cfg.Prices.Source
}
