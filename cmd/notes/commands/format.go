package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/wonny/notes/backend/internal/contracts"
)

// ═══════════════════════════════════════════════════════════
// Common Formatting Utilities
// 모든 커맨드가 동일한 출력 포맷을 사용하도록 통일
// ═══════════════════════════════════════════════════════════

const (
	doubleLine = "═══════════════════════════════════════════════════════════"
	singleLine = "───────────────────────────────────────────────────────────"
)

// printJSON writes v as indented JSON
func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// printHeader prints a titled block header
func printHeader(w io.Writer, title string) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, doubleLine)
	fmt.Fprintf(w, "  %s\n", title)
	fmt.Fprintln(w, singleLine)
}

// printKeyValue prints one aligned key-value pair
func printKeyValue(w io.Writer, key, value string) {
	fmt.Fprintf(w, "  %-14s : %s\n", key, value)
}

// printTable prints a header, a separator and the rows
func printTable(w io.Writer, columns []string, widths []int, rows [][]string) {
	printRow(w, columns, widths)
	total := 0
	for i, width := range widths {
		total += width
		if i < len(widths)-1 {
			total += 2
		}
	}
	fmt.Fprintln(w, "  "+strings.Repeat("─", total))
	for _, row := range rows {
		printRow(w, row, widths)
	}
}

func printRow(w io.Writer, values []string, widths []int) {
	fmt.Fprint(w, "  ")
	for i, val := range values {
		fmt.Fprintf(w, "%-*s", widths[i], val)
		if i < len(values)-1 {
			fmt.Fprint(w, "  ")
		}
	}
	fmt.Fprintln(w)
}

// printReport renders a report for a terminal
func printReport(w io.Writer, r *contracts.EvaluationReport) {
	printHeader(w, fmt.Sprintf("%s  %s", r.ProductID, r.ProductName))
	printKeyValue(w, "Template", string(r.Template))
	printKeyValue(w, "Evaluated", r.EvaluationDate.Format(contracts.DateLayout))
	printKeyValue(w, "Status", r.StatusDisplay)
	printKeyValue(w, "Data quality", string(r.DataQuality))
	printKeyValue(w, "Basket", fmt.Sprintf("%s %s", r.Basket.Policy, r.Basket.PerformanceDisplay))
	if r.Memory.Count > 0 {
		printKeyValue(w, "Memory", r.MemoryDisplay)
	}

	fmt.Fprintln(w, singleLine)
	rows := make([][]string, 0, len(r.Underlyings))
	for _, u := range r.Underlyings {
		rows = append(rows, []string{u.Ticker, u.StrikeDisplay, u.PriceDisplay, u.PerformanceDisplay, string(u.DataQuality)})
	}
	printTable(w, []string{"Underlying", "Strike", "Price", "Perf", "Quality"}, []int{12, 10, 10, 9, 9}, rows)

	fmt.Fprintln(w, singleLine)
	if r.Redemption.Available {
		printKeyValue(w, "Redemption", fmt.Sprintf("%s (%s)", r.Redemption.ValueDisplay, r.Redemption.Basis))
		printKeyValue(w, "Formula", r.Redemption.Formula)
		printKeyValue(w, "Amount", r.Redemption.AmountDisplay)
	} else {
		printKeyValue(w, "Redemption", contracts.UnavailableDisplay+" ("+r.Redemption.Reason+")")
	}

	if len(r.Schedule) > 0 {
		fmt.Fprintln(w, singleLine)
		rows = rows[:0]
		for _, s := range r.Schedule {
			rows = append(rows, []string{s.ObservationDisplay, s.AutocallDisplay, s.CouponDisplay, s.Status, s.Outcome})
		}
		printTable(w, []string{"Observation", "Autocall", "Coupon", "Status", "Outcome"}, []int{11, 9, 7, 10, 20}, rows)
	}

	if len(r.Events) > 0 {
		fmt.Fprintln(w, singleLine)
		for _, e := range r.Events {
			mark := " "
			if e.Fresh {
				mark = "*"
			}
			fmt.Fprintf(w, "  %s %s  %s\n", mark, e.DateDisplay, e.Message)
		}
	}
	fmt.Fprintln(w, doubleLine)
}

// printSchedule renders a generated schedule
func printSchedule(w io.Writer, productID string, entries []contracts.ObservationScheduleEntry) {
	printHeader(w, productID+" observation schedule")
	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		autocall := "-"
		if e.AutocallBarrier != nil {
			autocall = fmt.Sprintf("%.2f%%", *e.AutocallBarrier)
		}
		final := ""
		if e.IsFinal {
			final = "final"
		}
		rows = append(rows, []string{
			fmt.Sprintf("%d", e.Index),
			e.ObservationDate.Format(contracts.DateLayout),
			e.PaymentDate.Format(contracts.DateLayout),
			autocall,
			fmt.Sprintf("%.2f%%", e.CouponBarrier),
			fmt.Sprintf("%.2f%%", e.CouponRate),
			final,
		})
	}
	printTable(w, []string{"#", "Observation", "Payment", "Autocall", "CpnBarrier", "Coupon", ""}, []int{3, 11, 11, 9, 10, 7, 5}, rows)
	fmt.Fprintln(w, doubleLine)
}
