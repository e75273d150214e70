package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"cellscope/app"
	"cellscope/domain/cycling"
	"cellscope/domain/flags"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

var (
	headerColor   = color.New(color.FgCyan, color.Bold)
	criticalColor = color.New(color.FgRed, color.Bold)
	warningColor  = color.New(color.FgYellow)
	infoColor     = color.New(color.FgBlue)
)

func na(v *float64, prec int) string {
	if v == nil {
		return "N/A"
	}
	return strconv.FormatFloat(*v, 'f', prec, 64)
}

func naInt(v *int) string {
	if v == nil {
		return "N/A"
	}
	return strconv.Itoa(*v)
}

func severityText(s flags.Severity) string {
	switch s {
	case flags.SeverityCritical:
		return criticalColor.Sprint(strings.ToUpper(string(s)))
	case flags.SeverityWarning:
		return warningColor.Sprint(strings.ToUpper(string(s)))
	default:
		return infoColor.Sprint(strings.ToUpper(string(s)))
	}
}

// newTable returns a writer bound to out; rightAligned are 1-based column numbers
func newTable(out io.Writer, style table.Style, rightAligned ...int) table.Writer {
	tw := table.NewWriter()
	tw.SetOutputMirror(out)
	tw.SetStyle(style)
	configs := make([]table.ColumnConfig, 0, len(rightAligned))
	for _, n := range rightAligned {
		configs = append(configs, table.ColumnConfig{Number: n, Align: text.AlignRight, AlignHeader: text.AlignLeft})
	}
	tw.SetColumnConfigs(configs)
	return tw
}

func printCell(out io.Writer, res *app.CellResult) {
	b := res.Bundle
	headerColor.Fprintf(out, "Cell %s\n", b.DisplayName())

	areal := na(b.ArealCapacity, 3)
	if b.ArealCapacityLowConfidence {
		areal += " (low confidence)"
	}

	tw := newTable(out, table.StyleLight, 2)
	tw.AppendRows([]table.Row{
		{"Project type", b.ProjectType},
		{"Formation cycles", b.FormationCycles},
		{"First discharge (mAh/g)", na(b.FirstDischarge, 1)},
		{"First efficiency (%)", na(b.FirstEfficiency, 1)},
		{"Reversible capacity (mAh/g)", na(b.ReversibleCapacity, 1)},
		{"Coulombic efficiency (%)", na(b.CoulombicEfficiency, 2)},
		{"Cycle life (80%)", naInt(b.CycleLife80)},
		{"Areal capacity (mAh/cm²)", areal},
		{"Porosity", na(b.Porosity, 3)},
		{"Retention (%)", na(b.RetentionPct, 2)},
		{"Fade rate (%/100 cycles)", na(b.FadeRatePer100, 3)},
	})
	tw.Render()

	printFlags(out, res.Flags)
}

func printFlags(out io.Writer, fs []flags.Flag) {
	if len(fs) == 0 {
		fmt.Fprintln(out, "\nNo anomalies detected")
		return
	}
	fmt.Fprintln(out)
	headerColor.Fprintf(out, "Flags (%s)\n", flags.FormatCompact(fs))

	tw := newTable(out, table.StyleLight, 3)
	tw.AppendHeader(table.Row{"Severity", "Type", "Confidence", "Cycle", "Description"})
	for _, f := range fs {
		cycle := ""
		if f.Cycle != nil {
			cycle = strconv.Itoa(*f.Cycle)
		}
		tw.AppendRow(table.Row{severityText(f.Severity), f.Type, fmt.Sprintf("%.2f", f.Confidence), cycle, f.Description})
	}
	tw.Render()
}

func printCohort(out io.Writer, res *app.CohortResult) {
	headerColor.Fprintf(out, "Cohort %s (run %s, %d cells, %s)\n\n", res.Scope, res.RunID, len(res.Cells), res.Duration)

	tw := newTable(out, table.StyleRounded, 2, 3, 4, 5, 6, 7)
	tw.AppendHeader(table.Row{"Cell", "First dis", "Rev cap", "CE", "Life", "Ret%", "Fade", "Flags"})
	for _, c := range res.Cells {
		b := c.Bundle
		name := b.DisplayName()
		if c.Excluded {
			name += " *"
		}
		tw.AppendRow(table.Row{name,
			na(b.FirstDischarge, 1), na(b.ReversibleCapacity, 1), na(b.CoulombicEfficiency, 2),
			naInt(b.CycleLife80), na(b.RetentionPct, 2), na(b.FadeRatePer100, 3), c.Summary})
	}
	tw.Render()

	if len(res.Outliers.Excluded) > 0 {
		fmt.Fprintln(out, "\n* excluded from the filtered cohort")
		for _, e := range res.Outliers.Excluded {
			fmt.Fprintf(out, "  %s: %s\n", e.CellName, strings.Join(e.Reasons, "; "))
		}
	}
	for _, s := range res.Skipped {
		warningColor.Fprintf(out, "skipped %s: %s\n", s.CellID, s.Reason)
	}

	if len(res.Averages) > 0 {
		fmt.Fprintln(out)
		header := table.Row{"Experiment", "Cells"}
		right := []int{2}
		for i, m := range cycling.OutlierMetrics {
			header = append(header, string(m))
			right = append(right, i+3)
		}
		tw = newTable(out, table.StyleLight, right...)
		tw.AppendHeader(header)
		for _, avg := range res.Averages {
			row := table.Row{avg.Name, avg.CellCount}
			for _, m := range cycling.OutlierMetrics {
				row = append(row, na(avg.Metrics[m], 2))
			}
			tw.AppendRow(row)
		}
		tw.Render()
	}

	s := res.Summary
	fmt.Fprintf(out, "\n%d flags on %d cells (critical:%d warning:%d info:%d)\n",
		s.Total, s.CellsWithFlags, s.Critical, s.Warning, s.Info)
}
