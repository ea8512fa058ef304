package reporting

import (
	"fmt"
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/ethereum-optimism/infra/convtest/types"
)

// TableReporter renders the run as a console table
type TableReporter struct {
	title string
}

// NewTableReporter creates a new table reporter
func NewTableReporter(title string) *TableReporter {
	return &TableReporter{title: title}
}

// Generate renders the results table for a finalized summary
func (tr *TableReporter) Generate(summary *types.RunSummary) string {
	t := table.NewWriter()
	t.SetTitle(fmt.Sprintf("%s (%ss)", tr.title, formatSeconds(summary.Duration)))

	t.AppendHeader(table.Row{
		"#", "Model", "Duration", "Peak Mem (GiB)", "Peak CPU", "Avg CPU/Core", "Status", "Error",
	})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Name: "#", Align: text.AlignRight},
		{Name: "Model", WidthMax: 50, WidthMaxEnforcer: text.WrapSoft},
		{Name: "Duration", Align: text.AlignRight},
		{Name: "Peak Mem (GiB)", Align: text.AlignRight},
		{Name: "Peak CPU", Align: text.AlignRight},
		{Name: "Avg CPU/Core", Align: text.AlignRight},
		{Name: "Error", WidthMax: 80, WidthMaxEnforcer: text.WrapSoft},
	})

	for _, r := range summary.Cases {
		errMsg := ""
		if r.Outcome.Status == types.TestStatusFail {
			errMsg = r.Outcome.Category.Message()
			if line := types.FirstLine(r.Outcome.Detail, 60); line != "" {
				errMsg += ": " + line
			}
		}
		t.AppendRow(table.Row{
			r.Case.Ordinal,
			r.Case.Name,
			formatSeconds(r.Outcome.Duration) + "s",
			fmt.Sprintf("%.3f", r.Stats.PeakMemoryGiB()),
			fmt.Sprintf("%.1f%%", r.Stats.PeakCPUPercent),
			fmt.Sprintf("%.2f%%", r.Stats.AvgCPUPerCore),
			types.GetResultString(r.Outcome.Status),
			errMsg,
		})
	}

	switch summary.Status() {
	case types.TestStatusPass:
		t.SetStyle(table.StyleColoredBlackOnGreenWhite)
	case types.TestStatusSkip:
		t.SetStyle(table.StyleColoredBlackOnYellowWhite)
	default:
		t.SetStyle(table.StyleColoredBlackOnRedWhite)
	}

	t.AppendFooter(table.Row{
		"TOTAL",
		fmt.Sprintf("%d run, %d passed, %d failed, %d skipped",
			summary.Executed, summary.Passed(), summary.Failed, summary.Skipped),
		formatSeconds(summary.Duration) + "s",
		"", "", "",
		types.GetResultString(summary.Status()),
		"",
	})

	out := t.Render()
	if !strings.HasSuffix(out, "\n") {
		out += "\n"
	}
	return out
}

// Print writes the rendered table to w
func (tr *TableReporter) Print(w io.Writer, summary *types.RunSummary) error {
	_, err := io.WriteString(w, tr.Generate(summary))
	return err
}
