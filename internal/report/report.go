package report

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"coldbench/internal/stats"
)

var (
	colorPrimary = lipgloss.Color("#7D56F4")
	colorValue   = lipgloss.Color("#04B575")
	colorSubtle  = lipgloss.Color("#767676")

	titleStyle = lipgloss.NewStyle().Foreground(colorPrimary).Bold(true)
	labelStyle = lipgloss.NewStyle().Foreground(colorSubtle).Width(10)
	valueStyle = lipgloss.NewStyle().Foreground(colorValue).Bold(true)
	cellStyle  = lipgloss.NewStyle().Width(10).Align(lipgloss.Right)
)

// Summary renders one sample set's statistics as a labeled block.
func Summary(name string, s stats.Summary) string {
	var b strings.Builder

	b.WriteString(titleStyle.Render(name) + "\n")
	row := func(label, value string) {
		b.WriteString(labelStyle.Render(label) + " " + valueStyle.Render(value) + "\n")
	}
	row("Samples", fmt.Sprintf("%d", s.Count))
	row("Mean", fmt.Sprintf("%.2f ms", s.MeanMs))
	row("Median", fmt.Sprintf("%.2f ms", s.MedianMs))
	row("P95", fmt.Sprintf("%.2f ms", s.P95Ms))
	row("P99", fmt.Sprintf("%.2f ms", s.P99Ms))
	row("Min", fmt.Sprintf("%.2f ms", s.MinMs))
	row("Max", fmt.Sprintf("%.2f ms", s.MaxMs))

	return b.String()
}

// Row is one line of the comparison table.
type Row struct {
	Name    string
	Summary stats.Summary
}

// Comparison renders an aligned table of per-target statistics, the usual
// way cold vs warm and JVM vs native results are read side by side.
func Comparison(rows []Row) string {
	var b strings.Builder

	nameW := len("target")
	for _, r := range rows {
		if len(r.Name) > nameW {
			nameW = len(r.Name)
		}
	}
	nameStyle := lipgloss.NewStyle().Width(nameW + 2)

	header := nameStyle.Render("target")
	for _, h := range []string{"count", "mean", "median", "p95", "p99"} {
		header += cellStyle.Render(h)
	}
	b.WriteString(titleStyle.Render(header) + "\n")

	for _, r := range rows {
		line := nameStyle.Render(r.Name)
		line += cellStyle.Render(fmt.Sprintf("%d", r.Summary.Count))
		for _, v := range []float64{r.Summary.MeanMs, r.Summary.MedianMs, r.Summary.P95Ms, r.Summary.P99Ms} {
			line += cellStyle.Render(fmt.Sprintf("%.1f ms", v))
		}
		b.WriteString(line + "\n")
	}

	return b.String()
}
