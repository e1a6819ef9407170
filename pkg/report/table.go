package report

import (
	"fmt"
	"slices"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/teslashibe/go-camlat/pkg/harness"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("99"))
	labelStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	bestStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	failStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
)

var tableColumns = []string{"case", "p50", "p95", "p99", "mean", "stddev", "fps"}

// Ranked returns successful results ordered by median latency, then
// failures in their original order.
func Ranked(results []*harness.Result) []*harness.Result {
	var ok, failed []*harness.Result
	for _, r := range results {
		if r.Failed() {
			failed = append(failed, r)
		} else {
			ok = append(ok, r)
		}
	}
	slices.SortStableFunc(ok, func(a, b *harness.Result) int {
		switch {
		case a.Summary.P50 < b.Summary.P50:
			return -1
		case a.Summary.P50 > b.Summary.P50:
			return 1
		}
		return 0
	})
	return append(ok, failed...)
}

// Table renders a comparison of all cases, fastest median first.
func Table(results []*harness.Result) string {
	ranked := Ranked(results)

	nameWidth := len(tableColumns[0])
	for _, r := range ranked {
		nameWidth = max(nameWidth, len(r.Case.Name))
	}
	cell := lipgloss.NewStyle().Width(9).Align(lipgloss.Right)
	name := lipgloss.NewStyle().Width(nameWidth + 2)

	var sb strings.Builder
	sb.WriteString(headerStyle.Render("Latency comparison (ms, sorted by p50)") + "\n")

	header := []string{name.Render(tableColumns[0])}
	for _, c := range tableColumns[1:] {
		header = append(header, cell.Render(c))
	}
	sb.WriteString(labelStyle.Render(strings.Join(header, "")) + "\n")
	sb.WriteString(strings.Repeat("─", nameWidth+2+9*(len(tableColumns)-1)) + "\n")

	for i, r := range ranked {
		if r.Failed() {
			row := name.Render(r.Case.Name) + failStyle.Render("failed: "+r.Err)
			sb.WriteString(row + "\n")
			continue
		}
		s := r.Summary
		cols := []string{name.Render(r.Case.Name)}
		for _, v := range []float64{s.P50, s.P95, s.P99, s.Mean, s.StdDev, s.FPS} {
			cols = append(cols, cell.Render(fmt.Sprintf("%.2f", v)))
		}
		row := strings.Join(cols, "")
		if i == 0 {
			row = bestStyle.Render(row)
		}
		sb.WriteString(row + "\n")
	}
	return sb.String()
}
