package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"arstate/internal/media"
	"arstate/internal/processor"
)

type SummaryRow struct {
	Label string
	Value string
}

// RenderSummary draws label | value rows between rules. Widths are measured in
// terminal cells, so non-ASCII file names line up.
func RenderSummary(rows []SummaryRow) string {
	labelWidth := 0
	valueWidth := 0
	for _, row := range rows {
		labelWidth = max(labelWidth, lipgloss.Width(row.Label))
		valueWidth = max(valueWidth, lipgloss.Width(row.Value))
	}

	hline := strings.Repeat("-", labelWidth+valueWidth+3)
	lines := []string{hline}
	for _, row := range rows {
		label := padRight(row.Label, labelWidth)
		value := padRight(row.Value, valueWidth)
		lines = append(lines, fmt.Sprintf("%s | %s", labelStyle.Render(label), valueStyle.Render(value)))
	}
	lines = append(lines, hline)
	return strings.Join(lines, "\n")
}

// RenderResults lists each source of a conversion with what it produced, or
// why it was skipped.
func RenderResults(results []processor.Result) string {
	nameWidth := 0
	for _, res := range results {
		nameWidth = max(nameWidth, lipgloss.Width(res.Source))
	}

	lines := make([]string, 0, len(results))
	for _, res := range results {
		name := padRight(res.Source, nameWidth)
		if res.Err != nil {
			lines = append(lines, fmt.Sprintf("%s %s  %s", failMark.Render("x"), name, failStyle.Render(media.UserMessage(res.Err))))
			continue
		}
		detail := FormatBytes(res.Bytes)
		if res.Outputs > 1 {
			detail = fmt.Sprintf("%d pages, %s", res.Outputs, detail)
		}
		lines = append(lines, fmt.Sprintf("%s %s  %s", okMark.Render("+"), name, dimStyle.Render(detail)))
	}
	return strings.Join(lines, "\n")
}

func padRight(s string, width int) string {
	w := lipgloss.Width(s)
	if w >= width {
		return s
	}
	return s + strings.Repeat(" ", width-w)
}

var (
	valueStyle = lipgloss.NewStyle().Foreground(ColorInk).Bold(true)
	okMark     = lipgloss.NewStyle().Foreground(ColorSuccess).Bold(true)
	failMark   = lipgloss.NewStyle().Foreground(ColorError).Bold(true)
	failStyle  = lipgloss.NewStyle().Foreground(ColorError)
)
