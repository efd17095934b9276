// Package render draws a calendar grid as styled terminal output.
package render

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"studycal/internal/calendar"
)

const (
	cellWidth  = 14
	cellHeight = 4
	// maxTitles is how many occurrence names fit in one day cell.
	maxTitles = cellHeight - 1
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Align(lipgloss.Center).
			Width(cellWidth * 7)

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Width(cellWidth).
			Align(lipgloss.Center).
			Foreground(lipgloss.Color("12"))

	dayStyle = lipgloss.NewStyle().
			Width(cellWidth).
			Height(cellHeight).
			Padding(0, 1)

	outsideStyle = dayStyle.
			Foreground(lipgloss.Color("240"))

	busyNumberStyle = lipgloss.NewStyle().Bold(true)

	entryStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("14"))
)

// Month renders the grid as a lipgloss month view with a weekday header
// row that follows the grid's week start.
func Month(grid calendar.Grid) string {
	var b strings.Builder

	title := fmt.Sprintf("%s %d", grid.Month, grid.Year)
	b.WriteString(titleStyle.Render(title))
	b.WriteString("\n")

	weeks := grid.Weeks()
	if len(weeks) == 0 {
		return b.String()
	}

	headers := make([]string, 0, 7)
	for _, day := range weeks[0] {
		headers = append(headers, headerStyle.Render(day.Date.Format("Mon")))
	}
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, headers...))
	b.WriteString("\n")

	for _, week := range weeks {
		cells := make([]string, 0, 7)
		for _, day := range week {
			cells = append(cells, renderDay(day))
		}
		b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, cells...))
		b.WriteString("\n")
	}

	return b.String()
}

func renderDay(day calendar.Day) string {
	number := fmt.Sprintf("%2d", day.Date.Day())
	if len(day.Occurrences) > 0 {
		number = busyNumberStyle.Render(number)
	}

	lines := []string{number}
	for i, occ := range day.Occurrences {
		if i >= maxTitles {
			lines[len(lines)-1] = entryStyle.Render("…")
			break
		}
		lines = append(lines, entryStyle.Render(truncate(occ.Name, cellWidth-2)))
	}

	style := dayStyle
	if !day.InMonth {
		style = outsideStyle
	}
	return style.Render(strings.Join(lines, "\n"))
}

func truncate(s string, width int) string {
	if width <= 1 || len(s) <= width {
		return s
	}
	return s[:width-1] + "…"
}
