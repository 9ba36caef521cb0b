package tui

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
)

// ListWidthPct is the percentage of terminal width used for the rule list.
const ListWidthPct = 50

func renderTopBar(count int, daemon string, width int) string {
	titleStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("62"))
	countStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	daemonStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("240"))

	noun := "rules"
	if count == 1 {
		noun = "rule"
	}
	left := " " + titleStyle.Render("Tab groups") + "  " + countStyle.Render(fmt.Sprintf("%d %s", count, noun))
	right := daemonStyle.Render(daemon)

	gap := width - lipgloss.Width(left) - lipgloss.Width(right) - 2
	if gap < 1 {
		gap = 1
	}
	padding := lipgloss.NewStyle().Width(gap)

	return left + padding.Render("") + right + " "
}
