package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/lotas/tabgruppen/internal/rules"
	"github.com/lotas/tabgruppen/internal/types"
)

// DetailModel shows the selected rule.
type DetailModel struct {
	Width  int
	Height int
}

// ViewRule renders rule r at position pos of rs.
func (m DetailModel) ViewRule(rs []types.Rule, pos int) string {
	if pos < 0 || pos >= len(rs) {
		return ""
	}
	r := rs[pos]

	labelStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("245"))
	valueStyle := lipgloss.NewStyle()
	warnStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Bold(true)
	dimStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("240"))

	var b strings.Builder

	b.WriteString(labelStyle.Render("Name") + "\n")
	b.WriteString(valueStyle.Render(r.Name) + "\n\n")

	b.WriteString(labelStyle.Render("Colour") + "\n")
	b.WriteString(colourDot(r.Colour) + " " + valueStyle.Render(r.Colour) + "\n\n")

	b.WriteString(labelStyle.Render("Position") + "\n")
	b.WriteString(valueStyle.Render(fmt.Sprintf("%d of %d", pos+1, len(rs))) + "\n\n")

	b.WriteString(labelStyle.Render("URL fragments") + "\n")
	if len(r.URLs) == 0 {
		b.WriteString(dimStyle.Render("(none, matches nothing)") + "\n")
	}
	for _, u := range r.URLs {
		line := "  " + truncate(u, m.Width-4)
		if rules.Fragment(u) == "" {
			line += dimStyle.Render("  never matches")
		}
		b.WriteString(valueStyle.Render(line) + "\n")
	}

	if first := rules.IndexOf(rs, r.Name); first != pos {
		b.WriteString("\n" + warnStyle.Render(fmt.Sprintf("⚠ Shadowed by rule %d with the same name", first+1)) + "\n")
		b.WriteString(dimStyle.Render("Its tabs join that rule's group.") + "\n")
	}

	return b.String()
}

func truncate(s string, width int) string {
	if width < 2 || len(s) <= width {
		return s
	}
	return s[:width-1] + "…"
}
