package tui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/lotas/tabgruppen/internal/types"
)

// swatch maps group colours to terminal colours for previews.
var swatch = map[string]lipgloss.Color{
	"grey":   lipgloss.Color("245"),
	"blue":   lipgloss.Color("33"),
	"red":    lipgloss.Color("196"),
	"yellow": lipgloss.Color("220"),
	"green":  lipgloss.Color("34"),
	"pink":   lipgloss.Color("205"),
	"purple": lipgloss.Color("135"),
	"cyan":   lipgloss.Color("44"),
	"orange": lipgloss.Color("208"),
}

// colourDot renders a coloured bullet for c.
func colourDot(c string) string {
	return lipgloss.NewStyle().Foreground(swatch[c]).Render("●")
}

type ColourPicker struct {
	Rule   string
	Cursor int
}

func NewColourPicker(rule, current string) ColourPicker {
	p := ColourPicker{Rule: rule}
	for i, c := range types.Colours {
		if c == current {
			p.Cursor = i
			break
		}
	}
	return p
}

func (m *ColourPicker) MoveUp() {
	if m.Cursor > 0 {
		m.Cursor--
	}
}

func (m *ColourPicker) MoveDown() {
	if m.Cursor < len(types.Colours)-1 {
		m.Cursor++
	}
}

func (m ColourPicker) Selected() string {
	return types.Colours[m.Cursor]
}

func (m ColourPicker) View() string {
	titleStyle := lipgloss.NewStyle().Bold(true).Padding(0, 1)
	selectedStyle := lipgloss.NewStyle().Bold(true).Reverse(true).Padding(0, 1)
	normalStyle := lipgloss.NewStyle().Padding(0, 1)
	boxStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("62")).
		Padding(1, 2)

	var b strings.Builder
	b.WriteString(titleStyle.Render("Colour for "+m.Rule+":") + "\n\n")

	for i, c := range types.Colours {
		if i == m.Cursor {
			b.WriteString(colourDot(c) + selectedStyle.Render(c) + "\n")
		} else {
			b.WriteString(colourDot(c) + normalStyle.Render(c) + "\n")
		}
	}

	b.WriteString("\n" + normalStyle.Render("↑↓ navigate · enter confirm · esc cancel"))

	return boxStyle.Render(b.String())
}
