package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/lotas/tabgruppen/internal/rules"
	"github.com/lotas/tabgruppen/internal/types"
)

const (
	fieldName = iota
	fieldURLs
	fieldColour
	fieldCount
)

// RuleForm edits one rule: its name, a comma separated fragment list and a
// colour chosen with left/right.
type RuleForm struct {
	Index  int // rule being edited, or -1 for a new rule
	name   textinput.Model
	urls   textinput.Model
	colour int
	focus  int
	Err    string
}

func NewRuleForm(index int, r types.Rule) RuleForm {
	name := textinput.New()
	name.Placeholder = "News"
	name.Prompt = ""
	name.CharLimit = 64
	name.SetValue(r.Name)

	urls := textinput.New()
	urls.Placeholder = "newscientist.com, nature.com"
	urls.Prompt = ""
	urls.SetValue(strings.Join(r.URLs, ", "))

	f := RuleForm{Index: index, name: name, urls: urls}
	for i, c := range types.Colours {
		if c == r.Colour {
			f.colour = i
		}
	}
	f.setFocus(fieldName)
	return f
}

func (f *RuleForm) setFocus(field int) {
	f.focus = (field + fieldCount) % fieldCount
	f.name.Blur()
	f.urls.Blur()
	switch f.focus {
	case fieldName:
		f.name.Focus()
	case fieldURLs:
		f.urls.Focus()
	}
}

// Rule returns the rule as currently entered.
func (f RuleForm) Rule() types.Rule {
	return types.Rule{
		Name:   strings.TrimSpace(f.name.Value()),
		URLs:   rules.ParseURLList(f.urls.Value()),
		Colour: types.Colours[f.colour],
	}
}

// Update handles navigation keys and passes the rest to the focused input.
// It reports submitted when enter is pressed.
func (f RuleForm) Update(msg tea.Msg) (form RuleForm, cmd tea.Cmd, submitted bool) {
	if key, ok := msg.(tea.KeyMsg); ok {
		switch key.String() {
		case "tab", "down":
			f.setFocus(f.focus + 1)
			return f, nil, false
		case "shift+tab", "up":
			f.setFocus(f.focus - 1)
			return f, nil, false
		case "enter":
			return f, nil, true
		case "left":
			if f.focus == fieldColour {
				f.colour = (f.colour + len(types.Colours) - 1) % len(types.Colours)
				return f, nil, false
			}
		case "right":
			if f.focus == fieldColour {
				f.colour = (f.colour + 1) % len(types.Colours)
				return f, nil, false
			}
		}
	}

	switch f.focus {
	case fieldName:
		f.name, cmd = f.name.Update(msg)
	case fieldURLs:
		f.urls, cmd = f.urls.Update(msg)
	}
	return f, cmd, false
}

func (f RuleForm) View() string {
	titleStyle := lipgloss.NewStyle().Bold(true).Padding(0, 1)
	labelStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("245")).Width(8)
	activeLabel := labelStyle.Foreground(lipgloss.Color("62"))
	hintStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("240")).Padding(0, 1)
	errStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Padding(0, 1)
	boxStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("62")).
		Padding(1, 2).
		Width(64)

	label := func(field int, s string) string {
		if f.focus == field {
			return activeLabel.Render(s)
		}
		return labelStyle.Render(s)
	}

	title := "New rule"
	if f.Index >= 0 {
		title = "Edit rule"
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render(title) + "\n\n")
	b.WriteString(label(fieldName, "Name") + " " + f.name.View() + "\n")
	b.WriteString(label(fieldURLs, "URLs") + " " + f.urls.View() + "\n")
	c := types.Colours[f.colour]
	b.WriteString(label(fieldColour, "Colour") + " " + fmt.Sprintf("‹ %s %s ›", colourDot(c), c) + "\n")

	if f.Err != "" {
		b.WriteString("\n" + errStyle.Render(f.Err) + "\n")
	}
	b.WriteString("\n" + hintStyle.Render("tab next field · ←→ colour · enter save · esc cancel"))

	return boxStyle.Render(b.String())
}
