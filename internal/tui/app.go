// Package tui is the interactive rule editor: an ordered list of rules that
// can be added, edited, recoloured, reordered and deleted. Every change is
// saved at once and the running daemon is asked to apply it.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/lotas/tabgruppen/internal/rules"
	"github.com/lotas/tabgruppen/internal/types"
)

// Store loads and saves the rule set. rules.Store implements it.
type Store interface {
	Load(ctx context.Context) []types.Rule
	Save(ctx context.Context, rs []types.Rule) error
}

// Notifier asks the daemon to apply a change. daemon.Client implements it.
type Notifier interface {
	Reorganize(ctx context.Context) error
	Dissolve(ctx context.Context, name string) error
}

const notifyTimeout = 30 * time.Second

// --- Messages ---

type rulesLoadedMsg struct {
	rules []types.Rule
}

type savedMsg struct {
	rules     []types.Rule
	cursor    int
	err       error
	notifyErr error
	what      string
}

type reorganizedMsg struct {
	err error
}

// --- Commands ---

func loadRules(store Store) tea.Cmd {
	return func() tea.Msg {
		return rulesLoadedMsg{rules: store.Load(context.Background())}
	}
}

// saveRules persists rs, then dissolves the groups of every name in
// dissolve and asks for a full reorganization.
func saveRules(store Store, notify Notifier, rs []types.Rule, cursor int, what string, dissolve ...string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
		defer cancel()

		if err := store.Save(ctx, rs); err != nil {
			return savedMsg{err: err, what: what}
		}
		msg := savedMsg{rules: rs, cursor: cursor, what: what}
		if notify == nil {
			return msg
		}
		for _, name := range dissolve {
			if err := notify.Dissolve(ctx, name); err != nil {
				msg.notifyErr = err
				return msg
			}
		}
		msg.notifyErr = notify.Reorganize(ctx)
		return msg
	}
}

func reorganize(notify Notifier) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
		defer cancel()
		return reorganizedMsg{err: notify.Reorganize(ctx)}
	}
}

// --- Model ---

type Model struct {
	store  Store
	notify Notifier

	rules   []types.Rule
	cursor  int
	loading bool
	saving  bool

	detail DetailModel
	width  int
	height int

	form             RuleForm
	showForm         bool
	colourPicker     ColourPicker
	showColourPicker bool
	confirmDelete    bool

	status    string
	statusErr bool
	daemon    string
}

// NewModel returns the editor. notify may be nil when no daemon is
// configured; edits are then only saved.
func NewModel(store Store, notify Notifier) Model {
	return Model{store: store, notify: notify, loading: true, daemon: "daemon: unknown"}
}

func (m Model) Init() tea.Cmd {
	return loadRules(m.store)
}

func (m Model) selected() (types.Rule, bool) {
	if m.cursor >= 0 && m.cursor < len(m.rules) {
		return m.rules[m.cursor], true
	}
	return types.Rule{}, false
}

// orphaned reports whether name no longer names any rule in rs, so its
// groups should be dissolved.
func orphaned(rs []types.Rule, name string) bool {
	return rules.IndexOf(rs, name) < 0
}

func (m *Model) setStatus(s string, isErr bool) {
	m.status = s
	m.statusErr = isErr
}

func (m *Model) resize() {
	listWidth := m.width * ListWidthPct / 100
	m.detail.Width = m.width - listWidth - 4
	m.detail.Height = m.height - 5
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resize()
		return m, nil

	case rulesLoadedMsg:
		m.loading = false
		m.rules = msg.rules
		m.clampCursor()
		return m, nil

	case savedMsg:
		m.saving = false
		if msg.err != nil {
			m.setStatus("Save failed: "+msg.err.Error(), true)
			return m, loadRules(m.store)
		}
		m.rules = msg.rules
		m.cursor = msg.cursor
		m.clampCursor()
		m.noteDaemon(msg.what, msg.notifyErr)
		return m, nil

	case reorganizedMsg:
		m.saving = false
		m.noteDaemon("Reorganized", msg.err)
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	if m.showForm {
		var cmd tea.Cmd
		m.form, cmd, _ = m.form.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *Model) noteDaemon(what string, err error) {
	switch {
	case m.notify == nil:
		m.setStatus(what+" · saved", false)
	case err != nil:
		m.daemon = "daemon: not reachable"
		m.setStatus(what+" · saved, daemon not reachable: applies on next start", true)
	default:
		m.daemon = "daemon: ● running"
		m.setStatus(what+" · applied", false)
	}
}

func (m *Model) clampCursor() {
	if m.cursor >= len(m.rules) {
		m.cursor = len(m.rules) - 1
	}
	if m.cursor < 0 {
		m.cursor = 0
	}
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.String() == "ctrl+c" {
		return m, tea.Quit
	}

	if m.showForm {
		if msg.String() == "esc" {
			m.showForm = false
			return m, nil
		}
		var cmd tea.Cmd
		var submitted bool
		m.form, cmd, submitted = m.form.Update(msg)
		if !submitted {
			return m, cmd
		}
		return m.submitForm()
	}

	if m.showColourPicker {
		switch msg.String() {
		case "up", "k":
			m.colourPicker.MoveUp()
		case "down", "j":
			m.colourPicker.MoveDown()
		case "enter":
			m.showColourPicker = false
			r, ok := m.selected()
			if !ok || r.Colour == m.colourPicker.Selected() {
				return m, nil
			}
			rs := append([]types.Rule(nil), m.rules...)
			rs[m.cursor].Colour = m.colourPicker.Selected()
			return m.save(rs, m.cursor, "Recoloured "+r.Name)
		case "esc":
			m.showColourPicker = false
		}
		return m, nil
	}

	if m.confirmDelete {
		switch msg.String() {
		case "y", "Y":
			m.confirmDelete = false
			r, ok := m.selected()
			if !ok {
				return m, nil
			}
			rs := make([]types.Rule, 0, len(m.rules)-1)
			rs = append(rs, m.rules[:m.cursor]...)
			rs = append(rs, m.rules[m.cursor+1:]...)
			var dissolve []string
			if orphaned(rs, r.Name) {
				dissolve = append(dissolve, r.Name)
			}
			return m.save(rs, m.cursor, "Deleted "+r.Name, dissolve...)
		default:
			m.confirmDelete = false
			m.setStatus("Delete cancelled", false)
		}
		return m, nil
	}

	if m.saving {
		if msg.String() == "q" {
			return m, tea.Quit
		}
		return m, nil
	}

	switch msg.String() {
	case "q":
		return m, tea.Quit
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j":
		if m.cursor < len(m.rules)-1 {
			m.cursor++
		}
	case "K", "shift+up":
		if m.cursor > 0 {
			return m.swap(m.cursor, m.cursor-1)
		}
	case "J", "shift+down":
		if m.cursor < len(m.rules)-1 {
			return m.swap(m.cursor, m.cursor+1)
		}
	case "a":
		m.form = NewRuleForm(-1, types.Rule{Colour: "grey"})
		m.showForm = true
	case "e", "enter":
		if r, ok := m.selected(); ok {
			m.form = NewRuleForm(m.cursor, r)
			m.showForm = true
		}
	case "c":
		if r, ok := m.selected(); ok {
			m.colourPicker = NewColourPicker(r.Name, r.Colour)
			m.showColourPicker = true
		}
	case "d", "x":
		if _, ok := m.selected(); ok {
			m.confirmDelete = true
		}
	case "r":
		if m.notify == nil {
			m.setStatus("No daemon configured", true)
			return m, nil
		}
		m.saving = true
		m.setStatus("Reorganizing…", false)
		return m, reorganize(m.notify)
	}
	return m, nil
}

// swap exchanges rules i and j and keeps the cursor on the moved rule.
func (m Model) swap(i, j int) (tea.Model, tea.Cmd) {
	rs := append([]types.Rule(nil), m.rules...)
	rs[i], rs[j] = rs[j], rs[i]
	return m.save(rs, j, "Moved "+rs[j].Name)
}

func (m Model) submitForm() (tea.Model, tea.Cmd) {
	r := m.form.Rule()
	rs := append([]types.Rule(nil), m.rules...)
	cursor := len(rs)
	what := "Added " + r.Name
	var dissolve []string

	if m.form.Index >= 0 && m.form.Index < len(rs) {
		old := rs[m.form.Index]
		rs[m.form.Index] = r
		cursor = m.form.Index
		what = "Updated " + r.Name
		if old.Name != r.Name && orphaned(rs, old.Name) {
			dissolve = append(dissolve, old.Name)
		}
	} else {
		rs = append(rs, r)
	}

	if err := rules.Validate(rs); err != nil {
		m.form.Err = strings.TrimPrefix(err.Error(), rules.ErrInvalidRules.Error()+": ")
		return m, nil
	}
	m.showForm = false
	return m.save(rs, cursor, what, dissolve...)
}

func (m Model) save(rs []types.Rule, cursor int, what string, dissolve ...string) (tea.Model, tea.Cmd) {
	m.saving = true
	m.setStatus("Saving…", false)
	return m, saveRules(m.store, m.notify, rs, cursor, what, dissolve...)
}

func (m Model) View() string {
	if m.loading {
		return "\n  Loading rules...\n"
	}

	if m.showForm {
		return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, m.form.View())
	}

	if m.showColourPicker {
		return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, m.colourPicker.View())
	}

	topBar := renderTopBar(len(m.rules), m.daemon, m.width)

	listWidth := m.width*ListWidthPct/100 - 2
	paneHeight := m.height - 5
	if paneHeight < 3 {
		paneHeight = 3
	}

	listBorder := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("62")).
		Width(listWidth).
		Height(paneHeight)

	detailBorder := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Width(m.detail.Width).
		Height(paneHeight)

	left := listBorder.Render(m.viewList(listWidth, paneHeight))
	right := detailBorder.Render(m.detail.ViewRule(m.rules, m.cursor))
	panes := lipgloss.JoinHorizontal(lipgloss.Top, left, right)

	bottomBarStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("240")).Padding(0, 1)
	statusStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("34")).Padding(0, 1)
	if m.statusErr {
		statusStyle = statusStyle.Foreground(lipgloss.Color("196"))
	}

	var bottomText string
	if m.confirmDelete {
		r, _ := m.selected()
		bottomText = fmt.Sprintf("Delete %q and dissolve its groups? y confirm · any other key cancel", r.Name)
	} else {
		bottomText = "↑↓/jk navigate · K/J move · a add · e edit · c colour · d delete · r reorganize · q quit"
	}
	bottom := bottomBarStyle.Render(bottomText)
	if m.status != "" {
		bottom = lipgloss.JoinVertical(lipgloss.Left, statusStyle.Render(m.status), bottom)
	}

	return lipgloss.JoinVertical(lipgloss.Left, topBar, panes, bottom)
}

func (m Model) viewList(width, height int) string {
	if len(m.rules) == 0 {
		return lipgloss.NewStyle().Foreground(lipgloss.Color("240")).Render(" No rules. Press a to add one.")
	}

	selectedStyle := lipgloss.NewStyle().Bold(true).Reverse(true)
	dimStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("240"))

	// Keep the cursor visible.
	offset := 0
	if m.cursor >= height {
		offset = m.cursor - height + 1
	}

	var lines []string
	for i := offset; i < len(m.rules) && i < offset+height; i++ {
		r := m.rules[i]
		name := truncate(r.Name, width-16)
		count := dimStyle.Render(fmt.Sprintf(" %d urls", len(r.URLs)))
		line := fmt.Sprintf("%2d. %s %s", i+1, colourDot(r.Colour), name)
		if i == m.cursor {
			line = selectedStyle.Render(line)
		}
		lines = append(lines, line+count)
	}
	return strings.Join(lines, "\n")
}
