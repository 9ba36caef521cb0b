package export

import (
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/lotas/tabgruppen/internal/types"
)

// Terminal renders the Markdown export for display in a terminal, wrapped
// at width columns.
func Terminal(rs []types.Rule, at time.Time, width int) (string, error) {
	if width < 20 {
		width = 80
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithStylePath("dark"),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return "", err
	}
	return r.Render(Markdown(rs, at))
}
