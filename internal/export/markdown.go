// Package export renders the rule set for sharing and backup.
package export

import (
	"fmt"
	"strings"
	"time"

	"github.com/lotas/tabgruppen/internal/rules"
	"github.com/lotas/tabgruppen/internal/types"
)

// Formats lists the names Render accepts.
var Formats = []string{"markdown", "json", "yaml"}

// Render renders rs in the named format.
func Render(format string, rs []types.Rule, at time.Time) (string, error) {
	switch format {
	case "markdown", "md":
		return Markdown(rs, at), nil
	case "json":
		return JSON(rs)
	case "yaml", "yml":
		b, err := rules.EncodeYAML(rs)
		if err != nil {
			return "", err
		}
		return string(b), nil
	default:
		return "", fmt.Errorf("unknown format %q (want %s)", format, strings.Join(Formats, ", "))
	}
}

// Markdown renders the rule set as a document, one section per rule in
// priority order.
func Markdown(rs []types.Rule, at time.Time) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Tab groups\n")
	fmt.Fprintf(&b, "> Exported %s\n", at.Format("2006-01-02 15:04"))

	if len(rs) == 0 {
		b.WriteString("\nNo rules.\n")
		return b.String()
	}

	for i, r := range rs {
		n := len(r.URLs)
		noun := "fragments"
		if n == 1 {
			noun = "fragment"
		}
		fmt.Fprintf(&b, "\n## %d. %s (%s, %d %s)\n\n", i+1, r.Name, r.Colour, n, noun)
		if n == 0 {
			b.WriteString("_matches nothing_\n")
			continue
		}
		for _, u := range r.URLs {
			fmt.Fprintf(&b, "- `%s`\n", u)
		}
	}

	return b.String()
}
