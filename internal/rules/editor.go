package rules

import (
	"fmt"
	"strings"

	"github.com/lotas/tabgruppen/internal/types"
)

// Upsert replaces the first rule with the same name, or appends r.
// The input slice is not modified.
func Upsert(rs []types.Rule, r types.Rule) []types.Rule {
	out := append([]types.Rule(nil), rs...)
	if i := IndexOf(out, r.Name); i >= 0 {
		out[i] = r
		return out
	}
	return append(out, r)
}

// Remove drops every rule named name. It reports whether any was removed.
func Remove(rs []types.Rule, name string) ([]types.Rule, bool) {
	out := make([]types.Rule, 0, len(rs))
	removed := false
	for _, r := range rs {
		if r.Name == name {
			removed = true
			continue
		}
		out = append(out, r)
	}
	return out, removed
}

// Move places the rule named name at position pos (0-based), shifting the
// others. pos is clamped to the valid range.
func Move(rs []types.Rule, name string, pos int) ([]types.Rule, error) {
	from := IndexOf(rs, name)
	if from < 0 {
		return nil, fmt.Errorf("rule %q not found", name)
	}
	if pos < 0 {
		pos = 0
	}
	if pos > len(rs)-1 {
		pos = len(rs) - 1
	}

	r := rs[from]
	out := make([]types.Rule, 0, len(rs))
	out = append(out, rs[:from]...)
	out = append(out, rs[from+1:]...)
	out = append(out[:pos], append([]types.Rule{r}, out[pos:]...)...)
	return out, nil
}

// ParseURLList splits a comma separated list of fragments, trimming
// whitespace and dropping empty entries.
func ParseURLList(s string) []string {
	urls := []string{}
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			urls = append(urls, part)
		}
	}
	return urls
}
