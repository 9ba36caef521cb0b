package rules

import (
	"strings"

	"github.com/lotas/tabgruppen/internal/types"
)

// Fragment normalizes a configured URL fragment for matching. Fragments are
// literal: '*' is stripped rather than treated as a wildcard, and matching is
// case-insensitive.
func Fragment(s string) string {
	return strings.ToLower(strings.ReplaceAll(s, "*", ""))
}

// BestMatch returns the rule owning the longest fragment contained in url.
// Ties go to the earlier rule, then the earlier fragment within it.
func BestMatch(rs []types.Rule, url string) (types.Rule, bool) {
	idx, _ := bestMatchIndex(rs, url)
	if idx < 0 {
		return types.Rule{}, false
	}
	return rs[idx], true
}

// MatchedFragment is BestMatch but also returns the winning fragment as
// configured, for display.
func MatchedFragment(rs []types.Rule, url string) (types.Rule, string, bool) {
	idx, frag := bestMatchIndex(rs, url)
	if idx < 0 {
		return types.Rule{}, "", false
	}
	return rs[idx], frag, true
}

func bestMatchIndex(rs []types.Rule, url string) (int, string) {
	target := strings.ToLower(url)
	best, bestLen, bestFrag := -1, 0, ""
	for i, r := range rs {
		for _, raw := range r.URLs {
			f := Fragment(raw)
			if f == "" || len(f) <= bestLen {
				continue
			}
			if strings.Contains(target, f) {
				best, bestLen, bestFrag = i, len(f), raw
			}
		}
	}
	return best, bestFrag
}

// IndexOf returns the position of the first rule named name, or -1.
func IndexOf(rs []types.Rule, name string) int {
	for i, r := range rs {
		if r.Name == name {
			return i
		}
	}
	return -1
}
