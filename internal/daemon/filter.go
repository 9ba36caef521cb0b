package daemon

import (
	"fmt"
	"strings"

	"github.com/gobwas/glob"
)

// DefaultAllow admits ordinary web pages. Browser-internal pages
// (about:, chrome:, moz-extension:, file:) are never organized.
var DefaultAllow = []string{"http://*", "https://*"}

// Filter decides which URLs are eligible for organization. Deny patterns
// take precedence over allow patterns. Matching is case-insensitive.
type Filter struct {
	allow []glob.Glob
	deny  []glob.Glob
}

// NewFilter compiles the allow and deny glob patterns. A nil allow list
// means DefaultAllow.
func NewFilter(allow, deny []string) (*Filter, error) {
	if allow == nil {
		allow = DefaultAllow
	}
	f := &Filter{}
	for _, p := range allow {
		g, err := glob.Compile(strings.ToLower(p))
		if err != nil {
			return nil, fmt.Errorf("invalid allow pattern %q: %w", p, err)
		}
		f.allow = append(f.allow, g)
	}
	for _, p := range deny {
		g, err := glob.Compile(strings.ToLower(p))
		if err != nil {
			return nil, fmt.Errorf("invalid ignore pattern %q: %w", p, err)
		}
		f.deny = append(f.deny, g)
	}
	return f, nil
}

// Eligible reports whether url may be organized.
func (f *Filter) Eligible(url string) bool {
	url = strings.ToLower(url)
	for _, g := range f.deny {
		if g.Match(url) {
			return false
		}
	}
	for _, g := range f.allow {
		if g.Match(url) {
			return true
		}
	}
	return false
}

// ParsePatterns splits a comma separated pattern list, as given to --ignore
// or TABGRUPPEN_IGNORE.
func ParsePatterns(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
