package organizer

import (
	"github.com/lotas/tabgruppen/internal/rules"
	"github.com/lotas/tabgruppen/internal/types"
)

// Bucket is the set of tabs a rule would collect.
type Bucket struct {
	Rule     types.Rule
	Fragment string // winning fragment of the first tab, as configured
	Tabs     []*types.Tab
}

// Layout is what placement would do to a set of tabs, without a host.
type Layout struct {
	Buckets   []Bucket // in rule order, only rules that collect tabs
	Pinned    []*types.Tab
	Unmatched []*types.Tab
}

// Plan classifies tabs against rs the way Place would. Duplicate rule
// names share the first rule's bucket, as they share a group.
func Plan(rs []types.Rule, tabs []*types.Tab) Layout {
	var l Layout
	byName := make(map[string]int)
	for _, t := range tabs {
		if t.Pinned {
			l.Pinned = append(l.Pinned, t)
			continue
		}
		r, frag, ok := rules.MatchedFragment(rs, t.URL)
		if !ok {
			l.Unmatched = append(l.Unmatched, t)
			continue
		}
		i, seen := byName[r.Name]
		if !seen {
			i = len(l.Buckets)
			byName[r.Name] = i
			l.Buckets = append(l.Buckets, Bucket{Rule: r, Fragment: frag})
		}
		l.Buckets[i].Tabs = append(l.Buckets[i].Tabs, t)
	}

	// Buckets were created in tab order; lay them out in rule order.
	ordered := make([]Bucket, 0, len(l.Buckets))
	for _, r := range rs {
		if i, ok := byName[r.Name]; ok {
			ordered = append(ordered, l.Buckets[i])
			delete(byName, r.Name)
		}
	}
	l.Buckets = ordered
	return l
}
