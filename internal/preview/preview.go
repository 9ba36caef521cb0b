// Package preview shows what the organizer would do to a saved Firefox
// session, without touching the browser.
package preview

import (
	"fmt"
	"sort"
	"strings"

	"github.com/lotas/tabgruppen/internal/organizer"
	"github.com/lotas/tabgruppen/internal/types"
)

// Window is the planned layout of one browser window.
type Window struct {
	ID     int
	Layout organizer.Layout
	// Joins counts tabs that would enter a group they are not in yet.
	Joins int
	// Leaves counts grouped tabs no rule matches, which would be ungrouped.
	Leaves int
}

// Result is the dry run for a whole session.
type Result struct {
	Profile string
	Windows []Window
	titles  map[int]string // group id -> title in the session
}

// Classify plans every window of sd against rs.
func Classify(rs []types.Rule, sd *types.SessionData) *Result {
	r := &Result{Profile: sd.Profile.Name, titles: make(map[int]string)}
	for _, g := range sd.Groups {
		r.titles[g.ID] = g.Title
	}

	byWindow := make(map[int][]*types.Tab)
	for _, t := range sd.AllTabs {
		byWindow[t.WindowID] = append(byWindow[t.WindowID], t)
	}
	ids := make([]int, 0, len(byWindow))
	for id := range byWindow {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	for _, id := range ids {
		w := Window{ID: id, Layout: organizer.Plan(rs, byWindow[id])}
		for _, b := range w.Layout.Buckets {
			for _, t := range b.Tabs {
				if r.currentGroup(t) != b.Rule.Name {
					w.Joins++
				}
			}
		}
		for _, t := range w.Layout.Unmatched {
			if t.Grouped() {
				w.Leaves++
			}
		}
		r.Windows = append(r.Windows, w)
	}
	return r
}

// currentGroup returns the title of the group t is in, or "".
func (r *Result) currentGroup(t *types.Tab) string {
	if !t.Grouped() {
		return ""
	}
	return r.titles[t.GroupID]
}

// Changes is the number of tabs whose group would change.
func (r *Result) Changes() int {
	n := 0
	for _, w := range r.Windows {
		n += w.Joins + w.Leaves
	}
	return n
}

// FormatDryRun returns a human-readable summary of the planned layout.
// Tabs marked '+' would join their group, '-' would leave one.
func FormatDryRun(r *Result) string {
	var b strings.Builder

	if r.Profile != "" {
		fmt.Fprintf(&b, "Profile: %s\n", r.Profile)
	}
	for _, w := range r.Windows {
		fmt.Fprintf(&b, "\nWindow %d\n", w.ID)
		if n := len(w.Layout.Pinned); n > 0 {
			fmt.Fprintf(&b, "  Pinned: %d (left alone)\n", n)
		}
		for _, bucket := range w.Layout.Buckets {
			fmt.Fprintf(&b, "  %s [%s] (%d):\n", bucket.Rule.Name, bucket.Rule.Colour, len(bucket.Tabs))
			for _, t := range bucket.Tabs {
				mark := " "
				if r.currentGroup(t) != bucket.Rule.Name {
					mark = "+"
				}
				fmt.Fprintf(&b, "    %s %s\n", mark, label(t))
			}
		}
		if len(w.Layout.Unmatched) > 0 {
			fmt.Fprintf(&b, "  Unmatched (%d):\n", len(w.Layout.Unmatched))
			for _, t := range w.Layout.Unmatched {
				if g := r.currentGroup(t); g != "" {
					fmt.Fprintf(&b, "    - %s (leaves %s)\n", label(t), g)
				} else {
					fmt.Fprintf(&b, "      %s\n", label(t))
				}
			}
		}
	}

	if c := r.Changes(); c > 0 {
		fmt.Fprintf(&b, "\n%d tabs would change group.\n", c)
	} else {
		b.WriteString("\nNothing to do.\n")
	}
	return b.String()
}

func label(t *types.Tab) string {
	if t.Title != "" {
		return fmt.Sprintf("%s <%s>", t.Title, t.URL)
	}
	return t.URL
}
