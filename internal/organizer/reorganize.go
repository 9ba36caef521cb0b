package organizer

import (
	"context"

	"github.com/lotas/tabgruppen/internal/applog"
	"github.com/lotas/tabgruppen/internal/types"
)

// ReorganizeAll places every eligible tab in every window and then
// normalizes each window. It runs after the rule set changes and when the
// extension (re)connects. A nil eligible admits every tab.
func (o *Organizer) ReorganizeAll(ctx context.Context, eligible func(*types.Tab) bool) {
	var tabs []*types.Tab
	if !step(applog.With(), "reorganize.query_tabs", func() (err error) {
		tabs, err = o.host.QueryTabs(ctx, types.TabQuery{})
		return err
	}) {
		return
	}

	windows := make(map[int]bool)
	placed := 0
	for _, t := range tabs {
		if ctx.Err() != nil {
			return
		}
		windows[t.WindowID] = true
		if t.Pinned || (eligible != nil && !eligible(t)) {
			continue
		}
		o.Place(ctx, t)
		placed++
	}
	for _, w := range sortedKeys(windows) {
		if ctx.Err() != nil {
			return
		}
		o.Normalize(ctx, w)
	}
	applog.Info("reorganize.done", "tabs", len(tabs), "placed", placed, "windows", len(windows))
}
