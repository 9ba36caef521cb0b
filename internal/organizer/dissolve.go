package organizer

import (
	"context"
	"sort"

	"github.com/lotas/tabgruppen/internal/applog"
	"github.com/lotas/tabgruppen/internal/types"
)

// Dissolve empties every group titled name, in any window: member tabs are
// ungrouped and sent to the end of their strip. Each touched window is then
// normalized, which removes the emptied groups. A tab that fails to ungroup
// or move is logged and skipped.
func (o *Organizer) Dissolve(ctx context.Context, name string) {
	log := applog.With("title", name)

	var groups []*types.TabGroup
	if !step(log, "dissolve.query_groups", func() (err error) {
		groups, err = o.host.QueryGroups(ctx, types.GroupQuery{Title: name})
		return err
	}) {
		return
	}

	touched := make(map[int]bool)
	for _, g := range groups {
		if g.Title != name {
			continue
		}
		glog := log.With("group", g.ID, "window", g.WindowID)
		var members []*types.Tab
		if !step(glog, "dissolve.query_members", func() (err error) {
			members, err = o.host.QueryTabs(ctx, types.TabQuery{WindowID: g.WindowID, GroupID: types.Int(g.ID)})
			return err
		}) {
			continue
		}
		for _, t := range members {
			tlog := glog.With("tab", t.ID)
			if !step(tlog, "dissolve.ungroup", func() error {
				return o.host.Ungroup(ctx, t.ID)
			}) {
				continue
			}
			step(tlog, "dissolve.move_to_end", func() error {
				return o.host.MoveTab(ctx, t.ID, -1)
			})
		}
		touched[g.WindowID] = true
		glog.Info("dissolve.emptied", "tabs", len(members))
	}

	for _, w := range sortedKeys(touched) {
		o.Normalize(ctx, w)
	}
}

func sortedKeys(m map[int]bool) []int {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}
