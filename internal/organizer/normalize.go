package organizer

import (
	"context"

	"github.com/lotas/tabgruppen/internal/applog"
	"github.com/lotas/tabgruppen/internal/types"
)

// Normalize lays out one window: groups named by rules are moved, in rule
// order, into one contiguous block right after the pinned tabs, and groups
// left without members are removed. A failure on one group is logged and
// the pass continues with the rest.
func (o *Organizer) Normalize(ctx context.Context, windowID int) {
	log := applog.With("window", windowID)

	var groups []*types.TabGroup
	if !step(log, "normalize.query_groups", func() (err error) {
		groups, err = o.host.QueryGroups(ctx, types.GroupQuery{WindowID: windowID})
		return err
	}) {
		return
	}
	if len(groups) == 0 {
		return
	}

	counts := make(map[int]int, len(groups))
	var empty []*types.TabGroup
	for _, g := range groups {
		var members []*types.Tab
		if !step(log.With("group", g.ID, "title", g.Title), "normalize.query_members", func() (err error) {
			members, err = o.host.QueryTabs(ctx, types.TabQuery{WindowID: windowID, GroupID: types.Int(g.ID)})
			return err
		}) {
			continue
		}
		if len(members) == 0 {
			empty = append(empty, g)
			continue
		}
		counts[g.ID] = len(members)
	}

	order := orderGroups(o.rules.Load(ctx), groups, counts)

	var pinned []*types.Tab
	if !step(log, "normalize.query_pinned", func() (err error) {
		pinned, err = o.host.QueryTabs(ctx, types.TabQuery{WindowID: windowID, Pinned: types.Bool(true)})
		return err
	}) {
		return
	}

	// Groups move one at a time: the host shifts everything after a moved
	// block, so each target is only valid once the previous move landed.
	// Moving a group onto its own index is a no-op for the host.
	cursor := len(pinned)
	for _, id := range order {
		target := cursor
		step(log.With("group", id, "index", target), "normalize.move", func() error {
			return o.host.MoveGroup(ctx, id, target)
		})
		cursor += counts[id]
	}

	for _, g := range empty {
		o.removeIfEmpty(ctx, log.With("group", g.ID, "title", g.Title), windowID, g.ID)
	}
}

// orderGroups returns the ids of live groups in rule order. Each rule takes
// the first group carrying its name; later rules with a duplicate name and
// groups no rule names are left out.
func orderGroups(rs []types.Rule, groups []*types.TabGroup, counts map[int]int) []int {
	used := make(map[int]bool)
	var order []int
	for _, r := range rs {
		for _, g := range groups {
			if g.Title != r.Name || used[g.ID] {
				continue
			}
			if _, live := counts[g.ID]; !live {
				continue
			}
			used[g.ID] = true
			order = append(order, g.ID)
			break
		}
	}
	return order
}

// removeIfEmpty re-checks membership right before removing, since a tab may
// have joined the group after the first query.
func (o *Organizer) removeIfEmpty(ctx context.Context, log applog.Logger, windowID, groupID int) {
	var members []*types.Tab
	if !step(log, "normalize.recheck", func() (err error) {
		members, err = o.host.QueryTabs(ctx, types.TabQuery{WindowID: windowID, GroupID: types.Int(groupID)})
		return err
	}) {
		return
	}
	if len(members) > 0 {
		return
	}
	if step(log, "normalize.remove_empty", func() error {
		return o.host.RemoveGroup(ctx, groupID)
	}) {
		log.Info("normalize.removed_empty")
	}
}
