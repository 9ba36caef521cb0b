package organizer

import (
	"context"

	"github.com/lotas/tabgruppen/internal/applog"
	"github.com/lotas/tabgruppen/internal/rules"
	"github.com/lotas/tabgruppen/internal/types"
)

// Place moves one tab into the group its best matching rule names, or out of
// any group and past the organized block when no rule matches. Pinned tabs
// and an empty rule set are left alone. Place never fails: host errors are
// logged and end the placement early.
func (o *Organizer) Place(ctx context.Context, tab *types.Tab) {
	rs := o.rules.Load(ctx)
	if len(rs) == 0 || tab == nil || tab.Pinned {
		return
	}

	log := applog.With("tab", tab.ID, "url", tab.URL, "window", tab.WindowID)
	rule, ok := rules.BestMatch(rs, tab.URL)
	if !ok {
		o.placeUnmatched(ctx, log, tab)
		return
	}
	o.placeMatched(ctx, log.With("rule", rule.Name), tab, rule)
}

// placeUnmatched ungroups tab and, if it sits at or left of the last grouped
// tab, sends it to the end of the strip.
func (o *Organizer) placeUnmatched(ctx context.Context, log applog.Logger, tab *types.Tab) {
	if tab.Grouped() {
		if !step(log, "organize.ungroup", func() error {
			return o.host.Ungroup(ctx, tab.ID)
		}) {
			return
		}
	}

	var tabs []*types.Tab
	if !step(log, "organize.query_window", func() (err error) {
		tabs, err = o.host.QueryTabs(ctx, types.TabQuery{WindowID: tab.WindowID})
		return err
	}) {
		return
	}

	index := -1
	for _, t := range tabs {
		if t.ID == tab.ID {
			index = t.Index
			break
		}
	}
	if index < 0 {
		log.Info("organize.tab_gone")
		return
	}
	if index > lastGroupedIndex(tabs) {
		return
	}
	if step(log, "organize.move_to_end", func() error {
		return o.host.MoveTab(ctx, tab.ID, -1)
	}) {
		log.Info("organize.unmatched_moved")
	}
}

func (o *Organizer) placeMatched(ctx context.Context, log applog.Logger, tab *types.Tab, rule types.Rule) {
	var existing []*types.TabGroup
	if !step(log, "organize.query_group", func() (err error) {
		existing, err = o.host.QueryGroups(ctx, types.GroupQuery{Title: rule.Name, WindowID: tab.WindowID})
		return err
	}) {
		return
	}

	target := types.GroupNone
	for _, g := range existing {
		// The host filters by title, but a loose match must not hijack
		// another group.
		if g.Title == rule.Name && (g.WindowID == 0 || g.WindowID == tab.WindowID) {
			target = g.ID
			break
		}
	}
	created := target == types.GroupNone

	groupID, err := o.host.Group(ctx, []int{tab.ID}, target, tab.WindowID)
	if err != nil {
		// Almost always the tab closing while we work on it.
		log.Info("organize.group", "err", err, "target", target)
		return
	}
	log = log.With("group", groupID)

	if !step(log, "organize.style_group", func() error {
		return o.host.UpdateGroup(ctx, groupID, types.GroupUpdate{
			Title: types.String(rule.Name),
			Color: types.String(rule.Colour),
		})
	}) {
		return
	}

	if tab.GroupID != groupID {
		var members []*types.Tab
		if !step(log, "organize.query_members", func() (err error) {
			members, err = o.host.QueryTabs(ctx, types.TabQuery{WindowID: tab.WindowID, GroupID: types.Int(groupID)})
			return err
		}) {
			return
		}
		if last := lastIndex(members); last >= 0 {
			if !step(log, "organize.move_in_group", func() error {
				return o.host.MoveTab(ctx, tab.ID, last)
			}) {
				return
			}
		}
	}

	if created {
		if !step(log, "organize.move_new_group", func() error {
			return o.host.MoveGroup(ctx, groupID, -1)
		}) {
			return
		}
		log.Info("organize.group_created")
		return
	}
	log.Info("organize.placed")
}

// lastIndex returns the highest index among tabs, or -1 if there are none.
func lastIndex(tabs []*types.Tab) int {
	max := -1
	for _, t := range tabs {
		if t.Index > max {
			max = t.Index
		}
	}
	return max
}
