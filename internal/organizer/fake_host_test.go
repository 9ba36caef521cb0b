package organizer

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/lotas/tabgruppen/internal/types"
)

type staticRules []types.Rule

func (r staticRules) Load(context.Context) []types.Rule { return r }

// fakeHost models a browser tab strip per window closely enough for the
// organizer: adding a tab to an existing group moves it to the group's end,
// moving a group moves its whole block, and empty groups stay until removed.
type fakeHost struct {
	windows map[int][]*types.Tab
	groups  map[int]*types.TabGroup
	nextID  int
	calls   []string
	// fail maps "op" or "op:id" to the error that call returns.
	fail map[string]error
}

func newFakeHost() *fakeHost {
	return &fakeHost{
		windows: make(map[int][]*types.Tab),
		groups:  make(map[int]*types.TabGroup),
		nextID:  100,
		fail:    make(map[string]error),
	}
}

// addTab appends a tab to window w.
func (h *fakeHost) addTab(w, id int, url string, pinned bool) *types.Tab {
	t := &types.Tab{ID: id, URL: url, Pinned: pinned, WindowID: w, GroupID: types.GroupNone, Status: "complete"}
	h.windows[w] = append(h.windows[w], t)
	h.reindex(w)
	return t
}

// addGroup creates a group in window w holding the given tabs, which must
// already be adjacent.
func (h *fakeHost) addGroup(w int, title string, tabIDs ...int) int {
	id := h.nextID
	h.nextID++
	h.groups[id] = &types.TabGroup{ID: id, Title: title, Color: "grey", WindowID: w}
	for _, tid := range tabIDs {
		h.tab(tid).GroupID = id
	}
	return id
}

func (h *fakeHost) record(op string, id int) error {
	h.calls = append(h.calls, fmt.Sprintf("%s:%d", op, id))
	if err, ok := h.fail[fmt.Sprintf("%s:%d", op, id)]; ok {
		return err
	}
	return h.fail[op]
}

func (h *fakeHost) reindex(w int) {
	for i, t := range h.windows[w] {
		t.Index = i
	}
}

func (h *fakeHost) tab(id int) *types.Tab {
	for _, tabs := range h.windows {
		for _, t := range tabs {
			if t.ID == id {
				return t
			}
		}
	}
	return nil
}

func (h *fakeHost) sortedWindows() []int {
	var ws []int
	for w := range h.windows {
		ws = append(ws, w)
	}
	sort.Ints(ws)
	return ws
}

func (h *fakeHost) remove(t *types.Tab) {
	tabs := h.windows[t.WindowID]
	for i, x := range tabs {
		if x == t {
			h.windows[t.WindowID] = append(tabs[:i:i], tabs[i+1:]...)
			break
		}
	}
	h.reindex(t.WindowID)
}

func (h *fakeHost) insert(t *types.Tab, index int) {
	tabs := h.windows[t.WindowID]
	if index < 0 || index > len(tabs) {
		index = len(tabs)
	}
	tabs = append(tabs[:index:index], append([]*types.Tab{t}, tabs[index:]...)...)
	h.windows[t.WindowID] = tabs
	h.reindex(t.WindowID)
}

func (h *fakeHost) QueryTabs(_ context.Context, q types.TabQuery) ([]*types.Tab, error) {
	if err := h.record("queryTabs", q.WindowID); err != nil {
		return nil, err
	}
	var out []*types.Tab
	for _, w := range h.sortedWindows() {
		if q.WindowID != types.WindowAny && q.WindowID != w {
			continue
		}
		for _, t := range h.windows[w] {
			if q.Pinned != nil && t.Pinned != *q.Pinned {
				continue
			}
			if q.GroupID != nil && t.GroupID != *q.GroupID {
				continue
			}
			c := *t
			out = append(out, &c)
		}
	}
	return out, nil
}

func (h *fakeHost) QueryGroups(_ context.Context, q types.GroupQuery) ([]*types.TabGroup, error) {
	if err := h.record("queryGroups", q.WindowID); err != nil {
		return nil, err
	}
	var ids []int
	for id := range h.groups {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	var out []*types.TabGroup
	for _, id := range ids {
		g := h.groups[id]
		if q.Title != "" && g.Title != q.Title {
			continue
		}
		if q.WindowID != types.WindowAny && g.WindowID != q.WindowID {
			continue
		}
		c := *g
		out = append(out, &c)
	}
	return out, nil
}

func (h *fakeHost) members(groupID int) []*types.Tab {
	g := h.groups[groupID]
	var out []*types.Tab
	for _, t := range h.windows[g.WindowID] {
		if t.GroupID == groupID {
			out = append(out, t)
		}
	}
	return out
}

func (h *fakeHost) Group(_ context.Context, tabIDs []int, groupID, windowID int) (int, error) {
	if err := h.record("group", groupID); err != nil {
		return 0, err
	}
	if groupID == types.GroupNone {
		first := h.tab(tabIDs[0])
		if first == nil {
			return 0, types.ErrGone
		}
		groupID = h.nextID
		h.nextID++
		h.groups[groupID] = &types.TabGroup{ID: groupID, Color: "grey", WindowID: first.WindowID}
		for _, id := range tabIDs {
			h.tab(id).GroupID = groupID
		}
		return groupID, nil
	}
	if _, ok := h.groups[groupID]; !ok {
		return 0, types.ErrGone
	}
	for _, id := range tabIDs {
		t := h.tab(id)
		if t == nil {
			return 0, types.ErrGone
		}
		if t.GroupID == groupID {
			continue
		}
		last := -1
		for _, m := range h.members(groupID) {
			last = m.Index
		}
		if last < 0 {
			t.GroupID = groupID
			continue
		}
		h.remove(t)
		if last >= t.Index {
			last--
		}
		t.GroupID = groupID
		h.insert(t, last+1)
	}
	return groupID, nil
}

func (h *fakeHost) Ungroup(_ context.Context, tabID int) error {
	if err := h.record("ungroup", tabID); err != nil {
		return err
	}
	t := h.tab(tabID)
	if t == nil {
		return types.ErrGone
	}
	t.GroupID = types.GroupNone
	return nil
}

func (h *fakeHost) UpdateGroup(_ context.Context, groupID int, u types.GroupUpdate) error {
	if err := h.record("updateGroup", groupID); err != nil {
		return err
	}
	g, ok := h.groups[groupID]
	if !ok {
		return types.ErrGone
	}
	if u.Title != nil {
		g.Title = *u.Title
	}
	if u.Color != nil {
		g.Color = *u.Color
	}
	if u.Collapsed != nil {
		g.Collapsed = *u.Collapsed
	}
	return nil
}

func (h *fakeHost) MoveTab(_ context.Context, tabID, index int) error {
	if err := h.record("moveTab", tabID); err != nil {
		return err
	}
	t := h.tab(tabID)
	if t == nil {
		return types.ErrGone
	}
	h.remove(t)
	h.insert(t, index)
	return nil
}

func (h *fakeHost) MoveGroup(_ context.Context, groupID, index int) error {
	if err := h.record("moveGroup", groupID); err != nil {
		return err
	}
	g, ok := h.groups[groupID]
	if !ok {
		return types.ErrGone
	}
	block := h.members(groupID)
	var rest []*types.Tab
	for _, t := range h.windows[g.WindowID] {
		if t.GroupID != groupID {
			rest = append(rest, t)
		}
	}
	if index < 0 || index > len(rest) {
		index = len(rest)
	}
	tabs := append([]*types.Tab{}, rest[:index]...)
	tabs = append(tabs, block...)
	tabs = append(tabs, rest[index:]...)
	h.windows[g.WindowID] = tabs
	h.reindex(g.WindowID)
	return nil
}

func (h *fakeHost) RemoveGroup(_ context.Context, groupID int) error {
	if err := h.record("removeGroup", groupID); err != nil {
		return err
	}
	if _, ok := h.groups[groupID]; !ok {
		return types.ErrGone
	}
	if len(h.members(groupID)) > 0 {
		return fmt.Errorf("group %d is not empty", groupID)
	}
	delete(h.groups, groupID)
	return nil
}

// groupByTitle returns the id of the first group titled title in window w,
// or GroupNone.
func (h *fakeHost) groupByTitle(w int, title string) int {
	best := types.GroupNone
	for id, g := range h.groups {
		if g.Title == title && g.WindowID == w && (best == types.GroupNone || id < best) {
			best = id
		}
	}
	return best
}

// layout renders window w as "id[title]" tokens, pinned tabs as "id*".
func (h *fakeHost) layout(w int) string {
	var parts []string
	for _, t := range h.windows[w] {
		switch {
		case t.Pinned:
			parts = append(parts, fmt.Sprintf("%d*", t.ID))
		case t.Grouped():
			parts = append(parts, fmt.Sprintf("%d[%s]", t.ID, h.groups[t.GroupID].Title))
		default:
			parts = append(parts, fmt.Sprintf("%d", t.ID))
		}
	}
	return strings.Join(parts, " ")
}

func (h *fakeHost) called(prefix string) int {
	n := 0
	for _, c := range h.calls {
		if strings.HasPrefix(c, prefix) {
			n++
		}
	}
	return n
}
