package organizer

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"testing"

	"github.com/lotas/tabgruppen/internal/applog"
	"github.com/lotas/tabgruppen/internal/types"
)

var nsRules = staticRules{{Name: "NS", URLs: []string{"newscientist.com"}, Colour: "blue"}}

// fresh returns the host's current view of a tab, as an event would carry it.
func fresh(h *fakeHost, id int) *types.Tab {
	c := *h.tab(id)
	return &c
}

func TestPlaceNewGroupAfterPinned(t *testing.T) {
	h := newFakeHost()
	h.addTab(1, 1, "about:home", true)
	h.addTab(1, 2, "https://mail.example.org/", true)
	h.addTab(1, 3, "https://example.org/", false)
	h.addTab(1, 4, "https://www.newscientist.com/section/news/", false)

	o := New(nsRules, h)
	ctx := context.Background()
	o.Place(ctx, fresh(h, 4))
	o.Normalize(ctx, 1)

	gid := h.groupByTitle(1, "NS")
	if gid == types.GroupNone {
		t.Fatal("expected group NS to be created")
	}
	if c := h.groups[gid].Color; c != "blue" {
		t.Errorf("colour = %q, want blue", c)
	}
	if tab := h.tab(4); tab.GroupID != gid || tab.Index != 2 {
		t.Errorf("tab 4: group=%d index=%d, want group %d at index 2", tab.GroupID, tab.Index, gid)
	}
	if got, want := h.layout(1), "1* 2* 4[NS] 3"; got != want {
		t.Errorf("layout = %q, want %q", got, want)
	}
}

func TestPlaceIdempotent(t *testing.T) {
	h := newFakeHost()
	h.addTab(1, 1, "https://example.org/", false)
	h.addTab(1, 2, "https://www.newscientist.com/a", false)
	h.addTab(1, 3, "https://example.org/b", false)

	o := New(nsRules, h)
	ctx := context.Background()
	o.Place(ctx, fresh(h, 2))
	o.Normalize(ctx, 1)
	first := h.layout(1)
	groups := len(h.groups)

	o.Place(ctx, fresh(h, 2))
	o.Normalize(ctx, 1)
	if got := h.layout(1); got != first {
		t.Errorf("second pass changed layout: %q -> %q", first, got)
	}
	if len(h.groups) != groups {
		t.Errorf("second pass changed group count: %d -> %d", groups, len(h.groups))
	}
}

func TestPlaceJoinsExistingGroup(t *testing.T) {
	h := newFakeHost()
	h.addTab(1, 1, "https://www.newscientist.com/a", false)
	h.addTab(1, 2, "https://example.org/", false)
	h.addTab(1, 3, "https://www.newscientist.com/b", false)
	gid := h.addGroup(1, "NS", 1)

	o := New(nsRules, h)
	o.Place(context.Background(), fresh(h, 3))

	if got, want := h.layout(1), "1[NS] 3[NS] 2"; got != want {
		t.Errorf("layout = %q, want %q", got, want)
	}
	if len(h.groups) != 1 || h.tab(3).GroupID != gid {
		t.Errorf("tab 3 should join the existing group %d", gid)
	}
	if h.called("moveGroup") != 0 {
		t.Error("existing group should not be moved by placement")
	}
}

func TestPlaceLongestMatchWins(t *testing.T) {
	h := newFakeHost()
	h.addTab(1, 1, "https://sub.example.com/page", false)
	rs := staticRules{
		{Name: "A", URLs: []string{"example.com"}, Colour: "red"},
		{Name: "B", URLs: []string{"sub.example.com"}, Colour: "green"},
	}

	New(rs, h).Place(context.Background(), fresh(h, 1))

	gid := h.tab(1).GroupID
	if gid == types.GroupNone {
		t.Fatal("tab not grouped")
	}
	if got := h.groups[gid].Title; got != "B" {
		t.Errorf("group = %q, want B", got)
	}
}

func TestPlaceNoRulesNoCalls(t *testing.T) {
	h := newFakeHost()
	h.addTab(1, 1, "https://www.newscientist.com/a", false)
	h.addTab(1, 2, "https://example.org/", false)
	h.addGroup(1, "NS", 1)

	o := New(staticRules(nil), h)
	o.Place(context.Background(), fresh(h, 1))
	o.Place(context.Background(), fresh(h, 2))

	if len(h.calls) != 0 {
		t.Errorf("expected no host calls, got %v", h.calls)
	}
}

func TestPlacePinnedUntouched(t *testing.T) {
	h := newFakeHost()
	h.addTab(1, 1, "https://www.newscientist.com/a", true)
	h.addTab(1, 2, "https://www.newscientist.com/b", false)

	o := New(nsRules, h)
	o.Place(context.Background(), fresh(h, 1))
	if len(h.calls) != 0 {
		t.Fatalf("pinned tab caused host calls: %v", h.calls)
	}

	o.Place(context.Background(), fresh(h, 2))
	o.Normalize(context.Background(), 1)
	if h.tab(1).Grouped() || h.tab(1).Index != 0 {
		t.Errorf("pinned tab moved or grouped: %+v", h.tab(1))
	}
	if got, want := h.layout(1), "1* 2[NS]"; got != want {
		t.Errorf("layout = %q, want %q", got, want)
	}
}

func TestPlaceUnmatchedMovedToEnd(t *testing.T) {
	h := newFakeHost()
	h.addTab(1, 1, "https://example.org/", false)
	h.addTab(1, 2, "https://www.newscientist.com/a", false)
	h.addTab(1, 3, "https://example.org/other", false)
	h.addGroup(1, "NS", 2)

	New(nsRules, h).Place(context.Background(), fresh(h, 1))

	if got, want := h.layout(1), "2[NS] 3 1"; got != want {
		t.Errorf("layout = %q, want %q", got, want)
	}
}

func TestPlaceUnmatchedAlreadyPastGroups(t *testing.T) {
	h := newFakeHost()
	h.addTab(1, 1, "https://www.newscientist.com/a", false)
	h.addTab(1, 2, "https://example.org/", false)
	h.addGroup(1, "NS", 1)

	New(nsRules, h).Place(context.Background(), fresh(h, 2))

	if n := h.called("moveTab"); n != 0 {
		t.Errorf("expected no moveTab call, got %d (%v)", n, h.calls)
	}
}

func TestPlaceUnmatchedLeavesGroupThenCleanup(t *testing.T) {
	h := newFakeHost()
	h.addTab(1, 1, "https://www.newscientist.com/a", false)
	h.addTab(1, 2, "https://example.org/", false)
	gid := h.addGroup(1, "NS", 1)
	h.tab(1).URL = "https://example.org/elsewhere"

	o := New(nsRules, h)
	o.Place(context.Background(), fresh(h, 1))
	if h.tab(1).Grouped() {
		t.Fatal("tab should be ungrouped after its URL stopped matching")
	}
	if _, ok := h.groups[gid]; !ok {
		t.Fatal("placement must not remove groups")
	}

	o.Normalize(context.Background(), 1)
	if _, ok := h.groups[gid]; ok {
		t.Error("empty group should be removed by normalization")
	}
}

func TestNormalizeOrderFollowsRules(t *testing.T) {
	h := newFakeHost()
	h.addTab(1, 1, "about:blank", true)
	h.addTab(1, 2, "https://a.org/", false)
	h.addTab(1, 3, "https://example.org/", false)
	h.addTab(1, 4, "https://b.org/1", false)
	h.addTab(1, 5, "https://b.org/2", false)
	h.addGroup(1, "A", 2)
	h.addGroup(1, "B", 4, 5)
	rs := staticRules{
		{Name: "B", URLs: []string{"b.org"}, Colour: "red"},
		{Name: "A", URLs: []string{"a.org"}, Colour: "blue"},
	}

	New(rs, h).Normalize(context.Background(), 1)

	if got, want := h.layout(1), "1* 4[B] 5[B] 2[A] 3"; got != want {
		t.Errorf("layout = %q, want %q", got, want)
	}
}

func TestNormalizeLeavesUnruledGroups(t *testing.T) {
	h := newFakeHost()
	h.addTab(1, 1, "https://x.org/", false)
	h.addTab(1, 2, "https://www.newscientist.com/a", false)
	h.addGroup(1, "Manual", 1)
	h.addGroup(1, "NS", 2)

	New(nsRules, h).Normalize(context.Background(), 1)

	if got, want := h.layout(1), "2[NS] 1[Manual]"; got != want {
		t.Errorf("layout = %q, want %q", got, want)
	}
	if len(h.groups) != 2 {
		t.Errorf("groups = %d, want 2", len(h.groups))
	}
}

func TestNormalizeContinuesAfterFailure(t *testing.T) {
	h := newFakeHost()
	h.addTab(1, 1, "https://a.org/", false)
	h.addTab(1, 2, "https://b.org/", false)
	a := h.addGroup(1, "A", 1)
	b := h.addGroup(1, "B", 2)
	empty := h.addGroup(1, "C")
	h.fail["moveGroup:"+strconv.Itoa(b)] = errors.New("invalid index")
	rs := staticRules{
		{Name: "B", URLs: []string{"b.org"}, Colour: "red"},
		{Name: "A", URLs: []string{"a.org"}, Colour: "blue"},
		{Name: "C", URLs: []string{"c.org"}, Colour: "green"},
	}

	New(rs, h).Normalize(context.Background(), 1)

	if h.called("moveGroup:"+strconv.Itoa(a)) != 1 {
		t.Errorf("group A should still be moved, calls: %v", h.calls)
	}
	if _, ok := h.groups[empty]; ok {
		t.Error("empty group should still be removed")
	}
}

func TestNormalizeSkipsGroupRefilled(t *testing.T) {
	h := newFakeHost()
	h.addTab(1, 1, "https://a.org/", false)
	gid := h.addGroup(1, "A")

	// Between the first scan and the removal a tab joins the group.
	o := New(staticRules{{Name: "A", URLs: []string{"a.org"}, Colour: "red"}}, h)
	h.tab(1).GroupID = gid
	o.removeIfEmpty(context.Background(), applog.With("group", gid), 1, gid)

	if _, ok := h.groups[gid]; !ok {
		t.Error("group with a member must not be removed")
	}
	if h.called("removeGroup") != 0 {
		t.Errorf("unexpected removeGroup call: %v", h.calls)
	}
}

func TestNormalizeQueryFailureAbandons(t *testing.T) {
	h := newFakeHost()
	h.addTab(1, 1, "https://a.org/", false)
	h.addGroup(1, "A")
	h.fail["queryGroups"] = errors.New("extension not connected")

	New(staticRules{{Name: "A", URLs: []string{"a.org"}, Colour: "red"}}, h).Normalize(context.Background(), 1)

	if len(h.calls) != 1 {
		t.Errorf("expected only the failed query, got %v", h.calls)
	}
}

func TestPlaceGoneTabAbandons(t *testing.T) {
	h := newFakeHost()
	h.addTab(1, 1, "https://www.newscientist.com/a", false)
	h.fail["group"] = types.ErrGone

	New(nsRules, h).Place(context.Background(), fresh(h, 1))

	if h.called("updateGroup") != 0 || h.called("moveGroup") != 0 {
		t.Errorf("placement should stop after the failed group call: %v", h.calls)
	}
}

func TestDissolveAcrossWindows(t *testing.T) {
	h := newFakeHost()
	h.addTab(1, 1, "https://www.newscientist.com/a", false)
	h.addTab(1, 2, "https://example.org/", false)
	h.addTab(2, 3, "https://x.org/", false)
	h.addTab(2, 4, "https://www.newscientist.com/b", false)
	h.addTab(2, 5, "https://www.newscientist.com/c", false)
	h.addTab(2, 6, "https://example.org/z", false)
	h.addGroup(1, "NS", 1)
	h.addGroup(2, "X", 3)
	h.addGroup(2, "NS", 4, 5)

	// The rule is already gone from the set when dissolve runs.
	rs := staticRules{{Name: "X", URLs: []string{"x.org"}, Colour: "cyan"}}
	New(rs, h).Dissolve(context.Background(), "NS")

	for _, g := range h.groups {
		if g.Title == "NS" {
			t.Errorf("group %d titled NS survived", g.ID)
		}
	}
	if got, want := h.layout(1), "2 1"; got != want {
		t.Errorf("window 1 = %q, want %q", got, want)
	}
	if got, want := h.layout(2), "3[X] 6 4 5"; got != want {
		t.Errorf("window 2 = %q, want %q", got, want)
	}
}

func TestDissolveSkipsFailedTab(t *testing.T) {
	h := newFakeHost()
	h.addTab(1, 1, "https://www.newscientist.com/a", false)
	h.addTab(1, 2, "https://www.newscientist.com/b", false)
	h.addTab(1, 3, "https://example.org/", false)
	gid := h.addGroup(1, "NS", 1, 2)
	h.fail["ungroup:1"] = types.ErrGone

	New(staticRules(nil), h).Dissolve(context.Background(), "NS")

	if h.tab(2).Grouped() {
		t.Error("tab 2 should be ungrouped despite tab 1 failing")
	}
	if h.called("moveTab:1") != 0 {
		t.Error("tab 1 should be skipped after its ungroup failed")
	}
	if _, ok := h.groups[gid]; !ok {
		t.Error("group still holding tab 1 must not be removed")
	}
}

func TestReorganizeAll(t *testing.T) {
	h := newFakeHost()
	h.addTab(1, 1, "https://www.newscientist.com/pinned", true)
	h.addTab(1, 2, "https://www.newscientist.com/a", false)
	h.addTab(1, 3, "https://example.org/", false)
	h.addTab(1, 4, "ftp://www.newscientist.com/file", false)
	h.addTab(2, 5, "https://www.newscientist.com/b", false)

	eligible := func(t *types.Tab) bool { return strings.HasPrefix(t.URL, "http") }
	New(nsRules, h).ReorganizeAll(context.Background(), eligible)

	if got, want := h.layout(1), "1* 2[NS] 4 3"; got != want {
		t.Errorf("window 1 = %q, want %q", got, want)
	}
	if got, want := h.layout(2), "5[NS]"; got != want {
		t.Errorf("window 2 = %q, want %q", got, want)
	}
	if h.tab(4).Grouped() {
		t.Error("ineligible tab was grouped")
	}
}

func TestReorganizeAllCancelled(t *testing.T) {
	h := newFakeHost()
	h.addTab(1, 1, "https://www.newscientist.com/a", false)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	New(nsRules, h).ReorganizeAll(ctx, nil)

	if h.called("group:") != 0 {
		t.Errorf("cancelled pass should not place tabs: %v", h.calls)
	}
}

func TestPlan(t *testing.T) {
	rs := []types.Rule{
		{Name: "B", URLs: []string{"b.org"}, Colour: "red"},
		{Name: "A", URLs: []string{"a.org/*"}, Colour: "blue"},
	}
	tabs := []*types.Tab{
		{ID: 1, URL: "https://a.org/1"},
		{ID: 2, URL: "https://b.org/", Pinned: true},
		{ID: 3, URL: "https://b.org/x"},
		{ID: 4, URL: "https://c.org/"},
		{ID: 5, URL: "https://A.ORG/2"},
	}

	l := Plan(rs, tabs)

	if len(l.Buckets) != 2 {
		t.Fatalf("buckets = %d, want 2", len(l.Buckets))
	}
	if l.Buckets[0].Rule.Name != "B" || len(l.Buckets[0].Tabs) != 1 {
		t.Errorf("bucket 0 = %s with %d tabs, want B with 1", l.Buckets[0].Rule.Name, len(l.Buckets[0].Tabs))
	}
	if l.Buckets[1].Rule.Name != "A" || len(l.Buckets[1].Tabs) != 2 {
		t.Errorf("bucket 1 = %s with %d tabs, want A with 2", l.Buckets[1].Rule.Name, len(l.Buckets[1].Tabs))
	}
	if l.Buckets[1].Fragment != "a.org/*" {
		t.Errorf("fragment = %q, want a.org/*", l.Buckets[1].Fragment)
	}
	if len(l.Pinned) != 1 || l.Pinned[0].ID != 2 {
		t.Errorf("pinned = %v", l.Pinned)
	}
	if len(l.Unmatched) != 1 || l.Unmatched[0].ID != 4 {
		t.Errorf("unmatched = %v", l.Unmatched)
	}
}

// captureLog mirrors the event log into a buffer for the rest of the test.
func captureLog(t *testing.T) *strings.Builder {
	t.Helper()
	var buf strings.Builder
	applog.SetEcho(&buf)
	t.Cleanup(func() { applog.SetEcho(nil) })
	return &buf
}

func TestPlaceStyleFailureLeftAsIsThenHeals(t *testing.T) {
	h := newFakeHost()
	h.addTab(1, 1, "https://example.org/", false)
	h.addTab(1, 2, "https://www.newscientist.com/a", false)
	h.fail["updateGroup"] = errors.New("invalid colour")

	o := New(nsRules, h)
	ctx := context.Background()
	o.Place(ctx, fresh(h, 2))

	if got, want := h.layout(1), "1 2[]"; got != want {
		t.Errorf("after failed styling: layout = %q, want %q", got, want)
	}
	if h.called("moveTab") != 0 || h.called("moveGroup") != 0 {
		t.Errorf("placement should stop after the failed update: %v", h.calls)
	}

	delete(h.fail, "updateGroup")
	o.Place(ctx, fresh(h, 2))
	o.Normalize(ctx, 1)

	if got, want := h.layout(1), "2[NS] 1"; got != want {
		t.Errorf("after next pass: layout = %q, want %q", got, want)
	}
	if len(h.groups) != 1 {
		t.Errorf("groups = %d, want 1 (the unstyled group removed once empty)", len(h.groups))
	}
}

func TestPlaceUnmatchedUngroupGoneStops(t *testing.T) {
	h := newFakeHost()
	h.addTab(1, 1, "https://example.org/", false)
	h.addTab(1, 2, "https://www.newscientist.com/a", false)
	h.addGroup(1, "Old", 1)
	h.addGroup(1, "NS", 2)
	h.fail["ungroup:1"] = types.ErrGone

	New(nsRules, h).Place(context.Background(), fresh(h, 1))

	if n := h.called("moveTab"); n != 0 {
		t.Errorf("moveTab called %d times after the tab vanished: %v", n, h.calls)
	}
	if n := h.called("queryTabs"); n != 0 {
		t.Errorf("window re-queried after the failed ungroup: %v", h.calls)
	}
}

func TestPlaceUnmatchedTabClosedBeforeMove(t *testing.T) {
	h := newFakeHost()
	h.addTab(1, 1, "https://example.org/", false)
	h.addTab(1, 2, "https://www.newscientist.com/a", false)
	h.addGroup(1, "NS", 2)

	ev := fresh(h, 1)
	h.remove(h.tab(1))

	New(nsRules, h).Place(context.Background(), ev)

	if n := h.called("moveTab"); n != 0 {
		t.Errorf("moveTab sent for a tab no longer in the window: %v", h.calls)
	}
}

func TestGoneErrorsLoggedAtInfo(t *testing.T) {
	buf := captureLog(t)
	h := newFakeHost()
	h.addTab(1, 1, "https://www.newscientist.com/a", false)
	h.addTab(1, 2, "https://example.org/", false)
	h.addGroup(1, "Old", 2)
	h.fail["group"] = types.ErrGone
	h.fail["ungroup:2"] = types.ErrGone

	o := New(nsRules, h)
	ctx := context.Background()
	o.Place(ctx, fresh(h, 1))
	o.Place(ctx, fresh(h, 2))

	out := buf.String()
	for _, event := range []string{"organize.group", "organize.ungroup"} {
		if !strings.Contains(out, " INFO "+event+" ") {
			t.Errorf("%s not logged at INFO:\n%s", event, out)
		}
	}
	if strings.Contains(out, " WARN ") || strings.Contains(out, " ERROR ") {
		t.Errorf("vanished tab logged above INFO:\n%s", out)
	}
}

func TestOtherHostErrorsLoggedAtError(t *testing.T) {
	buf := captureLog(t)
	h := newFakeHost()
	h.fail["queryGroups"] = errors.New("extension not connected")

	New(nsRules, h).Normalize(context.Background(), 1)

	if !strings.Contains(buf.String(), " ERROR normalize.query_groups ") {
		t.Errorf("query failure not logged at ERROR:\n%s", buf.String())
	}
}
