package history

import (
	"context"
	"database/sql"
	"path/filepath"
	"strings"
	"testing"

	"github.com/lotas/tabgruppen/internal/rules"
	"github.com/lotas/tabgruppen/internal/storage"
	"github.com/lotas/tabgruppen/internal/types"
)

func testDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := storage.OpenDB(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("OpenDB: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func rule(name, colour string, urls ...string) types.Rule {
	if urls == nil {
		urls = []string{}
	}
	return types.Rule{Name: name, URLs: urls, Colour: colour}
}

func TestDiff(t *testing.T) {
	old := []types.Rule{
		rule("A", "blue", "a.org"),
		rule("B", "red", "b.org"),
		rule("C", "green", "c.org"),
	}
	cur := []types.Rule{
		rule("C", "green", "c.org"),
		rule("A", "cyan", "a.org"),
		rule("D", "pink", "d.org"),
	}

	d := Diff(old, cur)

	if len(d.Added) != 1 || d.Added[0].Name != "D" {
		t.Errorf("added = %v", d.Added)
	}
	if len(d.Removed) != 1 || d.Removed[0].Name != "B" {
		t.Errorf("removed = %v", d.Removed)
	}
	if len(d.Changed) != 1 || d.Changed[0].Name != "A" || d.Changed[0].New.Colour != "cyan" {
		t.Errorf("changed = %v", d.Changed)
	}
	if !d.Reordered {
		t.Error("expected reorder: A,C became C,A")
	}
}

func TestDiffRemovalIsNotReorder(t *testing.T) {
	old := []types.Rule{rule("A", "blue"), rule("B", "red"), rule("C", "green")}
	cur := []types.Rule{rule("A", "blue"), rule("C", "green")}

	d := Diff(old, cur)
	if d.Reordered {
		t.Error("dropping a rule should not count as a reorder")
	}
	if d.Empty() {
		t.Error("diff should not be empty")
	}
}

func TestDiffDuplicateNames(t *testing.T) {
	old := []types.Rule{rule("A", "blue", "a.org"), rule("A", "red", "x.org")}
	cur := []types.Rule{rule("A", "blue", "a.org")}

	if d := Diff(old, cur); !d.Empty() {
		t.Errorf("shadowed duplicate should not show up: %s", FormatDiff(d))
	}
}

func TestDiffRevisionsAndRevert(t *testing.T) {
	ctx := context.Background()
	kv := storage.NewKV(testDB(t))
	store := rules.NewStore(kv)

	v1 := []types.Rule{rule("NS", "blue", "newscientist.com")}
	v2 := []types.Rule{rule("NS", "blue", "newscientist.com"), rule("Dev", "green", "github.com")}
	if err := store.Save(ctx, v1); err != nil {
		t.Fatal(err)
	}
	if err := store.Save(ctx, v2); err != nil {
		t.Fatal(err)
	}

	d, err := DiffRevisions(ctx, kv, 0, 0)
	if err != nil {
		t.Fatalf("DiffRevisions: %v", err)
	}
	if d.RevFrom != 1 || d.RevTo != 2 {
		t.Errorf("revs = %d -> %d, want 1 -> 2", d.RevFrom, d.RevTo)
	}
	if len(d.Added) != 1 || d.Added[0].Name != "Dev" {
		t.Errorf("added = %v", d.Added)
	}

	rd, err := Revert(ctx, kv, store, 1)
	if err != nil {
		t.Fatalf("Revert: %v", err)
	}
	if len(rd.Removed) != 1 || rd.Removed[0].Name != "Dev" {
		t.Errorf("revert removed = %v", rd.Removed)
	}
	if got := store.Load(ctx); len(got) != 1 || got[0].Name != "NS" {
		t.Errorf("after revert rules = %v", got)
	}

	entries, err := List(ctx, kv)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 3 || entries[0].Rev != 3 {
		t.Fatalf("entries = %+v, want 3 newest first", entries)
	}
	out := FormatList(entries)
	if !strings.Contains(out, "#2") || !strings.Contains(out, "NS, Dev") {
		t.Errorf("FormatList output:\n%s", out)
	}
}

func TestRevertToCurrentIsNoop(t *testing.T) {
	ctx := context.Background()
	kv := storage.NewKV(testDB(t))
	store := rules.NewStore(kv)
	if err := store.Save(ctx, rules.Defaults()); err != nil {
		t.Fatal(err)
	}

	d, err := Revert(ctx, kv, store, 1)
	if err != nil {
		t.Fatal(err)
	}
	if !d.Empty() {
		t.Errorf("expected empty diff, got %s", FormatDiff(d))
	}
	revs, _ := kv.ListRevisions(ctx, rules.Key)
	if len(revs) != 1 {
		t.Errorf("revisions = %d, want 1", len(revs))
	}
}

func TestDiffRevisionsFirstHasNoPredecessor(t *testing.T) {
	ctx := context.Background()
	kv := storage.NewKV(testDB(t))
	if err := rules.NewStore(kv).Save(ctx, rules.Defaults()); err != nil {
		t.Fatal(err)
	}
	if _, err := DiffRevisions(ctx, kv, 0, 1); err == nil {
		t.Error("expected error comparing the first revision")
	}
}

func TestFormatDiff(t *testing.T) {
	d := &DiffResult{
		RevFrom: 4,
		RevTo:   5,
		Added:   []types.Rule{rule("Dev", "green", "github.com")},
		Changed: []Change{{
			Name: "NS",
			Old:  rule("NS", "blue", "newscientist.com"),
			New:  rule("NS", "red", "newscientist.com"),
		}},
	}
	out := FormatDiff(d)

	for _, want := range []string{"Rules #4 -> #5", "+ Dev [green] github.com", "~ NS", "colour: blue -> red"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "urls:") {
		t.Errorf("unchanged urls should not be listed:\n%s", out)
	}

	if !strings.Contains(FormatDiff(&DiffResult{}), "No changes.") {
		t.Error("empty diff should say so")
	}
}
