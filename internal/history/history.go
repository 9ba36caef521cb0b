// Package history compares and restores recorded revisions of the rule set.
package history

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/lotas/tabgruppen/internal/rules"
	"github.com/lotas/tabgruppen/internal/storage"
	"github.com/lotas/tabgruppen/internal/types"
)

// Revisions is the revision log of the rule set key. storage.KV satisfies it.
type Revisions interface {
	ListRevisions(ctx context.Context, key string) ([]storage.Revision, error)
	GetRevision(ctx context.Context, key string, rev int) (*storage.Revision, error)
}

// Entry summarizes one stored revision.
type Entry struct {
	Rev       int
	CreatedAt time.Time
	Names     []string // rule names in order; nil if the value did not decode
	Err       error
}

// Change is a rule present in both revisions under the same name whose
// fragments or colour differ.
type Change struct {
	Name string
	Old  types.Rule
	New  types.Rule
}

// DiffResult holds the difference between two rule sets.
type DiffResult struct {
	RevFrom   int // 0 when not comparing stored revisions
	RevTo     int
	Added     []types.Rule
	Removed   []types.Rule
	Changed   []Change
	Reordered bool // rules kept in both appear in a different order
}

// Empty reports whether the two rule sets are the same.
func (d *DiffResult) Empty() bool {
	return len(d.Added) == 0 && len(d.Removed) == 0 && len(d.Changed) == 0 && !d.Reordered
}

// List returns every revision of the rule set, newest first.
func List(ctx context.Context, src Revisions) ([]Entry, error) {
	revs, err := src.ListRevisions(ctx, rules.Key)
	if err != nil {
		return nil, err
	}
	entries := make([]Entry, 0, len(revs))
	for _, r := range revs {
		e := Entry{Rev: r.Rev, CreatedAt: r.CreatedAt}
		rs, err := rules.DecodeJSON(r.Value)
		if err != nil {
			e.Err = err
		} else {
			e.Names = names(rs)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// Load decodes one revision. rev 0 means the latest. It returns the
// resolved revision number.
func Load(ctx context.Context, src Revisions, rev int) ([]types.Rule, int, error) {
	r, err := src.GetRevision(ctx, rules.Key, rev)
	if err != nil {
		return nil, 0, err
	}
	rs, err := rules.DecodeJSON(r.Value)
	if err != nil {
		return nil, 0, fmt.Errorf("revision %d: %w", r.Rev, err)
	}
	return rs, r.Rev, nil
}

// DiffRevisions compares two stored revisions. to 0 means the latest;
// from 0 means the revision before to.
func DiffRevisions(ctx context.Context, src Revisions, from, to int) (*DiffResult, error) {
	newRules, toRev, err := Load(ctx, src, to)
	if err != nil {
		return nil, err
	}
	if from == 0 {
		from = toRev - 1
	}
	if from < 1 {
		return nil, fmt.Errorf("revision %d has no earlier revision to compare with", toRev)
	}
	oldRules, fromRev, err := Load(ctx, src, from)
	if err != nil {
		return nil, err
	}
	d := Diff(oldRules, newRules)
	d.RevFrom = fromRev
	d.RevTo = toRev
	return d, nil
}

// Diff compares two rule sets by rule name. Only the first rule of a
// duplicated name takes part, as only it ever owns a group.
func Diff(oldRules, newRules []types.Rule) *DiffResult {
	oldByName := firstByName(oldRules)
	newByName := firstByName(newRules)
	d := &DiffResult{}

	for _, r := range uniq(newRules) {
		o, ok := oldByName[r.Name]
		if !ok {
			d.Added = append(d.Added, r)
			continue
		}
		if o.Colour != r.Colour || !slices.Equal(o.URLs, r.URLs) {
			d.Changed = append(d.Changed, Change{Name: r.Name, Old: o, New: r})
		}
	}
	for _, r := range uniq(oldRules) {
		if _, ok := newByName[r.Name]; !ok {
			d.Removed = append(d.Removed, r)
		}
	}

	var keptOld, keptNew []string
	for _, r := range uniq(oldRules) {
		if _, ok := newByName[r.Name]; ok {
			keptOld = append(keptOld, r.Name)
		}
	}
	for _, r := range uniq(newRules) {
		if _, ok := oldByName[r.Name]; ok {
			keptNew = append(keptNew, r.Name)
		}
	}
	d.Reordered = !slices.Equal(keptOld, keptNew)
	return d
}

// Saver persists a rule set. rules.Store satisfies it.
type Saver interface {
	Save(ctx context.Context, rs []types.Rule) error
}

// Revert makes revision rev current again by saving it as a new revision.
// It returns the change relative to the rule set it replaced.
func Revert(ctx context.Context, src Revisions, store Saver, rev int) (*DiffResult, error) {
	target, rev, err := Load(ctx, src, rev)
	if err != nil {
		return nil, err
	}
	current, curRev, err := Load(ctx, src, 0)
	if err != nil {
		return nil, err
	}
	d := Diff(current, target)
	d.RevFrom = curRev
	d.RevTo = rev
	if d.Empty() {
		return d, nil
	}
	if err := store.Save(ctx, target); err != nil {
		return nil, err
	}
	return d, nil
}

func firstByName(rs []types.Rule) map[string]types.Rule {
	m := make(map[string]types.Rule, len(rs))
	for _, r := range rs {
		if _, ok := m[r.Name]; !ok {
			m[r.Name] = r
		}
	}
	return m
}

func uniq(rs []types.Rule) []types.Rule {
	seen := make(map[string]bool, len(rs))
	var out []types.Rule
	for _, r := range rs {
		if seen[r.Name] {
			continue
		}
		seen[r.Name] = true
		out = append(out, r)
	}
	return out
}

func names(rs []types.Rule) []string {
	out := make([]string, len(rs))
	for i, r := range rs {
		out[i] = r.Name
	}
	return out
}

// FormatList renders revision entries, newest first.
func FormatList(entries []Entry) string {
	if len(entries) == 0 {
		return "No revisions recorded.\n"
	}
	var sb strings.Builder
	for _, e := range entries {
		ts := e.CreatedAt.Local().Format("2006-01-02 15:04")
		if e.Err != nil {
			fmt.Fprintf(&sb, "  #%-4d %s  (unreadable: %v)\n", e.Rev, ts, e.Err)
			continue
		}
		fmt.Fprintf(&sb, "  #%-4d %s  %d rules: %s\n", e.Rev, ts, len(e.Names), strings.Join(e.Names, ", "))
	}
	return sb.String()
}

// FormatDiff returns a human-readable string representation of a DiffResult.
func FormatDiff(d *DiffResult) string {
	var sb strings.Builder

	if d.RevFrom > 0 || d.RevTo > 0 {
		fmt.Fprintf(&sb, "Rules #%d -> #%d\n", d.RevFrom, d.RevTo)
	}
	fmt.Fprintf(&sb, "Added: %d  Removed: %d  Changed: %d\n", len(d.Added), len(d.Removed), len(d.Changed))

	if len(d.Added) > 0 {
		sb.WriteString("\n+ Added:\n")
		for _, r := range d.Added {
			fmt.Fprintf(&sb, "  + %s [%s] %s\n", r.Name, r.Colour, strings.Join(r.URLs, ", "))
		}
	}

	if len(d.Removed) > 0 {
		sb.WriteString("\n- Removed:\n")
		for _, r := range d.Removed {
			fmt.Fprintf(&sb, "  - %s [%s] %s\n", r.Name, r.Colour, strings.Join(r.URLs, ", "))
		}
	}

	if len(d.Changed) > 0 {
		sb.WriteString("\n~ Changed:\n")
		for _, c := range d.Changed {
			fmt.Fprintf(&sb, "  ~ %s\n", c.Name)
			if c.Old.Colour != c.New.Colour {
				fmt.Fprintf(&sb, "      colour: %s -> %s\n", c.Old.Colour, c.New.Colour)
			}
			if !slices.Equal(c.Old.URLs, c.New.URLs) {
				fmt.Fprintf(&sb, "      urls:   %s -> %s\n", strings.Join(c.Old.URLs, ", "), strings.Join(c.New.URLs, ", "))
			}
		}
	}

	if d.Reordered {
		sb.WriteString("\nRule order changed.\n")
	}

	if d.Empty() {
		sb.WriteString("\nNo changes.\n")
	}

	return sb.String()
}
