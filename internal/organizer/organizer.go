// Package organizer places tabs into the groups their rules name and keeps
// each window's groups contiguous and in rule order.
//
// The browser is the only source of truth. Nothing is cached between calls:
// every operation reloads the rule set and re-queries tabs and groups before
// each step that depends on them. Host calls can fail at any time, most often
// because the user closed a tab mid-operation; a failed step is logged and
// the enclosing operation stops there. The next event or normalization pass
// repairs whatever was left half done.
package organizer

import (
	"context"
	"errors"

	"github.com/lotas/tabgruppen/internal/applog"
	"github.com/lotas/tabgruppen/internal/types"
)

// Host is the set of browser tab and tab-group primitives the organizer
// drives. server.Server implements it over the extension connection.
type Host interface {
	QueryTabs(ctx context.Context, q types.TabQuery) ([]*types.Tab, error)
	QueryGroups(ctx context.Context, q types.GroupQuery) ([]*types.TabGroup, error)
	// Group adds tabs to groupID, or creates a group in windowID when groupID
	// is types.GroupNone, and returns the resulting group id.
	Group(ctx context.Context, tabIDs []int, groupID, windowID int) (int, error)
	Ungroup(ctx context.Context, tabID int) error
	UpdateGroup(ctx context.Context, groupID int, u types.GroupUpdate) error
	MoveTab(ctx context.Context, tabID, index int) error
	MoveGroup(ctx context.Context, groupID, index int) error
	RemoveGroup(ctx context.Context, groupID int) error
}

// RuleSource provides the current rule set. rules.Store implements it.
type RuleSource interface {
	Load(ctx context.Context) []types.Rule
}

// Organizer applies the rule set to browser tabs.
type Organizer struct {
	rules RuleSource
	host  Host
}

// New returns an Organizer.
func New(rules RuleSource, host Host) *Organizer {
	return &Organizer{rules: rules, host: host}
}

// step runs one host call. On failure it logs op with the bound context and
// returns false; the caller abandons the rest of its operation. Failures
// caused by a vanished tab or group are expected and logged at INFO.
func step(log applog.Logger, op string, fn func() error) bool {
	err := fn()
	if err == nil {
		return true
	}
	if errors.Is(err, types.ErrGone) || errors.Is(err, context.Canceled) {
		log.Info(op, "err", err)
	} else {
		log.Error(op, err)
	}
	return false
}

// lastGroupedIndex returns the highest index of a grouped tab, or -1.
func lastGroupedIndex(tabs []*types.Tab) int {
	max := -1
	for _, t := range tabs {
		if t.Grouped() && t.Index > max {
			max = t.Index
		}
	}
	return max
}
