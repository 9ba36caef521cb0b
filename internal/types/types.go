package types

import (
	"errors"
	"time"
)

// ErrGone marks a host call that failed because its tab or group no longer
// exists, usually because it was closed mid-operation.
var ErrGone = errors.New("tab or group no longer exists")

// GroupNone is the group id of a tab that is not in any group.
const GroupNone = -1

// WindowAny matches tabs and groups in every window when used in a query.
const WindowAny = 0

// Rule maps URL fragments to a named, coloured tab group.
type Rule struct {
	Name   string   `json:"name" yaml:"name"`
	URLs   []string `json:"urls" yaml:"urls"`
	Colour string   `json:"colour" yaml:"colour"`
}

// Colours understood by the browser's tab group API.
var Colours = []string{"grey", "blue", "red", "yellow", "green", "pink", "purple", "cyan", "orange"}

// ValidColour reports whether c is one of Colours.
func ValidColour(c string) bool {
	for _, v := range Colours {
		if v == c {
			return true
		}
	}
	return false
}

// Tab represents a single browser tab.
type Tab struct {
	ID           int
	URL          string
	Title        string
	Pinned       bool
	WindowID     int
	GroupID      int // GroupNone if ungrouped
	Index        int
	Status       string // "loading" or "complete" in live mode
	LastAccessed time.Time
}

// Grouped reports whether the tab belongs to a group.
func (t *Tab) Grouped() bool {
	return t.GroupID != GroupNone
}

// TabGroup represents a browser tab group.
type TabGroup struct {
	ID        int
	Title     string
	Color     string
	Collapsed bool
	WindowID  int
	Tabs      []*Tab // only populated by offline session parsing
}

// TabQuery filters tabs. Zero values match everything.
type TabQuery struct {
	WindowID int
	Pinned   *bool
	GroupID  *int
}

// GroupQuery filters tab groups. Zero values match everything.
type GroupQuery struct {
	Title    string
	WindowID int
}

// GroupUpdate changes group properties. Nil fields are left as they are.
type GroupUpdate struct {
	Title     *string
	Color     *string
	Collapsed *bool
}

// Profile represents a Firefox profile.
type Profile struct {
	Name       string
	Path       string // absolute path to profile directory
	IsDefault  bool
	IsRelative bool
}

// SessionData holds tabs and groups read from a Firefox session file.
type SessionData struct {
	Groups   []*TabGroup
	AllTabs  []*Tab
	Profile  Profile
	ParsedAt time.Time
}

// Bool returns a pointer to b, for query and update fields.
func Bool(b bool) *bool { return &b }

// Int returns a pointer to i.
func Int(i int) *int { return &i }

// String returns a pointer to s.
func String(s string) *string { return &s }
