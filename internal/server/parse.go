package server

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/lotas/tabgruppen/internal/types"
)

type wireTab struct {
	ID           int    `json:"id"`
	URL          string `json:"url"`
	Title        string `json:"title"`
	Pinned       bool   `json:"pinned"`
	LastAccessed int64  `json:"lastAccessed"`
	GroupID      *int   `json:"groupId"`
	WindowID     int    `json:"windowId"`
	Index        int    `json:"index"`
	Status       string `json:"status"`
}

type wireGroup struct {
	ID        int    `json:"id"`
	Title     string `json:"title"`
	Color     string `json:"color"`
	Collapsed bool   `json:"collapsed"`
	WindowID  int    `json:"windowId"`
}

func (wt wireTab) toTab() *types.Tab {
	tab := &types.Tab{
		ID:       wt.ID,
		URL:      wt.URL,
		Title:    wt.Title,
		Pinned:   wt.Pinned,
		WindowID: wt.WindowID,
		GroupID:  types.GroupNone,
		Index:    wt.Index,
		Status:   wt.Status,
	}
	// Browsers without tab group support omit groupId.
	if wt.GroupID != nil {
		tab.GroupID = *wt.GroupID
	}
	if wt.LastAccessed > 0 {
		tab.LastAccessed = time.UnixMilli(wt.LastAccessed)
	}
	return tab
}

// ParseTab converts a raw JSON tab into a Tab.
func ParseTab(raw json.RawMessage) (*types.Tab, error) {
	var wt wireTab
	if err := json.Unmarshal(raw, &wt); err != nil {
		return nil, fmt.Errorf("parse tab: %w", err)
	}
	return wt.toTab(), nil
}

// ParseTabs converts a raw JSON array of tabs. An empty message yields no tabs.
func ParseTabs(raw json.RawMessage) ([]*types.Tab, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var wts []wireTab
	if err := json.Unmarshal(raw, &wts); err != nil {
		return nil, fmt.Errorf("parse tabs: %w", err)
	}
	tabs := make([]*types.Tab, 0, len(wts))
	for _, wt := range wts {
		tabs = append(tabs, wt.toTab())
	}
	return tabs, nil
}

// ParseGroups converts a raw JSON array of tab groups.
func ParseGroups(raw json.RawMessage) ([]*types.TabGroup, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var wgs []wireGroup
	if err := json.Unmarshal(raw, &wgs); err != nil {
		return nil, fmt.Errorf("parse groups: %w", err)
	}
	groups := make([]*types.TabGroup, 0, len(wgs))
	for _, g := range wgs {
		groups = append(groups, &types.TabGroup{
			ID:        g.ID,
			Title:     g.Title,
			Color:     g.Color,
			Collapsed: g.Collapsed,
			WindowID:  g.WindowID,
		})
	}
	return groups, nil
}
