// Package firefox reads tabs and tab groups from a Firefox profile's
// session store, for previewing the rule set without a connected browser.
package firefox

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/lotas/tabgruppen/internal/types"
	"github.com/pierrec/lz4/v4"
)

var mozLz4Magic = []byte("mozLz40\x00")

// sessionFiles are tried in order: the running session, then the last one.
var sessionFiles = []string{"recovery.jsonlz4", "previous.jsonlz4"}

// DecompressMozLz4 decodes Mozilla's mozlz4 container: the 8-byte magic,
// a little-endian uint32 holding the decoded size, then one raw lz4 block.
func DecompressMozLz4(data []byte) ([]byte, error) {
	const headerSize = 12

	if len(data) < headerSize {
		return nil, fmt.Errorf("mozlz4: data too short (%d bytes)", len(data))
	}
	if !bytes.Equal(data[:len(mozLz4Magic)], mozLz4Magic) {
		return nil, fmt.Errorf("mozlz4: invalid header magic")
	}

	size := binary.LittleEndian.Uint32(data[8:headerSize])
	dst := make([]byte, size)
	n, err := lz4.UncompressBlock(data[headerSize:], dst)
	if err != nil {
		return nil, fmt.Errorf("mozlz4: decompress failed: %w", err)
	}
	return dst[:n], nil
}

type rawEntry struct {
	URL   string `json:"url"`
	Title string `json:"title"`
}

type rawTab struct {
	Entries      []rawEntry `json:"entries"`
	Index        int        `json:"index"`
	LastAccessed int64      `json:"lastAccessed"`
	Pinned       bool       `json:"pinned"`
	Hidden       bool       `json:"hidden"`
	Group        string     `json:"groupId"`
}

type rawGroup struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Color     string `json:"color"`
	Collapsed bool   `json:"collapsed"`
}

type rawWindow struct {
	Tabs   []rawTab   `json:"tabs"`
	Groups []rawGroup `json:"groups"`
}

type rawSession struct {
	Windows []rawWindow `json:"windows"`
}

// ParseSession decodes session store JSON. Windows are numbered from 1 in
// file order and Firefox's string group ids are replaced by small integers,
// so the result has the same shape as a live query. Hidden tabs are
// skipped. Tabs of every window are returned in strip order.
func ParseSession(data []byte) (*types.SessionData, error) {
	var raw rawSession
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse session JSON: %w", err)
	}

	sd := &types.SessionData{ParsedAt: time.Now()}
	nextGroup := 1

	for winIdx, window := range raw.Windows {
		windowID := winIdx + 1
		groups := make(map[string]*types.TabGroup, len(window.Groups))
		for _, rg := range window.Groups {
			g := &types.TabGroup{
				ID:        nextGroup,
				Title:     rg.Name,
				Color:     rg.Color,
				Collapsed: rg.Collapsed,
				WindowID:  windowID,
			}
			nextGroup++
			groups[rg.ID] = g
			sd.Groups = append(sd.Groups, g)
		}

		index := 0
		for _, rt := range window.Tabs {
			if len(rt.Entries) == 0 || rt.Hidden {
				continue
			}
			// index is 1-based; the current page is entries[index-1].
			entryIdx := rt.Index - 1
			if entryIdx < 0 || entryIdx >= len(rt.Entries) {
				entryIdx = len(rt.Entries) - 1
			}
			entry := rt.Entries[entryIdx]

			tab := &types.Tab{
				ID:       len(sd.AllTabs) + 1,
				URL:      entry.URL,
				Title:    entry.Title,
				Pinned:   rt.Pinned,
				WindowID: windowID,
				GroupID:  types.GroupNone,
				Index:    index,
				Status:   "complete",
			}
			if rt.LastAccessed > 0 {
				tab.LastAccessed = time.UnixMilli(rt.LastAccessed)
			}
			// A group referenced but not defined leaves the tab ungrouped.
			if g, ok := groups[rt.Group]; ok && rt.Group != "" {
				tab.GroupID = g.ID
				g.Tabs = append(g.Tabs, tab)
			}
			sd.AllTabs = append(sd.AllTabs, tab)
			index++
		}
	}

	return sd, nil
}

// ReadSessionFile reads the session store of the profile in profileDir.
func ReadSessionFile(profileDir string) (*types.SessionData, error) {
	backupDir := filepath.Join(profileDir, "sessionstore-backups")
	var data []byte
	var err error
	for _, name := range sessionFiles {
		data, err = os.ReadFile(filepath.Join(backupDir, name))
		if err == nil {
			break
		}
	}
	if err != nil {
		return nil, fmt.Errorf("no session file found in %s", backupDir)
	}

	decompressed, err := DecompressMozLz4(data)
	if err != nil {
		return nil, fmt.Errorf("decompress session file: %w", err)
	}
	return ParseSession(decompressed)
}
