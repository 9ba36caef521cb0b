package server

import (
	"context"
	"fmt"

	"github.com/lotas/tabgruppen/internal/types"
)

// The methods below implement organizer.Host over the extension connection.
// Each one is a single command round trip.

func (s *Server) QueryTabs(ctx context.Context, q types.TabQuery) ([]*types.Tab, error) {
	resp, err := s.Call(ctx, OutgoingMsg{
		Action:   "queryTabs",
		WindowID: q.WindowID,
		Pinned:   q.Pinned,
		GroupID:  q.GroupID,
	})
	if err != nil {
		return nil, err
	}
	return ParseTabs(resp.Tabs)
}

func (s *Server) QueryGroups(ctx context.Context, q types.GroupQuery) ([]*types.TabGroup, error) {
	msg := OutgoingMsg{Action: "queryGroups", WindowID: q.WindowID}
	if q.Title != "" {
		msg.Title = types.String(q.Title)
	}
	resp, err := s.Call(ctx, msg)
	if err != nil {
		return nil, err
	}
	return ParseGroups(resp.Groups)
}

// Group adds tabs to groupID, or to a new group in windowID when groupID is
// types.GroupNone. It returns the id of the group the tabs ended up in.
func (s *Server) Group(ctx context.Context, tabIDs []int, groupID, windowID int) (int, error) {
	msg := OutgoingMsg{Action: "group", TabIDs: tabIDs, WindowID: windowID}
	if groupID != types.GroupNone {
		msg.GroupID = types.Int(groupID)
	}
	resp, err := s.Call(ctx, msg)
	if err != nil {
		return types.GroupNone, err
	}
	if resp.GroupID == 0 {
		return types.GroupNone, fmt.Errorf("group: extension returned no group id")
	}
	return resp.GroupID, nil
}

func (s *Server) Ungroup(ctx context.Context, tabID int) error {
	_, err := s.Call(ctx, OutgoingMsg{Action: "ungroup", TabID: tabID})
	return err
}

func (s *Server) UpdateGroup(ctx context.Context, groupID int, u types.GroupUpdate) error {
	_, err := s.Call(ctx, OutgoingMsg{
		Action:    "updateGroup",
		GroupID:   types.Int(groupID),
		Title:     u.Title,
		Color:     u.Color,
		Collapsed: u.Collapsed,
	})
	return err
}

// MoveTab moves a tab to index within its window; -1 means the end.
func (s *Server) MoveTab(ctx context.Context, tabID, index int) error {
	_, err := s.Call(ctx, OutgoingMsg{Action: "moveTab", TabID: tabID, Index: types.Int(index)})
	return err
}

// MoveGroup moves a whole group so that its first tab lands at index; -1
// means the end.
func (s *Server) MoveGroup(ctx context.Context, groupID, index int) error {
	_, err := s.Call(ctx, OutgoingMsg{Action: "moveGroup", GroupID: types.Int(groupID), Index: types.Int(index)})
	return err
}

func (s *Server) RemoveGroup(ctx context.Context, groupID int) error {
	_, err := s.Call(ctx, OutgoingMsg{Action: "removeGroup", GroupID: types.Int(groupID)})
	return err
}
