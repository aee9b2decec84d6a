package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// RoomPrefix is shared by every client and server deriving a team room key.
const RoomPrefix = "teamChat-"

type TeamID int

// RoomID is the broadcast group key of one team, always built with RoomKey.
type RoomID string

// RoomKey derives the room identifier of a team.
// Clients reproduce the same concatenation, so the format must never change.
func RoomKey(teamID TeamID) RoomID {
	return RoomID(RoomPrefix + strconv.Itoa(int(teamID)))
}

// ParseRoomKey is the inverse of RoomKey.
func ParseRoomKey(room RoomID) (TeamID, error) {
	raw, ok := strings.CutPrefix(string(room), RoomPrefix)
	if !ok {
		return 0, fmt.Errorf("room %q has no %q prefix", room, RoomPrefix)
	}
	return ParseTeamID(raw)
}

// ParseTeamID accepts a bare team number or a full room key.
func ParseTeamID(raw string) (TeamID, error) {
	raw = strings.TrimSpace(raw)
	if rest, ok := strings.CutPrefix(raw, RoomPrefix); ok {
		raw = rest
	}
	id, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid team id %q: %w", raw, err)
	}
	if id <= 0 {
		return 0, fmt.Errorf("invalid team id %d: must be positive", id)
	}
	return TeamID(id), nil
}
