package signal

import "strings"

const maxRoomIDLen = 64

// NormalizeRoomID ensures consistent formatting (lowercase, trimmed).
// Room ids name physical screens in a deployment ("pid1", "dockclerk"), so
// casing differences from hand-typed URLs must not split a room in two.
func NormalizeRoomID(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}

// ValidateRoomID checks that a room id is usable as a routing key.
func ValidateRoomID(id string) bool {
	if id == "" || len(id) > maxRoomIDLen {
		return false
	}
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= '0' && r <= '9':
		case r == '-':
		default:
			return false
		}
	}
	return true
}
