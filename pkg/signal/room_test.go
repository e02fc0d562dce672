package signal

import "testing"

func TestNormalizeRoomID(t *testing.T) {
	cases := map[string]string{
		"PID1":         "pid1",
		"  dockclerk ": "dockclerk",
		"Outbound":     "outbound",
	}
	for in, want := range cases {
		if got := NormalizeRoomID(in); got != want {
			t.Errorf("NormalizeRoomID(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestValidateRoomID(t *testing.T) {
	valid := []string{"pid1", "outbound", "dock-clerk", "a1-b2"}
	for _, id := range valid {
		if !ValidateRoomID(id) {
			t.Errorf("ValidateRoomID(%q) = false, want true", id)
		}
	}

	invalid := []string{"", "has space", "UPPER", "emoji🙂", string(make([]byte, 65))}
	for _, id := range invalid {
		if ValidateRoomID(id) {
			t.Errorf("ValidateRoomID(%q) = true, want false", id)
		}
	}
}
