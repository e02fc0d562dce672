package signal

import (
	"sync"
	"testing"
)

// fakeMember is a Member backed by a slice.
type fakeMember struct {
	id   string
	mu   sync.Mutex
	msgs []Message
	full bool
}

func (f *fakeMember) ID() string { return f.id }

func (f *fakeMember) Send(msg Message) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.full {
		return false
	}
	f.msgs = append(f.msgs, msg)
	return true
}

func (f *fakeMember) received() []Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Message, len(f.msgs))
	copy(out, f.msgs)
	return out
}

func TestPeersOfExcludesSelf(t *testing.T) {
	reg := NewRegistry(nil)
	a := &fakeMember{id: "a"}
	b := &fakeMember{id: "b"}

	reg.Join("pid1", a)
	reg.Join("pid1", b)

	peers := reg.PeersOf("pid1", a)
	if len(peers) != 1 || peers[0] != b {
		t.Fatalf("expected exactly [b], got %d peers", len(peers))
	}
}

func TestLeaveRemovesMemberAndEmptyRoom(t *testing.T) {
	reg := NewRegistry(nil)
	a := &fakeMember{id: "a"}
	b := &fakeMember{id: "b"}

	reg.Join("pid1", a)
	reg.Join("pid1", b)
	reg.Leave(b)

	for _, p := range reg.PeersOf("pid1", a) {
		if p == b {
			t.Fatal("left member still returned by PeersOf")
		}
	}

	reg.Leave(a)
	if n := reg.RoomCount(); n != 0 {
		t.Fatalf("empty room not deleted, %d rooms remain", n)
	}
}

func TestJoinImplicitlyLeavesPriorRoom(t *testing.T) {
	reg := NewRegistry(nil)
	a := &fakeMember{id: "a"}
	b := &fakeMember{id: "b"}

	reg.Join("pid1", a)
	reg.Join("pid1", b)
	reg.Join("pid2", a)

	if peers := reg.PeersOf("pid1", b); len(peers) != 0 {
		t.Fatalf("member still in old room after joining new one: %d peers", len(peers))
	}
	if room, ok := reg.RoomOf(a); !ok || room != "pid2" {
		t.Fatalf("RoomOf = %q, %v; want pid2, true", room, ok)
	}
}

func TestRejoinSameRoomIsNoop(t *testing.T) {
	reg := NewRegistry(nil)
	a := &fakeMember{id: "a"}
	b := &fakeMember{id: "b"}

	reg.Join("pid1", a)
	reg.Join("pid1", b)
	reg.Join("pid1", a)

	if peers := reg.PeersOf("pid1", b); len(peers) != 1 {
		t.Fatalf("expected 1 peer after rejoin, got %d", len(peers))
	}
	if got := reg.Anomalies(); got != 0 {
		t.Fatalf("rejoin counted as anomaly: %d", got)
	}
}

func TestThirdJoinerToleratedButCounted(t *testing.T) {
	reg := NewRegistry(nil)
	a := &fakeMember{id: "a"}
	b := &fakeMember{id: "b"}
	c := &fakeMember{id: "c"}

	reg.Join("pid1", a)
	reg.Join("pid1", b)
	reg.Join("pid1", c)

	if got := reg.Anomalies(); got != 1 {
		t.Fatalf("Anomalies = %d, want 1", got)
	}
	// The third member is still a full participant.
	if peers := reg.PeersOf("pid1", a); len(peers) != 2 {
		t.Fatalf("expected third joiner among peers, got %d", len(peers))
	}
}

func TestConcurrentJoinLeave(t *testing.T) {
	reg := NewRegistry(nil)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			m := &fakeMember{id: string(rune('a' + n%26))}
			reg.Join("pid1", m)
			reg.PeersOf("pid1", m)
			reg.Leave(m)
		}(i)
	}
	wg.Wait()

	if n := reg.RoomCount(); n != 0 {
		t.Fatalf("rooms leaked after concurrent churn: %d", n)
	}
}
