package signal

import "testing"

func newTestRelay() (*Relay, *Registry) {
	reg := NewRegistry(nil)
	return NewRelay(reg, nil), reg
}

func TestRouteEmptyRoomIsSilentDrop(t *testing.T) {
	relay, reg := newTestRelay()
	a := &fakeMember{id: "a"}
	reg.Join("pid1", a)

	// Controller offering to an empty room is a legitimate setup race.
	relay.Route(a, Message{Type: TypeOffer, Room: "pid1", SDP: "v=0"})

	if got := a.received(); len(got) != 0 {
		t.Fatalf("sender received its own message: %v", got)
	}
}

func TestRouteDeliversOnlyToOtherMember(t *testing.T) {
	relay, reg := newTestRelay()
	a := &fakeMember{id: "a"}
	b := &fakeMember{id: "b"}
	reg.Join("pid1", a)
	reg.Join("pid1", b)

	relay.Route(a, Message{Type: TypeOffer, Room: "pid1", SDP: "v=0"})

	if got := b.received(); len(got) != 1 || got[0].SDP != "v=0" {
		t.Fatalf("peer delivery wrong: %v", got)
	}
	if got := a.received(); len(got) != 0 {
		t.Fatalf("sender should not receive its own message: %v", got)
	}
}

func TestRoutePreservesPerSenderOrder(t *testing.T) {
	relay, reg := newTestRelay()
	a := &fakeMember{id: "a"}
	b := &fakeMember{id: "b"}
	reg.Join("pid1", a)
	reg.Join("pid1", b)

	relay.Route(a, Message{Type: TypeOffer, Room: "pid1", SDP: "first"})
	relay.Route(a, Message{Type: TypeCandidate, Room: "pid1", Candidate: "second"})

	got := b.received()
	if len(got) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(got))
	}
	if got[0].SDP != "first" || got[1].Candidate != "second" {
		t.Fatalf("order violated: %v", got)
	}
}

func TestRouteMessageForwardedVerbatim(t *testing.T) {
	relay, reg := newTestRelay()
	a := &fakeMember{id: "a"}
	b := &fakeMember{id: "b"}
	reg.Join("pid1", a)
	reg.Join("pid1", b)

	in := Message{Type: TypeCandidate, Room: "pid1", Candidate: `{"candidate":"foo","sdpMid":"0"}`}
	relay.Route(a, in)

	if got := b.received()[0]; got != in {
		t.Fatalf("message modified in flight: %+v != %+v", got, in)
	}
}

func TestRouteReachesAllExcessMembers(t *testing.T) {
	relay, reg := newTestRelay()
	a := &fakeMember{id: "a"}
	b := &fakeMember{id: "b"}
	c := &fakeMember{id: "c"}
	reg.Join("pid1", a)
	reg.Join("pid1", b)
	reg.Join("pid1", c)

	relay.Route(a, Message{Type: TypeOffer, Room: "pid1", SDP: "v=0"})

	if len(b.received()) != 1 || len(c.received()) != 1 {
		t.Fatal("anomalous third member missed a broadcast")
	}
}

func TestRouteSurvivesFullPeerQueue(t *testing.T) {
	relay, reg := newTestRelay()
	a := &fakeMember{id: "a"}
	b := &fakeMember{id: "b", full: true}
	reg.Join("pid1", a)
	reg.Join("pid1", b)

	// Must not panic or block; drop is logged.
	relay.Route(a, Message{Type: TypeOffer, Room: "pid1"})
}
