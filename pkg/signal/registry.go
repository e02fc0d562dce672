package signal

import (
	"log/slog"
	"sync"
)

// expectedRoomMembers is the nominal room cardinality: one controller and
// one viewer. Rooms can grow beyond this (see Registry.Join) but doing so
// is flagged as anomalous.
const expectedRoomMembers = 2

// Member is a connection handle registered in a room. Send must not block;
// it returns false when the member's queue is full and the message was
// dropped.
type Member interface {
	ID() string
	Send(msg Message) bool
}

// Registry maps room ids to their current members. A member belongs to at
// most one room at a time: joining a new room implicitly leaves the old one,
// which prevents stale cross-room delivery after a controller restarts a
// session.
type Registry struct {
	mu        sync.Mutex
	rooms     map[string]map[Member]struct{}
	byMember  map[Member]string
	anomalies uint64
	log       *slog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(log *slog.Logger) *Registry {
	if log == nil {
		log = slog.Default()
	}
	return &Registry{
		rooms:    make(map[string]map[Member]struct{}),
		byMember: make(map[Member]string),
		log:      log,
	}
}

// Join registers m under room, creating the room if needed. Joining never
// fails: a third member is accepted and served, but counted and logged so
// the condition is visible operationally.
func (r *Registry) Join(room string, m Member) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, ok := r.byMember[m]; ok {
		if prev == room {
			return
		}
		r.leaveLocked(prev, m)
	}

	members, ok := r.rooms[room]
	if !ok {
		members = make(map[Member]struct{}, expectedRoomMembers)
		r.rooms[room] = members
	}
	members[m] = struct{}{}
	r.byMember[m] = room

	if len(members) > expectedRoomMembers {
		r.anomalies++
		r.log.Warn("room over expected capacity",
			"room", room, "members", len(members), "member", m.ID())
	} else {
		r.log.Debug("member joined room", "room", room, "member", m.ID())
	}
}

// Leave removes m from whatever room it is in. Empty rooms are deleted.
func (r *Registry) Leave(m Member) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if room, ok := r.byMember[m]; ok {
		r.leaveLocked(room, m)
	}
}

func (r *Registry) leaveLocked(room string, m Member) {
	delete(r.byMember, m)
	members, ok := r.rooms[room]
	if !ok {
		return
	}
	delete(members, m)
	if len(members) == 0 {
		delete(r.rooms, room)
	}
}

// PeersOf returns every current member of room other than m.
func (r *Registry) PeersOf(room string, m Member) []Member {
	r.mu.Lock()
	defer r.mu.Unlock()

	members, ok := r.rooms[room]
	if !ok {
		return nil
	}
	peers := make([]Member, 0, len(members))
	for other := range members {
		if other != m {
			peers = append(peers, other)
		}
	}
	return peers
}

// RoomOf returns the room m is currently joined to, if any.
func (r *Registry) RoomOf(m Member) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	room, ok := r.byMember[m]
	return room, ok
}

// RoomCount returns the number of live rooms.
func (r *Registry) RoomCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rooms)
}

// Anomalies returns how many joins pushed a room past its expected
// cardinality since startup.
func (r *Registry) Anomalies() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.anomalies
}
