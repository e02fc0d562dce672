package signal

import "log/slog"

// Relay routes signaling messages between the members of a room. It has no
// understanding of message semantics beyond "deliver to the other members
// of this room": payloads are forwarded verbatim, which keeps the relay
// decoupled from SDP and ICE format evolution.
type Relay struct {
	reg *Registry
	log *slog.Logger
}

// NewRelay creates a relay over the given registry.
func NewRelay(reg *Registry, log *slog.Logger) *Relay {
	if log == nil {
		log = slog.Default()
	}
	return &Relay{reg: reg, log: log}
}

// Route forwards msg to every member of msg.Room except the sender,
// preserving per-sender order (Route is called from the sender's single
// read loop and each receiver drains a FIFO queue). A room with no other
// members is not an error: a controller offering to an empty room is a
// legitimate race during setup, so the message is silently dropped.
func (rl *Relay) Route(sender Member, msg Message) {
	peers := rl.reg.PeersOf(msg.Room, sender)
	if len(peers) == 0 {
		rl.log.Debug("no peers in room, dropping message",
			"room", msg.Room, "type", msg.Type)
		return
	}
	for _, p := range peers {
		if !p.Send(msg) {
			rl.log.Warn("peer send queue full, message dropped",
				"room", msg.Room, "type", msg.Type, "peer", p.ID())
		}
	}
}
