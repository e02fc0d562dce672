package signal

// Wire message types. The relay only ever inspects Type and Room; SDP and
// candidate payloads pass through opaque and unmodified.
const (
	// Client -> server.
	TypeJoinRoom  = "join-room"
	TypeOffer     = "offer"
	TypeAnswer    = "answer"
	TypeCandidate = "candidate"
	TypeStopShare = "stop-screenshare"

	// Server -> client.
	TypeJoined     = "joined"
	TypePeerJoined = "peer-joined"
	TypePeerLeft   = "peer-left"
	TypeError      = "error"
)

// Message represents a signaling message exchanged over the relay.
// It is kept flat so browser viewers can produce and consume it directly.
type Message struct {
	Type      string `json:"type"`                // message type tag
	Room      string `json:"room,omitempty"`      // target room id
	SDP       string `json:"sdp,omitempty"`       // opaque session description
	Candidate string `json:"candidate,omitempty"` // opaque ICE candidate (JSON)
	Error     string `json:"error,omitempty"`     // error message
}

// IsSignal reports whether the message is peer-to-peer signaling traffic
// that the relay should fan out to the other room members.
func (m Message) IsSignal() bool {
	switch m.Type {
	case TypeOffer, TypeAnswer, TypeCandidate, TypeStopShare:
		return true
	}
	return false
}
