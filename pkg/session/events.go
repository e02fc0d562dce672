package session

import (
	"github.com/pion/webrtc/v3"

	"github.com/warehouselabs/dockcast/pkg/capture"
)

// Session input events. All state transitions happen in reaction to exactly
// one of these, applied one at a time by the session's run loop.
type event interface {
	isEvent()
}

// confirmEvent starts sharing to the configured room.
type confirmEvent struct{}

// answerEvent carries a remote session description from the viewer.
type answerEvent struct {
	sdp string
}

// candidateEvent carries a remote ICE candidate (opaque JSON).
type candidateEvent struct {
	candidate string
}

// connStateEvent reports a peer connection state change. gen identifies the
// connection generation that produced it so callbacks from an already
// torn-down connection are ignored.
type connStateEvent struct {
	gen   int
	state webrtc.PeerConnectionState
}

// iceStateEvent reports an ICE connection state change.
type iceStateEvent struct {
	gen   int
	state webrtc.ICEConnectionState
}

// retryEvent fires when a scheduled recovery delay elapses. seq guards
// against stale timers firing after the session moved on.
type retryEvent struct {
	seq int
}

// streamEndedEvent reports that the capture stream stopped delivering.
type streamEndedEvent struct {
	stream *capture.Stream
}

// stopEvent requests explicit teardown; ack is closed once resources are
// released.
type stopEvent struct {
	ack chan struct{}
}

func (confirmEvent) isEvent()     {}
func (answerEvent) isEvent()      {}
func (candidateEvent) isEvent()   {}
func (connStateEvent) isEvent()   {}
func (iceStateEvent) isEvent()    {}
func (retryEvent) isEvent()       {}
func (streamEndedEvent) isEvent() {}
func (stopEvent) isEvent()        {}
