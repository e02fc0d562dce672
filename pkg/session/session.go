// Package session owns the connection lifecycle of one sharing attempt: the
// offer/answer/candidate exchange, connectivity monitoring, failure
// recovery, and teardown. Each session is driven by a single goroutine
// consuming tagged events, so no two transitions ever run concurrently.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/pion/webrtc/v3"

	"github.com/warehouselabs/dockcast/pkg/capture"
	"github.com/warehouselabs/dockcast/pkg/signal"
)

// State is the sharing lifecycle state.
type State int

const (
	StateIdle State = iota
	StateNegotiating
	StateLive
	StateRecovering
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateNegotiating:
		return "negotiating"
	case StateLive:
		return "live"
	case StateRecovering:
		return "recovering"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

var (
	// ErrRetriesExhausted is surfaced when a configured retry cap is hit.
	ErrRetriesExhausted = errors.New("session: retry attempts exhausted")
	// ErrSignaling wraps transport failures talking to the relay.
	ErrSignaling = errors.New("session: signaling failure")
)

// Signaler sends messages toward the other room member. signal.Client
// implements it.
type Signaler interface {
	Send(msg signal.Message) error
}

// Config holds per-session settings.
type Config struct {
	// Room is the screen this session shares to.
	Room string
	// RetryDelay is the pause before re-negotiating after a connection
	// failure. Defaults to 2s.
	RetryDelay time.Duration
	// MaxRetries caps recovery attempts; 0 means retry indefinitely.
	MaxRetries int
	Logger     *slog.Logger
}

// Update is pushed on the session's update channel whenever the state
// changes or a recoverable error is surfaced.
type Update struct {
	State State
	Err   error
}

// Session is one controller-side sharing attempt. All fields below the
// events channel are owned exclusively by the run loop.
type Session struct {
	cfg      Config
	signaler Signaler
	source   capture.Source
	newPeer  PeerFactory
	log      *slog.Logger

	ctx     context.Context
	cancel  context.CancelFunc
	events  chan event
	updates chan Update
	done    chan struct{}

	stateVal   atomic.Int32
	retriesVal atomic.Int64

	// Run-loop state.
	state      State
	desired    bool
	peer       Peer
	gen        int
	stream     *capture.Stream
	remoteSet  bool
	pending    []string
	retrySeq   int
	retryTimer *time.Timer
}

// New creates a session and starts its event loop. The session does nothing
// until Share is called.
func New(cfg Config, sig Signaler, source capture.Source, factory PeerFactory) *Session {
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 2 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		cfg:      cfg,
		signaler: sig,
		source:   source,
		newPeer:  factory,
		log:      cfg.Logger.With("room", cfg.Room),
		ctx:      ctx,
		cancel:   cancel,
		events:   make(chan event, 32),
		updates:  make(chan Update, 16),
		done:     make(chan struct{}),
	}
	go s.run()
	return s
}

// Share confirms the sharing target and kicks off negotiation.
func (s *Session) Share() {
	s.post(confirmEvent{})
}

// Stop tears the session down. It returns only after media tracks have been
// released and the peer connection closed (or the session was already
// terminated).
func (s *Session) Stop() {
	// Cancel first so a pending stream acquisition unblocks and the loop
	// gets to the stop event.
	s.cancel()
	ack := make(chan struct{})
	select {
	case s.events <- stopEvent{ack: ack}:
	case <-s.done:
		return
	}
	select {
	case <-ack:
	case <-s.done:
	}
}

// HandleSignal feeds a message from the relay into the session.
func (s *Session) HandleSignal(msg signal.Message) {
	switch msg.Type {
	case signal.TypeAnswer:
		s.post(answerEvent{sdp: msg.SDP})
	case signal.TypeCandidate:
		s.post(candidateEvent{candidate: msg.Candidate})
	}
}

// Updates returns the session's state change feed. Closed on termination.
func (s *Session) Updates() <-chan Update {
	return s.updates
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	return State(s.stateVal.Load())
}

// RetryCount returns how many recovery attempts have run.
func (s *Session) RetryCount() int {
	return int(s.retriesVal.Load())
}

// Room returns the sharing target.
func (s *Session) Room() string {
	return s.cfg.Room
}

func (s *Session) post(ev event) {
	select {
	case s.events <- ev:
	case <-s.done:
	}
}

func (s *Session) run() {
	defer close(s.done)
	defer close(s.updates)
	for s.state != StateTerminated {
		s.handle(<-s.events)
	}
}

func (s *Session) handle(ev event) {
	switch ev := ev.(type) {
	case confirmEvent:
		if s.state != StateIdle {
			s.log.Warn("share requested outside idle", "state", s.state)
			return
		}
		s.desired = true
		s.negotiate(false)

	case answerEvent:
		s.handleAnswer(ev.sdp)

	case candidateEvent:
		s.handleCandidate(ev.candidate)

	case connStateEvent:
		if ev.gen != s.gen {
			return
		}
		s.handleConnState(ev.state)

	case iceStateEvent:
		if ev.gen != s.gen {
			return
		}
		if ev.state == webrtc.ICEConnectionStateFailed && s.state == StateRecovering {
			s.restartICE()
		}

	case retryEvent:
		s.handleRetry(ev.seq)

	case streamEndedEvent:
		// Only the live stream counts; a stream we already released fires
		// its ended signal too.
		if ev.stream != s.stream {
			return
		}
		s.log.Info("stream ended by source")
		s.terminate(nil)

	case stopEvent:
		s.terminate(nil)
		close(ev.ack)
	}
}

// negotiate runs the full Idle -> Negotiating action: acquire media if
// needed, build a peer connection, wire its observers, and send the offer.
// On failure the session returns to Idle (or stays Recovering on a
// signaling failure mid-recovery) so the user can retry.
func (s *Session) negotiate(isRetry bool) {
	s.teardownPeer()

	if s.stream == nil {
		stream, err := s.source.Acquire(s.ctx)
		if err != nil {
			s.toIdle(fmt.Errorf("stream acquisition failed: %w", err))
			return
		}
		s.stream = stream
		go s.watchStream(stream)
	}

	peer, err := s.newPeer()
	if err != nil {
		s.releaseStream()
		s.toIdle(fmt.Errorf("peer connection init failed: %w", err))
		return
	}
	s.peer = peer
	s.remoteSet = false
	// Candidates that arrived before this connection existed stay buffered:
	// they belong to this negotiation and apply once the answer lands. Only
	// teardownPeer clears the buffer, where the candidates are stale.

	gen := s.gen
	room := s.cfg.Room
	peer.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		payload, err := json.Marshal(c.ToJSON())
		if err != nil {
			return
		}
		if err := s.signaler.Send(signal.Message{
			Type:      signal.TypeCandidate,
			Room:      room,
			Candidate: string(payload),
		}); err != nil {
			s.log.Warn("candidate send failed", "err", err)
		}
	})
	peer.OnConnectionStateChange(func(st webrtc.PeerConnectionState) {
		s.post(connStateEvent{gen: gen, state: st})
	})
	peer.OnICEConnectionStateChange(func(st webrtc.ICEConnectionState) {
		s.post(iceStateEvent{gen: gen, state: st})
	})

	for _, track := range s.stream.Tracks() {
		if err := peer.AddTrack(track); err != nil {
			s.teardownPeer()
			s.releaseStream()
			s.toIdle(fmt.Errorf("adding track failed: %w", err))
			return
		}
	}

	offer, err := peer.CreateOffer(false)
	if err == nil {
		err = peer.SetLocalDescription(offer)
	}
	if err != nil {
		s.teardownPeer()
		s.releaseStream()
		s.toIdle(fmt.Errorf("offer creation failed: %w", err))
		return
	}

	if err := s.signaler.Send(signal.Message{
		Type: signal.TypeOffer,
		Room: room,
		SDP:  offer.SDP,
	}); err != nil {
		if isRetry {
			// Mid-recovery the retry policy is the recovery path: stay in
			// Recovering and try again after the delay.
			s.log.Warn("offer send failed during recovery", "err", err)
			s.setState(StateRecovering, err)
			s.scheduleRetry()
			return
		}
		s.teardownPeer()
		s.releaseStream()
		s.toIdle(fmt.Errorf("%w: sending offer: %v", ErrSignaling, err))
		return
	}

	s.setState(StateNegotiating, nil)
}

func (s *Session) handleAnswer(sdp string) {
	if s.peer == nil {
		s.log.Warn("answer received without peer connection")
		return
	}
	desc := webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: sdp}
	if err := s.peer.SetRemoteDescription(desc); err != nil {
		s.log.Error("setting remote description failed", "err", err)
		if s.state == StateNegotiating {
			// Out-of-sequence or malformed answer: let the retry path
			// re-attempt cleanly.
			s.setState(StateRecovering, err)
			s.scheduleRetry()
		}
		return
	}
	s.remoteSet = true
	for _, raw := range s.pending {
		s.applyCandidate(raw)
	}
	s.pending = nil
}

func (s *Session) handleCandidate(raw string) {
	if s.peer == nil || !s.remoteSet {
		// Candidates legitimately arrive before the remote description;
		// buffer and apply them in receipt order once it lands.
		s.pending = append(s.pending, raw)
		return
	}
	s.applyCandidate(raw)
}

func (s *Session) applyCandidate(raw string) {
	var init webrtc.ICECandidateInit
	if err := json.Unmarshal([]byte(raw), &init); err != nil {
		s.log.Warn("malformed ICE candidate", "err", err)
		return
	}
	if err := s.peer.AddICECandidate(init); err != nil {
		s.log.Warn("adding ICE candidate failed", "err", err)
	}
}

func (s *Session) handleConnState(state webrtc.PeerConnectionState) {
	s.log.Info("connection state changed", "state", state.String())

	switch state {
	case webrtc.PeerConnectionStateConnected:
		if s.state == StateNegotiating || s.state == StateRecovering {
			s.setState(StateLive, nil)
			s.retriesVal.Store(0)
		}
	case webrtc.PeerConnectionStateFailed:
		if s.state == StateLive || s.state == StateNegotiating {
			s.setState(StateRecovering, errors.New("connection failed"))
			s.scheduleRetry()
		}
	case webrtc.PeerConnectionStateDisconnected:
		// Often transient; ICE usually repairs it without help.
	case webrtc.PeerConnectionStateClosed:
		// The connection object died under us. Our own teardown bumps the
		// generation first, so reaching here means an external close.
		s.terminate(nil)
	}
}

// restartICE requests an ICE restart on the existing connection and
// re-offers, keeping the negotiated session alive.
func (s *Session) restartICE() {
	if s.peer == nil {
		return
	}
	s.log.Info("ICE failed, restarting")
	offer, err := s.peer.CreateOffer(true)
	if err == nil {
		err = s.peer.SetLocalDescription(offer)
	}
	if err != nil {
		s.log.Error("ICE restart offer failed", "err", err)
		return
	}
	s.remoteSet = false
	if err := s.signaler.Send(signal.Message{
		Type: signal.TypeOffer,
		Room: s.cfg.Room,
		SDP:  offer.SDP,
	}); err != nil {
		s.log.Warn("ICE restart offer send failed", "err", err)
	}
}

func (s *Session) handleRetry(seq int) {
	if seq != s.retrySeq {
		return
	}
	// The intent check: a retry firing after the user stopped sharing must
	// not resurrect the session.
	if !s.desired || s.state != StateRecovering {
		return
	}
	count := s.retriesVal.Add(1)
	if s.cfg.MaxRetries > 0 && count > int64(s.cfg.MaxRetries) {
		s.teardownPeer()
		s.releaseStream()
		s.desired = false
		s.toIdle(ErrRetriesExhausted)
		return
	}
	s.log.Info("re-negotiating after failure", "attempt", count)
	s.negotiate(true)
}

func (s *Session) scheduleRetry() {
	s.cancelRetry()
	s.retrySeq++
	seq := s.retrySeq
	s.retryTimer = time.AfterFunc(s.cfg.RetryDelay, func() {
		s.post(retryEvent{seq: seq})
	})
}

func (s *Session) cancelRetry() {
	if s.retryTimer != nil {
		s.retryTimer.Stop()
		s.retryTimer = nil
	}
	s.retrySeq++
}

func (s *Session) watchStream(stream *capture.Stream) {
	select {
	case <-stream.Ended():
		s.post(streamEndedEvent{stream: stream})
	case <-s.done:
	}
}

// teardownPeer closes the current connection, if any, and bumps the
// generation so its late callbacks are ignored.
func (s *Session) teardownPeer() {
	if s.peer == nil {
		return
	}
	s.gen++
	if err := s.peer.Close(); err != nil {
		s.log.Warn("peer close failed", "err", err)
	}
	s.peer = nil
	s.remoteSet = false
	s.pending = nil
}

func (s *Session) releaseStream() {
	if s.stream == nil {
		return
	}
	s.stream.Close()
	s.stream = nil
}

// toIdle surfaces a recoverable error and returns the machine to Idle so
// the user may retry manually.
func (s *Session) toIdle(err error) {
	s.desired = false
	s.cancelRetry()
	s.log.Error("returning to idle", "err", err)
	s.setState(StateIdle, err)
}

// terminate releases every held resource exactly once and parks the machine
// in its final state. Runs on every exit path: explicit stop, stream end,
// or external connection close.
func (s *Session) terminate(err error) {
	if s.state == StateTerminated {
		return
	}
	s.desired = false
	s.cancelRetry()
	s.teardownPeer()
	s.releaseStream()
	if sendErr := s.signaler.Send(signal.Message{
		Type: signal.TypeStopShare,
		Room: s.cfg.Room,
	}); sendErr != nil {
		s.log.Warn("stop notification failed", "err", sendErr)
	}
	s.cancel()
	s.setState(StateTerminated, err)
}

func (s *Session) setState(state State, err error) {
	s.state = state
	s.stateVal.Store(int32(state))
	select {
	case s.updates <- Update{State: state, Err: err}:
	default:
		s.log.Debug("update dropped, consumer lagging", "state", state)
	}
}
