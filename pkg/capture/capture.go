// Package capture defines the media source contract the session negotiates
// against: something that can hand out a live stream of local tracks. Live
// display capture is platform-specific and provided by the embedding
// application; this package ships the contract and a synthetic file-backed
// source.
package capture

import (
	"context"
	"errors"
	"sync"

	"github.com/pion/webrtc/v3"
)

var (
	// ErrDeclined means the user cancelled or refused the capture prompt.
	ErrDeclined = errors.New("capture declined")
	// ErrUnavailable means no capturable source exists.
	ErrUnavailable = errors.New("no capturable source available")
)

// Source supplies media streams. Acquire may prompt the user and therefore
// block; it must honor ctx cancellation.
type Source interface {
	Acquire(ctx context.Context) (*Stream, error)
}

// Stream is a finite set of local tracks plus an ended notification. It is
// exclusively owned by the session that acquired it.
type Stream struct {
	tracks []webrtc.TrackLocal

	ended   chan struct{}
	endOnce sync.Once

	stop      func()
	closeOnce sync.Once
}

// NewStream wraps tracks into a stream. stop, if non-nil, is invoked exactly
// once when the stream is closed and must halt media delivery.
func NewStream(tracks []webrtc.TrackLocal, stop func()) *Stream {
	return &Stream{
		tracks: tracks,
		ended:  make(chan struct{}),
		stop:   stop,
	}
}

// Tracks returns the stream's local tracks.
func (s *Stream) Tracks() []webrtc.TrackLocal {
	return s.tracks
}

// Ended is closed when the source stops delivering, whether because the
// media ran out, the user ended the capture, or the stream was closed.
func (s *Stream) Ended() <-chan struct{} {
	return s.ended
}

// End marks the stream as ended from the source side.
func (s *Stream) End() {
	s.endOnce.Do(func() { close(s.ended) })
}

// Close stops delivery and releases the stream's tracks. Safe to call from
// any exit path, any number of times.
func (s *Stream) Close() {
	s.closeOnce.Do(func() {
		if s.stop != nil {
			s.stop()
		}
		s.End()
	})
}

// StaticSource hands out a fixed set of tracks, typically fed by an
// external capture pipeline.
type StaticSource struct {
	Tracks []webrtc.TrackLocal
}

// Acquire implements Source.
func (s *StaticSource) Acquire(ctx context.Context) (*Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(s.Tracks) == 0 {
		return nil, ErrUnavailable
	}
	return NewStream(s.Tracks, nil), nil
}
