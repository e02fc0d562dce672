package capture

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestStreamCloseRunsStopExactlyOnce(t *testing.T) {
	var stops atomic.Int32
	s := NewStream(nil, func() { stops.Add(1) })

	s.Close()
	s.Close()

	if got := stops.Load(); got != 1 {
		t.Fatalf("stop ran %d times", got)
	}
	select {
	case <-s.Ended():
	default:
		t.Fatal("Ended not closed after Close")
	}
}

func TestStreamEndIsIdempotent(t *testing.T) {
	s := NewStream(nil, nil)
	s.End()
	s.End()
	select {
	case <-s.Ended():
	default:
		t.Fatal("Ended not closed")
	}
}

func TestStaticSourceEmptyIsUnavailable(t *testing.T) {
	src := &StaticSource{}
	if _, err := src.Acquire(context.Background()); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("Acquire = %v, want ErrUnavailable", err)
	}
}

func TestStaticSourceHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	src := &StaticSource{}
	if _, err := src.Acquire(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("Acquire = %v, want context.Canceled", err)
	}
}

func waitEnded(t *testing.T, s *Stream, within time.Duration) {
	t.Helper()
	select {
	case <-s.Ended():
	case <-time.After(within):
		t.Fatal("stream did not end in time")
	}
}
