package capture

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/pion/webrtc/v3"
	"github.com/pion/webrtc/v3/pkg/media"
	"github.com/pion/webrtc/v3/pkg/media/ivfreader"
)

// FileSource turns a VP8 IVF file into a synthetic live video stream, the
// headless counterpart of pointing the controller at a static screenshot.
type FileSource struct {
	Path string
	// Loop restarts the file when it ends instead of ending the stream.
	Loop   bool
	Logger *slog.Logger
}

// Acquire opens the file and starts pacing its frames onto a single video
// track at the file's native frame rate.
func (f *FileSource) Acquire(ctx context.Context) (*Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	log := f.Logger
	if log == nil {
		log = slog.Default()
	}
	if f.Path == "" {
		return nil, ErrUnavailable
	}

	file, err := os.Open(f.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrUnavailable, f.Path)
		}
		return nil, err
	}

	ivf, header, err := ivfreader.NewWith(file)
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("%w: not an IVF file: %v", ErrUnavailable, err)
	}

	track, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8}, "video", "dockcast")
	if err != nil {
		file.Close()
		return nil, err
	}

	done := make(chan struct{})
	stream := NewStream([]webrtc.TrackLocal{track}, func() { close(done) })

	go f.pump(ctx, log, file, ivf, header, track, stream, done)
	return stream, nil
}

func (f *FileSource) pump(ctx context.Context, log *slog.Logger, file *os.File,
	ivf *ivfreader.IVFReader, header *ivfreader.IVFFileHeader,
	track *webrtc.TrackLocalStaticSample, stream *Stream, done chan struct{}) {

	defer file.Close()
	defer stream.End()

	frameDur := time.Millisecond * time.Duration(
		float32(header.TimebaseNumerator)/float32(header.TimebaseDenominator)*1000)
	if frameDur <= 0 {
		frameDur = 33 * time.Millisecond
	}

	ticker := time.NewTicker(frameDur)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-done:
			return
		case <-ticker.C:
		}

		frame, _, err := ivf.ParseNextFrame()
		if err == io.EOF {
			if !f.Loop {
				return
			}
			if _, err := file.Seek(0, io.SeekStart); err != nil {
				log.Warn("ivf rewind failed", "err", err)
				return
			}
			if ivf, header, err = ivfreader.NewWith(file); err != nil {
				log.Warn("ivf reopen failed", "err", err)
				return
			}
			continue
		}
		if err != nil {
			log.Warn("ivf frame parse failed", "err", err)
			return
		}

		if err := track.WriteSample(media.Sample{Data: frame, Duration: frameDur}); err != nil {
			log.Warn("track write failed", "err", err)
			return
		}
	}
}
