package fiducial

import (
	"context"
	"image"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"go.uber.org/atomic"

	"go.viam.com/fiducial/logging"
	"go.viam.com/fiducial/utils"
)

// ErrorBackoff is the minimum pause after a frame source error.
const ErrorBackoff = 100 * time.Millisecond

// A FrameSource produces camera frames. NextFrame blocks until a frame is available or ctx is done.
type FrameSource interface {
	NextFrame(ctx context.Context) (image.Image, error)
}

// StreamOptions control how often a Stream pulls frames.
type StreamOptions struct {
	// Interval is the minimum time between frames; zero processes frames as fast as the source delivers them.
	Interval time.Duration
	Clock    clock.Clock
}

// A Stream processes frames from a source in the background and publishes each frame's results
// on its Manager. It must be stopped before the Manager is closed.
type Stream struct {
	workers utils.StoppableWorkers
	frames  atomic.Int64
	errs    atomic.Int64
}

// NewStream starts processing frames from src with m.
func NewStream(m *Manager, src FrameSource, params CameraParameters, opts StreamOptions, logger logging.Logger) *Stream {
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if logger == nil {
		logger = logging.Global()
	}
	s := &Stream{}
	s.workers = utils.NewStoppableWorkers(func(ctx context.Context) {
		for ctx.Err() == nil {
			started := opts.Clock.Now()
			interval := opts.Interval
			img, err := src.NextFrame(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				s.errs.Inc()
				logger.Warnw("cannot get next frame", "error", err)
				if interval < ErrorBackoff {
					interval = ErrorBackoff
				}
			} else if _, err := m.ProcessImage(ctx, img, params); err != nil {
				if errors.Is(err, context.Canceled) {
					return
				}
				s.errs.Inc()
				logger.Warnw("cannot process frame", "error", err)
			} else {
				s.frames.Inc()
			}
			if wait := interval - opts.Clock.Since(started); wait > 0 {
				select {
				case <-ctx.Done():
					return
				case <-opts.Clock.After(wait):
				}
			}
		}
	})
	return s
}

// Frames returns the number of frames processed.
func (s *Stream) Frames() int64 {
	return s.frames.Load()
}

// Errors returns the number of frames that could not be fetched or processed.
func (s *Stream) Errors() int64 {
	return s.errs.Load()
}

// Stop stops processing and waits for the frame in flight to finish.
func (s *Stream) Stop() {
	s.workers.Stop()
}
