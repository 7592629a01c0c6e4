package fiducial

import (
	"context"
	"image"

	"github.com/pkg/errors"
	"go.uber.org/atomic"
	"go.uber.org/multierr"

	"go.viam.com/fiducial/logging"
	"go.viam.com/fiducial/rimage"
)

// maxFramePixels bounds the frame buffer allocation.
const maxFramePixels = 1 << 28

// Stats are running counters of a Manager.
type Stats struct {
	Frames            uint64
	DetectionFailures int64
	Discarded         int64
	NonConverged      int64
	Failed            int64
}

// A Manager owns a detector, its tag family and the frame buffer frames are converted into. It
// processes one frame at a time; results may be read concurrently through Results.
type Manager struct {
	width, height int
	logger        logging.Logger

	detector Detector
	family   Family
	frame    *image.Gray

	familyRegistered bool
	closed           atomic.Bool
	inFlight         atomic.Bool
	generation       uint64
	detectFailures   atomic.Int64

	profile   *ProfileRecorder
	estimator *Estimator
	results   Results
}

// NewManager creates the detector, the tag family and the frame buffer, in that order, configures
// the detector and registers the family with it. If any step fails, everything already created is
// released in reverse order and a *ResourceCreationError is returned. A nil logger logs to the
// global logger.
func NewManager(backend Backend, conf *Config, logger logging.Logger) (*Manager, error) {
	if err := conf.Validate("fiducial"); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logging.Global().Sublogger("fiducial")
	}
	m := &Manager{
		width:     conf.Width,
		height:    conf.Height,
		logger:    logger,
		profile:   NewProfileRecorder(conf.ProfileWindow),
		estimator: NewEstimator(conf.Refinement, logger.Sublogger("estimator")),
	}

	var err error
	var cleanups []func() error
	fail := func(resource string, cause error) (*Manager, error) {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cause = multierr.Combine(cause, cleanups[i]())
		}
		return nil, newResourceCreationError(resource, cause)
	}

	m.detector, err = backend.NewDetector()
	if err != nil || m.detector == nil {
		return fail("detector", err)
	}
	cleanups = append(cleanups, m.detector.Close)

	m.family, err = backend.NewFamily(conf.Family)
	if err != nil || m.family == nil {
		return fail("tag family "+conf.Family, err)
	}
	cleanups = append(cleanups, m.family.Close)

	m.frame, err = newFrameBuffer(conf.Width, conf.Height)
	if err != nil {
		return fail("frame buffer", err)
	}
	cleanups = append(cleanups, func() error {
		m.frame = nil
		return nil
	})

	if err := m.detector.Configure(conf.DetectorOptions()); err != nil {
		return fail("detector configuration", err)
	}
	if err := m.registerFamily(); err != nil {
		return fail("tag family registration", err)
	}
	logger.Debugw("tag detector ready", "family", m.family.Name(), "width", m.width, "height", m.height)
	return m, nil
}

func (m *Manager) registerFamily() error {
	if err := m.detector.AddFamily(m.family); err != nil {
		return err
	}
	m.familyRegistered = true
	return nil
}

func (m *Manager) unregisterFamily() error {
	if !m.familyRegistered {
		return nil
	}
	m.familyRegistered = false
	return m.detector.RemoveFamily(m.family)
}

func newFrameBuffer(width, height int) (*image.Gray, error) {
	if width <= 0 || height <= 0 || width > maxFramePixels/height {
		return nil, errors.Errorf("cannot allocate a %dx%d frame", width, height)
	}
	return image.NewGray(image.Rect(0, 0, width, height)), nil
}

func (m *Manager) checkOpen() {
	if m.closed.Load() {
		panic(ErrUseAfterClose)
	}
}

// Close unregisters the family from the detector, then releases the detector, the family and the
// frame buffer. Closing an already closed Manager is a no-op.
func (m *Manager) Close() error {
	if !m.closed.CompareAndSwap(false, true) {
		return nil
	}
	err := multierr.Combine(
		m.unregisterFamily(),
		m.detector.Close(),
		m.family.Close(),
	)
	m.frame = nil
	m.generation++
	m.profile.Invalidate()
	return err
}

// ConvertAndDetect converts img into the frame buffer and runs the detector on it. A detector
// failure is logged and yields no detections. The returned view is invalidated by the next call.
func (m *Manager) ConvertAndDetect(ctx context.Context, img image.Image) (Detections, error) {
	m.checkOpen()
	m.generation++
	m.profile.Invalidate()
	empty := Detections{owner: m, generation: m.generation}

	if err := rimage.ConvertToGray(m.frame, img); err != nil {
		return empty, errors.Wrap(err, "cannot convert frame")
	}
	found, err := m.detector.Detect(ctx, m.frame)
	m.profile.Record(m.detector.Profile())
	if err != nil {
		m.detectFailures.Inc()
		m.logger.Warnw("tag detection failed", "error", err)
		return empty, nil
	}
	return Detections{owner: m, generation: m.generation, items: found}, nil
}

// ProcessImage detects the tags in img, estimates their poses and publishes them as the current
// result set. If detection fails the frame publishes an empty set. A frame submitted while another
// one is being processed is rejected with ErrFrameInFlight.
func (m *Manager) ProcessImage(ctx context.Context, img image.Image, params CameraParameters) (*ResultSet, error) {
	m.checkOpen()
	if !m.inFlight.CompareAndSwap(false, true) {
		return nil, ErrFrameInFlight
	}
	defer m.inFlight.Store(false)

	dets, err := m.ConvertAndDetect(ctx, img)
	if err != nil {
		m.results.Publish(nil)
		return nil, err
	}
	poses, err := m.estimator.Estimate(dets.Copy(), params)
	if err != nil {
		m.results.Publish(nil)
		return nil, err
	}
	return m.results.Publish(poses), nil
}

// Results returns the latest published result set.
func (m *Manager) Results() *ResultSet {
	return m.results.Current()
}

// Profile returns the per-stage timings of the latest detection.
func (m *Manager) Profile() []TimingInterval {
	m.checkOpen()
	return m.profile.Intervals()
}

// ProfileSummary returns a snapshot of the rolling per-stage statistics, or nil when no profile
// window is configured.
func (m *Manager) ProfileSummary() *ProfileSummary {
	m.checkOpen()
	return m.profile.Summary()
}

// Stats returns the running counters.
func (m *Manager) Stats() Stats {
	return Stats{
		Frames:            m.results.Current().Frame(),
		DetectionFailures: m.detectFailures.Load(),
		Discarded:         m.estimator.Discarded(),
		NonConverged:      m.estimator.NonConverged(),
		Failed:            m.estimator.Failed(),
	}
}
