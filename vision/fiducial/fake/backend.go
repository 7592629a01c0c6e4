// Package fake implements an in-memory tag detector backend that reports configured detections.
package fake

import (
	"context"
	"image"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"

	"go.viam.com/fiducial/vision/fiducial"
)

// Calls recorded by the backend.
const (
	CallNewDetector  = "new_detector"
	CallNewFamily    = "new_family"
	CallConfigure    = "configure"
	CallAddFamily    = "add_family"
	CallRemoveFamily = "remove_family"
	CallDetect       = "detect"
	CallCloseDetect  = "close_detector"
	CallCloseFamily  = "close_family"
)

// DefaultStages are the stage names stamped by every Detect call.
var DefaultStages = []string{
	"init", "decimate", "blur/sharp", "threshold", "unionfind", "make cluster hash",
	"fit quads to clusters", "quads", "decode+refinement", "reconcile", "debug output", "cleanup",
}

// Backend creates fake detectors and families and records every call made on them.
type Backend struct {
	// Clock stamps profiles. With a *clock.Mock each stage advances it by StageDuration.
	Clock         clock.Clock
	Stages        []string
	StageDuration time.Duration

	// Detections are reported by every Detect call unless DetectFunc is set.
	Detections []fiducial.Detection
	DetectFunc func(ctx context.Context, frame *image.Gray) ([]fiducial.Detection, error)

	NewDetectorErr  error
	NewFamilyErr    error
	ConfigureErr    error
	AddFamilyErr    error
	RemoveFamilyErr error
	CloseErr        error

	mu        sync.Mutex
	calls     []string
	detectors []*Detector
}

// NewBackend returns a backend stamping profiles with the wall clock.
func NewBackend() *Backend {
	return &Backend{Clock: clock.New(), Stages: DefaultStages}
}

func (b *Backend) record(call string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls = append(b.calls, call)
}

// Calls returns the calls made so far, in order.
func (b *Backend) Calls() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string{}, b.calls...)
}

// LastDetector returns the most recently created detector, or nil.
func (b *Backend) LastDetector() *Detector {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.detectors) == 0 {
		return nil
	}
	return b.detectors[len(b.detectors)-1]
}

// NewDetector creates a detector.
func (b *Backend) NewDetector() (fiducial.Detector, error) {
	b.record(CallNewDetector)
	if b.NewDetectorErr != nil {
		return nil, b.NewDetectorErr
	}
	d := &Detector{backend: b, created: b.Clock.Now()}
	b.mu.Lock()
	b.detectors = append(b.detectors, d)
	b.mu.Unlock()
	return d, nil
}

// NewFamily creates a family descriptor.
func (b *Backend) NewFamily(name string) (fiducial.Family, error) {
	b.record(CallNewFamily)
	if b.NewFamilyErr != nil {
		return nil, b.NewFamilyErr
	}
	return &Family{backend: b, name: name}, nil
}

// Family is a fake tag family.
type Family struct {
	backend *Backend
	name    string
	closed  bool
}

// Name returns the family name.
func (f *Family) Name() string {
	return f.name
}

// Close releases the family.
func (f *Family) Close() error {
	f.backend.record(CallCloseFamily)
	if f.closed {
		return errors.New("family already closed")
	}
	f.closed = true
	return nil
}

// Detector is a fake detector. Its output slice is reused across Detect calls.
type Detector struct {
	backend  *Backend
	created  time.Time
	options  fiducial.DetectorOptions
	families []string
	out      []fiducial.Detection
	profile  fiducial.Profile
	frames   int
	closed   bool
}

// Configure stores the options.
func (d *Detector) Configure(opts fiducial.DetectorOptions) error {
	d.backend.record(CallConfigure)
	if d.backend.ConfigureErr != nil {
		return d.backend.ConfigureErr
	}
	if err := opts.Validate(); err != nil {
		return err
	}
	d.options = opts
	return nil
}

// Options returns the options the detector was configured with.
func (d *Detector) Options() fiducial.DetectorOptions {
	return d.options
}

// AddFamily registers a family.
func (d *Detector) AddFamily(family fiducial.Family) error {
	d.backend.record(CallAddFamily)
	if d.backend.AddFamilyErr != nil {
		return d.backend.AddFamilyErr
	}
	d.families = append(d.families, family.Name())
	return nil
}

// RemoveFamily unregisters a family.
func (d *Detector) RemoveFamily(family fiducial.Family) error {
	d.backend.record(CallRemoveFamily)
	if d.backend.RemoveFamilyErr != nil {
		return d.backend.RemoveFamilyErr
	}
	for i, name := range d.families {
		if name == family.Name() {
			d.families = append(d.families[:i], d.families[i+1:]...)
			return nil
		}
	}
	return errors.Errorf("family %q is not registered", family.Name())
}

// Families returns the registered family names.
func (d *Detector) Families() []string {
	return append([]string{}, d.families...)
}

// Frames returns the number of Detect calls.
func (d *Detector) Frames() int {
	return d.frames
}

func (d *Detector) micros() int64 {
	return d.backend.Clock.Since(d.created).Microseconds()
}

// Detect reports the configured detections and stamps every stage.
func (d *Detector) Detect(ctx context.Context, frame *image.Gray) ([]fiducial.Detection, error) {
	d.backend.record(CallDetect)
	if d.closed {
		return nil, fiducial.ErrInvalidHandle
	}
	d.frames++
	d.profile = fiducial.Profile{Start: d.micros()}
	mock, _ := d.backend.Clock.(*clock.Mock)
	for _, stage := range d.backend.Stages {
		if mock != nil {
			mock.Add(d.backend.StageDuration)
		}
		d.profile.Stamps = append(d.profile.Stamps, fiducial.ProfileStamp{Name: stage, Time: d.micros()})
	}

	found := d.backend.Detections
	if d.backend.DetectFunc != nil {
		var err error
		found, err = d.backend.DetectFunc(ctx, frame)
		if err != nil {
			return nil, err
		}
	}
	d.out = append(d.out[:0], found...)
	return d.out, nil
}

// Profile returns the stamps of the latest Detect call.
func (d *Detector) Profile() fiducial.Profile {
	return d.profile
}

// Close releases the detector.
func (d *Detector) Close() error {
	d.backend.record(CallCloseDetect)
	if d.closed {
		return errors.New("detector already closed")
	}
	d.closed = true
	return d.backend.CloseErr
}
