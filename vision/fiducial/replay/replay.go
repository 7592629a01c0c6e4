// Package replay implements a tag detector backend that plays back recorded detector output, one
// recorded frame per Detect call.
package replay

import (
	"context"
	"encoding/json"
	"image"
	"os"

	"github.com/pkg/errors"
	"github.com/samber/lo"

	"go.viam.com/fiducial/vision/fiducial"
)

// ErrExhausted is returned by Detect once every recorded frame has been played.
var ErrExhausted = errors.New("recording has no more frames")

// A Recording is the detector output for a sequence of frames.
type Recording struct {
	Family string  `json:"family"`
	Width  int     `json:"width_px"`
	Height int     `json:"height_px"`
	Frames []Frame `json:"frames"`
	// Loop restarts playback from the first frame once the last one was played.
	Loop bool `json:"loop"`
}

// A Frame is the detector output for one frame. A non-empty Error makes Detect fail.
type Frame struct {
	Detections []fiducial.Detection `json:"detections"`
	Profile    fiducial.Profile     `json:"profile"`
	Error      string               `json:"error,omitempty"`
}

// ReadRecording reads a JSON recording from the given file.
func ReadRecording(path string) (*Recording, error) {
	//nolint:gosec
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "error reading recording")
	}
	var rec Recording
	if err := json.Unmarshal(buf, &rec); err != nil {
		return nil, errors.Wrapf(err, "error parsing recording %q", path)
	}
	if rec.Family == "" {
		rec.Family = fiducial.DefaultFamily
	}
	return &rec, nil
}

// WriteRecording writes rec to the given file as JSON.
func WriteRecording(path string, rec *Recording) error {
	buf, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, buf, 0o600)
}

// Backend creates detectors that play back a recording.
type Backend struct {
	rec *Recording
}

// NewBackend returns a backend playing rec.
func NewBackend(rec *Recording) *Backend {
	return &Backend{rec: rec}
}

// NewDetector returns a detector positioned at the first recorded frame.
func (b *Backend) NewDetector() (fiducial.Detector, error) {
	if b.rec == nil {
		return nil, errors.New("no recording to play")
	}
	return &detector{rec: b.rec}, nil
}

// NewFamily returns the recorded family. Asking for any other family fails.
func (b *Backend) NewFamily(name string) (fiducial.Family, error) {
	if b.rec == nil {
		return nil, errors.New("no recording to play")
	}
	if name != b.rec.Family {
		return nil, errors.Errorf("recording holds %q tags, not %q", b.rec.Family, name)
	}
	return family(name), nil
}

type family string

func (f family) Name() string {
	return string(f)
}

func (f family) Close() error {
	return nil
}

type detector struct {
	rec        *Recording
	next       int
	registered bool
	out        []fiducial.Detection
	profile    fiducial.Profile
}

func (d *detector) Configure(opts fiducial.DetectorOptions) error {
	return opts.Validate()
}

func (d *detector) AddFamily(f fiducial.Family) error {
	if f.Name() != d.rec.Family {
		return errors.Errorf("recording holds %q tags, not %q", d.rec.Family, f.Name())
	}
	d.registered = true
	return nil
}

func (d *detector) RemoveFamily(f fiducial.Family) error {
	if !d.registered {
		return errors.Errorf("family %q is not registered", f.Name())
	}
	d.registered = false
	return nil
}

func (d *detector) Detect(ctx context.Context, frame *image.Gray) ([]fiducial.Detection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !d.registered {
		return nil, fiducial.ErrInvalidHandle
	}
	if d.next >= len(d.rec.Frames) {
		if !d.rec.Loop || len(d.rec.Frames) == 0 {
			d.profile = fiducial.Profile{}
			return nil, ErrExhausted
		}
		d.next = 0
	}
	f := d.rec.Frames[d.next]
	d.next++
	d.profile = f.Profile
	if f.Error != "" {
		return nil, errors.New(f.Error)
	}
	d.out = append(d.out[:0], lo.Map(f.Detections, func(det fiducial.Detection, _ int) fiducial.Detection {
		if det.Family == "" {
			det.Family = d.rec.Family
		}
		return det
	})...)
	return d.out, nil
}

func (d *detector) Profile() fiducial.Profile {
	return d.profile
}

func (d *detector) Close() error {
	d.out = nil
	return nil
}
