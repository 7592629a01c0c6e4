package fiducial

import (
	"context"
	"image"

	"github.com/pkg/errors"
)

// DefaultFamily is the tag family used when none is configured.
const DefaultFamily = "tag36h11"

// A Family describes the tag coding scheme the detector decodes.
type Family interface {
	Name() string
	Close() error
}

// A Detector finds tags in grayscale frames. Implementations wrap an external detection engine and
// may reuse the returned slice across calls; callers must not hold on to it past the next Detect.
type Detector interface {
	Configure(opts DetectorOptions) error
	AddFamily(family Family) error
	RemoveFamily(family Family) error
	Detect(ctx context.Context, frame *image.Gray) ([]Detection, error)
	// Profile returns the timing stamps of the most recent Detect call.
	Profile() Profile
	Close() error
}

// A Backend creates detectors and tag families.
type Backend interface {
	NewDetector() (Detector, error)
	NewFamily(name string) (Family, error)
}

// DetectorOptions are passed through to the detector.
type DetectorOptions struct {
	Threads          int
	QuadDecimate     float64
	QuadSigma        float64
	RefineEdges      bool
	DecodeSharpening float64
	Debug            bool
}

// Validate checks that the options are usable.
func (o DetectorOptions) Validate() error {
	if o.Threads < 1 {
		return errors.Errorf("detector needs at least one thread, got %d", o.Threads)
	}
	if o.QuadDecimate < 1 {
		return errors.Errorf("quad decimation factor must be at least 1, got %v", o.QuadDecimate)
	}
	if o.QuadSigma < 0 {
		return errors.Errorf("quad sigma must be non-negative, got %v", o.QuadSigma)
	}
	if o.DecodeSharpening < 0 {
		return errors.Errorf("decode sharpening must be non-negative, got %v", o.DecodeSharpening)
	}
	return nil
}
