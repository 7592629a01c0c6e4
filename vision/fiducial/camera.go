package fiducial

import (
	"github.com/pkg/errors"

	"go.viam.com/fiducial/rimage/transform"
)

// CameraParameters describe the camera a frame was captured with and the physical tag size.
type CameraParameters struct {
	Width  int
	Height int
	// FOV is the horizontal field of view in radians.
	FOV     float64
	TagSize float64
	// Intrinsics, when set, are used instead of the ones derived from the field of view.
	Intrinsics *transform.PinholeCameraIntrinsics
}

// PinholeIntrinsics returns the intrinsics to project with.
func (p CameraParameters) PinholeIntrinsics() (*transform.PinholeCameraIntrinsics, error) {
	if !(p.TagSize > 0) {
		return nil, errors.Errorf("tag size must be positive, got %v", p.TagSize)
	}
	if p.Intrinsics != nil {
		if err := p.Intrinsics.CheckValid(); err != nil {
			return nil, err
		}
		return p.Intrinsics, nil
	}
	return transform.NewPinholeCameraIntrinsicsFromFOV(p.Width, p.Height, p.FOV)
}
