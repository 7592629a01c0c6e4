package fiducial

import (
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"

	"go.viam.com/fiducial/rimage/transform"
	"go.viam.com/fiducial/spatialmath"
)

// SynthesizeDetection returns the detection a perfect detector would report for a tag with the
// given id placed at pose in the camera frame.
func SynthesizeDetection(id int, pose spatialmath.Pose, params CameraParameters) (Detection, error) {
	intrinsics, err := params.PinholeIntrinsics()
	if err != nil {
		return Detection{}, err
	}
	det := Detection{ID: id, Family: DefaultFamily, DecisionMargin: 100}
	for i, p := range objectPoints(params.TagSize) {
		px, ok := intrinsics.ProjectPoint(spatialmath.TransformPoint(pose, p))
		if !ok {
			return Detection{}, errors.Errorf("corner %d of tag %d is behind the camera", i, id)
		}
		det.Corners[i] = px
	}
	center, ok := intrinsics.ProjectPoint(spatialmath.TransformPoint(pose, r3.Vector{}))
	if !ok {
		return Detection{}, errors.Errorf("tag %d is behind the camera", id)
	}
	det.Center = center
	h, err := transform.EstimateHomography(CanonicalCorners[:], det.Corners[:])
	if err != nil {
		return Detection{}, err
	}
	det.Homography = *h
	return det, nil
}
