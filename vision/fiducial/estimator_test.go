package fiducial

import (
	"math"
	"testing"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"go.viam.com/test"
	"gonum.org/v1/gonum/num/quat"

	"go.viam.com/fiducial/logging"
	"go.viam.com/fiducial/rimage/transform"
	"go.viam.com/fiducial/spatialmath"
	"go.viam.com/fiducial/utils"
)

var testCamera = CameraParameters{Width: 640, Height: 480, FOV: math.Pi / 3, TagSize: 0.1}

func tiltedPose(x, y, z, theta float64) spatialmath.Pose {
	return spatialmath.NewPose(r3.Vector{X: x, Y: y, Z: z}, &spatialmath.R4AA{Theta: theta, RX: 0.3, RY: 1, RZ: 0.2})
}

func synthesize(t *testing.T, id int, pose spatialmath.Pose) Detection {
	t.Helper()
	det, err := SynthesizeDetection(id, pose, testCamera)
	test.That(t, err, test.ShouldBeNil)
	return det
}

func TestEstimateRoundTrip(t *testing.T) {
	est := NewEstimator(RefinementConfig{}, logging.NewTestLogger(t))
	for _, truth := range []spatialmath.Pose{
		tiltedPose(0.05, -0.03, 0.6, 0.4),
		tiltedPose(-0.1, 0.08, 1.2, -0.7),
		tiltedPose(0, 0, 0.3, 0.1),
		spatialmath.NewPoseFromPoint(r3.Vector{X: 0.02, Y: 0.01, Z: 0.5}),
	} {
		det := synthesize(t, 3, truth)
		poses, err := est.Estimate([]Detection{det}, testCamera)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, poses, test.ShouldHaveLength, 1)

		got := poses[0]
		test.That(t, got.Detection.ID, test.ShouldEqual, 3)
		test.That(t, got.Converged, test.ShouldBeTrue)
		test.That(t, got.ReprojectionError, test.ShouldBeLessThan, 1e-6)
		test.That(t, got.Position().Sub(truth.Point()).Norm(), test.ShouldBeLessThan, 1e-3*testCamera.TagSize)
		test.That(t, spatialmath.AngleBetween(got.Orientation(), truth.Orientation()),
			test.ShouldBeLessThan, utils.DegToRad(0.1))
	}
	test.That(t, est.NonConverged(), test.ShouldEqual, 0)
}

func TestEstimateFrontalTag(t *testing.T) {
	// a frontal tag spanning 160px centered in a 640x480 frame with a 60 degree field of view
	f := 320 / math.Tan(math.Pi/6)
	half := 80.0
	det := Detection{ID: 7, Corners: [4]r2.Point{
		{X: 320 - half, Y: 240 + half}, {X: 320 + half, Y: 240 + half}, {X: 320 + half, Y: 240 - half}, {X: 320 - half, Y: 240 - half},
	}}
	h, err := transform.EstimateHomography(CanonicalCorners[:], det.Corners[:])
	test.That(t, err, test.ShouldBeNil)
	det.Homography = *h

	est := NewEstimator(RefinementConfig{}, logging.NewTestLogger(t))
	poses, err := est.Estimate([]Detection{det}, testCamera)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, poses, test.ShouldHaveLength, 1)

	pos := poses[0].Position()
	test.That(t, pos.X, test.ShouldAlmostEqual, 0, 1e-9)
	test.That(t, pos.Y, test.ShouldAlmostEqual, 0, 1e-9)
	test.That(t, pos.Z, test.ShouldAlmostEqual, f*testCamera.TagSize/160, 1e-9)
	test.That(t, spatialmath.AngleBetween(poses[0].Orientation(), spatialmath.NewZeroOrientation()),
		test.ShouldBeLessThan, utils.DegToRad(0.1))
}

func TestEstimateHomographyFallback(t *testing.T) {
	truth := tiltedPose(0.03, 0.02, 0.7, 0.3)
	det := synthesize(t, 1, truth)
	det.Homography = transform.Homography{}

	est := NewEstimator(RefinementConfig{}, logging.NewTestLogger(t))
	poses, err := est.Estimate([]Detection{det}, testCamera)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, poses, test.ShouldHaveLength, 1)
	test.That(t, poses[0].Position().Sub(truth.Point()).Norm(), test.ShouldBeLessThan, 1e-3*testCamera.TagSize)
}

func TestEstimateIntrinsicsOverride(t *testing.T) {
	truth := tiltedPose(0.03, 0.02, 0.7, 0.3)
	det := synthesize(t, 1, truth)

	intrinsics, err := transform.NewPinholeCameraIntrinsicsFromFOV(640, 480, math.Pi/3)
	test.That(t, err, test.ShouldBeNil)
	params := CameraParameters{TagSize: testCamera.TagSize, Intrinsics: intrinsics}

	est := NewEstimator(RefinementConfig{}, logging.NewTestLogger(t))
	poses, err := est.Estimate([]Detection{det}, params)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, poses[0].Position().Sub(truth.Point()).Norm(), test.ShouldBeLessThan, 1e-3*testCamera.TagSize)

	params.Intrinsics = &transform.PinholeCameraIntrinsics{Width: 640, Height: 480}
	_, err = est.Estimate([]Detection{det}, params)
	test.That(t, err, test.ShouldNotBeNil)
}

func TestEstimatePreservesOrder(t *testing.T) {
	oldFactor := utils.ParallelFactor
	utils.ParallelFactor = 2
	defer func() {
		utils.ParallelFactor = oldFactor
	}()

	var dets []Detection
	for i := 0; i < 7; i++ {
		x := -0.15 + 0.05*float64(i)
		dets = append(dets, synthesize(t, 100-i, tiltedPose(x, 0.02*float64(i%3), 0.8+0.1*float64(i), 0.2)))
	}
	est := NewEstimator(RefinementConfig{}, logging.NewTestLogger(t))
	poses, err := est.Estimate(dets, testCamera)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, poses, test.ShouldHaveLength, len(dets))
	for i, p := range poses {
		test.That(t, p.Detection.ID, test.ShouldEqual, 100-i)
		test.That(t, p.Detection.Corners, test.ShouldResemble, dets[i].Corners)
	}
}

type poseSummary struct {
	ID    int
	Point r3.Vector
	Quat  quat.Number
	Err   float64
}

func summarize(poses []TagPose) []poseSummary {
	out := make([]poseSummary, 0, len(poses))
	for _, p := range poses {
		out = append(out, poseSummary{
			ID:    p.Detection.ID,
			Point: p.Position(),
			Quat:  p.Orientation().Quaternion(),
			Err:   p.ReprojectionError,
		})
	}
	return out
}

func TestEstimateIsIdempotent(t *testing.T) {
	dets := []Detection{
		synthesize(t, 1, tiltedPose(0.1, 0, 0.9, 0.5)),
		synthesize(t, 2, tiltedPose(-0.1, 0.05, 1.1, -0.3)),
	}
	// noisy corners exercise the refinement
	dets[1].Corners[2] = dets[1].Corners[2].Add(r2.Point{X: 0.4, Y: -0.3})

	est := NewEstimator(RefinementConfig{}, logging.NewTestLogger(t))
	first, err := est.Estimate(dets, testCamera)
	test.That(t, err, test.ShouldBeNil)
	second, err := est.Estimate(dets, testCamera)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cmp.Diff(summarize(first), summarize(second), cmpopts.EquateApprox(0, 1e-12)), test.ShouldBeEmpty)
}

func TestEstimateDiscardsDegenerate(t *testing.T) {
	good := synthesize(t, 1, tiltedPose(0.05, 0, 0.8, 0.2))
	collinear := Detection{ID: 2, Corners: [4]r2.Point{{X: 0, Y: 0}, {X: 10, Y: 10}, {X: 20, Y: 20}, {X: 0, Y: 30}}}
	nan := good
	nan.ID = 3
	nan.Corners[1].Y = math.NaN()
	other := synthesize(t, 4, tiltedPose(-0.05, 0, 0.8, 0.2))

	est := NewEstimator(RefinementConfig{}, logging.NewTestLogger(t))
	poses, err := est.Estimate([]Detection{good, collinear, nan, other}, testCamera)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, poses, test.ShouldHaveLength, 2)
	test.That(t, poses[0].Detection.ID, test.ShouldEqual, 1)
	test.That(t, poses[1].Detection.ID, test.ShouldEqual, 4)
	test.That(t, est.Discarded(), test.ShouldEqual, 2)
}

func TestEstimateEmpty(t *testing.T) {
	est := NewEstimator(RefinementConfig{}, logging.NewTestLogger(t))
	poses, err := est.Estimate(nil, testCamera)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, poses, test.ShouldBeEmpty)

	_, err = est.Estimate(nil, CameraParameters{Width: 640, Height: 480, FOV: math.Pi / 3})
	test.That(t, err, test.ShouldNotBeNil)
}

func TestEstimateIterationCap(t *testing.T) {
	det := synthesize(t, 1, tiltedPose(0.05, 0.02, 0.6, 0.5))
	det.Corners[0] = det.Corners[0].Add(r2.Point{X: 1.5, Y: -1})
	det.Corners[2] = det.Corners[2].Add(r2.Point{X: -1, Y: 0.8})

	est := NewEstimator(RefinementConfig{MaxIterations: 1}, logging.NewTestLogger(t))
	poses, err := est.Estimate([]Detection{det}, testCamera)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, poses, test.ShouldHaveLength, 1)
	test.That(t, poses[0].Converged, test.ShouldBeFalse)
	test.That(t, poses[0].Iterations, test.ShouldEqual, 1)
	test.That(t, est.NonConverged(), test.ShouldEqual, 1)

	// the pose is still the best found
	test.That(t, poses[0].Position().Sub(r3.Vector{X: 0.05, Y: 0.02, Z: 0.6}).Norm(), test.ShouldBeLessThan, 0.05)
}

func TestRefinementIterates(t *testing.T) {
	det := synthesize(t, 1, tiltedPose(0.05, 0.02, 0.6, 0.5))
	det.Corners[1] = det.Corners[1].Add(r2.Point{X: 0.7, Y: 0.5})

	est := NewEstimator(RefinementConfig{}, logging.NewTestLogger(t))
	poses, err := est.Estimate([]Detection{det}, testCamera)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, poses[0].Iterations, test.ShouldBeGreaterThan, 1)
	test.That(t, poses[0].Iterations, test.ShouldBeLessThanOrEqualTo, DefaultMaxIterations)
	test.That(t, poses[0].ReprojectionError, test.ShouldBeLessThan, 1)
}

func TestMirroredRotation(t *testing.T) {
	intrinsics, err := testCamera.PinholeIntrinsics()
	test.That(t, err, test.ShouldBeNil)
	det := synthesize(t, 1, tiltedPose(0.05, 0.02, 0.6, 0.5))
	initial, err := transform.PoseFromHomography(&det.Homography, intrinsics, testCamera.TagSize/2)
	test.That(t, err, test.ShouldBeNil)

	alt := mirroredRotation(initial.Rotation, initial.TranslationVector())
	test.That(t, alt, test.ShouldNotBeNil)
	v := initial.TranslationVector().Normalize()
	n := r3.Vector{X: initial.Rotation.At(0, 2), Y: initial.Rotation.At(1, 2), Z: initial.Rotation.At(2, 2)}
	m := r3.Vector{X: alt.At(0, 2), Y: alt.At(1, 2), Z: alt.At(2, 2)}
	// both normals make the same angle with the line of sight
	test.That(t, m.Dot(v), test.ShouldAlmostEqual, n.Dot(v), 1e-9)
	test.That(t, m.Sub(n).Norm(), test.ShouldBeGreaterThan, 1e-3)

	frontal := spatialmath.NewPoseFromPoint(r3.Vector{Z: 0.5})
	det = synthesize(t, 1, frontal)
	initial, err = transform.PoseFromHomography(&det.Homography, intrinsics, testCamera.TagSize/2)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, mirroredRotation(initial.Rotation, initial.TranslationVector()), test.ShouldBeNil)
}
