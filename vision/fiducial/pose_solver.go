package fiducial

import (
	"fmt"
	"math"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.viam.com/utils"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/fiducial/rimage/transform"
	"go.viam.com/fiducial/spatialmath"
	rutils "go.viam.com/fiducial/utils"
)

// Refinement defaults.
const (
	DefaultMaxIterations = 100
	DefaultTolerance     = 1e-10
)

// RefinementConfig bounds the iterative pose refinement.
type RefinementConfig struct {
	MaxIterations int     `json:"max_iterations"`
	Tolerance     float64 `json:"tolerance"`
}

// Validate ensures the refinement bounds are usable.
func (rc *RefinementConfig) Validate(path string) error {
	if rc.MaxIterations < 0 {
		return utils.NewConfigValidationError(path, errors.New("max_iterations cannot be negative"))
	}
	if rc.Tolerance < 0 {
		return utils.NewConfigValidationError(path, errors.New("tolerance cannot be negative"))
	}
	return nil
}

func (rc RefinementConfig) withDefaults() RefinementConfig {
	if rc.MaxIterations == 0 {
		rc.MaxIterations = DefaultMaxIterations
	}
	if rc.Tolerance == 0 {
		rc.Tolerance = DefaultTolerance
	}
	return rc
}

// TagPose is the estimated pose of one tag in the camera frame.
type TagPose struct {
	Detection Detection
	Pose      spatialmath.Pose
	// ReprojectionError is the RMS distance in pixels between the detected corners and the
	// corners projected through Pose.
	ReprojectionError float64
	Iterations        int
	Converged         bool
}

// Position returns the tag center in the camera frame.
func (tp TagPose) Position() r3.Vector {
	return tp.Pose.Point()
}

// Orientation returns the rotation of the tag frame relative to the camera frame.
func (tp TagPose) Orientation() spatialmath.Orientation {
	return tp.Pose.Orientation()
}

func (tp TagPose) String() string {
	return fmt.Sprintf("tag %d %v err=%.3fpx", tp.Detection.ID, tp.Pose, tp.ReprojectionError)
}

type poseCandidate struct {
	rot          *mat.Dense
	t            r3.Vector
	reprojection float64
	iterations   int
	converged    bool
}

// tagObservation holds the corner correspondences of one tag and the quantities the orthogonal
// iteration reuses: the line-of-sight projection operators and the translation solve.
type tagObservation struct {
	intrinsics *transform.PinholeCameraIntrinsics
	object     [4]r3.Vector
	pixels     [4]r2.Point
	rays       [4]r3.Vector
	// translation = tFactor * mean((F_i - I) R p_i)
	tFactor *mat.Dense
	// errors below errFloor are numerically zero
	errFloor float64
}

func newTagObservation(det *Detection, intrinsics *transform.PinholeCameraIntrinsics, tagSize float64) (*tagObservation, error) {
	obs := &tagObservation{
		intrinsics: intrinsics,
		object:     objectPoints(tagSize),
		pixels:     det.Corners,
		errFloor:   rutils.Square(1e-9 * tagSize),
	}
	meanF := mat.NewDense(3, 3, nil)
	for i, px := range det.Corners {
		v := intrinsics.NormalizedRay(px)
		obs.rays[i] = v
		vv := v.Dot(v)
		vs := [3]float64{v.X, v.Y, v.Z}
		for r := 0; r < 3; r++ {
			for c := 0; c < 3; c++ {
				meanF.Set(r, c, meanF.At(r, c)+vs[r]*vs[c]/vv/float64(len(det.Corners)))
			}
		}
	}
	a := mat.NewDense(3, 3, nil)
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			id := 0.0
			if r == c {
				id = 1
			}
			a.Set(r, c, id-meanF.At(r, c))
		}
	}
	var inv mat.Dense
	if err := inv.Inverse(a); err != nil {
		return nil, errors.Wrap(err, "corner lines of sight are degenerate")
	}
	obs.tFactor = &inv
	return obs, nil
}

// lineOfSight projects x onto the line of sight of corner i.
func (obs *tagObservation) lineOfSight(i int, x r3.Vector) r3.Vector {
	v := obs.rays[i]
	return v.Mul(v.Dot(x) / v.Dot(v))
}

func (obs *tagObservation) translation(rot mat.Matrix) r3.Vector {
	var sum r3.Vector
	for i, p := range obs.object {
		rp := rotate(rot, p)
		sum = sum.Add(obs.lineOfSight(i, rp).Sub(rp))
	}
	sum = sum.Mul(1 / float64(len(obs.object)))
	return rotate(obs.tFactor, sum)
}

// objectSpaceError is the summed squared distance of the transformed corners from their lines of sight.
func (obs *tagObservation) objectSpaceError(rot mat.Matrix, t r3.Vector) float64 {
	sum := 0.0
	for i, p := range obs.object {
		x := rotate(rot, p).Add(t)
		d := x.Sub(obs.lineOfSight(i, x))
		sum += d.Dot(d)
	}
	return sum
}

// reprojectionError is the RMS pixel distance between the observed and projected corners. It is
// infinite when a corner lands behind the camera.
func (obs *tagObservation) reprojectionError(rot mat.Matrix, t r3.Vector) float64 {
	sum := 0.0
	for i, p := range obs.object {
		px, ok := obs.intrinsics.ProjectPoint(rotate(rot, p).Add(t))
		if !ok {
			return math.Inf(1)
		}
		d := px.Sub(obs.pixels[i])
		sum += d.Dot(d)
	}
	return math.Sqrt(sum / float64(len(obs.object)))
}

// refine runs orthogonal iteration from the given rotation until the relative change of the
// object space error drops below the tolerance or the iteration cap is hit.
func (obs *tagObservation) refine(initial *mat.Dense, rc RefinementConfig) (poseCandidate, error) {
	rot := initial
	t := obs.translation(rot)
	prevErr := obs.objectSpaceError(rot, t)
	cand := poseCandidate{rot: rot, t: t}
	if prevErr <= obs.errFloor {
		cand.converged = true
	}
	for !cand.converged && cand.iterations < rc.MaxIterations {
		var q [4]r3.Vector
		var qMean, pMean r3.Vector
		for i, p := range obs.object {
			q[i] = obs.lineOfSight(i, rotate(rot, p).Add(t))
			qMean = qMean.Add(q[i])
			pMean = pMean.Add(p)
		}
		n := float64(len(obs.object))
		qMean, pMean = qMean.Mul(1/n), pMean.Mul(1/n)

		m := mat.NewDense(3, 3, nil)
		for i, p := range obs.object {
			dq := q[i].Sub(qMean)
			dp := p.Sub(pMean)
			qs, ps := [3]float64{dq.X, dq.Y, dq.Z}, [3]float64{dp.X, dp.Y, dp.Z}
			for r := 0; r < 3; r++ {
				for c := 0; c < 3; c++ {
					m.Set(r, c, m.At(r, c)+qs[r]*ps[c])
				}
			}
		}
		next, err := transform.NearestRotation(m)
		if err != nil {
			return poseCandidate{}, err
		}
		rot = next
		t = obs.translation(rot)
		curErr := obs.objectSpaceError(rot, t)
		cand.iterations++
		cand.rot, cand.t = rot, t
		if curErr <= obs.errFloor || math.Abs(prevErr-curErr) <= rc.Tolerance*prevErr {
			cand.converged = true
		}
		prevErr = curErr
	}
	cand.reprojection = obs.reprojectionError(cand.rot, cand.t)
	return cand, nil
}

// mirroredRotation returns the rotation whose tag normal is the reflection of rot's normal about
// the line of sight to the tag, the second planar pose consistent with a near-affine view. It
// returns nil when both normals coincide.
func mirroredRotation(rot *mat.Dense, t r3.Vector) *mat.Dense {
	n := r3.Vector{X: rot.At(0, 2), Y: rot.At(1, 2), Z: rot.At(2, 2)}
	v := t.Normalize()
	mirrored := v.Mul(2 * n.Dot(v)).Sub(n)
	axis := n.Cross(mirrored)
	sin, cos := axis.Norm(), n.Dot(mirrored)
	if sin < 1e-9 {
		return nil
	}
	delta := spatialmath.R3ToR4(axis.Normalize().Mul(math.Atan2(sin, cos))).RotationMatrix()
	var out mat.Dense
	out.Mul(mat.NewDense(3, 3, delta.Data()), rot)
	return &out
}

func rotate(m mat.Matrix, v r3.Vector) r3.Vector {
	return r3.Vector{
		X: m.At(0, 0)*v.X + m.At(0, 1)*v.Y + m.At(0, 2)*v.Z,
		Y: m.At(1, 0)*v.X + m.At(1, 1)*v.Y + m.At(1, 2)*v.Z,
		Z: m.At(2, 0)*v.X + m.At(2, 1)*v.Y + m.At(2, 2)*v.Z,
	}
}

// poseSolver estimates tag poses for one camera. It holds no per-tag state and is safe to share
// between goroutines.
type poseSolver struct {
	intrinsics *transform.PinholeCameraIntrinsics
	tagSize    float64
	refinement RefinementConfig
}

func (s *poseSolver) solve(det Detection) (TagPose, error) {
	h := det.Homography
	if !h.IsUsable() {
		est, err := transform.EstimateHomography(CanonicalCorners[:], det.Corners[:])
		if err != nil {
			return TagPose{}, errors.Wrap(err, "cannot recover tag homography")
		}
		h = *est
	}
	initial, err := transform.PoseFromHomography(&h, s.intrinsics, s.tagSize/2)
	if err != nil {
		return TagPose{}, err
	}
	obs, err := newTagObservation(&det, s.intrinsics, s.tagSize)
	if err != nil {
		return TagPose{}, err
	}

	best, err := obs.refine(initial.Rotation, s.refinement)
	if err != nil {
		return TagPose{}, err
	}
	if alt := mirroredRotation(initial.Rotation, initial.TranslationVector()); alt != nil {
		cand, err := obs.refine(alt, s.refinement)
		if err == nil && cand.reprojection < best.reprojection {
			best = cand
		}
	}
	if math.IsInf(best.reprojection, 1) || math.IsNaN(best.reprojection) {
		return TagPose{}, errors.New("no pose places the tag in front of the camera")
	}

	pose, err := transform.NewCamPose(best.rot, best.t).Pose()
	if err != nil {
		return TagPose{}, err
	}
	return TagPose{
		Detection:         det,
		Pose:              pose,
		ReprojectionError: best.reprojection,
		Iterations:        best.iterations,
		Converged:         best.converged,
	}, nil
}
