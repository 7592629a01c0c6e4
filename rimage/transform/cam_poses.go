package transform

import (
	"math"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/fiducial/spatialmath"
)

// CamPose stores the 3x4 pose matrix as well as the 3D Rotation and Translation matrices.
type CamPose struct {
	PoseMat     *mat.Dense
	Rotation    *mat.Dense
	Translation *mat.Dense
}

// NewCamPoseFromMat creates a pointer to a Camera pose from a 3x4 pose dense matrix.
func NewCamPoseFromMat(pose *mat.Dense) *CamPose {
	U3 := pose.ColView(3)
	t := mat.NewDense(3, 1, []float64{U3.AtVec(0), U3.AtVec(1), U3.AtVec(2)})
	rot := mat.NewDense(3, 3, nil)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			rot.Set(i, j, pose.At(i, j))
		}
	}
	return &CamPose{
		PoseMat:     pose,
		Rotation:    rot,
		Translation: t,
	}
}

// NewCamPose creates a Camera pose from a 3x3 rotation and a translation.
func NewCamPose(rot mat.Matrix, t r3.Vector) *CamPose {
	var pose mat.Dense
	pose.Augment(rot, mat.NewDense(3, 1, []float64{t.X, t.Y, t.Z}))
	return NewCamPoseFromMat(&pose)
}

// TranslationVector returns the translation as a vector.
func (cp *CamPose) TranslationVector() r3.Vector {
	return r3.Vector{X: cp.Translation.At(0, 0), Y: cp.Translation.At(1, 0), Z: cp.Translation.At(2, 0)}
}

// Pose creates a spatialmath.Pose from a CamPose.
func (cp *CamPose) Pose() (spatialmath.Pose, error) {
	rotation, err := spatialmath.NewRotationMatrix(cp.Rotation.RawMatrix().Data)
	if err != nil {
		return nil, err
	}
	return spatialmath.NewPose(cp.TranslationVector(), rotation), nil
}

// PoseFromHomography decomposes a plane-to-image homography into the pose of the plane in the camera
// frame. The homography maps plane coordinates (x, y) to pixels, i.e. H ~ K [r1 r2 t]. planeScale
// converts plane units into the desired translation units. The returned pose always places the plane
// in front of the camera (positive z).
func PoseFromHomography(h *Homography, intrinsics *PinholeCameraIntrinsics, planeScale float64) (*CamPose, error) {
	if !h.IsUsable() {
		return nil, errors.New("homography is not usable")
	}
	if err := intrinsics.CheckValid(); err != nil {
		return nil, err
	}

	var kinvH mat.Dense
	if err := kinvH.Solve(intrinsics.GetCameraMatrix(), h.Mat()); err != nil {
		return nil, errors.Wrap(err, "cannot invert camera matrix")
	}
	c0 := r3.Vector{X: kinvH.At(0, 0), Y: kinvH.At(1, 0), Z: kinvH.At(2, 0)}
	c1 := r3.Vector{X: kinvH.At(0, 1), Y: kinvH.At(1, 1), Z: kinvH.At(2, 1)}
	t := r3.Vector{X: kinvH.At(0, 2), Y: kinvH.At(1, 2), Z: kinvH.At(2, 2)}

	lengths := c0.Norm() * c1.Norm()
	if lengths == 0 || math.IsNaN(lengths) {
		return nil, errors.New("homography has degenerate rotation columns")
	}
	s := 1 / math.Sqrt(lengths)
	if t.Z*s < 0 {
		s = -s
	}
	c0 = c0.Mul(s)
	c1 = c1.Mul(s)
	t = t.Mul(s * planeScale)
	c2 := c0.Cross(c1)

	approx := mat.NewDense(3, 3, []float64{
		c0.X, c1.X, c2.X,
		c0.Y, c1.Y, c2.Y,
		c0.Z, c1.Z, c2.Z,
	})
	rot, err := NearestRotation(approx)
	if err != nil {
		return nil, err
	}
	return NewCamPose(rot, t), nil
}
