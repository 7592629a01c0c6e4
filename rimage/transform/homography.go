package transform

import (
	"math"

	"github.com/golang/geo/r2"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// Homography is a 3x3 matrix (represented as a 2D array) used to transform one plane into another,
// e.g. the canonical square of a fiducial tag into the image. Indices are [row][column].
type Homography [3][3]float64

// NewHomography creates a homography from 9 values in row major order.
func NewHomography(data []float64) (*Homography, error) {
	if len(data) != 9 {
		return nil, errors.Errorf("homography needs 9 values, got %d", len(data))
	}
	var h Homography
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			h[i][j] = data[3*i+j]
		}
	}
	return &h, nil
}

// At returns the value at the given row and column.
func (h *Homography) At(row, col int) float64 {
	return h[row][col]
}

// Apply maps pt through the homography, including the perspective divide.
func (h *Homography) Apply(pt r2.Point) r2.Point {
	x := h.At(0, 0)*pt.X + h.At(0, 1)*pt.Y + h.At(0, 2)
	y := h.At(1, 0)*pt.X + h.At(1, 1)*pt.Y + h.At(1, 2)
	z := h.At(2, 0)*pt.X + h.At(2, 1)*pt.Y + h.At(2, 2)
	return r2.Point{X: x / z, Y: y / z}
}

// Mat returns the homography as a dense matrix.
func (h *Homography) Mat() *mat.Dense {
	m := mat.NewDense(3, 3, nil)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			m.Set(i, j, h[i][j])
		}
	}
	return m
}

// IsUsable reports whether the homography is finite and not (near) singular.
func (h *Homography) IsUsable() bool {
	if h == nil {
		return false
	}
	norm := 0.0
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			v := h[i][j]
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return false
			}
			norm += v * v
		}
	}
	if norm == 0 {
		return false
	}
	// scale-invariant singularity check
	det := mat.Det(h.Mat())
	return math.Abs(det) > 1e-12*math.Pow(norm, 1.5)
}

// EstimateHomography computes the homography mapping src onto dst with the normalized direct linear
// transform. At least 4 correspondences are needed; with exactly 4 the mapping is exact.
func EstimateHomography(src, dst []r2.Point) (*Homography, error) {
	if len(src) != len(dst) {
		return nil, errors.New("the 2 sets of points don't have the same number of elements")
	}
	if len(src) < 4 {
		return nil, errors.Errorf("need at least 4 correspondences, got %d", len(src))
	}
	srcN, T1, err := normalizePoints(src)
	if err != nil {
		return nil, errors.Wrap(err, "source points")
	}
	dstN, T2, err := normalizePoints(dst)
	if err != nil {
		return nil, errors.Wrap(err, "destination points")
	}

	// pad with zero rows so the system is at least square; this does not change its null space
	nRows := 2 * len(src)
	if nRows < 9 {
		nRows = 9
	}
	a := mat.NewDense(nRows, 9, nil)
	for i := range srcN {
		x, y := srcN[i].X, srcN[i].Y
		u, v := dstN[i].X, dstN[i].Y
		a.SetRow(2*i, []float64{-x, -y, -1, 0, 0, 0, u * x, u * y, u})
		a.SetRow(2*i+1, []float64{0, 0, 0, -x, -y, -1, v * x, v * y, v})
	}
	mats := performSVD(a)
	if mats == nil {
		return nil, errors.New("failed to factorize homography system")
	}
	nullVec := mats.V.ColView(8)
	hData := make([]float64, 9)
	for i := range hData {
		hData[i] = nullVec.AtVec(i)
	}
	hNorm := mat.NewDense(3, 3, hData)

	// undo the normalization: H = T2^-1 * Hn * T1
	s2 := T2.At(0, 0)
	t2Inv := mat.NewDense(3, 3, []float64{
		1 / s2, 0, -T2.At(0, 2) / s2,
		0, 1 / s2, -T2.At(1, 2) / s2,
		0, 0, 1,
	})
	var full mat.Dense
	full.Mul(t2Inv, hNorm)
	full.Mul(&full, T1)

	scale := full.At(2, 2)
	if math.Abs(scale) < 1e-12 {
		scale = mat.Norm(&full, 2)
	}
	full.Scale(1/scale, &full)

	h, err := NewHomography(mat.DenseCopyOf(&full).RawMatrix().Data)
	if err != nil {
		return nil, err
	}
	if !h.IsUsable() {
		return nil, errors.New("correspondences produce a degenerate homography")
	}
	return h, nil
}
