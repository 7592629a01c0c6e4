package transform

import (
	"math"

	"github.com/golang/geo/r2"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// matsSVD stores the matrices from SVD decomposition.
type matsSVD struct {
	U      *mat.Dense
	V      *mat.Dense
	VT     *mat.Dense
	Values []float64
}

// performSVD performs SVD on inputMatrix and returns matrices U, V, V^T and the singular values from the
// decomposition. It returns nil when the factorization fails.
func performSVD(inputMatrix mat.Matrix) *matsSVD {
	var svd mat.SVD
	ok := svd.Factorize(inputMatrix, mat.SVDFull)
	if !ok {
		return nil
	}

	u, v, vt := &mat.Dense{}, &mat.Dense{}, &mat.Dense{}
	svd.UTo(u)
	svd.VTo(v)
	vt.CloneFrom(v.T())

	return &matsSVD{U: u, V: v, VT: vt, Values: svd.Values(nil)}
}

// eye create an identity matrix of size nxn.
func eye(n int) *mat.Dense {
	if n <= 0 {
		return nil
	}
	m := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		m.Set(i, i, 1)
	}
	return m
}

// NearestRotation returns the rotation matrix closest to m in the Frobenius norm
// (the orthogonal polar factor with a positive determinant).
func NearestRotation(m mat.Matrix) (*mat.Dense, error) {
	if r, c := m.Dims(); r != 3 || c != 3 {
		return nil, errors.Errorf("expected a 3x3 matrix, got %dx%d", r, c)
	}
	mats := performSVD(m)
	if mats == nil {
		return nil, errors.New("failed to factorize rotation estimate")
	}
	var uvt mat.Dense
	uvt.Mul(mats.U, mats.VT)
	d := eye(3)
	if mat.Det(&uvt) < 0 {
		d.Set(2, 2, -1)
	}
	var rot mat.Dense
	rot.Mul(mats.U, d)
	rot.Mul(&rot, mats.VT)
	return &rot, nil
}

// normalizePoints normalizes points as described in Multiple View Geometry, Alg 4.2: the centroid
// is moved to the origin and the mean distance to it scaled to sqrt(2).
func normalizePoints(pts []r2.Point) ([]r2.Point, *mat.Dense, error) {
	nPoints := len(pts)
	// computer centroid of points
	mu := r2.Point{}
	for _, pt := range pts {
		mu = mu.Add(pt)
	}
	mu = mu.Mul(1. / float64(nPoints))
	// compute scale factor
	d := 0.0
	for _, pt := range pts {
		d += pt.Sub(mu).Norm() / float64(nPoints)
	}
	if d == 0 || math.IsNaN(d) || math.IsInf(d, 0) {
		return nil, nil, errors.New("cannot normalize coincident or non-finite points")
	}
	scale := math.Sqrt(2) / d
	transformData := []float64{
		scale, 0, -scale * mu.X,
		0, scale, -scale * mu.Y,
		0, 0, 1,
	}
	T := mat.NewDense(3, 3, transformData)
	// apply transform to points
	pointsTransformed := make([]r2.Point, nPoints)
	for i := range pointsTransformed {
		pointsTransformed[i] = pts[i].Sub(mu).Mul(scale)
	}
	return pointsTransformed, T, nil
}
