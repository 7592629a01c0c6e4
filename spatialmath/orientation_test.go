package spatialmath

import (
	"math"
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"
	"gonum.org/v1/gonum/num/quat"
)

// represent a 45 degree rotation around the x axis in all the representations
var (
	th    = math.Pi / 4.
	q45x  = quat.Number{Real: math.Cos(th / 2.), Imag: math.Sin(th / 2.), Jmag: 0, Kmag: 0}
	aa45x = &R4AA{th, 1., 0., 0.}
	rm45x = &RotationMatrix{[9]float64{
		1, 0, 0,
		0, math.Cos(th), -math.Sin(th),
		0, math.Sin(th), math.Cos(th),
	}}
)

func TestZeroOrientation(t *testing.T) {
	zero := NewZeroOrientation()
	test.That(t, zero.AxisAngles(), test.ShouldResemble, NewR4AA())
	test.That(t, zero.Quaternion(), test.ShouldResemble, quat.Number{Real: 1, Imag: 0, Jmag: 0, Kmag: 0})
	test.That(t, zero.RotationMatrix().Data(), test.ShouldResemble, []float64{1, 0, 0, 0, 1, 0, 0, 0, 1})
}

func TestQuaternions(t *testing.T) {
	qq45x := quaternion(q45x)
	test.That(t, qq45x.AxisAngles().Theta, test.ShouldAlmostEqual, aa45x.Theta)
	test.That(t, qq45x.AxisAngles().RX, test.ShouldAlmostEqual, aa45x.RX)
	test.That(t, qq45x.AxisAngles().RY, test.ShouldAlmostEqual, aa45x.RY)
	test.That(t, qq45x.AxisAngles().RZ, test.ShouldAlmostEqual, aa45x.RZ)
	for i, v := range qq45x.RotationMatrix().Data() {
		test.That(t, v, test.ShouldAlmostEqual, rm45x.mat[i])
	}
}

func TestAxisAngles(t *testing.T) {
	q := aa45x.Quaternion()
	test.That(t, QuaternionAlmostEqual(q, q45x, 1e-9), test.ShouldBeTrue)
	test.That(t, aa45x.ToR3(), test.ShouldResemble, r3.Vector{X: th, Y: 0, Z: 0})
	test.That(t, R3ToR4(r3.Vector{}), test.ShouldResemble, NewR4AA())
	r4 := R3ToR4(r3.Vector{X: 0, Y: 0, Z: -math.Pi / 2})
	test.That(t, r4.Theta, test.ShouldAlmostEqual, math.Pi/2)
	test.That(t, r4.RZ, test.ShouldAlmostEqual, -1)
}

func TestRotationMatrixRoundTrip(t *testing.T) {
	test.That(t, QuaternionAlmostEqual(rm45x.Quaternion(), q45x, 1e-9), test.ShouldBeTrue)

	// exercise every branch of the matrix to quaternion conversion
	for _, aa := range []*R4AA{
		{0.3, 0, 0, 1},
		{math.Pi - 0.01, 1, 0, 0},
		{math.Pi - 0.01, 0, 1, 0},
		{math.Pi - 0.01, 0, 0, 1},
		{2.5, 1, 2, 3},
	} {
		rm := aa.RotationMatrix()
		back := rm.AxisAngles()
		test.That(t, back.Theta, test.ShouldAlmostEqual, aa.Theta)
		test.That(t, back.RX, test.ShouldAlmostEqual, aa.RX)
		test.That(t, back.RY, test.ShouldAlmostEqual, aa.RY)
		test.That(t, back.RZ, test.ShouldAlmostEqual, aa.RZ)
	}
}

func TestRotationMatrixAccessors(t *testing.T) {
	rm, err := NewRotationMatrix([]float64{1, 2, 3, 4, 5, 6, 7, 8, 9})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, rm.At(1, 2), test.ShouldEqual, 6.)
	test.That(t, rm.Row(2), test.ShouldResemble, r3.Vector{X: 7, Y: 8, Z: 9})
	test.That(t, rm.Col(0), test.ShouldResemble, r3.Vector{X: 1, Y: 4, Z: 7})
	test.That(t, rm.Mul(r3.Vector{X: 1, Y: 0, Z: 0}), test.ShouldResemble, r3.Vector{X: 1, Y: 4, Z: 7})

	_, err = NewRotationMatrix([]float64{1, 2})
	test.That(t, err, test.ShouldNotBeNil)
}

func TestAngleBetween(t *testing.T) {
	a := &R4AA{0.2, 0, 1, 0}
	b := &R4AA{0.5, 0, 1, 0}
	test.That(t, AngleBetween(a, b), test.ShouldAlmostEqual, 0.3)
	test.That(t, AngleBetween(b, b), test.ShouldAlmostEqual, 0)

	// q and -q are the same rotation
	neg := NewQuaternion(quat.Scale(-1, q45x))
	test.That(t, AngleBetween(neg, aa45x), test.ShouldAlmostEqual, 0)
	test.That(t, OrientationAlmostEqual(neg, rm45x), test.ShouldBeTrue)
}
