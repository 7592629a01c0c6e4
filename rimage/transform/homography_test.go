package transform

import (
	"math"
	"testing"

	"github.com/golang/geo/r2"
	"go.viam.com/test"
)

func TestHomographyApply(t *testing.T) {
	h, err := NewHomography([]float64{
		2, 0, 10,
		0, 3, 20,
		0, 0, 1,
	})
	test.That(t, err, test.ShouldBeNil)
	out := h.Apply(r2.Point{X: 1, Y: 1})
	test.That(t, out.X, test.ShouldAlmostEqual, 12)
	test.That(t, out.Y, test.ShouldAlmostEqual, 23)
	test.That(t, h.IsUsable(), test.ShouldBeTrue)

	_, err = NewHomography([]float64{1, 2, 3})
	test.That(t, err, test.ShouldNotBeNil)
}

func TestHomographyUsable(t *testing.T) {
	var zero Homography
	test.That(t, zero.IsUsable(), test.ShouldBeFalse)

	var nilH *Homography
	test.That(t, nilH.IsUsable(), test.ShouldBeFalse)

	singular := Homography{{1, 2, 3}, {2, 4, 6}, {0, 0, 1}}
	test.That(t, singular.IsUsable(), test.ShouldBeFalse)

	nan := Homography{{math.NaN(), 0, 0}, {0, 1, 0}, {0, 0, 1}}
	test.That(t, nan.IsUsable(), test.ShouldBeFalse)
}

func TestEstimateHomography(t *testing.T) {
	truth := Homography{
		{210.5, -12.25, 320.0},
		{8.75, 190.0, 240.0},
		{0.05, -0.02, 1},
	}
	src := []r2.Point{{X: -1, Y: 1}, {X: 1, Y: 1}, {X: 1, Y: -1}, {X: -1, Y: -1}}
	dst := make([]r2.Point, len(src))
	for i, p := range src {
		dst[i] = truth.Apply(p)
	}

	h, err := EstimateHomography(src, dst)
	test.That(t, err, test.ShouldBeNil)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			test.That(t, h.At(i, j), test.ShouldAlmostEqual, truth.At(i, j), 1e-6)
		}
	}
	for i, p := range src {
		got := h.Apply(p)
		test.That(t, got.X, test.ShouldAlmostEqual, dst[i].X, 1e-7)
		test.That(t, got.Y, test.ShouldAlmostEqual, dst[i].Y, 1e-7)
	}
	// points other than the correspondences follow the same mapping
	mid := h.Apply(r2.Point{X: 0.25, Y: -0.5})
	want := truth.Apply(r2.Point{X: 0.25, Y: -0.5})
	test.That(t, mid.X, test.ShouldAlmostEqual, want.X, 1e-7)
	test.That(t, mid.Y, test.ShouldAlmostEqual, want.Y, 1e-7)
}

func TestEstimateHomographyErrors(t *testing.T) {
	square := []r2.Point{{X: 0, Y: 0}, {X: 1, Y: 0}, {X: 1, Y: 1}, {X: 0, Y: 1}}

	_, err := EstimateHomography(square, square[:3])
	test.That(t, err, test.ShouldNotBeNil)

	_, err = EstimateHomography(square[:3], square[:3])
	test.That(t, err, test.ShouldNotBeNil)

	same := []r2.Point{{X: 5, Y: 5}, {X: 5, Y: 5}, {X: 5, Y: 5}, {X: 5, Y: 5}}
	_, err = EstimateHomography(square, same)
	test.That(t, err, test.ShouldNotBeNil)

	collinear := []r2.Point{{X: 0, Y: 0}, {X: 1, Y: 1}, {X: 2, Y: 2}, {X: 3, Y: 3}}
	_, err = EstimateHomography(square, collinear)
	test.That(t, err, test.ShouldNotBeNil)
}
