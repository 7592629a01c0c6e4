package fiducial

import (
	"math"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"

	"go.viam.com/fiducial/rimage/transform"
	"go.viam.com/fiducial/utils"
)

// collinearityTolerance is the smallest sine of the angle between adjacent edges for which
// three corners are not considered collinear.
const collinearityTolerance = 1e-9

// CanonicalCorners are the tag square corners in homography coordinates, in detection corner order.
var CanonicalCorners = [4]r2.Point{{X: -1, Y: 1}, {X: 1, Y: 1}, {X: 1, Y: -1}, {X: -1, Y: -1}}

// Detection is one tag found by the detector in a frame.
type Detection struct {
	ID              int     `json:"id"`
	Family          string  `json:"family,omitempty"`
	HammingDistance int     `json:"hamming"`
	DecisionMargin  float64 `json:"decision_margin"`
	// Corners are ordered counter-clockwise around the tag starting from the image of CanonicalCorners[0].
	Corners    [4]r2.Point          `json:"corners"`
	Center     r2.Point             `json:"center"`
	Homography transform.Homography `json:"homography"`
}

// Area returns the area enclosed by the corners, in square pixels.
func (d *Detection) Area() float64 {
	sum := 0.0
	for i := range d.Corners {
		sum += d.Corners[i].Cross(d.Corners[(i+1)%len(d.Corners)])
	}
	return math.Abs(sum) / 2
}

// Degenerate reports whether the corners cannot bound a tag: non-finite values, three collinear
// corners, a self-intersecting outline or no enclosed area.
func (d *Detection) Degenerate() bool {
	for _, c := range d.Corners {
		if !utils.IsFinite(c.X, c.Y) {
			return true
		}
	}
	sign := 0.0
	for i := range d.Corners {
		a, b, c := d.Corners[i], d.Corners[(i+1)%4], d.Corners[(i+2)%4]
		e1, e2 := b.Sub(a), c.Sub(b)
		cross := e1.Cross(e2)
		if math.Abs(cross) <= collinearityTolerance*e1.Norm()*e2.Norm() {
			return true
		}
		if sign == 0 {
			sign = cross
		} else if sign*cross < 0 {
			return true
		}
	}
	return d.Area() <= 0
}

// objectPoints returns the tag corners in the tag frame for a tag with the given edge length.
func objectPoints(tagSize float64) [4]r3.Vector {
	var pts [4]r3.Vector
	for i, c := range CanonicalCorners {
		pts[i] = r3.Vector{X: c.X * tagSize / 2, Y: c.Y * tagSize / 2}
	}
	return pts
}
