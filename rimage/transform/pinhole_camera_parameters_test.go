package transform

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"go.viam.com/test"
)

func TestIntrinsicsFromFOV(t *testing.T) {
	intrinsics, err := NewPinholeCameraIntrinsicsFromFOV(640, 480, math.Pi/3)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, intrinsics.CheckValid(), test.ShouldBeNil)
	test.That(t, intrinsics.Fx, test.ShouldAlmostEqual, 320/math.Tan(math.Pi/6))
	test.That(t, intrinsics.Fy, test.ShouldAlmostEqual, intrinsics.Fx)
	test.That(t, intrinsics.Ppx, test.ShouldEqual, 320.)
	test.That(t, intrinsics.Ppy, test.ShouldEqual, 240.)

	_, err = NewPinholeCameraIntrinsicsFromFOV(0, 480, 1)
	test.That(t, errors.Is(err, ErrNoIntrinsics), test.ShouldBeTrue)
	_, err = NewPinholeCameraIntrinsicsFromFOV(640, 480, math.Pi)
	test.That(t, errors.Is(err, ErrNoIntrinsics), test.ShouldBeTrue)
	_, err = NewPinholeCameraIntrinsicsFromFOV(640, 480, -0.5)
	test.That(t, err, test.ShouldNotBeNil)
}

func TestCheckValid(t *testing.T) {
	var nilIntrinsics *PinholeCameraIntrinsics
	test.That(t, nilIntrinsics.CheckValid(), test.ShouldNotBeNil)

	intrinsics := &PinholeCameraIntrinsics{Width: 10, Height: 10, Fx: 0, Fy: 1}
	test.That(t, intrinsics.CheckValid(), test.ShouldNotBeNil)
	intrinsics.Fx = 1
	test.That(t, intrinsics.CheckValid(), test.ShouldBeNil)
	intrinsics.Ppy = -1
	test.That(t, intrinsics.CheckValid(), test.ShouldNotBeNil)
}

func TestProjection(t *testing.T) {
	intrinsics := &PinholeCameraIntrinsics{Width: 640, Height: 480, Fx: 500, Fy: 400, Ppx: 320, Ppy: 240}

	px, ok := intrinsics.ProjectPoint(r3.Vector{X: 0.1, Y: -0.2, Z: 2})
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, px.X, test.ShouldAlmostEqual, 345)
	test.That(t, px.Y, test.ShouldAlmostEqual, 200)

	_, ok = intrinsics.ProjectPoint(r3.Vector{X: 0, Y: 0, Z: -1})
	test.That(t, ok, test.ShouldBeFalse)

	ray := intrinsics.NormalizedRay(r2.Point{X: 345, Y: 200})
	test.That(t, ray.X, test.ShouldAlmostEqual, 0.05)
	test.That(t, ray.Y, test.ShouldAlmostEqual, -0.1)
	test.That(t, ray.Z, test.ShouldEqual, 1.)

	k := intrinsics.GetCameraMatrix()
	test.That(t, k.At(0, 0), test.ShouldEqual, 500.)
	test.That(t, k.At(1, 2), test.ShouldEqual, 240.)
	test.That(t, k.At(2, 2), test.ShouldEqual, 1.)
}

func TestIntrinsicsFromJSONFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "intrinsics.json")
	err := os.WriteFile(path, []byte(`{"width_px":640,"height_px":480,"fx":600,"fy":601,"ppx":319.5,"ppy":239.5}`), 0o600)
	test.That(t, err, test.ShouldBeNil)

	intrinsics, err := NewPinholeCameraIntrinsicsFromJSONFile(path)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, *intrinsics, test.ShouldResemble, PinholeCameraIntrinsics{640, 480, 600, 601, 319.5, 239.5})

	_, err = NewPinholeCameraIntrinsicsFromJSONFile(filepath.Join(t.TempDir(), "missing.json"))
	test.That(t, err, test.ShouldNotBeNil)

	err = os.WriteFile(path, []byte(`{"width_px":640,"height_px":480,"fx":0,"fy":601}`), 0o600)
	test.That(t, err, test.ShouldBeNil)
	_, err = NewPinholeCameraIntrinsicsFromJSONFile(path)
	test.That(t, errors.Is(err, ErrNoIntrinsics), test.ShouldBeTrue)

	err = os.WriteFile(path, []byte(`{"width_px":640,"focal":1}`), 0o600)
	test.That(t, err, test.ShouldBeNil)
	_, err = NewPinholeCameraIntrinsicsFromJSONFile(path)
	test.That(t, err, test.ShouldNotBeNil)
}
