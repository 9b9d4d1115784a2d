package mocap

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/num/quat"
)

const eps = 1e-9

func approx(a, b float64) bool { return math.Abs(a-b) < eps }

func approxVec(a, b Vec3) bool {
	return approx(a.X, b.X) && approx(a.Y, b.Y) && approx(a.Z, b.Z)
}

func TestEulerToQuat_Identity(t *testing.T) {
	q := EulerToQuat(Vec3{})
	if q != (quat.Number{Real: 1}) {
		t.Errorf("zero rotation = %v, want identity", q)
	}
}

func TestEulerToQuat_UnitNorm(t *testing.T) {
	cases := []Vec3{
		{X: 10, Y: 20, Z: 30},
		{X: -45, Y: 170, Z: 5},
		{X: 359, Y: -359, Z: 90},
	}
	for _, c := range cases {
		if n := quat.Abs(EulerToQuat(c)); !approx(n, 1) {
			t.Errorf("|q(%v)| = %v, want 1", c, n)
		}
	}
}

func TestEulerToQuat_SingleAxis(t *testing.T) {
	// 90 degrees about Y maps +X to -Z.
	got := Rotate(EulerToQuat(Vec3{Y: 90}), Vec3{X: 1})
	if !approxVec(got, Vec3{Z: -1}) {
		t.Errorf("Y90 * +X = %+v, want (0,0,-1)", got)
	}

	// 90 degrees about X maps +Y to +Z.
	got = Rotate(EulerToQuat(Vec3{X: 90}), Vec3{Y: 1})
	if !approxVec(got, Vec3{Z: 1}) {
		t.Errorf("X90 * +Y = %+v, want (0,0,1)", got)
	}

	// 90 degrees about Z maps +X to +Y.
	got = Rotate(EulerToQuat(Vec3{Z: 90}), Vec3{X: 1})
	if !approxVec(got, Vec3{Y: 1}) {
		t.Errorf("Z90 * +X = %+v, want (0,1,0)", got)
	}
}

func TestEulerToQuat_ZThenXThenY(t *testing.T) {
	rot := Vec3{X: 90, Y: 90, Z: 90}
	v := Vec3{X: 1}

	// Apply the three axis rotations one after another.
	step := Rotate(EulerToQuat(Vec3{Z: rot.Z}), v)
	step = Rotate(EulerToQuat(Vec3{X: rot.X}), step)
	step = Rotate(EulerToQuat(Vec3{Y: rot.Y}), step)

	got := Rotate(EulerToQuat(rot), v)
	if !approxVec(got, step) {
		t.Errorf("combined = %+v, sequential = %+v", got, step)
	}
}

func TestHeadPose_Orientation(t *testing.T) {
	p := HeadPose{Rotation: Vec3{X: 10, Y: 20, Z: 30}}
	if p.Orientation() != EulerToQuat(p.Rotation) {
		t.Error("Orientation should match EulerToQuat of Rotation")
	}
}

func TestFrameKind_String(t *testing.T) {
	if FrameHead.String() != "head" || FrameWeights.String() != "weights" {
		t.Error("unexpected FrameKind names")
	}
	if FrameKind(0).String() != "unknown" {
		t.Error("zero FrameKind should be unknown")
	}
}
