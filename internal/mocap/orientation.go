package mocap

import (
	"math"

	"gonum.org/v1/gonum/num/quat"
)

// Orientation conventions:
//
// Sender angles are degrees. The rotation is applied about Z first, then X,
// then Y (extrinsic), i.e. q = qY * qX * qZ. No handedness conversion is
// applied; a consumer with a different axis convention must remap.

func axisAngle(deg, x, y, z float64) quat.Number {
	half := deg * math.Pi / 360.0
	s := math.Sin(half)
	return quat.Number{Real: math.Cos(half), Imag: x * s, Jmag: y * s, Kmag: z * s}
}

// EulerToQuat converts Euler angles in degrees to a unit quaternion.
func EulerToQuat(rot Vec3) quat.Number {
	qx := axisAngle(rot.X, 1, 0, 0)
	qy := axisAngle(rot.Y, 0, 1, 0)
	qz := axisAngle(rot.Z, 0, 0, 1)
	return quat.Mul(quat.Mul(qy, qx), qz)
}

// Orientation returns the head rotation as a unit quaternion.
func (p HeadPose) Orientation() quat.Number {
	return EulerToQuat(p.Rotation)
}

// Rotate applies q to v.
func Rotate(q quat.Number, v Vec3) Vec3 {
	p := quat.Number{Imag: v.X, Jmag: v.Y, Kmag: v.Z}
	r := quat.Mul(quat.Mul(q, p), quat.Conj(q))
	return Vec3{X: r.Imag, Y: r.Jmag, Z: r.Kmag}
}
