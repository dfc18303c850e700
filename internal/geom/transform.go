package geom

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// RigidTolerance is the tolerance for checking rotation matrix validity.
const RigidTolerance = 0.01

// Transform is a 4x4 row-major rigid transform
// [m00,m01,m02,m03, m10,m11,m12,m13, m20,m21,m22,m23, m30,m31,m32,m33].
type Transform [16]float64

// IdentityTransform is the world origin with no rotation.
var IdentityTransform = Transform{1, 0, 0, 0, 0, 1, 0, 0, 0, 0, 1, 0, 0, 0, 0, 1}

// Translation returns a pure translation to v.
func Translation(v r3.Vec) Transform {
	t := IdentityTransform
	t[3], t[7], t[11] = v.X, v.Y, v.Z
	return t
}

// RotationY returns a rotation of rad radians about the +Y (up) axis.
func RotationY(rad float64) Transform {
	c, s := math.Cos(rad), math.Sin(rad)
	return Transform{
		c, 0, s, 0,
		0, 1, 0, 0,
		-s, 0, c, 0,
		0, 0, 0, 1,
	}
}

// Position returns the translation component.
func (t Transform) Position() r3.Vec {
	return r3.Vec{X: t[3], Y: t[7], Z: t[11]}
}

// WithPosition returns t with its translation replaced by v.
func (t Transform) WithPosition(v r3.Vec) Transform {
	t[3], t[7], t[11] = v.X, v.Y, v.Z
	return t
}

// ApplyPoint transforms a point, including translation.
func (t Transform) ApplyPoint(v r3.Vec) r3.Vec {
	return r3.Vec{
		X: t[0]*v.X + t[1]*v.Y + t[2]*v.Z + t[3],
		Y: t[4]*v.X + t[5]*v.Y + t[6]*v.Z + t[7],
		Z: t[8]*v.X + t[9]*v.Y + t[10]*v.Z + t[11],
	}
}

// ApplyDirection rotates a direction vector, ignoring translation.
func (t Transform) ApplyDirection(v r3.Vec) r3.Vec {
	return r3.Vec{
		X: t[0]*v.X + t[1]*v.Y + t[2]*v.Z,
		Y: t[4]*v.X + t[5]*v.Y + t[6]*v.Z,
		Z: t[8]*v.X + t[9]*v.Y + t[10]*v.Z,
	}
}

// Mul returns t*u, the transform applying u first and then t.
func (t Transform) Mul(u Transform) Transform {
	var out Transform
	for r := 0; r < 4; r++ {
		for c := 0; c < 4; c++ {
			var sum float64
			for k := 0; k < 4; k++ {
				sum += t[r*4+k] * u[k*4+c]
			}
			out[r*4+c] = sum
		}
	}
	return out
}

// IsRigid checks that t is a proper rigid transform: the rotation block has
// determinant 1 and the last row is [0 0 0 1].
func (t Transform) IsRigid() bool {
	r00, r01, r02 := t[0], t[1], t[2]
	r10, r11, r12 := t[4], t[5], t[6]
	r20, r21, r22 := t[8], t[9], t[10]

	det := r00*(r11*r22-r12*r21) - r01*(r10*r22-r12*r20) + r02*(r10*r21-r11*r20)
	if math.Abs(det-1.0) > RigidTolerance {
		return false
	}
	if t[12] != 0 || t[13] != 0 || t[14] != 0 || math.Abs(t[15]-1.0) > 0.001 {
		return false
	}
	return true
}
