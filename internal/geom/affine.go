package geom

import "math"

// affineEpsilon bounds the determinant below which a transform is treated as singular.
const affineEpsilon = 1e-12

// Affine is a 2-D affine transform mapping (x, y) to
// (A*x + C*y + Tx, B*x + D*y + Ty).
type Affine struct {
	A, B, C, D float64
	Tx, Ty     float64
}

// IdentityAffine leaves every point unchanged.
var IdentityAffine = Affine{A: 1, D: 1}

// Scale returns a transform scaling x by sx and y by sy.
func Scale(sx, sy float64) Affine {
	return Affine{A: sx, D: sy}
}

// Translate returns a transform shifting points by (tx, ty).
func Translate(tx, ty float64) Affine {
	return Affine{A: 1, D: 1, Tx: tx, Ty: ty}
}

// ApplyPoint maps p through t.
func (t Affine) ApplyPoint(p Point) Point {
	return Point{
		X: t.A*p.X + t.C*p.Y + t.Tx,
		Y: t.B*p.X + t.D*p.Y + t.Ty,
	}
}

// Concat returns the transform that applies t first and then u.
func (t Affine) Concat(u Affine) Affine {
	return Affine{
		A:  t.A*u.A + t.B*u.C,
		B:  t.A*u.B + t.B*u.D,
		C:  t.C*u.A + t.D*u.C,
		D:  t.C*u.B + t.D*u.D,
		Tx: t.Tx*u.A + t.Ty*u.C + u.Tx,
		Ty: t.Tx*u.B + t.Ty*u.D + u.Ty,
	}
}

// Det returns the determinant of the linear part.
func (t Affine) Det() float64 {
	return t.A*t.D - t.B*t.C
}

// Invert returns the inverse transform. ok is false when t is singular.
func (t Affine) Invert() (inv Affine, ok bool) {
	det := t.Det()
	if math.Abs(det) < affineEpsilon {
		return Affine{}, false
	}
	return Affine{
		A:  t.D / det,
		B:  -t.B / det,
		C:  -t.C / det,
		D:  t.A / det,
		Tx: (t.C*t.Ty - t.D*t.Tx) / det,
		Ty: (t.B*t.Tx - t.A*t.Ty) / det,
	}, true
}

// IsIdentity reports whether t equals IdentityAffine.
func (t Affine) IsIdentity() bool {
	return t == IdentityAffine
}
