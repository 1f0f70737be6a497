// Package spatial provides the rigid-transform algebra the merge loop and
// lookup service use to reason about T_G_B, T_M_B, and T_G_M poses.
//
// It follows the teacher's spatialmath package in choosing gonum's quaternion
// type for orientation and golang/geo's r3.Vector for points, rather than
// hand-rolling a matrix stack.
package spatial

import (
	"math"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/num/quat"
)

// Pose is a rigid transform: a translation plus a unit-quaternion rotation.
// Composed left-to-right the way T_X_Y names suggest: T_A_C = T_A_B.Compose(T_B_C).
type Pose struct {
	Point       r3.Vector
	Orientation quat.Number
}

// Identity returns the pose with zero translation and no rotation.
func Identity() Pose {
	return Pose{Orientation: quat.Number{Real: 1}}
}

// NewPose builds a pose from a point and an (not necessarily normalized) orientation.
func NewPose(p r3.Vector, o quat.Number) Pose {
	return Pose{Point: p, Orientation: normalize(o)}
}

func normalize(q quat.Number) quat.Number {
	n := quat.Abs(q)
	if n == 0 {
		return quat.Number{Real: 1}
	}
	return quat.Scale(1/n, q)
}

// rotate applies the pose's orientation to a vector.
func rotate(o quat.Number, v r3.Vector) r3.Vector {
	p := quat.Number{Imag: v.X, Jmag: v.Y, Kmag: v.Z}
	r := quat.Mul(quat.Mul(o, p), quat.Conj(o))
	return r3.Vector{X: r.Imag, Y: r.Jmag, Z: r.Kmag}
}

// Compose returns the pose equivalent to applying `by` in the frame defined by p.
// If p == T_A_B and by == T_B_C, Compose returns T_A_C.
func (p Pose) Compose(by Pose) Pose {
	return Pose{
		Point:       p.Point.Add(rotate(p.Orientation, by.Point)),
		Orientation: normalize(quat.Mul(p.Orientation, by.Orientation)),
	}
}

// Invert returns the pose such that p.Compose(p.Invert()) == Identity().
// If p == T_A_B, Invert returns T_B_A.
func (p Pose) Invert() Pose {
	inv := quat.Conj(p.Orientation)
	return Pose{
		Point:       rotate(inv, p.Point.Mul(-1)),
		Orientation: inv,
	}
}

// Transform applies the pose to a point expressed in its local frame, returning
// the point in the parent frame: if p == T_G_S, Transform(p_S) == p_G.
func (p Pose) Transform(local r3.Vector) r3.Vector {
	return p.Point.Add(rotate(p.Orientation, local))
}

// AlmostEqual reports whether two poses agree within tol on both translation and
// rotation (orientation compared via the angle of the relative quaternion).
func (p Pose) AlmostEqual(other Pose, tol float64) bool {
	if p.Point.Sub(other.Point).Norm() > tol {
		return false
	}
	rel := quat.Mul(other.Orientation, quat.Conj(p.Orientation))
	// angle of rotation represented by rel; identity has Real == +-1.
	angle := 2 * math.Atan2(math.Hypot(math.Hypot(rel.Imag, rel.Jmag), rel.Kmag), math.Abs(rel.Real))
	return angle <= tol
}

// Slerp spherically interpolates the rotation between p and q at fraction t
// in [0, 1], and linearly interpolates translation. Grounded in the teacher's
// manual-trigonometry style for quaternion conversions (spatialmath.QuatToR4AA):
// gonum's quat package does not itself expose Slerp.
func Slerp(p, q Pose, t float64) Pose {
	return Pose{
		Point:       p.Point.Add(q.Point.Sub(p.Point).Mul(t)),
		Orientation: slerpQuat(p.Orientation, q.Orientation, t),
	}
}

func dot(a, b quat.Number) float64 {
	return a.Real*b.Real + a.Imag*b.Imag + a.Jmag*b.Jmag + a.Kmag*b.Kmag
}

func slerpQuat(a, b quat.Number, t float64) quat.Number {
	a = normalize(a)
	b = normalize(b)

	cosHalfTheta := dot(a, b)
	if cosHalfTheta < 0 {
		// Take the shorter path around the hypersphere.
		b = quat.Scale(-1, b)
		cosHalfTheta = -cosHalfTheta
	}

	const closeEnough = 1e-9
	if cosHalfTheta > 1-closeEnough {
		return normalize(quat.Number{
			Real: a.Real + t*(b.Real-a.Real),
			Imag: a.Imag + t*(b.Imag-a.Imag),
			Jmag: a.Jmag + t*(b.Jmag-a.Jmag),
			Kmag: a.Kmag + t*(b.Kmag-a.Kmag),
		})
	}

	halfTheta := math.Acos(cosHalfTheta)
	sinHalfTheta := math.Sqrt(1 - cosHalfTheta*cosHalfTheta)

	ratioA := math.Sin((1-t)*halfTheta) / sinHalfTheta
	ratioB := math.Sin(t*halfTheta) / sinHalfTheta

	return normalize(quat.Number{
		Real: a.Real*ratioA + b.Real*ratioB,
		Imag: a.Imag*ratioA + b.Imag*ratioB,
		Jmag: a.Jmag*ratioA + b.Jmag*ratioB,
		Kmag: a.Kmag*ratioA + b.Kmag*ratioB,
	})
}

// InterpolateAt linearly/SLERP-interpolates the pose at timestamp ts between two
// timestamped bracketing poses. Returns a unchanged if tsB <= tsA; callers are
// expected to have already ordered the bracketing vertices.
func InterpolateAt(tsA int64, a Pose, tsB int64, b Pose, ts int64) Pose {
	if tsB <= tsA {
		return a
	}
	t := float64(ts-tsA) / float64(tsB-tsA)
	if t < 0 {
		t = 0
	}
	if t > 1 {
		t = 1
	}
	return Slerp(a, b, t)
}
