package spatial

import (
	"math"
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"
	"gonum.org/v1/gonum/num/quat"
)

func TestComposeInvertRoundTrip(t *testing.T) {
	p := NewPose(r3.Vector{X: 1, Y: 2, Z: 3}, quat.Number{Real: math.Cos(0.3), Kmag: math.Sin(0.3)})
	roundTrip := p.Compose(p.Invert())
	test.That(t, roundTrip.AlmostEqual(Identity(), 1e-9), test.ShouldBeTrue)
}

func TestTransformRotatesThenTranslates(t *testing.T) {
	// A 90 degree rotation about Z, translated by (1,0,0).
	p := NewPose(r3.Vector{X: 1, Y: 0, Z: 0}, quat.Number{Real: math.Cos(math.Pi / 4), Kmag: math.Sin(math.Pi / 4)})
	got := p.Transform(r3.Vector{X: 1, Y: 0, Z: 0})
	want := r3.Vector{X: 1, Y: 1, Z: 0}
	test.That(t, got.Sub(want).Norm(), test.ShouldBeLessThan, 1e-9)
}

func TestSlerpEndpoints(t *testing.T) {
	a := NewPose(r3.Vector{}, quat.Number{Real: 1})
	b := NewPose(r3.Vector{X: 10}, quat.Number{Real: math.Cos(math.Pi / 2), Kmag: math.Sin(math.Pi / 2)})

	at0 := Slerp(a, b, 0)
	test.That(t, at0.AlmostEqual(a, 1e-9), test.ShouldBeTrue)

	at1 := Slerp(a, b, 1)
	test.That(t, at1.AlmostEqual(b, 1e-9), test.ShouldBeTrue)

	mid := Slerp(a, b, 0.5)
	test.That(t, mid.Point.X, test.ShouldAlmostEqual, 5.0)
}

func TestInterpolateAtClampsOutOfRange(t *testing.T) {
	a := NewPose(r3.Vector{X: 0}, quat.Number{Real: 1})
	b := NewPose(r3.Vector{X: 10}, quat.Number{Real: 1})

	before := InterpolateAt(100, a, 200, b, 50)
	test.That(t, before.Point.X, test.ShouldAlmostEqual, 0.0)

	after := InterpolateAt(100, a, 200, b, 250)
	test.That(t, after.Point.X, test.ShouldAlmostEqual, 10.0)

	mid := InterpolateAt(100, a, 200, b, 150)
	test.That(t, mid.Point.X, test.ShouldAlmostEqual, 5.0)
}

func TestComposeChain(t *testing.T) {
	tGM := NewPose(r3.Vector{X: 5}, quat.Number{Real: 1})
	tMB := NewPose(r3.Vector{X: 1}, quat.Number{Real: 1})
	tGB := tGM.Compose(tMB)
	test.That(t, tGB.Point.X, test.ShouldAlmostEqual, 6.0)
}
