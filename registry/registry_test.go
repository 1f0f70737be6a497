package registry

import (
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"
	"gonum.org/v1/gonum/num/quat"

	"github.com/136709865/maplab/spatial"
)

func pose(x float64) spatial.Pose {
	return spatial.NewPose(r3.Vector{X: x}, quat.Number{Real: 1})
}

func TestObserveMissionPrependsOnlyWhenNew(t *testing.T) {
	r := New(0)
	r.ObserveMission("robotA", "m1")
	r.ObserveMission("robotA", "m1")
	r.ObserveMission("robotA", "m2")

	chain := r.MissionChain("robotA")
	test.That(t, chain, test.ShouldResemble, []string{"m2", "m1"})

	owner, ok := r.Owner("m2")
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, owner, test.ShouldEqual, "robotA")
}

func TestAnchorAtRoundTrip(t *testing.T) {
	r := New(0)
	r.RecordAnchor("robotA", 100, pose(1), pose(2), 1000)

	tmb, tgm, ok := r.AnchorAt("robotA", 100)
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, tmb.Point.X, test.ShouldAlmostEqual, 1.0)
	test.That(t, tgm.Point.X, test.ShouldAlmostEqual, 2.0)

	_, _, ok = r.AnchorAt("robotA", 999)
	test.That(t, ok, test.ShouldBeFalse)
}

func TestRecordAnchorPrunesByTTL(t *testing.T) {
	r := New(50)
	r.RecordAnchor("robotA", 100, pose(1), pose(1), 100)
	r.RecordAnchor("robotA", 200, pose(1), pose(1), 200)

	_, _, ok := r.AnchorAt("robotA", 100)
	test.That(t, ok, test.ShouldBeFalse)
	_, _, ok = r.AnchorAt("robotA", 200)
	test.That(t, ok, test.ShouldBeTrue)
}

func TestRemoveMission(t *testing.T) {
	r := New(0)
	r.ObserveMission("robotA", "m1")
	r.ObserveMission("robotA", "m2")
	r.RemoveMission("m1")

	test.That(t, r.MissionChain("robotA"), test.ShouldResemble, []string{"m2"})
	_, ok := r.Owner("m1")
	test.That(t, ok, test.ShouldBeFalse)
}
