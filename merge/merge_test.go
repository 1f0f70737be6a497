package merge

import (
	"context"
	"testing"

	"github.com/edaniels/golog"
	"github.com/golang/geo/r3"
	"go.viam.com/test"
	"gonum.org/v1/gonum/num/quat"

	"github.com/136709865/maplab/blacklist"
	"github.com/136709865/maplab/command/fake"
	"github.com/136709865/maplab/config"
	"github.com/136709865/maplab/mapstore"
	"github.com/136709865/maplab/mergestate"
	"github.com/136709865/maplab/pubsub"
	"github.com/136709865/maplab/queue"
	"github.com/136709865/maplab/registry"
	"github.com/136709865/maplab/spatial"
	"github.com/136709865/maplab/submap"
)

func identityAt(x float64) spatial.Pose {
	return spatial.NewPose(r3.Vector{X: x}, quat.Number{Real: 1})
}

func newLoop(t *testing.T, cfg config.Config) (*Loop, *queue.Queue, *mapstore.Store, *registry.Registry, *blacklist.Blacklist) {
	t.Helper()
	q := queue.New()
	store := mapstore.New()
	reg := registry.New(0)
	bl := blacklist.New()
	runner := fake.New()
	loop := New(q, store, reg, bl, runner, cfg, mergestate.New(), golog.NewTestLogger(t))
	return loop, q, store, reg, bl
}

func readyProcess(t *testing.T, store *mapstore.Store, reg *registry.Registry, robotName, missionID, mapKey string, vertex mapstore.Vertex) *submap.Process {
	t.Helper()
	md := mapstore.NewMapData()
	md.AppendMission(missionID, []mapstore.Vertex{vertex}, map[string]spatial.Pose{"cam0": spatial.Identity()})
	store.Put(mapKey, md)

	p := submap.New(robotName, "/submaps/"+mapKey+".json")
	p.SetLoaded(mapKey, missionID)
	p.SetProcessed(nil)
	reg.ObserveMission(robotName, missionID)
	reg.RecordAnchor(robotName, vertex.TimestampNs, vertex.TMB, vertex.TGM, vertex.TimestampNs)
	return p
}

func TestAppendAvailableSubmapsMergesAndClearsQueue(t *testing.T) {
	loop, q, store, reg, _ := newLoop(t, config.Default())

	vertex := mapstore.Vertex{TimestampNs: 100, TGB: identityAt(5), TMB: identityAt(1), TGM: identityAt(4)}
	p := readyProcess(t, store, reg, "robotA", "mission1", "hash1", vertex)
	q.Enqueue(p)

	changed := loop.appendAvailableSubmaps()
	test.That(t, changed["robotA"], test.ShouldBeTrue)
	test.That(t, q.Len(), test.ShouldEqual, 0)
	test.That(t, store.Has("hash1"), test.ShouldBeFalse)

	handle, err := store.AcquireRead(mapstore.MergedMapKey)
	test.That(t, err, test.ShouldBeNil)
	defer handle.Close()
	test.That(t, handle.Data().HasMission("mission1"), test.ShouldBeTrue)
}

func TestAppendAvailableSubmapsDiscardsBlacklistedHeadAndMergesBehindIt(t *testing.T) {
	loop, q, store, reg, bl := newLoop(t, config.Default())

	vertexA := mapstore.Vertex{TimestampNs: 100, TGB: identityAt(5), TMB: identityAt(1), TGM: identityAt(4)}
	pA := readyProcess(t, store, reg, "robotA", "mission-deleted", "hashA", vertexA)
	q.Enqueue(pA)

	vertexB := mapstore.Vertex{TimestampNs: 200, TGB: identityAt(9), TMB: identityAt(1), TGM: identityAt(4)}
	pB := readyProcess(t, store, reg, "robotB", "mission-kept", "hashB", vertexB)
	q.Enqueue(pB)

	bl.Add("mission-deleted", "deleted before merge")

	changed := loop.appendAvailableSubmaps()

	// robotA's blacklisted submap must not stall robotB's behind it.
	test.That(t, changed["robotB"], test.ShouldBeTrue)
	test.That(t, changed["robotA"], test.ShouldBeFalse)
	test.That(t, q.Len(), test.ShouldEqual, 0)

	// Its loaded map must be released from the store, not leaked.
	test.That(t, store.Has("hashA"), test.ShouldBeFalse)
	test.That(t, store.Has("hashB"), test.ShouldBeFalse)

	handle, err := store.AcquireRead(mapstore.MergedMapKey)
	test.That(t, err, test.ShouldBeNil)
	defer handle.Close()
	test.That(t, handle.Data().HasMission("mission-deleted"), test.ShouldBeFalse)
	test.That(t, handle.Data().HasMission("mission-kept"), test.ShouldBeTrue)
}

func TestDeleteBlacklistedMissionsRemovesFromMergedMap(t *testing.T) {
	loop, q, store, reg, bl := newLoop(t, config.Default())

	vertex := mapstore.Vertex{TimestampNs: 100, TGB: identityAt(5), TMB: identityAt(1), TGM: identityAt(4)}
	p := readyProcess(t, store, reg, "robotA", "mission1", "hash1", vertex)
	q.Enqueue(p)
	loop.appendAvailableSubmaps()

	bl.Add("mission1", "test deletion")
	loop.deleteBlacklistedMissions()

	test.That(t, store.Has(mapstore.MergedMapKey), test.ShouldBeFalse)
	_, ok := reg.Owner("mission1")
	test.That(t, ok, test.ShouldBeFalse)
}

func TestPublishCorrectionsComputesTBOldBNew(t *testing.T) {
	loop, q, store, reg, _ := newLoop(t, config.Default())

	vertex := mapstore.Vertex{TimestampNs: 100, TGB: identityAt(7), TMB: identityAt(1), TGM: identityAt(4)}
	p := readyProcess(t, store, reg, "robotA", "mission1", "hash1", vertex)
	q.Enqueue(p)
	changed := loop.appendAvailableSubmaps()

	var received pubsub.Correction
	loop.RegisterCorrectionCallback(pubsub.CorrectionPublisherFunc(func(c pubsub.Correction) {
		received = c
	}))
	loop.publishCorrections(changed)

	test.That(t, received.RobotName, test.ShouldEqual, "robotA")
	test.That(t, received.TimestampNs, test.ShouldEqual, int64(100))
	// T_G_M_old (x=4) composed with T_M_B_old (x=1) = x=5; T_G_B_new x=7;
	// so T_B_old_B_new should translate by (7-5)=2 along X.
	test.That(t, received.TBOldBNew.Point.X, test.ShouldAlmostEqual, 2.0)
}

func TestGlobalCommandsRunAgainstMergedMapKey(t *testing.T) {
	cfg := config.Default()
	cfg.GlobalCommands = []string{"optimize_global"}
	loop, _, _, _, _ := newLoop(t, cfg)
	runner := loop.runner.(*fake.Runner)

	loop.runGlobalCommands(context.Background())

	calls := runner.Calls()
	test.That(t, len(calls), test.ShouldEqual, 1)
	test.That(t, calls[0].MapKey, test.ShouldEqual, mapstore.MergedMapKey)
	test.That(t, calls[0].CommandText, test.ShouldEqual, "optimize_global")
}
