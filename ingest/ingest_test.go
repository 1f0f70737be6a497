package ingest

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/edaniels/golog"
	"github.com/golang/geo/r3"
	"go.viam.com/test"
	"gonum.org/v1/gonum/num/quat"

	"github.com/136709865/maplab/blacklist"
	"github.com/136709865/maplab/command/fake"
	"github.com/136709865/maplab/config"
	"github.com/136709865/maplab/mapstore"
	"github.com/136709865/maplab/queue"
	"github.com/136709865/maplab/registry"
	"github.com/136709865/maplab/spatial"
	"github.com/136709865/maplab/submap"
)

func writeFixture(t *testing.T, dir, missionID string) string {
	t.Helper()
	path := filepath.Join(dir, missionID+".json")
	err := mapstore.WriteSubmapFile(path, missionID, []mapstore.Vertex{
		{
			TimestampNs: 100,
			TGB:         spatial.NewPose(r3.Vector{X: 1}, quat.Number{Real: 1}),
			TMB:         spatial.NewPose(r3.Vector{X: 1}, quat.Number{Real: 1}),
			TGM:         spatial.Identity(),
		},
	}, map[string]spatial.Pose{"cam0": spatial.Identity()})
	test.That(t, err, test.ShouldBeNil)
	return path
}

func TestPoolLoadsAndProcessesSubmap(t *testing.T) {
	dir := t.TempDir()
	path := writeFixture(t, dir, "mission-a")

	q := queue.New()
	store := mapstore.New()
	reg := registry.New(0)
	bl := blacklist.New()
	runner := fake.New()

	cfg := config.Default()
	cfg.SubmapCommands = []string{"extract_anchors"}
	pool := New(q, store, reg, bl, runner, cfg, golog.NewTestLogger(t))

	proc := submap.New("robotA", path)
	q.Enqueue(proc)
	test.That(t, pool.Dispatch(context.Background(), proc), test.ShouldBeNil)
	pool.Wait()

	test.That(t, proc.IsProcessed(), test.ShouldBeTrue)
	test.That(t, proc.ProcessError(), test.ShouldBeNil)
	missionID, ok := proc.MissionID()
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, missionID, test.ShouldEqual, "mission-a")

	cur, ok := reg.CurrentMission("robotA")
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, cur, test.ShouldEqual, "mission-a")

	calls := runner.Calls()
	test.That(t, len(calls), test.ShouldEqual, 1)
	test.That(t, calls[0].CommandText, test.ShouldEqual, "extract_anchors")
}

func TestPoolDiscardsBlacklistedMission(t *testing.T) {
	dir := t.TempDir()
	path := writeFixture(t, dir, "mission-b")

	q := queue.New()
	store := mapstore.New()
	reg := registry.New(0)
	bl := blacklist.New()
	bl.Add("mission-b", "pre-blacklisted")
	runner := fake.New()

	pool := New(q, store, reg, bl, runner, config.Default(), golog.NewTestLogger(t))

	proc := submap.New("robotA", path)
	q.Enqueue(proc)
	test.That(t, pool.Dispatch(context.Background(), proc), test.ShouldBeNil)
	pool.Wait()

	test.That(t, q.Len(), test.ShouldEqual, 0)
	test.That(t, store.Has(proc.MapHash), test.ShouldBeFalse)
}

func TestPoolFailFastBlacklistsOnCommandError(t *testing.T) {
	dir := t.TempDir()
	path := writeFixture(t, dir, "mission-c")

	q := queue.New()
	store := mapstore.New()
	reg := registry.New(0)
	bl := blacklist.New()
	runner := fake.New()
	runner.FailCommand("broken_command", context.DeadlineExceeded)

	cfg := config.Default()
	cfg.SubmapCommands = []string{"broken_command"}
	cfg.FailFastOnCommandError = true
	pool := New(q, store, reg, bl, runner, cfg, golog.NewTestLogger(t))

	proc := submap.New("robotA", path)
	q.Enqueue(proc)
	test.That(t, pool.Dispatch(context.Background(), proc), test.ShouldBeNil)
	pool.Wait()

	test.That(t, proc.IsProcessed(), test.ShouldBeTrue)
	test.That(t, proc.ProcessError(), test.ShouldNotBeNil)
	test.That(t, bl.Contains("mission-c"), test.ShouldBeTrue)
}
