package status

import (
	"bytes"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/edaniels/golog"
	"go.viam.com/test"

	"github.com/136709865/maplab/blacklist"
	"github.com/136709865/maplab/mergestate"
	"github.com/136709865/maplab/queue"
	"github.com/136709865/maplab/registry"
	"github.com/136709865/maplab/submap"
)

func TestSnapshotIncludesQueueAndBlacklist(t *testing.T) {
	q := queue.New()
	p := submap.New("robotA", "/submaps/1.json")
	q.Enqueue(p)

	bl := blacklist.New()
	bl.Add("m1", "operator request")

	reg := registry.New(0)
	reg.ObserveMission("robotA", "m2")

	ms := mergestate.New()
	ms.SetBusy(true)
	ms.SetCurrentCommand("optimize")

	r := New(q, bl, reg, ms, golog.NewTestLogger(t), io.Discard, time.Second)
	text := r.Snapshot()

	test.That(t, strings.Contains(text, "robotA"), test.ShouldBeTrue)
	test.That(t, strings.Contains(text, "m1"), test.ShouldBeTrue)
	test.That(t, strings.Contains(text, "operator request"), test.ShouldBeTrue)
	test.That(t, strings.Contains(text, "busy=true"), test.ShouldBeTrue)
	test.That(t, strings.Contains(text, "optimize"), test.ShouldBeTrue)
}

func TestRegisterCallbackReceivesSnapshot(t *testing.T) {
	r := New(queue.New(), blacklist.New(), registry.New(0), mergestate.New(), golog.NewTestLogger(t), io.Discard, time.Second)

	var received string
	r.RegisterCallback(callbackFunc(func(text string) { received = text }))
	r.publish()

	test.That(t, received, test.ShouldNotBeBlank)
}

func TestPublishWritesSnapshotToLocalLog(t *testing.T) {
	q := queue.New()
	q.Enqueue(submap.New("robotA", "/submaps/1.json"))

	var localLog bytes.Buffer
	r := New(q, blacklist.New(), registry.New(0), mergestate.New(), golog.NewTestLogger(t), &localLog, time.Second)

	r.publish()

	test.That(t, localLog.String(), test.ShouldNotBeBlank)
	test.That(t, strings.Contains(localLog.String(), "robotA"), test.ShouldBeTrue)
}

type callbackFunc func(text string)

func (f callbackFunc) Publish(text string) { f(text) }
