package fake

import (
	"context"
	"errors"
	"testing"

	"go.viam.com/test"
)

func TestRunRecordsCalls(t *testing.T) {
	r := New()
	test.That(t, r.Run(context.Background(), "map1", "optimize"), test.ShouldBeNil)
	test.That(t, r.Calls(), test.ShouldResemble, []Call{{MapKey: "map1", CommandText: "optimize"}})
}

func TestFailCommand(t *testing.T) {
	r := New()
	want := errors.New("boom")
	r.FailCommand("optimize", want)
	test.That(t, r.Run(context.Background(), "map1", "optimize"), test.ShouldEqual, want)
}

func TestOnCommandEffect(t *testing.T) {
	r := New()
	var seenKey string
	r.OnCommand("optimize", func(mapKey string) error {
		seenKey = mapKey
		return nil
	})
	test.That(t, r.Run(context.Background(), "map1", "optimize"), test.ShouldBeNil)
	test.That(t, seenKey, test.ShouldEqual, "map1")
}
