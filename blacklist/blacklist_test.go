package blacklist

import (
	"testing"

	"go.viam.com/test"
)

func TestAddIsMonotonic(t *testing.T) {
	b := New()
	b.Add("m1", "manual deletion")
	b.Add("m1", "second reason should be ignored")

	reason, ok := b.Reason("m1")
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, reason, test.ShouldEqual, "manual deletion")
}

func TestContains(t *testing.T) {
	b := New()
	test.That(t, b.Contains("m1"), test.ShouldBeFalse)
	b.Add("m1", "reason")
	test.That(t, b.Contains("m1"), test.ShouldBeTrue)
}

func TestResolvePrefix(t *testing.T) {
	candidates := []string{
		"11112222-3333-4444-5555-666677778888",
		"11119999-3333-4444-5555-666677778888",
		"aaaa1111-3333-4444-5555-666677778888",
	}

	test.That(t, ResolvePrefix("aaaa", candidates), test.ShouldHaveLength, 1)
	test.That(t, ResolvePrefix("1111", candidates), test.ShouldHaveLength, 2)
	test.That(t, ResolvePrefix("zzzz", candidates), test.ShouldHaveLength, 0)
}
