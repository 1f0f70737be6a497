package missionid

import (
	"testing"

	"go.viam.com/test"
)

func TestCanonicalizeLowerCaseUUIDPassthrough(t *testing.T) {
	id := "f47ac10b-58cc-4372-a567-0e02b2c3d479"
	test.That(t, Canonicalize(id), test.ShouldEqual, id)
}

func TestCanonicalizeNormalizesCasingAndBraces(t *testing.T) {
	got := Canonicalize("{F47AC10B-58CC-4372-A567-0E02B2C3D479}")
	test.That(t, got, test.ShouldEqual, "f47ac10b-58cc-4372-a567-0e02b2c3d479")
}

func TestCanonicalizePassesThroughNonUUID(t *testing.T) {
	test.That(t, Canonicalize("mission-a"), test.ShouldEqual, "mission-a")
	test.That(t, Canonicalize(""), test.ShouldEqual, "")
}
