// Package pubsub defines the callback collaborators the merge loop and
// status reporter publish through. Both are modeled as single-method
// interfaces rather than captured function values so tests can inject fakes
// and production code can register multiple concrete adapters over time.
package pubsub

import "github.com/136709865/maplab/spatial"

// StatusPublisher receives periodic textual status snapshots (§4.6). It must
// be safe to call from the status goroutine and must not block it
// meaningfully.
type StatusPublisher interface {
	Publish(text string)
}

// Correction is one pose-correction event emitted by the merge loop for a
// robot whose merged data advanced since the previous iteration (§4.3 step 4).
type Correction struct {
	TimestampNs int64
	RobotName   string
	TMBOld      spatial.Pose
	TGMOld      spatial.Pose
	TGBNew      spatial.Pose
	TBOldBNew   spatial.Pose
}

// CorrectionPublisher receives pose corrections as they're computed. It must
// not block the merge loop meaningfully.
type CorrectionPublisher interface {
	Publish(correction Correction)
}

// StatusPublisherFunc adapts a plain function to StatusPublisher, for tests
// and small callers that don't need a named type.
type StatusPublisherFunc func(text string)

// Publish implements StatusPublisher.
func (f StatusPublisherFunc) Publish(text string) { f(text) }

// CorrectionPublisherFunc adapts a plain function to CorrectionPublisher.
type CorrectionPublisherFunc func(correction Correction)

// Publish implements CorrectionPublisher.
func (f CorrectionPublisherFunc) Publish(correction Correction) { f(correction) }
