// Package visualize defines the visualization publisher collaborator.
// Rendering itself is out of scope (Non-goals); this package only owns the
// interface and a file-dumping default so VisualizeMap has somewhere to go.
package visualize

import (
	"encoding/json"
	"os"
	"time"

	"github.com/136709865/maplab/mapstore"
)

// MapSnapshot is the data a visualization publisher receives: every
// mission's vertices, as of the moment VisualizeMap ran. Sensor tables are
// not included.
type MapSnapshot struct {
	TakenAt  time.Time
	Missions map[string][]mapstore.Vertex
}

// Publisher receives map snapshots for external rendering.
type Publisher interface {
	Publish(snapshot MapSnapshot) error
}

// FileDumper is the default Publisher: it writes each snapshot as JSON to a
// fixed path, overwriting the previous dump. Real rendering is left to
// whatever external tool reads that file.
type FileDumper struct {
	Path string
}

// Publish implements Publisher by JSON-encoding snapshot to f.Path.
func (f *FileDumper) Publish(snapshot MapSnapshot) error {
	b, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(f.Path, b, 0o644)
}
