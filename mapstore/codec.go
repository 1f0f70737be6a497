package mapstore

import (
	"bytes"
	"encoding/gob"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/edsrzf/mmap-go"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/num/quat"

	"github.com/136709865/maplab/errs"
	"github.com/136709865/maplab/missionid"
	"github.com/136709865/maplab/spatial"
)

// wireVertex and wireSubmap mirror the submap-on-disk JSON envelope. The real
// fleet's submap codec is opaque to the core (§6); this is this repository's
// concrete stand-in for it, opaque in the same sense that nothing outside
// this file interprets the encoding.
type wireVertex struct {
	TimestampNs int64        `json:"timestamp_ns"`
	TGB         wirePose     `json:"t_g_b"`
	TMB         wirePose     `json:"t_m_b"`
	TGM         wirePose     `json:"t_g_m"`
}

type wirePose struct {
	X  float64 `json:"x"`
	Y  float64 `json:"y"`
	Z  float64 `json:"z"`
	QW float64 `json:"qw"`
	QX float64 `json:"qx"`
	QY float64 `json:"qy"`
	QZ float64 `json:"qz"`
}

func toWirePose(p spatial.Pose) wirePose {
	return wirePose{
		X: p.Point.X, Y: p.Point.Y, Z: p.Point.Z,
		QW: p.Orientation.Real, QX: p.Orientation.Imag, QY: p.Orientation.Jmag, QZ: p.Orientation.Kmag,
	}
}

func fromWirePose(w wirePose) spatial.Pose {
	return spatial.NewPose(
		r3.Vector{X: w.X, Y: w.Y, Z: w.Z},
		quat.Number{Real: w.QW, Imag: w.QX, Jmag: w.QY, Kmag: w.QZ},
	)
}

type wireSubmap struct {
	MissionID string               `json:"mission_id"`
	Sensors   map[string]wirePose  `json:"sensors"`
	Vertices  []wireVertex         `json:"vertices"`
}

// LoadSubmapFile reads a submap produced by a robot from disk. It mmaps the
// file read-only (grounded in the pack's edsrzf/mmap-go usage for large
// append-only segment files) and decodes the JSON envelope out of the mapped
// bytes, avoiding a second buffered copy for large submaps.
func LoadSubmapFile(path string) (missionID string, data *MapData, err error) {
	f, err := os.Open(path)
	if err != nil {
		return "", nil, errs.Wrap(err, errs.IOFailure, "open submap file %q", path)
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return "", nil, errs.Wrap(err, errs.IOFailure, "stat submap file %q", path)
	}
	if fi.Size() == 0 {
		return "", nil, errs.New(errs.IOFailure, "submap file %q is empty", path)
	}

	mapped, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		return "", nil, errs.Wrap(err, errs.IOFailure, "mmap submap file %q", path)
	}
	defer mapped.Unmap()

	var wire wireSubmap
	if err := json.Unmarshal(mapped, &wire); err != nil {
		return "", nil, errs.Wrap(err, errs.IOFailure, "decode submap file %q", path)
	}
	if wire.MissionID == "" {
		return "", nil, errs.New(errs.IOFailure, "submap file %q missing mission_id", path)
	}
	missionID = missionid.Canonicalize(wire.MissionID)

	sensors := make(map[string]spatial.Pose, len(wire.Sensors))
	for name, p := range wire.Sensors {
		sensors[name] = fromWirePose(p)
	}
	vertices := make([]Vertex, len(wire.Vertices))
	for i, v := range wire.Vertices {
		vertices[i] = Vertex{
			TimestampNs: v.TimestampNs,
			TGB:         fromWirePose(v.TGB),
			TMB:         fromWirePose(v.TMB),
			TGM:         fromWirePose(v.TGM),
		}
	}

	md := NewMapData()
	md.AppendMission(missionID, vertices, sensors)
	return missionID, md, nil
}

// WriteSubmapFile is the inverse of LoadSubmapFile, used by tests to
// synthesize fixtures without hand-writing JSON.
func WriteSubmapFile(path, missionID string, vertices []Vertex, sensors map[string]spatial.Pose) error {
	wire := wireSubmap{MissionID: missionID, Sensors: make(map[string]wirePose, len(sensors))}
	for name, p := range sensors {
		wire.Sensors[name] = toWirePose(p)
	}
	for _, v := range vertices {
		wire.Vertices = append(wire.Vertices, wireVertex{
			TimestampNs: v.TimestampNs,
			TGB:         toWirePose(v.TGB),
			TMB:         toWirePose(v.TMB),
			TGM:         toWirePose(v.TGM),
		})
	}
	b, err := json.Marshal(wire)
	if err != nil {
		return errors.Wrap(err, "marshal submap fixture")
	}
	return os.WriteFile(path, b, 0o644)
}

// --- checkpoint codec -------------------------------------------------------

// checkpointMission and checkpointDoc are the gob-serializable shape of a
// MapData, used only for the on-disk checkpoint (vertices reuse wireVertex). gob (not flatbuffers, which
// the example pack also uses elsewhere) is used here because a checkpoint is
// a single-process, same-binary artifact with no cross-language or schema-
// evolution requirement — see DESIGN.md for the full justification.
type checkpointMission struct {
	ID       string
	Sensors  map[string]wirePose
	Vertices []wireVertex
}

type checkpointDoc struct {
	Missions []checkpointMission
}

// EncodeCheckpoint serializes a MapData to its checkpoint wire form.
func EncodeCheckpoint(m *MapData) ([]byte, error) {
	var doc checkpointDoc
	for _, id := range m.MissionIDs() {
		cm := checkpointMission{ID: id}
		sensors := m.Sensors(id)
		cm.Sensors = make(map[string]wirePose, len(sensors))
		for name, p := range sensors {
			cm.Sensors[name] = toWirePose(p)
		}
		for _, v := range m.Vertices(id) {
			cm.Vertices = append(cm.Vertices, wireVertex{
				TimestampNs: v.TimestampNs,
				TGB:         toWirePose(v.TGB),
				TMB:         toWirePose(v.TMB),
				TGM:         toWirePose(v.TGM),
			})
		}
		doc.Missions = append(doc.Missions, cm)
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(doc); err != nil {
		return nil, errors.Wrap(err, "gob-encode checkpoint")
	}
	return buf.Bytes(), nil
}

// DecodeCheckpoint deserializes a checkpoint produced by EncodeCheckpoint.
func DecodeCheckpoint(b []byte) (*MapData, error) {
	var doc checkpointDoc
	if err := gob.NewDecoder(bytes.NewReader(b)).Decode(&doc); err != nil {
		return nil, errors.Wrap(err, "gob-decode checkpoint")
	}
	md := NewMapData()
	for _, cm := range doc.Missions {
		sensors := make(map[string]spatial.Pose, len(cm.Sensors))
		for name, p := range cm.Sensors {
			sensors[name] = fromWirePose(p)
		}
		vertices := make([]Vertex, len(cm.Vertices))
		for i, v := range cm.Vertices {
			vertices[i] = Vertex{
				TimestampNs: v.TimestampNs,
				TGB:         fromWirePose(v.TGB),
				TMB:         fromWirePose(v.TMB),
				TGM:         fromWirePose(v.TGM),
			}
		}
		md.AppendMission(cm.ID, vertices, sensors)
	}
	return md, nil
}

// AtomicWriteCheckpoint writes b to path by writing a temp file in the same
// directory and renaming over the target, so a reader (or a crash) never
// observes a truncated checkpoint (§4.3 step 5, §8 invariant). Grounded in the
// write-temp-then-rename idiom used for config/state files across the
// example pack.
func AtomicWriteCheckpoint(path string, b []byte) (err error) {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".checkpoint-*.tmp")
	if err != nil {
		return errs.Wrap(err, errs.IOFailure, "create temp checkpoint file in %q", dir)
	}
	tmpName := tmp.Name()
	defer func() {
		_ = tmp.Close()
		if err != nil {
			_ = os.Remove(tmpName)
		}
	}()

	if _, werr := tmp.Write(b); werr != nil {
		return errs.Wrap(werr, errs.IOFailure, "write temp checkpoint file")
	}
	if serr := tmp.Sync(); serr != nil {
		return errs.Wrap(serr, errs.IOFailure, "sync temp checkpoint file")
	}
	if cerr := tmp.Close(); cerr != nil {
		return errs.Wrap(cerr, errs.IOFailure, "close temp checkpoint file")
	}

	if rerr := os.Rename(tmpName, path); rerr != nil {
		return errs.Wrap(rerr, errs.IOFailure, "rename checkpoint into place")
	}
	return nil
}
