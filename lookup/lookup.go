// Package lookup implements the read-consistent map query path (§4.5).
package lookup

import (
	"github.com/golang/geo/r3"

	"github.com/136709865/maplab/config"
	"github.com/136709865/maplab/errs"
	"github.com/136709865/maplab/mapstore"
	"github.com/136709865/maplab/registry"
	"github.com/136709865/maplab/spatial"
)

// Status mirrors the five-way outcome §4.5 names.
type Status int

const (
	StatusSuccess Status = iota
	StatusNoSuchMission
	StatusNoSuchSensor
	StatusPoseNotAvailableYet
	StatusPoseNeverAvailable
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusNoSuchMission:
		return "no_such_mission"
	case StatusNoSuchSensor:
		return "no_such_sensor"
	case StatusPoseNotAvailableYet:
		return "pose_not_available_yet"
	case StatusPoseNeverAvailable:
		return "pose_never_available"
	default:
		return "unknown"
	}
}

// Result is the outcome of a MapLookup call. PointGlobal and SensorOrigin are
// set only when Status is StatusSuccess.
type Result struct {
	Status       Status
	PointGlobal  r3.Vector
	SensorOrigin r3.Vector
}

// Service resolves sensor-frame points to the global frame using the
// merged map and the robot registry's "current mission per robot" index.
type Service struct {
	store                *mapstore.Store
	registry             *registry.Registry
	sensorWhitelist       map[string]struct{} // nil means unrestricted.
	timestampToleranceNs int64
}

// New returns a lookup Service bound to store and registry, configured per
// the lookup_sensor_whitelist / lookup_timestamp_tolerance_ns knobs.
func New(store *mapstore.Store, reg *registry.Registry, cfg config.Config) *Service {
	return &Service{
		store:                store,
		registry:             reg,
		sensorWhitelist:       cfg.LookupSensorWhitelistSet(),
		timestampToleranceNs: cfg.LookupTimestampToleranceNs,
	}
}

// MapLookup resolves pointSensor, expressed in sensorType's frame on
// robotName at timestampNs, to the global frame.
func (s *Service) MapLookup(robotName, sensorType string, timestampNs int64, pointSensor r3.Vector) (Result, error) {
	missionID, ok := s.registry.CurrentMission(robotName)
	if !ok {
		return Result{Status: StatusNoSuchMission}, errs.New(errs.NotFound, "no mission known for robot %q", robotName)
	}

	if s.sensorWhitelist != nil {
		if _, allowed := s.sensorWhitelist[sensorType]; !allowed {
			return Result{Status: StatusNoSuchSensor}, errs.New(errs.NotFound, "sensor %q not in lookup whitelist", sensorType)
		}
	}

	handle, err := s.store.AcquireRead(mapstore.MergedMapKey)
	if err != nil {
		return Result{Status: StatusNoSuchMission}, errs.New(errs.NotFound, "no merged map yet")
	}
	defer handle.Close()

	data := handle.Data()
	if !data.HasMission(missionID) {
		// The registry already knows robotName's current mission (it was
		// assigned on ingest), but the merge loop hasn't folded it into the
		// merged map yet. §4.5 and the "query before any submap merged"
		// scenario disagree on the status for this case (StatusPoseNotAvailableYet
		// there vs StatusNoSuchMission here); StatusNoSuchMission is kept
		// because it matches every other "mission identity unknown to the
		// merged map" branch in this function.
		return Result{Status: StatusNoSuchMission}, errs.New(errs.NotFound, "mission %q not yet in merged map", missionID)
	}

	sensors := data.Sensors(missionID)
	tBS, ok := sensors[sensorType]
	if !ok {
		return Result{Status: StatusNoSuchSensor}, errs.New(errs.NotFound, "sensor %q not found on mission %q", sensorType, missionID)
	}

	vertices := data.Vertices(missionID)
	if len(vertices) == 0 {
		return Result{Status: StatusPoseNotAvailableYet}, errs.New(errs.TransientUnavailable, "mission %q has no vertices yet", missionID)
	}

	oldest := vertices[0]
	newest := vertices[len(vertices)-1]

	if timestampNs < oldest.TimestampNs-s.timestampToleranceNs {
		return Result{Status: StatusPoseNeverAvailable}, errs.New(errs.Terminal, "timestamp %d predates mission %q's oldest vertex", timestampNs, missionID)
	}
	if timestampNs > newest.TimestampNs+s.timestampToleranceNs {
		return Result{Status: StatusPoseNotAvailableYet}, errs.New(errs.TransientUnavailable, "timestamp %d is past mission %q's newest vertex", timestampNs, missionID)
	}

	tGB := interpolateBodyPose(vertices, timestampNs)
	tGS := tGB.Compose(tBS)
	pointGlobal := tGS.Transform(pointSensor)

	return Result{
		Status:       StatusSuccess,
		PointGlobal:  pointGlobal,
		SensorOrigin: tGS.Point,
	}, nil
}

// interpolateBodyPose finds the two vertices bracketing ts and interpolates
// the global body pose between them, clamping at the ends.
func interpolateBodyPose(vertices []mapstore.Vertex, ts int64) spatial.Pose {
	if ts <= vertices[0].TimestampNs {
		return vertices[0].TGB
	}
	if ts >= vertices[len(vertices)-1].TimestampNs {
		return vertices[len(vertices)-1].TGB
	}
	for i := 1; i < len(vertices); i++ {
		if vertices[i].TimestampNs >= ts {
			prev, next := vertices[i-1], vertices[i]
			return spatial.InterpolateAt(prev.TimestampNs, prev.TGB, next.TimestampNs, next.TGB, ts)
		}
	}
	return vertices[len(vertices)-1].TGB
}
