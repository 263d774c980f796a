package lod

import (
	"time"

	vec3d "github.com/flywave/go3d/float64/vec3"
)

const llhEcefRadiusX = 6378137.0
const llhEcefRadiusY = 6378137.0
const llhEcefRadiusZ = 6356752.3142451793

// EarthRadii are the WGS84 ellipsoid radii in meters.
var EarthRadii = vec3d.T{llhEcefRadiusX, llhEcefRadiusY, llhEcefRadiusZ}

// PlanetParameters configure a planet and are shared by its tree managers
// and LOD visitor.
type PlanetParameters struct {
	// Radii of the reference ellipsoid in meters.
	Radii vec3d.T

	// HeightScale exaggerates elevation samples; 1 renders true heights.
	HeightScale float64

	// LodFactor scales the screen space error estimate. Larger values
	// refine earlier and produce more detail.
	LodFactor float64

	// RefineThreshold is the ratio above which a tile is refined. The
	// default of 10 is an empirical tuning value.
	RefineThreshold float64

	// MinLevel is the tree depth below which tiles are always refined,
	// MaxLevel the depth beyond which no tiles are requested.
	MinLevel int
	MaxLevel int

	// TileResolution is the number of samples along one tile edge.
	TileResolution int

	// MaxTiles is the GPU residency budget per data set, not counting the
	// 12 root tiles which are always resident.
	MaxTiles int

	// UnusedFrames is the number of frames a tile may go unvisited before
	// it becomes an eviction candidate.
	UnusedFrames int32

	// RetryLimit and RetryBackoff bound how often and how quickly a
	// failed tile load is retried before the tile is marked unavailable
	// for the rest of the session.
	RetryLimit   int
	RetryBackoff time.Duration

	// LoadWorkers is the number of background loader goroutines per data
	// set, QueueSize the capacity of the request and result queues.
	LoadWorkers int
	QueueSize   int
}

// DefaultPlanetParameters returns the parameters used for Earth-like
// bodies.
func DefaultPlanetParameters() PlanetParameters {
	return PlanetParameters{
		Radii:           EarthRadii,
		HeightScale:     1,
		LodFactor:       15,
		RefineThreshold: 10,
		MinLevel:        1,
		MaxLevel:        20,
		TileResolution:  257,
		MaxTiles:        512,
		UnusedFrames:    120,
		RetryLimit:      3,
		RetryBackoff:    150 * time.Millisecond,
		LoadWorkers:     4,
		QueueSize:       256,
	}
}
