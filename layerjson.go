package lod

import (
	"github.com/flywave/go-proj"
)

// TileRange is an inclusive rectangle of available tiles at one level, in
// global grid coordinates.
type TileRange struct {
	StartX uint32 `json:"startX"`
	StartY uint32 `json:"startY"`
	EndX   uint32 `json:"endX"`
	EndY   uint32 `json:"endY"`
}

// Contains reports whether the tile at (x, y) lies in the range.
func (r TileRange) Contains(x, y uint32) bool {
	return x >= r.StartX && x <= r.EndX && y >= r.StartY && y <= r.EndY
}

// LayerDescription describes the tiles a source can provide. It mirrors the
// metadata documents terrain tile services publish: per-level availability
// rectangles plus a geographic bounding rectangle. Requests outside the
// description are rejected without hitting the source.
type LayerDescription struct {
	Name        string        `json:"name,omitempty"`
	Description string        `json:"description,omitempty"`
	Version     string        `json:"version,omitempty"`
	Format      string        `json:"format,omitempty"`
	Attribution string        `json:"attribution,omitempty"`
	MinLevel    int           `json:"minzoom"`
	MaxLevel    int           `json:"maxzoom"`
	Bounds      []float64     `json:"bounds,omitempty"`
	Projection  string        `json:"projection"`
	Available   [][]TileRange `json:"available,omitempty"`
}

// NewLayerDescription returns a description covering the whole globe
// between the given levels, with no per-level availability restrictions.
func NewLayerDescription(name string, minLevel, maxLevel int) *LayerDescription {
	return &LayerDescription{
		Name:       name,
		Version:    "1.0.0",
		MinLevel:   minLevel,
		MaxLevel:   maxLevel,
		Bounds:     []float64{-180, -90, 180, 90},
		Projection: "EPSG:4326",
	}
}

// TileAvailable reports whether the source can provide the tile. Levels
// below MinLevel are considered available, they are always needed to anchor
// the tree; levels above MaxLevel are not. When per-level ranges are given
// the tile must fall into one of its level's rectangles.
func (l *LayerDescription) TileAvailable(id TileId) bool {
	level := int(id.Level)
	if level < l.MinLevel {
		return true
	}
	if level > l.MaxLevel {
		return false
	}
	if level >= len(l.Available) {
		return true
	}

	x, y := TileXY(id)
	for _, r := range l.Available[level] {
		if r.Contains(x, y) {
			return true
		}
	}
	return false
}

// EcefBounds returns the corners of the layer's geographic bounds on the
// WGS84 ellipsoid, in ECEF coordinates (min corner, max corner).
func (l *LayerDescription) EcefBounds() ([3]float64, [3]float64, error) {
	bounds := l.Bounds
	if len(bounds) != 4 {
		bounds = []float64{-180, -90, 180, 90}
	}

	minX, minY, minZ, err := proj.Lonlat2Ecef(bounds[0], bounds[1], 0)
	if err != nil {
		return [3]float64{}, [3]float64{}, err
	}
	maxX, maxY, maxZ, err := proj.Lonlat2Ecef(bounds[2], bounds[3], 0)
	if err != nil {
		return [3]float64{}, [3]float64{}, err
	}
	return [3]float64{minX, minY, minZ}, [3]float64{maxX, maxY, maxZ}, nil
}
