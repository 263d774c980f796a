package lod

import (
	"math"

	vec3d "github.com/flywave/go3d/float64/vec3"
)

// The subdivision scheme is fixed: the 12 root patches tile the full sphere
// as a 4 (longitude) x 3 (latitude) grid, root patch r covering the column
// r%4 and the row r/4, counted from the north. Each patch splits into its
// NW, NE, SW, SE quadrants (child indices 0-3, bit 0 selects the eastern
// half, bit 1 the southern half).
const (
	rootPatchCols = 4
	rootPatchRows = 3

	rootPatchLonExtent = 360.0 / rootPatchCols
	rootPatchLatExtent = 180.0 / rootPatchRows
)

// GeoExtent is a geographic rectangle in degrees.
type GeoExtent struct {
	West  float64
	South float64
	East  float64
	North float64
}

// Corners returns the (longitude, latitude) pairs of the extent's corners
// in the order SW, SE, NE, NW.
func (e GeoExtent) Corners() [4][2]float64 {
	return [4][2]float64{
		{e.West, e.South},
		{e.East, e.South},
		{e.East, e.North},
		{e.West, e.North},
	}
}

// Center returns the longitude and latitude of the extent's midpoint.
func (e GeoExtent) Center() (float64, float64) {
	return (e.West + e.East) / 2, (e.South + e.North) / 2
}

// Extent returns the geographic extent covered by the tile. It walks the
// tile's path and therefore runs in O(level) without allocating.
func Extent(id TileId) GeoExtent {
	col := float64(id.RootPatch % rootPatchCols)
	row := float64(id.RootPatch / rootPatchCols)

	west := -180.0 + col*rootPatchLonExtent
	north := 90.0 - row*rootPatchLatExtent
	lonExtent := rootPatchLonExtent
	latExtent := rootPatchLatExtent

	for l := 1; l <= int(id.Level); l++ {
		lonExtent /= 2
		latExtent /= 2
		i := id.PathElement(l)
		if i&0x1 != 0 {
			west += lonExtent
		}
		if i&0x2 != 0 {
			north -= latExtent
		}
	}

	return GeoExtent{West: west, South: north - latExtent, East: west + lonExtent, North: north}
}

// TileXY returns the column and row of the tile within the global tile grid
// of its level (4*2^level columns, 3*2^level rows, row 0 at the north).
func TileXY(id TileId) (uint32, uint32) {
	x := uint32(id.RootPatch % rootPatchCols)
	y := uint32(id.RootPatch / rootPatchCols)
	for l := 1; l <= int(id.Level); l++ {
		i := id.PathElement(l)
		x = x<<1 | uint32(i&0x1)
		y = y<<1 | uint32(i>>1)
	}
	return x, y
}

// LngLatToModel converts a geographic position (degrees) and an elevation
// sample to a model space position on the configured ellipsoid. The surface
// point is found by scaling the geodetic surface normal with the squared
// radii, which is exact for triaxial ellipsoids and matches the WGS84 ECEF
// conversion of go-proj for the default radii. Elevation is applied along
// the surface normal, scaled by heightScale.
func LngLatToModel(lng, lat, elevation float64, radii vec3d.T, heightScale float64) vec3d.T {
	lngRad := lng * math.Pi / 180
	latRad := lat * math.Pi / 180

	cosLat := math.Cos(latRad)
	n := vec3d.T{cosLat * math.Cos(lngRad), cosLat * math.Sin(lngRad), math.Sin(latRad)}
	k := vec3d.T{radii[0] * radii[0] * n[0], radii[1] * radii[1] * n[1], radii[2] * radii[2] * n[2]}
	gamma := math.Sqrt(vec3d.Dot(&n, &k))

	height := elevation * heightScale
	return vec3d.T{
		k[0]/gamma + height*n[0],
		k[1]/gamma + height*n[1],
		k[2]/gamma + height*n[2],
	}
}
