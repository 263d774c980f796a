package lod

import (
	"math"

	vec3d "github.com/flywave/go3d/float64/vec3"
)

// BoundingBox is an axis-aligned box in planet-local model space.
type BoundingBox struct {
	Min vec3d.T
	Max vec3d.T
}

// NewBoundingBox returns an inverted box ready to be extended.
func NewBoundingBox() BoundingBox {
	return BoundingBox{Min: vec3d.MaxVal, Max: vec3d.MinVal}
}

// Extend grows the box to include p.
func (b *BoundingBox) Extend(p vec3d.T) {
	b.Min = vec3d.Min(&b.Min, &p)
	b.Max = vec3d.Max(&b.Max, &p)
}

// Pad grows the box by d on all sides.
func (b *BoundingBox) Pad(d float64) {
	for i := 0; i < 3; i++ {
		b.Min[i] -= d
		b.Max[i] += d
	}
}

// Center returns the box midpoint.
func (b *BoundingBox) Center() vec3d.T {
	return vec3d.T{
		(b.Min[0] + b.Max[0]) / 2,
		(b.Min[1] + b.Max[1]) / 2,
		(b.Min[2] + b.Max[2]) / 2,
	}
}

// Corners returns the eight corner points of the box.
func (b *BoundingBox) Corners() [8]vec3d.T {
	mn, mx := b.Min, b.Max
	return [8]vec3d.T{
		{mn[0], mn[1], mn[2]}, {mx[0], mn[1], mn[2]},
		{mx[0], mn[1], mx[2]}, {mn[0], mn[1], mx[2]},
		{mn[0], mx[1], mn[2]}, {mx[0], mx[1], mn[2]},
		{mx[0], mx[1], mx[2]}, {mn[0], mx[1], mx[2]},
	}
}

// Contains reports whether other lies fully inside the box, allowing eps
// slack per axis.
func (b *BoundingBox) Contains(other *BoundingBox, eps float64) bool {
	for i := 0; i < 3; i++ {
		if other.Min[i] < b.Min[i]-eps || other.Max[i] > b.Max[i]+eps {
			return false
		}
	}
	return true
}

// RenderFlags carry per-frame marks on a RenderData.
type RenderFlags uint8

const (
	// FlagRender marks tiles appended to a render list this frame. The
	// renderer clears it after consuming the lists.
	FlagRender RenderFlags = 1 << iota
)

// TexLayerNone is the residency handle of tiles not uploaded to the GPU.
const TexLayerNone int32 = -1

// RenderData is the per-node render metadata of one data set. It is created
// when the node is integrated into the tree and destroyed together with it.
type RenderData struct {
	node *TileNode

	// Bounds is the node's bounding box in model space.
	Bounds BoundingBox

	// TexLayer is the texture array layer holding the tile's samples, or
	// TexLayerNone while the tile is not GPU resident.
	TexLayer int32

	// LastFrame is the most recent frame in which the node was visited
	// during traversal, whether drawn or used as an ancestor.
	LastFrame int32

	Flags RenderFlags
}

// Node returns the tile node this metadata belongs to.
func (rd *RenderData) Node() *TileNode {
	return rd.node
}

// AddFlag sets the given flags.
func (rd *RenderData) AddFlag(f RenderFlags) {
	rd.Flags |= f
}

// ClearFlag clears the given flags.
func (rd *RenderData) ClearFlag(f RenderFlags) {
	rd.Flags &^= f
}

// Number of sample points per axis used to fit a tile's bounding box.
const boundsSamples = 5

// computeTileBounds derives the model space bounding box of a tile from its
// geographic extent, the ellipsoid radii and the tile's extreme heights. A
// regular grid of surface points at the minimum and maximum height is
// sampled and the box padded by a sagitta bound on the curvature between
// neighbouring samples. The pad shrinks quadratically with depth, which
// keeps a parent's box a superset of its children's.
func computeTileBounds(id TileId, data *TileData, radii vec3d.T, heightScale float64) BoundingBox {
	ext := Extent(id)

	var minH, maxH float64
	if data != nil {
		mn, mx := data.MinMaxHeight()
		minH, maxH = float64(mn), float64(mx)
	}

	bb := NewBoundingBox()
	for sy := 0; sy < boundsSamples; sy++ {
		lat := ext.South + (ext.North-ext.South)*float64(sy)/(boundsSamples-1)
		for sx := 0; sx < boundsSamples; sx++ {
			lng := ext.West + (ext.East-ext.West)*float64(sx)/(boundsSamples-1)
			bb.Extend(LngLatToModel(lng, lat, minH, radii, heightScale))
			bb.Extend(LngLatToModel(lng, lat, maxH, radii, heightScale))
		}
	}

	maxRadius := math.Max(radii[0], math.Max(radii[1], radii[2])) + maxH*heightScale
	cellAngle := math.Max(ext.East-ext.West, ext.North-ext.South) /
		(boundsSamples - 1) * math.Pi / 180
	bb.Pad(maxRadius * cellAngle * cellAngle / 4)

	return bb
}
