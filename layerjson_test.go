package lod

import (
	"testing"

	"github.com/flywave/go-proj"
	"github.com/stretchr/testify/require"
)

func TestLayerDescriptionTileAvailable(t *testing.T) {
	l := NewLayerDescription("dem", 1, 2)
	l.Available = [][]TileRange{
		{{StartX: 0, StartY: 0, EndX: 3, EndY: 2}},
		{{StartX: 0, StartY: 0, EndX: 1, EndY: 1}},
	}

	// Levels below the minimum anchor the tree and are always available.
	require.True(t, l.TileAvailable(RootTileId(0)))
	require.True(t, l.TileAvailable(RootTileId(11)))

	// Level 1 is restricted to the north-western ranges.
	require.True(t, l.TileAvailable(RootTileId(0).Child(0)))
	require.False(t, l.TileAvailable(RootTileId(6).Child(3)))

	// Levels past the described ranges fall back to available.
	require.True(t, l.TileAvailable(RootTileId(0).Child(0).Child(0)))

	// Levels above the maximum are never available.
	require.False(t, l.TileAvailable(RootTileId(0).Child(0).Child(0).Child(0)))
}

func TestLayerDescriptionDefaults(t *testing.T) {
	l := NewLayerDescription("img", 0, 18)
	require.Equal(t, []float64{-180, -90, 180, 90}, l.Bounds)
	require.Equal(t, "EPSG:4326", l.Projection)
	require.True(t, l.TileAvailable(RootTileId(7).Child(1).Child(2)))
}

func TestLayerDescriptionEcefBounds(t *testing.T) {
	l := NewLayerDescription("dem", 0, 10)
	l.Bounds = []float64{-10, 40, 20, 60}

	mn, mx, err := l.EcefBounds()
	require.NoError(t, err)

	x, y, z, err := proj.Lonlat2Ecef(-10, 40, 0)
	require.NoError(t, err)
	require.InDelta(t, x, mn[0], 1e-6)
	require.InDelta(t, y, mn[1], 1e-6)
	require.InDelta(t, z, mn[2], 1e-6)

	x, y, z, err = proj.Lonlat2Ecef(20, 60, 0)
	require.NoError(t, err)
	require.InDelta(t, x, mx[0], 1e-6)
	require.InDelta(t, y, mx[1], 1e-6)
	require.InDelta(t, z, mx[2], 1e-6)
}
