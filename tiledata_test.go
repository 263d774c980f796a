package lod

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewElevationTileValidates(t *testing.T) {
	_, err := NewElevationTile(1, []float32{0})
	require.Error(t, err)

	_, err = NewElevationTile(4, make([]float32, 15))
	require.Error(t, err)

	data, err := NewElevationTile(4, make([]float32, 16))
	require.NoError(t, err)
	require.Equal(t, TileDataTypeElevation, data.DataType())
	require.Equal(t, 4, data.Resolution())
	require.NotNil(t, data.Pyramid())
}

func TestNewColorTileValidates(t *testing.T) {
	_, err := NewColorTile(4, make([]uint8, 16))
	require.Error(t, err)

	data, err := NewColorTile(4, make([]uint8, 48))
	require.NoError(t, err)
	require.Equal(t, TileDataTypeColor, data.DataType())
	require.Nil(t, data.Pyramid())

	mn, mx := data.MinMaxHeight()
	require.Zero(t, mn)
	require.Zero(t, mx)
}

func TestMinMaxPyramid(t *testing.T) {
	samples := []float32{
		1, 2, 5, 6,
		3, 4, 7, 8,
		-1, 0, 9, 10,
		-2, -3, 11, 12,
	}
	data, err := NewElevationTile(4, samples)
	require.NoError(t, err)

	p := data.Pyramid()
	require.Equal(t, 3, p.Levels())
	require.Equal(t, float32(-3), p.Min())
	require.Equal(t, float32(12), p.Max())

	mn, mx := data.MinMaxHeight()
	require.Equal(t, float32(-3), mn)
	require.Equal(t, float32(12), mx)

	// Quadrants follow the child index order: 0 NW, 1 NE, 2 SW, 3 SE.
	mn, mx = p.QuadrantMinMax(0)
	require.Equal(t, float32(1), mn)
	require.Equal(t, float32(4), mx)

	mn, mx = p.QuadrantMinMax(1)
	require.Equal(t, float32(5), mn)
	require.Equal(t, float32(8), mx)

	mn, mx = p.QuadrantMinMax(2)
	require.Equal(t, float32(-3), mn)
	require.Equal(t, float32(0), mx)

	mn, mx = p.QuadrantMinMax(3)
	require.Equal(t, float32(9), mn)
	require.Equal(t, float32(12), mx)
}

func TestMinMaxPyramidOddResolution(t *testing.T) {
	res := 5
	samples := make([]float32, res*res)
	samples[7] = -42
	samples[23] = 17

	p := NewMinMaxPyramid(samples, res, res)
	require.Equal(t, float32(-42), p.Min())
	require.Equal(t, float32(17), p.Max())
}
