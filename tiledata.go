package lod

import (
	"github.com/pkg/errors"
)

// TileDataType discriminates the payload stored in a TileData.
type TileDataType int

const (
	// TileDataTypeElevation marks tiles storing float32 height samples.
	TileDataTypeElevation TileDataType = iota
	// TileDataTypeColor marks tiles storing RGB byte samples.
	TileDataTypeColor
)

func (t TileDataType) String() string {
	switch t {
	case TileDataTypeElevation:
		return "elevation"
	case TileDataTypeColor:
		return "color"
	}
	return "unknown"
}

// TileData is a sample grid of fixed resolution. It is created once when a
// load completes and immutable afterwards. The payload is a tagged variant:
// exactly one of the elevation or color slices is set, depending on the
// data type. Elevation tiles additionally carry a min/max pyramid over
// their samples.
type TileData struct {
	dataType   TileDataType
	resolution int

	elevation []float32
	color     []uint8

	pyramid *MinMaxPyramid
}

// NewElevationTile creates an elevation tile from resolution*resolution
// height samples, stored row by row.
func NewElevationTile(resolution int, samples []float32) (*TileData, error) {
	if resolution < 2 {
		return nil, errors.Errorf("tile resolution %d too small", resolution)
	}
	if len(samples) != resolution*resolution {
		return nil, errors.Errorf("expected %d elevation samples, got %d",
			resolution*resolution, len(samples))
	}
	return &TileData{
		dataType:   TileDataTypeElevation,
		resolution: resolution,
		elevation:  samples,
		pyramid:    NewMinMaxPyramid(samples, resolution, resolution),
	}, nil
}

// NewColorTile creates a color tile from resolution*resolution RGB samples
// (3 bytes per sample, stored row by row).
func NewColorTile(resolution int, rgb []uint8) (*TileData, error) {
	if resolution < 2 {
		return nil, errors.Errorf("tile resolution %d too small", resolution)
	}
	if len(rgb) != 3*resolution*resolution {
		return nil, errors.Errorf("expected %d color bytes, got %d",
			3*resolution*resolution, len(rgb))
	}
	return &TileData{
		dataType:   TileDataTypeColor,
		resolution: resolution,
		color:      rgb,
	}, nil
}

// DataType returns the payload discriminant.
func (t *TileData) DataType() TileDataType {
	return t.dataType
}

// Resolution returns the number of samples along one tile edge.
func (t *TileData) Resolution() int {
	return t.resolution
}

// Elevation returns the height samples of an elevation tile, nil otherwise.
func (t *TileData) Elevation() []float32 {
	return t.elevation
}

// ElevationAt returns the height sample at grid position (x, y).
func (t *TileData) ElevationAt(x, y int) float32 {
	return t.elevation[y*t.resolution+x]
}

// Color returns the RGB bytes of a color tile, nil otherwise.
func (t *TileData) Color() []uint8 {
	return t.color
}

// Pyramid returns the min/max pyramid of an elevation tile, nil for color
// tiles.
func (t *TileData) Pyramid() *MinMaxPyramid {
	return t.pyramid
}

// MinMaxHeight returns the extreme heights of the tile. Color tiles have no
// height information and report zero extents.
func (t *TileData) MinMaxHeight() (float32, float32) {
	if t.pyramid == nil {
		return 0, 0
	}
	return t.pyramid.Min(), t.pyramid.Max()
}

// MinMaxPyramid stores hierarchical minima and maxima over a sample grid.
// Level 0 holds the per-sample values, each following level halves the grid
// until a single value remains. The coarsest level gives the extremes of
// the whole tile, finer levels give the extremes of sub-quadrants.
type MinMaxPyramid struct {
	mins    [][]float32
	maxs    [][]float32
	widths  []int
	heights []int
}

// NewMinMaxPyramid builds a pyramid over a w*h sample grid.
func NewMinMaxPyramid(samples []float32, w, h int) *MinMaxPyramid {
	p := &MinMaxPyramid{}

	mins := make([]float32, len(samples))
	maxs := make([]float32, len(samples))
	copy(mins, samples)
	copy(maxs, samples)
	p.push(mins, maxs, w, h)

	for w > 1 || h > 1 {
		nw := (w + 1) / 2
		nh := (h + 1) / 2
		nmins := make([]float32, nw*nh)
		nmaxs := make([]float32, nw*nh)

		for y := 0; y < nh; y++ {
			for x := 0; x < nw; x++ {
				mn := mins[(2*y)*w+2*x]
				mx := mn
				for dy := 0; dy < 2; dy++ {
					for dx := 0; dx < 2; dx++ {
						sy := 2*y + dy
						sx := 2*x + dx
						if sy >= h || sx >= w {
							continue
						}
						if v := mins[sy*w+sx]; v < mn {
							mn = v
						}
						if v := maxs[sy*w+sx]; v > mx {
							mx = v
						}
					}
				}
				nmins[y*nw+x] = mn
				nmaxs[y*nw+x] = mx
			}
		}

		mins, maxs, w, h = nmins, nmaxs, nw, nh
		p.push(mins, maxs, w, h)
	}

	return p
}

func (p *MinMaxPyramid) push(mins, maxs []float32, w, h int) {
	p.mins = append(p.mins, mins)
	p.maxs = append(p.maxs, maxs)
	p.widths = append(p.widths, w)
	p.heights = append(p.heights, h)
}

// Levels returns the number of pyramid levels.
func (p *MinMaxPyramid) Levels() int {
	return len(p.mins)
}

// Min returns the smallest sample of the whole grid.
func (p *MinMaxPyramid) Min() float32 {
	return p.mins[len(p.mins)-1][0]
}

// Max returns the largest sample of the whole grid.
func (p *MinMaxPyramid) Max() float32 {
	return p.maxs[len(p.maxs)-1][0]
}

// QuadrantMinMax returns the extremes of one quadrant (child index 0-3,
// same order as TileId.Child) of the grid.
func (p *MinMaxPyramid) QuadrantMinMax(quadrant int) (float32, float32) {
	if len(p.mins) < 2 {
		return p.Min(), p.Max()
	}
	l := len(p.mins) - 2
	w, h := p.widths[l], p.heights[l]
	x0, y0 := 0, 0
	if quadrant&0x1 != 0 {
		x0 = w / 2
	}
	if quadrant&0x2 != 0 {
		y0 = h / 2
	}

	mn := p.mins[l][y0*w+x0]
	mx := p.maxs[l][y0*w+x0]
	for y := y0; y < y0+(h+1)/2 && y < h; y++ {
		for x := x0; x < x0+(w+1)/2 && x < w; x++ {
			if v := p.mins[l][y*w+x]; v < mn {
				mn = v
			}
			if v := p.maxs[l][y*w+x]; v > mx {
				mx = v
			}
		}
	}
	return mn, mx
}
