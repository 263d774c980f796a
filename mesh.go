package lod

import (
	"sync"
	"unsafe"

	tin "github.com/flywave/go-tin"
	vec3d "github.com/flywave/go3d/float64/vec3"
)

// GridGeometry is the shared vertex and index layout of a tile mesh. All
// tiles of the same resolution render from one instance: the vertex buffer
// holds grid positions only, the per-tile heights come from the tile's
// texture layer. The grid is two samples wider than the tile on each axis,
// the extra ring forms the skirt hiding cracks between neighbouring levels.
type GridGeometry struct {
	resolution int
	gridRes    int

	// Vertices holds (x, y) grid coordinates, two uint16 per vertex.
	Vertices []uint16

	// Indices holds one triangle strip per grid row, stitched with
	// degenerate triangles.
	Indices []uint32

	refs int
}

// GridResolution returns the number of grid samples along one edge,
// including the skirt.
func (g *GridGeometry) GridResolution() int {
	return g.gridRes
}

// Resolution returns the tile resolution the geometry was built for.
func (g *GridGeometry) Resolution() int {
	return g.resolution
}

func newGridGeometry(resolution int) *GridGeometry {
	gridRes := resolution + 2
	g := &GridGeometry{
		resolution: resolution,
		gridRes:    gridRes,
		Vertices:   make([]uint16, 0, 2*gridRes*gridRes),
		Indices:    make([]uint32, 0, (gridRes-1)*(2+2*gridRes)),
	}

	for y := 0; y < gridRes; y++ {
		for x := 0; x < gridRes; x++ {
			g.Vertices = append(g.Vertices, uint16(x), uint16(y))
		}
	}

	for y := 0; y < gridRes-1; y++ {
		g.Indices = append(g.Indices, uint32((y+1)*gridRes))
		for x := 0; x < gridRes; x++ {
			g.Indices = append(g.Indices,
				uint32((y+1)*gridRes+x),
				uint32(y*gridRes+x))
		}
		g.Indices = append(g.Indices, uint32(y*gridRes+gridRes-1))
	}

	return g
}

var (
	gridMu       sync.Mutex
	gridRegistry = map[int]*GridGeometry{}
)

// AcquireGridGeometry returns the shared grid geometry for the given tile
// resolution, building it on first use. Callers must release it again.
func AcquireGridGeometry(resolution int) *GridGeometry {
	gridMu.Lock()
	defer gridMu.Unlock()

	g, ok := gridRegistry[resolution]
	if !ok {
		g = newGridGeometry(resolution)
		gridRegistry[resolution] = g
	}
	g.refs++
	return g
}

// ReleaseGridGeometry drops one reference; the geometry is freed when the
// last holder releases it.
func ReleaseGridGeometry(g *GridGeometry) {
	gridMu.Lock()
	defer gridMu.Unlock()

	g.refs--
	if g.refs <= 0 {
		delete(gridRegistry, g.resolution)
	}
}

// MeshData is a triangle mesh in model space with per-vertex normals, used
// to export selected tiles to external tooling.
type MeshData struct {
	BBox     [2][3]float64
	Vertices [][3]float64
	Normals  [][3]float64
	Faces    [][3]int
}

// NewMeshData returns an empty mesh with an inverted bounding box.
func NewMeshData() *MeshData {
	return &MeshData{
		BBox: [2][3]float64{vec3d.MaxVal, vec3d.MinVal},
	}
}

// AppendMesh merges a triangulated mesh into m, offsetting its face indices.
// Empty meshes are ignored.
func (m *MeshData) AppendMesh(mesh *tin.Mesh) {
	if len(mesh.Vertices) == 0 {
		return
	}

	m.BBox[0] = vec3d.Min((*vec3d.T)(&m.BBox[0]), (*vec3d.T)(&mesh.BBox[0]))
	m.BBox[1] = vec3d.Max((*vec3d.T)(&m.BBox[1]), (*vec3d.T)(&mesh.BBox[1]))

	count := len(m.Vertices)
	for _, f := range mesh.Faces {
		m.Faces = append(m.Faces, [3]int{count + int(f[0]), count + int(f[1]), count + int(f[2])})
	}

	vts := *(*[][3]float64)(unsafe.Pointer(&mesh.Vertices))
	m.Vertices = append(m.Vertices, vts...)

	nls := *(*[][3]float64)(unsafe.Pointer(&mesh.Normals))
	m.Normals = append(m.Normals, nls...)
}

// Append merges another MeshData into m, offsetting its face indices.
func (m *MeshData) Append(other *MeshData) {
	if len(other.Vertices) == 0 {
		return
	}

	m.BBox[0] = vec3d.Min((*vec3d.T)(&m.BBox[0]), (*vec3d.T)(&other.BBox[0]))
	m.BBox[1] = vec3d.Max((*vec3d.T)(&m.BBox[1]), (*vec3d.T)(&other.BBox[1]))

	count := len(m.Vertices)
	for _, f := range other.Faces {
		m.Faces = append(m.Faces, [3]int{count + f[0], count + f[1], count + f[2]})
	}
	m.Vertices = append(m.Vertices, other.Vertices...)
	m.Normals = append(m.Normals, other.Normals...)
}

// TileMesh triangulates one elevation tile into a model space mesh. Normals
// are area-weighted averages of the adjacent face normals. Returns nil for
// tiles without elevation samples.
func TileMesh(id TileId, data *TileData, radii vec3d.T, heightScale float64) *MeshData {
	if data == nil || data.DataType() != TileDataTypeElevation {
		return nil
	}

	res := data.Resolution()
	ext := Extent(id)

	m := NewMeshData()
	m.Vertices = make([][3]float64, 0, res*res)
	m.Normals = make([][3]float64, res*res)
	m.Faces = make([][3]int, 0, 2*(res-1)*(res-1))

	for y := 0; y < res; y++ {
		lat := ext.North - (ext.North-ext.South)*float64(y)/float64(res-1)
		for x := 0; x < res; x++ {
			lng := ext.West + (ext.East-ext.West)*float64(x)/float64(res-1)
			p := LngLatToModel(lng, lat, float64(data.ElevationAt(x, y)), radii, heightScale)
			m.Vertices = append(m.Vertices, p)
			m.BBox[0] = vec3d.Min((*vec3d.T)(&m.BBox[0]), &p)
			m.BBox[1] = vec3d.Max((*vec3d.T)(&m.BBox[1]), &p)
		}
	}

	for y := 0; y < res-1; y++ {
		for x := 0; x < res-1; x++ {
			i := y*res + x
			m.Faces = append(m.Faces,
				[3]int{i, i + res, i + 1},
				[3]int{i + 1, i + res, i + res + 1})
		}
	}

	for _, f := range m.Faces {
		a := vec3d.T(m.Vertices[f[0]])
		b := vec3d.T(m.Vertices[f[1]])
		c := vec3d.T(m.Vertices[f[2]])
		ab := vec3d.Sub(&b, &a)
		ac := vec3d.Sub(&c, &a)
		n := vec3d.Cross(&ab, &ac)
		for _, vi := range f {
			m.Normals[vi][0] += n[0]
			m.Normals[vi][1] += n[1]
			m.Normals[vi][2] += n[2]
		}
	}
	for i := range m.Normals {
		(*vec3d.T)(&m.Normals[i]).Normalize()
	}

	return m
}

// ExportTiles merges the meshes of the given render tiles into one mesh,
// typically called with the elevation render list of a frame.
func ExportTiles(tiles []*RenderData, radii vec3d.T, heightScale float64) *MeshData {
	out := NewMeshData()
	for _, rd := range tiles {
		node := rd.Node()
		if tm := TileMesh(node.TileId(), node.Data(), radii, heightScale); tm != nil {
			out.Append(tm)
		}
	}
	return out
}
