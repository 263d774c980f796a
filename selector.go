package lod

import (
	"math"

	mat4d "github.com/flywave/go3d/float64/mat4"
	vec3d "github.com/flywave/go3d/float64/vec3"
)

// Initially reserve storage for this many entries in the per-frame lists.
// The lists still grow as needed, this only reduces re-allocations.
const preAllocSize = 200

// Viewport describes the render target area in pixels.
type Viewport struct {
	X      int32
	Y      int32
	Width  int32
	Height int32
}

// lodState is the per-level traversal state. It carries the nearest loaded
// render data of each data set, so nodes whose imagery is still pending
// fall back to the coarser ancestor tile instead of leaving a hole.
type lodState struct {
	nodeDEM *TileNode
	nodeIMG *TileNode
	rdDEM   *RenderData
	rdIMG   *RenderData
}

// LODVisitor traverses the elevation tree and, if present, the imagery tree
// in lockstep and decides per node whether it is culled, drawn or refined.
// It produces the per-frame load and render lists.
type LODVisitor struct {
	params *PlanetParameters
	mgrDEM *TreeManager
	mgrIMG *TreeManager

	visitor TileVisitor

	viewport Viewport
	matVM    mat4d.T
	matP     mat4d.T

	// derived once per frame in preTraverse
	frustumES   Frustum
	fov         float64
	frustumMS   Frustum
	camPos      vec3d.T
	proxyRadius float64

	stack    [MaxStackDepth]lodState
	stackTop int

	frame         int32
	updateLOD     bool
	updateCulling bool

	loadDEM   []TileId
	loadIMG   []TileId
	renderDEM []*RenderData
	renderIMG []*RenderData
}

// NewLODVisitor creates the selector for an elevation tree and an optional
// imagery tree.
func NewLODVisitor(params *PlanetParameters, mgrDEM, mgrIMG *TreeManager) *LODVisitor {
	v := &LODVisitor{
		params:        params,
		mgrDEM:        mgrDEM,
		mgrIMG:        mgrIMG,
		stackTop:      -1,
		updateLOD:     true,
		updateCulling: true,
		loadDEM:       make([]TileId, 0, preAllocSize),
		loadIMG:       make([]TileId, 0, preAllocSize),
		renderDEM:     make([]*RenderData, 0, preAllocSize),
		renderIMG:     make([]*RenderData, 0, preAllocSize),
	}
	v.visitor = TileVisitor{
		PreTraverse:   v.preTraverse,
		PreVisitRoot:  v.preVisitRoot,
		PostVisitRoot: func(TileId) { v.pop() },
		PreVisit:      v.preVisit,
		PostVisit:     func(TileId) { v.pop() },
	}
	return v
}

// SetFrameCount sets the current frame number, stamped into the visited
// nodes' render data.
func (v *LODVisitor) SetFrameCount(frameCount int32) {
	v.frame = frameCount
}

// SetModelview sets the model space to eye space matrix.
func (v *LODVisitor) SetModelview(m *mat4d.T) {
	v.matVM = *m
}

// SetProjection sets the projection matrix.
func (v *LODVisitor) SetProjection(m *mat4d.T) {
	v.matP = *m
}

// SetViewport sets the target viewport.
func (v *LODVisitor) SetViewport(vp Viewport) {
	v.viewport = vp
}

// SetUpdateLOD controls whether refinement decisions use fresh view data.
// When disabled the previous frame's derived data is reused; it must have
// been enabled for at least one frame first.
func (v *LODVisitor) SetUpdateLOD(enable bool) {
	v.updateLOD = enable
}

// SetUpdateCulling controls whether culling decisions use fresh view data.
// When disabled the previous frame's derived data is reused; it must have
// been enabled for at least one frame first.
func (v *LODVisitor) SetUpdateCulling(enable bool) {
	v.updateCulling = enable
}

// LoadDEM returns the elevation tiles whose parents were found too coarse
// this frame.
func (v *LODVisitor) LoadDEM() []TileId {
	return v.loadDEM
}

// LoadIMG returns the imagery tiles whose parents were found too coarse
// this frame.
func (v *LODVisitor) LoadIMG() []TileId {
	return v.loadIMG
}

// RenderDEM returns the elevation tiles to draw this frame.
func (v *LODVisitor) RenderDEM() []*RenderData {
	return v.renderDEM
}

// RenderIMG returns the imagery tiles to draw this frame, index-aligned
// with RenderDEM.
func (v *LODVisitor) RenderIMG() []*RenderData {
	return v.renderIMG
}

// Visit runs the LOD selection for the current frame.
func (v *LODVisitor) Visit() {
	v.visitor.TreeDEM = v.mgrDEM.Tree()
	if v.mgrIMG != nil {
		v.visitor.TreeIMG = v.mgrIMG.Tree()
	} else {
		v.visitor.TreeIMG = nil
	}
	v.visitor.Visit()
}

func (v *LODVisitor) preTraverse() bool {
	if v.updateLOD {
		v.frustumES.SetFromMatrix(&v.matP)
		v.fov = math.Max(v.frustumES.HorizontalFOV(), v.frustumES.VerticalFOV())
	}

	if v.updateCulling {
		var clip mat4d.T
		clip.AssignMul(&v.matP, &v.matVM)
		v.frustumMS.SetFromMatrix(&clip)
		v.camPos = cameraPosition(&v.matVM)
	}

	minRadius := math.Min(v.params.Radii[0], math.Min(v.params.Radii[1], v.params.Radii[2]))
	v.proxyRadius = minRadius + float64(v.mgrDEM.MinHeight())*v.params.HeightScale

	v.loadDEM = v.loadDEM[:0]
	v.loadIMG = v.loadIMG[:0]
	v.renderDEM = v.renderDEM[:0]
	v.renderIMG = v.renderIMG[:0]
	v.stackTop = -1

	// Traversal requires all root tiles; request the missing ones and skip
	// the frame's traversal until they arrive.
	result := true
	for i := 0; i < NumRootPatches; i++ {
		if v.mgrDEM.Tree().Root(i) == nil {
			v.loadDEM = append(v.loadDEM, RootTileId(i))
			result = false
		}
		if v.mgrIMG != nil && v.mgrIMG.Tree().Root(i) == nil {
			v.loadIMG = append(v.loadIMG, RootTileId(i))
			result = false
		}
	}
	return result
}

func (v *LODVisitor) push(dem, img *TileNode) *lodState {
	v.stackTop++
	if v.stackTop >= MaxStackDepth {
		panic("lod: traversal stack overflow")
	}
	state := &v.stack[v.stackTop]
	*state = lodState{nodeDEM: dem, nodeIMG: img}
	return state
}

func (v *LODVisitor) pop() {
	v.stackTop--
}

func (v *LODVisitor) preVisitRoot(id TileId, dem, img *TileNode) bool {
	state := v.push(dem, img)

	state.rdDEM = v.mgrDEM.FindRenderData(dem)
	if state.rdDEM == nil {
		panic("lod: root node without render data")
	}
	state.rdDEM.LastFrame = v.frame

	if v.mgrIMG != nil && img != nil {
		state.rdIMG = v.mgrIMG.FindRenderData(img)
		state.rdIMG.LastFrame = v.frame
	}

	return v.visitNode(id, state)
}

func (v *LODVisitor) preVisit(id TileId, dem, img *TileNode) bool {
	state := v.push(dem, img)
	parent := &v.stack[v.stackTop-1]

	state.rdDEM = v.mgrDEM.FindRenderData(dem)
	if state.rdDEM == nil {
		state.rdDEM = parent.rdDEM
	} else {
		state.rdDEM.LastFrame = v.frame
	}

	if v.mgrIMG != nil {
		if img != nil {
			state.rdIMG = v.mgrIMG.FindRenderData(img)
			state.rdIMG.LastFrame = v.frame
		} else {
			state.rdIMG = parent.rdIMG
		}
	}

	return v.visitNode(id, state)
}

// visitNode decides the fate of one node: culled, drawn at this level, or
// refined into its children. Returns whether the traversal descends.
func (v *LODVisitor) visitNode(id TileId, state *lodState) bool {
	if state.rdDEM == nil {
		panic("lod: visited node without loaded ancestor data")
	}

	if !v.testVisible(state) {
		return false
	}

	if v.testNeedRefine(id, state) {
		return v.handleRefine(state)
	}

	v.drawLevel(state)
	return false
}

func (v *LODVisitor) testVisible(state *lodState) bool {
	bounds := &state.rdDEM.Bounds
	if !v.frustumMS.IntersectsBox(bounds) {
		return false
	}
	return boxFrontFacing(v.camPos, v.proxyRadius, bounds)
}

// testNeedRefine estimates the solid angle the node's bounding box occupies
// when seen from the camera: the maximum angle between the directions from
// the camera to the box center and to each of the eight corners. The node
// is refined when the angle relative to the field of view, scaled by the
// LOD factor, exceeds the refinement threshold. Nodes below the minimum
// level are always refined.
func (v *LODVisitor) testNeedRefine(id TileId, state *lodState) bool {
	bounds := &state.rdDEM.Bounds
	center := bounds.Center()
	centerDir := vec3d.Sub(&center, &v.camPos)
	centerDir.Normalize()

	maxAngle := 0.0
	corners := bounds.Corners()
	for i := range corners {
		dir := vec3d.Sub(&corners[i], &v.camPos)
		dir.Normalize()
		angle := math.Acos(math.Min(1, vec3d.Dot(&dir, &centerDir)))
		maxAngle = math.Max(maxAngle, angle)
	}

	result := maxAngle/v.fov*v.params.LodFactor > v.params.RefineThreshold

	if v.params.MinLevel > int(id.Level) {
		result = true
	}

	return result
}

// handleRefine descends only when all four children of every data set are
// resident and uploaded; otherwise the missing children are requested and
// the current, coarser level is drawn. This all-or-nothing rule prevents
// seams between partially refined siblings.
func (v *LODVisitor) handleRefine(state *lodState) bool {
	childrenDemAvailable := childrenAvailable(state.nodeDEM, v.mgrDEM)

	if v.mgrIMG != nil {
		childrenImgAvailable := state.nodeIMG != nil && childrenAvailable(state.nodeIMG, v.mgrIMG)

		if !childrenDemAvailable {
			v.addLoadChildren(state.nodeDEM, v.mgrDEM, &v.loadDEM)
		}
		if !childrenImgAvailable {
			v.addLoadChildren(state.nodeIMG, v.mgrIMG, &v.loadIMG)
		}

		if childrenDemAvailable && childrenImgAvailable {
			return true
		}
		v.drawLevel(state)
		return false
	}

	if childrenDemAvailable {
		return true
	}
	v.addLoadChildren(state.nodeDEM, v.mgrDEM, &v.loadDEM)
	v.drawLevel(state)
	return false
}

// addLoadChildren requests the missing children of the node. Children that
// are already present are stamped with the current frame so they are not
// evicted while waiting for their siblings.
func (v *LODVisitor) addLoadChildren(node *TileNode, mgr *TreeManager, load *[]TileId) {
	if node == nil || int(node.TileId().Level) >= v.params.MaxLevel {
		return
	}

	id := node.TileId()
	for i := 0; i < 4; i++ {
		if node.Child(i) == nil {
			*load = append(*load, id.Child(i))
		} else if rd := mgr.FindRenderData(node.Child(i)); rd != nil {
			rd.LastFrame = v.frame
		}
	}
}

func (v *LODVisitor) drawLevel(state *lodState) {
	if state.rdDEM == nil {
		panic("lod: drawing node without elevation data")
	}
	state.rdDEM.AddFlag(FlagRender)
	v.renderDEM = append(v.renderDEM, state.rdDEM)

	if v.mgrIMG != nil {
		if state.rdIMG == nil {
			panic("lod: drawing node without imagery data")
		}
		v.renderIMG = append(v.renderIMG, state.rdIMG)
	}
}

// childrenAvailable reports whether all four children of the node are
// present and GPU resident, the precondition for refining into them.
func childrenAvailable(node *TileNode, mgr *TreeManager) bool {
	if node == nil {
		return false
	}
	for i := 0; i < 4; i++ {
		child := node.Child(i)
		if child == nil {
			return false
		}
		rd := mgr.FindRenderData(child)
		if rd == nil || rd.TexLayer == TexLayerNone {
			return false
		}
	}
	return true
}
