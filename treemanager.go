package lod

import (
	"context"
	"sort"

	"github.com/outofforest/logger"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

// TreeManager is the residency cache of one data set. It owns the data
// set's quad tree, mediates between the tile source and the GPU layer pool
// and evicts tiles under memory pressure.
//
// The tree and all maps are touched from the frame goroutine only; loader
// goroutines communicate through the request and result channels, whose
// results are integrated at the start of Update.
type TreeManager struct {
	params *PlanetParameters
	source TileSource
	name   string
	layer  *LayerDescription

	tree        *TileQuadTree
	rdata       map[TileId]*RenderData
	pool        *LayerPool
	pending     map[TileId]struct{}
	unavailable map[TileId]struct{}
	toUpload    []TileId

	requestCh chan TileId
	resultCh  chan loadResult

	frame     int32
	minHeight float32
}

// NewTreeManager creates the residency cache for one data set.
func NewTreeManager(params *PlanetParameters, source TileSource) *TreeManager {
	return &TreeManager{
		params:      params,
		source:      source,
		name:        source.DataType().String(),
		tree:        NewTileQuadTree(),
		rdata:       make(map[TileId]*RenderData),
		pool:        NewLayerPool(params.MaxTiles + NumRootPatches),
		pending:     make(map[TileId]struct{}),
		unavailable: make(map[TileId]struct{}),
		requestCh:   make(chan TileId, params.QueueSize),
		resultCh:    make(chan loadResult, params.QueueSize),
	}
}

// Name returns the manager's name, used in logs.
func (m *TreeManager) Name() string {
	return m.name
}

// DataType returns the data set's sample type.
func (m *TreeManager) DataType() TileDataType {
	return m.source.DataType()
}

// Tree returns the managed quad tree. The tree must only be read between
// Update and the end of the frame.
func (m *TreeManager) Tree() *TileQuadTree {
	return m.tree
}

// SetLayerDescription attaches a description of the tiles the source can
// provide. Requests for tiles outside the described availability are marked
// unavailable immediately instead of being sent to the source.
func (m *TreeManager) SetLayerDescription(layer *LayerDescription) {
	m.layer = layer
}

// Run hosts the manager's background loaders until ctx is cancelled.
func (m *TreeManager) Run(ctx context.Context) error {
	return runLoaders(ctx, m.name, m.source, m.params, m.requestCh, m.resultCh)
}

// FindRenderData returns the render metadata of a node, nil if the node is
// not resident.
func (m *TreeManager) FindRenderData(node *TileNode) *RenderData {
	return m.rdata[node.TileId()]
}

// MinHeight returns the smallest elevation sample of all resident root
// tiles, used as the radius offset of the horizon culling proxy sphere.
func (m *TreeManager) MinHeight() float32 {
	return m.minHeight
}

// ResidentTiles returns the number of tiles in the cache.
func (m *TreeManager) ResidentTiles() int {
	return m.tree.NodeCount()
}

// PendingLoads returns the number of in-flight load requests.
func (m *TreeManager) PendingLoads() int {
	return len(m.pending)
}

// Unavailable reports whether the tile was marked permanently unavailable.
func (m *TreeManager) Unavailable(id TileId) bool {
	_, ok := m.unavailable[id]
	return ok
}

// Request enqueues load requests for the given tiles. Tiles already
// resident, in flight or known to be unavailable are skipped; at most one
// request per tile is ever outstanding. When the request queue is full the
// remaining tiles are dropped, the selector re-requests them next frame.
func (m *TreeManager) Request(ids []TileId) {
	for _, id := range ids {
		if _, ok := m.rdata[id]; ok {
			continue
		}
		if _, ok := m.pending[id]; ok {
			continue
		}
		if _, ok := m.unavailable[id]; ok {
			continue
		}
		if m.layer != nil && !m.layer.TileAvailable(id) {
			m.unavailable[id] = struct{}{}
			continue
		}

		select {
		case m.requestCh <- id:
			m.pending[id] = struct{}{}
		default:
			return
		}
	}
}

// Update integrates completed loads, evicts stale tiles under budget
// pressure and assigns texture layers to newly resident tiles. It is called
// once per frame, before the tree is traversed.
func (m *TreeManager) Update(ctx context.Context, frameCount int32) {
	m.frame = frameCount

	m.drainResults()
	m.pruneStale(ctx)
	m.uploadPending(ctx)
	m.updateMinHeight()

	instrumentResidency(m.DataType(), m.tree.NodeCount(), m.pool.Used())
}

func (m *TreeManager) drainResults() {
	for {
		var r loadResult
		select {
		case r = <-m.resultCh:
		default:
			return
		}

		delete(m.pending, r.id)

		if r.err != nil {
			m.unavailable[r.id] = struct{}{}
			instrumentLoadFailure(m.DataType())
			continue
		}

		// A result whose parent was evicted while the load was in flight
		// is silently discarded.
		if r.id.Level > 0 && m.tree.Find(r.id.Parent()) == nil {
			continue
		}

		node := NewTileNode(r.id, r.data)
		if err := m.tree.Insert(node); err != nil {
			continue
		}

		m.rdata[r.id] = &RenderData{
			node:      node,
			Bounds:    computeTileBounds(r.id, r.data, m.params.Radii, m.params.HeightScale),
			TexLayer:  TexLayerNone,
			LastFrame: m.frame,
		}
		m.toUpload = append(m.toUpload, r.id)
		instrumentTileLoaded(m.DataType())
	}
}

// pruneStale removes unused tiles while the cache exceeds its budget.
// Only leaves are removed, so eviction proceeds bottom-up over consecutive
// frames; roots, tiles visited this frame and tiles with in-flight children
// are never touched.
func (m *TreeManager) pruneStale(ctx context.Context) {
	over := m.tree.NodeCount() - m.rootCount() - m.params.MaxTiles
	if over <= 0 {
		return
	}

	var leaves []*RenderData
	m.tree.Walk(func(n *TileNode) {
		if n.TileId().Level > 0 && n.IsLeaf() {
			leaves = append(leaves, m.rdata[n.TileId()])
		}
	})

	candidates := lo.Filter(leaves, func(rd *RenderData, _ int) bool {
		return rd.LastFrame != m.frame &&
			m.frame-rd.LastFrame > m.params.UnusedFrames &&
			!m.hasPendingChild(rd.node.TileId())
	})
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].LastFrame < candidates[j].LastFrame
	})

	evicted := 0
	for _, rd := range candidates {
		if evicted >= over {
			break
		}
		m.evictNode(rd.node)
		evicted++
	}

	if evicted > 0 {
		logger.Get(ctx).Debug("evicted stale tiles",
			zap.String("source", m.name),
			zap.Int("count", evicted),
			zap.Int("resident", m.tree.NodeCount()))
	}
}

// uploadPending assigns texture layers to tiles integrated earlier. When
// the pool runs out, the least recently used resident tile is evicted to
// make room; if every resident tile was used this frame the upload is
// deferred to a later frame.
func (m *TreeManager) uploadPending(ctx context.Context) {
	deferred := m.toUpload[:0]
	for _, id := range m.toUpload {
		rd, ok := m.rdata[id]
		if !ok {
			continue
		}

		layer, ok := m.pool.Allocate()
		if !ok {
			if !m.evictLRU(ctx) {
				deferred = append(deferred, id)
				continue
			}
			layer, ok = m.pool.Allocate()
			if !ok {
				deferred = append(deferred, id)
				continue
			}
		}
		rd.TexLayer = layer
	}
	m.toUpload = deferred
}

// evictLRU removes the least recently used resident leaf. Tiles visited in
// the current or the previous frame are protected: eviction runs before the
// frame's traversal, so tiles rendered last frame are very likely still
// needed and evicting them would make the layer pool thrash. Returns false
// when no tile can be evicted.
func (m *TreeManager) evictLRU(ctx context.Context) bool {
	var victim *RenderData
	m.tree.Walk(func(n *TileNode) {
		id := n.TileId()
		if id.Level == 0 || !n.IsLeaf() {
			return
		}
		rd := m.rdata[id]
		if rd == nil || rd.TexLayer == TexLayerNone || rd.LastFrame >= m.frame-1 {
			return
		}
		if m.hasPendingChild(id) {
			return
		}
		if victim == nil || rd.LastFrame < victim.LastFrame {
			victim = rd
		}
	})

	if victim == nil {
		return false
	}

	logger.Get(ctx).Debug("layer pool exhausted, evicting LRU tile",
		zap.String("source", m.name),
		zap.Stringer("tile", victim.node.TileId()),
		zap.Int32("lastFrame", victim.LastFrame))
	m.evictNode(victim.node)
	return true
}

func (m *TreeManager) evictNode(n *TileNode) {
	walkPostOrder(n, func(c *TileNode) {
		id := c.TileId()
		if rd := m.rdata[id]; rd != nil {
			m.pool.Release(rd.TexLayer)
			delete(m.rdata, id)
			instrumentTileEvicted(m.DataType())
		}
	})
	_ = m.tree.Remove(n)
}

func (m *TreeManager) hasPendingChild(id TileId) bool {
	if id.Level >= MaxTreeLevel {
		return false
	}
	for i := 0; i < 4; i++ {
		if _, ok := m.pending[id.Child(i)]; ok {
			return true
		}
	}
	return false
}

func (m *TreeManager) rootCount() int {
	c := 0
	for i := 0; i < NumRootPatches; i++ {
		if m.tree.Root(i) != nil {
			c++
		}
	}
	return c
}

func (m *TreeManager) updateMinHeight() {
	first := true
	var minHeight float32
	for i := 0; i < NumRootPatches; i++ {
		root := m.tree.Root(i)
		if root == nil || root.Data() == nil || root.Data().Pyramid() == nil {
			continue
		}
		if v := root.Data().Pyramid().Min(); first || v < minHeight {
			minHeight = v
			first = false
		}
	}
	m.minHeight = minHeight
}

// RecomputeBounds rebuilds the bounding boxes of all resident tiles. Called
// after the ellipsoid radii or the height scale changed.
func (m *TreeManager) RecomputeBounds() {
	m.tree.Walk(func(n *TileNode) {
		if rd := m.rdata[n.TileId()]; rd != nil {
			rd.Bounds = computeTileBounds(n.TileId(), n.Data(), m.params.Radii, m.params.HeightScale)
		}
	})
}

// Clear drops all resident tiles and resets the layer pool. In-flight
// results are discarded as they arrive.
func (m *TreeManager) Clear() {
	m.tree = NewTileQuadTree()
	m.rdata = make(map[TileId]*RenderData)
	m.pool = NewLayerPool(m.params.MaxTiles + NumRootPatches)
	m.toUpload = nil
}
