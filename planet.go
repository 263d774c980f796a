package lod

import (
	"context"

	mat4d "github.com/flywave/go3d/float64/mat4"
	vec3d "github.com/flywave/go3d/float64/vec3"
	"github.com/outofforest/logger"
	"github.com/outofforest/parallel"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Frame statistics are logged every this many frames.
const statsFrames = 60

// Planet ties together the tree managers and the LOD visitor of one body
// and drives them through the per-frame sequence: integrate finished loads,
// evict stale tiles, select levels of detail and issue the next round of
// load requests. Elevation is mandatory, imagery optional.
//
// Draw must be called from a single goroutine; the background loaders run
// under Run.
type Planet struct {
	params PlanetParameters

	mgrDEM  *TreeManager
	mgrIMG  *TreeManager
	visitor *LODVisitor

	boundsDirty bool
	frame       int32
	stats       frameStats
}

// frameStats accumulates render and load list sizes over the statistics
// window.
type frameStats struct {
	frames    int32
	sumRender int
	maxRender int
	sumLoad   int
	maxLoad   int
}

func (s *frameStats) add(render, load int) {
	s.frames++
	s.sumRender += render
	s.sumLoad += load
	if render > s.maxRender {
		s.maxRender = render
	}
	if load > s.maxLoad {
		s.maxLoad = load
	}
}

// NewPlanet creates a planet from an elevation source and an optional
// imagery source.
func NewPlanet(params PlanetParameters, srcDEM, srcIMG TileSource) (*Planet, error) {
	if srcDEM == nil {
		return nil, errors.New("elevation source is required")
	}

	p := &Planet{params: params}
	p.mgrDEM = NewTreeManager(&p.params, srcDEM)
	if srcIMG != nil {
		p.mgrIMG = NewTreeManager(&p.params, srcIMG)
	}
	p.visitor = NewLODVisitor(&p.params, p.mgrDEM, p.mgrIMG)
	return p, nil
}

// DEM returns the elevation tree manager.
func (p *Planet) DEM() *TreeManager {
	return p.mgrDEM
}

// IMG returns the imagery tree manager, nil when no imagery source was
// configured.
func (p *Planet) IMG() *TreeManager {
	return p.mgrIMG
}

// Run hosts the background loaders of all data sets until ctx is cancelled.
func (p *Planet) Run(ctx context.Context) error {
	return parallel.Run(ctx, func(ctx context.Context, spawn parallel.SpawnFn) error {
		spawn("dem", parallel.Fail, p.mgrDEM.Run)
		if p.mgrIMG != nil {
			spawn("img", parallel.Fail, p.mgrIMG.Run)
		}
		return nil
	})
}

// SetRadii changes the reference ellipsoid. Takes effect on the next frame.
func (p *Planet) SetRadii(radii vec3d.T) {
	p.params.Radii = radii
	p.boundsDirty = true
}

// SetHeightScale changes the elevation exaggeration. Takes effect on the
// next frame.
func (p *Planet) SetHeightScale(scale float64) {
	p.params.HeightScale = scale
	p.boundsDirty = true
}

// SetLodFactor changes the refinement aggressiveness.
func (p *Planet) SetLodFactor(factor float64) {
	p.params.LodFactor = factor
}

// SetUpdateLOD freezes or unfreezes the refinement decisions, useful for
// inspecting a selection from a different viewpoint.
func (p *Planet) SetUpdateLOD(enable bool) {
	p.visitor.SetUpdateLOD(enable)
}

// SetUpdateCulling freezes or unfreezes the culling decisions.
func (p *Planet) SetUpdateCulling(enable bool) {
	p.visitor.SetUpdateCulling(enable)
}

// RenderDEM returns the elevation tiles selected by the last Draw.
func (p *Planet) RenderDEM() []*RenderData {
	return p.visitor.RenderDEM()
}

// RenderIMG returns the imagery tiles selected by the last Draw,
// index-aligned with RenderDEM.
func (p *Planet) RenderIMG() []*RenderData {
	return p.visitor.RenderIMG()
}

// Draw runs one frame: recompute bounds if parameters changed, integrate
// finished loads, traverse the trees for the given view and request the
// tiles the traversal found missing. The resulting render lists stay valid
// until the next Draw.
func (p *Planet) Draw(ctx context.Context, frameCount int32, matVM, matP *mat4d.T, vp Viewport) {
	p.frame = frameCount

	for _, rd := range p.visitor.RenderDEM() {
		rd.ClearFlag(FlagRender)
	}

	if p.boundsDirty {
		p.mgrDEM.RecomputeBounds()
		if p.mgrIMG != nil {
			p.mgrIMG.RecomputeBounds()
		}
		p.boundsDirty = false
	}

	p.mgrDEM.Update(ctx, frameCount)
	if p.mgrIMG != nil {
		p.mgrIMG.Update(ctx, frameCount)
	}

	p.visitor.SetFrameCount(frameCount)
	p.visitor.SetModelview(matVM)
	p.visitor.SetProjection(matP)
	p.visitor.SetViewport(vp)
	p.visitor.Visit()

	p.mgrDEM.Request(p.visitor.LoadDEM())
	instrumentFrameLists(p.mgrDEM.DataType(), len(p.visitor.RenderDEM()), len(p.visitor.LoadDEM()))
	if p.mgrIMG != nil {
		p.mgrIMG.Request(p.visitor.LoadIMG())
		instrumentFrameLists(p.mgrIMG.DataType(), len(p.visitor.RenderIMG()), len(p.visitor.LoadIMG()))
	}

	loads := len(p.visitor.LoadDEM()) + len(p.visitor.LoadIMG())
	p.stats.add(len(p.visitor.RenderDEM()), loads)
	if p.stats.frames >= statsFrames {
		p.logStatistics(ctx)
		p.stats = frameStats{}
	}
}

func (p *Planet) logStatistics(ctx context.Context) {
	fields := []zap.Field{
		zap.Int32("frame", p.frame),
		zap.Int("avgRenderTiles", p.stats.sumRender/int(p.stats.frames)),
		zap.Int("maxRenderTiles", p.stats.maxRender),
		zap.Int("avgLoadRequests", p.stats.sumLoad/int(p.stats.frames)),
		zap.Int("maxLoadRequests", p.stats.maxLoad),
		zap.Int("residentDEM", p.mgrDEM.ResidentTiles()),
		zap.Int("pendingDEM", p.mgrDEM.PendingLoads()),
	}
	if p.mgrIMG != nil {
		fields = append(fields,
			zap.Int("residentIMG", p.mgrIMG.ResidentTiles()),
			zap.Int("pendingIMG", p.mgrIMG.PendingLoads()))
	}
	logger.Get(ctx).Debug("frame statistics", fields...)
}
