package lod

import (
	"context"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/outofforest/logger"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func testCtx() context.Context {
	return logger.WithLogger(context.Background(), logger.New(logger.DefaultConfig))
}

// fakeSource serves synthetic tiles from memory. Failures and missing tiles
// are scripted per tile id.
type fakeSource struct {
	dataType   TileDataType
	resolution int

	mu      sync.Mutex
	loads   map[TileId]int
	failing map[TileId]int
	missing map[TileId]bool
	height  map[TileId]float32
}

func newFakeSource(dataType TileDataType, resolution int) *fakeSource {
	return &fakeSource{
		dataType:   dataType,
		resolution: resolution,
		loads:      map[TileId]int{},
		failing:    map[TileId]int{},
		missing:    map[TileId]bool{},
		height:     map[TileId]float32{},
	}
}

func (s *fakeSource) DataType() TileDataType {
	return s.dataType
}

func (s *fakeSource) Resolution() int {
	return s.resolution
}

func (s *fakeSource) LoadTile(_ context.Context, id TileId) (*TileData, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.loads[id]++
	if s.missing[id] {
		return nil, ErrTileNotAvailable
	}
	if s.failing[id] > 0 {
		s.failing[id]--
		return nil, errors.New("transient failure")
	}

	if s.dataType == TileDataTypeColor {
		return NewColorTile(s.resolution, make([]uint8, 3*s.resolution*s.resolution))
	}
	samples := make([]float32, s.resolution*s.resolution)
	for i := range samples {
		samples[i] = s.height[id]
	}
	return NewElevationTile(s.resolution, samples)
}

func (s *fakeSource) loadCount(id TileId) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loads[id]
}

// deliver pushes finished loads straight into the manager's result channel,
// bypassing the loader goroutines for deterministic tests.
func deliver(t *testing.T, m *TreeManager, ids ...TileId) {
	t.Helper()
	for _, id := range ids {
		data, err := m.source.LoadTile(context.Background(), id)
		require.NoError(t, err)
		m.pending[id] = struct{}{}
		m.resultCh <- loadResult{id: id, data: data}
	}
}

func allRootIds() []TileId {
	ids := make([]TileId, NumRootPatches)
	for i := range ids {
		ids[i] = RootTileId(i)
	}
	return ids
}

func TestTreeManagerIntegratesResults(t *testing.T) {
	params := DefaultPlanetParameters()
	m := NewTreeManager(&params, newFakeSource(TileDataTypeElevation, 9))

	deliver(t, m, allRootIds()...)
	m.Update(testCtx(), 1)

	require.Equal(t, NumRootPatches, m.ResidentTiles())
	require.Zero(t, m.PendingLoads())

	for i := 0; i < NumRootPatches; i++ {
		node := m.Tree().Root(i)
		require.NotNil(t, node)

		rd := m.FindRenderData(node)
		require.NotNil(t, rd)
		require.NotEqual(t, TexLayerNone, rd.TexLayer)
		require.Equal(t, int32(1), rd.LastFrame)
	}
}

func TestTreeManagerDiscardsOrphanResults(t *testing.T) {
	params := DefaultPlanetParameters()
	m := NewTreeManager(&params, newFakeSource(TileDataTypeElevation, 9))

	deliver(t, m, RootTileId(0))
	m.Update(testCtx(), 1)
	require.Equal(t, 1, m.ResidentTiles())

	// The grandchild's parent never arrived, the late result is dropped.
	deliver(t, m, RootTileId(0).Child(0).Child(1))
	m.Update(testCtx(), 2)
	require.Equal(t, 1, m.ResidentTiles())
	require.Zero(t, m.PendingLoads())
}

func TestTreeManagerRequestDeduplicates(t *testing.T) {
	params := DefaultPlanetParameters()
	m := NewTreeManager(&params, newFakeSource(TileDataTypeElevation, 9))

	ids := []TileId{RootTileId(0), RootTileId(1)}
	m.Request(ids)
	require.Equal(t, 2, m.PendingLoads())
	require.Len(t, m.requestCh, 2)

	m.Request(ids)
	require.Equal(t, 2, m.PendingLoads())
	require.Len(t, m.requestCh, 2)
}

func TestTreeManagerRequestHonorsLayerDescription(t *testing.T) {
	params := DefaultPlanetParameters()
	m := NewTreeManager(&params, newFakeSource(TileDataTypeElevation, 9))
	m.SetLayerDescription(NewLayerDescription("dem", 0, 0))

	child := RootTileId(0).Child(2)
	m.Request([]TileId{child})

	require.Zero(t, m.PendingLoads())
	require.True(t, m.Unavailable(child))
}

func TestTreeManagerPrunesStaleLeaves(t *testing.T) {
	params := DefaultPlanetParameters()
	params.MaxTiles = 4
	params.UnusedFrames = 2
	m := NewTreeManager(&params, newFakeSource(TileDataTypeElevation, 9))

	deliver(t, m, allRootIds()...)
	for i := 0; i < 4; i++ {
		deliver(t, m, RootTileId(0).Child(i), RootTileId(1).Child(i))
	}
	m.Update(testCtx(), 1)
	require.Equal(t, NumRootPatches+8, m.ResidentTiles())

	// Keep root 1's children fresh, let root 0's go stale.
	for i := 0; i < 4; i++ {
		m.rdata[RootTileId(1).Child(i)].LastFrame = 9
	}
	m.Update(testCtx(), 10)

	require.Equal(t, NumRootPatches+4, m.ResidentTiles())
	for i := 0; i < 4; i++ {
		require.Nil(t, m.tree.Find(RootTileId(0).Child(i)))
		require.NotNil(t, m.tree.Find(RootTileId(1).Child(i)))
		require.NotNil(t, m.Tree().Root(i), "roots are never evicted")
	}
}

func TestTreeManagerKeepsTilesWithPendingChildren(t *testing.T) {
	params := DefaultPlanetParameters()
	params.MaxTiles = 4
	params.UnusedFrames = 2
	m := NewTreeManager(&params, newFakeSource(TileDataTypeElevation, 9))

	child := RootTileId(0).Child(0)
	deliver(t, m, allRootIds()...)
	deliver(t, m, child)
	m.Update(testCtx(), 1)

	// Shrink the budget so the child is over budget, but keep one of its
	// children in flight.
	params.MaxTiles = 0
	m.pending[child.Child(2)] = struct{}{}
	m.Update(testCtx(), 10)
	require.NotNil(t, m.tree.Find(child))

	delete(m.pending, child.Child(2))
	m.Update(testCtx(), 11)
	require.Nil(t, m.tree.Find(child))
}

func TestTreeManagerLayerPoolExhaustionEvictsLRU(t *testing.T) {
	params := DefaultPlanetParameters()
	params.MaxTiles = 2
	m := NewTreeManager(&params, newFakeSource(TileDataTypeElevation, 9))

	deliver(t, m, allRootIds()...)
	m.Update(testCtx(), 1)

	c0 := RootTileId(0).Child(0)
	c1 := RootTileId(0).Child(1)
	deliver(t, m, c0, c1)
	m.Update(testCtx(), 2)
	require.Equal(t, params.MaxTiles+NumRootPatches, m.pool.Used())

	// The pool is full; uploading a third child evicts the least recently
	// used leaf.
	m.rdata[c0].LastFrame = 1
	c2 := RootTileId(0).Child(2)
	deliver(t, m, c2)
	m.Update(testCtx(), 3)

	require.Nil(t, m.tree.Find(c0))
	require.NotNil(t, m.tree.Find(c1))
	rd := m.FindRenderData(m.tree.Find(c2))
	require.NotNil(t, rd)
	require.NotEqual(t, TexLayerNone, rd.TexLayer)
}

func TestTreeManagerMinHeight(t *testing.T) {
	params := DefaultPlanetParameters()
	src := newFakeSource(TileDataTypeElevation, 9)
	src.height[RootTileId(3)] = -5
	m := NewTreeManager(&params, src)

	deliver(t, m, allRootIds()...)
	m.Update(testCtx(), 1)

	require.Equal(t, float32(-5), m.MinHeight())
}

func TestLoadWithRetry(t *testing.T) {
	params := DefaultPlanetParameters()
	params.RetryLimit = 3
	params.RetryBackoff = time.Millisecond
	src := newFakeSource(TileDataTypeElevation, 9)

	// Transient failures are retried until the load succeeds.
	id := RootTileId(0)
	src.failing[id] = 2
	data, err := loadWithRetry(testCtx(), src, &params, id)
	require.NoError(t, err)
	require.NotNil(t, data)
	require.Equal(t, 3, src.loadCount(id))

	// Permanently missing tiles are not retried.
	missing := RootTileId(1)
	src.missing[missing] = true
	_, err = loadWithRetry(testCtx(), src, &params, missing)
	require.ErrorIs(t, err, ErrTileNotAvailable)
	require.Equal(t, 1, src.loadCount(missing))

	// Persistent failures give up after the retry limit.
	broken := RootTileId(2)
	src.failing[broken] = 100
	_, err = loadWithRetry(testCtx(), src, &params, broken)
	require.Error(t, err)
	require.Equal(t, params.RetryLimit+1, src.loadCount(broken))
}

func TestTreeManagerLoadersEndToEnd(t *testing.T) {
	params := DefaultPlanetParameters()
	params.RetryBackoff = time.Millisecond
	src := newFakeSource(TileDataTypeElevation, 9)
	missing := RootTileId(2).Child(1)
	src.missing[missing] = true

	m := NewTreeManager(&params, src)

	ctx, cancel := context.WithCancel(testCtx())
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = m.Run(ctx)
	}()

	m.Request(allRootIds())
	require.Eventually(t, func() bool {
		m.Update(ctx, 1)
		return m.ResidentTiles() == NumRootPatches
	}, 5*time.Second, 5*time.Millisecond)

	m.Request([]TileId{missing})
	require.Eventually(t, func() bool {
		m.Update(ctx, 2)
		return m.Unavailable(missing)
	}, 5*time.Second, 5*time.Millisecond)

	cancel()
	<-done
}

func TestTreeManagerChurnNeverEvictsCurrentFrame(t *testing.T) {
	params := DefaultPlanetParameters()
	params.MaxTiles = 6
	params.UnusedFrames = 3
	m := NewTreeManager(&params, newFakeSource(TileDataTypeElevation, 9))

	deliver(t, m, allRootIds()...)
	m.Update(testCtx(), 0)

	rng := rand.New(rand.NewSource(42))
	for frame := int32(1); frame <= 200; frame++ {
		// Load children of a random root, stamp a random subset of the
		// resident leaves as used this frame.
		root := RootTileId(rng.Intn(NumRootPatches))
		for i := 0; i < 4; i++ {
			id := root.Child(i)
			if m.tree.Find(id) == nil {
				if _, pending := m.pending[id]; !pending {
					deliver(t, m, id)
				}
			}
		}

		var stamped []TileId
		m.tree.Walk(func(n *TileNode) {
			if !n.TileId().IsRoot() && rng.Intn(2) == 0 {
				m.rdata[n.TileId()].LastFrame = frame
				stamped = append(stamped, n.TileId())
			}
		})

		m.Update(testCtx(), frame)

		for _, id := range stamped {
			require.NotNil(t, m.tree.Find(id),
				"tile %s used in frame %d was evicted", id, frame)
		}
		for i := 0; i < NumRootPatches; i++ {
			require.NotNil(t, m.Tree().Root(i))
		}
	}
}

func TestTreeManagerClear(t *testing.T) {
	params := DefaultPlanetParameters()
	m := NewTreeManager(&params, newFakeSource(TileDataTypeElevation, 9))

	deliver(t, m, allRootIds()...)
	m.Update(testCtx(), 1)
	require.Equal(t, NumRootPatches, m.ResidentTiles())

	m.Clear()
	require.Zero(t, m.ResidentTiles())
	require.Zero(t, m.pool.Used())
}
