package lod

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewPlanetRequiresElevation(t *testing.T) {
	_, err := NewPlanet(DefaultPlanetParameters(), nil, nil)
	require.Error(t, err)
}

func TestPlanetEndToEnd(t *testing.T) {
	params := DefaultPlanetParameters()
	params.MinLevel = 0
	params.MaxLevel = 1
	params.RetryBackoff = time.Millisecond

	p, err := NewPlanet(params,
		newFakeSource(TileDataTypeElevation, 9),
		newFakeSource(TileDataTypeColor, 9))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(testCtx())
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = p.Run(ctx)
	}()

	matVM, matP := overheadView(-135, 45, 5e5)
	vp := Viewport{Width: 1920, Height: 1080}

	frame := int32(0)
	require.Eventually(t, func() bool {
		frame++
		p.Draw(ctx, frame, &matVM, &matP, vp)
		return len(p.RenderDEM()) > 0 && len(p.visitor.LoadDEM()) == 0 && len(p.visitor.LoadIMG()) == 0
	}, 10*time.Second, 5*time.Millisecond)

	require.Len(t, p.RenderIMG(), len(p.RenderDEM()))
	for i, rd := range p.RenderDEM() {
		require.Equal(t, rd.Node().TileId(), p.RenderIMG()[i].Node().TileId())
		require.NotZero(t, rd.Flags&FlagRender)
	}

	// Parameter changes rebuild the bounds on the next frame and must not
	// disturb a settled selection.
	p.SetHeightScale(2)
	frame++
	p.Draw(ctx, frame, &matVM, &matP, vp)
	require.NotEmpty(t, p.RenderDEM())

	cancel()
	<-done
}

func TestPlanetFrameStampsRenderData(t *testing.T) {
	params := DefaultPlanetParameters()
	params.RetryBackoff = time.Millisecond

	p, err := NewPlanet(params, newFakeSource(TileDataTypeElevation, 9), nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(testCtx())
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = p.Run(ctx)
	}()

	matVM, matP := overheadView(0, 0, 10*EarthRadii[0])
	vp := Viewport{Width: 800, Height: 600}

	frame := int32(0)
	require.Eventually(t, func() bool {
		frame++
		p.Draw(ctx, frame, &matVM, &matP, vp)
		return len(p.RenderDEM()) > 0
	}, 10*time.Second, 5*time.Millisecond)

	for _, rd := range p.RenderDEM() {
		require.Equal(t, frame, rd.LastFrame)
	}

	cancel()
	<-done
}
