package lod

import (
	"context"
	"fmt"
	"time"

	"github.com/outofforest/logger"
	"github.com/outofforest/parallel"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// ErrTileNotAvailable is returned by a TileSource for tiles it can never
// provide. Such tiles are not retried.
var ErrTileNotAvailable = errors.New("tile not available")

// TileSource produces raw sample grids for tile ids. LoadTile blocks and is
// called from background loader goroutines only; implementations do not
// need to be aware of the quad tree. Transient failures are retried by the
// engine, ErrTileNotAvailable marks a tile permanently missing.
type TileSource interface {
	DataType() TileDataType
	Resolution() int
	LoadTile(ctx context.Context, id TileId) (*TileData, error)
}

// loadResult is the completion record handed from a loader goroutine back
// to the frame goroutine.
type loadResult struct {
	id   TileId
	data *TileData
	err  error
}

// runLoaders runs the loader worker pool of one tree manager. Requests are
// taken from requestCh, loaded with bounded retries and pushed to resultCh,
// where the manager's Update integrates them on the frame goroutine.
func runLoaders(
	ctx context.Context,
	name string,
	source TileSource,
	params *PlanetParameters,
	requestCh <-chan TileId,
	resultCh chan<- loadResult,
) error {
	return parallel.Run(ctx, func(ctx context.Context, spawn parallel.SpawnFn) error {
		for i := 0; i < params.LoadWorkers; i++ {
			spawn(fmt.Sprintf("%s-loader-%02d", name, i), parallel.Fail, func(ctx context.Context) error {
				for {
					var id TileId
					select {
					case <-ctx.Done():
						return errors.WithStack(ctx.Err())
					case id = <-requestCh:
					}

					data, err := loadWithRetry(ctx, source, params, id)
					if err != nil && ctx.Err() != nil {
						return errors.WithStack(ctx.Err())
					}
					if err != nil {
						logger.Get(ctx).Warn("tile load failed",
							zap.String("source", name),
							zap.Stringer("tile", id),
							zap.Error(err))
					}

					select {
					case <-ctx.Done():
						return errors.WithStack(ctx.Err())
					case resultCh <- loadResult{id: id, data: data, err: err}:
					}
				}
			})
		}
		return nil
	})
}

func loadWithRetry(
	ctx context.Context,
	source TileSource,
	params *PlanetParameters,
	id TileId,
) (*TileData, error) {
	var err error
	for attempt := 0; attempt <= params.RetryLimit; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, errors.WithStack(ctx.Err())
			case <-time.After(params.RetryBackoff * time.Duration(attempt)):
			}
		}

		var data *TileData
		data, err = source.LoadTile(ctx, id)
		if err == nil {
			return data, nil
		}
		if errors.Is(err, ErrTileNotAvailable) {
			return nil, err
		}
	}
	return nil, errors.Wrapf(err, "giving up on tile %s after %d retries", id, params.RetryLimit)
}
