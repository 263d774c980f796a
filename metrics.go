package lod

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	dataTypeLabel = "data_type"
)

var (
	lodResidentTiles = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "lod_resident_tiles",
		Help: "The number of tiles held in the residency cache.",
	}, []string{dataTypeLabel})

	lodResidentLayers = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "lod_resident_layers",
		Help: "The number of occupied texture array layers.",
	}, []string{dataTypeLabel})

	lodTilesLoadedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lod_tiles_loaded_total",
		Help: "The total number of tiles integrated into the tree.",
	}, []string{dataTypeLabel})

	lodTilesEvictedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lod_tiles_evicted_total",
		Help: "The total number of tiles evicted from the residency cache.",
	}, []string{dataTypeLabel})

	lodLoadFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lod_load_failures_total",
		Help: "The total number of tiles marked unavailable after exhausting retries.",
	}, []string{dataTypeLabel})

	lodRenderTiles = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "lod_render_tiles",
		Help: "The number of tiles in the render list of the last frame.",
	}, []string{dataTypeLabel})

	lodLoadRequests = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "lod_load_requests",
		Help: "The number of load requests produced by the last frame.",
	}, []string{dataTypeLabel})
)

func instrumentResidency(dataType TileDataType, tiles, layers int) {
	labels := prometheus.Labels{dataTypeLabel: dataType.String()}
	lodResidentTiles.With(labels).Set(float64(tiles))
	lodResidentLayers.With(labels).Set(float64(layers))
}

func instrumentTileLoaded(dataType TileDataType) {
	lodTilesLoadedTotal.
		With(prometheus.Labels{dataTypeLabel: dataType.String()}).
		Inc()
}

func instrumentTileEvicted(dataType TileDataType) {
	lodTilesEvictedTotal.
		With(prometheus.Labels{dataTypeLabel: dataType.String()}).
		Inc()
}

func instrumentLoadFailure(dataType TileDataType) {
	lodLoadFailuresTotal.
		With(prometheus.Labels{dataTypeLabel: dataType.String()}).
		Inc()
}

func instrumentFrameLists(dataType TileDataType, renderTiles, loadRequests int) {
	labels := prometheus.Labels{dataTypeLabel: dataType.String()}
	lodRenderTiles.With(labels).Set(float64(renderTiles))
	lodLoadRequests.With(labels).Set(float64(loadRequests))
}
