package lod

// LayerPool hands out layer indices of a fixed-size texture array. The
// engine only manages the indices, uploading sample data into a layer is
// the renderer's job. All calls happen on the frame goroutine.
type LayerPool struct {
	capacity int
	free     []int32
}

// NewLayerPool creates a pool of n layers.
func NewLayerPool(n int) *LayerPool {
	p := &LayerPool{capacity: n, free: make([]int32, 0, n)}
	for i := n - 1; i >= 0; i-- {
		p.free = append(p.free, int32(i))
	}
	return p
}

// Allocate takes a layer from the pool. It returns TexLayerNone and false
// when the pool is exhausted.
func (p *LayerPool) Allocate() (int32, bool) {
	if len(p.free) == 0 {
		return TexLayerNone, false
	}
	layer := p.free[len(p.free)-1]
	p.free = p.free[:len(p.free)-1]
	return layer, true
}

// Release returns a layer to the pool.
func (p *LayerPool) Release(layer int32) {
	if layer == TexLayerNone {
		return
	}
	p.free = append(p.free, layer)
}

// Capacity returns the total number of layers.
func (p *LayerPool) Capacity() int {
	return p.capacity
}

// Used returns the number of allocated layers.
func (p *LayerPool) Used() int {
	return p.capacity - len(p.free)
}
