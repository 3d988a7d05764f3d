package runner

import (
	"image"
	"sync"

	"github.com/gogpu/tiles"
)

// stagingPool recycles CPU staging images by size.
//
// Thread safety: stagingPool is safe for concurrent use.
type stagingPool struct {
	mu     sync.Mutex
	free   map[tiles.Size][]*image.RGBA
	maxPer int
}

func newStagingPool(maxPerSize int) *stagingPool {
	return &stagingPool{free: make(map[tiles.Size][]*image.RGBA), maxPer: maxPerSize}
}

// get returns a cleared image of size.
func (p *stagingPool) get(size tiles.Size) *image.RGBA {
	p.mu.Lock()
	list := p.free[size]
	if n := len(list); n > 0 {
		img := list[n-1]
		list[n-1] = nil
		p.free[size] = list[:n-1]
		p.mu.Unlock()
		clear(img.Pix)
		return img
	}
	p.mu.Unlock()
	return image.NewRGBA(size.Rect())
}

// put returns img for reuse. Images beyond the per-size cap are dropped.
func (p *stagingPool) put(img *image.RGBA) {
	size := tiles.Sz(img.Rect.Dx(), img.Rect.Dy())
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.free[size]) < p.maxPer {
		p.free[size] = append(p.free[size], img)
	}
}

// len returns the number of pooled images.
func (p *stagingPool) len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, l := range p.free {
		n += len(l)
	}
	return n
}

// reset drops every pooled image.
func (p *stagingPool) reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	clear(p.free)
}
