package runner

import (
	"image"

	"golang.org/x/image/draw"

	"github.com/gogpu/tiles/resource"
	"github.com/gogpu/tiles/tiletask"
)

// GPURasterBufferProvider rasters into a scratch image on the worker and
// defers the texture upload to the origin thread, where the buffer is
// released.
type GPURasterBufferProvider struct {
	provider *resource.Provider
	scratch  *stagingPool
}

// NewGPU returns the GPU strategy. provider must use a GPU texture
// backend.
func NewGPU(provider *resource.Provider) (*GPURasterBufferProvider, error) {
	if provider.Kind() != resource.KindGPUTexture {
		return nil, ErrWrongBackend
	}
	return &GPURasterBufferProvider{provider: provider, scratch: newStagingPool(8)}, nil
}

// Name implements RasterBufferProvider.
func (*GPURasterBufferProvider) Name() string { return "gpu" }

// AcquireBufferForRaster write-locks r and reserves a scratch image.
func (p *GPURasterBufferProvider) AcquireBufferForRaster(r *resource.Resource) tiletask.RasterBuffer {
	lock, ok := acquireWriteLock(p.provider, r, p.Name())
	if !ok {
		return noopBuffer{}
	}
	return &gpuBuffer{lock: lock, scratch: p.scratch.get(r.Size())}
}

// ReleaseBufferForRaster uploads the scratch image into the texture.
func (p *GPURasterBufferProvider) ReleaseBufferForRaster(b tiletask.RasterBuffer) {
	gb, ok := b.(*gpuBuffer)
	if !ok {
		return
	}
	if gb.played {
		unlock(gb.lock, gb.scratch, p.Name())
	} else {
		unlock(gb.lock, nil, p.Name())
	}
	p.scratch.put(gb.scratch)
}

// Shutdown drops pooled scratch images.
func (p *GPURasterBufferProvider) Shutdown() {
	p.scratch.reset()
}

type gpuBuffer struct {
	lock    *resource.WriteLock
	scratch *image.RGBA

	// played is written on the worker and read on the origin thread after
	// the runner has observed the task finish.
	played bool
}

func (b *gpuBuffer) Playback(src tiletask.RasterSource, rect image.Rectangle, scale float64) {
	// Partial playback keeps the texture's current content elsewhere.
	if cur := b.lock.Pixels(); cur != nil {
		draw.Copy(b.scratch, image.Point{}, cur, cur.Bounds(), draw.Src, nil)
	}
	src.PlaybackToImage(b.scratch, rect, scale)
	b.played = true
}
