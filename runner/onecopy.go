package runner

import (
	"context"
	"image"

	"golang.org/x/image/draw"
	"golang.org/x/sync/semaphore"

	"github.com/gogpu/tiles"
	"github.com/gogpu/tiles/resource"
	"github.com/gogpu/tiles/tiletask"
)

// DefaultStagingBudget is the default cap on staging bytes in flight for
// the one-copy strategy.
const DefaultStagingBudget = 32 << 20

// OneCopyOption configures a OneCopyRasterBufferProvider.
type OneCopyOption func(*OneCopyRasterBufferProvider)

// WithStagingBudget caps the staging bytes rastered concurrently.
// Workers beyond the budget wait for staging memory.
func WithStagingBudget(bytes int64) OneCopyOption {
	return func(p *OneCopyRasterBufferProvider) {
		if bytes > 0 {
			p.budget = bytes
		}
	}
}

// OneCopyRasterBufferProvider rasters into a pooled staging image on the
// worker, then copies it into the resource on the same worker. The copy
// is committed to the backend when the buffer is released.
type OneCopyRasterBufferProvider struct {
	provider *resource.Provider
	staging  *stagingPool
	budget   int64
	sem      *semaphore.Weighted

	ctx    context.Context
	cancel context.CancelFunc
}

// NewOneCopy returns the one-copy strategy for any backend.
func NewOneCopy(provider *resource.Provider, opts ...OneCopyOption) *OneCopyRasterBufferProvider {
	p := &OneCopyRasterBufferProvider{
		provider: provider,
		staging:  newStagingPool(8),
		budget:   DefaultStagingBudget,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.sem = semaphore.NewWeighted(p.budget)
	p.ctx, p.cancel = context.WithCancel(context.Background())
	return p
}

// Name implements RasterBufferProvider.
func (*OneCopyRasterBufferProvider) Name() string { return "one-copy" }

// AcquireBufferForRaster write-locks r.
func (p *OneCopyRasterBufferProvider) AcquireBufferForRaster(r *resource.Resource) tiletask.RasterBuffer {
	lock, ok := acquireWriteLock(p.provider, r, p.Name())
	if !ok {
		return noopBuffer{}
	}
	return &oneCopyBuffer{p: p, lock: lock}
}

// ReleaseBufferForRaster commits the copied pixels and unlocks.
func (p *OneCopyRasterBufferProvider) ReleaseBufferForRaster(b tiletask.RasterBuffer) {
	if ob, ok := b.(*oneCopyBuffer); ok {
		unlock(ob.lock, nil, p.Name())
	}
}

// Shutdown unblocks workers waiting for staging memory and drops pooled
// staging images.
func (p *OneCopyRasterBufferProvider) Shutdown() {
	p.cancel()
	p.staging.reset()
}

// weight returns the semaphore weight for an image of size, clamped so a
// single tile larger than the budget can still run alone.
func (p *OneCopyRasterBufferProvider) weight(size tiles.Size) int64 {
	return min(int64(size.Area()*4), p.budget)
}

type oneCopyBuffer struct {
	p    *OneCopyRasterBufferProvider
	lock *resource.WriteLock
}

func (b *oneCopyBuffer) Playback(src tiletask.RasterSource, rect image.Rectangle, scale float64) {
	dst := b.lock.Pixels()
	if dst == nil {
		return
	}
	size := b.lock.Resource().Size()
	n := b.p.weight(size)
	if err := b.p.sem.Acquire(b.p.ctx, n); err != nil {
		return
	}
	defer b.p.sem.Release(n)

	staging := b.p.staging.get(size)
	src.PlaybackToImage(staging, rect, scale)
	draw.Copy(dst, image.Point{}, staging, staging.Bounds(), draw.Src, nil)
	b.p.staging.put(staging)
}
