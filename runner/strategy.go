package runner

import (
	"errors"
	"image"

	"github.com/gogpu/tiles"
	"github.com/gogpu/tiles/resource"
	"github.com/gogpu/tiles/tiletask"
)

// ErrWrongBackend is returned when a strategy cannot serve the provider's
// backend kind.
var ErrWrongBackend = errors.New("runner: strategy does not support backend")

// noopBuffer discards playback. It stands in for resources that could not
// be locked, so the task still runs and completes.
type noopBuffer struct{}

func (noopBuffer) Playback(tiletask.RasterSource, image.Rectangle, float64) {}

// acquireWriteLock locks r for a raster buffer, logging failures.
func acquireWriteLock(p *resource.Provider, r *resource.Resource, strategy string) (*resource.WriteLock, bool) {
	lock, err := p.LockForWrite(r)
	if err != nil {
		tiles.Logger().Warn("runner: raster buffer unavailable",
			"strategy", strategy, "resource", r.ID(), "err", err)
		return nil, false
	}
	return lock, true
}

// unlock commits a raster buffer's write lock. Lost or deleted resources
// are the caller's concern and only logged.
func unlock(lock *resource.WriteLock, src *image.RGBA, strategy string) {
	var err error
	if src != nil {
		err = lock.UnlockWithPixels(src)
	} else {
		err = lock.Unlock()
	}
	if err != nil {
		tiles.Logger().Debug("runner: raster commit failed",
			"strategy", strategy, "resource", lock.Resource().ID(), "err", err)
	}
}

// directBuffer rasters straight into the locked resource pixels.
type directBuffer struct {
	lock *resource.WriteLock
}

func (b *directBuffer) Playback(src tiletask.RasterSource, rect image.Rectangle, scale float64) {
	src.PlaybackToImage(b.lock.Pixels(), rect, scale)
}

// directProvider hands out buffers that raster into the resource's own
// pixels. What a release commits is up to the backend's unlock.
type directProvider struct {
	provider *resource.Provider
	name     string
}

// Name implements RasterBufferProvider.
func (p *directProvider) Name() string { return p.name }

// AcquireBufferForRaster write-locks r.
func (p *directProvider) AcquireBufferForRaster(r *resource.Resource) tiletask.RasterBuffer {
	lock, ok := acquireWriteLock(p.provider, r, p.name)
	if !ok {
		return noopBuffer{}
	}
	return &directBuffer{lock: lock}
}

// ReleaseBufferForRaster unlocks the resource.
func (p *directProvider) ReleaseBufferForRaster(b tiletask.RasterBuffer) {
	if db, ok := b.(*directBuffer); ok {
		unlock(db.lock, nil, p.name)
	}
}

// Shutdown implements RasterBufferProvider.
func (*directProvider) Shutdown() {}

// BitmapRasterBufferProvider rasters into shared-memory bitmaps in place.
// Releasing a buffer only drops the write lock.
type BitmapRasterBufferProvider struct {
	directProvider
}

// NewBitmap returns the bitmap strategy. provider must use a bitmap
// backend.
func NewBitmap(provider *resource.Provider) (*BitmapRasterBufferProvider, error) {
	if provider.Kind() != resource.KindBitmap {
		return nil, ErrWrongBackend
	}
	return &BitmapRasterBufferProvider{directProvider{provider: provider, name: "bitmap"}}, nil
}

// ZeroCopyRasterBufferProvider rasters into the CPU mapping of the
// resource on the worker, for any backend. The backend commits the mapping
// when the buffer is released: a texture upload for GPU resources, nothing
// for bitmaps.
type ZeroCopyRasterBufferProvider struct {
	directProvider
}

// NewZeroCopy returns the zero-copy strategy.
func NewZeroCopy(provider *resource.Provider) *ZeroCopyRasterBufferProvider {
	return &ZeroCopyRasterBufferProvider{directProvider{provider: provider, name: "zero-copy"}}
}
