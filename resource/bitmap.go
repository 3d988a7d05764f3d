package resource

import (
	"image"

	"github.com/gogpu/gputypes"
)

// BitmapBackend stores resources as shared-memory RGBA bitmaps.
// Raster output written into a resource's pixels is the resource content;
// there is nothing to upload and no pending consumer work beyond read locks.
type BitmapBackend struct {
	maxSize int
}

// NewBitmapBackend creates a bitmap backend.
func NewBitmapBackend() *BitmapBackend {
	return &BitmapBackend{maxSize: DefaultMaxTextureSize}
}

// Kind implements Backend.
func (b *BitmapBackend) Kind() Kind { return KindBitmap }

// MaxTextureSize implements Backend.
func (b *BitmapBackend) MaxTextureSize() int { return b.maxSize }

// SupportsFormat implements Backend. Bitmaps are always RGBA in memory.
func (b *BitmapBackend) SupportsFormat(f Format) bool {
	return f == gputypes.TextureFormatRGBA8Unorm
}

func (b *BitmapBackend) allocate(r *Resource) error {
	r.pixels = image.NewRGBA(r.size.Rect())
	return nil
}

func (b *BitmapBackend) upload(*Resource) error { return nil }

func (b *BitmapBackend) pending(*Resource) bool { return false }

func (b *BitmapBackend) poll() {}

func (b *BitmapBackend) release(r *Resource) {
	r.pixels = nil
}

func (b *BitmapBackend) destroy() {}
