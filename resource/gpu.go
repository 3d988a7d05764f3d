package resource

import (
	"errors"
	"fmt"
	"image"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/tiles"
)

// GPUBackend stores resources as wgpu textures.
//
// Each resource keeps a CPU shadow image that raster output is written
// into; upload copies the shadow to the texture with queue.WriteTexture and
// submits the queue. A resource is pending until the queue reports its
// last upload's submission index as completed.
type GPUBackend struct {
	device hal.Device
	queue  hal.Queue

	// provider, when set, supplies the preferred format and device polling.
	provider gpucontext.DeviceProvider

	maxSize int
}

// GPUOption configures a GPUBackend.
type GPUOption func(*GPUBackend)

// WithDeviceProvider attaches the gpucontext provider the device came from.
// Its surface format becomes the preferred format, and Poll drives its
// device forward when the device supports polling.
func WithDeviceProvider(p gpucontext.DeviceProvider) GPUOption {
	return func(b *GPUBackend) {
		b.provider = p
	}
}

// WithGPUMaxTextureSize overrides the texture dimension limit.
func WithGPUMaxTextureSize(n int) GPUOption {
	return func(b *GPUBackend) {
		if n > 0 {
			b.maxSize = n
		}
	}
}

// NewGPUBackend creates a backend allocating textures on device and
// uploading through queue.
func NewGPUBackend(device hal.Device, queue hal.Queue, opts ...GPUOption) (*GPUBackend, error) {
	if device == nil || queue == nil {
		return nil, errors.New("resource: GPU backend needs a device and a queue")
	}
	b := &GPUBackend{
		device:  device,
		queue:   queue,
		maxSize: DefaultMaxTextureSize,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

// PreferredFormat returns the provider's surface format, or RGBA8Unorm
// when no provider was attached.
func (b *GPUBackend) PreferredFormat() Format {
	if b.provider != nil {
		if f := b.provider.SurfaceFormat(); b.SupportsFormat(f) {
			return f
		}
	}
	return gputypes.TextureFormatRGBA8Unorm
}

// Kind implements Backend.
func (b *GPUBackend) Kind() Kind { return KindGPUTexture }

// MaxTextureSize implements Backend.
func (b *GPUBackend) MaxTextureSize() int { return b.maxSize }

// SupportsFormat implements Backend.
func (b *GPUBackend) SupportsFormat(f Format) bool {
	_, ok := BytesPerPixel(f)
	return ok
}

func (b *GPUBackend) allocate(r *Resource) error {
	tex, err := b.device.CreateTexture(&hal.TextureDescriptor{
		Label:         fmt.Sprintf("tile_resource_%d", r.id),
		Size:          extent(r.size),
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     gputypes.TextureDimension2D,
		Format:        r.format,
		Usage:         gputypes.TextureUsageCopyDst | gputypes.TextureUsageCopySrc | gputypes.TextureUsageTextureBinding,
	})
	if err != nil {
		return fmt.Errorf("create texture: %w", err)
	}
	r.texture = tex
	r.pixels = image.NewRGBA(r.size.Rect())
	return nil
}

func (b *GPUBackend) upload(r *Resource) error {
	if r.texture == nil || r.pixels == nil {
		return nil
	}

	data := r.pixels.Pix
	if r.format == gputypes.TextureFormatBGRA8Unorm {
		data = make([]byte, len(r.pixels.Pix))
		copy(data, r.pixels.Pix)
		swizzleRB(data)
	}

	size := extent(r.size)
	err := b.queue.WriteTexture(
		&hal.ImageCopyTexture{
			Texture:  r.texture,
			MipLevel: 0,
		},
		data,
		&hal.ImageDataLayout{
			Offset:       0,
			BytesPerRow:  uint32(r.pixels.Stride), //nolint:gosec // stride bounded by max texture size
			RowsPerImage: size.Height,
		},
		&size,
	)
	if err != nil {
		return fmt.Errorf("write texture: %w", err)
	}

	index, err := b.queue.Submit(nil)
	if err != nil {
		return fmt.Errorf("submit upload: %w", err)
	}
	r.submission = index
	return nil
}

func (b *GPUBackend) pending(r *Resource) bool {
	if r.submission == 0 {
		return false
	}
	return b.queue.PollCompleted() < r.submission
}

// devicePoller is implemented by gpucontext devices that can be driven
// forward without blocking.
type devicePoller interface {
	Poll(wait bool)
}

func (b *GPUBackend) poll() {
	if b.provider == nil {
		return
	}
	if d, ok := b.provider.Device().(devicePoller); ok {
		d.Poll(false)
	}
}

func (b *GPUBackend) release(r *Resource) {
	if r.texture != nil {
		b.device.DestroyTexture(r.texture)
		r.texture = nil
	}
	r.pixels = nil
}

func (b *GPUBackend) destroy() {}

func extent(s tiles.Size) hal.Extent3D {
	return hal.Extent3D{
		Width:              uint32(s.Width),  //nolint:gosec // validated against max texture size
		Height:             uint32(s.Height), //nolint:gosec // validated against max texture size
		DepthOrArrayLayers: 1,
	}
}
