package resource

import (
	"errors"
	"testing"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	"github.com/gogpu/wgpu/hal/noop"

	"github.com/gogpu/tiles"
)

// createNoopDevice creates a noop device and queue for testing.
func createNoopDevice(t *testing.T) (hal.Device, hal.Queue) {
	t.Helper()
	api := noop.API{}
	instance, err := api.CreateInstance(nil)
	if err != nil {
		t.Fatalf("CreateInstance failed: %v", err)
	}
	adapters := instance.EnumerateAdapters(nil)
	openDev, err := adapters[0].Adapter.Open(0, gputypes.DefaultLimits())
	if err != nil {
		instance.Destroy()
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() {
		openDev.Device.Destroy()
		instance.Destroy()
	})
	return openDev.Device, openDev.Queue
}

// mockDevice implements gpucontext.Device for testing.
type mockDevice struct{ polls int }

func (m *mockDevice) Poll(wait bool) { m.polls++ }
func (m *mockDevice) Destroy()       {}

// mockQueue implements gpucontext.Queue for testing.
type mockQueue struct{}

// mockAdapter implements gpucontext.Adapter for testing.
type mockAdapter struct{}

// mockProvider implements gpucontext.DeviceProvider for testing.
type mockProvider struct {
	device *mockDevice
	format gputypes.TextureFormat
}

var _ gpucontext.DeviceProvider = (*mockProvider)(nil)

func (m *mockProvider) Device() gpucontext.Device             { return m.device }
func (m *mockProvider) Queue() gpucontext.Queue               { return &mockQueue{} }
func (m *mockProvider) Adapter() gpucontext.Adapter           { return &mockAdapter{} }
func (m *mockProvider) SurfaceFormat() gputypes.TextureFormat { return m.format }
func (m *mockProvider) AdapterInfo() gpucontext.AdapterInfo {
	return gpucontext.AdapterInfo{Name: "mock", Type: gpucontext.AdapterTypeUnknown}
}

// stallQueue wraps a queue whose GPU never completes past completed and
// whose texture writes fail with writeErr.
type stallQueue struct {
	hal.Queue
	completed uint64
	writeErr  error
}

func (q *stallQueue) PollCompleted() uint64 { return q.completed }

func (q *stallQueue) WriteTexture(dst *hal.ImageCopyTexture, data []byte, layout *hal.ImageDataLayout, size *hal.Extent3D) error {
	if q.writeErr != nil {
		return q.writeErr
	}
	return q.Queue.WriteTexture(dst, data, layout, size)
}

func newGPUProvider(t *testing.T, opts ...GPUOption) (*Provider, *GPUBackend) {
	t.Helper()
	device, queue := createNoopDevice(t)
	backend, err := NewGPUBackend(device, queue, opts...)
	if err != nil {
		t.Fatalf("NewGPUBackend: %v", err)
	}
	p := NewProvider(backend)
	t.Cleanup(p.Close)
	return p, backend
}

func TestGPUBackend_AllocatesTextureLazily(t *testing.T) {
	p, _ := newGPUProvider(t)

	r, err := p.CreateResource(tiles.Sz(256, 256), gputypes.TextureFormatRGBA8Unorm)
	if err != nil {
		t.Fatalf("CreateResource: %v", err)
	}
	if r.Kind() != KindGPUTexture {
		t.Errorf("Kind() = %v, want gpu-texture", r.Kind())
	}
	if r.texture != nil {
		t.Error("texture created before first use")
	}

	lock, err := p.LockForWrite(r)
	if err != nil {
		t.Fatalf("LockForWrite: %v", err)
	}
	if r.texture == nil {
		t.Fatal("expected texture after LockForWrite")
	}
	if lock.Pixels() == nil {
		t.Fatal("expected CPU shadow pixels")
	}
	if err := lock.Unlock(); err != nil {
		t.Fatalf("Unlock (upload): %v", err)
	}
	if r.submission == 0 {
		t.Error("upload did not record a submission index")
	}
}

func TestGPUBackend_SupportsBGRA(t *testing.T) {
	p, _ := newGPUProvider(t)

	r, err := p.CreateResource(tiles.Sz(16, 16), gputypes.TextureFormatBGRA8Unorm)
	if err != nil {
		t.Fatalf("CreateResource(BGRA): %v", err)
	}
	lock, err := p.LockForWrite(r)
	if err != nil {
		t.Fatal(err)
	}
	lock.Pixels().Pix[0] = 9
	if err := lock.Unlock(); err != nil {
		t.Fatalf("Unlock: %v", err)
	}
	// The shadow keeps RGBA order; only the uploaded copy is swizzled.
	if lock.Pixels().Pix[0] != 9 {
		t.Error("upload swizzled the CPU shadow in place")
	}
}

func TestGPUBackend_RejectsUnsupportedFormat(t *testing.T) {
	p, _ := newGPUProvider(t)
	_, err := p.CreateResource(tiles.Sz(16, 16), gputypes.TextureFormatDepth24PlusStencil8)
	if !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("CreateResource error = %v, want ErrUnsupportedFormat", err)
	}
}

func TestGPUBackend_MaxTextureSize(t *testing.T) {
	p, _ := newGPUProvider(t, WithGPUMaxTextureSize(128))
	if _, err := p.CreateResource(tiles.Sz(129, 1), gputypes.TextureFormatRGBA8Unorm); !errors.Is(err, ErrInvalidSize) {
		t.Errorf("CreateResource error = %v, want ErrInvalidSize", err)
	}
}

func TestGPUBackend_ReleaseOnDelete(t *testing.T) {
	p, _ := newGPUProvider(t)
	r, _ := p.CreateResource(tiles.Sz(32, 32), gputypes.TextureFormatRGBA8Unorm)
	if err := p.EnsureAllocated(r); err != nil {
		t.Fatal(err)
	}
	p.DeleteResource(r)
	if r.texture != nil {
		t.Error("texture not destroyed on delete")
	}
	if p.AllocatedBytes() != 0 {
		t.Errorf("AllocatedBytes() = %d, want 0", p.AllocatedBytes())
	}
}

func TestGPUBackend_NotPendingWithoutUpload(t *testing.T) {
	p, _ := newGPUProvider(t)
	r, _ := p.CreateResource(tiles.Sz(8, 8), gputypes.TextureFormatRGBA8Unorm)
	_ = p.EnsureAllocated(r)
	if p.InUseByConsumer(r) {
		t.Error("resource without uploads reported pending")
	}
}

func TestGPUBackend_PendingUntilSubmissionCompletes(t *testing.T) {
	device, queue := createNoopDevice(t)
	q := &stallQueue{Queue: queue}
	backend, err := NewGPUBackend(device, q)
	if err != nil {
		t.Fatal(err)
	}
	p := NewProvider(backend)
	t.Cleanup(p.Close)

	r, _ := p.CreateResource(tiles.Sz(8, 8), gputypes.TextureFormatRGBA8Unorm)
	lock, err := p.LockForWrite(r)
	if err != nil {
		t.Fatal(err)
	}
	if err := lock.Unlock(); err != nil {
		t.Fatalf("Unlock: %v", err)
	}
	if !p.InUseByConsumer(r) {
		t.Error("resource not pending while its upload is in flight")
	}

	q.completed = r.submission
	if p.InUseByConsumer(r) {
		t.Error("resource still pending after its submission completed")
	}
}

func TestGPUBackend_WriteTextureError(t *testing.T) {
	device, queue := createNoopDevice(t)
	errWrite := errors.New("staging buffer exhausted")
	backend, err := NewGPUBackend(device, &stallQueue{Queue: queue, writeErr: errWrite})
	if err != nil {
		t.Fatal(err)
	}
	p := NewProvider(backend)
	t.Cleanup(p.Close)

	r, _ := p.CreateResource(tiles.Sz(8, 8), gputypes.TextureFormatRGBA8Unorm)
	lock, err := p.LockForWrite(r)
	if err != nil {
		t.Fatal(err)
	}
	if err := lock.Unlock(); !errors.Is(err, errWrite) {
		t.Errorf("Unlock error = %v, want %v", err, errWrite)
	}
	if r.submission != 0 {
		t.Error("failed upload was submitted")
	}
}

func TestGPUBackend_NilQueue(t *testing.T) {
	device, _ := createNoopDevice(t)
	if _, err := NewGPUBackend(device, nil); err == nil {
		t.Error("NewGPUBackend(device, nil) succeeded")
	}
}

func TestGPUBackend_DeviceProvider(t *testing.T) {
	dev := &mockDevice{}
	prov := &mockProvider{device: dev, format: gputypes.TextureFormatBGRA8Unorm}
	p, backend := newGPUProvider(t, WithDeviceProvider(prov))

	if got := backend.PreferredFormat(); got != gputypes.TextureFormatBGRA8Unorm {
		t.Errorf("PreferredFormat() = %v, want BGRA8Unorm", got)
	}
	p.Poll()
	p.Poll()
	if dev.polls != 2 {
		t.Errorf("device polled %d times, want 2", dev.polls)
	}

	prov.format = gputypes.TextureFormatDepth24PlusStencil8
	if got := backend.PreferredFormat(); got != gputypes.TextureFormatRGBA8Unorm {
		t.Errorf("PreferredFormat() with unsupported surface = %v, want RGBA8Unorm", got)
	}
}

func TestGPUBackend_WithoutProvider(t *testing.T) {
	_, backend := newGPUProvider(t)
	if got := backend.PreferredFormat(); got != gputypes.TextureFormatRGBA8Unorm {
		t.Errorf("PreferredFormat() = %v, want RGBA8Unorm", got)
	}
}
