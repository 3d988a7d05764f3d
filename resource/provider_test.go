package resource

import (
	"errors"
	"image"
	"image/color"
	"testing"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/tiles"
)

const rgba = gputypes.TextureFormatRGBA8Unorm

func newBitmapProvider(t *testing.T, opts ...ProviderOption) *Provider {
	t.Helper()
	p := NewProvider(NewBitmapBackend(), opts...)
	t.Cleanup(p.Close)
	return p
}

// =============================================================================
// Format
// =============================================================================

func TestBytesForSize(t *testing.T) {
	tests := []struct {
		name   string
		size   tiles.Size
		format Format
		want   int
	}{
		{"rgba tile", tiles.Sz(256, 256), gputypes.TextureFormatRGBA8Unorm, 256 * 256 * 4},
		{"bgra edge", tiles.Sz(10, 3), gputypes.TextureFormatBGRA8Unorm, 120},
		{"empty", tiles.Sz(0, 3), gputypes.TextureFormatRGBA8Unorm, 0},
		{"unsupported", tiles.Sz(4, 4), gputypes.TextureFormatDepth24PlusStencil8, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := BytesForSize(tt.size, tt.format); got != tt.want {
				t.Errorf("BytesForSize() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestSwizzleRB(t *testing.T) {
	pix := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	swizzleRB(pix)
	want := []byte{3, 2, 1, 4, 7, 6, 5, 8}
	for i := range pix {
		if pix[i] != want[i] {
			t.Fatalf("swizzleRB = %v, want %v", pix, want)
		}
	}
}

// =============================================================================
// Provider
// =============================================================================

func TestProvider_CreateIsLazy(t *testing.T) {
	p := newBitmapProvider(t)

	r, err := p.CreateResource(tiles.Sz(64, 64), rgba)
	if err != nil {
		t.Fatalf("CreateResource: %v", err)
	}
	if r.ID() == 0 {
		t.Error("resource id must be non-zero")
	}
	if r.Kind() != KindBitmap {
		t.Errorf("Kind() = %v, want bitmap", r.Kind())
	}
	if r.Bytes() != 64*64*4 {
		t.Errorf("Bytes() = %d, want %d", r.Bytes(), 64*64*4)
	}
	if p.Allocated(r) {
		t.Error("resource allocated before first use")
	}
	if p.AllocatedBytes() != 0 {
		t.Errorf("AllocatedBytes() = %d, want 0", p.AllocatedBytes())
	}

	lock, err := p.LockForWrite(r)
	if err != nil {
		t.Fatalf("LockForWrite: %v", err)
	}
	if !p.Allocated(r) {
		t.Error("LockForWrite did not allocate")
	}
	if px := lock.Pixels(); px == nil || px.Bounds().Dx() != 64 {
		t.Fatalf("Pixels() = %v", px)
	}
	if err := lock.Unlock(); err != nil {
		t.Errorf("Unlock: %v", err)
	}
	if p.AllocatedBytes() != r.Bytes() {
		t.Errorf("AllocatedBytes() = %d, want %d", p.AllocatedBytes(), r.Bytes())
	}
}

func TestProvider_UniqueIDs(t *testing.T) {
	p := newBitmapProvider(t)
	seen := make(map[ID]bool)
	for range 20 {
		r, err := p.CreateResource(tiles.Sz(8, 8), rgba)
		if err != nil {
			t.Fatal(err)
		}
		if seen[r.ID()] {
			t.Fatalf("duplicate id %d", r.ID())
		}
		seen[r.ID()] = true
	}
	if p.ResourceCount() != 20 {
		t.Errorf("ResourceCount() = %d, want 20", p.ResourceCount())
	}
}

func TestProvider_CreateErrors(t *testing.T) {
	p := newBitmapProvider(t, WithMaxTextureSize(512))

	tests := []struct {
		name   string
		size   tiles.Size
		format Format
		want   error
	}{
		{"empty", tiles.Sz(0, 10), rgba, ErrInvalidSize},
		{"negative", tiles.Sz(10, -1), rgba, ErrInvalidSize},
		{"too wide", tiles.Sz(513, 10), rgba, ErrInvalidSize},
		{"bgra on bitmap", tiles.Sz(10, 10), gputypes.TextureFormatBGRA8Unorm, ErrUnsupportedFormat},
		{"depth", tiles.Sz(10, 10), gputypes.TextureFormatDepth24PlusStencil8, ErrUnsupportedFormat},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := p.CreateResource(tt.size, tt.format)
			if !errors.Is(err, tt.want) {
				t.Errorf("CreateResource() error = %v, want %v", err, tt.want)
			}
		})
	}
	if p.ResourceCount() != 0 {
		t.Errorf("failed creates registered %d resources", p.ResourceCount())
	}
}

func TestProvider_MemoryLimit(t *testing.T) {
	p := newBitmapProvider(t, WithMemoryLimit(100*100*4))

	a, _ := p.CreateResource(tiles.Sz(100, 100), rgba)
	b, _ := p.CreateResource(tiles.Sz(1, 1), rgba)

	if err := p.EnsureAllocated(a); err != nil {
		t.Fatalf("EnsureAllocated(a): %v", err)
	}
	if err := p.EnsureAllocated(b); !errors.Is(err, ErrAllocationFailed) {
		t.Errorf("EnsureAllocated(b) error = %v, want ErrAllocationFailed", err)
	}

	p.DeleteResource(a)
	if err := p.EnsureAllocated(b); err != nil {
		t.Errorf("EnsureAllocated(b) after delete: %v", err)
	}
}

func TestProvider_LockConflicts(t *testing.T) {
	p := newBitmapProvider(t)
	r, _ := p.CreateResource(tiles.Sz(4, 4), rgba)

	lock, err := p.LockForWrite(r)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := p.LockForWrite(r); !errors.Is(err, ErrLocked) {
		t.Errorf("second LockForWrite error = %v, want ErrLocked", err)
	}
	if err := p.LockForRead(r); !errors.Is(err, ErrLocked) {
		t.Errorf("LockForRead while write-locked error = %v, want ErrLocked", err)
	}
	_ = lock.Unlock()

	if err := p.LockForRead(r); err != nil {
		t.Fatal(err)
	}
	if _, err := p.LockForWrite(r); !errors.Is(err, ErrLocked) {
		t.Errorf("LockForWrite while read-locked error = %v, want ErrLocked", err)
	}
	p.UnlockForRead(r)
}

func TestProvider_InUseByConsumer(t *testing.T) {
	p := newBitmapProvider(t)
	r, _ := p.CreateResource(tiles.Sz(4, 4), rgba)

	if p.InUseByConsumer(r) {
		t.Error("fresh resource reported in use")
	}
	_ = p.LockForRead(r)
	_ = p.LockForRead(r)
	p.UnlockForRead(r)
	if !p.InUseByConsumer(r) {
		t.Error("resource with one read lock must be in use")
	}
	p.UnlockForRead(r)
	if p.InUseByConsumer(r) {
		t.Error("resource without read locks reported in use")
	}
}

func TestProvider_UnlockForReadWithoutLockPanics(t *testing.T) {
	p := newBitmapProvider(t)
	r, _ := p.CreateResource(tiles.Sz(4, 4), rgba)
	defer func() {
		if recover() == nil {
			t.Error("expected panic")
		}
	}()
	p.UnlockForRead(r)
}

func TestProvider_DeleteWhileReadLockedDefersRelease(t *testing.T) {
	p := newBitmapProvider(t)
	r, _ := p.CreateResource(tiles.Sz(8, 8), rgba)
	_ = p.EnsureAllocated(r)
	_ = p.LockForRead(r)

	p.DeleteResource(r)
	if p.ResourceCount() != 0 {
		t.Errorf("ResourceCount() = %d, want 0", p.ResourceCount())
	}
	if p.AllocatedBytes() != r.Bytes() {
		t.Errorf("storage released while read-locked")
	}
	p.UnlockForRead(r)
	if p.AllocatedBytes() != 0 {
		t.Errorf("AllocatedBytes() = %d after last unlock, want 0", p.AllocatedBytes())
	}
	p.DeleteResource(r) // no-op
}

func TestProvider_Lost(t *testing.T) {
	p := newBitmapProvider(t)
	a, _ := p.CreateResource(tiles.Sz(4, 4), rgba)
	b, _ := p.CreateResource(tiles.Sz(4, 4), rgba)

	lock, err := p.LockForWrite(a)
	if err != nil {
		t.Fatal(err)
	}
	p.LoseResource(a)
	if !p.IsLost(a) {
		t.Error("IsLost(a) = false after LoseResource")
	}
	if err := lock.Unlock(); !errors.Is(err, ErrResourceLost) {
		t.Errorf("Unlock of lost resource error = %v, want ErrResourceLost", err)
	}
	if _, err := p.LockForWrite(a); !errors.Is(err, ErrResourceLost) {
		t.Errorf("LockForWrite of lost resource error = %v, want ErrResourceLost", err)
	}

	p.DidLoseContext()
	if !p.IsLost(b) {
		t.Error("DidLoseContext did not lose b")
	}
}

func TestWriteLock_UnlockWithPixels(t *testing.T) {
	p := newBitmapProvider(t)
	r, _ := p.CreateResource(tiles.Sz(4, 4), rgba)
	lock, _ := p.LockForWrite(r)

	staging := newSolid(tiles.Sz(4, 4), color.RGBA{R: 200, A: 255})
	if err := lock.UnlockWithPixels(staging); err != nil {
		t.Fatalf("UnlockWithPixels: %v", err)
	}
	if got := lock.Pixels().RGBAAt(3, 3); got.R != 200 {
		t.Errorf("pixel after UnlockWithPixels = %v, want R=200", got)
	}
	if err := lock.Unlock(); err != nil {
		t.Errorf("double unlock should be a no-op, got %v", err)
	}
}

func newSolid(size tiles.Size, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(size.Rect())
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = c.R, c.G, c.B, c.A
	}
	return img
}
