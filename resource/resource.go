package resource

import (
	"fmt"
	"image"

	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/tiles"
)

// ID identifies a resource within its Provider. Zero is never assigned.
type ID uint64

// Kind is the backend storage kind of a resource.
type Kind uint8

const (
	// KindBitmap is a shared-memory bitmap.
	KindBitmap Kind = iota
	// KindGPUTexture is a GPU texture.
	KindGPUTexture
)

func (k Kind) String() string {
	switch k {
	case KindBitmap:
		return "bitmap"
	case KindGPUTexture:
		return "gpu-texture"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// Resource is an opaque handle to a fixed-size, fixed-format backend
// buffer. Resources are created and destroyed by a Provider; callers never
// free them.
//
// Identity fields are immutable. Lock and allocation state is guarded by
// the owning Provider's mutex.
type Resource struct {
	id     ID
	size   tiles.Size
	format Format
	kind   Kind
	bytes  int

	allocated   bool
	lost        bool
	deleted     bool
	writeLocked bool
	readLocks   int

	// pixels is the CPU-visible storage: the bitmap itself, or the shadow
	// copy that GPU uploads read from.
	pixels *image.RGBA

	// texture and submission are set by the GPU backend. submission is
	// the queue submission index of the last upload.
	texture    hal.Texture
	submission uint64
}

// ID returns the resource id.
func (r *Resource) ID() ID { return r.id }

// Size returns the resource dimensions.
func (r *Resource) Size() tiles.Size { return r.size }

// Format returns the pixel format.
func (r *Resource) Format() Format { return r.format }

// Kind returns the backend storage kind.
func (r *Resource) Kind() Kind { return r.kind }

// Bytes returns the storage size used for memory accounting.
func (r *Resource) Bytes() int { return r.bytes }

func (r *Resource) String() string {
	return fmt.Sprintf("resource#%d(%v %v %v)", r.id, r.size, r.format, r.kind)
}
