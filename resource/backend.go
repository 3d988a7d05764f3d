package resource

// DefaultMaxTextureSize is the largest width or height accepted when the
// backend does not report its own limit.
const DefaultMaxTextureSize = 16384

// Backend allocates and commits resource storage.
//
// The set of backends is closed: BitmapBackend for software compositing
// and GPUBackend for wgpu textures. A Provider calls every method with its
// mutex held, so implementations need no locking of their own for
// per-resource state.
type Backend interface {
	// Kind reports the storage kind of resources this backend creates.
	Kind() Kind

	// MaxTextureSize returns the largest supported width or height.
	MaxTextureSize() int

	// SupportsFormat reports whether resources of format f can be created.
	SupportsFormat(f Format) bool

	// allocate creates storage for r, including r.pixels.
	allocate(r *Resource) error

	// upload commits r.pixels to backend storage.
	upload(r *Resource) error

	// pending reports whether the backend still has work reading r.
	pending(r *Resource) bool

	// poll lets the backend retire completed work.
	poll()

	// release frees storage for r.
	release(r *Resource)

	// destroy frees backend-wide objects.
	destroy()
}
