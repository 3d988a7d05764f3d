package resource

import (
	"fmt"
	"image"
	"sync"

	"golang.org/x/image/draw"

	"github.com/gogpu/tiles"
)

// Provider creates resources on a Backend and tracks their lock, allocation
// and loss state.
//
// Storage is allocated lazily: CreateResource only validates and registers,
// the backend allocates on the first LockForWrite or EnsureAllocated.
//
// Thread safety: Provider is safe for concurrent use. Pixels handed out by
// a WriteLock may be written by one goroutine while the lock is held.
type Provider struct {
	mu sync.Mutex

	backend        Backend
	maxTextureSize int
	memoryLimit    int

	nextID         ID
	resources      map[ID]*Resource
	allocatedBytes int
}

// ProviderOption configures a Provider.
type ProviderOption func(*Provider)

// WithMaxTextureSize caps resource width and height below the backend limit.
func WithMaxTextureSize(n int) ProviderOption {
	return func(p *Provider) {
		if n > 0 && n < p.maxTextureSize {
			p.maxTextureSize = n
		}
	}
}

// WithMemoryLimit makes allocations fail with ErrAllocationFailed once the
// allocated bytes would exceed limit. Zero means unlimited.
func WithMemoryLimit(limit int) ProviderOption {
	return func(p *Provider) {
		p.memoryLimit = limit
	}
}

// NewProvider creates a provider on backend.
func NewProvider(backend Backend, opts ...ProviderOption) *Provider {
	p := &Provider{
		backend:        backend,
		maxTextureSize: backend.MaxTextureSize(),
		resources:      make(map[ID]*Resource),
	}
	if p.maxTextureSize <= 0 {
		p.maxTextureSize = DefaultMaxTextureSize
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Kind returns the storage kind of the backend.
func (p *Provider) Kind() Kind {
	return p.backend.Kind()
}

// MaxTextureSize returns the largest accepted width or height.
func (p *Provider) MaxTextureSize() int {
	return p.maxTextureSize
}

// CreateResource registers a new resource of the given size and format.
// No backend storage is allocated yet.
func (p *Provider) CreateResource(size tiles.Size, format Format) (*Resource, error) {
	if size.Empty() || size.Width > p.maxTextureSize || size.Height > p.maxTextureSize {
		return nil, fmt.Errorf("%w: %v (max %d)", ErrInvalidSize, size, p.maxTextureSize)
	}
	if !p.backend.SupportsFormat(format) {
		return nil, fmt.Errorf("%w: %v on %v backend", ErrUnsupportedFormat, format, p.backend.Kind())
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.nextID++
	r := &Resource{
		id:     p.nextID,
		size:   size,
		format: format,
		kind:   p.backend.Kind(),
		bytes:  BytesForSize(size, format),
	}
	p.resources[r.id] = r
	return r, nil
}

// EnsureAllocated allocates backend storage for r if it has none.
func (p *Provider) EnsureAllocated(r *Resource) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.allocateLocked(r)
}

func (p *Provider) allocateLocked(r *Resource) error {
	if r.deleted {
		return ErrDeleted
	}
	if r.lost {
		return ErrResourceLost
	}
	if r.allocated {
		return nil
	}
	if p.memoryLimit > 0 && p.allocatedBytes+r.bytes > p.memoryLimit {
		return fmt.Errorf("%w: %v would exceed memory limit %d", ErrAllocationFailed, r, p.memoryLimit)
	}
	if err := p.backend.allocate(r); err != nil {
		tiles.Logger().Warn("resource: backend allocation failed", "resource", r.id, "err", err)
		return fmt.Errorf("%w: %v: %w", ErrAllocationFailed, r, err)
	}
	r.allocated = true
	p.allocatedBytes += r.bytes
	return nil
}

// Allocated reports whether backend storage exists for r.
func (p *Provider) Allocated(r *Resource) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return r.allocated
}

// DeleteResource destroys r. If r is still locked, storage is released
// when the last lock is dropped. Deleting twice is a no-op.
func (p *Provider) DeleteResource(r *Resource) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if r.deleted {
		return
	}
	r.deleted = true
	delete(p.resources, r.id)
	p.maybeReleaseLocked(r)
}

func (p *Provider) maybeReleaseLocked(r *Resource) {
	if !r.deleted || r.writeLocked || r.readLocks > 0 || !r.allocated {
		return
	}
	p.backend.release(r)
	r.allocated = false
	p.allocatedBytes -= r.bytes
}

// LockForWrite takes the exclusive write lock on r, allocating storage on
// first use. It fails with ErrLocked if any lock is held and with
// ErrResourceLost if r was lost.
func (p *Provider) LockForWrite(r *Resource) (*WriteLock, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if r.writeLocked || r.readLocks > 0 {
		return nil, fmt.Errorf("%w: %v", ErrLocked, r)
	}
	if err := p.allocateLocked(r); err != nil {
		return nil, err
	}
	r.writeLocked = true
	return &WriteLock{p: p, r: r}, nil
}

// LockForRead adds a consumer read lock to r. While read-locked, r is in
// use by its consumer and cannot be written.
func (p *Provider) LockForRead(r *Resource) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if r.deleted {
		return ErrDeleted
	}
	if r.writeLocked {
		return fmt.Errorf("%w: %v", ErrLocked, r)
	}
	r.readLocks++
	return nil
}

// UnlockForRead drops one read lock from r.
func (p *Provider) UnlockForRead(r *Resource) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if r.readLocks == 0 {
		panic(fmt.Sprintf("resource: UnlockForRead of %v without a read lock", r))
	}
	r.readLocks--
	p.maybeReleaseLocked(r)
}

// InUseByConsumer reports whether r is read-locked or the backend still has
// pending work reading it.
func (p *Provider) InUseByConsumer(r *Resource) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return r.readLocks > 0 || (r.allocated && p.backend.pending(r))
}

// IsLost reports whether r was lost.
func (p *Provider) IsLost(r *Resource) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return r.lost
}

// LoseResource marks r lost, as a backend does on device loss.
func (p *Provider) LoseResource(r *Resource) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !r.lost {
		r.lost = true
		tiles.Logger().Warn("resource: lost", "resource", r.id)
	}
}

// DidLoseContext marks every live resource lost.
func (p *Provider) DidLoseContext() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, r := range p.resources {
		r.lost = true
	}
	tiles.Logger().Warn("resource: context lost", "resources", len(p.resources))
}

// Poll lets the backend retire completed work.
func (p *Provider) Poll() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.backend.poll()
}

// ResourceCount returns the number of live resources.
func (p *Provider) ResourceCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.resources)
}

// AllocatedBytes returns the bytes of backend storage currently allocated.
func (p *Provider) AllocatedBytes() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.allocatedBytes
}

// Close releases storage of every resource and the backend itself.
// The provider must not be used afterwards.
func (p *Provider) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for id, r := range p.resources {
		if r.allocated {
			p.backend.release(r)
			r.allocated = false
		}
		r.deleted = true
		delete(p.resources, id)
	}
	p.allocatedBytes = 0
	p.backend.destroy()
}

// WriteLock is an exclusive write lock on a resource.
type WriteLock struct {
	p        *Provider
	r        *Resource
	unlocked bool
}

// Resource returns the locked resource.
func (l *WriteLock) Resource() *Resource { return l.r }

// Pixels returns the CPU-visible storage of the resource. It stays valid
// until Unlock.
func (l *WriteLock) Pixels() *image.RGBA { return l.r.pixels }

// Unlock commits the pixels to the backend and releases the lock.
// It returns ErrResourceLost if the resource was lost while locked; the
// lock is released either way.
func (l *WriteLock) Unlock() error {
	return l.unlock(nil)
}

// UnlockWithPixels copies the part of src inside the resource bounds into
// the resource pixels, then commits as Unlock does.
func (l *WriteLock) UnlockWithPixels(src *image.RGBA) error {
	return l.unlock(src)
}

func (l *WriteLock) unlock(src *image.RGBA) error {
	p := l.p
	p.mu.Lock()
	defer p.mu.Unlock()

	if l.unlocked {
		return nil
	}
	l.unlocked = true
	r := l.r
	r.writeLocked = false
	defer p.maybeReleaseLocked(r)

	if r.lost {
		return fmt.Errorf("%w: %v", ErrResourceLost, r)
	}
	if r.deleted {
		return fmt.Errorf("%w: %v", ErrDeleted, r)
	}
	if src != nil && r.pixels != nil {
		b := src.Bounds().Intersect(r.pixels.Bounds())
		draw.Copy(r.pixels, b.Min, src, b, draw.Src, nil)
	}
	return p.backend.upload(r)
}
