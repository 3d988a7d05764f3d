// Package pool recycles equally sized and formatted resources.
//
// A resource moves through four states:
//
//	in-use  --ReleaseResource-->      busy
//	busy    --CheckBusyResources-->   unused   (consumer done reading)
//	unused  --AcquireResource-->      in-use   (exact size+format match)
//	unused  --expiry / limits-->      evicted  (terminal)
//
// Lost resources are evicted as soon as the pool touches them.
package pool

import (
	"fmt"
	"time"

	"github.com/gogpu/tiles"
	"github.com/gogpu/tiles/origin"
	"github.com/gogpu/tiles/resource"
)

type state uint8

const (
	stateInUse state = iota
	stateBusy
	stateUnused
	stateEvicted
)

func (s state) String() string {
	switch s {
	case stateInUse:
		return "in-use"
	case stateBusy:
		return "busy"
	case stateUnused:
		return "unused"
	default:
		return "evicted"
	}
}

// entry is the pool's bookkeeping for one resource.
type entry struct {
	res       *resource.Resource
	state     state
	contentID uint64

	// lastUsage is when the entry became unused.
	lastUsage time.Time

	// prev and next link unused entries.
	prev, next *entry
}

// ResourcePool owns resources created on a Provider and hands them out for
// raster work.
//
// Thread safety: ResourcePool is NOT thread-safe. Every method must run on
// the origin thread that the pool's TaskRunner represents; the expiration
// timer is posted to that runner.
type ResourcePool struct {
	provider *resource.Provider
	runner   origin.TaskRunner

	maxMemoryBytes   int
	maxResourceCount int
	expirationDelay  time.Duration

	entries map[resource.ID]*entry
	busy    []*entry
	unused  unusedList
	inUse   int

	totalBytes  int
	busyBytes   int
	unusedBytes int

	// evictionSeq identifies the live timer post; older posts are no-ops.
	evictionPending bool
	evictionDue     time.Time
	evictionSeq     uint64
	shutdown        bool
}

// New creates a pool allocating on provider. The expiration timer runs on
// runner, which must be the origin thread's TaskRunner.
func New(provider *resource.Provider, runner origin.TaskRunner, opts ...Option) *ResourcePool {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &ResourcePool{
		provider:         provider,
		runner:           runner,
		maxMemoryBytes:   o.maxMemoryBytes,
		maxResourceCount: o.maxResourceCount,
		expirationDelay:  o.expirationDelay,
		entries:          make(map[resource.ID]*entry),
	}
}

// AcquireResource returns an unused resource of exactly size and format, or
// creates and allocates one. Creation and allocation errors from the
// provider are returned wrapped; a resource that fails to allocate is not
// kept.
func (p *ResourcePool) AcquireResource(size tiles.Size, format resource.Format) (*resource.Resource, error) {
	if p.shutdown {
		panic("pool: AcquireResource after Shutdown")
	}

	for e := p.unused.Front(); e != nil; {
		next := e.next
		if p.provider.IsLost(e.res) {
			p.removeUnused(e)
			p.evict(e)
		} else if e.res.Size() == size && e.res.Format() == format {
			p.removeUnused(e)
			p.markInUse(e)
			return e.res, nil
		}
		e = next
	}

	r, err := p.provider.CreateResource(size, format)
	if err != nil {
		return nil, fmt.Errorf("pool: acquire %v: %w", size, err)
	}
	if err := p.provider.EnsureAllocated(r); err != nil {
		p.provider.DeleteResource(r)
		return nil, fmt.Errorf("pool: acquire %v: %w", size, err)
	}
	e := &entry{res: r}
	p.entries[r.ID()] = e
	p.totalBytes += r.Bytes()
	p.markInUse(e)
	return r, nil
}

// TryAcquireResourceWithContentID returns the unused resource that was last
// released with contentID, or nil. Zero never matches. The caller decides
// whether the old pixels are still valid for its content.
func (p *ResourcePool) TryAcquireResourceWithContentID(contentID uint64) *resource.Resource {
	if contentID == 0 || p.shutdown {
		return nil
	}
	for e := p.unused.Front(); e != nil; e = e.next {
		if e.contentID != contentID {
			continue
		}
		p.removeUnused(e)
		if p.provider.IsLost(e.res) {
			p.evict(e)
			return nil
		}
		p.markInUse(e)
		return e.res
	}
	return nil
}

// ReleaseResource returns an in-use resource to the pool. It becomes busy
// until CheckBusyResources sees its consumer is done. contentID is kept
// opaque for TryAcquireResourceWithContentID. Lost resources are evicted
// immediately.
//
// Releasing a resource that is not in use panics.
func (p *ResourcePool) ReleaseResource(r *resource.Resource, contentID uint64) {
	e, ok := p.entries[r.ID()]
	if !ok {
		if p.shutdown {
			p.provider.DeleteResource(r)
			return
		}
		panic(fmt.Sprintf("pool: ReleaseResource of unknown %v", r))
	}
	if e.state != stateInUse {
		panic(fmt.Sprintf("pool: ReleaseResource of %v in state %v", r, e.state))
	}

	p.inUse--
	e.contentID = contentID
	if p.provider.IsLost(r) {
		p.evict(e)
		return
	}
	e.state = stateBusy
	p.busy = append(p.busy, e)
	p.busyBytes += r.Bytes()
}

// CheckBusyResources moves busy resources whose consumer has finished to
// the unused bucket and evicts lost ones. It never blocks.
func (p *ResourcePool) CheckBusyResources() {
	p.provider.Poll()

	kept := p.busy[:0]
	for _, e := range p.busy {
		switch {
		case p.provider.IsLost(e.res):
			p.busyBytes -= e.res.Bytes()
			p.evict(e)
		case p.provider.InUseByConsumer(e.res):
			kept = append(kept, e)
		default:
			p.busyBytes -= e.res.Bytes()
			p.didFinishUsing(e)
		}
	}
	clear(p.busy[len(kept):])
	p.busy = kept
}

// SetResourceUsageLimits sets the byte and count caps. Nothing is evicted
// until the next ReduceResourceUsage.
func (p *ResourcePool) SetResourceUsageLimits(maxBytes, maxCount int) {
	p.maxMemoryBytes = maxBytes
	p.maxResourceCount = maxCount
}

// ReduceResourceUsage evicts unused resources, oldest first, until total
// usage is within the limits or no unused resources remain.
func (p *ResourcePool) ReduceResourceUsage() {
	for p.resourceUsageTooHigh() {
		e := p.unused.Oldest()
		if e == nil {
			return
		}
		p.removeUnused(e)
		p.evict(e)
	}
}

// OnMemoryPressure evicts every unused resource.
func (p *ResourcePool) OnMemoryPressure() {
	for e := p.unused.Oldest(); e != nil; e = p.unused.Oldest() {
		p.removeUnused(e)
		p.evict(e)
	}
}

// SetResourceExpirationDelayForTesting changes the expiration delay. A
// pending timer is moved earlier when the new delay expires the oldest
// unused resource sooner.
func (p *ResourcePool) SetResourceExpirationDelayForTesting(d time.Duration) {
	p.expirationDelay = d
	if oldest := p.unused.Oldest(); oldest != nil {
		due := oldest.lastUsage.Add(d).Sub(p.runner.Now())
		p.scheduleEvictExpiredResourcesIn(max(due, 0))
	}
}

// Shutdown evicts every busy and unused resource and stops the expiration
// timer. In-use resources are forgotten; releasing one later deletes it.
func (p *ResourcePool) Shutdown() {
	if p.shutdown {
		return
	}
	p.OnMemoryPressure()
	for _, e := range p.busy {
		p.evict(e)
	}
	p.busy = nil
	p.busyBytes = 0
	for id, e := range p.entries {
		delete(p.entries, id)
		p.totalBytes -= e.res.Bytes()
	}
	p.inUse = 0
	p.shutdown = true
	tiles.Logger().Info("pool: shut down")
}

func (p *ResourcePool) markInUse(e *entry) {
	e.state = stateInUse
	p.inUse++
}

func (p *ResourcePool) removeUnused(e *entry) {
	p.unused.Remove(e)
	p.unusedBytes -= e.res.Bytes()
}

func (p *ResourcePool) didFinishUsing(e *entry) {
	e.state = stateUnused
	e.lastUsage = p.runner.Now()
	p.unused.PushFront(e)
	p.unusedBytes += e.res.Bytes()
	p.scheduleEvictExpiredResourcesIn(p.expirationDelay)
}

// evict destroys e. The caller has already unlinked it from its bucket.
func (p *ResourcePool) evict(e *entry) {
	delete(p.entries, e.res.ID())
	p.totalBytes -= e.res.Bytes()
	e.state = stateEvicted
	p.provider.DeleteResource(e.res)
	tiles.Logger().Debug("pool: evicted", "resource", e.res.ID(), "bytes", e.res.Bytes(),
		"total_bytes", p.totalBytes, "total_count", len(p.entries))
}

func (p *ResourcePool) resourceUsageTooHigh() bool {
	return p.totalBytes > p.maxMemoryBytes || len(p.entries) > p.maxResourceCount
}

// scheduleEvictExpiredResourcesIn arms the expiration timer unless one is
// already pending at or before delay from now.
func (p *ResourcePool) scheduleEvictExpiredResourcesIn(delay time.Duration) {
	if p.shutdown {
		return
	}
	due := p.runner.Now().Add(delay)
	if p.evictionPending && !due.Before(p.evictionDue) {
		return
	}
	p.evictionPending = true
	p.evictionDue = due
	p.evictionSeq++
	seq := p.evictionSeq
	p.runner.PostDelayedTask(func() { p.evictExpiredResources(seq) }, delay)
}

// evictExpiredResources is the timer tick. It re-arms only while unused
// resources remain.
func (p *ResourcePool) evictExpiredResources(seq uint64) {
	if seq != p.evictionSeq {
		return
	}
	p.evictionPending = false
	if p.shutdown {
		return
	}
	now := p.runner.Now()
	p.evictResourcesNotUsedSince(now.Add(-p.expirationDelay))

	if oldest := p.unused.Oldest(); oldest != nil {
		p.scheduleEvictExpiredResourcesIn(oldest.lastUsage.Add(p.expirationDelay).Sub(now))
	}
}

func (p *ResourcePool) evictResourcesNotUsedSince(t time.Time) {
	for e := p.unused.Oldest(); e != nil && !e.lastUsage.After(t); e = p.unused.Oldest() {
		p.removeUnused(e)
		p.evict(e)
	}
}

// GetTotalMemoryUsageForTesting returns the bytes of all managed resources.
func (p *ResourcePool) GetTotalMemoryUsageForTesting() int { return p.totalBytes }

// GetTotalResourceCountForTesting returns the number of managed resources.
func (p *ResourcePool) GetTotalResourceCountForTesting() int { return len(p.entries) }

// GetBusyResourceCountForTesting returns the number of busy resources.
func (p *ResourcePool) GetBusyResourceCountForTesting() int { return len(p.busy) }

// GetBusyMemoryUsageForTesting returns the bytes of busy resources.
func (p *ResourcePool) GetBusyMemoryUsageForTesting() int { return p.busyBytes }

// GetUnusedResourceCountForTesting returns the number of unused resources.
func (p *ResourcePool) GetUnusedResourceCountForTesting() int { return p.unused.Len() }

// GetUnusedMemoryUsageForTesting returns the bytes of unused resources.
func (p *ResourcePool) GetUnusedMemoryUsageForTesting() int { return p.unusedBytes }

// GetInUseResourceCountForTesting returns the number of lent-out resources.
func (p *ResourcePool) GetInUseResourceCountForTesting() int { return p.inUse }
