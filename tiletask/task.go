package tiletask

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"slices"
	"sync/atomic"

	// Decoders for image decode tasks.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/gogpu/tiles/resource"
)

// Kind identifies the variant of a Task.
type Kind uint8

const (
	// KindRaster plays a raster source back into a resource.
	KindRaster Kind = iota

	// KindImageDecode decodes an encoded image that raster tasks depend on.
	KindImageDecode
)

func (k Kind) String() string {
	switch k {
	case KindRaster:
		return "raster"
	case KindImageDecode:
		return "decode"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// RasterBuffer is a write target for one raster task, handed out by a
// RasterBufferProvider. Playback runs on a worker goroutine.
type RasterBuffer interface {
	Playback(src RasterSource, rect image.Rectangle, scale float64)
}

// RasterBufferProvider hands out raster buffers on the origin thread.
type RasterBufferProvider interface {
	AcquireBufferForRaster(r *resource.Resource) RasterBuffer
	ReleaseBufferForRaster(b RasterBuffer)
}

// Task is a schedulable unit of tile work.
//
// The runner calls ScheduleOnOriginThread once before the task first runs,
// RunOnWorkerThread at most once on a worker, and CompleteOnOriginThread
// exactly once on the origin thread, with canceled set when the task was
// dropped from the schedule before it ran.
type Task struct {
	kind Kind
	deps []*Task

	run      func(ctx context.Context)
	schedule func(p RasterBufferProvider)
	complete func(p RasterBufferProvider, canceled bool)

	// Origin thread only.
	scheduled bool
	completed bool
	canceled  bool

	hasRun atomic.Bool

	// Image decode tasks only.
	decoded *atomic.Pointer[decodeResult]
}

// Kind returns the task variant.
func (t *Task) Kind() Kind { return t.kind }

// Dependencies returns the tasks that must finish running before t runs.
// The slice must not be modified.
func (t *Task) Dependencies() []*Task { return t.deps }

// AddDependency makes t wait for dep. It must be called on the origin
// thread before t is scheduled.
func (t *Task) AddDependency(dep *Task) {
	t.deps = append(t.deps, dep)
}

// HasRun reports whether RunOnWorkerThread has returned.
func (t *Task) HasRun() bool { return t.hasRun.Load() }

// HasCompleted reports whether CompleteOnOriginThread has run.
func (t *Task) HasCompleted() bool { return t.completed }

// Canceled reports whether the task completed as canceled.
func (t *Task) Canceled() bool { return t.canceled }

// ScheduleOnOriginThread prepares the task for running. Calls after the
// first are ignored.
func (t *Task) ScheduleOnOriginThread(p RasterBufferProvider) {
	if t.scheduled || t.completed {
		return
	}
	t.scheduled = true
	if t.schedule != nil {
		t.schedule(p)
	}
}

// RunOnWorkerThread executes the task body. ctx is canceled when the
// runner shuts down.
func (t *Task) RunOnWorkerThread(ctx context.Context) {
	if t.run != nil {
		t.run(ctx)
	}
	t.hasRun.Store(true)
}

// CompleteOnOriginThread releases what the task holds and reports the
// outcome. Calls after the first are ignored.
func (t *Task) CompleteOnOriginThread(p RasterBufferProvider, canceled bool) {
	if t.completed {
		return
	}
	t.completed = true
	t.canceled = canceled
	if t.complete != nil {
		t.complete(p, canceled)
	}
}

func (t *Task) String() string {
	return fmt.Sprintf("%s task %p", t.kind, t)
}

// NewTask returns a raster-kind task without a resource. run executes on a
// worker; reply, if non-nil, is called on completion.
func NewTask(run func(ctx context.Context), reply func(canceled bool), deps ...*Task) *Task {
	t := &Task{kind: KindRaster, deps: slices.Clone(deps), run: run}
	if reply != nil {
		t.complete = func(_ RasterBufferProvider, canceled bool) { reply(canceled) }
	}
	return t
}

// RasterTaskParams describes a raster task.
type RasterTaskParams struct {
	// Resource receives the playback. Required.
	Resource *resource.Resource

	// Source is played back into Resource. Required.
	Source RasterSource

	// Rect is the content-space rectangle covered by Resource.
	// An empty Rect covers the whole resource from the origin.
	Rect image.Rectangle

	// Scale is the contents scale Source is played back at. Zero means 1.
	Scale float64

	// Dependencies are typically image decode tasks used by Source.
	Dependencies []*Task

	// Reply is called on the origin thread when the task completes.
	Reply func(canceled bool)
}

// NewRasterTask returns a task that rasters p.Source into p.Resource.
// The buffer is acquired when the task is scheduled and released when it
// completes, canceled or not.
func NewRasterTask(p RasterTaskParams) *Task {
	if p.Resource == nil || p.Source == nil {
		panic("tiletask: raster task needs a resource and a source")
	}
	rect := p.Rect
	if rect.Empty() {
		rect = p.Resource.Size().Rect()
	}
	scale := p.Scale
	if scale == 0 {
		scale = 1
	}

	var buf RasterBuffer
	t := &Task{kind: KindRaster, deps: slices.Clone(p.Dependencies)}
	t.schedule = func(bp RasterBufferProvider) {
		buf = bp.AcquireBufferForRaster(p.Resource)
	}
	t.run = func(ctx context.Context) {
		if buf == nil || ctx.Err() != nil {
			return
		}
		buf.Playback(p.Source, rect, scale)
	}
	t.complete = func(bp RasterBufferProvider, canceled bool) {
		if buf != nil {
			bp.ReleaseBufferForRaster(buf)
			buf = nil
		}
		if p.Reply != nil {
			p.Reply(canceled)
		}
	}
	return t
}

// decodeResult is written by the worker and read after the task has run.
type decodeResult struct {
	img image.Image
	err error
}

// NewImageDecodeTask returns a task that decodes encoded with the
// registered image decoders. reply receives the decoded image, or the
// decode error; a canceled task reports neither.
func NewImageDecodeTask(encoded []byte, reply func(img image.Image, err error, canceled bool)) *Task {
	var res atomic.Pointer[decodeResult]
	t := &Task{kind: KindImageDecode}
	t.run = func(ctx context.Context) {
		if err := ctx.Err(); err != nil {
			res.Store(&decodeResult{err: err})
			return
		}
		img, _, err := image.Decode(bytes.NewReader(encoded))
		if err != nil {
			err = fmt.Errorf("tiletask: decode: %w", err)
		}
		res.Store(&decodeResult{img: img, err: err})
	}
	t.complete = func(_ RasterBufferProvider, canceled bool) {
		if reply == nil {
			return
		}
		if canceled {
			reply(nil, nil, true)
			return
		}
		r := res.Load()
		if r == nil {
			reply(nil, nil, false)
			return
		}
		reply(r.img, r.err, false)
	}
	t.decoded = &res
	return t
}

// ErrNotDecoded is returned by DecodedImage before an image decode task
// has run, or for tasks of another kind.
var ErrNotDecoded = errors.New("tiletask: image not decoded")

// DecodedImage returns the result of an image decode task once it has run.
func (t *Task) DecodedImage() (image.Image, error) {
	if t.decoded == nil || !t.HasRun() {
		return nil, ErrNotDecoded
	}
	r := t.decoded.Load()
	if r == nil {
		return nil, ErrNotDecoded
	}
	return r.img, r.err
}
