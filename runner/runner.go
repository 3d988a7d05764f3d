// Package runner executes tile tasks in dependency order on a worker pool
// and reports per task set completion on the origin thread.
package runner

import (
	"context"
	"log/slog"
	"slices"
	"sync"

	"github.com/gogpu/tiles"
	"github.com/gogpu/tiles/internal/parallel"
	"github.com/gogpu/tiles/internal/reentry"
	"github.com/gogpu/tiles/origin"
	"github.com/gogpu/tiles/tiletask"
)

// Client observes task set completion.
type Client interface {
	// DidFinishRunningTileTasks is called on the origin thread once per
	// ScheduleTasks call for each task set, after every task tagged with
	// it has run and completed.
	DidFinishRunningTileTasks(set tiletask.TaskSet)
}

// RasterBufferProvider is a raster buffer strategy: it decides where
// raster tasks write their pixels and how those reach the resource.
type RasterBufferProvider interface {
	tiletask.RasterBufferProvider

	// Name identifies the strategy in logs.
	Name() string

	// Shutdown releases strategy-owned memory. Buffers must not be
	// acquired afterwards.
	Shutdown()
}

type nodeState uint8

const (
	// stateWaiting nodes have unfinished dependencies.
	stateWaiting nodeState = iota
	// stateQueued nodes are submitted to the worker pool.
	stateQueued
	stateRunning
	// stateFinished nodes have run and wait for CheckForCompletedTasks.
	stateFinished
	// stateCanceled nodes were dropped before running and wait for their
	// canceled completion.
	stateCanceled
)

// node is the graph entry of a scheduled task.
type node struct {
	task  *tiletask.Task
	state nodeState

	// gen is the last ScheduleTasks call that included the task.
	gen  uint64
	sets tiletask.TaskSetCollection

	pendingDeps int
	dependents  []*node

	// ticket invalidates pool work items of a node that was canceled and
	// then rescheduled.
	ticket uint64

	// completing is set once CheckForCompletedTasks has taken the node.
	// It stays in the graph until its completion hook has returned, so a
	// hook that schedules again cannot queue it a second time.
	completing bool
}

// TileTaskRunner schedules tile tasks.
//
// ScheduleTasks, CheckForCompletedTasks, SetClient and Shutdown must be
// called on the origin thread. Task completion hooks and client
// notifications run there too, from CheckForCompletedTasks; the runner
// posts CheckForCompletedTasks to the origin TaskRunner whenever tasks
// finish.
type TileTaskRunner struct {
	origin   origin.TaskRunner
	strategy RasterBufferProvider
	workers  *parallel.WorkerPool
	logger   *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	// mu guards the graph, which workers update when tasks finish.
	mu           sync.Mutex
	nodes        map[*tiletask.Task]*node
	finished     []*node
	canceled     []*node
	gen          uint64
	checkPending bool

	// Origin thread only.
	client   Client
	pending  [tiletask.NumTaskSets]int
	notified [tiletask.NumTaskSets]bool
	visiting reentry.Stack[*tiletask.Task]
	shutdown bool
}

// New creates a runner whose completions run on o and whose raster
// buffers come from strategy. Workers start immediately.
func New(o origin.TaskRunner, strategy RasterBufferProvider, opts ...Option) *TileTaskRunner {
	var cfg options
	for _, opt := range opts {
		opt(&cfg)
	}
	ctx, cancel := context.WithCancel(context.Background())
	r := &TileTaskRunner{
		origin:   o,
		strategy: strategy,
		workers:  parallel.NewWorkerPool(cfg.workers),
		logger:   cfg.logger,
		ctx:      ctx,
		cancel:   cancel,
		nodes:    make(map[*tiletask.Task]*node),
	}
	// Nothing is owed to the client before the first ScheduleTasks.
	for i := range r.notified {
		r.notified[i] = true
	}
	return r
}

// SetClient registers the completion observer, replacing any previous one.
func (r *TileTaskRunner) SetClient(c Client) {
	r.client = c
}

// Workers returns the number of worker goroutines.
func (r *TileTaskRunner) Workers() int {
	return r.workers.Workers()
}

// Strategy returns the raster buffer strategy.
func (r *TileTaskRunner) Strategy() RasterBufferProvider {
	return r.strategy
}

// ScheduleTasks replaces the scheduled work with q.
//
// Tasks of earlier calls that are absent from q and have not started are
// canceled: their completion still runs, with canceled set. Tasks already
// running finish normally. Tasks that have completed are skipped.
// An empty q is valid; every task set is then reported on the next check.
//
// Calling ScheduleTasks after Shutdown panics.
func (r *TileTaskRunner) ScheduleTasks(q *tiletask.TileTaskQueue) {
	if r.shutdown {
		panic("runner: ScheduleTasks after Shutdown")
	}

	r.mu.Lock()
	r.gen++
	gen := r.gen

	var current []*node
	for _, item := range q.Items {
		current = r.visitLocked(item.Task, item.TaskSets, gen, current)
	}

	canceled := 0
	for _, n := range r.nodes {
		n.dependents = n.dependents[:0]
		if n.gen == gen {
			continue
		}
		n.sets = 0
		if n.state == stateWaiting || n.state == stateQueued {
			n.state = stateCanceled
			r.canceled = append(r.canceled, n)
			canceled++
		}
	}

	r.pending = [tiletask.NumTaskSets]int{}
	r.notified = [tiletask.NumTaskSets]bool{}
	for _, n := range current {
		n.sets.Each(func(s tiletask.TaskSet) { r.pending[s]++ })
		if n.state != stateWaiting {
			continue
		}
		n.pendingDeps = 0
		for _, dep := range n.task.Dependencies() {
			d, ok := r.nodes[dep]
			if !ok || d.state == stateFinished || d.completing {
				continue
			}
			d.dependents = append(d.dependents, n)
			n.pendingDeps++
		}
	}

	for _, n := range current {
		if n.state != stateWaiting {
			continue
		}
		n.task.ScheduleOnOriginThread(r.strategy)
		if n.pendingDeps == 0 {
			r.queueLocked(n)
		}
	}
	post := r.requestCheckLocked()
	r.mu.Unlock()

	r.log().Debug("runner: scheduled tasks",
		"strategy", r.strategy.Name(), "tasks", q.Len(), "graph", len(current), "canceled", canceled)
	if post {
		r.origin.PostTask(r.CheckForCompletedTasks)
	}
}

// visitLocked adds t and its dependencies to generation gen, appending
// nodes that joined it to current.
func (r *TileTaskRunner) visitLocked(t *tiletask.Task, sets tiletask.TaskSetCollection, gen uint64, current []*node) []*node {
	if t.HasCompleted() {
		return current
	}
	exit, ok := r.visiting.Enter(t)
	if !ok {
		r.log().Warn("runner: dependency cycle", "task", t.String())
		return current
	}
	defer exit()

	n, ok := r.nodes[t]
	if !ok {
		n = &node{task: t}
		r.nodes[t] = n
	}
	if n.completing && n.state == stateCanceled {
		return current
	}
	if n.gen == gen {
		n.sets |= sets
		return current
	}
	n.gen = gen
	n.sets = sets
	if n.state == stateCanceled {
		r.canceled = slices.DeleteFunc(r.canceled, func(c *node) bool { return c == n })
		n.state = stateWaiting
	}
	current = append(current, n)

	for _, dep := range t.Dependencies() {
		current = r.visitLocked(dep, 0, gen, current)
	}
	return current
}

// queueLocked submits n to the worker pool.
func (r *TileTaskRunner) queueLocked(n *node) {
	n.state = stateQueued
	n.ticket++
	ticket := n.ticket
	r.workers.Submit(func() { r.runTask(n, ticket) })
}

// runTask is the worker side of a node.
func (r *TileTaskRunner) runTask(n *node, ticket uint64) {
	r.mu.Lock()
	if n.ticket != ticket || n.state != stateQueued {
		r.mu.Unlock()
		return
	}
	n.state = stateRunning
	r.mu.Unlock()

	n.task.RunOnWorkerThread(r.ctx)

	r.mu.Lock()
	n.state = stateFinished
	r.finished = append(r.finished, n)
	for _, d := range n.dependents {
		if d.state != stateWaiting || d.gen != r.gen {
			continue
		}
		d.pendingDeps--
		if d.pendingDeps == 0 {
			r.queueLocked(d)
		}
	}
	n.dependents = nil
	post := r.requestCheckLocked()
	r.mu.Unlock()

	if post {
		r.origin.PostTask(r.CheckForCompletedTasks)
	}
}

// requestCheckLocked reports whether the caller should post a completion
// check. Checks are coalesced until the posted one runs.
func (r *TileTaskRunner) requestCheckLocked() bool {
	if r.checkPending {
		return false
	}
	r.checkPending = true
	return true
}

// CheckForCompletedTasks runs the completion of every task that finished
// running or was canceled, then notifies the client of task sets that
// are done. It never blocks on workers.
func (r *TileTaskRunner) CheckForCompletedTasks() {
	r.mu.Lock()
	r.checkPending = false
	canceled, finished := r.canceled, r.finished
	r.canceled, r.finished = nil, nil
	for _, n := range canceled {
		n.completing = true
	}
	for _, n := range finished {
		n.completing = true
	}
	r.mu.Unlock()

	// Hooks may call ScheduleTasks, which moves r.gen and the sets of
	// finished nodes it includes, so both are read after each hook.
	for _, n := range canceled {
		n.task.CompleteOnOriginThread(r.strategy, true)
		r.forget(n)
	}
	for _, n := range finished {
		n.task.CompleteOnOriginThread(r.strategy, false)
		if n.gen == r.gen {
			n.sets.Each(func(s tiletask.TaskSet) { r.pending[s]-- })
		}
		r.forget(n)
	}

	r.notifyFinishedSets()
}

// forget removes a completed node from the graph.
func (r *TileTaskRunner) forget(n *node) {
	r.mu.Lock()
	if r.nodes[n.task] == n {
		delete(r.nodes, n.task)
	}
	r.mu.Unlock()
}

func (r *TileTaskRunner) notifyFinishedSets() {
	if r.shutdown || r.client == nil {
		return
	}
	for s := tiletask.TaskSet(0); s < tiletask.NumTaskSets; s++ {
		if r.notified[s] || r.pending[s] > 0 {
			continue
		}
		r.notified[s] = true
		r.client.DidFinishRunningTileTasks(s)
		if r.shutdown {
			return
		}
	}
}

// Shutdown cancels scheduled tasks, waits for running ones, completes
// everything outstanding and releases the strategy. The client is not
// notified afterwards. Shutdown is idempotent.
func (r *TileTaskRunner) Shutdown() {
	if r.shutdown {
		return
	}
	r.shutdown = true

	r.mu.Lock()
	r.gen++
	for _, n := range r.nodes {
		if n.state == stateWaiting || n.state == stateQueued {
			n.state = stateCanceled
			r.canceled = append(r.canceled, n)
		}
	}
	r.mu.Unlock()

	r.cancel()
	r.workers.Close()
	r.CheckForCompletedTasks()
	r.strategy.Shutdown()

	r.log().Info("runner: shut down", "strategy", r.strategy.Name())
}

func (r *TileTaskRunner) log() *slog.Logger {
	if r.logger != nil {
		return r.logger
	}
	return tiles.Logger()
}
