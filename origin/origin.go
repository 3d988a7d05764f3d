// Package origin models the origin thread: the single sequence that owns
// the resource pool, the task runner façade and every client callback.
//
// Code that must run on the origin thread is posted to a TaskRunner. Two
// implementations are provided: Loop, a goroutine with a delayed-task
// heap, and ManualRunner, which runs tasks only when told to and keeps a
// fake clock for deterministic tests.
package origin

import (
	"container/heap"
	"time"
)

// TaskRunner runs posted closures one at a time, in posting order, on a
// single logical thread. PostTask and PostDelayedTask are safe to call from
// any goroutine.
type TaskRunner interface {
	// PostTask queues task to run as soon as possible.
	PostTask(task func())

	// PostDelayedTask queues task to run once delay has elapsed.
	// Tasks with equal due times run in posting order.
	PostDelayedTask(task func(), delay time.Duration)

	// Now returns the runner's notion of the current time.
	Now() time.Time
}

// delayedTask is a closure waiting in a delayedQueue.
type delayedTask struct {
	due  time.Time
	seq  uint64
	task func()
}

// delayedQueue is a min-heap of delayed tasks ordered by (due, seq).
type delayedQueue []delayedTask

func (q delayedQueue) Len() int { return len(q) }

func (q delayedQueue) Less(i, j int) bool {
	if q[i].due.Equal(q[j].due) {
		return q[i].seq < q[j].seq
	}
	return q[i].due.Before(q[j].due)
}

func (q delayedQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *delayedQueue) Push(x any) { *q = append(*q, x.(delayedTask)) }

func (q *delayedQueue) Pop() any {
	old := *q
	n := len(old)
	t := old[n-1]
	old[n-1] = delayedTask{}
	*q = old[:n-1]
	return t
}

// push adds a task to the heap.
func (q *delayedQueue) push(t delayedTask) {
	heap.Push(q, t)
}

// popDue removes and returns the earliest task if it is due at now.
func (q *delayedQueue) popDue(now time.Time) (delayedTask, bool) {
	if len(*q) == 0 || (*q)[0].due.After(now) {
		return delayedTask{}, false
	}
	return heap.Pop(q).(delayedTask), true
}

// next returns the due time of the earliest task.
func (q delayedQueue) next() (time.Time, bool) {
	if len(q) == 0 {
		return time.Time{}, false
	}
	return q[0].due, true
}
