package origin

import (
	"sync"
	"time"
)

// ManualRunner is a TaskRunner that runs nothing until asked.
//
// It keeps a fake clock that only moves through Advance, so delayed work
// runs at exactly its due time. Posting is safe from any goroutine; the
// Run* and Advance methods must be called from the goroutine acting as the
// origin thread.
type ManualRunner struct {
	mu        sync.Mutex
	now       time.Time
	immediate []func()
	delayed   delayedQueue
	seq       uint64

	// posted is signalled on every post so WaitFor can sleep.
	posted chan struct{}
}

// NewManualRunner returns a ManualRunner whose clock starts at start.
// A zero start uses a fixed arbitrary epoch.
func NewManualRunner(start time.Time) *ManualRunner {
	if start.IsZero() {
		start = time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	}
	return &ManualRunner{
		now:    start,
		posted: make(chan struct{}, 1),
	}
}

// PostTask implements TaskRunner.
func (m *ManualRunner) PostTask(task func()) {
	if task == nil {
		return
	}
	m.mu.Lock()
	m.immediate = append(m.immediate, task)
	m.mu.Unlock()
	m.notify()
}

// PostDelayedTask implements TaskRunner.
func (m *ManualRunner) PostDelayedTask(task func(), delay time.Duration) {
	if task == nil {
		return
	}
	if delay < 0 {
		delay = 0
	}
	m.mu.Lock()
	m.seq++
	m.delayed.push(delayedTask{due: m.now.Add(delay), seq: m.seq, task: task})
	m.mu.Unlock()
	m.notify()
}

// Now implements TaskRunner.
func (m *ManualRunner) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// RunUntilIdle runs immediate tasks and delayed tasks already due, including
// tasks they post, until none remain. It returns the number of tasks run.
func (m *ManualRunner) RunUntilIdle() int {
	n := 0
	for {
		task, ok := m.pop()
		if !ok {
			return n
		}
		task()
		n++
	}
}

// Advance moves the clock forward by d, running every task that becomes due
// along the way. Each delayed task observes Now() equal to its due time.
func (m *ManualRunner) Advance(d time.Duration) {
	m.mu.Lock()
	target := m.now.Add(d)
	m.mu.Unlock()

	for {
		m.RunUntilIdle()

		m.mu.Lock()
		at, ok := m.delayed.next()
		if !ok || at.After(target) {
			m.now = target
			m.mu.Unlock()
			break
		}
		if at.After(m.now) {
			m.now = at
		}
		m.mu.Unlock()
	}
	m.RunUntilIdle()
}

// WaitFor alternates between running tasks and sleeping until cond returns
// true or timeout expires. Tasks posted from other goroutines wake it.
// It reports whether cond was satisfied.
func (m *ManualRunner) WaitFor(cond func() bool, timeout time.Duration) bool {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	for {
		m.RunUntilIdle()
		if cond() {
			return true
		}
		select {
		case <-m.posted:
		case <-deadline.C:
			m.RunUntilIdle()
			return cond()
		}
	}
}

// PendingTasks returns the number of immediate tasks waiting to run.
func (m *ManualRunner) PendingTasks() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.immediate)
}

// PendingDelayedTasks returns the number of delayed tasks not yet run.
func (m *ManualRunner) PendingDelayedTasks() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.delayed)
}

// NextDelay returns the time until the earliest delayed task.
func (m *ManualRunner) NextDelay() (time.Duration, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	at, ok := m.delayed.next()
	if !ok {
		return 0, false
	}
	return at.Sub(m.now), true
}

func (m *ManualRunner) pop() (func(), bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.immediate) > 0 {
		task := m.immediate[0]
		m.immediate[0] = nil
		m.immediate = m.immediate[1:]
		return task, true
	}
	if t, ok := m.delayed.popDue(m.now); ok {
		return t.task, true
	}
	return nil, false
}

func (m *ManualRunner) notify() {
	select {
	case m.posted <- struct{}{}:
	default:
	}
}
