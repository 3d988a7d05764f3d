package origin

import (
	"sync"
	"time"
)

// Loop is a TaskRunner backed by one goroutine.
//
// The goroutine starts in NewLoop and runs until Stop. Tasks posted after
// Stop are dropped.
type Loop struct {
	mu        sync.Mutex
	immediate []func()
	delayed   delayedQueue
	seq       uint64
	stopped   bool

	// wake is signalled whenever new work arrives.
	wake chan struct{}
	done chan struct{}
	wg   sync.WaitGroup
}

// NewLoop creates and starts a Loop.
func NewLoop() *Loop {
	l := &Loop{
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	l.wg.Add(1)
	go l.run()
	return l
}

// PostTask implements TaskRunner.
func (l *Loop) PostTask(task func()) {
	if task == nil {
		return
	}
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return
	}
	l.immediate = append(l.immediate, task)
	l.mu.Unlock()
	l.signal()
}

// PostDelayedTask implements TaskRunner.
func (l *Loop) PostDelayedTask(task func(), delay time.Duration) {
	if task == nil {
		return
	}
	if delay <= 0 {
		l.PostTask(task)
		return
	}
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return
	}
	l.seq++
	l.delayed.push(delayedTask{due: time.Now().Add(delay), seq: l.seq, task: task})
	l.mu.Unlock()
	l.signal()
}

// Now implements TaskRunner.
func (l *Loop) Now() time.Time {
	return time.Now()
}

// Sync posts task and blocks until it has run. It returns false if the
// loop was stopped before the task could run.
func (l *Loop) Sync(task func()) bool {
	ran := make(chan struct{})
	l.PostTask(func() {
		task()
		close(ran)
	})
	select {
	case <-ran:
		return true
	case <-l.done:
		return false
	}
}

// Stop stops the loop goroutine and waits for it to exit. Immediate tasks
// already queued run before the loop exits; delayed tasks are dropped.
// Stop is safe to call multiple times.
func (l *Loop) Stop() {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return
	}
	l.stopped = true
	l.mu.Unlock()
	close(l.done)
	l.wg.Wait()
}

func (l *Loop) signal() {
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// run is the loop goroutine.
func (l *Loop) run() {
	defer l.wg.Done()

	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	for {
		task, wait, ok := l.next()
		if task != nil {
			task()
			continue
		}
		if !ok {
			return
		}

		if wait > 0 {
			timer.Reset(wait)
		}
		select {
		case <-l.wake:
		case <-timer.C:
		case <-l.done:
			l.drain()
			return
		}
		timer.Stop()
	}
}

// next pops the next runnable task. When none is runnable it returns the
// time until the next delayed task (0 meaning wait for a signal). ok is
// false once the loop is stopped and no immediate work remains.
func (l *Loop) next() (task func(), wait time.Duration, ok bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.immediate) > 0 {
		task = l.immediate[0]
		l.immediate[0] = nil
		l.immediate = l.immediate[1:]
		return task, 0, true
	}
	if l.stopped {
		return nil, 0, false
	}
	now := time.Now()
	if t, due := l.delayed.popDue(now); due {
		return t.task, 0, true
	}
	if at, has := l.delayed.next(); has {
		return nil, at.Sub(now), true
	}
	return nil, 0, true
}

// drain runs the immediate tasks left after Stop.
func (l *Loop) drain() {
	for {
		l.mu.Lock()
		if len(l.immediate) == 0 {
			l.immediate = nil
			l.delayed = nil
			l.mu.Unlock()
			return
		}
		task := l.immediate[0]
		l.immediate = l.immediate[1:]
		l.mu.Unlock()
		task()
	}
}
