package parallel

import (
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// submitAll submits n copies of fn and waits for them to finish.
func submitAll(t testing.TB, pool *WorkerPool, n int, fn func()) {
	t.Helper()
	var wg sync.WaitGroup
	wg.Add(n)
	for range n {
		if !pool.Submit(func() {
			defer wg.Done()
			fn()
		}) {
			t.Fatal("Submit rejected work on a running pool")
		}
	}
	wg.Wait()
}

// =============================================================================
// WorkerPool Creation Tests
// =============================================================================

func TestWorkerPool_Create(t *testing.T) {
	pool := NewWorkerPool(4)
	defer pool.Close()

	if pool.Workers() != 4 {
		t.Errorf("Workers() = %d, want 4", pool.Workers())
	}

	if !pool.IsRunning() {
		t.Error("Pool should be running after creation")
	}
}

func TestWorkerPool_CreateZeroWorkers(t *testing.T) {
	pool := NewWorkerPool(0)
	defer pool.Close()

	expected := runtime.GOMAXPROCS(0)
	if pool.Workers() != expected {
		t.Errorf("Workers() = %d, want %d (GOMAXPROCS)", pool.Workers(), expected)
	}
}

// =============================================================================
// Submit Tests
// =============================================================================

func TestWorkerPool_Submit(t *testing.T) {
	pool := NewWorkerPool(4)
	defer pool.Close()

	var counter atomic.Int64
	submitAll(t, pool, 100, func() { counter.Add(1) })

	if counter.Load() != 100 {
		t.Errorf("counter = %d, want 100", counter.Load())
	}
}

func TestWorkerPool_Submit_Nil(t *testing.T) {
	pool := NewWorkerPool(2)
	defer pool.Close()

	if pool.Submit(nil) {
		t.Error("Submit(nil) reported success")
	}
}

func TestWorkerPool_SubmitFromWork(t *testing.T) {
	pool := NewWorkerPool(1)
	defer pool.Close()

	// A single worker with bounded queues would deadlock here.
	const depth = 1000
	done := make(chan struct{})
	var step func(n int)
	step = func(n int) {
		if n == depth {
			close(done)
			return
		}
		pool.Submit(func() { step(n + 1) })
		pool.Submit(func() {})
	}
	pool.Submit(func() { step(0) })

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("nested submits did not finish")
	}
}

// =============================================================================
// Close Tests
// =============================================================================

func TestWorkerPool_Close(t *testing.T) {
	pool := NewWorkerPool(4)
	pool.Close()

	if pool.IsRunning() {
		t.Error("Pool should not be running after close")
	}
}

func TestWorkerPool_CloseIdempotent(t *testing.T) {
	pool := NewWorkerPool(4)

	pool.Close()
	pool.Close()

	if pool.IsRunning() {
		t.Error("Pool should not be running after close")
	}
}

func TestWorkerPool_CloseWithPendingWork(t *testing.T) {
	pool := NewWorkerPool(2)

	var counter atomic.Int64
	for range 100 {
		pool.Submit(func() {
			time.Sleep(100 * time.Microsecond)
			counter.Add(1)
		})
	}
	pool.Close()

	// Close drains queued work.
	if counter.Load() != 100 {
		t.Errorf("counter = %d after Close, want 100", counter.Load())
	}
	if pool.QueuedWork() != 0 {
		t.Errorf("QueuedWork() = %d after Close", pool.QueuedWork())
	}
}

func TestWorkerPool_OperationsAfterClose(t *testing.T) {
	pool := NewWorkerPool(4)
	pool.Close()

	var executed atomic.Bool
	if pool.Submit(func() { executed.Store(true) }) {
		t.Error("Submit accepted work after Close")
	}

	time.Sleep(20 * time.Millisecond)
	if executed.Load() {
		t.Error("Work was executed on closed pool")
	}
}

// =============================================================================
// Concurrency Tests
// =============================================================================

func TestWorkerPool_Concurrent(t *testing.T) {
	pool := NewWorkerPool(4)
	defer pool.Close()

	var counter atomic.Int64
	numGoroutines := 10
	numTasksPerGoroutine := 50

	var work, submitters sync.WaitGroup
	work.Add(numGoroutines * numTasksPerGoroutine)
	submitters.Add(numGoroutines)
	for range numGoroutines {
		go func() {
			defer submitters.Done()
			for range numTasksPerGoroutine {
				pool.Submit(func() {
					counter.Add(1)
					work.Done()
				})
			}
		}()
	}
	submitters.Wait()
	work.Wait()

	expected := int64(numGoroutines * numTasksPerGoroutine)
	if counter.Load() != expected {
		t.Errorf("counter = %d, want %d", counter.Load(), expected)
	}
}

func TestWorkerPool_WorkStealing(t *testing.T) {
	pool := NewWorkerPool(4)
	defer pool.Close()

	// Block worker queues behind one slow item each; idle workers must
	// steal the rest.
	release := make(chan struct{})
	var blocked sync.WaitGroup
	blocked.Add(1)
	pool.Submit(func() {
		blocked.Done()
		<-release
	})
	blocked.Wait()

	var counter atomic.Int64
	submitAll(t, pool, 40, func() { counter.Add(1) })
	close(release)

	if counter.Load() != 40 {
		t.Errorf("counter = %d, want 40", counter.Load())
	}
}

func TestWorkerPool_NoGoroutineLeak(t *testing.T) {
	runtime.GC()
	time.Sleep(50 * time.Millisecond)
	baseline := runtime.NumGoroutine()

	for range 5 {
		pool := NewWorkerPool(4)
		submitAll(t, pool, 100, func() {})
		pool.Close()
	}

	runtime.GC()
	time.Sleep(100 * time.Millisecond)

	final := runtime.NumGoroutine()
	if final > baseline+2 {
		t.Errorf("goroutine count: baseline=%d, final=%d (leak detected)", baseline, final)
	}
}

func TestWorkerPool_QueuedWork(t *testing.T) {
	pool := NewWorkerPool(1)
	defer pool.Close()

	if pool.QueuedWork() != 0 {
		t.Errorf("initial QueuedWork() = %d, want 0", pool.QueuedWork())
	}

	release := make(chan struct{})
	started := make(chan struct{})
	pool.Submit(func() {
		close(started)
		<-release
	})
	<-started
	pool.Submit(func() {})
	pool.Submit(func() {})
	if got := pool.QueuedWork(); got != 2 {
		t.Errorf("QueuedWork() = %d, want 2", got)
	}
	close(release)
}

// =============================================================================
// Benchmarks
// =============================================================================

func BenchmarkWorkerPool_Submit(b *testing.B) {
	pool := NewWorkerPool(runtime.GOMAXPROCS(0))
	defer pool.Close()

	var wg sync.WaitGroup
	b.ResetTimer()
	for range b.N {
		wg.Add(1)
		pool.Submit(wg.Done)
	}
	wg.Wait()
}

func BenchmarkWorkerPool_WithWork(b *testing.B) {
	pool := NewWorkerPool(runtime.GOMAXPROCS(0))
	defer pool.Close()

	b.ResetTimer()
	for range b.N {
		submitAll(b, pool, 64, func() {
			sum := 0
			for i := range 1000 {
				sum += i
			}
			_ = sum
		})
	}
}
