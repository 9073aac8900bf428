package parallel

import (
	"errors"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func newPool(t *testing.T, workers int) *WorkerPool {
	t.Helper()
	pool, err := NewWorkerPool(workers)
	if err != nil {
		t.Fatalf("NewWorkerPool(%d) failed: %v", workers, err)
	}
	return pool
}

// TestWorkerPoolBasicOperations tests basic worker pool functionality
func TestWorkerPoolBasicOperations(t *testing.T) {
	pool := newPool(t, 4)
	defer pool.Close()

	// Submit a simple task
	var executed atomic.Bool
	success := pool.Submit(func() {
		executed.Store(true)
	})

	if !success {
		t.Error("Task submission failed")
	}

	// Wait for task to complete
	pool.Close()

	if !executed.Load() {
		t.Error("Task was not executed")
	}
}

func TestNewWorkerPoolRejectsOverflow(t *testing.T) {
	_, err := NewWorkerPool(math.MaxInt)
	if !errors.Is(err, ErrTooManyWorkers) {
		t.Errorf("expected ErrTooManyWorkers, got %v", err)
	}
}

// TestWorkerPoolConcurrentSubmissions tests concurrent task submissions
func TestWorkerPoolConcurrentSubmissions(t *testing.T) {
	pool := newPool(t, 10)
	defer pool.Close()

	numTasks := 100
	var counter int64

	var wg sync.WaitGroup
	for i := 0; i < numTasks; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			pool.Submit(func() {
				atomic.AddInt64(&counter, 1)
			})
		}()
	}

	wg.Wait()
	pool.Close()

	if counter != int64(numTasks) {
		t.Errorf("Expected counter %d, got %d", numTasks, counter)
	}
}

// TestWorkerPoolCloseRace validates that closing the pool while
// submitting tasks doesn't panic
func TestWorkerPoolCloseRace(t *testing.T) {
	numIterations := 100

	for iteration := 0; iteration < numIterations; iteration++ {
		pool := newPool(t, 4)

		// Start submitting tasks concurrently
		var wg sync.WaitGroup
		numSubmitters := 10

		for i := 0; i < numSubmitters; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for j := 0; j < 10; j++ {
					// Try to submit - might fail if closed
					pool.Submit(func() {
						time.Sleep(1 * time.Millisecond)
					})
				}
			}()
		}

		// Close pool concurrently with submissions
		time.Sleep(5 * time.Millisecond)
		pool.Close()

		wg.Wait()
		// If we reach here without panic, the race fix works
	}
}

// TestWorkerPoolSubmitAfterClose tests that submissions after close return false
func TestWorkerPoolSubmitAfterClose(t *testing.T) {
	pool := newPool(t, 4)

	// Submit a task before close
	success := pool.Submit(func() {
		time.Sleep(10 * time.Millisecond)
	})
	if !success {
		t.Error("Task submission before close should succeed")
	}

	// Close pool
	pool.Close()

	// Try to submit after close
	success = pool.Submit(func() {
		t.Error("This task should never execute")
	})

	if success {
		t.Error("Task submission after close should return false")
	}
}

// TestWorkerPoolMultipleClose tests that closing multiple times is safe
func TestWorkerPoolMultipleClose(t *testing.T) {
	pool := newPool(t, 4)

	// Submit some tasks
	for i := 0; i < 10; i++ {
		pool.Submit(func() {
			time.Sleep(1 * time.Millisecond)
		})
	}

	// Close multiple times - should not panic
	pool.Close()
	pool.Close()
	pool.Close()
}

// TestWorkerPoolConcurrentClose tests concurrent close calls
func TestWorkerPoolConcurrentClose(t *testing.T) {
	pool := newPool(t, 4)

	// Submit some tasks
	for i := 0; i < 20; i++ {
		pool.Submit(func() {
			time.Sleep(1 * time.Millisecond)
		})
	}

	// Close concurrently from multiple goroutines
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			pool.Close()
		}()
	}

	wg.Wait()
}

// TestWorkerPoolTaskExecution tests that all submitted tasks execute
func TestWorkerPoolTaskExecution(t *testing.T) {
	pool := newPool(t, 5)
	defer pool.Close()

	numTasks := 50
	executed := make([]bool, numTasks)
	var mu sync.Mutex

	for i := 0; i < numTasks; i++ {
		taskID := i
		pool.Submit(func() {
			mu.Lock()
			executed[taskID] = true
			mu.Unlock()
		})
	}

	pool.Close()

	// Verify all tasks executed
	for i, exec := range executed {
		if !exec {
			t.Errorf("Task %d was not executed", i)
		}
	}
}

// TestWorkerPoolWithPanic tests that panics in tasks don't crash the pool
func TestWorkerPoolWithPanic(t *testing.T) {
	pool := newPool(t, 4)
	defer pool.Close()

	var counter int64

	// Submit tasks that panic
	for i := 0; i < 5; i++ {
		pool.Submit(func() {
			panic("intentional panic")
		})
	}

	// Submit normal tasks
	for i := 0; i < 10; i++ {
		pool.Submit(func() {
			atomic.AddInt64(&counter, 1)
		})
	}

	pool.Close()

	// Panics are recovered per task, so the workers survive
	if counter != 10 {
		t.Errorf("Expected counter 10, got %d", counter)
	}
}

// TestRunWaitsForBatch tests that Run blocks until every task finishes
func TestRunWaitsForBatch(t *testing.T) {
	pool := newPool(t, 2)
	defer pool.Close()

	var a, b atomic.Bool
	pool.Run(
		func() { time.Sleep(5 * time.Millisecond); a.Store(true) },
		func() { time.Sleep(5 * time.Millisecond); b.Store(true) },
	)

	if !a.Load() || !b.Load() {
		t.Error("Run returned before both tasks completed")
	}
}

// TestRunResultsVisible tests that writes made by the tasks are
// visible to the caller once Run returns
func TestRunResultsVisible(t *testing.T) {
	pool := newPool(t, 2)
	defer pool.Close()

	var x, y int
	pool.Run(
		func() { x = 1 },
		func() { y = 2 },
	)
	if x != 1 || y != 2 {
		t.Errorf("x=%d y=%d, writes must be visible after Run", x, y)
	}
}

// TestRunOnClosedPoolRunsInline tests the fallback path
func TestRunOnClosedPoolRunsInline(t *testing.T) {
	pool := newPool(t, 2)
	pool.Close()

	var done atomic.Bool
	pool.Run(func() { done.Store(true) })
	if !done.Load() {
		t.Error("Run on a closed pool must still execute tasks")
	}
}

// TestRunEmptyBatch tests that Run with no tasks returns immediately
func TestRunEmptyBatch(t *testing.T) {
	pool := newPool(t, 2)
	defer pool.Close()
	pool.Run()
}

// BenchmarkWorkerPoolThroughput benchmarks worker pool throughput
func BenchmarkWorkerPoolThroughput(b *testing.B) {
	pool, err := NewWorkerPool(10)
	if err != nil {
		b.Fatal(err)
	}
	defer pool.Close()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		pool.Submit(func() {
			// Minimal work
		})
	}

	pool.Close()
}

// BenchmarkWorkerPoolWithWork benchmarks with actual work
func BenchmarkWorkerPoolWithWork(b *testing.B) {
	pool, err := NewWorkerPool(10)
	if err != nil {
		b.Fatal(err)
	}
	defer pool.Close()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		pool.Submit(func() {
			// Simulate some work
			sum := 0
			for j := 0; j < 100; j++ {
				sum += j
			}
		})
	}

	pool.Close()
}
