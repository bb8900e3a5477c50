package parallel

import (
	"runtime"
	"sync/atomic"
	"testing"
)

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

func TestWorkerPool_CreateDefaultWorkers(t *testing.T) {
	tests := []struct {
		name    string
		workers int
	}{
		{"zero", 0},
		{"negative", -5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pool := NewWorkerPool(tt.workers)
			defer pool.Close()

			if got, want := pool.Workers(), runtime.GOMAXPROCS(0); got != want {
				t.Errorf("Workers() = %d, want %d (GOMAXPROCS)", got, want)
			}
		})
	}
}

// =============================================================================
// ExecuteAll / Range Tests
// =============================================================================

func TestWorkerPool_ExecuteAll(t *testing.T) {
	pool := NewWorkerPool(4)
	defer pool.Close()

	var counter atomic.Int64
	work := make([]func(), 100)
	for i := range work {
		work[i] = func() { counter.Add(1) }
	}

	pool.ExecuteAll(work)

	if counter.Load() != 100 {
		t.Errorf("counter = %d, want 100", counter.Load())
	}
}

func TestWorkerPool_Range(t *testing.T) {
	tests := []struct {
		name    string
		workers int
		n       int
	}{
		{"empty", 4, 0},
		{"single", 4, 1},
		{"fewer than workers", 8, 3},
		{"uneven", 4, 1001},
		{"one worker", 1, 50},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pool := NewWorkerPool(tt.workers)
			defer pool.Close()

			hits := make([]atomic.Int32, tt.n)
			pool.Range(tt.n, func(i int) { hits[i].Add(1) })

			for i := range hits {
				if got := hits[i].Load(); got != 1 {
					t.Fatalf("index %d visited %d times, want 1", i, got)
				}
			}
		})
	}
}

func TestWorkerPool_AfterClose(t *testing.T) {
	pool := NewWorkerPool(2)
	pool.Close()
	pool.Close()

	if pool.IsRunning() {
		t.Error("IsRunning() = true after Close")
	}

	var counter atomic.Int64
	pool.Range(10, func(int) { counter.Add(1) })
	if counter.Load() != 10 {
		t.Errorf("counter = %d after Close, want 10 (inline execution)", counter.Load())
	}
}
