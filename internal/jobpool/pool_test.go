package jobpool

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestPoolDrainsAndTerminates(t *testing.T) {
	pool, h := New(t.Name(), 4)

	var completed int32
	go func() {
		for i := 0; i < 20; i++ {
			h.Spawn(func(ctx context.Context) error {
				atomic.AddInt32(&completed, 1)
				return nil
			})
		}
		h.Close()
	}()

	if err := pool.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if completed != 20 {
		t.Fatalf("expected 20 completions, got %d", completed)
	}
	submitted, started, done := pool.Stats().Snapshot()
	if submitted != 20 || started != 20 || done != 20 {
		t.Fatalf("unexpected stats: submitted=%d started=%d completed=%d", submitted, started, done)
	}
}

func TestPoolRespectsConcurrencyCap(t *testing.T) {
	const cap = 3
	pool, h := New(t.Name(), cap)

	var inFlight, maxInFlight int32
	var mu sync.Mutex
	release := make(chan struct{})

	go func() {
		for i := 0; i < 10; i++ {
			h.Spawn(func(ctx context.Context) error {
				n := atomic.AddInt32(&inFlight, 1)
				mu.Lock()
				if n > maxInFlight {
					maxInFlight = n
				}
				mu.Unlock()
				<-release
				atomic.AddInt32(&inFlight, -1)
				return nil
			})
		}
		h.Close()
	}()

	done := make(chan error, 1)
	go func() { done <- pool.Run(context.Background()) }()

	time.Sleep(50 * time.Millisecond)
	mu.Lock()
	got := maxInFlight
	mu.Unlock()
	if got > cap {
		t.Fatalf("in-flight exceeded cap: %d > %d", got, cap)
	}
	close(release)

	if err := <-done; err != nil {
		t.Fatalf("run: %v", err)
	}
}

func TestPoolPropagatesFirstError(t *testing.T) {
	pool, h := New(t.Name(), 2)
	boom := errors.New("boom")

	go func() {
		h.Spawn(func(ctx context.Context) error { return boom })
		h.Spawn(func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		})
		h.Close()
	}()

	err := pool.Run(context.Background())
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
}

// TestClonedHandleKeepsPoolAlive mirrors a job that fans out further work
// via its own cloned Handle (spec.md §4.6: jobs may themselves submit
// jobs), and confirms the pool only terminates once every clone -- not
// just the root Handle -- has been closed.
func TestClonedHandleKeepsPoolAlive(t *testing.T) {
	pool, h := New(t.Name(), 2)
	clone := h.Clone()

	var ran int32
	go func() {
		h.Spawn(func(ctx context.Context) error {
			atomic.AddInt32(&ran, 1)
			err := clone.Spawn(func(ctx context.Context) error {
				atomic.AddInt32(&ran, 1)
				clone.Close()
				return nil
			})
			return err
		})
		h.Close()
	}()

	if err := pool.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if ran != 2 {
		t.Fatalf("expected both the outer and nested job to run, got %d", ran)
	}
}

// TestConcurrencyCapFullOfSpawningJobsDoesNotDeadlock reproduces the
// scenario in internal/sync's accountJob: every in-flight slot is held by
// a job that itself calls Spawn for a child job before returning. If
// enqueueing ever blocked on a free slot, every one of these jobs would
// block forever on its own child's Spawn call with no slot free to run
// it, and Run would hang. With concurrency == the number of outer jobs,
// there is no free slot until a child actually gets to run.
func TestConcurrencyCapFullOfSpawningJobsDoesNotDeadlock(t *testing.T) {
	const concurrency = 4
	pool, root := New(t.Name(), concurrency)

	// One clone per outer job, so each can keep the pool alive long enough
	// to enqueue and finish its own child before closing.
	clones := make([]*Handle, concurrency)
	for i := range clones {
		clones[i] = root.Clone()
	}

	done := make(chan error, 1)
	go func() { done <- pool.Run(context.Background()) }()

	var ran int32
	var wg sync.WaitGroup
	wg.Add(concurrency)
	for i := 0; i < concurrency; i++ {
		c := clones[i]
		go func() {
			defer wg.Done()
			c.Spawn(func(ctx context.Context) error {
				atomic.AddInt32(&ran, 1)
				err := c.Spawn(func(ctx context.Context) error {
					atomic.AddInt32(&ran, 1)
					return nil
				})
				c.Close()
				return err
			})
		}()
	}

	wg.Wait()
	root.Close()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("pool.Run deadlocked with every slot occupied by a spawning job")
	}

	if ran != 2*concurrency {
		t.Fatalf("expected %d job runs, got %d", 2*concurrency, ran)
	}
}

func TestSpawnAfterCloseFails(t *testing.T) {
	_, h := New(t.Name(), 1)
	h.Close()
	if err := h.Spawn(func(ctx context.Context) error { return nil }); !errors.Is(err, ErrPoolDropped) {
		t.Fatalf("expected ErrPoolDropped, got %v", err)
	}
}
