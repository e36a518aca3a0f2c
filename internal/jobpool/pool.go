// Package jobpool implements the bounded, dynamic, self-terminating job
// scheduler (spec.md C6): a Pool drains jobs submitted through cloneable
// Handles, bounded by a concurrency cap, and terminates exactly when every
// reachable Handle has been closed and the in-flight set is empty, or when
// a job returns the first error.
//
// Grounded on the original scraper's JobPool/JobHandle
// (original_source/src/join_pool.rs: mpsc::UnboundedSender/Receiver +
// tokio::task::JoinSet + tokio::select!), translated to Go channels and
// goroutines. Rust's Handle reference counting is automatic (Drop); Go has
// no destructors, so callers must explicitly Close a Handle once done with
// it, mirroring the explicit `drop(handle)` calls already present in the
// original's main.rs.
package jobpool

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/cstorey/bankmirror/internal/logging"
)

// Job is a fallible, self-contained unit of asynchronous work. A Job must
// not borrow from its submitter (spec.md §3 Job invariant).
type Job func(ctx context.Context) error

// ErrPoolDropped is returned by Handle.Spawn once every Handle referencing
// the pool has been closed (spec.md §7 Pool/Dropped).
var ErrPoolDropped = errors.New("jobpool: pool dropped")

// Stats is the monotonically increasing (submitted, started, completed)
// triple (spec.md §3): observability only, never a correctness signal.
type Stats struct {
	mu                            sync.Mutex
	submitted, started, completed int
}

func (s *Stats) incSubmitted() {
	s.mu.Lock()
	s.submitted++
	s.mu.Unlock()
}

func (s *Stats) incStarted() {
	s.mu.Lock()
	s.started++
	s.mu.Unlock()
}

func (s *Stats) incCompleted() {
	s.mu.Lock()
	s.completed++
	s.mu.Unlock()
}

// Snapshot returns the current (submitted, started, completed) values.
func (s *Stats) Snapshot() (submitted, started, completed int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.submitted, s.started, s.completed
}

// shared holds the pool's inbound queue. Submission must never block on
// the in-flight cap -- a running job may itself be a producer, spawning
// its own children through a cloned Handle (internal/sync's account job
// spawns its per-scrape-class children this way), so gating enqueue on
// available concurrency can deadlock every in-flight job against itself.
// queue is therefore unbounded, guarded by mu, mirroring the original's
// mpsc::UnboundedSender: Spawn only ever blocks briefly on mu, never on
// the consumer keeping pace.
type shared struct {
	mu       sync.Mutex
	queue    []Job
	closed   bool
	notify   chan struct{} // capacity 1; wakes Run when queue or closed state changes
	refcount int64         // atomic
	stats    *Stats
	name     string
}

func (s *shared) wake() {
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// tryPop removes and returns the head of the queue if present (ok reports
// whether it was). alive is false once the queue is closed and drained for
// good.
func (s *shared) tryPop() (job Job, ok bool, alive bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) > 0 {
		job = s.queue[0]
		s.queue = s.queue[1:]
		return job, true, true
	}
	return nil, false, !s.closed
}

// Pool is the single-consumer scheduling core; it never executes job bodies
// itself, only dispatches them onto goroutines (spec.md §4.6: "the pool
// itself does not execute bodies").
type Pool struct {
	s           *shared
	concurrency int
}

// Handle is a cloneable producer endpoint used to submit jobs to the pool.
type Handle struct {
	s *shared
}

// New creates a Pool bounded to concurrency in-flight jobs at a time, and
// the root Handle used to submit work to it.
func New(name string, concurrency int) (*Pool, *Handle) {
	if concurrency < 1 {
		concurrency = 1
	}
	s := &shared{
		notify:   make(chan struct{}, 1),
		refcount: 1,
		stats:    &Stats{},
		name:     name,
	}
	return &Pool{s: s, concurrency: concurrency}, &Handle{s: s}
}

// Stats returns the pool's liveness counters.
func (p *Pool) Stats() *Stats { return p.s.stats }

// Clone returns a new Handle sharing this pool, incrementing the pool's
// live-handle reference count. The inbound queue only closes once every clone
// (including those held by in-flight jobs' descendants) has been Closed.
func (h *Handle) Clone() *Handle {
	atomic.AddInt64(&h.s.refcount, 1)
	return &Handle{s: h.s}
}

// Close releases this Handle. Once the last live Handle is closed, the
// pool's inbound queue closes and Run drains to completion.
func (h *Handle) Close() {
	if atomic.AddInt64(&h.s.refcount, -1) == 0 {
		h.s.mu.Lock()
		h.s.closed = true
		h.s.mu.Unlock()
		h.s.wake()
	}
}

// Spawn enqueues job. It fails only if every Handle for this pool has
// already been closed. Spawn never blocks on the pool's concurrency cap --
// it only ever takes the queue's mutex briefly -- so a running job can
// always spawn its own children regardless of how full the in-flight set
// currently is.
func (h *Handle) Spawn(job Job) error {
	h.s.mu.Lock()
	if h.s.closed {
		h.s.mu.Unlock()
		return ErrPoolDropped
	}
	h.s.queue = append(h.s.queue, job)
	h.s.mu.Unlock()
	h.s.wake()
	h.s.stats.incSubmitted()
	PoolSubmittedGauge(h.s.name).Inc()
	return nil
}

// Run drives the pool to completion. It returns nil once every reachable
// Handle has closed and the in-flight set has drained, or the first error
// returned by any job -- at which point already-running jobs are abandoned
// (spec.md §4.6 "First-error policy").
func (p *Pool) Run(ctx context.Context) error {
	type result struct{ err error }

	results := make(chan result, p.concurrency)
	inFlight := 0
	terminated := false

	for {
		// Drain as much of the queue as the concurrency cap allows before
		// waiting; this never blocks Spawn, only Run's own progress.
		for !terminated && inFlight < p.concurrency {
			job, ok, alive := p.s.tryPop()
			if ok {
				inFlight++
				p.s.stats.incStarted()
				PoolStartedGauge(p.s.name).Inc()
				go func() {
					results <- result{err: job(ctx)}
				}()
				continue
			}
			if !alive {
				terminated = true
				logging.Debug().Str("pool", p.s.name).Msg("jobpool: inbound queue closed")
			}
			break
		}

		if terminated && inFlight == 0 {
			return nil
		}

		select {
		case <-p.s.notify:
			continue

		case r := <-results:
			inFlight--
			p.s.stats.incCompleted()
			PoolCompletedGauge(p.s.name).Inc()
			if r.err != nil {
				logging.Error().Str("pool", p.s.name).Err(r.err).Msg("jobpool: job failed, abandoning in-flight work")
				return r.err
			}
		}
	}
}
