// Package jobsystem is a fixed-size, fork/join work-stealing job
// scheduler. Callers register a closed universe of job functions at
// startup, create job records (optionally as children of other jobs),
// submit them for execution, and block on a job until it and all its
// descendants have finished. The calling goroutine (worker 0) itself
// participates in execution while blocked in Wait, which is what keeps
// progress guaranteed even when the spawned pool is saturated.
//
// The design is a direct, idiomatic-Go port of a small C job system
// (see DESIGN.md): per-worker arenas replace a global job allocator,
// 16-bit handles replace raw pointers across goroutine boundaries, and a
// mutex-guarded work-stealing deque (with an optional lock-free variant
// behind the jobsystem_lockfree build tag) replaces a single shared
// queue.
package jobsystem

import (
	"context"
	"math/rand"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/zoobzio/hookz"
	"github.com/zoobzio/metricz"
	"github.com/zoobzio/tracez"
)

// Span names for the scheduler's phase-level tracer, distinct from the
// spec-mandated per-worker trace ring buffer (trace.go). This is an
// additional, human-debuggable causal trace following the
// tracer.StartSpan/span.Finish pattern zoobzio/pipz uses in retry.go.
const (
	spanWaitPhase = tracez.Key("wait.phase")
	spanSubmit    = tracez.Key("submit.job")

	tagSubmitWorker   = tracez.Tag("submit.worker")
	tagSubmitFunction = tracez.Tag("submit.function")
	tagWaitRoot       = tracez.Tag("wait.root_handle")
)

// WorkerContext binds a worker index to its own arena, deque, optional
// trace ring, and a back-pointer to the shared scheduler. Only the
// owning worker allocates from its arena or pushes/pops at the bottom
// of its deque; job functions receive the *WorkerContext for the worker
// currently executing them through the JobFunc ABI, so there is no need
// for goroutine-local storage to know "which worker am I".
type WorkerContext struct {
	index int
	arena *arena
	deque *workerDeque
	trace *traceRing
	sched *Scheduler
	rng   *rand.Rand
}

// Index returns this worker's index in [0, numWorkers).
func (wc *WorkerContext) Index() int { return wc.index }

// Scheduler is the shared context: the worker array, worker count, and
// function lookup table. It is the handle a host keeps after Startup to
// Create/Submit/Wait/Shutdown.
type Scheduler struct {
	workers    []*WorkerContext
	numWorkers int
	funcs      []FuncEntry

	shutdown    atomic.Bool
	wg          sync.WaitGroup
	idleWorkers atomic.Int32

	tracingEnabled bool
	tracer         *tracez.Tracer
	metrics        *metricz.Registry
	hooks          *hookz.Hooks[JobFinishedEvent]
}

// Startup allocates all arenas, deques, and worker contexts, spawns
// workers 1..numWorkers-1, and returns the scheduler. The calling
// goroutine plays the role of worker 0: it never gets its own spawned
// loop, it participates only when it calls Wait. funcs is the const,
// host-supplied function table; each entry is stored at the index given
// by its ID field, so function ids are looked up by ID, not by the
// entry's position in funcs.
//
// Panics with a *SchedulerError if numWorkers is outside [1, MaxWorkers].
func Startup(numWorkers int, funcs []FuncEntry, opts ...Option) *Scheduler {
	if numWorkers < 1 || numWorkers > MaxWorkers {
		fail(ErrInvalidWorkerCount, "numWorkers=%d, want 1..%d", numWorkers, MaxWorkers)
	}

	cfg := defaultOptions()
	for _, opt := range opts {
		opt(&cfg)
	}

	maxID := uint16(0)
	for _, f := range funcs {
		if f.ID+1 > maxID {
			maxID = f.ID + 1
		}
	}
	table := make([]FuncEntry, maxID)
	for _, f := range funcs {
		table[f.ID] = f
	}

	s := &Scheduler{
		workers:        make([]*WorkerContext, numWorkers),
		numWorkers:     numWorkers,
		funcs:          table,
		tracingEnabled: cfg.tracing,
		metrics:        newMetricsRegistry(),
		hooks:          hookz.New[JobFinishedEvent](),
	}
	if cfg.tracing {
		s.tracer = tracez.New()
	}

	for i := 0; i < numWorkers; i++ {
		wc := &WorkerContext{
			index: i,
			arena: &arena{},
			deque: newWorkerDeque(QueueSize),
			sched: s,
			rng:   rand.New(rand.NewSource(cfg.randSeed + int64(i))),
		}
		if cfg.tracing {
			wc.trace = &traceRing{}
		}
		s.workers[i] = wc
	}

	s.wg.Add(numWorkers - 1)
	for i := 1; i < numWorkers; i++ {
		go s.workerLoop(s.workers[i])
	}

	return s
}

// Root returns worker 0's context (the one the calling goroutine acts
// as). Create/CreateChild/Submit calls made directly on the Scheduler
// (rather than from inside a running JobFunc) forward here.
func (s *Scheduler) Root() *WorkerContext {
	return s.workers[0]
}

// NumWorkers returns the worker count this scheduler was started with.
func (s *Scheduler) NumWorkers() int {
	return s.numWorkers
}

// resolve maps a handle to its job record. Safe from any goroutine:
// arenas are allocated once at Startup and never reallocated or moved.
func (s *Scheduler) resolve(h Handle) *job {
	w := h.workerOf()
	if w < 0 || w >= s.numWorkers {
		fail(ErrWorkerOutOfRange, "handle %#04x references worker %d, have %d workers", h, w, s.numWorkers)
	}
	return &s.workers[w].arena.slots[h.indexOf()]
}

// Create, CreateChild, Submit, Wait, Reset, and Shutdown at the
// Scheduler level are worker-0-only operations: callers must invoke them
// from the goroutine that called Startup, never from inside a running
// JobFunc on a spawned worker. Go has no goroutine-identity check
// equivalent to comparing thread IDs, so unlike the arena/queue/payload
// invariants this one is a caller contract the scheduler cannot assert
// against; a JobFunc that needs to fork work must use the *WorkerContext
// it was handed instead of these Scheduler-level forwarders.

// Create allocates a root job (no parent) on worker 0's arena. Equivalent
// to calling wc.Create from inside a job function running on worker 0.
func (s *Scheduler) Create(functionID uint16) Handle {
	return s.Root().Create(functionID)
}

// CreateChild allocates a child job of parent on worker 0's arena.
func (s *Scheduler) CreateChild(parent Handle, functionID uint16) Handle {
	return s.Root().CreateChild(parent, functionID)
}

// Submit pushes handle onto worker 0's deque with the given payload.
func (s *Scheduler) Submit(h Handle, data []byte) {
	s.Root().Submit(h, data)
}

// Create allocates a job record from wc's own arena: no parent, a fresh
// unfinished count of 1. Called only from the goroutine that owns wc.
func (wc *WorkerContext) Create(functionID uint16) Handle {
	h, j := wc.arena.allocate(wc.index)
	j.functionID = functionID
	j.parent = NoneHandle
	j.unfinished = 1
	return h
}

// CreateChild allocates a job record from wc's own arena as a child of
// parent: parent.unfinished is atomically incremented first so the
// parent can never be observed as finished while this child is still
// being set up.
func (wc *WorkerContext) CreateChild(parent Handle, functionID uint16) Handle {
	pj := wc.sched.resolve(parent)
	pj.addUnfinished(1)

	h, j := wc.arena.allocate(wc.index)
	j.functionID = functionID
	j.parent = parent
	j.unfinished = 1
	return h
}

// Submit copies up to DataSize bytes of data into h's inline payload and
// pushes h onto wc's own deque. Panics if data is larger than DataSize
// (a programming error), or if the deque is full: the deque never grows,
// so overflow is fatal rather than backpressuring the submitter (see
// DESIGN.md).
func (wc *WorkerContext) Submit(h Handle, data []byte) {
	if len(data) > DataSize {
		fail(ErrPayloadTooLarge, "%d bytes exceeds DataSize=%d", len(data), DataSize)
	}

	j := wc.sched.resolve(h)
	copy(j.payload[:], data)

	if wc.sched.tracingEnabled {
		_, span := wc.sched.tracer.StartSpan(context.Background(), spanSubmit)
		span.SetTag(tagSubmitWorker, strconv.Itoa(wc.index))
		span.SetTag(tagSubmitFunction, strconv.Itoa(int(j.functionID)))
		span.Finish()
	}

	if !wc.deque.Push(h) {
		fail(ErrQueueOverflow, "worker %d deque full at %d slots", wc.index, QueueSize)
	}
}

// getJob pops the caller's own deque first; on failure, it tries exactly
// one steal against a uniformly random victim (including, with
// probability 1/N, itself, in which case the attempt is skipped and the
// outer loop yields).
func (s *Scheduler) getJob(wc *WorkerContext) (Handle, bool) {
	if h, ok := wc.deque.Pop(); ok {
		return h, true
	}

	victim := wc.rng.Intn(s.numWorkers)
	if victim == wc.index {
		return NoneHandle, false
	}

	if h, ok := s.workers[victim].deque.Steal(); ok {
		s.metrics.Counter(MetricJobsStolenTotal).Inc()
		return h, true
	}
	s.metrics.Counter(MetricStealAttemptsFailed).Inc()
	return NoneHandle, false
}

// markIdle records a worker entering or leaving its yield branch (delta
// +1 or -1) and republishes the live count on the idle-workers gauge.
func (s *Scheduler) markIdle(delta int32) {
	s.metrics.Gauge(MetricWorkersIdleCurrent).Set(float64(s.idleWorkers.Add(delta)))
}

// execute runs job's function and then finishes it. Trace events
// bracket the call when tracing is enabled.
func (s *Scheduler) execute(wc *WorkerContext, h Handle) {
	j := s.resolve(h)
	fid := j.functionID

	if wc.trace != nil {
		wc.trace.record(traceBegin, fid)
	}

	fn := s.funcs[fid].Fn
	fn(wc, h, j.payload[:])

	if wc.trace != nil {
		wc.trace.record(traceEnd, fid)
	}

	s.metrics.Counter(MetricJobsExecutedTotal).Inc()
	s.finish(wc, h)
}

// finish decrements h's unfinished count and, if it reaches zero,
// iterates up the parent chain doing the same. Expressed iteratively
// rather than recursively, to bound stack depth regardless of
// fork-tree depth.
func (s *Scheduler) finish(wc *WorkerContext, h Handle) {
	cur := h
	for !cur.IsNone() {
		j := s.resolve(cur)
		if j.addUnfinished(-1) != 0 {
			return
		}

		s.emitJobFinished(context.Background(), JobFinishedEvent{
			Handle:     cur,
			FunctionID: j.functionID,
			Worker:     wc.index,
		})

		cur = j.parent
	}
}

// workerLoop is the body every spawned worker (1..numWorkers-1) runs
// until Shutdown.
func (s *Scheduler) workerLoop(wc *WorkerContext) {
	defer s.wg.Done()

	for !s.shutdown.Load() {
		if h, ok := s.getJob(wc); ok {
			s.execute(wc, h)
		} else {
			s.markIdle(1)
			runtime.Gosched()
			s.markIdle(-1)
		}
	}
}

// Wait blocks the calling goroutine (which must be the one that called
// Startup, i.e. worker 0) until handle and every one of its descendants
// has finished. While waiting, worker 0 behaves like any other worker:
// it drains its own deque and steals from others, which is what
// guarantees progress even if the spawned pool is starved.
func (s *Scheduler) Wait(h Handle) {
	root := s.Root()

	if s.tracingEnabled {
		_, span := s.tracer.StartSpan(context.Background(), spanWaitPhase)
		span.SetTag(tagWaitRoot, strconv.Itoa(int(h)))
		defer span.Finish()
	}

	for {
		j := s.resolve(h)
		if j.loadUnfinished() <= 0 {
			return
		}
		if s.shutdown.Load() {
			return
		}

		if jh, ok := s.getJob(root); ok {
			s.execute(root, jh)
		} else {
			s.markIdle(1)
			runtime.Gosched()
			s.markIdle(-1)
		}
	}
}

// Reset zeroes every arena's bump cursor, invalidating all handles
// issued during the phase that just ended. It asserts every deque is
// empty first: a non-empty deque at reset time means some submitted job
// was never picked up, a bug in the caller's phase boundary, not
// something the scheduler can safely paper over.
func (s *Scheduler) Reset() {
	for _, wc := range s.workers {
		if !wc.deque.IsEmpty() {
			fail(ErrDequeNotEmpty, "worker %d deque holds %d handles", wc.index, wc.deque.Size())
		}
	}
	for _, wc := range s.workers {
		wc.arena.reset()
	}
}

// Shutdown signals every spawned worker to exit its loop, joins them,
// and releases the scheduler's arenas and deques so it is inert and
// collectible afterward. Behavior is undefined if jobs are still in
// flight: the caller must quiesce (Wait on every outstanding root)
// first.
func (s *Scheduler) Shutdown() {
	s.shutdown.Store(true)
	s.wg.Wait()

	for _, wc := range s.workers {
		wc.deque = nil
		wc.arena = nil
	}
	if s.tracingEnabled {
		s.tracer.Close()
	}
	s.hooks.Close()
}

