package jobsystem

import "sync/atomic"

// job is the fixed-size descriptor for a unit of work: a function id, a
// parent handle, an atomic unfinished-descendant count, and an inline
// payload. unfinished starts at 1 (the job itself), is incremented once
// per child created, and is decremented exactly once per job when that
// job's function returns; it reaches zero exactly once.
type job struct {
	unfinished int32 // atomic
	functionID uint16
	parent     Handle
	payload    [DataSize]byte
}

// arena is a worker's private, bump-allocated pool of job records. Only
// the owning worker ever calls allocate; other workers may read a
// resolved *job (functionID, parent, payload) but never allocate from
// someone else's arena.
type arena struct {
	slots [PoolSize]job
	next  int
}

// allocate returns the next free slot in a, encoding its handle against
// workerIdx. It panics with ErrArenaOverflow if the arena is exhausted,
// and with ErrHandleCollision in the one encoding corner case where the
// resulting handle would equal NoneHandle (worker MaxWorkers-1's final
// slot, see DESIGN.md).
func (a *arena) allocate(workerIdx int) (Handle, *job) {
	if a.next >= PoolSize {
		fail(ErrArenaOverflow, "worker %d arena exhausted at %d slots", workerIdx, PoolSize)
	}
	idx := a.next
	a.next++

	h := encodeHandle(workerIdx, idx)
	if h == NoneHandle {
		fail(ErrHandleCollision, "worker %d slot %d encodes to NONE_HANDLE", workerIdx, idx)
	}
	return h, &a.slots[idx]
}

// reset zeroes the bump cursor, invalidating every handle issued in the
// prior phase. Job records themselves are not cleared: callers must
// fully re-initialize any job they create after a reset.
func (a *arena) reset() {
	a.next = 0
}

func (j *job) addUnfinished(delta int32) int32 {
	return atomic.AddInt32(&j.unfinished, delta)
}

func (j *job) loadUnfinished() int32 {
	return atomic.LoadInt32(&j.unfinished)
}
