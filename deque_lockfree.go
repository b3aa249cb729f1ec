//go:build jobsystem_lockfree

package jobsystem

import "github.com/go-foundations/jobsystem/internal/deque"

// workerDeque selects the Chase-Lev lock-free deque when built with
// -tags jobsystem_lockfree. Same external contract as the mutex-guarded
// default (deque_default.go): single producer at bottom, multi-consumer
// steal at top.
type workerDeque = deque.LockFree[Handle]

func newWorkerDeque(capacity int) *workerDeque {
	return deque.NewLockFree[Handle](capacity)
}
