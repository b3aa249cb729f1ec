//go:build !jobsystem_lockfree

package jobsystem

import "github.com/go-foundations/jobsystem/internal/deque"

// workerDeque is the deque variant a worker uses: the mutex-guarded
// baseline by default, or the Chase-Lev lock-free variant when built
// with -tags jobsystem_lockfree (deque_lockfree.go).
type workerDeque = deque.Deque[Handle]

func newWorkerDeque(capacity int) *workerDeque {
	return deque.New[Handle](capacity)
}
