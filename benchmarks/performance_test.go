package benchmarks

import (
	"fmt"
	"testing"

	"github.com/go-foundations/jobsystem"
)

func leafJob(_ *jobsystem.WorkerContext, _ jobsystem.Handle, _ []byte) {}

// BenchmarkFanOut measures a fixed 128-child fan-out under a 4-worker
// scheduler: one root job with 128 children, then Wait on the root.
func BenchmarkFanOut(b *testing.B) {
	benchmarkFanOut(b, 4, 128)
}

// BenchmarkWorkerCounts sweeps worker counts over a fixed fan-out size.
func BenchmarkWorkerCounts(b *testing.B) {
	for _, n := range []int{1, 2, 4, 8, 16} {
		b.Run(fmt.Sprintf("Workers_%d", n), func(b *testing.B) {
			benchmarkFanOut(b, n, 128)
		})
	}
}

// BenchmarkFanOutSizes sweeps fan-out width over a fixed 4-worker
// scheduler.
func BenchmarkFanOutSizes(b *testing.B) {
	for _, n := range []int{8, 64, 512, 2048} {
		b.Run(fmt.Sprintf("Children_%d", n), func(b *testing.B) {
			benchmarkFanOut(b, 4, n)
		})
	}
}

func benchmarkFanOut(b *testing.B, numWorkers, numChildren int) {
	table := jobsystem.NewFuncTable()
	leaf := table.Register("leaf", leafJob)
	funcs := table.Build()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		s := jobsystem.Startup(numWorkers, funcs)

		root := s.Create(leaf)
		for j := 0; j < numChildren; j++ {
			child := s.CreateChild(root, leaf)
			s.Submit(child, nil)
		}
		s.Submit(root, nil)
		s.Wait(root)

		s.Shutdown()
	}
}
