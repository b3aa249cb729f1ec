package jobsystem

import "time"

// Option configures a Scheduler at Startup.
type Option func(*schedOptions)

type schedOptions struct {
	tracing  bool
	randSeed int64
}

func defaultOptions() schedOptions {
	return schedOptions{
		tracing:  false,
		randSeed: time.Now().UnixNano(),
	}
}

// WithTracing enables the per-worker trace ring buffer. Disabled by
// default: tracing costs a write on every execute and most callers
// don't need it.
func WithTracing(enabled bool) Option {
	return func(o *schedOptions) {
		o.tracing = enabled
	}
}

// WithRandSeed fixes the seed used to derive each worker's steal-target
// random source. The steal policy only guarantees liveness, not
// determinism, but a fixed seed makes test runs reproducible.
func WithRandSeed(seed int64) Option {
	return func(o *schedOptions) {
		o.randSeed = seed
	}
}
