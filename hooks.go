package jobsystem

import (
	"context"
	"time"

	"github.com/zoobzio/hookz"
)

// Hook event keys, following the pipz hookz.Key("...") naming convention
// (see retry.go's RetryEventAttempt/RetryEventSuccess/RetryEventExhausted).
const (
	EventJobFinished = hookz.Key("job.finished")
)

// JobFinishedEvent is emitted from finish when a job's unfinished count
// reaches zero, letting a host observe completions as an N-listener
// fan-out instead of draining a dedicated results channel.
type JobFinishedEvent struct {
	Handle     Handle
	FunctionID uint16
	Worker     int
	Finished   time.Time
}

// OnJobFinished registers a handler invoked whenever any job in this
// scheduler's current phase finishes (its unfinished count reaches
// zero). It returns an error if the hook could not be registered.
func (s *Scheduler) OnJobFinished(handler func(context.Context, JobFinishedEvent) error) error {
	_, err := s.hooks.Hook(EventJobFinished, handler)
	return err
}

func (s *Scheduler) emitJobFinished(ctx context.Context, ev JobFinishedEvent) {
	if s.hooks.ListenerCount(EventJobFinished) == 0 {
		return
	}
	ev.Finished = time.Now()
	_ = s.hooks.Emit(ctx, EventJobFinished, ev) //nolint:errcheck
}
