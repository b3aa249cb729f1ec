package jobsystem

import (
	"encoding/json"
	"io"
	"os"
	"time"
)

// traceKind distinguishes the two trace event phases emitted around a
// job function invocation.
type traceKind uint8

const (
	traceBegin traceKind = iota
	traceEnd
)

// traceRingSize is the number of events each worker's ring buffer holds
// before older events are silently overwritten.
const traceRingSize = 1024

type traceEvent struct {
	at         time.Time
	functionID uint16
	kind       traceKind
}

// traceRing is a per-worker, single-writer ring buffer of trace events.
// Writes happen only on the owning worker inside execute; reads happen
// only from DumpTrace after the phase has quiesced, so no
// synchronization is needed here.
type traceRing struct {
	events [traceRingSize]traceEvent
	count  uint64
}

func (r *traceRing) record(kind traceKind, functionID uint16) {
	r.events[r.count%traceRingSize] = traceEvent{at: time.Now(), functionID: functionID, kind: kind}
	r.count++
}

// chromeEvent is one entry of the Chrome Trace-Event JSON format.
type chromeEvent struct {
	Pid  int    `json:"pid"`
	Tid  int    `json:"tid"`
	Ts   int64  `json:"ts"`
	Ph   string `json:"ph"`
	Cat  string `json:"cat"`
	Name string `json:"name"`
}

type chromeTrace struct {
	TraceEvents []chromeEvent `json:"traceEvents"`
}

// DumpTrace serializes every worker's trace ring into Chrome Trace-Event
// JSON and writes it to w. It must be called from worker 0 after the
// phase has quiesced; events are emitted ordered by worker index, then
// per-worker event index (consumers merge-sort by ts if they need
// global chronological order). If a ring has wrapped, only the events
// that survived the wrap (count, capped at traceRingSize) are emitted.
func (s *Scheduler) DumpTrace(w io.Writer) error {
	if !s.tracingEnabled {
		return &SchedulerError{Kind: ErrTracingDisabled}
	}

	pid := os.Getpid()
	var out chromeTrace

	for _, wc := range s.workers {
		ring := wc.trace
		if ring == nil {
			continue
		}
		n := ring.count
		if n > traceRingSize {
			n = traceRingSize
		}
		for i := uint64(0); i < n; i++ {
			ev := ring.events[i]
			ph := "B"
			if ev.kind == traceEnd {
				ph = "E"
			}
			out.TraceEvents = append(out.TraceEvents, chromeEvent{
				Pid:  pid,
				Tid:  wc.index,
				Ts:   ev.at.UnixMicro(),
				Ph:   ph,
				Cat:  "blink",
				Name: s.funcName(ev.functionID),
			})
		}
	}

	enc := json.NewEncoder(w)
	return enc.Encode(&out)
}

// DumpTraceFile is a convenience wrapper that writes the trace to a file
// at path, creating or truncating it.
func (s *Scheduler) DumpTraceFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return s.DumpTrace(f)
}

func (s *Scheduler) funcName(id uint16) string {
	if int(id) < len(s.funcs) {
		return s.funcs[id].Name
	}
	return "unknown"
}
