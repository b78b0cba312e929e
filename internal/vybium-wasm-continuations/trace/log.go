package trace

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/vybium/vybium-wasm-continuations/internal/vybium-wasm-continuations/errs"
)

// EventLog is the ordered, immutable step sequence of one execution.
//
// Eids are strictly increasing and start at 1 or later. Gaps are allowed:
// the tracer omits steps inside phantom functions.
type EventLog struct {
	steps []Step
}

// NewEventLog validates steps and takes a private copy of them
func NewEventLog(steps []Step) (*EventLog, error) {
	if len(steps) == 0 {
		return nil, errs.Input("event log is empty")
	}
	if steps[0].Eid == 0 {
		return nil, errs.Input("event log must start at eid >= 1")
	}
	for i := 1; i < len(steps); i++ {
		if steps[i].Eid <= steps[i-1].Eid {
			return nil, errs.Input("eid %d at position %d does not follow eid %d", steps[i].Eid, i, steps[i-1].Eid)
		}
	}
	cp := make([]Step, len(steps))
	copy(cp, steps)
	return &EventLog{steps: cp}, nil
}

// Len returns the number of steps
func (l *EventLog) Len() int {
	return len(l.steps)
}

// At returns the step at position i
func (l *EventLog) At(i int) Step {
	return l.steps[i]
}

// Range returns a copy of steps [from, to)
func (l *EventLog) Range(from, to int) []Step {
	out := make([]Step, to-from)
	copy(out, l.steps[from:to])
	return out
}

// CallReturnOps counts call, call_indirect and return steps in the whole log
func (l *EventLog) CallReturnOps() uint64 {
	var n uint64
	for i := range l.steps {
		k := l.steps[i].Effect.Kind
		if k.IsCall() || k == Return {
			n++
		}
	}
	return n
}

// LoadEventLog reads a JSON array of steps
func LoadEventLog(path string) (*EventLog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errs.Resource(err, "read event log %s", path)
	}
	var steps []Step
	if err := json.Unmarshal(data, &steps); err != nil {
		return nil, errs.Wrap(errs.CodeInvalidInput, err, "parse event log %s", path)
	}
	log, err := NewEventLog(steps)
	if err != nil {
		return nil, fmt.Errorf("event log %s: %w", path, err)
	}
	return log, nil
}
