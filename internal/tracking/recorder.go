package tracking

import (
	"context"
	"maps"
	"sync"
)

// LogCall is one Log call seen by a Recorder.
type LogCall struct {
	Step    int
	Metrics map[string]float64
}

// Recorder is an in-memory Tracker. Set the Err fields to make the matching
// call fail.
type Recorder struct {
	mu sync.Mutex

	InitErr   error
	LogErr    error
	FinishErr error

	inits    []RunInfo
	logs     []LogCall
	finishes []bool
}

// NewRecorder returns an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) Init(_ context.Context, info RunInfo) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.inits = append(r.inits, info)
	return r.InitErr
}

func (r *Recorder) Log(_ context.Context, step int, metrics map[string]float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logs = append(r.logs, LogCall{Step: step, Metrics: maps.Clone(metrics)})
	return r.LogErr
}

func (r *Recorder) Finish(_ context.Context, failed bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.finishes = append(r.finishes, failed)
	return r.FinishErr
}

// Inits returns the RunInfo of every Init call.
func (r *Recorder) Inits() []RunInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]RunInfo(nil), r.inits...)
}

// Logs returns every Log call in order.
func (r *Recorder) Logs() []LogCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]LogCall(nil), r.logs...)
}

// Finishes returns the failed flag of every Finish call.
func (r *Recorder) Finishes() []bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]bool(nil), r.finishes...)
}

// Series returns step → value for one metric across all Log calls.
func (r *Recorder) Series(name string) map[int]float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[int]float64)
	for _, c := range r.logs {
		if v, ok := c.Metrics[name]; ok {
			out[c.Step] = v
		}
	}
	return out
}
