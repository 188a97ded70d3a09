package trainer

import (
	"sync"
	"time"
)

// Progress is a point-in-time view of a run, safe to hand to other
// goroutines.
type Progress struct {
	RunName       string    `json:"run_name,omitempty"`
	Phase         string    `json:"phase"`
	Step          int       `json:"step"`
	StartStep     int       `json:"start_step"`
	MaxSteps      int       `json:"max_steps"`
	TrainLoss     float64   `json:"train_loss,omitempty"`
	LearningRate  float64   `json:"learning_rate,omitempty"`
	ValidLoss     float64   `json:"valid_loss,omitempty"`
	BestValidLoss float64   `json:"best_valid_loss,omitempty"`
	BestStep      int       `json:"best_step,omitempty"`
	StartedAt     time.Time `json:"started_at,omitempty"`
	UpdatedAt     time.Time `json:"updated_at,omitempty"`
}

// Board holds the latest Progress of a run. The loop writes it; a status
// server reads it.
type Board struct {
	mu sync.RWMutex
	p  Progress
}

// NewBoard returns an empty board in the INIT phase.
func NewBoard() *Board {
	return &Board{p: Progress{Phase: PhaseInit.String()}}
}

// Update applies fn to the progress under the lock.
func (b *Board) Update(fn func(p *Progress)) {
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	fn(&b.p)
	b.p.UpdatedAt = time.Now()
}

// Snapshot returns a copy of the current progress.
func (b *Board) Snapshot() Progress {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.p
}
