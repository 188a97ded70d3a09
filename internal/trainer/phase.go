package trainer

// Phase is the lifecycle phase of a Loop.
type Phase int

const (
	PhaseInit Phase = iota
	PhaseRunning
	PhaseEvaluating
	PhaseDone
	PhaseFailed
)

func (p Phase) String() string {
	switch p {
	case PhaseInit:
		return "INIT"
	case PhaseRunning:
		return "RUNNING"
	case PhaseEvaluating:
		return "EVALUATING"
	case PhaseDone:
		return "DONE"
	case PhaseFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// Stop reasons.
const (
	StopMaxSteps    = "max_steps"
	StopMaxDuration = "max_duration"
	StopInterrupted = "interrupted"
	StopFailed      = "failed"
)
