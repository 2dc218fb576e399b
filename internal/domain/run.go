package domain

import "time"

// RunStatus represents the lifecycle of a command run on the backend.
type RunStatus string

const (
	RunCreated   RunStatus = "CREATED"
	RunRunning   RunStatus = "RUNNING"
	RunPaused    RunStatus = "PAUSED"
	RunCompleted RunStatus = "COMPLETED"
	RunFailed    RunStatus = "FAILED"
)

// Terminal reports whether no further run transition is ever accepted.
func (s RunStatus) Terminal() bool {
	return s == RunCompleted || s == RunFailed
}

// StepStatus is the state of one unit of work inside a run's plan.
type StepStatus string

const (
	StepPending StepStatus = "pending"
	StepRunning StepStatus = "running"
	StepDone    StepStatus = "done"
	StepFailed  StepStatus = "failed"
)

// Terminal reports whether the step can no longer change.
func (s StepStatus) Terminal() bool {
	return s == StepDone || s == StepFailed
}

// Step is one unit of work inside a run's execution plan.
type Step struct {
	ID       string
	Name     string
	Status   StepStatus
	Seq      int           // orden dentro del plan; 0 si el backend no lo manda
	Duration time.Duration // 0 hasta que el backend reporta una duración
}

// Run is the merged, authoritative view of one command execution.
type Run struct {
	ID      string
	Status  RunStatus
	Steps   []Step
	Updated time.Time
}

// Clone returns a deep copy safe to hand to observers.
func (r Run) Clone() Run {
	out := r
	out.Steps = make([]Step, len(r.Steps))
	copy(out.Steps, r.Steps)
	return out
}

// transitions is the legal table for non-terminal → non-terminal moves.
// Terminal statuses never appear as source: they are handled before the
// table is consulted (see Merge).
var transitions = map[RunStatus]map[RunStatus]bool{
	RunCreated: {RunRunning: true, RunFailed: true},
	RunRunning: {RunPaused: true, RunCompleted: true, RunFailed: true},
	RunPaused:  {RunRunning: true, RunCompleted: true, RunFailed: true},
}

// CanTransition reports whether from → to appears in the transition table.
func CanTransition(from, to RunStatus) bool {
	return transitions[from][to]
}

// RunOutcome is the terminal record persisted once a run resolves.
type RunOutcome struct {
	RunID       string
	Status      RunStatus
	StepsTotal  int
	StepsFailed int
	FinishedAt  time.Time
}

// Outcome summarizes a terminal run for storage.
func (r Run) Outcome(finishedAt time.Time) RunOutcome {
	out := RunOutcome{RunID: r.ID, Status: r.Status, StepsTotal: len(r.Steps), FinishedAt: finishedAt}
	for _, st := range r.Steps {
		if st.Status == StepFailed {
			out.StepsFailed++
		}
	}
	return out
}
