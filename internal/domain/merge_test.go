package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// --- MergeStatus ---

func TestMergeStatus_FirstObservation(t *testing.T) {
	assert.Equal(t, RunRunning, MergeStatus("", false, RunRunning))
	assert.Equal(t, RunFailed, MergeStatus("", false, RunFailed))
}

func TestMergeStatus_TerminalLock(t *testing.T) {
	// una vez FAILED, nada lo mueve
	for _, incoming := range []RunStatus{RunCreated, RunRunning, RunPaused, RunCompleted} {
		assert.Equal(t, RunFailed, MergeStatus(RunFailed, true, incoming), "incoming=%s", incoming)
	}
	for _, incoming := range []RunStatus{RunCreated, RunRunning, RunPaused, RunFailed} {
		assert.Equal(t, RunCompleted, MergeStatus(RunCompleted, true, incoming), "incoming=%s", incoming)
	}
}

func TestMergeStatus_TerminalWinsOverInFlight(t *testing.T) {
	assert.Equal(t, RunCompleted, MergeStatus(RunRunning, true, RunCompleted))
	assert.Equal(t, RunFailed, MergeStatus(RunPaused, true, RunFailed))
	// incluso saltándose la tabla: CREATED → COMPLETED no es adyacente
	assert.Equal(t, RunCompleted, MergeStatus(RunCreated, true, RunCompleted))
}

func TestMergeStatus_IllegalNonTerminalIgnored(t *testing.T) {
	assert.Equal(t, RunPaused, MergeStatus(RunPaused, true, RunCreated))
	assert.Equal(t, RunRunning, MergeStatus(RunRunning, true, RunCreated))
	assert.Equal(t, RunCreated, MergeStatus(RunCreated, true, RunPaused))
}

func TestMergeStatus_LegalTransitions(t *testing.T) {
	assert.Equal(t, RunRunning, MergeStatus(RunCreated, true, RunRunning))
	assert.Equal(t, RunPaused, MergeStatus(RunRunning, true, RunPaused))
	assert.Equal(t, RunRunning, MergeStatus(RunPaused, true, RunRunning))
}

// --- Merge (map form) ---

func TestMerge_DuplicateDeliveryIdempotent(t *testing.T) {
	current := RunStatusMap{"r1": RunRunning}
	incoming := RunStatusMap{"r1": RunCompleted}

	once := Merge(current, incoming)
	twice := Merge(once, incoming)

	assert.Equal(t, RunCompleted, once["r1"])
	assert.Equal(t, once, twice)
}

func TestMerge_DoesNotMutateInputs(t *testing.T) {
	current := RunStatusMap{"r1": RunRunning}
	incoming := RunStatusMap{"r1": RunFailed, "r2": RunCreated}

	out := Merge(current, incoming)

	assert.Equal(t, RunRunning, current["r1"])
	assert.Equal(t, RunFailed, out["r1"])
	assert.Equal(t, RunCreated, out["r2"])
}

func TestMerge_StaleSignalAfterResolution(t *testing.T) {
	// el poll resolvió FAILED; llega un push RUNNING rezagado
	current := RunStatusMap{"r1": RunFailed}
	out := Merge(current, RunStatusMap{"r1": RunRunning})
	assert.Equal(t, RunFailed, out["r1"])
}

// --- FlushSteps ---

func TestFlushSteps_FailedRun(t *testing.T) {
	steps := []Step{
		{ID: "a", Status: StepDone},
		{ID: "b", Status: StepRunning},
		{ID: "c", Status: StepPending},
	}

	flushed := FlushSteps(steps, RunFailed)

	assert.Equal(t, StepDone, flushed[0].Status)
	assert.Equal(t, StepFailed, flushed[1].Status)
	assert.Equal(t, StepFailed, flushed[2].Status)
}

func TestFlushSteps_CompletedRun(t *testing.T) {
	steps := []Step{
		{ID: "a", Status: StepFailed},
		{ID: "b", Status: StepRunning},
	}

	flushed := FlushSteps(steps, RunCompleted)

	// un step ya failed no se reescribe a done
	assert.Equal(t, StepFailed, flushed[0].Status)
	assert.Equal(t, StepDone, flushed[1].Status)
}

func TestFlushSteps_Idempotent(t *testing.T) {
	steps := []Step{
		{ID: "a", Status: StepDone},
		{ID: "b", Status: StepRunning},
		{ID: "c", Status: StepPending},
	}

	once := FlushSteps(steps, RunFailed)
	twice := FlushSteps(once, RunFailed)

	assert.Equal(t, once, twice)
}

func TestFlushSteps_NonTerminalPassthrough(t *testing.T) {
	steps := []Step{{ID: "a", Status: StepRunning}}
	assert.Equal(t, steps, FlushSteps(steps, RunRunning))
}

func TestFlushSteps_DoesNotMutateInput(t *testing.T) {
	steps := []Step{{ID: "a", Status: StepRunning}}
	_ = FlushSteps(steps, RunFailed)
	assert.Equal(t, StepRunning, steps[0].Status)
}

// --- Run helpers ---

func TestRun_Outcome(t *testing.T) {
	r := Run{
		ID:     "r1",
		Status: RunFailed,
		Steps: []Step{
			{Status: StepDone},
			{Status: StepFailed},
			{Status: StepFailed},
		},
	}
	out := r.Outcome(r.Updated)
	assert.Equal(t, 3, out.StepsTotal)
	assert.Equal(t, 2, out.StepsFailed)
	assert.Equal(t, RunFailed, out.Status)
}

func TestRun_CloneIsDeep(t *testing.T) {
	r := Run{ID: "r1", Steps: []Step{{ID: "a", Status: StepRunning}}}
	c := r.Clone()
	c.Steps[0].Status = StepDone
	assert.Equal(t, StepRunning, r.Steps[0].Status)
}

func TestFill_Filled(t *testing.T) {
	assert.False(t, Fill{Status: FillPending}.Filled())
	assert.True(t, Fill{Status: FillFilled}.Filled())
	assert.True(t, Fill{Status: FillPending, Confirmed: true}.Filled())
	assert.True(t, Fill{Status: FillPending, FilledQty: 10}.Filled())
}
