package domain

// merge.go — núcleo puro de reconciliación de estado.
//
// Los dos productores (stream push y poll) no están sincronizados: pueden
// entregar updates duplicados o fuera de orden. Un merge naive last-write-wins
// reproduce exactamente el bug de "step RUNNING después de run FAILED".
// Las reglas aquí son idempotentes y terminal-preferring: correctas bajo
// cualquier orden de llegada.

// RunStatusMap maps run id → status, the shape both producers deliver.
type RunStatusMap map[string]RunStatus

// MergeStatus resolves one incoming status against the current one.
// hasCurrent is false on first observation, which is accepted as-is.
//
// Rules, in order:
//  1. first observation wins unconditionally
//  2. a terminal current status is final; the incoming update is discarded
//  3. a terminal incoming status always wins, table or no table — the
//     backend's declaration of completion/failure is never blocked client-side
//  4. otherwise only moves present in the transition table are accepted;
//     anything else is treated as a stale duplicate and ignored
func MergeStatus(current RunStatus, hasCurrent bool, incoming RunStatus) RunStatus {
	if !hasCurrent {
		return incoming
	}
	if current.Terminal() {
		return current
	}
	if incoming.Terminal() {
		return incoming
	}
	if CanTransition(current, incoming) {
		return incoming
	}
	return current
}

// Merge applies every entry of incoming onto current and returns a new map.
// Neither argument is mutated.
func Merge(current, incoming RunStatusMap) RunStatusMap {
	out := make(RunStatusMap, len(current)+len(incoming))
	for id, st := range current {
		out[id] = st
	}
	for id, st := range incoming {
		cur, ok := out[id]
		out[id] = MergeStatus(cur, ok, st)
	}
	return out
}

// FlushSteps forces every non-terminal step to the step status matching a
// terminal run outcome: COMPLETED → done, FAILED → failed. Steps already
// done/failed keep their status. For a non-terminal run the steps pass
// through untouched. Re-flushing a flushed slice is a no-op.
func FlushSteps(steps []Step, runStatus RunStatus) []Step {
	if !runStatus.Terminal() {
		return steps
	}
	target := StepDone
	if runStatus == RunFailed {
		target = StepFailed
	}
	out := make([]Step, len(steps))
	for i, st := range steps {
		if !st.Status.Terminal() {
			st.Status = target
		}
		out[i] = st
	}
	return out
}
