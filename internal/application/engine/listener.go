package engine

import (
	"context"
	"log/slog"

	"github.com/alejandrodnm/runwatch/internal/domain"
)

// listenRun consumes the push stream for a run and feeds each decoded event
// into apply. The stream is a fast hint, never authoritative: if the
// subscription cannot open or drops mid-run, the loop just ends and the
// poller keeps resolving state on its own.
func (e *Engine) listenRun(ctx context.Context, runID string) {
	ch, err := e.events.StreamEvents(ctx, runID)
	if err != nil {
		slog.Debug("engine: push stream unavailable, poller remains authoritative",
			"run_id", runID, "err", err)
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				// stream ended: señal, no fallo del run
				if ctx.Err() == nil {
					mtxStreamDrops.Inc()
					slog.Debug("engine: push stream ended", "run_id", runID)
				}
				return
			}
			switch ev.Kind {
			case domain.EventRunStatus:
				snap, observed := e.apply(update{
					source:    "push",
					runID:     ev.RunID,
					status:    ev.Status,
					hasStatus: true,
				})
				if observed && snap.Status.Terminal() {
					return
				}
			case domain.EventStepUpdate:
				e.apply(update{source: "push", runID: ev.RunID, step: ev.Step})
			}
		}
	}
}
