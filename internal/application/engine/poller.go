package engine

import (
	"context"
	"log/slog"
	"time"
)

// pollRun fetches the authoritative run snapshot on a fixed interval while
// the run is non-terminal. This loop is the single source of truth for
// "stop watching": upon merging a terminal status it returns and no further
// requests are issued for the run id.
func (e *Engine) pollRun(ctx context.Context, runID string) {
	ticker := time.NewTicker(e.cfg.PollInterval)
	defer ticker.Stop()

	for {
		if done := e.pollOnce(ctx, runID); done {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// pollOnce does one poll + merge. Poll failures are logged and swallowed:
// un poll caído jamás se confunde con fallo del run — se reintenta en el
// siguiente tick.
func (e *Engine) pollOnce(ctx context.Context, runID string) bool {
	run, err := e.status.RunStatus(ctx, runID)
	if err != nil {
		if ctx.Err() != nil {
			return true
		}
		mtxPollFailures.Inc()
		slog.Debug("engine: poll failed, retrying next tick", "run_id", runID, "err", err)
		return false
	}

	snap, observed := e.apply(update{
		source:    "poll",
		runID:     runID,
		status:    run.Status,
		hasStatus: true,
		steps:     run.Steps,
	})
	if !observed {
		return true
	}
	return snap.Status.Terminal()
}
