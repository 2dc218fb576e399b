package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/alejandrodnm/runwatch/internal/domain"
)

// WatchFill polls an order's fill status until it confirms or the deadline
// elapses. The returned channel emits exactly one terminal outcome
// (filled | unconfirmed-timeout) per session, optionally followed by one
// informational late-confirm outcome, and is then closed.
//
// Race rule: si un poll que ya estaba en vuelo vuelve FILLED después de que
// el deadline disparó, el resultado tardío se emite con LateConfirm=true y
// el estado comprometido sigue siendo el timeout — ambos hechos son ciertos
// y ambos se muestran, pero las decisiones automáticas ven TIMED_OUT.
func (e *Engine) WatchFill(ctx context.Context, orderID string) <-chan domain.FillOutcome {
	out := make(chan domain.FillOutcome, 2)
	go e.watchFill(ctx, orderID, out)
	return out
}

type fillPollResult struct {
	fill domain.Fill
	err  error
}

func (e *Engine) watchFill(ctx context.Context, orderID string, out chan<- domain.FillOutcome) {
	defer close(out)

	sessionID := uuid.New().String()
	start := time.Now()

	deadline := time.NewTimer(e.cfg.FillTimeout)
	defer deadline.Stop()
	ticker := time.NewTicker(e.cfg.FillInterval)
	defer ticker.Stop()

	results := make(chan fillPollResult, 1)
	inFlight := false
	poll := func() {
		inFlight = true
		go func() {
			fill, err := e.fills.FillStatus(ctx, orderID)
			results <- fillPollResult{fill: fill, err: err}
		}()
	}
	poll()

	timedOut := false
	for {
		select {
		case <-ctx.Done():
			return

		case <-deadline.C:
			timedOut = true
			outcome := domain.FillOutcome{
				OrderID:   orderID,
				SessionID: sessionID,
				State:     domain.WatchTimedOut,
				Elapsed:   time.Since(start),
			}
			mtxFillWatches.WithLabelValues("timed_out").Inc()
			e.recordFillOutcome(outcome)
			out <- outcome
			if !inFlight {
				return
			}
			// queda un poll en vuelo: esperar su resultado por si el fill
			// se confirmó justo al filo del deadline

		case <-ticker.C:
			if timedOut || inFlight {
				continue
			}
			poll()

		case res := <-results:
			inFlight = false
			if res.err != nil {
				if timedOut {
					return
				}
				slog.Debug("engine: fill poll failed, retrying",
					"order_id", orderID, "err", res.err)
				continue
			}
			if !res.fill.Filled() {
				if timedOut {
					return
				}
				continue
			}

			outcome := domain.FillOutcome{
				OrderID:   orderID,
				SessionID: sessionID,
				Fill:      res.fill,
				Elapsed:   time.Since(start),
			}
			if timedOut {
				// confirmación tardía: informativa, no retracta el timeout
				outcome.State = domain.WatchTimedOut
				outcome.LateConfirm = true
				mtxFillWatches.WithLabelValues("late_confirm").Inc()
			} else {
				outcome.State = domain.WatchFilled
				mtxFillWatches.WithLabelValues("filled").Inc()
			}
			e.recordFillOutcome(outcome)
			out <- outcome
			return
		}
	}
}

func (e *Engine) recordFillOutcome(outcome domain.FillOutcome) {
	if e.store == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := e.store.SaveFillOutcome(ctx, outcome); err != nil {
			slog.Warn("engine: error saving fill outcome",
				"order_id", outcome.OrderID, "err", err)
		}
	}()
}
