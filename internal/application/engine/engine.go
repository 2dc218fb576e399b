package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/alejandrodnm/runwatch/internal/domain"
	"github.com/alejandrodnm/runwatch/internal/ports"
)

const (
	defaultPollInterval = 2 * time.Second
	defaultFillInterval = 500 * time.Millisecond
	defaultFillTimeout  = 60 * time.Second

	subBuffer = 16
)

// Config holds the engine's timing knobs. Zero values take the defaults.
type Config struct {
	PollInterval time.Duration
	FillInterval time.Duration
	FillTimeout  time.Duration
}

// Engine reconciles the three status feeds (push stream, status poll, fill
// poll) into one monotonic view per run. It is the single writer of that
// view: every update from any producer goes through apply, serialized by a
// mutex, so observers can never see a step still running under a failed run.
type Engine struct {
	status ports.StatusProvider
	events ports.EventSource // nil → solo poll
	fills  ports.FillProvider
	store  ports.RunStorage // nil → sin historial

	cfg Config

	mu   sync.Mutex
	runs map[string]*runEntry
}

// runEntry is the cached view of one actively observed run.
type runEntry struct {
	run     domain.Run
	known   bool // status observado al menos una vez
	cancel  context.CancelFunc
	subs    map[int]chan domain.Run
	nextSub int
}

// New creates the reconciliation engine. events and store may be nil.
func New(status ports.StatusProvider, events ports.EventSource, fills ports.FillProvider, store ports.RunStorage, cfg Config) *Engine {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.FillInterval <= 0 {
		cfg.FillInterval = defaultFillInterval
	}
	if cfg.FillTimeout <= 0 {
		cfg.FillTimeout = defaultFillTimeout
	}
	return &Engine{
		status: status,
		events: events,
		fills:  fills,
		store:  store,
		cfg:    cfg,
		runs:   make(map[string]*runEntry),
	}
}

// Subscribe starts observing a run and returns a snapshot stream plus a
// cancel func. The first observer starts the poller and the push listener;
// when the last observer cancels, both stop and the cache entry is dropped.
// Snapshots are deep copies: observers can hold them across updates.
func (e *Engine) Subscribe(runID string) (<-chan domain.Run, func()) {
	e.mu.Lock()

	entry, ok := e.runs[runID]
	if !ok {
		runCtx, cancel := context.WithCancel(context.Background())
		entry = &runEntry{
			run:    domain.Run{ID: runID},
			cancel: cancel,
			subs:   make(map[int]chan domain.Run),
		}
		e.runs[runID] = entry
		go e.pollRun(runCtx, runID)
		if e.events != nil {
			go e.listenRun(runCtx, runID)
		}
	}

	id := entry.nextSub
	entry.nextSub++
	ch := make(chan domain.Run, subBuffer)
	entry.subs[id] = ch

	if entry.known {
		ch <- entry.run.Clone()
	}
	e.mu.Unlock()

	var once sync.Once
	cancelSub := func() {
		once.Do(func() {
			e.mu.Lock()
			defer e.mu.Unlock()
			cur, ok := e.runs[runID]
			if !ok || cur != entry {
				return
			}
			delete(cur.subs, id)
			close(ch)
			if len(cur.subs) == 0 {
				cur.cancel()
				delete(e.runs, runID)
			}
		})
	}
	return ch, cancelSub
}

// Snapshot returns the current merged view of a run, if observed.
func (e *Engine) Snapshot(runID string) (domain.Run, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	entry, ok := e.runs[runID]
	if !ok || !entry.known {
		return domain.Run{}, false
	}
	return entry.run.Clone(), true
}

// update is one partial observation from any producer.
type update struct {
	source    string // "poll" | "push"
	runID     string
	status    domain.RunStatus
	hasStatus bool
	steps     []domain.Step // snapshot completo (poll)
	step      *domain.Step  // un step suelto (push)
}

// apply is the serialized merge-and-flush step: the only place the cached
// view mutates. Returns the resulting snapshot and whether the run id is
// under observation at all.
func (e *Engine) apply(upd update) (domain.Run, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	entry, ok := e.runs[upd.runID]
	if !ok {
		// nadie observa este run: descartar sin error
		return domain.Run{}, false
	}

	wasTerminal := entry.known && entry.run.Status.Terminal()

	if upd.hasStatus {
		next := domain.MergeStatus(entry.run.Status, entry.known, upd.status)
		switch {
		case !entry.known:
			mtxUpdates.WithLabelValues(upd.source, "first").Inc()
		case next != entry.run.Status:
			mtxUpdates.WithLabelValues(upd.source, "applied").Inc()
		case upd.status != entry.run.Status:
			// señal stale/fuera de orden: descarte por diseño, no error
			mtxUpdates.WithLabelValues(upd.source, "discarded").Inc()
		default:
			mtxUpdates.WithLabelValues(upd.source, "duplicate").Inc()
		}
		entry.run.Status = next
		entry.known = true
	}

	// Los steps de un run terminal ya fueron flusheados; no se tocan más.
	if !wasTerminal {
		if upd.steps != nil {
			entry.run.Steps = mergeStepSnapshot(entry.run.Steps, upd.steps)
		}
		if upd.step != nil {
			entry.run.Steps = upsertStep(entry.run.Steps, *upd.step)
		}
	}

	entry.run.Steps = domain.FlushSteps(entry.run.Steps, entry.run.Status)
	entry.run.Updated = time.Now().UTC()

	snap := entry.run.Clone()
	for _, sub := range entry.subs {
		select {
		case sub <- snap:
		default:
			// observer lento: pierde un snapshot intermedio, el siguiente
			// lo pone al día
		}
	}

	if !wasTerminal && entry.run.Status.Terminal() {
		mtxRunsResolved.WithLabelValues(string(entry.run.Status)).Inc()
		entry.cancel() // para el poller y cierra la suscripción push
		e.recordRunOutcome(snap)
	}

	return snap, true
}

// mergeStepSnapshot reconciles a full step list from a poll against the
// current one. Steps already in a terminal status keep it; everything else
// takes the incoming value. New steps are appended.
func mergeStepSnapshot(current, incoming []domain.Step) []domain.Step {
	out := make([]domain.Step, len(current))
	copy(out, current)
	for _, st := range incoming {
		out = upsertStep(out, st)
	}
	return out
}

// upsertStep inserts or updates one step, preserving terminal step statuses.
func upsertStep(steps []domain.Step, st domain.Step) []domain.Step {
	for i := range steps {
		if steps[i].ID == st.ID {
			if steps[i].Status.Terminal() {
				// done/failed es final para el step; solo refrescar metadata
				st.Status = steps[i].Status
			}
			steps[i] = st
			return steps
		}
	}
	return append(steps, st)
}

func (e *Engine) recordRunOutcome(run domain.Run) {
	if e.store == nil {
		return
	}
	outcome := run.Outcome(run.Updated)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := e.store.SaveRunOutcome(ctx, outcome); err != nil {
			slog.Warn("engine: error saving run outcome", "run_id", run.ID, "err", err)
		}
	}()
}
