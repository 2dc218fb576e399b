package ports

import (
	"context"

	"github.com/alejandrodnm/runwatch/internal/domain"
)

// StatusProvider fetches the authoritative run snapshot. It is the source of
// record for terminal detection; the push stream is only a faster hint.
type StatusProvider interface {
	RunStatus(ctx context.Context, runID string) (domain.Run, error)
}

// EventSource opens the push subscription for a run. The returned channel
// yields decoded events in per-connection order and is closed when the
// stream ends for any reason (caller cancellation, terminal run, connection
// loss). A closed channel carries no verdict about the run itself.
type EventSource interface {
	StreamEvents(ctx context.Context, runID string) (<-chan domain.RunEvent, error)
}

// FillProvider polls the fill status of a single order.
type FillProvider interface {
	FillStatus(ctx context.Context, orderID string) (domain.Fill, error)
}
