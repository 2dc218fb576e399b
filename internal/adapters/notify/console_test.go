package notify_test

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/runwatch/internal/adapters/notify"
	"github.com/alejandrodnm/runwatch/internal/domain"
)

func makeRun(status domain.RunStatus) domain.Run {
	return domain.Run{
		ID:     "run-abc123def456",
		Status: status,
		Steps: []domain.Step{
			{ID: "s1", Name: "parse command", Status: domain.StepDone, Seq: 1, Duration: 120 * time.Millisecond},
			{ID: "s2", Name: "route order", Status: domain.StepRunning, Seq: 2},
			{ID: "s3", Name: "confirm fill", Status: domain.StepPending, Seq: 3},
		},
	}
}

func TestConsole_NotifyRun_Compact(t *testing.T) {
	var buf bytes.Buffer
	n := notify.NewConsoleWriter(&buf, false)

	require.NoError(t, n.NotifyRun(context.Background(), makeRun(domain.RunRunning)))

	out := buf.String()
	assert.Contains(t, out, "RUNNING")
	assert.Contains(t, out, "1/3 steps")
	assert.Contains(t, out, "route order")
}

func TestConsole_NotifyRun_Table(t *testing.T) {
	var buf bytes.Buffer
	n := notify.NewConsoleWriter(&buf, true)

	require.NoError(t, n.NotifyRun(context.Background(), makeRun(domain.RunRunning)))

	out := buf.String()
	assert.Contains(t, out, "parse command")
	assert.Contains(t, out, "route order")
	assert.Contains(t, out, "confirm fill")
	assert.Contains(t, out, "120ms")
}

func TestConsole_NotifyFill_Filled(t *testing.T) {
	var buf bytes.Buffer
	n := notify.NewConsoleWriter(&buf, false)

	require.NoError(t, n.NotifyFill(context.Background(), domain.FillOutcome{
		OrderID: "o1",
		State:   domain.WatchFilled,
		Fill:    domain.Fill{FilledQty: 10, AvgFillPrice: 187.5},
		Elapsed: 2 * time.Second,
	}))

	out := buf.String()
	assert.Contains(t, out, "FILLED")
	assert.Contains(t, out, "10.00")
	assert.Contains(t, out, "187.50")
	assert.NotContains(t, out, "not confirmed")
}

func TestConsole_NotifyFill_Timeout(t *testing.T) {
	var buf bytes.Buffer
	n := notify.NewConsoleWriter(&buf, false)

	require.NoError(t, n.NotifyFill(context.Background(), domain.FillOutcome{
		OrderID: "o1",
		State:   domain.WatchTimedOut,
		Elapsed: time.Minute,
	}))

	out := buf.String()
	assert.Contains(t, out, "not confirmed after 1m0s")
	assert.NotContains(t, out, "FILLED")
}

func TestConsole_NotifyFill_LateConfirmKeepsTimeout(t *testing.T) {
	var buf bytes.Buffer
	n := notify.NewConsoleWriter(&buf, false)

	ctx := context.Background()
	require.NoError(t, n.NotifyFill(ctx, domain.FillOutcome{
		OrderID: "o1", State: domain.WatchTimedOut, Elapsed: time.Minute,
	}))
	require.NoError(t, n.NotifyFill(ctx, domain.FillOutcome{
		OrderID: "o1", State: domain.WatchTimedOut, LateConfirm: true,
		Fill: domain.Fill{FilledQty: 10, AvgFillPrice: 187.5},
	}))

	out := buf.String()
	// ambos hechos visibles: el timeout no se retracta
	assert.Contains(t, out, "not confirmed")
	assert.Contains(t, out, "also confirmed in provider app")
	assert.Contains(t, out, "timeout stands")
}
