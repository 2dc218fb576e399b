package notify

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/alejandrodnm/runwatch/internal/domain"
)

// Console implementa ports.Notifier.
type Console struct {
	out   io.Writer
	table bool
}

// NewConsole crea un notificador que escribe a stdout.
func NewConsole(table bool) *Console {
	return &Console{out: os.Stdout, table: table}
}

// NewConsoleWriter crea un notificador para tests.
func NewConsoleWriter(w io.Writer, table bool) *Console {
	return &Console{out: w, table: table}
}

// NotifyRun imprime el snapshot en el modo configurado.
func (c *Console) NotifyRun(_ context.Context, run domain.Run) error {
	if c.table {
		c.printFull(run)
	} else {
		c.printCompact(run)
	}
	return nil
}

// printCompact imprime lo esencial en una línea.
func (c *Console) printCompact(run domain.Run) {
	now := time.Now().Format("15:04:05")
	done, failed := countSteps(run.Steps)

	var sb strings.Builder
	fmt.Fprintf(&sb, "[%s] run %s %s %d/%d steps", now, shortID(run.ID), run.Status, done, len(run.Steps))
	if failed > 0 {
		fmt.Fprintf(&sb, " (%d failed)", failed)
	}
	if cur := currentStep(run.Steps); cur != "" && !run.Status.Terminal() {
		fmt.Fprintf(&sb, " | %s", cur)
	}
	fmt.Fprintln(c.out, sb.String())
}

// printFull imprime la tabla completa de steps.
func (c *Console) printFull(run domain.Run) {
	fmt.Fprintf(c.out, "\nrun %s — %s\n", run.ID, run.Status)

	steps := make([]domain.Step, len(run.Steps))
	copy(steps, run.Steps)
	sort.SliceStable(steps, func(i, j int) bool { return steps[i].Seq < steps[j].Seq })

	table := tablewriter.NewWriter(c.out)
	table.Header("#", "Step", "Status", "Duration")

	for i, st := range steps {
		dur := "-"
		if st.Duration > 0 {
			dur = st.Duration.Round(time.Millisecond).String()
		}
		name := st.Name
		if name == "" {
			name = st.ID
		}
		table.Append(
			fmt.Sprintf("%d", i+1),
			truncate(name, 40),
			statusIcon(st.Status)+" "+string(st.Status),
			dur,
		)
	}
	table.Render()
}

// NotifyFill imprime el banner de la sesión de fill-watch. Uno solo por
// desenlace; un late-confirm es una línea informativa extra, nunca
// reemplaza el banner de timeout ya mostrado.
func (c *Console) NotifyFill(_ context.Context, outcome domain.FillOutcome) error {
	now := time.Now().Format("15:04:05")
	switch {
	case outcome.LateConfirm:
		fmt.Fprintf(c.out, "[%s] i order %s also confirmed in provider app (qty %.2f @ %.2f) — timeout stands\n",
			now, shortID(outcome.OrderID), outcome.Fill.FilledQty, outcome.Fill.AvgFillPrice)
	case outcome.State == domain.WatchFilled:
		fmt.Fprintf(c.out, "[%s] ✓ order %s FILLED (qty %.2f @ %.2f, %s)\n",
			now, shortID(outcome.OrderID), outcome.Fill.FilledQty, outcome.Fill.AvgFillPrice,
			outcome.Elapsed.Round(time.Millisecond))
	case outcome.State == domain.WatchTimedOut:
		fmt.Fprintf(c.out, "[%s] ! order %s not confirmed after %s — check your provider app\n",
			now, shortID(outcome.OrderID), outcome.Elapsed.Round(time.Second))
	}
	return nil
}

func countSteps(steps []domain.Step) (done, failed int) {
	for _, st := range steps {
		switch st.Status {
		case domain.StepDone:
			done++
		case domain.StepFailed:
			failed++
		}
	}
	return done, failed
}

// currentStep devuelve el nombre del primer step en running.
func currentStep(steps []domain.Step) string {
	for _, st := range steps {
		if st.Status == domain.StepRunning {
			if st.Name != "" {
				return st.Name
			}
			return st.ID
		}
	}
	return ""
}

func statusIcon(s domain.StepStatus) string {
	switch s {
	case domain.StepDone:
		return "✓"
	case domain.StepFailed:
		return "✗"
	case domain.StepRunning:
		return "▸"
	}
	return "·"
}

func shortID(id string) string {
	if len(id) <= 12 {
		return id
	}
	return id[:12] + "..."
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
