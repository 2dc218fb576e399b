package backend

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/alejandrodnm/runwatch/internal/domain"
)

// Wire DTOs for the run backend. Kept separate from domain types so the
// backend can evolve field names without touching the engine.

type runStatusResponse struct {
	RunID  string         `json:"run_id"`
	Status string         `json:"status"`
	Steps  []stepResponse `json:"steps"`
}

type stepResponse struct {
	ID         string  `json:"id"`
	Name       string  `json:"name"`
	Status     string  `json:"status"`
	Seq        int     `json:"seq"`
	DurationMS float64 `json:"duration_ms"`
}

type fillStatusResponse struct {
	OrderID       string  `json:"order_id"`
	Status        string  `json:"status"`
	FilledQty     float64 `json:"filled_qty"`
	AvgFillPrice  float64 `json:"avg_fill_price"`
	FillConfirmed bool    `json:"fill_confirmed"`
}

type executeCommandRequest struct {
	Command string `json:"command"`
}

type executeCommandResponse struct {
	RunID  string `json:"run_id"`
	Status string `json:"status"`
}

// eventFrame is one frame of the push stream: { event_type, payload }.
type eventFrame struct {
	EventType string          `json:"event_type"`
	Payload   json.RawMessage `json:"payload"`
}

type runStatusPayload struct {
	RunID  string `json:"run_id"`
	Status string `json:"status"`
}

type stepUpdatePayload struct {
	RunID string       `json:"run_id"`
	Step  stepResponse `json:"step"`
}

func (r runStatusResponse) toDomain() domain.Run {
	run := domain.Run{
		ID:     r.RunID,
		Status: parseRunStatus(r.Status),
		Steps:  make([]domain.Step, 0, len(r.Steps)),
	}
	for _, s := range r.Steps {
		run.Steps = append(run.Steps, s.toDomain())
	}
	return run
}

func (s stepResponse) toDomain() domain.Step {
	return domain.Step{
		ID:       s.ID,
		Name:     s.Name,
		Status:   parseStepStatus(s.Status),
		Seq:      s.Seq,
		Duration: durationFromMS(s.DurationMS),
	}
}

func (f fillStatusResponse) toDomain() domain.Fill {
	status := domain.FillPending
	if strings.EqualFold(f.Status, string(domain.FillFilled)) {
		status = domain.FillFilled
	}
	return domain.Fill{
		OrderID:      f.OrderID,
		Status:       status,
		FilledQty:    f.FilledQty,
		AvgFillPrice: f.AvgFillPrice,
		Confirmed:    f.FillConfirmed,
	}
}

func durationFromMS(ms float64) time.Duration {
	if ms <= 0 {
		return 0
	}
	return time.Duration(ms * float64(time.Millisecond))
}

// parseRunStatus normaliza el status que manda el backend. Un valor no
// reconocido se trata como RUNNING: el poller lo corregirá en el siguiente
// tick y nunca puede fabricar un terminal falso.
func parseRunStatus(s string) domain.RunStatus {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "CREATED":
		return domain.RunCreated
	case "RUNNING":
		return domain.RunRunning
	case "PAUSED":
		return domain.RunPaused
	case "COMPLETED":
		return domain.RunCompleted
	case "FAILED":
		return domain.RunFailed
	}
	return domain.RunRunning
}

func parseStepStatus(s string) domain.StepStatus {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "running":
		return domain.StepRunning
	case "done":
		return domain.StepDone
	case "failed":
		return domain.StepFailed
	}
	return domain.StepPending
}
