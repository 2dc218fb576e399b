package backend

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alejandrodnm/runwatch/internal/domain"
)

const (
	streamReadLimit   = 1 << 20 // 1MB por frame es más que suficiente
	streamReadTimeout = 90 * time.Second
	streamPingPeriod  = 20 * time.Second
)

// Stream abre suscripciones push por run. Como máximo una suscripción activa
// por run id: abrir una nueva cierra la anterior primero.
type Stream struct {
	base   string
	dialer *websocket.Dialer

	mu     sync.Mutex
	gen    uint64
	active map[string]activeSub // run id → suscripción vigente
}

// activeSub identifica una suscripción viva; gen distingue la vigente de una
// anterior que todavía está drenando su readLoop.
type activeSub struct {
	gen    uint64
	cancel context.CancelFunc
}

// NewStream crea un EventSource websocket contra el base URL del backend
// (http/https; el esquema se reescribe a ws/wss).
func NewStream(baseURL string) *Stream {
	return &Stream{
		base:   wsBaseURL(baseURL),
		dialer: websocket.DefaultDialer,
		active: make(map[string]activeSub),
	}
}

// StreamEvents implementa ports.EventSource. El channel devuelto entrega los
// eventos decodificados en orden de conexión y se cierra cuando el stream
// termina por cualquier motivo. Una desconexión es "stream ended", nunca un
// veredicto sobre el run: la resolución autoritativa es del poller.
func (s *Stream) StreamEvents(ctx context.Context, runID string) (<-chan domain.RunEvent, error) {
	conn, resp, err := s.dialer.DialContext(ctx, s.base+"/runs/"+runID+"/events", nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, &APIError{Status: 0, Message: "open event stream: " + err.Error()}
	}

	streamCtx, cancel := context.WithCancel(ctx)
	gen := s.replaceActive(runID, cancel)

	conn.SetReadLimit(streamReadLimit)
	conn.SetReadDeadline(time.Now().Add(streamReadTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(streamReadTimeout))
		return nil
	})

	ch := make(chan domain.RunEvent, 64)
	go s.pingLoop(streamCtx, conn)
	go s.readLoop(streamCtx, conn, runID, gen, ch)
	return ch, nil
}

// replaceActive registra la suscripción nueva y cierra la previa si existía.
func (s *Stream) replaceActive(runID string, cancel context.CancelFunc) uint64 {
	s.mu.Lock()
	prev := s.active[runID]
	s.gen++
	gen := s.gen
	s.active[runID] = activeSub{gen: gen, cancel: cancel}
	s.mu.Unlock()
	if prev.cancel != nil {
		slog.Debug("backend: replacing push subscription", "run_id", runID)
		prev.cancel()
	}
	return gen
}

// dropActive borra la entrada solo si seguimos siendo la suscripción vigente.
func (s *Stream) dropActive(runID string, gen uint64) {
	s.mu.Lock()
	if cur, ok := s.active[runID]; ok && cur.gen == gen {
		delete(s.active, runID)
	}
	s.mu.Unlock()
}

func (s *Stream) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(streamPingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			conn.Close()
			return
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (s *Stream) readLoop(ctx context.Context, conn *websocket.Conn, runID string, gen uint64, ch chan<- domain.RunEvent) {
	defer func() {
		conn.Close()
		close(ch)
		s.dropActive(runID, gen)
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			// señal, no fallo: el run no está fallado por perder la conexión
			slog.Debug("backend: event stream ended", "run_id", runID, "err", err)
			return
		}
		conn.SetReadDeadline(time.Now().Add(streamReadTimeout))

		ev := decodeEvent(raw, runID)
		if ev.Kind == domain.EventUnknown {
			continue
		}
		select {
		case ch <- ev:
		case <-ctx.Done():
			return
		}
	}
}

// decodeEvent mapea un frame {event_type, payload} al union de eventos
// conocidos. Lo que no se reconoce sale como EventUnknown y se ignora.
func decodeEvent(raw []byte, runID string) domain.RunEvent {
	var frame eventFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		return domain.RunEvent{Kind: domain.EventUnknown}
	}

	switch frame.EventType {
	case "run_status", "run_completed", "run_failed":
		var p runStatusPayload
		if err := json.Unmarshal(frame.Payload, &p); err != nil || p.Status == "" {
			return domain.RunEvent{Kind: domain.EventUnknown}
		}
		id := p.RunID
		if id == "" {
			id = runID
		}
		return domain.RunEvent{Kind: domain.EventRunStatus, RunID: id, Status: parseRunStatus(p.Status)}
	case "step_update":
		var p stepUpdatePayload
		if err := json.Unmarshal(frame.Payload, &p); err != nil || p.Step.ID == "" {
			return domain.RunEvent{Kind: domain.EventUnknown}
		}
		id := p.RunID
		if id == "" {
			id = runID
		}
		step := p.Step.toDomain()
		return domain.RunEvent{Kind: domain.EventStepUpdate, RunID: id, Step: &step}
	}
	return domain.RunEvent{Kind: domain.EventUnknown}
}

func wsBaseURL(base string) string {
	switch {
	case strings.HasPrefix(base, "https://"):
		return "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		return "ws://" + strings.TrimPrefix(base, "http://")
	}
	return base
}
