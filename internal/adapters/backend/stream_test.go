package backend

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/runwatch/internal/domain"
)

var upgrader = websocket.Upgrader{}

// newStreamServer levanta un server websocket que manda los frames dados y
// luego cierra la conexión.
func newStreamServer(t *testing.T, frames []string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()
		for _, f := range frames {
			require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(f)))
		}
	}))
}

func collectEvents(t *testing.T, ch <-chan domain.RunEvent, want int) []domain.RunEvent {
	t.Helper()
	var got []domain.RunEvent
	timeout := time.After(3 * time.Second)
	for len(got) < want {
		select {
		case ev, ok := <-ch:
			if !ok {
				return got
			}
			got = append(got, ev)
		case <-timeout:
			t.Fatalf("timed out waiting for events, got %d of %d", len(got), want)
		}
	}
	return got
}

func TestStream_DecodesKnownFrames(t *testing.T) {
	srv := newStreamServer(t, []string{
		`{"event_type":"step_update","payload":{"run_id":"r1","step":{"id":"s1","name":"parse","status":"running","seq":1}}}`,
		`{"event_type":"run_status","payload":{"run_id":"r1","status":"COMPLETED"}}`,
	})
	defer srv.Close()

	s := NewStream(srv.URL)
	ch, err := s.StreamEvents(context.Background(), "r1")
	require.NoError(t, err)

	events := collectEvents(t, ch, 2)
	require.Len(t, events, 2)

	assert.Equal(t, domain.EventStepUpdate, events[0].Kind)
	require.NotNil(t, events[0].Step)
	assert.Equal(t, "s1", events[0].Step.ID)
	assert.Equal(t, domain.StepRunning, events[0].Step.Status)

	assert.Equal(t, domain.EventRunStatus, events[1].Kind)
	assert.Equal(t, "r1", events[1].RunID)
	assert.Equal(t, domain.RunCompleted, events[1].Status)
}

func TestStream_UnknownFramesDropped(t *testing.T) {
	srv := newStreamServer(t, []string{
		`{"event_type":"heartbeat","payload":{}}`,
		`not even json`,
		`{"event_type":"run_status","payload":{"run_id":"r1","status":"FAILED"}}`,
	})
	defer srv.Close()

	s := NewStream(srv.URL)
	ch, err := s.StreamEvents(context.Background(), "r1")
	require.NoError(t, err)

	events := collectEvents(t, ch, 1)
	require.Len(t, events, 1)
	assert.Equal(t, domain.RunFailed, events[0].Status)
}

func TestStream_ClosesChannelOnDisconnect(t *testing.T) {
	srv := newStreamServer(t, nil) // el server cierra inmediatamente
	defer srv.Close()

	s := NewStream(srv.URL)
	ch, err := s.StreamEvents(context.Background(), "r1")
	require.NoError(t, err)

	select {
	case _, ok := <-ch:
		// desconexión = channel cerrado, sin evento de fallo
		assert.False(t, ok)
	case <-time.After(3 * time.Second):
		t.Fatal("channel not closed after disconnect")
	}
}

func TestStream_SecondSubscriptionReplacesFirst(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()
		<-block
	}))
	defer srv.Close()
	defer close(block)

	s := NewStream(srv.URL)
	first, err := s.StreamEvents(context.Background(), "r1")
	require.NoError(t, err)

	_, err = s.StreamEvents(context.Background(), "r1")
	require.NoError(t, err)

	// abrir la segunda cierra la primera
	select {
	case _, ok := <-first:
		assert.False(t, ok)
	case <-time.After(3 * time.Second):
		t.Fatal("first subscription not closed by second")
	}
}

func TestStream_DialFailureIsStructured(t *testing.T) {
	s := NewStream("http://127.0.0.1:1")
	_, err := s.StreamEvents(context.Background(), "r1")
	require.Error(t, err)

	apiErr, ok := err.(*APIError)
	require.True(t, ok)
	assert.Equal(t, 0, apiErr.Status)
}
