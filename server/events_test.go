package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventBusPublish(t *testing.T) {
	t.Parallel()
	bus := NewEventBus(discardLogger())
	ch, cancel := bus.Subscribe("b1")
	other, cancelOther := bus.Subscribe("b2")
	defer cancelOther()

	bus.Publish(Event{Type: "card.created", BoardID: "b1", ListID: "l1"})

	select {
	case msg := <-ch:
		var ev Event
		require.NoError(t, json.Unmarshal(msg, &ev))
		assert.Equal(t, "card.created", ev.Type)
		assert.Equal(t, "l1", ev.ListID)
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}
	assert.Empty(t, other)

	cancel()
	cancel()
	assert.Equal(t, 0, bus.subscribers("b1"))
	_, open := <-ch
	assert.False(t, open)
}

func TestEventBusDropsForSlowSubscriber(t *testing.T) {
	t.Parallel()
	bus := NewEventBus(discardLogger())
	ch, cancel := bus.Subscribe("b1")
	defer cancel()
	for i := 0; i < cap(ch)+5; i++ {
		bus.Publish(Event{Type: "x", BoardID: "b1"})
	}
	assert.Len(t, ch, cap(ch))
}

// sseRecorder is a ResponseRecorder that reports each data frame on frames.
type sseRecorder struct {
	*httptest.ResponseRecorder
	mu     sync.Mutex
	frames chan struct{}
}

func (r *sseRecorder) Write(b []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ResponseRecorder.Write(b)
}

func (r *sseRecorder) Flush() {
	r.mu.Lock()
	hasData := strings.Contains(r.Body.String(), "data: ")
	r.mu.Unlock()
	if hasData {
		select {
		case r.frames <- struct{}{}:
		default:
		}
	}
}

func TestServeSSE(t *testing.T) {
	t.Parallel()
	bus := NewEventBus(discardLogger())
	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/api/boards/b1/events", nil).WithContext(ctx)
	rec := &sseRecorder{ResponseRecorder: httptest.NewRecorder(), frames: make(chan struct{}, 1)}

	done := make(chan struct{})
	go func() {
		bus.ServeSSE(rec, req, "b1")
		close(done)
	}()
	require.Eventually(t, func() bool { return bus.subscribers("b1") == 1 }, time.Second, 5*time.Millisecond)
	bus.Publish(Event{Type: "list.created", BoardID: "b1"})
	select {
	case <-rec.frames:
	case <-time.After(time.Second):
		t.Fatal("no data frame written")
	}
	cancel()
	<-done

	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	body := rec.Body.String()
	assert.True(t, strings.HasPrefix(body, ": connected\n\n"))
	assert.Contains(t, body, `data: {"type":"list.created"`)
	assert.Equal(t, 0, bus.subscribers("b1"))
}
