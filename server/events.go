package main

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

type Event struct {
	Type    string `json:"type"`
	Entity  string `json:"entity,omitempty"`
	BoardID string `json:"board_id"`
	ListID  string `json:"list_id,omitempty"`
	Payload any    `json:"payload,omitempty"`
}

// EventBus fans board events out to SSE subscribers of that board.
type EventBus struct {
	log  *slog.Logger
	mu   sync.RWMutex
	subs map[string]map[chan []byte]struct{}
}

func NewEventBus(log *slog.Logger) *EventBus {
	return &EventBus{log: log, subs: make(map[string]map[chan []byte]struct{})}
}

func (b *EventBus) Subscribe(boardID string) (ch chan []byte, cancel func()) {
	ch = make(chan []byte, 16)
	b.mu.Lock()
	if b.subs[boardID] == nil {
		b.subs[boardID] = make(map[chan []byte]struct{})
	}
	b.subs[boardID][ch] = struct{}{}
	b.mu.Unlock()
	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			if subs, ok := b.subs[boardID]; ok {
				delete(subs, ch)
				if len(subs) == 0 {
					delete(b.subs, boardID)
				}
			}
			b.mu.Unlock()
			close(ch)
		})
	}
}

func (b *EventBus) Publish(ev Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		b.log.Warn("encode event", "type", ev.Type, "err", err)
		return
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subs[ev.BoardID] {
		select {
		case ch <- data:
		default:
			b.log.Debug("drop event for slow subscriber", "type", ev.Type, "board", ev.BoardID)
		}
	}
}

func (b *EventBus) subscribers(boardID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[boardID])
}

// ServeSSE streams one board's events until the client goes away.
func (b *EventBus) ServeSSE(w http.ResponseWriter, r *http.Request, boardID string) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, 500, "stream unsupported")
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch, cancel := b.Subscribe(boardID)
	defer cancel()
	b.log.Debug("event stream opened", "board", boardID, "subscribers", b.subscribers(boardID))

	_, _ = w.Write([]byte(": connected\n\n"))
	flusher.Flush()

	ticker := time.NewTicker(25 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			_, _ = w.Write([]byte(": ping\n\n"))
			flusher.Flush()
		case msg, ok := <-ch:
			if !ok {
				return
			}
			_, _ = w.Write([]byte("data: "))
			_, _ = w.Write(msg)
			_, _ = w.Write([]byte("\n\n"))
			flusher.Flush()
		}
	}
}
