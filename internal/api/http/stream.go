package apihttp

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"meter-insights/internal/eventing"
)

type streamMessage struct {
	name    string
	payload []byte
}

// SSEBroker fans out pipeline messages to connected clients.
type SSEBroker struct {
	mu      sync.Mutex
	clients map[chan streamMessage]struct{}
}

// NewSSEBroker constructs a broker.
func NewSSEBroker() *SSEBroker {
	return &SSEBroker{clients: make(map[chan streamMessage]struct{})}
}

// Attach forwards events, incident changes and work orders from bus.
func (b *SSEBroker) Attach(bus eventing.EventBus) {
	eventing.SubscribeTo(bus, func(_ context.Context, msg eventing.EventClassified) error {
		b.broadcast("event", msg.Event)
		return nil
	})
	eventing.SubscribeTo(bus, func(_ context.Context, msg eventing.IncidentOpened) error {
		b.broadcast("incident", msg.Incident)
		return nil
	})
	eventing.SubscribeTo(bus, func(_ context.Context, msg eventing.IncidentExtended) error {
		b.broadcast("incident", msg.Incident)
		return nil
	})
	eventing.SubscribeTo(bus, func(_ context.Context, msg eventing.IncidentClosed) error {
		b.broadcast("incident", msg.Incident)
		return nil
	})
	eventing.SubscribeTo(bus, func(_ context.Context, msg eventing.WorkOrderIssued) error {
		b.broadcast("workorder", msg.Order)
		return nil
	})
	eventing.SubscribeTo(bus, func(_ context.Context, msg eventing.WorkOrderRevised) error {
		b.broadcast("workorder", msg.Order)
		return nil
	})
}

// subscribe registers a new client channel.
func (b *SSEBroker) subscribe() chan streamMessage {
	if b == nil {
		return nil
	}
	ch := make(chan streamMessage, 16)
	b.mu.Lock()
	b.clients[ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

// unsubscribe removes a client channel.
func (b *SSEBroker) unsubscribe(ch chan streamMessage) {
	if b == nil || ch == nil {
		return
	}
	b.mu.Lock()
	delete(b.clients, ch)
	b.mu.Unlock()
	close(ch)
}

// Clients returns the number of connected clients.
func (b *SSEBroker) Clients() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.clients)
}

// Slow clients drop messages instead of blocking the pipeline.
func (b *SSEBroker) broadcast(name string, value any) {
	payload, err := json.Marshal(value)
	if err != nil {
		return
	}
	msg := streamMessage{name: name, payload: payload}
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.clients {
		select {
		case ch <- msg:
		default:
		}
	}
}

// StreamHandler serves the SSE stream.
type StreamHandler struct {
	broker *SSEBroker
}

// NewStreamHandler constructs a stream handler.
func NewStreamHandler(broker *SSEBroker) *StreamHandler {
	return &StreamHandler{broker: broker}
}

// ServeHTTP handles GET /api/v1/stream.
func (h *StreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if h == nil || h.broker == nil {
		http.Error(w, "stream not ready", http.StatusServiceUnavailable)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "stream unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch := h.broker.subscribe()
	defer h.broker.unsubscribe(ch)

	_, _ = w.Write([]byte("event: ready\ndata: {}\n\n"))
	flusher.Flush()

	for {
		select {
		case msg := <-ch:
			_, _ = w.Write([]byte("event: " + msg.name + "\n"))
			_, _ = w.Write([]byte("data: "))
			_, _ = w.Write(msg.payload)
			_, _ = w.Write([]byte("\n\n"))
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}
