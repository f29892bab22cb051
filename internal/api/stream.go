package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/zjrosen/milspecs/internal/log"
	"github.com/zjrosen/milspecs/internal/pubsub"
	"github.com/zjrosen/milspecs/internal/spec/registry"
)

// heartbeatInterval keeps idle SSE connections open through proxies.
var heartbeatInterval = 30 * time.Second

// RegistryEvent is one registry change on the events stream.
type RegistryEvent struct {
	Type      string    `json:"type"`
	SpecID    string    `json:"specId"`
	Timestamp time.Time `json:"timestamp"`
}

// StreamRegistryEvents streams plugin registrations and removals.
// GET /api/events
func (h *Handler) StreamRegistryEvents(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	events := h.specs.Registry().Subscribe(ctx)

	streamSSE(h, w, r, events, func(e pubsub.Event[registry.Change]) (string, any) {
		name := eventName(e.Type)
		return name, RegistryEvent{Type: name, SpecID: e.Payload.SpecID, Timestamp: e.Timestamp}
	})
}

// StreamLogs streams log lines as they are written.
// GET /api/logs
func (h *Handler) StreamLogs(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	events := log.Subscribe(ctx)
	if events == nil {
		h.writeError(w, http.StatusServiceUnavailable, "logging_disabled", "logging is not initialized", "")
		return
	}

	streamSSE(h, w, r, events, func(e log.LogEvent) (string, any) {
		return "log", map[string]string{"line": e.Payload}
	})
}

func eventName(t pubsub.EventType) string {
	switch t {
	case pubsub.CreatedEvent:
		return "registered"
	case pubsub.UpdatedEvent:
		return "updated"
	case pubsub.DeletedEvent:
		return "unregistered"
	default:
		return string(t)
	}
}

func streamSSE[T any](h *Handler, w http.ResponseWriter, r *http.Request, events <-chan T, render func(T) (string, any)) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		h.writeError(w, http.StatusInternalServerError, "streaming_unsupported", "Streaming not supported", "")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	_, _ = fmt.Fprintf(w, "event: connected\ndata: {}\n\n")
	flusher.Flush()

	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_, _ = fmt.Fprintf(w, ": heartbeat\n\n")
			flusher.Flush()
		case event, ok := <-events:
			if !ok {
				return
			}
			name, payload := render(event)
			data, err := json.Marshal(payload)
			if err != nil {
				log.Error(log.CatHTTP, "Failed to marshal event", "error", err)
				continue
			}
			_, _ = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", name, data)
			flusher.Flush()
		}
	}
}
