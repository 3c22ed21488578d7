package notify

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"phishbox/pkg/metrics"
)

// Hub broadcasts events to every live subscriber. Each subscriber has a
// small delivery buffer; when it is full the event is dropped for that
// subscriber only. Nothing is retained for clients that connect later.
type Hub struct {
	mu         sync.RWMutex
	subs       map[string]chan Event
	bufferSize int
	logger     *zap.Logger
	closed     bool
}

func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		subs:       make(map[string]chan Event),
		bufferSize: 16,
		logger:     logger,
	}
}

// WithBufferSize sets the per-subscriber delivery buffer.
func (h *Hub) WithBufferSize(n int) *Hub {
	h.bufferSize = n
	return h
}

func (h *Hub) Publish(_ context.Context, evt Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.closed {
		return
	}

	for id, ch := range h.subs {
		select {
		case ch <- evt:
		default:
			metrics.SSEDropped.Inc()
			h.logger.Debug("Dropped event for slow subscriber",
				zap.String("subscriber_id", id),
				zap.String("event_type", string(evt.Type)),
			)
		}
	}
}

// Subscribe registers a subscriber. The returned cancel function must be
// called exactly once; it closes the channel.
func (h *Hub) Subscribe() (<-chan Event, func()) {
	id := uuid.NewString()
	ch := make(chan Event, h.bufferSize)

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	h.subs[id] = ch
	h.mu.Unlock()

	metrics.SSEClients.Inc()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			if _, ok := h.subs[id]; ok {
				delete(h.subs, id)
				close(ch)
			}
			h.mu.Unlock()
			metrics.SSEClients.Dec()
		})
	}
}

func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Close disconnects every subscriber.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	h.closed = true
	for id, ch := range h.subs {
		close(ch)
		delete(h.subs, id)
	}
}
