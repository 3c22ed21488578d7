package handler

import (
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"phishbox/internal/notify"
)

// Subscriber is implemented by notify.Hub.
type Subscriber interface {
	Subscribe() (<-chan notify.Event, func())
}

type EventsHandler struct {
	hub       Subscriber
	keepAlive time.Duration
}

func NewEventsHandler(hub Subscriber, keepAlive time.Duration) *EventsHandler {
	return &EventsHandler{hub: hub, keepAlive: keepAlive}
}

// Stream handles GET /events. Each connection gets only the events
// published while it is open.
func (h *EventsHandler) Stream(c *gin.Context) {
	events, cancel := h.hub.Subscribe()
	defer cancel()

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	ticker := time.NewTicker(h.keepAlive)
	defer ticker.Stop()

	c.SSEvent("connected", gin.H{"timestamp": time.Now().UTC()})
	c.Writer.Flush()

	c.Stream(func(w io.Writer) bool {
		select {
		case evt, ok := <-events:
			if !ok {
				return false
			}
			c.SSEvent(string(evt.Type), evt)
			return true
		case <-ticker.C:
			c.SSEvent("ping", time.Now().UTC().Unix())
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}
