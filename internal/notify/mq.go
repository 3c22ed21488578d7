package notify

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"
)

// RoutingKeyPrefix prefixes the event type on the broker, e.g.
// "notify.email_fetched". The server binds its relay queue to "notify.#".
const RoutingKeyPrefix = "notify."

// BrokerPublisher is satisfied by *mq.Publisher.
type BrokerPublisher interface {
	PublishWithContext(ctx context.Context, routingKey string, payload any) error
}

// MQPublisher forwards events to the broker so that a process without
// stream clients (the worker) can reach the ones connected to the server.
type MQPublisher struct {
	broker BrokerPublisher
	logger *zap.Logger
}

func NewMQPublisher(broker BrokerPublisher, logger *zap.Logger) *MQPublisher {
	return &MQPublisher{broker: broker, logger: logger}
}

func (p *MQPublisher) Publish(ctx context.Context, evt Event) {
	if err := p.broker.PublishWithContext(ctx, RoutingKeyPrefix+string(evt.Type), evt); err != nil {
		p.logger.Warn("Failed to forward event to broker",
			zap.String("event_type", string(evt.Type)),
			zap.Error(err),
		)
	}
}

// Relay turns broker messages back into hub events.
type Relay struct {
	target Publisher
}

func NewRelay(target Publisher) *Relay {
	return &Relay{target: target}
}

type wireEvent struct {
	Type      EventType       `json:"type"`
	Data      json.RawMessage `json:"data"`
	Timestamp time.Time       `json:"timestamp"`
}

// Handle is an mq.MessageHandler. Malformed messages are acked and dropped;
// redelivering them would not make them valid.
func (r *Relay) Handle(ctx context.Context, data json.RawMessage) error {
	var wire wireEvent
	if err := json.Unmarshal(data, &wire); err != nil || wire.Type == "" {
		return nil
	}
	r.target.Publish(ctx, Event{Type: wire.Type, Data: wire.Data, Timestamp: wire.Timestamp})
	return nil
}
