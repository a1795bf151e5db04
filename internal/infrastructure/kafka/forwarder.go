package kafka

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"

	domorder "github.com/shippingkart/backend/internal/domain/order"
	domoutbox "github.com/shippingkart/backend/internal/domain/outbox"
)

const TopicOrderCreated = "shippingkart.order.created"

// Envelope is the versioned wire frame for events leaving the process.
type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	Payload       json.RawMessage `json:"payload"`
}

type orderCreatedPayload struct {
	OrderID    string `json:"order_id"`
	UserID     string `json:"user_id"`
	TotalCents int64  `json:"total_cents"`
	Items      []struct {
		ProductID  string `json:"product_id"`
		Quantity   int    `json:"quantity"`
		PriceCents int64  `json:"price_cents"`
	} `json:"items"`
}

// Forwarder bridges the in-process outbox bus onto a kafka topic. All events
// for one order share a partition key so their relative order is preserved.
type Forwarder struct {
	producer *Producer
	service  string
}

func NewForwarder(producer *Producer, service string) *Forwarder {
	return &Forwarder{producer: producer, service: service}
}

// Attach subscribes the forwarder to the events it exports.
func (f *Forwarder) Attach(sub domoutbox.Subscriber) {
	sub.Subscribe(domorder.EventNameOrderCreated, f.handleOrderCreated)
}

func (f *Forwarder) handleOrderCreated(ctx context.Context, e domoutbox.Event) error {
	_ = ctx
	ev, ok := e.(domorder.CreatedEvent)
	if !ok {
		return nil
	}

	var payload orderCreatedPayload
	payload.OrderID = ev.OrderID
	payload.UserID = ev.UserID
	payload.TotalCents = ev.TotalCents
	for _, it := range ev.Items {
		payload.Items = append(payload.Items, struct {
			ProductID  string `json:"product_id"`
			Quantity   int    `json:"quantity"`
			PriceCents int64  `json:"price_cents"`
		}{it.ProductID, it.Quantity, it.PriceCents})
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	frame, err := json.Marshal(Envelope{
		EventID:       uuid.NewString(),
		EventType:     ev.EventName(),
		EventVersion:  1,
		OccurredAt:    ev.OccurredAt,
		Producer:      f.service,
		CorrelationID: ev.OrderID,
		Payload:       body,
	})
	if err != nil {
		return err
	}

	f.producer.Publish([]byte(ev.OrderID), frame,
		kafkago.Header{Key: "x-event-type", Value: []byte(ev.EventName())},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
	return nil
}
