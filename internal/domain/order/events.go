package order

import "time"

const EventNameOrderCreated = "order.created"

// CreatedEvent is published once per successful checkout.
type CreatedEvent struct {
	OrderID    string
	UserID     string
	Items      []Item
	TotalCents int64
	OccurredAt time.Time
}

func NewCreatedEvent(o *Order) CreatedEvent {
	return CreatedEvent{
		OrderID:    o.ID,
		UserID:     o.UserID,
		Items:      append([]Item(nil), o.Items...),
		TotalCents: o.TotalCents,
		OccurredAt: time.Now().UTC(),
	}
}

func (CreatedEvent) EventName() string { return EventNameOrderCreated }
