package outbox

import "context"

// Event is a domain occurrence carried through the in-process bus. The name
// is the routing key subscribers register under.
type Event interface {
	EventName() string
}

// Handler consumes one event. Errors are logged by the bus and never reach
// the publisher.
type Handler func(ctx context.Context, e Event) error

// Publisher hands an event to every subscriber registered for its name.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// Subscriber attaches a handler to an event name.
type Subscriber interface {
	Subscribe(eventName string, h Handler)
}
