package order

import (
	"errors"
	"time"
)

var (
	ErrNotFound          = errors.New("order: not found")
	ErrConflict          = errors.New("order: already exists")
	ErrNoItems           = errors.New("order: at least one item is required")
	ErrInvalidQuantity   = errors.New("order: quantity must be greater than zero")
	ErrMissingAddress    = errors.New("order: shipping address is required")
	ErrInvalidTransition = errors.New("order: invalid status transition")
)

type Status string

const (
	StatusProcessing Status = "processing"
	StatusShipped    Status = "shipped"
	StatusDelivered  Status = "delivered"
)

var validNext = map[Status]map[Status]bool{
	StatusProcessing: {StatusShipped: true},
	StatusShipped:    {StatusDelivered: true},
	StatusDelivered:  {},
}

type PaymentStatus string

const (
	PaymentPending PaymentStatus = "pending"
	PaymentPaid    PaymentStatus = "paid"
)

// Item is a purchased line with the unit price frozen at checkout time.
// Later catalog price changes never alter an existing order.
type Item struct {
	ProductID  string
	Quantity   int
	PriceCents int64
}

// Order is the immutable record of a completed checkout. Only Status and
// PaymentStatus may change after creation, via the transition methods below.
type Order struct {
	ID              string
	UserID          string
	Items           []Item
	ShippingAddress string
	TotalCents      int64
	Status          Status
	PaymentStatus   PaymentStatus
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// New builds an order from price-snapshotted items. The total is computed
// here, exactly once.
func New(id, userID, shippingAddress string, items []Item) (*Order, error) {
	if len(items) == 0 {
		return nil, ErrNoItems
	}
	if shippingAddress == "" {
		return nil, ErrMissingAddress
	}
	var total int64
	for _, it := range items {
		if it.Quantity <= 0 {
			return nil, ErrInvalidQuantity
		}
		total += int64(it.Quantity) * it.PriceCents
	}
	now := time.Now().UTC()
	return &Order{
		ID:              id,
		UserID:          userID,
		Items:           append([]Item(nil), items...),
		ShippingAddress: shippingAddress,
		TotalCents:      total,
		Status:          StatusProcessing,
		PaymentStatus:   PaymentPaid,
		CreatedAt:       now,
		UpdatedAt:       now,
	}, nil
}

func (o *Order) transition(to Status) error {
	if !validNext[o.Status][to] {
		return ErrInvalidTransition
	}
	o.Status = to
	o.touch()
	return nil
}

// MarkShipped and MarkDelivered are the fulfillment write path; they never
// touch items, totals, or the payment snapshot.
func (o *Order) MarkShipped() error   { return o.transition(StatusShipped) }
func (o *Order) MarkDelivered() error { return o.transition(StatusDelivered) }

func (o *Order) touch() {
	o.UpdatedAt = time.Now().UTC()
}

func (o *Order) Clone() *Order {
	if o == nil {
		return nil
	}
	clone := *o
	clone.Items = append([]Item(nil), o.Items...)
	return &clone
}
