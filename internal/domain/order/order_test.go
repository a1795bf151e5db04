package order

import (
	"errors"
	"testing"
)

func TestNewComputesTotalOnce(t *testing.T) {
	items := []Item{
		{ProductID: "p1", Quantity: 2, PriceCents: 1500},
		{ProductID: "p2", Quantity: 1, PriceCents: 499},
	}
	ord, err := New("o1", "u1", "1 Main St", items)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if ord.TotalCents != 3499 {
		t.Fatalf("expected total 3499, got %d", ord.TotalCents)
	}
	if ord.Status != StatusProcessing || ord.PaymentStatus != PaymentPaid {
		t.Fatalf("unexpected initial statuses: %s / %s", ord.Status, ord.PaymentStatus)
	}

	// Mutating the caller's slice must not reach the order.
	items[0].PriceCents = 9999
	if ord.Items[0].PriceCents != 1500 {
		t.Fatalf("order shares item slice with caller")
	}
}

func TestNewValidation(t *testing.T) {
	if _, err := New("o1", "u1", "1 Main St", nil); !errors.Is(err, ErrNoItems) {
		t.Fatalf("expected ErrNoItems, got %v", err)
	}
	if _, err := New("o1", "u1", "", []Item{{ProductID: "p1", Quantity: 1}}); !errors.Is(err, ErrMissingAddress) {
		t.Fatalf("expected ErrMissingAddress, got %v", err)
	}
	if _, err := New("o1", "u1", "1 Main St", []Item{{ProductID: "p1", Quantity: 0}}); !errors.Is(err, ErrInvalidQuantity) {
		t.Fatalf("expected ErrInvalidQuantity, got %v", err)
	}
}

func TestStatusTransitions(t *testing.T) {
	ord, _ := New("o1", "u1", "1 Main St", []Item{{ProductID: "p1", Quantity: 1, PriceCents: 100}})

	// processing -> delivered skips shipped and is rejected.
	if err := ord.MarkDelivered(); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}

	if err := ord.MarkShipped(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := ord.MarkShipped(); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition on repeat, got %v", err)
	}
	if err := ord.MarkDelivered(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ord.Status != StatusDelivered {
		t.Fatalf("expected delivered, got %s", ord.Status)
	}
}
