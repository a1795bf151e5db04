package product

import (
	"errors"
	"testing"
)

func TestDeductMaintainsSoldOut(t *testing.T) {
	p, err := New("p1", "widget", 500, 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.SoldOut {
		t.Fatalf("expected in-stock product")
	}

	if err := p.Deduct(2); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Stock != 1 || p.SoldOut {
		t.Fatalf("expected stock=1 soldOut=false, got stock=%d soldOut=%v", p.Stock, p.SoldOut)
	}

	if err := p.Deduct(1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Stock != 0 || !p.SoldOut {
		t.Fatalf("expected stock=0 soldOut=true, got stock=%d soldOut=%v", p.Stock, p.SoldOut)
	}
}

func TestDeductInsufficientLeavesCounterUntouched(t *testing.T) {
	p, _ := New("p1", "widget", 500, 2)

	if err := p.Deduct(3); !errors.Is(err, ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}
	if p.Stock != 2 || p.SoldOut {
		t.Fatalf("failed deduct mutated product: stock=%d soldOut=%v", p.Stock, p.SoldOut)
	}
}

func TestDeductRejectsNonPositiveQuantity(t *testing.T) {
	p, _ := New("p1", "widget", 500, 2)
	for _, q := range []int{0, -1} {
		if err := p.Deduct(q); !errors.Is(err, ErrInvalidQuantity) {
			t.Fatalf("quantity %d: expected ErrInvalidQuantity, got %v", q, err)
		}
	}
}

func TestRestockClearsSoldOut(t *testing.T) {
	p, _ := New("p1", "widget", 500, 1)
	if err := p.Deduct(1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !p.SoldOut {
		t.Fatalf("expected sold out after draining stock")
	}

	if err := p.Restock(1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Stock != 1 || p.SoldOut {
		t.Fatalf("expected stock=1 soldOut=false, got stock=%d soldOut=%v", p.Stock, p.SoldOut)
	}
}

func TestNewValidation(t *testing.T) {
	if _, err := New("p1", "widget", -1, 1); !errors.Is(err, ErrInvalidPrice) {
		t.Fatalf("expected ErrInvalidPrice, got %v", err)
	}
	if _, err := New("p1", "widget", 100, -1); !errors.Is(err, ErrInvalidQuantity) {
		t.Fatalf("expected ErrInvalidQuantity, got %v", err)
	}
	p, err := New("p1", "widget", 100, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !p.SoldOut {
		t.Fatalf("zero-stock product must start sold out")
	}
}

func TestCloneIsIndependent(t *testing.T) {
	p, _ := New("p1", "widget", 100, 5)
	p.Images = []string{"a.jpg"}

	clone := p.Clone()
	clone.Images[0] = "b.jpg"
	clone.Stock = 0

	if p.Images[0] != "a.jpg" || p.Stock != 5 {
		t.Fatalf("clone shares state with original")
	}
}
