package cart

import (
	"errors"
	"testing"
)

func TestUpsertReplacesDuplicateLine(t *testing.T) {
	c := New("u1")

	if err := c.Upsert("p1", 2); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := c.Upsert("p1", 5); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(c.Items) != 1 {
		t.Fatalf("expected one line, got %d", len(c.Items))
	}
	if got := c.Quantity("p1"); got != 5 {
		t.Fatalf("expected quantity replaced to 5, got %d", got)
	}
}

func TestUpsertRejectsQuantityBelowOne(t *testing.T) {
	c := New("u1")
	for _, q := range []int{0, -3} {
		if err := c.Upsert("p1", q); !errors.Is(err, ErrInvalidQuantity) {
			t.Fatalf("quantity %d: expected ErrInvalidQuantity, got %v", q, err)
		}
	}
	if !c.IsEmpty() {
		t.Fatalf("rejected upsert mutated cart")
	}
}

func TestRemoveIsIdempotent(t *testing.T) {
	c := New("u1")
	_ = c.Upsert("p1", 1)
	_ = c.Upsert("p2", 2)

	c.Remove("p1")
	if c.Quantity("p1") != 0 {
		t.Fatalf("expected p1 removed")
	}

	// Removing an absent product is a no-op.
	c.Remove("p1")
	c.Remove("never-added")
	if len(c.Items) != 1 || c.Quantity("p2") != 2 {
		t.Fatalf("idempotent remove disturbed remaining lines: %+v", c.Items)
	}
}

func TestClearEmptiesCart(t *testing.T) {
	c := New("u1")
	_ = c.Upsert("p1", 1)

	c.Clear()
	if !c.IsEmpty() {
		t.Fatalf("expected empty cart after clear")
	}
}

func TestCloneIsIndependent(t *testing.T) {
	c := New("u1")
	_ = c.Upsert("p1", 1)

	clone := c.Clone()
	_ = clone.Upsert("p1", 9)

	if c.Quantity("p1") != 1 {
		t.Fatalf("clone shares item slice with original")
	}
}
