package order

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/shippingkart/backend/internal/domain/order"
	"github.com/shippingkart/backend/internal/infrastructure/memory"
)

func insertOrder(t *testing.T, repo domain.Repository, id, userID string, createdAt time.Time) *domain.Order {
	t.Helper()
	ord, err := domain.New(id, userID, "1 Main St", []domain.Item{
		{ProductID: "p1", Quantity: 1, PriceCents: 1000},
	})
	if err != nil {
		t.Fatalf("construct order: %v", err)
	}
	ord.CreatedAt = createdAt
	if err := repo.Insert(context.Background(), ord); err != nil {
		t.Fatalf("insert order: %v", err)
	}
	return ord
}

func TestGetEnforcesOwnership(t *testing.T) {
	repo := memory.NewOrderRepository()
	insertOrder(t, repo, "o1", "u1", time.Now().UTC())
	svc := NewService(repo)

	if _, err := svc.Get(context.Background(), "u1", "o1"); err != nil {
		t.Fatalf("owner read failed: %v", err)
	}

	// Another user's order and a missing order look identical.
	if _, err := svc.Get(context.Background(), "u2", "o1"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for foreign order, got %v", err)
	}
	if _, err := svc.Get(context.Background(), "u1", "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for missing order, got %v", err)
	}
}

func TestListNewestFirst(t *testing.T) {
	repo := memory.NewOrderRepository()
	base := time.Now().UTC()
	insertOrder(t, repo, "o-old", "u1", base.Add(-2*time.Hour))
	insertOrder(t, repo, "o-new", "u1", base)
	insertOrder(t, repo, "o-mid", "u1", base.Add(-time.Hour))
	insertOrder(t, repo, "o-other", "u2", base)
	svc := NewService(repo)

	orders, err := svc.List(context.Background(), "u1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(orders) != 3 {
		t.Fatalf("expected 3 orders, got %d", len(orders))
	}
	want := []string{"o-new", "o-mid", "o-old"}
	for i, id := range want {
		if orders[i].ID != id {
			t.Fatalf("position %d: expected %s, got %s", i, id, orders[i].ID)
		}
	}
}

func TestUpdateStatusFollowsTransitions(t *testing.T) {
	repo := memory.NewOrderRepository()
	insertOrder(t, repo, "o1", "u1", time.Now().UTC())
	svc := NewService(repo)

	ord, err := svc.UpdateStatus(context.Background(), "o1", domain.StatusShipped)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ord.Status != domain.StatusShipped {
		t.Fatalf("expected shipped, got %s", ord.Status)
	}

	if _, err := svc.UpdateStatus(context.Background(), "o1", domain.StatusShipped); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition on repeat ship, got %v", err)
	}
	if _, err := svc.UpdateStatus(context.Background(), "o1", domain.Status("cancelled")); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition for unsupported status, got %v", err)
	}

	if _, err := svc.UpdateStatus(context.Background(), "o1", domain.StatusDelivered); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	persisted, err := repo.Get(context.Background(), "o1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if persisted.Status != domain.StatusDelivered {
		t.Fatalf("status not persisted: %s", persisted.Status)
	}
}
