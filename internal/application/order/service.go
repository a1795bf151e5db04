package order

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	domain "github.com/shippingkart/backend/internal/domain/order"
	"github.com/shippingkart/backend/internal/pkg/logging"
)

// Service is the query and fulfillment surface over the append-only order
// ledger. Orders reach the ledger only through the checkout orchestrator.
type Service struct {
	orders domain.Repository
}

func NewService(orders domain.Repository) *Service {
	return &Service{orders: orders}
}

// Get returns the order only to its owner. A missing order and another
// user's order are indistinguishable to the caller.
func (s *Service) Get(ctx context.Context, userID, orderID string) (*domain.Order, error) {
	if userID == "" || orderID == "" {
		return nil, domain.ErrNotFound
	}
	ord, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if ord.UserID != userID {
		return nil, domain.ErrNotFound
	}
	return ord, nil
}

// List returns the user's orders, most recent first.
func (s *Service) List(ctx context.Context, userID string) ([]*domain.Order, error) {
	if userID == "" {
		return nil, errors.New("order: user id is required")
	}
	return s.orders.ListByUser(ctx, userID)
}

// UpdateStatus is the out-of-core fulfillment write path: it advances an
// order's status and nothing else.
func (s *Service) UpdateStatus(ctx context.Context, orderID string, status domain.Status) (*domain.Order, error) {
	ord, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}

	switch status {
	case domain.StatusShipped:
		err = ord.MarkShipped()
	case domain.StatusDelivered:
		err = ord.MarkDelivered()
	default:
		return nil, fmt.Errorf("order: unsupported status %q: %w", status, domain.ErrInvalidTransition)
	}
	if err != nil {
		return nil, err
	}

	if err := s.orders.Update(ctx, ord); err != nil {
		return nil, fmt.Errorf("order: update status: %w", err)
	}
	logging.FromContext(ctx).Info("order_status_updated",
		zap.String("order_id", ord.ID),
		zap.String("status", string(ord.Status)),
	)
	return ord, nil
}
