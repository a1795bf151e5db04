package cart

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/shippingkart/backend/internal/domain/cart"
	"github.com/shippingkart/backend/internal/pkg/keylock"
	"github.com/shippingkart/backend/internal/pkg/logging"
)

var (
	// ErrOutOfStock rejects an upsert whose product is sold out or has fewer
	// units available than requested. The check is advisory only; nothing is
	// reserved until checkout.
	ErrOutOfStock = errors.New("cart: product out of stock")
	ErrBusy       = errors.New("cart: contended, retry")
)

// StockView is the read-only slice of the inventory store the cart manager
// consults for advisory checks.
type StockView interface {
	GetAvailable(ctx context.Context, productID string) (int, error)
}

// Service owns per-user cart contents. Every read-modify-write runs under a
// per-user critical section so concurrent requests from the same user (two
// browser tabs) cannot lose each other's line items.
type Service struct {
	carts    cart.Repository
	stock    StockView
	locks    *keylock.Table
	lockWait time.Duration
}

func NewService(carts cart.Repository, stock StockView, lockWait time.Duration) *Service {
	if lockWait <= 0 {
		lockWait = 2 * time.Second
	}
	return &Service{
		carts:    carts,
		stock:    stock,
		locks:    keylock.New(),
		lockWait: lockWait,
	}
}

// GetOrCreate returns the user's cart, creating an empty one on first use.
func (s *Service) GetOrCreate(ctx context.Context, userID string) (*cart.Cart, error) {
	if userID == "" {
		return nil, errors.New("cart: user id is required")
	}
	c, err := s.carts.Get(ctx, userID)
	if errors.Is(err, cart.ErrNotFound) {
		return cart.New(userID), nil
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

// UpsertItem sets the quantity for a product line, replacing any previous
// quantity for the same product. The product must exist and have enough
// units available at the time of the call.
func (s *Service) UpsertItem(ctx context.Context, userID, productID string, quantity int) (*cart.Cart, error) {
	if userID == "" {
		return nil, errors.New("cart: user id is required")
	}
	if productID == "" {
		return nil, errors.New("cart: product id is required")
	}
	if quantity < 1 {
		return nil, cart.ErrInvalidQuantity
	}

	available, err := s.stock.GetAvailable(ctx, productID)
	if err != nil {
		return nil, err
	}
	if available < quantity {
		return nil, fmt.Errorf("%w: %s", ErrOutOfStock, productID)
	}

	return s.withCart(ctx, userID, func(c *cart.Cart) error {
		return c.Upsert(productID, quantity)
	})
}

// RemoveItem drops the product's line from the cart. Removing an absent
// product is a no-op, not an error.
func (s *Service) RemoveItem(ctx context.Context, userID, productID string) (*cart.Cart, error) {
	if userID == "" {
		return nil, errors.New("cart: user id is required")
	}
	return s.withCart(ctx, userID, func(c *cart.Cart) error {
		c.Remove(productID)
		return nil
	})
}

// Clear empties the cart. It is called by the checkout orchestrator after
// order creation.
func (s *Service) Clear(ctx context.Context, userID string) error {
	_, err := s.withCart(ctx, userID, func(c *cart.Cart) error {
		c.Clear()
		return nil
	})
	return err
}

func (s *Service) withCart(ctx context.Context, userID string, apply func(*cart.Cart) error) (*cart.Cart, error) {
	lockCtx, cancel := context.WithTimeout(ctx, s.lockWait)
	defer cancel()

	release, err := s.locks.Acquire(lockCtx, userID)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			logging.FromContext(ctx).Warn("cart_lock_timeout", zap.String("user_id", userID))
			return nil, ErrBusy
		}
		return nil, err
	}
	defer release()

	c, err := s.carts.Get(ctx, userID)
	if errors.Is(err, cart.ErrNotFound) {
		c = cart.New(userID)
	} else if err != nil {
		return nil, err
	}

	if err := apply(c); err != nil {
		return nil, err
	}
	if err := s.carts.Save(ctx, c); err != nil {
		return nil, fmt.Errorf("cart: save: %w", err)
	}
	return c, nil
}
