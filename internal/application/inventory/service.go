package inventory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/shippingkart/backend/internal/domain/product"
	"github.com/shippingkart/backend/internal/pkg/keylock"
	"github.com/shippingkart/backend/internal/pkg/logging"
)

// ErrBusy reports that the per-product critical section stayed contended for
// longer than the configured bound. Callers may retry.
var ErrBusy = errors.New("inventory: stock contended, retry")

const DefaultLockWait = 2 * time.Second

// atomicStore is implemented by repositories that can serialize stock
// mutations themselves (row locks in the postgres adapter). When present it
// takes precedence over the in-process lock table.
type atomicStore interface {
	DecrementStock(ctx context.Context, productID string, quantity int) error
	IncrementStock(ctx context.Context, productID string, quantity int) error
}

// reservingStore is implemented by repositories that can additionally record
// or drop a reservation under an attempt token in the same transaction as the
// stock change, so a crash never separates the two.
type reservingStore interface {
	DecrementStockReserving(ctx context.Context, token, productID string, quantity int) error
	IncrementStockReleasing(ctx context.Context, token, productID string, quantity int) error
}

// Service owns the per-product stock counters. All mutations for a product
// are serialized; two concurrent decrements never both succeed if their
// combined quantity exceeds available stock.
type Service struct {
	products  product.Repository
	atomic    atomicStore
	reserving reservingStore
	locks     *keylock.Table
	lockWait  time.Duration
}

func NewService(products product.Repository, lockWait time.Duration) *Service {
	if lockWait <= 0 {
		lockWait = DefaultLockWait
	}
	s := &Service{
		products: products,
		locks:    keylock.New(),
		lockWait: lockWait,
	}
	if a, ok := products.(atomicStore); ok {
		s.atomic = a
	}
	if r, ok := products.(reservingStore); ok {
		s.reserving = r
	}
	return s
}

// GetAvailable reads the current stock counter. The value is advisory: it
// may be stale by the time the caller acts on it, and only Decrement is
// authoritative.
func (s *Service) GetAvailable(ctx context.Context, productID string) (int, error) {
	p, err := s.products.Get(ctx, productID)
	if err != nil {
		return 0, err
	}
	return p.Stock, nil
}

// Decrement atomically subtracts quantity from the product's stock counter,
// re-verifying sufficiency under the product's critical section regardless of
// any advisory pre-check the caller performed.
func (s *Service) Decrement(ctx context.Context, productID string, quantity int) error {
	if quantity <= 0 {
		return product.ErrInvalidQuantity
	}
	if s.atomic != nil {
		return s.withDeadline(ctx, func(ctx context.Context) error {
			return s.atomic.DecrementStock(ctx, productID, quantity)
		})
	}
	return s.mutate(ctx, productID, func(p *product.Product) error {
		return p.Deduct(quantity)
	})
}

// Increment reverses a prior successful decrement. It is the compensation
// primitive of the checkout rollback path and re-clears the sold-out flag
// once stock is positive again.
func (s *Service) Increment(ctx context.Context, productID string, quantity int) error {
	if quantity <= 0 {
		return product.ErrInvalidQuantity
	}
	if s.atomic != nil {
		return s.withDeadline(ctx, func(ctx context.Context) error {
			return s.atomic.IncrementStock(ctx, productID, quantity)
		})
	}
	return s.mutate(ctx, productID, func(p *product.Product) error {
		return p.Restock(quantity)
	})
}

// DecrementReserving is Decrement for the checkout path. When the store can
// persist the reservation in the same transaction as the stock change it does
// so under token and reports recorded=true; otherwise the caller must record
// the reservation itself after the plain decrement.
func (s *Service) DecrementReserving(ctx context.Context, token, productID string, quantity int) (recorded bool, err error) {
	if quantity <= 0 {
		return false, product.ErrInvalidQuantity
	}
	if s.reserving != nil {
		err := s.withDeadline(ctx, func(ctx context.Context) error {
			return s.reserving.DecrementStockReserving(ctx, token, productID, quantity)
		})
		return err == nil, err
	}
	return false, s.Decrement(ctx, productID, quantity)
}

// IncrementReleasing reverses a reservation-recorded decrement, dropping the
// reservation along with the stock restore when the store supports it.
func (s *Service) IncrementReleasing(ctx context.Context, token, productID string, quantity int) (recorded bool, err error) {
	if quantity <= 0 {
		return false, product.ErrInvalidQuantity
	}
	if s.reserving != nil {
		err := s.withDeadline(ctx, func(ctx context.Context) error {
			return s.reserving.IncrementStockReleasing(ctx, token, productID, quantity)
		})
		return err == nil, err
	}
	return false, s.Increment(ctx, productID, quantity)
}

func (s *Service) mutate(ctx context.Context, productID string, apply func(*product.Product) error) error {
	lockCtx, cancel := context.WithTimeout(ctx, s.lockWait)
	defer cancel()

	release, err := s.locks.Acquire(lockCtx, productID)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			logging.FromContext(ctx).Warn("stock_lock_timeout",
				zap.String("product_id", productID),
			)
			return ErrBusy
		}
		return err
	}
	defer release()

	p, err := s.products.Get(ctx, productID)
	if err != nil {
		return err
	}
	if err := apply(p); err != nil {
		return err
	}
	if err := s.products.Save(ctx, p); err != nil {
		return fmt.Errorf("inventory: save stock: %w", err)
	}
	return nil
}

// withDeadline bounds a repository-serialized mutation the same way the lock
// table bounds the in-memory path.
func (s *Service) withDeadline(ctx context.Context, fn func(context.Context) error) error {
	opCtx, cancel := context.WithTimeout(ctx, s.lockWait)
	defer cancel()
	err := fn(opCtx)
	if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
		return ErrBusy
	}
	return err
}
